package flowscore

type component string

const (
	componentFocus    component = "focus"
	componentDuration component = "duration"
	componentBreaks   component = "breaks"
	componentDeepWork component = "deep_work"
)

var tips = map[component]string{
	componentFocus:    "Try eliminating distractions. Use Do Not Disturb mode.",
	componentDuration: "Aim for 45-60 minute focused blocks for optimal flow.",
	componentBreaks:   "Take a 5-10 minute break every hour to maintain focus.",
	componentDeepWork: "Stick with one subject for at least 30 minutes before switching.",
}

// WeakestComponent returns the component contributing least to the weighted sum.
// Ties go to the first in focus, duration, breaks, deep work order.
func WeakestComponent(c Components) string {
	return string(weakest(c))
}

func weakest(c Components) component {
	candidates := []struct {
		name     component
		weighted float64
	}{
		{componentFocus, c.Focus * weightFocus},
		{componentDuration, c.Duration * weightDuration},
		{componentBreaks, c.Breaks * weightBreaks},
		{componentDeepWork, c.DeepWork * weightDeepWork},
	}

	w := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.weighted < w.weighted {
			w = cand
		}
	}
	return w.name
}

func coachingMessage(score int, c Components) string {
	var encouragement string
	switch {
	case score < 500:
		encouragement = "Good start! "
	case score < 700:
		encouragement = "Nice work! You're building momentum. "
	case score < 850:
		encouragement = "Great session! You're in the zone. "
	default:
		return "Outstanding! Peak performance! 🔥 Keep it up!"
	}
	return encouragement + tips[weakest(c)]
}
