// Package flowscore rates a study session on a 300-1000 scale from its timing,
// the self-reported focus and the shape of its category blocks.
package flowscore

import (
	"math"
	"time"

	"github.com/emiliopalmerini/studi/internal/domain"
)

const (
	MinScore = 300
	MaxScore = 1000

	// DefaultFocusRating is used when the session has no rating.
	DefaultFocusRating = 6

	weightFocus    = 0.40
	weightDuration = 0.25
	weightBreaks   = 0.15
	weightDeepWork = 0.15
	weightTimeSlot = 0.05
)

// Components holds the normalized 0-1 component values and the time multiplier.
type Components struct {
	Focus          float64
	Duration       float64
	Breaks         float64
	DeepWork       float64
	TimeMultiplier float64
}

// Details holds rounded session metrics for reporting.
type Details struct {
	TotalMinutes   int
	FocusMinutes   int
	BreakMinutes   int
	SubjectCount   int
	AvgBlockLength int
	StartHour      int
}

type Result struct {
	Score           int
	Components      Components
	Details         Details
	CoachingMessage string
}

// Score computes the flow score of a session. focusRating is on a 1-10 scale;
// nil means unrated. The time-of-day multiplier uses the wall-clock hour of
// start, so callers pass start in the user's location.
func Score(start, end time.Time, focusRating *int, blocks []domain.Interval) Result {
	totalMinutes := end.Sub(start).Minutes()

	var studyBlocks, breakBlocks []domain.Interval
	for _, b := range blocks {
		if b.IsBreak || domain.IsBreakCategory(b.CategoryName) {
			breakBlocks = append(breakBlocks, b)
		} else {
			studyBlocks = append(studyBlocks, b)
		}
	}

	var breakMinutes float64
	for _, b := range breakBlocks {
		breakMinutes += minutes(b)
	}
	focusMinutes := totalMinutes - breakMinutes
	startHour := start.Hour()

	deep := deepWorkScore(studyBlocks, focusMinutes)
	c := Components{
		Focus:          focusScore(focusRating),
		Duration:       durationScore(focusMinutes),
		Breaks:         breakScore(focusMinutes, breakMinutes, totalMinutes, breakBlocks),
		DeepWork:       deep.score,
		TimeMultiplier: timeOfDayMultiplier(startHour),
	}

	base := 1000 * (weightFocus*c.Focus +
		weightDuration*c.Duration +
		weightBreaks*c.Breaks +
		weightDeepWork*c.DeepWork +
		weightTimeSlot*1.0)

	score := int(math.RoundToEven(math.Max(MinScore, math.Min(MaxScore, base*c.TimeMultiplier))))

	d := Details{
		TotalMinutes:   roundInt(totalMinutes),
		FocusMinutes:   roundInt(focusMinutes),
		BreakMinutes:   roundInt(breakMinutes),
		SubjectCount:   deep.subjectCount,
		AvgBlockLength: roundInt(deep.avgBlockLength),
		StartHour:      startHour,
	}

	return Result{
		Score:           score,
		Components:      c,
		Details:         d,
		CoachingMessage: coachingMessage(score, c),
	}
}

// focusScore maps the 1-10 rating onto (r/10)^1.2, rewarding high focus super-linearly.
func focusScore(rating *int) float64 {
	r := DefaultFocusRating
	if rating != nil {
		r = *rating
	}
	r = max(1, min(10, r))
	return math.Pow(float64(r)/10, 1.2)
}

func durationScore(m float64) float64 {
	switch {
	case m <= 10:
		return 0.3
	case m <= 50:
		return 0.3 + 0.7*(m-10)/40
	case m <= 90:
		return 1.0
	case m <= 150:
		return 1.0 - 0.2*(m-90)/60
	case m <= 240:
		return 0.8 - 0.3*(m-150)/90
	default:
		return 0.5
	}
}

func breakScore(focusMinutes, breakMinutes, totalMinutes float64, breaks []domain.Interval) float64 {
	if focusMinutes <= 60 {
		if len(breaks) == 0 {
			return 1.0
		}
		return 0.9
	}

	recommended := math.Floor(focusMinutes / 60)

	var good int
	for _, b := range breaks {
		if m := minutes(b); m >= 3 && m <= 20 {
			good++
		}
	}

	score := 1.0
	if recommended > 0 {
		score = math.Min(1.0, float64(good)/recommended)
	}
	if breakMinutes > 0.4*totalMinutes {
		score *= 0.85
	}
	return math.Max(0, score)
}

type deepWork struct {
	score          float64
	subjectCount   int
	avgBlockLength float64
}

func deepWorkScore(study []domain.Interval, focusMinutes float64) deepWork {
	if len(study) == 0 || focusMinutes <= 0 {
		return deepWork{score: 0.5}
	}

	// Subjects keep first-seen order so the float sum is reproducible.
	var subjects []string
	subjectMinutes := make(map[string]float64)
	for _, b := range study {
		s := b.Subject()
		if _, ok := subjectMinutes[s]; !ok {
			subjects = append(subjects, s)
		}
		subjectMinutes[s] += minutes(b)
	}

	var herfindahl float64
	for _, s := range subjects {
		share := subjectMinutes[s] / focusMinutes
		herfindahl += share * share
	}

	avg := focusMinutes / float64(len(study))
	score := 0.3 + 0.4*herfindahl + 0.3*math.Min(1, avg/25)

	// Excessive switching.
	if float64(len(study)) > focusMinutes/20 {
		score *= 0.92
	}

	return deepWork{
		score:          math.Max(0.5, math.Min(1, score)),
		subjectCount:   len(subjects),
		avgBlockLength: avg,
	}
}

func timeOfDayMultiplier(hour int) float64 {
	switch {
	case hour >= 11 && hour < 21:
		return 1.02
	case (hour >= 9 && hour < 11) || (hour >= 21 && hour < 23):
		return 1.00
	case (hour >= 7 && hour < 9) || hour == 23:
		return 0.98
	default:
		return 0.95
	}
}

func minutes(b domain.Interval) float64 {
	return float64(b.Duration()) / 60
}

func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}
