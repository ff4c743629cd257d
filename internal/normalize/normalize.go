// Package normalize turns raw session records into the shape consumed by
// aggregation and scoring.
package normalize

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/flowscore"
)

// MinScoredSeconds is the shortest session that receives a flow score.
const MinScoredSeconds = 900

// Session is a retained session with its intervals clipped to the session window.
type Session struct {
	Session    *domain.StudySession
	Duration   int64
	Categories map[string]int64
	BreakTime  int64
	BreakCount int64
	Entry      domain.TimelineEntry
}

// Summary is the normalized content of one day.
type Summary struct {
	TotalDuration     int64
	BreakDuration     int64
	CategoryDurations map[string]int64
	SessionCount      int64
	BreakCount        int64
	Timeline          []domain.TimelineEntry
	FlowStats         domain.FlowStats
}

// Retained reports whether a session may contribute to an aggregate: it is
// completed, closed and has a strictly positive duration.
func Retained(s *domain.StudySession) bool {
	if s == nil || s.Status != domain.SessionCompleted || s.EndedAt == nil {
		return false
	}
	return sessionSeconds(s) > 0
}

// Sessions filters and normalizes records, ordered by start.
func Sessions(records []domain.SessionRecord) []Session {
	out := make([]Session, 0, len(records))
	for _, rec := range records {
		if !Retained(rec.Session) {
			continue
		}
		out = append(out, normalizeRecord(rec))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Session, out[j].Session
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// BufferWindow returns the absolute range to query for sessions that may
// start on date in loc: the local day widened by one day on each side.
func BufferWindow(date civil.Date, loc *time.Location) (from, to time.Time) {
	start := date.In(loc)
	return start.AddDate(0, 0, -1), start.AddDate(0, 0, 2)
}

// LocalDate returns the calendar date of t in loc.
func LocalDate(t time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(t.In(loc))
}

// OnDate keeps the records whose session starts on date in loc.
func OnDate(records []domain.SessionRecord, date civil.Date, loc *time.Location) []domain.SessionRecord {
	var out []domain.SessionRecord
	for _, rec := range records {
		if rec.Session == nil {
			continue
		}
		if LocalDate(rec.Session.StartedAt, loc) == date {
			out = append(out, rec)
		}
	}
	return out
}

// Day normalizes the records of one local date into a summary.
func Day(records []domain.SessionRecord, date civil.Date, loc *time.Location) Summary {
	return Summarize(Sessions(OnDate(records, date, loc)))
}

// Summarize folds normalized sessions into day totals.
func Summarize(sessions []Session) Summary {
	sum := Summary{
		CategoryDurations: map[string]int64{},
		Timeline:          make([]domain.TimelineEntry, 0, len(sessions)),
	}
	for _, s := range sessions {
		sum.TotalDuration += s.Duration
		sum.BreakDuration += s.BreakTime
		sum.SessionCount++
		sum.BreakCount += s.BreakCount
		for name, secs := range s.Categories {
			sum.CategoryDurations[name] += secs
		}
		sum.Timeline = append(sum.Timeline, s.Entry)
		if s.Session.FlowScore != nil {
			sum.FlowStats.Add(*s.Session.FlowScore, s.Duration)
		}
	}
	return sum
}

func normalizeRecord(rec domain.SessionRecord) Session {
	s := rec.Session
	out := Session{
		Session:    s,
		Duration:   sessionSeconds(s),
		Categories: map[string]int64{},
		Entry: domain.TimelineEntry{
			SessionID:       s.ID,
			StartedAt:       s.StartedAt,
			EndedAt:         s.EndedAt,
			DurationSeconds: sessionSeconds(s),
			FlowScore:       s.FlowScore,
			Breaks:          []domain.TimelineInterval{},
			Blocks:          []domain.TimelineInterval{},
		},
	}
	for _, iv := range orderedIntervals(rec.Intervals) {
		isBreak := iv.IsBreak || domain.IsBreakCategory(iv.CategoryName)
		clipped, ok := clip(iv, s.StartedAt, *s.EndedAt)
		if !ok {
			continue
		}
		secs := clipped.Duration()
		ti := domain.TimelineInterval{
			StartedAt:       clipped.StartedAt,
			EndedAt:         clipped.EndedAt,
			DurationSeconds: secs,
		}
		if isBreak {
			out.BreakCount++
			out.BreakTime += secs
			out.Categories[domain.BreakCategoryName] += secs
			out.Entry.Breaks = append(out.Entry.Breaks, ti)
			continue
		}
		ti.Category = iv.Subject()
		out.Categories[ti.Category] += secs
		out.Entry.Blocks = append(out.Entry.Blocks, ti)
	}
	return out
}

// ScoringIntervals returns the intervals of rec clipped to the session window,
// in start order, dropping incomplete ones.
func ScoringIntervals(rec domain.SessionRecord) []domain.Interval {
	s := rec.Session
	if s == nil || s.EndedAt == nil {
		return nil
	}
	var out []domain.Interval
	for _, iv := range orderedIntervals(rec.Intervals) {
		if clipped, ok := clip(iv, s.StartedAt, *s.EndedAt); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// ScoreSession scores a completed session in loc. Sessions shorter than
// MinScoredSeconds, open sessions and sessions that are not completed get nil.
func ScoreSession(rec domain.SessionRecord, loc *time.Location) *flowscore.Result {
	s := rec.Session
	if !Retained(s) || sessionSeconds(s) < MinScoredSeconds {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	res := flowscore.Score(s.StartedAt.In(loc), s.EndedAt.In(loc), engineRating(s.FocusRating), ScoringIntervals(rec))
	return &res
}

// engineRating converts a stored 1-5 rating to the 1-10 scale of the scorer.
func engineRating(r *int) *int {
	if r == nil {
		return nil
	}
	v := *r * 2
	return &v
}

// clip bounds iv to [start, end]. Intervals with unknown or non-positive
// duration are dropped.
func clip(iv domain.Interval, start, end time.Time) (domain.Interval, bool) {
	if iv.DurationSeconds == nil || *iv.DurationSeconds <= 0 {
		return iv, false
	}
	secs := *iv.DurationSeconds
	if iv.EndedAt != nil {
		from, to := iv.StartedAt, *iv.EndedAt
		if from.Before(start) {
			from = start
		}
		if to.After(end) {
			to = end
		}
		span := int64(to.Sub(from) / time.Second)
		if span <= 0 {
			return iv, false
		}
		if span < secs {
			secs = span
		}
		iv.StartedAt = from
		iv.EndedAt = &to
	}
	iv.DurationSeconds = &secs
	return iv, true
}

func orderedIntervals(in []domain.Interval) []domain.Interval {
	out := make([]domain.Interval, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// sessionSeconds is always end - start; the stored duration is not trusted.
func sessionSeconds(s *domain.StudySession) int64 {
	if s.EndedAt == nil {
		return 0
	}
	return int64(s.EndedAt.Sub(s.StartedAt) / time.Second)
}
