package domain

import (
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionCompleted   SessionStatus = "completed"
	SessionCancelled   SessionStatus = "cancelled"
	SessionPaused      SessionStatus = "paused"
	SessionInterrupted SessionStatus = "interrupted"
)

// Valid reports whether s is one of the known session states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionCancelled, SessionPaused, SessionInterrupted:
		return true
	}
	return false
}

// BreakCategoryName is the category every break interval is reported under.
const BreakCategoryName = "Break"

type User struct {
	ID        string
	Username  string
	Timezone  string
	CreatedAt time.Time
}

type StudySession struct {
	ID              string
	UserID          string
	StartedAt       time.Time
	EndedAt         *time.Time
	Status          SessionStatus
	FocusRating     *int // 1-5
	DurationSeconds *int64
	FlowScore       *int
	CreatedAt       time.Time
}

// DeriveDuration recomputes DurationSeconds from the session bounds.
// It is cleared while the session is still open.
func (s *StudySession) DeriveDuration() {
	s.DurationSeconds = spanSeconds(s.StartedAt, s.EndedAt)
}

// Duration returns the derived duration in seconds, or 0 when unknown.
func (s *StudySession) Duration() int64 {
	if s.DurationSeconds == nil {
		return 0
	}
	return *s.DurationSeconds
}

type CategoryBlock struct {
	ID              string
	SessionID       string
	CategoryID      string
	CategoryName    string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds *int64
	IsBreak         bool
}

// DeriveDuration recomputes DurationSeconds from the block bounds.
func (b *CategoryBlock) DeriveDuration() {
	b.DurationSeconds = spanSeconds(b.StartedAt, b.EndedAt)
}

// Interval converts the block into the shape shared by the normalizer and the scorer.
func (b CategoryBlock) Interval() Interval {
	return Interval{
		CategoryID:      b.CategoryID,
		CategoryName:    b.CategoryName,
		StartedAt:       b.StartedAt,
		EndedAt:         b.EndedAt,
		DurationSeconds: b.DurationSeconds,
		IsBreak:         b.IsBreak || IsBreakCategory(b.CategoryName),
	}
}

type Break struct {
	ID              string
	SessionID       string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds *int64
}

// DeriveDuration recomputes DurationSeconds from the break bounds.
func (b *Break) DeriveDuration() {
	b.DurationSeconds = spanSeconds(b.StartedAt, b.EndedAt)
}

// Interval converts a dedicated break record into a break interval.
func (b Break) Interval() Interval {
	return Interval{
		CategoryName:    BreakCategoryName,
		StartedAt:       b.StartedAt,
		EndedAt:         b.EndedAt,
		DurationSeconds: b.DurationSeconds,
		IsBreak:         true,
	}
}

// Interval is a sub-range of a session spent on one category or on a break.
// Break records and break-flagged category blocks both arrive in this form.
type Interval struct {
	CategoryID      string
	CategoryName    string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds *int64
	IsBreak         bool
}

// Duration returns the interval length in seconds, or 0 when unknown.
func (i Interval) Duration() int64 {
	if i.DurationSeconds == nil {
		return 0
	}
	return *i.DurationSeconds
}

// Subject is the label used to group study time: the category name,
// falling back to the category ID.
func (i Interval) Subject() string {
	if i.CategoryName != "" {
		return i.CategoryName
	}
	if i.CategoryID != "" {
		return i.CategoryID
	}
	return "Unknown"
}

// IsBreakCategory reports whether a category name denotes a break.
func IsBreakCategory(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), "break")
}

// SessionRecord is a session together with all of its intervals, read as one snapshot.
type SessionRecord struct {
	Session   *StudySession
	Intervals []Interval
}

func spanSeconds(start time.Time, end *time.Time) *int64 {
	if end == nil || start.IsZero() {
		return nil
	}
	d := int64(end.Sub(start) / time.Second)
	return &d
}
