package domain

import (
	"math"
	"time"

	"cloud.google.com/go/civil"
)

// TimelineInterval is one break or category block inside a timeline entry.
type TimelineInterval struct {
	Category        string     `json:"category,omitempty"`
	StartedAt       time.Time  `json:"start_time"`
	EndedAt         *time.Time `json:"end_time"`
	DurationSeconds int64      `json:"duration"`
}

// TimelineEntry summarizes one session of a day.
type TimelineEntry struct {
	SessionID       string             `json:"session_id"`
	StartedAt       time.Time          `json:"start_time"`
	EndedAt         *time.Time         `json:"end_time"`
	DurationSeconds int64              `json:"total_duration"`
	FlowScore       *int               `json:"flow_score,omitempty"`
	Breaks          []TimelineInterval `json:"breaks"`
	Blocks          []TimelineInterval `json:"category_blocks"`
}

// FlowStats holds the flow score sums of a period. Every field is additive
// so weekly and monthly stats are exact merges of the daily ones.
type FlowStats struct {
	ScoredSessions   int64 `json:"scored_sessions"`
	ScoredDuration   int64 `json:"scored_duration"`
	ScoreSum         int64 `json:"score_sum"`
	WeightedScoreSum int64 `json:"weighted_score_sum"`
	Min              *int  `json:"min,omitempty"`
	Max              *int  `json:"max,omitempty"`
}

// Add folds one scored session into the stats.
func (f *FlowStats) Add(score int, durationSeconds int64) {
	f.ScoredSessions++
	f.ScoredDuration += durationSeconds
	f.ScoreSum += int64(score)
	f.WeightedScoreSum += int64(score) * durationSeconds
	if f.Min == nil || score < *f.Min {
		v := score
		f.Min = &v
	}
	if f.Max == nil || score > *f.Max {
		v := score
		f.Max = &v
	}
}

// Merge folds another period's stats into f.
func (f *FlowStats) Merge(o FlowStats) {
	f.ScoredSessions += o.ScoredSessions
	f.ScoredDuration += o.ScoredDuration
	f.ScoreSum += o.ScoreSum
	f.WeightedScoreSum += o.WeightedScoreSum
	if o.Min != nil && (f.Min == nil || *o.Min < *f.Min) {
		v := *o.Min
		f.Min = &v
	}
	if o.Max != nil && (f.Max == nil || *o.Max > *f.Max) {
		v := *o.Max
		f.Max = &v
	}
}

// WeightedMean returns the duration-weighted mean score rounded to two decimals,
// or nil when nothing was scored.
func (f FlowStats) WeightedMean() *float64 {
	if f.ScoredDuration <= 0 {
		return nil
	}
	v := round2(float64(f.WeightedScoreSum) / float64(f.ScoredDuration))
	return &v
}

// Mean returns the plain per-session mean, or nil when nothing was scored.
func (f FlowStats) Mean() *float64 {
	if f.ScoredSessions == 0 {
		return nil
	}
	v := round2(float64(f.ScoreSum) / float64(f.ScoredSessions))
	return &v
}

type DailyAggregate struct {
	UserID            string
	Date              civil.Date
	TotalDuration     int64
	BreakDuration     int64
	CategoryDurations map[string]int64
	SessionCount      int64
	BreakCount        int64
	Timeline          []TimelineEntry
	FlowScore         *float64
	FlowStats         FlowStats
	IsFinal           bool
}

// DayBreakdown is the per-day slice of a weekly aggregate.
type DayBreakdown struct {
	Total      int64            `json:"total"`
	Categories map[string]int64 `json:"categories"`
}

// SessionTime is a closed session span flattened out of daily timelines.
type SessionTime struct {
	StartedAt       time.Time `json:"start_time"`
	EndedAt         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"total_duration"`
}

type WeeklyAggregate struct {
	UserID            string
	WeekStart         civil.Date
	WeekEnd           civil.Date
	TotalDuration     int64
	BreakDuration     int64
	CategoryDurations map[string]int64
	SessionCount      int64
	BreakCount        int64
	DailyBreakdown    map[string]DayBreakdown // day code -> totals
	SessionTimes      []SessionTime
	FlowScore         *float64
	FlowStats         FlowStats
	IsFinal           bool
}

// MonthDay is one charted day of a monthly aggregate.
type MonthDay struct {
	Date       civil.Date       `json:"date"`
	Hours      float64          `json:"total_duration"`
	Categories map[string]int64 `json:"category_durations"`
}

type MonthlyAggregate struct {
	UserID            string
	MonthStart        civil.Date
	MonthEnd          civil.Date
	TotalDuration     int64
	BreakDuration     int64
	CategoryDurations map[string]int64
	SessionCount      int64
	BreakCount        int64
	DailyBreakdown    []MonthDay
	Heatmap           map[string]float64 // YYYY-MM-DD -> hours
	FlowScore         *float64
	FlowStats         FlowStats
	IsFinal           bool
}

// Hours converts seconds to hours rounded to two decimals.
func Hours(seconds int64) float64 {
	return round2(float64(seconds) / 3600)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
