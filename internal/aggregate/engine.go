// Package aggregate maintains the daily, weekly and monthly study summaries.
// Every recompute overwrites its row from source data, so any step can be
// retried after a failure.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/clock"
	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/normalize"
	"github.com/emiliopalmerini/studi/internal/period"
	"github.com/emiliopalmerini/studi/internal/ports"
)

// Deps bundles the collaborators of an Engine. Metrics is optional.
type Deps struct {
	Sessions ports.SessionRepository
	Users    ports.UserRepository
	Store    ports.AggregateRepository
	Locker   ports.Locker
	Timezone ports.TimezoneResolver
	Clock    clock.Clock
	Calendar period.Calendar
	Metrics  ports.MetricsExporter
	Logger   ports.Logger
}

type Engine struct {
	sessions ports.SessionRepository
	users    ports.UserRepository
	store    ports.AggregateRepository
	locker   ports.Locker
	tz       ports.TimezoneResolver
	clock    clock.Clock
	calendar period.Calendar
	metrics  ports.MetricsExporter
	logger   ports.Logger
}

func NewEngine(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = ports.NopLogger{}
	}
	return &Engine{
		sessions: d.Sessions,
		users:    d.Users,
		store:    d.Store,
		locker:   d.Locker,
		tz:       d.Timezone,
		clock:    d.Clock,
		calendar: d.Calendar,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}
}

// Calendar returns the week convention the engine keys weekly rows by.
func (e *Engine) Calendar() period.Calendar {
	return e.calendar
}

// RecomputeDaily rebuilds the daily row of userID for the local date.
func (e *Engine) RecomputeDaily(ctx context.Context, userID string, date civil.Date) (*domain.DailyAggregate, error) {
	loc, err := e.location(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.recomputeDaily(ctx, userID, date, loc)
}

// RecomputeWeekly rebuilds the weekly row from the daily rows in
// [weekStart, weekEnd]. With no daily rows nothing is written and nil is returned.
func (e *Engine) RecomputeWeekly(ctx context.Context, userID string, weekStart, weekEnd civil.Date) (*domain.WeeklyAggregate, error) {
	if err := checkRange(weekStart, weekEnd); err != nil {
		return nil, err
	}
	loc, err := e.location(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.recomputeWeekly(ctx, userID, weekStart, weekEnd, loc)
}

// RecomputeMonthly rebuilds the monthly row from the daily rows in
// [monthStart, monthEnd]. With no daily rows nothing is written and nil is returned.
func (e *Engine) RecomputeMonthly(ctx context.Context, userID string, monthStart, monthEnd civil.Date) (*domain.MonthlyAggregate, error) {
	if err := checkRange(monthStart, monthEnd); err != nil {
		return nil, err
	}
	loc, err := e.location(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.recomputeMonthly(ctx, userID, monthStart, monthEnd, loc)
}

// UpdateForSessionChange refreshes the day, week and month containing the
// local start date of the session, in that order. The first failing step
// aborts the sequence and its error is returned.
func (e *Engine) UpdateForSessionChange(ctx context.Context, sessionID string) error {
	rec, err := e.sessions.GetRecord(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	if rec == nil || rec.Session == nil {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	userID := rec.Session.UserID
	loc, err := e.location(ctx, userID)
	if err != nil {
		return err
	}
	date := normalize.LocalDate(rec.Session.StartedAt, loc)

	e.logger.Debug("updating aggregates for session", "session_id", sessionID, "user_id", userID, "date", date.String())

	if _, err := e.recomputeDaily(ctx, userID, date, loc); err != nil {
		return err
	}
	weekStart, weekEnd := e.calendar.WeekBoundaries(date)
	if _, err := e.recomputeWeekly(ctx, userID, weekStart, weekEnd, loc); err != nil {
		return err
	}
	monthStart, monthEnd := period.MonthBoundaries(date)
	if _, err := e.recomputeMonthly(ctx, userID, monthStart, monthEnd, loc); err != nil {
		return err
	}
	return nil
}

func (e *Engine) recomputeDaily(ctx context.Context, userID string, date civil.Date, loc *time.Location) (agg *domain.DailyAggregate, err error) {
	started := time.Now()
	defer func() {
		e.record(ctx, period.Daily, started, agg, err)
	}()

	unlock, err := e.lock(ctx, period.Daily, userID, date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	from, to := normalize.BufferWindow(date, loc)
	records, err := e.sessions.ListRecords(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for %s on %s: %w", userID, date, err)
	}
	sum := normalize.Day(records, date, loc)

	existing, err := e.store.GetDaily(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily aggregate: %w", err)
	}

	agg = &domain.DailyAggregate{
		UserID:            userID,
		Date:              date,
		TotalDuration:     sum.TotalDuration,
		BreakDuration:     sum.BreakDuration,
		CategoryDurations: sum.CategoryDurations,
		SessionCount:      sum.SessionCount,
		BreakCount:        sum.BreakCount,
		Timeline:          sum.Timeline,
		FlowScore:         sum.FlowStats.WeightedMean(),
		FlowStats:         sum.FlowStats,
		IsFinal:           e.final(date, period.Daily, loc, existing != nil && existing.IsFinal),
	}
	if err := e.store.UpsertDaily(ctx, agg); err != nil {
		return nil, fmt.Errorf("failed to upsert daily aggregate: %w", err)
	}

	e.logger.Debug("daily aggregate recomputed",
		"user_id", userID, "date", date.String(),
		"sessions", agg.SessionCount, "seconds", agg.TotalDuration, "final", agg.IsFinal)
	return agg, nil
}

func (e *Engine) recomputeWeekly(ctx context.Context, userID string, weekStart, weekEnd civil.Date, loc *time.Location) (agg *domain.WeeklyAggregate, err error) {
	started := time.Now()
	defer func() {
		e.record(ctx, period.Weekly, started, agg, err)
	}()

	unlock, err := e.lock(ctx, period.Weekly, userID, weekStart)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dailies, err := e.store.ListDaily(ctx, userID, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily aggregates: %w", err)
	}
	if len(dailies) == 0 {
		e.logger.Debug("no daily aggregates for week", "user_id", userID, "week_start", weekStart.String())
		return nil, nil
	}
	existing, err := e.store.GetWeekly(ctx, userID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to get weekly aggregate: %w", err)
	}

	t := sumDailies(dailies)
	breakdown := make(map[string]domain.DayBreakdown, 7)
	for _, d := range period.Days(weekStart, weekEnd) {
		breakdown[period.DayCode(d)] = domain.DayBreakdown{Categories: map[string]int64{}}
	}
	sessionTimes := []domain.SessionTime{}
	for _, d := range dailies {
		breakdown[period.DayCode(d.Date)] = domain.DayBreakdown{
			Total:      d.TotalDuration,
			Categories: copyCategories(d.CategoryDurations),
		}
		for _, entry := range d.Timeline {
			if entry.EndedAt == nil {
				continue
			}
			sessionTimes = append(sessionTimes, domain.SessionTime{
				StartedAt:       entry.StartedAt,
				EndedAt:         *entry.EndedAt,
				DurationSeconds: entry.DurationSeconds,
			})
		}
	}

	agg = &domain.WeeklyAggregate{
		UserID:            userID,
		WeekStart:         weekStart,
		WeekEnd:           weekEnd,
		TotalDuration:     t.total,
		BreakDuration:     t.breaks,
		CategoryDurations: t.categories,
		SessionCount:      t.sessions,
		BreakCount:        t.breakCount,
		DailyBreakdown:    breakdown,
		SessionTimes:      sessionTimes,
		FlowScore:         t.flow.WeightedMean(),
		FlowStats:         t.flow,
		IsFinal:           e.final(weekStart, period.Weekly, loc, existing != nil && existing.IsFinal),
	}
	if err := e.store.UpsertWeekly(ctx, agg); err != nil {
		return nil, fmt.Errorf("failed to upsert weekly aggregate: %w", err)
	}

	e.logger.Debug("weekly aggregate recomputed",
		"user_id", userID, "week_start", weekStart.String(),
		"sessions", agg.SessionCount, "seconds", agg.TotalDuration, "final", agg.IsFinal)
	return agg, nil
}

func (e *Engine) recomputeMonthly(ctx context.Context, userID string, monthStart, monthEnd civil.Date, loc *time.Location) (agg *domain.MonthlyAggregate, err error) {
	started := time.Now()
	defer func() {
		e.record(ctx, period.Monthly, started, agg, err)
	}()

	unlock, err := e.lock(ctx, period.Monthly, userID, monthStart)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dailies, err := e.store.ListDaily(ctx, userID, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily aggregates: %w", err)
	}
	if len(dailies) == 0 {
		e.logger.Debug("no daily aggregates for month", "user_id", userID, "month_start", monthStart.String())
		return nil, nil
	}
	existing, err := e.store.GetMonthly(ctx, userID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly aggregate: %w", err)
	}

	t := sumDailies(dailies)
	heatmap := make(map[string]float64, 31)
	for _, d := range period.Days(monthStart, monthEnd) {
		heatmap[d.String()] = 0
	}
	days := make([]domain.MonthDay, 0, len(dailies))
	for _, d := range dailies {
		hours := domain.Hours(d.TotalDuration)
		heatmap[d.Date.String()] = hours
		days = append(days, domain.MonthDay{
			Date:       d.Date,
			Hours:      hours,
			Categories: copyCategories(d.CategoryDurations),
		})
	}

	agg = &domain.MonthlyAggregate{
		UserID:            userID,
		MonthStart:        monthStart,
		MonthEnd:          monthEnd,
		TotalDuration:     t.total,
		BreakDuration:     t.breaks,
		CategoryDurations: t.categories,
		SessionCount:      t.sessions,
		BreakCount:        t.breakCount,
		DailyBreakdown:    days,
		Heatmap:           heatmap,
		FlowScore:         t.flow.WeightedMean(),
		FlowStats:         t.flow,
		IsFinal:           e.final(monthStart, period.Monthly, loc, existing != nil && existing.IsFinal),
	}
	if err := e.store.UpsertMonthly(ctx, agg); err != nil {
		return nil, fmt.Errorf("failed to upsert monthly aggregate: %w", err)
	}

	e.logger.Debug("monthly aggregate recomputed",
		"user_id", userID, "month_start", monthStart.String(),
		"sessions", agg.SessionCount, "seconds", agg.TotalDuration, "final", agg.IsFinal)
	return agg, nil
}

type totals struct {
	total      int64
	breaks     int64
	sessions   int64
	breakCount int64
	categories map[string]int64
	flow       domain.FlowStats
}

func sumDailies(dailies []*domain.DailyAggregate) totals {
	sort.Slice(dailies, func(i, j int) bool {
		return dailies[i].Date.Before(dailies[j].Date)
	})
	t := totals{categories: map[string]int64{}}
	for _, d := range dailies {
		t.total += d.TotalDuration
		t.breaks += d.BreakDuration
		t.sessions += d.SessionCount
		t.breakCount += d.BreakCount
		for name, secs := range d.CategoryDurations {
			t.categories[name] += secs
		}
		t.flow.Merge(d.FlowStats)
	}
	return t
}

func copyCategories(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// final decides is_final for the period of g containing start: the period is
// neither current nor in the future. A row that was already final stays final.
func (e *Engine) final(start civil.Date, g period.Granularity, loc *time.Location, wasFinal bool) bool {
	if wasFinal {
		return true
	}
	today := e.today(loc)
	return !e.calendar.MustIsCurrentPeriod(start, g, today) && start.Before(today)
}

func (e *Engine) today(loc *time.Location) civil.Date {
	return civil.DateOf(e.clock.Now().In(loc))
}

func (e *Engine) location(ctx context.Context, userID string) (*time.Location, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return e.tz.Location(user.Timezone), nil
}

func (e *Engine) lock(ctx context.Context, g period.Granularity, userID string, start civil.Date) (func(), error) {
	key := LockKey(g, userID, start)
	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return unlock, nil
}

// LockKey names the lock guarding one aggregate row.
func LockKey(g period.Granularity, userID string, start civil.Date) string {
	return fmt.Sprintf("studi:aggregate:%s:%s:%s", g, userID, start)
}

func (e *Engine) record(ctx context.Context, g period.Granularity, started time.Time, agg any, err error) {
	if e.metrics == nil {
		return
	}
	m := ports.RecomputeMetrics{Granularity: string(g), Duration: time.Since(started), Err: err}
	switch a := agg.(type) {
	case *domain.DailyAggregate:
		if a != nil {
			m.SessionCount, m.Final = a.SessionCount, a.IsFinal
		}
	case *domain.WeeklyAggregate:
		if a != nil {
			m.SessionCount, m.Final = a.SessionCount, a.IsFinal
		}
	case *domain.MonthlyAggregate:
		if a != nil {
			m.SessionCount, m.Final = a.SessionCount, a.IsFinal
		}
	}
	e.metrics.RecordRecompute(ctx, m)
}

func checkRange(start, end civil.Date) error {
	if end.Before(start) {
		return fmt.Errorf("%w: period end %s before start %s", domain.ErrInvalidInput, end, start)
	}
	return nil
}
