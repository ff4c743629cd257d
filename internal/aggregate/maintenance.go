package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/normalize"
	"github.com/emiliopalmerini/studi/internal/period"
	"github.com/emiliopalmerini/studi/internal/ports"
)

// DefaultConcurrency bounds per-user fan-out in sweeps.
const DefaultConcurrency = 4

// FinalizeReport counts, per granularity, the rows whose period has closed.
type FinalizeReport struct {
	DryRun bool
	Closed map[period.Granularity]int64
}

// Finalize marks every non-final row whose period ended before the owner's
// local today as final. With dryRun it only counts them.
func (e *Engine) Finalize(ctx context.Context, dryRun bool) (FinalizeReport, error) {
	report := FinalizeReport{DryRun: dryRun, Closed: map[period.Granularity]int64{}}
	locs := map[string]*time.Location{}

	for _, g := range period.Granularities {
		keys, err := e.store.ListNonFinal(ctx, string(g))
		if err != nil {
			return report, fmt.Errorf("failed to list non-final %s aggregates: %w", g, err)
		}

		var closed []ports.PeriodKey
		for _, k := range keys {
			loc, ok := locs[k.UserID]
			if !ok {
				loc, err = e.location(ctx, k.UserID)
				if err != nil {
					return report, err
				}
				locs[k.UserID] = loc
			}
			_, end, err := e.calendar.Bounds(k.Start, g)
			if err != nil {
				return report, err
			}
			if end.Before(e.today(loc)) {
				closed = append(closed, k)
			}
		}

		if dryRun || len(closed) == 0 {
			report.Closed[g] = int64(len(closed))
			continue
		}
		n, err := e.store.MarkFinal(ctx, string(g), closed)
		if err != nil {
			return report, fmt.Errorf("failed to finalize %s aggregates: %w", g, err)
		}
		report.Closed[g] = n
		e.logger.Info("finalized aggregates", "granularity", string(g), "rows", n)
	}
	return report, nil
}

// BackfillReport counts the rows rebuilt by a backfill.
type BackfillReport struct {
	Days   int
	Weeks  int
	Months int
}

func (r *BackfillReport) add(o BackfillReport) {
	r.Days += o.Days
	r.Weeks += o.Weeks
	r.Months += o.Months
}

// Backfill rebuilds every day, week and month in which userID has completed sessions.
func (e *Engine) Backfill(ctx context.Context, userID string) (BackfillReport, error) {
	var report BackfillReport

	first, last, err := e.sessions.CompletedSpan(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("failed to get session span for %s: %w", userID, err)
	}
	if first == nil || last == nil {
		return report, nil
	}
	loc, err := e.location(ctx, userID)
	if err != nil {
		return report, err
	}

	records, err := e.sessions.ListRecords(ctx, userID, *first, last.Add(time.Second))
	if err != nil {
		return report, fmt.Errorf("failed to list sessions for %s: %w", userID, err)
	}

	var (
		dates  []civil.Date
		seen   = map[civil.Date]bool{}
		weeks  []civil.Date
		months []civil.Date
		seenW  = map[civil.Date]bool{}
		seenM  = map[civil.Date]bool{}
	)
	for _, rec := range records {
		if !normalize.Retained(rec.Session) {
			continue
		}
		d := normalize.LocalDate(rec.Session.StartedAt, loc)
		if seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}

	for _, d := range dates {
		if _, err := e.recomputeDaily(ctx, userID, d, loc); err != nil {
			return report, err
		}
		report.Days++
		if ws, _ := e.calendar.WeekBoundaries(d); !seenW[ws] {
			seenW[ws] = true
			weeks = append(weeks, ws)
		}
		if ms, _ := period.MonthBoundaries(d); !seenM[ms] {
			seenM[ms] = true
			months = append(months, ms)
		}
	}
	for _, ws := range weeks {
		_, we := e.calendar.WeekBoundaries(ws)
		if _, err := e.recomputeWeekly(ctx, userID, ws, we, loc); err != nil {
			return report, err
		}
		report.Weeks++
	}
	for _, ms := range months {
		_, me := period.MonthBoundaries(ms)
		if _, err := e.recomputeMonthly(ctx, userID, ms, me, loc); err != nil {
			return report, err
		}
		report.Months++
	}

	e.logger.Info("backfill complete", "user_id", userID, "days", report.Days, "weeks", report.Weeks, "months", report.Months)
	return report, nil
}

// BackfillAll backfills every user owning completed sessions, at most
// concurrency users at a time.
func (e *Engine) BackfillAll(ctx context.Context, concurrency int) (BackfillReport, error) {
	var total BackfillReport
	users, err := e.users.ListWithCompletedSessions(ctx)
	if err != nil {
		return total, fmt.Errorf("failed to list users: %w", err)
	}

	var mu sync.Mutex
	err = e.forEachUser(ctx, users, concurrency, func(ctx context.Context, userID string) error {
		r, err := e.Backfill(ctx, userID)
		if err != nil {
			return err
		}
		mu.Lock()
		total.add(r)
		mu.Unlock()
		return nil
	})
	return total, err
}

// RebuildReport counts the weekly rows dropped and written by RebuildWeeks.
type RebuildReport struct {
	Deleted int64
	Weeks   int
}

// RebuildWeeks deletes every weekly row of userID and rebuilds them from the
// daily rows under the engine's current week start. Run it after the week
// start changes, otherwise rows keyed by the old convention linger.
func (e *Engine) RebuildWeeks(ctx context.Context, userID string) (RebuildReport, error) {
	var report RebuildReport

	deleted, err := e.store.DeleteWeekly(ctx, userID)
	if err != nil {
		return report, err
	}
	report.Deleted = deleted

	first, last, err := e.sessions.CompletedSpan(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("failed to get session span for %s: %w", userID, err)
	}
	if first == nil || last == nil {
		return report, nil
	}
	loc, err := e.location(ctx, userID)
	if err != nil {
		return report, err
	}

	from, _ := e.calendar.WeekBoundaries(normalize.LocalDate(*first, loc))
	to := normalize.LocalDate(*last, loc)
	for ws := from; !ws.After(to); ws = ws.AddDays(7) {
		_, we := e.calendar.WeekBoundaries(ws)
		agg, err := e.recomputeWeekly(ctx, userID, ws, we, loc)
		if err != nil {
			return report, err
		}
		if agg != nil {
			report.Weeks++
		}
	}

	e.logger.Info("weekly aggregates rebuilt", "user_id", userID,
		"week_start", e.calendar.WeekStart.String(), "deleted", report.Deleted, "weeks", report.Weeks)
	return report, nil
}

// RebuildWeeksAll runs RebuildWeeks for every user, at most concurrency at a time.
func (e *Engine) RebuildWeeksAll(ctx context.Context, concurrency int) (RebuildReport, error) {
	var total RebuildReport
	users, err := e.users.List(ctx)
	if err != nil {
		return total, fmt.Errorf("failed to list users: %w", err)
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	var mu sync.Mutex
	err = e.forEachUser(ctx, ids, concurrency, func(ctx context.Context, userID string) error {
		r, err := e.RebuildWeeks(ctx, userID)
		if err != nil {
			return err
		}
		mu.Lock()
		total.Deleted += r.Deleted
		total.Weeks += r.Weeks
		mu.Unlock()
		return nil
	})
	return total, err
}

// UpdatePeriodsForDate recomputes the weekly or monthly row containing date
// for every user with daily rows in that period. It returns the number of
// users refreshed.
func (e *Engine) UpdatePeriodsForDate(ctx context.Context, date civil.Date, g period.Granularity, concurrency int) (int, error) {
	if g != period.Weekly && g != period.Monthly {
		return 0, fmt.Errorf("%w: %q cannot be rebuilt from daily rows", domain.ErrInvalidGranularity, g)
	}
	start, end, err := e.calendar.Bounds(date, g)
	if err != nil {
		return 0, err
	}
	users, err := e.store.ListUsersWithDaily(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to list users with daily aggregates: %w", err)
	}

	err = e.forEachUser(ctx, users, concurrency, func(ctx context.Context, userID string) error {
		var err error
		if g == period.Weekly {
			_, err = e.RecomputeWeekly(ctx, userID, start, end)
		} else {
			_, err = e.RecomputeMonthly(ctx, userID, start, end)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func (e *Engine) forEachUser(ctx context.Context, users []string, concurrency int, fn func(context.Context, string) error) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			return fn(gctx, userID)
		})
	}
	return g.Wait()
}
