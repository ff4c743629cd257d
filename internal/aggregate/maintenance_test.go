package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/adapters/locallock"
	"github.com/emiliopalmerini/studi/internal/adapters/tz"
	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/period"
	"github.com/emiliopalmerini/studi/internal/ports"
)

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldDay := ports.PeriodKey{UserID: "u1", Start: date(2024, time.January, 10)}
	today := ports.PeriodKey{UserID: "u1", Start: date(2024, time.January, 15)}
	lastWeek := ports.PeriodKey{UserID: "u1", Start: date(2024, time.January, 7)}
	thisWeek := ports.PeriodKey{UserID: "u1", Start: date(2024, time.January, 14)}
	december := ports.PeriodKey{UserID: "u2", Start: date(2023, time.December, 1)}

	f.store.daily[oldDay] = &domain.DailyAggregate{UserID: "u1", Date: oldDay.Start}
	f.store.daily[today] = &domain.DailyAggregate{UserID: "u1", Date: today.Start}
	f.store.weekly[lastWeek] = &domain.WeeklyAggregate{UserID: "u1", WeekStart: lastWeek.Start}
	f.store.weekly[thisWeek] = &domain.WeeklyAggregate{UserID: "u1", WeekStart: thisWeek.Start}
	f.store.monthly[december] = &domain.MonthlyAggregate{UserID: "u2", MonthStart: december.Start}

	dry, err := f.engine.Finalize(ctx, true)
	if err != nil {
		t.Fatalf("Finalize(dry) error = %v", err)
	}
	want := map[period.Granularity]int64{period.Daily: 1, period.Weekly: 1, period.Monthly: 1}
	for g, n := range want {
		if dry.Closed[g] != n {
			t.Errorf("dry run Closed[%s] = %d, want %d", g, dry.Closed[g], n)
		}
	}
	if f.store.daily[oldDay].IsFinal {
		t.Fatal("dry run modified rows")
	}

	report, err := f.engine.Finalize(ctx, false)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	for g, n := range want {
		if report.Closed[g] != n {
			t.Errorf("Closed[%s] = %d, want %d", g, report.Closed[g], n)
		}
	}
	if !f.store.daily[oldDay].IsFinal || !f.store.weekly[lastWeek].IsFinal || !f.store.monthly[december].IsFinal {
		t.Error("closed periods not marked final")
	}
	if f.store.daily[today].IsFinal || f.store.weekly[thisWeek].IsFinal {
		t.Error("open periods marked final")
	}

	again, err := f.engine.Finalize(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	for g := range want {
		if again.Closed[g] != 0 {
			t.Errorf("second run Closed[%s] = %d, want 0", g, again.Closed[g])
		}
	}
}

func TestFinalize_UsesOwnerTimezone(t *testing.T) {
	f := newFixture(t)
	// 03:00 UTC on Jan 15 is still Jan 14 in New York.
	f.clock.Set(utc(time.January, 15, 3, 0))
	key := ports.PeriodKey{UserID: "u2", Start: date(2024, time.January, 14)}
	f.store.daily[key] = &domain.DailyAggregate{UserID: "u2", Date: key.Start}

	report, err := f.engine.Finalize(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Closed[period.Daily] != 0 || f.store.daily[key].IsFinal {
		t.Error("local today finalized before it ended")
	}
}

func TestBackfill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSession("a", "u1", utc(time.January, 3, 9, 0), 30, domain.SessionCompleted)
	f.addSession("b", "u1", utc(time.January, 4, 9, 0), 30, domain.SessionCompleted)
	f.addSession("b2", "u1", utc(time.January, 4, 15, 0), 30, domain.SessionCompleted)
	f.addSession("c", "u1", utc(time.January, 20, 9, 0), 30, domain.SessionCompleted)
	f.addSession("d", "u1", time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC), 30, domain.SessionCompleted)
	f.addSession("x", "u1", utc(time.January, 10, 9, 0), 30, domain.SessionCancelled)

	report, err := f.engine.Backfill(ctx, "u1")
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}

	want := BackfillReport{Days: 4, Weeks: 3, Months: 2}
	if report != want {
		t.Errorf("Backfill() = %+v, want %+v", report, want)
	}
	if d, _ := f.store.GetDaily(ctx, "u1", date(2024, time.January, 4)); d == nil || d.SessionCount != 2 {
		t.Errorf("Jan 4 daily = %+v", d)
	}
	if _, ok := f.store.daily[ports.PeriodKey{UserID: "u1", Start: date(2024, time.January, 10)}]; ok {
		t.Error("cancelled-only day backfilled")
	}
	if w, _ := f.store.GetWeekly(ctx, "u1", date(2023, time.December, 31)); w == nil || w.SessionCount != 3 {
		t.Errorf("first week = %+v", w)
	}
	if m, _ := f.store.GetMonthly(ctx, "u1", date(2024, time.January, 1)); m == nil || m.SessionCount != 4 {
		t.Errorf("January = %+v", m)
	}
}

func TestBackfill_NoSessions(t *testing.T) {
	f := newFixture(t)
	report, err := f.engine.Backfill(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if report != (BackfillReport{}) {
		t.Errorf("Backfill() = %+v, want zero", report)
	}
}

func TestBackfillAll(t *testing.T) {
	f := newFixture(t)
	f.addSession("a", "u1", utc(time.January, 3, 9, 0), 30, domain.SessionCompleted)
	f.addSession("b", "u2", utc(time.January, 3, 15, 0), 30, domain.SessionCompleted)

	report, err := f.engine.BackfillAll(context.Background(), 2)
	if err != nil {
		t.Fatalf("BackfillAll() error = %v", err)
	}
	if report.Days != 2 || report.Weeks != 2 || report.Months != 2 {
		t.Errorf("BackfillAll() = %+v", report)
	}
}

func TestBackfillAll_PropagatesErrors(t *testing.T) {
	f := newFixture(t)
	f.addSession("a", "u1", utc(time.January, 3, 9, 0), 30, domain.SessionCompleted)
	f.log.failOn("UpsertDaily", errBoom)

	if _, err := f.engine.BackfillAll(context.Background(), 0); !errors.Is(err, errBoom) {
		t.Errorf("BackfillAll() error = %v, want %v", err, errBoom)
	}
}

func TestUpdatePeriodsForDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSession("a", "u1", utc(time.January, 15, 9, 0), 30, domain.SessionCompleted)
	f.addSession("b", "u2", utc(time.January, 16, 15, 0), 45, domain.SessionCompleted)
	for _, u := range []struct {
		id string
		d  int
	}{{"u1", 15}, {"u2", 16}} {
		if _, err := f.engine.RecomputeDaily(ctx, u.id, date(2024, time.January, u.d)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := f.engine.UpdatePeriodsForDate(ctx, date(2024, time.January, 17), period.Weekly, 0)
	if err != nil {
		t.Fatalf("UpdatePeriodsForDate(weekly) error = %v", err)
	}
	if n != 2 {
		t.Errorf("refreshed %d users, want 2", n)
	}
	if w, _ := f.store.GetWeekly(ctx, "u2", date(2024, time.January, 14)); w == nil || w.TotalDuration != 45*60 {
		t.Errorf("u2 weekly = %+v", w)
	}

	n, err = f.engine.UpdatePeriodsForDate(ctx, date(2024, time.January, 2), period.Monthly, 1)
	if err != nil {
		t.Fatalf("UpdatePeriodsForDate(monthly) error = %v", err)
	}
	if n != 2 {
		t.Errorf("refreshed %d users, want 2", n)
	}
	if m, _ := f.store.GetMonthly(ctx, "u1", date(2024, time.January, 1)); m == nil || m.TotalDuration != 30*60 {
		t.Errorf("u1 monthly = %+v", m)
	}

	if _, err := f.engine.UpdatePeriodsForDate(ctx, date(2024, time.January, 2), period.Daily, 1); !errors.Is(err, domain.ErrInvalidGranularity) {
		t.Errorf("daily error = %v, want ErrInvalidGranularity", err)
	}
}

// withCalendar returns an engine over the fixture's stores keyed by cal.
func (f *fixture) withCalendar(cal period.Calendar) *Engine {
	return NewEngine(Deps{
		Sessions: f.sessions,
		Users:    f.users,
		Store:    f.store,
		Locker:   locallock.New(),
		Timezone: tz.NewResolver(nil),
		Clock:    f.clock,
		Calendar: cal,
		Metrics:  f.metrics,
	})
}

func TestRebuildWeeks_AfterWeekStartChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSession("wed", "u1", utc(time.January, 3, 9, 0), 60, domain.SessionCompleted)
	f.addSession("mon", "u1", utc(time.January, 8, 9, 0), 60, domain.SessionCompleted)
	f.addSession("sun", "u1", utc(time.January, 14, 9, 0), 60, domain.SessionCompleted)
	other := ports.PeriodKey{UserID: "u2", Start: date(2024, time.January, 7)}
	f.store.weekly[other] = &domain.WeeklyAggregate{UserID: "u2", WeekStart: other.Start}

	if _, err := f.engine.Backfill(ctx, "u1"); err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}

	monday := f.withCalendar(period.NewCalendar(time.Monday))
	report, err := monday.RebuildWeeks(ctx, "u1")
	if err != nil {
		t.Fatalf("RebuildWeeks() error = %v", err)
	}
	if report.Deleted != 3 || report.Weeks != 2 {
		t.Errorf("report = %+v, want 3 deleted / 2 weeks", report)
	}

	var starts []civil.Date
	for k, w := range f.store.weekly {
		if k.UserID != "u1" {
			continue
		}
		starts = append(starts, k.Start)
		if period.Weekday(k.Start) != time.Monday {
			t.Errorf("week %s does not start on Monday", k.Start)
		}
		if k.Start == date(2024, time.January, 8) && w.TotalDuration != 2*3600 {
			t.Errorf("week of Jan 8 TotalDuration = %d, want 7200", w.TotalDuration)
		}
	}
	if len(starts) != 2 {
		t.Errorf("u1 has %d weekly rows, want 2: %v", len(starts), starts)
	}
	if _, ok := f.store.weekly[other]; !ok {
		t.Error("another user's weekly row was deleted")
	}
}

func TestRebuildWeeks_NoSessionsOnlyDeletes(t *testing.T) {
	f := newFixture(t)
	stale := ports.PeriodKey{UserID: "u1", Start: date(2024, time.January, 7)}
	f.store.weekly[stale] = &domain.WeeklyAggregate{UserID: "u1", WeekStart: stale.Start}

	report, err := f.engine.RebuildWeeks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RebuildWeeks() error = %v", err)
	}
	if report.Deleted != 1 || report.Weeks != 0 || len(f.store.weekly) != 0 {
		t.Errorf("report = %+v, rows left = %d", report, len(f.store.weekly))
	}
}

func TestRebuildWeeksAll_PropagatesErrors(t *testing.T) {
	f := newFixture(t)
	f.log.failOn("DeleteWeekly", errBoom)

	if _, err := f.engine.RebuildWeeksAll(context.Background(), 2); !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
}
