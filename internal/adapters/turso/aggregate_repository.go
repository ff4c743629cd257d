package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/ports"
	"github.com/emiliopalmerini/studi/internal/util"
)

type AggregateRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAggregateRepository(db *sql.DB) *AggregateRepository {
	return &AggregateRepository{db: db, now: time.Now}
}

// aggregateTables maps a granularity to its table and period key column.
var aggregateTables = map[string]struct{ table, key string }{
	"daily":   {"daily_aggregates", "date"},
	"weekly":  {"weekly_aggregates", "week_start"},
	"monthly": {"monthly_aggregates", "month_start"},
}

const dailyColumns = `user_id, date, total_duration, break_duration, category_durations, session_count,
	break_count, timeline, flow_score, flow_stats, is_final`

func (r *AggregateRepository) UpsertDaily(ctx context.Context, a *domain.DailyAggregate) error {
	cats, timeline, stats, err := marshalAll(nonNilMap(a.CategoryDurations), nonNilSlice(a.Timeline), a.FlowStats)
	if err != nil {
		return fmt.Errorf("failed to encode daily aggregate: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_aggregates (`+dailyColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			total_duration = excluded.total_duration,
			break_duration = excluded.break_duration,
			category_durations = excluded.category_durations,
			session_count = excluded.session_count,
			break_count = excluded.break_count,
			timeline = excluded.timeline,
			flow_score = excluded.flow_score,
			flow_stats = excluded.flow_stats,
			is_final = MAX(daily_aggregates.is_final, excluded.is_final),
			updated_at = excluded.updated_at`,
		a.UserID, a.Date.String(), a.TotalDuration, a.BreakDuration, cats, a.SessionCount,
		a.BreakCount, timeline, util.NullFloat64(a.FlowScore), stats, util.BoolToInt64(a.IsFinal),
		util.FormatTimestamp(r.now()))
	if err != nil {
		return fmt.Errorf("failed to upsert daily aggregate: %w", err)
	}
	return nil
}

func (r *AggregateRepository) GetDaily(ctx context.Context, userID string, date civil.Date) (*domain.DailyAggregate, error) {
	return withRetry(ctx, func() (*domain.DailyAggregate, error) {
		row := r.db.QueryRowContext(ctx, `SELECT `+dailyColumns+` FROM daily_aggregates WHERE user_id = ? AND date = ?`,
			userID, date.String())
		a, err := scanDaily(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get daily aggregate: %w", err)
		}
		return a, nil
	})
}

func (r *AggregateRepository) ListDaily(ctx context.Context, userID string, from, to civil.Date) ([]*domain.DailyAggregate, error) {
	return withRetry(ctx, func() ([]*domain.DailyAggregate, error) {
		rows, err := r.db.QueryContext(ctx, `
			SELECT `+dailyColumns+` FROM daily_aggregates
			WHERE user_id = ? AND date >= ? AND date <= ?
			ORDER BY date`,
			userID, from.String(), to.String())
		if err != nil {
			return nil, fmt.Errorf("failed to list daily aggregates: %w", err)
		}
		defer rows.Close()

		var out []*domain.DailyAggregate
		for rows.Next() {
			a, err := scanDaily(rows)
			if err != nil {
				return nil, fmt.Errorf("failed to scan daily aggregate: %w", err)
			}
			out = append(out, a)
		}
		return out, rows.Err()
	})
}

const weeklyColumns = `user_id, week_start, week_end, total_duration, break_duration, category_durations,
	session_count, break_count, daily_breakdown, session_times, flow_score, flow_stats, is_final`

func (r *AggregateRepository) UpsertWeekly(ctx context.Context, a *domain.WeeklyAggregate) error {
	cats, breakdown, times, err := marshalAll(nonNilMap(a.CategoryDurations), nonNilMap(a.DailyBreakdown), nonNilSlice(a.SessionTimes))
	if err != nil {
		return fmt.Errorf("failed to encode weekly aggregate: %w", err)
	}
	stats, err := json.Marshal(a.FlowStats)
	if err != nil {
		return fmt.Errorf("failed to encode weekly aggregate: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO weekly_aggregates (`+weeklyColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, week_start) DO UPDATE SET
			week_end = excluded.week_end,
			total_duration = excluded.total_duration,
			break_duration = excluded.break_duration,
			category_durations = excluded.category_durations,
			session_count = excluded.session_count,
			break_count = excluded.break_count,
			daily_breakdown = excluded.daily_breakdown,
			session_times = excluded.session_times,
			flow_score = excluded.flow_score,
			flow_stats = excluded.flow_stats,
			is_final = MAX(weekly_aggregates.is_final, excluded.is_final),
			updated_at = excluded.updated_at`,
		a.UserID, a.WeekStart.String(), a.WeekEnd.String(), a.TotalDuration, a.BreakDuration, cats,
		a.SessionCount, a.BreakCount, breakdown, times, util.NullFloat64(a.FlowScore), string(stats),
		util.BoolToInt64(a.IsFinal), util.FormatTimestamp(r.now()))
	if err != nil {
		return fmt.Errorf("failed to upsert weekly aggregate: %w", err)
	}
	return nil
}

func (r *AggregateRepository) GetWeekly(ctx context.Context, userID string, weekStart civil.Date) (*domain.WeeklyAggregate, error) {
	return withRetry(ctx, func() (*domain.WeeklyAggregate, error) {
		var (
			a                             domain.WeeklyAggregate
			start, end                    string
			cats, breakdown, times, stats string
			score                         sql.NullFloat64
			final                         int64
		)
		err := r.db.QueryRowContext(ctx, `SELECT `+weeklyColumns+` FROM weekly_aggregates WHERE user_id = ? AND week_start = ?`,
			userID, weekStart.String()).Scan(
			&a.UserID, &start, &end, &a.TotalDuration, &a.BreakDuration, &cats,
			&a.SessionCount, &a.BreakCount, &breakdown, &times, &score, &stats, &final)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get weekly aggregate: %w", err)
		}
		if a.WeekStart, err = civil.ParseDate(start); err != nil {
			return nil, err
		}
		if a.WeekEnd, err = civil.ParseDate(end); err != nil {
			return nil, err
		}
		if err := unmarshalAll(
			cats, &a.CategoryDurations,
			breakdown, &a.DailyBreakdown,
			times, &a.SessionTimes,
			stats, &a.FlowStats,
		); err != nil {
			return nil, fmt.Errorf("failed to decode weekly aggregate: %w", err)
		}
		a.FlowScore = util.NullFloat64ToPtr(score)
		a.IsFinal = final == 1
		return &a, nil
	})
}

// DeleteWeekly drops all weekly rows of userID, used when the week start changes.
func (r *AggregateRepository) DeleteWeekly(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM weekly_aggregates WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete weekly aggregates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete weekly aggregates: %w", err)
	}
	return n, nil
}

const monthlyColumns = `user_id, month_start, month_end, total_duration, break_duration, category_durations,
	session_count, break_count, daily_breakdown, heatmap, flow_score, flow_stats, is_final`

func (r *AggregateRepository) UpsertMonthly(ctx context.Context, a *domain.MonthlyAggregate) error {
	cats, days, heatmap, err := marshalAll(nonNilMap(a.CategoryDurations), nonNilSlice(a.DailyBreakdown), a.Heatmap)
	if err != nil {
		return fmt.Errorf("failed to encode monthly aggregate: %w", err)
	}
	stats, err := json.Marshal(a.FlowStats)
	if err != nil {
		return fmt.Errorf("failed to encode monthly aggregate: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO monthly_aggregates (`+monthlyColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, month_start) DO UPDATE SET
			month_end = excluded.month_end,
			total_duration = excluded.total_duration,
			break_duration = excluded.break_duration,
			category_durations = excluded.category_durations,
			session_count = excluded.session_count,
			break_count = excluded.break_count,
			daily_breakdown = excluded.daily_breakdown,
			heatmap = excluded.heatmap,
			flow_score = excluded.flow_score,
			flow_stats = excluded.flow_stats,
			is_final = MAX(monthly_aggregates.is_final, excluded.is_final),
			updated_at = excluded.updated_at`,
		a.UserID, a.MonthStart.String(), a.MonthEnd.String(), a.TotalDuration, a.BreakDuration, cats,
		a.SessionCount, a.BreakCount, days, heatmap, util.NullFloat64(a.FlowScore), string(stats),
		util.BoolToInt64(a.IsFinal), util.FormatTimestamp(r.now()))
	if err != nil {
		return fmt.Errorf("failed to upsert monthly aggregate: %w", err)
	}
	return nil
}

func (r *AggregateRepository) GetMonthly(ctx context.Context, userID string, monthStart civil.Date) (*domain.MonthlyAggregate, error) {
	return withRetry(ctx, func() (*domain.MonthlyAggregate, error) {
		var (
			a                          domain.MonthlyAggregate
			start, end                 string
			cats, days, heatmap, stats string
			score                      sql.NullFloat64
			final                      int64
		)
		err := r.db.QueryRowContext(ctx, `SELECT `+monthlyColumns+` FROM monthly_aggregates WHERE user_id = ? AND month_start = ?`,
			userID, monthStart.String()).Scan(
			&a.UserID, &start, &end, &a.TotalDuration, &a.BreakDuration, &cats,
			&a.SessionCount, &a.BreakCount, &days, &heatmap, &score, &stats, &final)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get monthly aggregate: %w", err)
		}
		if a.MonthStart, err = civil.ParseDate(start); err != nil {
			return nil, err
		}
		if a.MonthEnd, err = civil.ParseDate(end); err != nil {
			return nil, err
		}
		if err := unmarshalAll(
			cats, &a.CategoryDurations,
			days, &a.DailyBreakdown,
			heatmap, &a.Heatmap,
			stats, &a.FlowStats,
		); err != nil {
			return nil, fmt.Errorf("failed to decode monthly aggregate: %w", err)
		}
		a.FlowScore = util.NullFloat64ToPtr(score)
		a.IsFinal = final == 1
		return &a, nil
	})
}

func (r *AggregateRepository) ListUsersWithDaily(ctx context.Context, from, to civil.Date) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM daily_aggregates
		WHERE date >= ? AND date <= ?
		ORDER BY user_id`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list users with daily aggregates: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (r *AggregateRepository) ListNonFinal(ctx context.Context, granularity string) ([]ports.PeriodKey, error) {
	t, ok := aggregateTables[granularity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, granularity)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, `+t.key+` FROM `+t.table+` WHERE is_final = 0 ORDER BY `+t.key+`, user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-final %s aggregates: %w", granularity, err)
	}
	defer rows.Close()

	var keys []ports.PeriodKey
	for rows.Next() {
		var (
			k     ports.PeriodKey
			start string
		)
		if err := rows.Scan(&k.UserID, &start); err != nil {
			return nil, err
		}
		if k.Start, err = civil.ParseDate(start); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *AggregateRepository) MarkFinal(ctx context.Context, granularity string, keys []ports.PeriodKey) (int64, error) {
	t, ok := aggregateTables[granularity]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, granularity)
	}
	var total int64
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		now := util.FormatTimestamp(r.now())
		for _, k := range keys {
			res, err := tx.ExecContext(ctx,
				`UPDATE `+t.table+` SET is_final = 1, updated_at = ? WHERE user_id = ? AND `+t.key+` = ? AND is_final = 0`,
				now, k.UserID, k.Start.String())
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark %s aggregates final: %w", granularity, err)
	}
	return total, nil
}

func scanDaily(sc scanner) (*domain.DailyAggregate, error) {
	var (
		a                     domain.DailyAggregate
		date                  string
		cats, timeline, stats string
		score                 sql.NullFloat64
		final                 int64
	)
	if err := sc.Scan(&a.UserID, &date, &a.TotalDuration, &a.BreakDuration, &cats, &a.SessionCount,
		&a.BreakCount, &timeline, &score, &stats, &final); err != nil {
		return nil, err
	}
	d, err := civil.ParseDate(date)
	if err != nil {
		return nil, err
	}
	a.Date = d
	if err := unmarshalAll(
		cats, &a.CategoryDurations,
		timeline, &a.Timeline,
		stats, &a.FlowStats,
	); err != nil {
		return nil, err
	}
	a.FlowScore = util.NullFloat64ToPtr(score)
	a.IsFinal = final == 1
	return &a, nil
}

// marshalAll encodes three JSON columns.
func marshalAll(a, b, c any) (string, string, string, error) {
	var out [3]string
	for i, v := range []any{a, b, c} {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", "", "", err
		}
		out[i] = string(raw)
	}
	return out[0], out[1], out[2], nil
}

// unmarshalAll decodes pairs of (column, destination).
func unmarshalAll(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		raw, _ := pairs[i].(string)
		if raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
