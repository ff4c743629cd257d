package ports

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/domain"
)

// PeriodKey identifies one aggregate row.
type PeriodKey struct {
	UserID string
	Start  civil.Date
}

// AggregateRepository persists daily, weekly and monthly summaries. Upserts
// overwrite the whole row keyed by its natural key; is_final never goes back
// to false.
type AggregateRepository interface {
	UpsertDaily(ctx context.Context, agg *domain.DailyAggregate) error
	GetDaily(ctx context.Context, userID string, date civil.Date) (*domain.DailyAggregate, error)
	ListDaily(ctx context.Context, userID string, from, to civil.Date) ([]*domain.DailyAggregate, error)

	UpsertWeekly(ctx context.Context, agg *domain.WeeklyAggregate) error
	GetWeekly(ctx context.Context, userID string, weekStart civil.Date) (*domain.WeeklyAggregate, error)
	// DeleteWeekly removes every weekly row of userID and returns how many went.
	DeleteWeekly(ctx context.Context, userID string) (int64, error)

	UpsertMonthly(ctx context.Context, agg *domain.MonthlyAggregate) error
	GetMonthly(ctx context.Context, userID string, monthStart civil.Date) (*domain.MonthlyAggregate, error)

	// ListUsersWithDaily returns users owning a daily row in [from, to].
	ListUsersWithDaily(ctx context.Context, from, to civil.Date) ([]string, error)
	// ListNonFinal returns the keys of rows of the given table not yet marked final.
	ListNonFinal(ctx context.Context, granularity string) ([]PeriodKey, error)
	// MarkFinal flags the given rows as final.
	MarkFinal(ctx context.Context, granularity string, keys []PeriodKey) (int64, error)
}
