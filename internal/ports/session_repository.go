package ports

import (
	"context"
	"time"

	"github.com/emiliopalmerini/studi/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.StudySession) error
	GetByID(ctx context.Context, id string) (*domain.StudySession, error)
	Update(ctx context.Context, session *domain.StudySession) error
	// ListRecords returns the completed sessions of a user whose start lies in
	// [from, to), each with its blocks and breaks normalized into intervals.
	// Sessions and intervals are read in one snapshot.
	ListRecords(ctx context.Context, userID string, from, to time.Time) ([]domain.SessionRecord, error)
	// GetRecord returns one session with its intervals.
	GetRecord(ctx context.Context, id string) (*domain.SessionRecord, error)
	// CompletedSpan returns the first and last start instants of a user's completed sessions.
	CompletedSpan(ctx context.Context, userID string) (first, last *time.Time, err error)
}

type CategoryBlockRepository interface {
	Create(ctx context.Context, block *domain.CategoryBlock) error
	ListBySessionID(ctx context.Context, sessionID string) ([]*domain.CategoryBlock, error)
}

type BreakRepository interface {
	Create(ctx context.Context, br *domain.Break) error
	ListBySessionID(ctx context.Context, sessionID string) ([]*domain.Break, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	// ListWithCompletedSessions returns the IDs of users owning at least one completed session.
	ListWithCompletedSessions(ctx context.Context) ([]string, error)
}
