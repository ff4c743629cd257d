package tracking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/ports"
)

// store is an in-memory backing for the session, block, break and user ports.
type store struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions map[string]domain.StudySession
	blocks   []domain.CategoryBlock
	breaks   []domain.Break
}

func newStore() *store {
	return &store{users: map[string]*domain.User{}, sessions: map[string]domain.StudySession{}}
}

type fakeSessions struct{ *store }

func (f fakeSessions) Create(ctx context.Context, s *domain.StudySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = *s
	return nil
}

func (f fakeSessions) GetByID(ctx context.Context, id string) (*domain.StudySession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f fakeSessions) Update(ctx context.Context, s *domain.StudySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; !ok {
		return domain.ErrNotFound
	}
	f.sessions[s.ID] = *s
	return nil
}

func (f fakeSessions) GetRecord(ctx context.Context, id string) (*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	return &domain.SessionRecord{Session: &s, Intervals: f.intervals(id)}, nil
}

func (f fakeSessions) ListRecords(ctx context.Context, userID string, from, to time.Time) ([]domain.SessionRecord, error) {
	return nil, errors.New("not used")
}

func (f fakeSessions) CompletedSpan(ctx context.Context, userID string) (*time.Time, *time.Time, error) {
	return nil, nil, errors.New("not used")
}

func (s *store) intervals(sessionID string) []domain.Interval {
	var out []domain.Interval
	for _, b := range s.blocks {
		if b.SessionID == sessionID {
			out = append(out, b.Interval())
		}
	}
	for _, br := range s.breaks {
		if br.SessionID == sessionID {
			out = append(out, br.Interval())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

type fakeBlocks struct{ *store }

func (f fakeBlocks) Create(ctx context.Context, b *domain.CategoryBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, *b)
	return nil
}

func (f fakeBlocks) ListBySessionID(ctx context.Context, sessionID string) ([]*domain.CategoryBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.CategoryBlock
	for i := range f.blocks {
		if f.blocks[i].SessionID == sessionID {
			b := f.blocks[i]
			out = append(out, &b)
		}
	}
	return out, nil
}

type fakeBreaks struct{ *store }

func (f fakeBreaks) Create(ctx context.Context, br *domain.Break) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breaks = append(f.breaks, *br)
	return nil
}

func (f fakeBreaks) ListBySessionID(ctx context.Context, sessionID string) ([]*domain.Break, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Break
	for i := range f.breaks {
		if f.breaks[i].SessionID == sessionID {
			br := f.breaks[i]
			out = append(out, &br)
		}
	}
	return out, nil
}

type fakeUsers struct{ *store }

func (f fakeUsers) Create(ctx context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f fakeUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f fakeUsers) List(ctx context.Context) ([]*domain.User, error) {
	return nil, errors.New("not used")
}

func (f fakeUsers) ListWithCompletedSessions(ctx context.Context) ([]string, error) {
	return nil, errors.New("not used")
}

// fakeAggregator records refreshed session IDs.
type fakeAggregator struct {
	mu      sync.Mutex
	updated []string
	err     error
}

func (f *fakeAggregator) UpdateForSessionChange(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, sessionID)
	return f.err
}

type fakeMetrics struct {
	scores []int
}

func (m *fakeMetrics) RecordRecompute(ctx context.Context, r ports.RecomputeMetrics) {}

func (m *fakeMetrics) RecordFlowScore(ctx context.Context, score int, weakest string) {
	m.scores = append(m.scores, score)
}

func (m *fakeMetrics) Close(ctx context.Context) error { return nil }
