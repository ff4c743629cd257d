package aggregate

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/ports"
)

// callLog records the storage calls made by the engine, in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (c *callLog) hit(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	return c.errs[name]
}

func (c *callLog) failOn(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errs == nil {
		c.errs = map[string]error{}
	}
	c.errs[name] = err
}

func (c *callLog) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == name {
			n++
		}
	}
	return n
}

func (c *callLog) filtered(names ...string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := map[string]bool{}
	for _, n := range names {
		keep[n] = true
	}
	var out []string
	for _, call := range c.calls {
		if keep[call] {
			out = append(out, call)
		}
	}
	return out
}

type memSessions struct {
	log     *callLog
	mu      sync.Mutex
	records map[string]domain.SessionRecord
}

func (m *memSessions) put(rec domain.SessionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Session.ID] = rec
}

func (m *memSessions) Create(ctx context.Context, s *domain.StudySession) error {
	m.put(domain.SessionRecord{Session: s})
	return nil
}

func (m *memSessions) GetByID(ctx context.Context, id string) (*domain.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return rec.Session, nil
}

func (m *memSessions) Update(ctx context.Context, s *domain.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[s.ID]
	rec.Session = s
	m.records[s.ID] = rec
	return nil
}

func (m *memSessions) ListRecords(ctx context.Context, userID string, from, to time.Time) ([]domain.SessionRecord, error) {
	if err := m.log.hit("ListRecords"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SessionRecord
	for _, rec := range m.records {
		s := rec.Session
		if s.UserID != userID || s.Status != domain.SessionCompleted {
			continue
		}
		if s.StartedAt.Before(from) || !s.StartedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session.StartedAt.Before(out[j].Session.StartedAt) })
	return out, nil
}

func (m *memSessions) GetRecord(ctx context.Context, id string) (*domain.SessionRecord, error) {
	if err := m.log.hit("GetRecord"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memSessions) CompletedSpan(ctx context.Context, userID string) (*time.Time, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first, last *time.Time
	for _, rec := range m.records {
		s := rec.Session
		if s.UserID != userID || s.Status != domain.SessionCompleted {
			continue
		}
		start := s.StartedAt
		if first == nil || start.Before(*first) {
			first = &start
		}
		if last == nil || start.After(*last) {
			last = &start
		}
	}
	return first, last, nil
}

type memUsers struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions *memSessions
}

func (m *memUsers) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memUsers) List(ctx context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memUsers) ListWithCompletedSessions(ctx context.Context) ([]string, error) {
	m.sessions.mu.Lock()
	defer m.sessions.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, rec := range m.sessions.records {
		if rec.Session.Status == domain.SessionCompleted && !seen[rec.Session.UserID] {
			seen[rec.Session.UserID] = true
			out = append(out, rec.Session.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memAggregates struct {
	log     *callLog
	mu      sync.Mutex
	daily   map[ports.PeriodKey]*domain.DailyAggregate
	weekly  map[ports.PeriodKey]*domain.WeeklyAggregate
	monthly map[ports.PeriodKey]*domain.MonthlyAggregate
}

func newMemAggregates(log *callLog) *memAggregates {
	return &memAggregates{
		log:     log,
		daily:   map[ports.PeriodKey]*domain.DailyAggregate{},
		weekly:  map[ports.PeriodKey]*domain.WeeklyAggregate{},
		monthly: map[ports.PeriodKey]*domain.MonthlyAggregate{},
	}
}

func (m *memAggregates) UpsertDaily(ctx context.Context, agg *domain.DailyAggregate) error {
	if err := m.log.hit("UpsertDaily"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[ports.PeriodKey{UserID: agg.UserID, Start: agg.Date}] = agg
	return nil
}

func (m *memAggregates) GetDaily(ctx context.Context, userID string, date civil.Date) (*domain.DailyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.daily[ports.PeriodKey{UserID: userID, Start: date}], nil
}

func (m *memAggregates) ListDaily(ctx context.Context, userID string, from, to civil.Date) ([]*domain.DailyAggregate, error) {
	if err := m.log.hit("ListDaily"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DailyAggregate
	for k, d := range m.daily {
		if k.UserID == userID && !k.Start.Before(from) && !k.Start.After(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memAggregates) UpsertWeekly(ctx context.Context, agg *domain.WeeklyAggregate) error {
	if err := m.log.hit("UpsertWeekly"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weekly[ports.PeriodKey{UserID: agg.UserID, Start: agg.WeekStart}] = agg
	return nil
}

func (m *memAggregates) GetWeekly(ctx context.Context, userID string, weekStart civil.Date) (*domain.WeeklyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weekly[ports.PeriodKey{UserID: userID, Start: weekStart}], nil
}

func (m *memAggregates) DeleteWeekly(ctx context.Context, userID string) (int64, error) {
	if err := m.log.hit("DeleteWeekly"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.weekly {
		if k.UserID == userID {
			delete(m.weekly, k)
			n++
		}
	}
	return n, nil
}

func (m *memAggregates) UpsertMonthly(ctx context.Context, agg *domain.MonthlyAggregate) error {
	if err := m.log.hit("UpsertMonthly"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monthly[ports.PeriodKey{UserID: agg.UserID, Start: agg.MonthStart}] = agg
	return nil
}

func (m *memAggregates) GetMonthly(ctx context.Context, userID string, monthStart civil.Date) (*domain.MonthlyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monthly[ports.PeriodKey{UserID: userID, Start: monthStart}], nil
}

func (m *memAggregates) ListUsersWithDaily(ctx context.Context, from, to civil.Date) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for k := range m.daily {
		if !k.Start.Before(from) && !k.Start.After(to) && !seen[k.UserID] {
			seen[k.UserID] = true
			out = append(out, k.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memAggregates) ListNonFinal(ctx context.Context, granularity string) ([]ports.PeriodKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ports.PeriodKey
	switch granularity {
	case "daily":
		for k, v := range m.daily {
			if !v.IsFinal {
				out = append(out, k)
			}
		}
	case "weekly":
		for k, v := range m.weekly {
			if !v.IsFinal {
				out = append(out, k)
			}
		}
	case "monthly":
		for k, v := range m.monthly {
			if !v.IsFinal {
				out = append(out, k)
			}
		}
	}
	return out, nil
}

func (m *memAggregates) MarkFinal(ctx context.Context, granularity string, keys []ports.PeriodKey) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		switch granularity {
		case "daily":
			if v, ok := m.daily[k]; ok && !v.IsFinal {
				v.IsFinal = true
				n++
			}
		case "weekly":
			if v, ok := m.weekly[k]; ok && !v.IsFinal {
				v.IsFinal = true
				n++
			}
		case "monthly":
			if v, ok := m.monthly[k]; ok && !v.IsFinal {
				v.IsFinal = true
				n++
			}
		}
	}
	return n, nil
}

type memMetrics struct {
	mu        sync.Mutex
	recompute []ports.RecomputeMetrics
}

func (m *memMetrics) RecordRecompute(ctx context.Context, r ports.RecomputeMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recompute = append(m.recompute, r)
}

func (m *memMetrics) RecordFlowScore(ctx context.Context, score int, weakest string) {}

func (m *memMetrics) Close(ctx context.Context) error { return nil }
