// Package tracking records study sessions and keeps their scores and
// aggregates current as they change.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/studi/internal/clock"
	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/flowscore"
	"github.com/emiliopalmerini/studi/internal/normalize"
	"github.com/emiliopalmerini/studi/internal/ports"
)

// Aggregator refreshes the aggregates touched by a session.
type Aggregator interface {
	UpdateForSessionChange(ctx context.Context, sessionID string) error
}

// Deps bundles the collaborators of a Service. Metrics is optional.
type Deps struct {
	Sessions   ports.SessionRepository
	Blocks     ports.CategoryBlockRepository
	Breaks     ports.BreakRepository
	Users      ports.UserRepository
	Aggregates Aggregator
	Timezone   ports.TimezoneResolver
	Clock      clock.Clock
	Metrics    ports.MetricsExporter
	Logger     ports.Logger
}

// Service handles the session lifecycle.
type Service struct {
	sessions   ports.SessionRepository
	blocks     ports.CategoryBlockRepository
	breaks     ports.BreakRepository
	users      ports.UserRepository
	aggregates Aggregator
	tz         ports.TimezoneResolver
	clock      clock.Clock
	metrics    ports.MetricsExporter
	logger     ports.Logger
	newID      func() string
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = ports.NopLogger{}
	}
	return &Service{
		sessions:   d.Sessions,
		blocks:     d.Blocks,
		breaks:     d.Breaks,
		users:      d.Users,
		aggregates: d.Aggregates,
		tz:         d.Timezone,
		clock:      d.Clock,
		metrics:    d.Metrics,
		logger:     d.Logger,
		newID:      uuid.NewString,
	}
}

// CompleteResult is a completed session with its score, nil when the
// session was too short to score.
type CompleteResult struct {
	Session *domain.StudySession
	Score   *flowscore.Result
}

// StartSession opens a session for userID at the given instant, or now when zero.
func (s *Service) StartSession(ctx context.Context, userID string, at time.Time) (*domain.StudySession, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	now := s.clock.Now().UTC()
	if at.IsZero() {
		at = now
	}
	session := &domain.StudySession{
		ID:        s.newID(),
		UserID:    userID,
		StartedAt: at.UTC(),
		Status:    domain.SessionActive,
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Debug("session started", "session_id", session.ID, "user_id", userID)
	return session, nil
}

// BlockInput describes a category block. A nil End leaves the block open.
type BlockInput struct {
	CategoryID   string
	CategoryName string
	Start        time.Time
	End          *time.Time
	IsBreak      bool
}

// AddBlock attaches a category block to a session. Blocks added to an
// already completed session refresh its aggregates.
func (s *Service) AddBlock(ctx context.Context, sessionID string, in BlockInput) (*domain.CategoryBlock, error) {
	if in.CategoryName == "" && in.CategoryID == "" && !in.IsBreak {
		return nil, fmt.Errorf("%w: block needs a category", domain.ErrInvalidInput)
	}
	if err := checkSpan(in.Start, in.End); err != nil {
		return nil, err
	}
	session, err := s.editableSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	block := &domain.CategoryBlock{
		ID:           s.newID(),
		SessionID:    sessionID,
		CategoryID:   in.CategoryID,
		CategoryName: in.CategoryName,
		StartedAt:    in.Start.UTC(),
		EndedAt:      utcPtr(in.End),
		IsBreak:      in.IsBreak,
	}
	if block.IsBreak && block.CategoryName == "" {
		block.CategoryName = domain.BreakCategoryName
	}
	block.DeriveDuration()
	if err := s.blocks.Create(ctx, block); err != nil {
		return nil, err
	}

	if session.Status == domain.SessionCompleted {
		if err := s.rescore(ctx, session); err != nil {
			return block, err
		}
	}
	return block, nil
}

// AddBreak records a break on a session.
func (s *Service) AddBreak(ctx context.Context, sessionID string, start time.Time, end *time.Time) (*domain.Break, error) {
	if err := checkSpan(start, end); err != nil {
		return nil, err
	}
	session, err := s.editableSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	br := &domain.Break{
		ID:        s.newID(),
		SessionID: sessionID,
		StartedAt: start.UTC(),
		EndedAt:   utcPtr(end),
	}
	br.DeriveDuration()
	if err := s.breaks.Create(ctx, br); err != nil {
		return nil, err
	}

	if session.Status == domain.SessionCompleted {
		if err := s.rescore(ctx, session); err != nil {
			return br, err
		}
	}
	return br, nil
}

// CompleteSession closes a session at end, or now when zero, scores it and
// refreshes its aggregates. rating is on the 1-5 scale and may be nil.
// When only the aggregate refresh fails the completed session is returned
// along with the error; the refresh can be retried.
func (s *Service) CompleteSession(ctx context.Context, sessionID string, end time.Time, rating *int) (*CompleteResult, error) {
	if err := checkRating(rating); err != nil {
		return nil, err
	}
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case domain.SessionActive, domain.SessionPaused, domain.SessionInterrupted:
	default:
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.Status, domain.ErrSessionNotCompletable)
	}

	if end.IsZero() {
		end = s.clock.Now()
	}
	end = end.UTC()
	if !end.After(session.StartedAt) {
		return nil, fmt.Errorf("%w: session must end after it starts", domain.ErrInvalidInput)
	}

	session.EndedAt = &end
	session.Status = domain.SessionCompleted
	session.FocusRating = rating
	session.DeriveDuration()

	res, err := s.score(ctx, session)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session completed", "session_id", sessionID, "duration", session.Duration(), "flow_score", session.FlowScore)

	out := &CompleteResult{Session: session, Score: res}
	if err := s.refresh(ctx, sessionID); err != nil {
		return out, err
	}
	return out, nil
}

// CancelSession marks a session cancelled. Cancelling a completed session
// removes it from its aggregates.
func (s *Service) CancelSession(ctx context.Context, sessionID string) (*domain.StudySession, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionCancelled {
		return session, nil
	}
	wasCompleted := session.Status == domain.SessionCompleted

	if session.EndedAt == nil {
		end := s.clock.Now().UTC()
		if end.Before(session.StartedAt) {
			end = session.StartedAt
		}
		session.EndedAt = &end
		session.DeriveDuration()
	}
	session.Status = domain.SessionCancelled
	session.FlowScore = nil
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session cancelled", "session_id", sessionID)

	if wasCompleted {
		if err := s.refresh(ctx, sessionID); err != nil {
			return session, err
		}
	}
	return session, nil
}

// CorrectRating replaces the focus rating of a completed session, rescoring
// it and refreshing its aggregates.
func (s *Service) CorrectRating(ctx context.Context, sessionID string, rating *int) (*CompleteResult, error) {
	if err := checkRating(rating); err != nil {
		return nil, err
	}
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionCompleted {
		return nil, fmt.Errorf("%w: only completed sessions can be rated, session %s is %s",
			domain.ErrInvalidInput, sessionID, session.Status)
	}

	session.FocusRating = rating
	res, err := s.score(ctx, session)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	out := &CompleteResult{Session: session, Score: res}
	if err := s.refresh(ctx, sessionID); err != nil {
		return out, err
	}
	return out, nil
}

// score computes the flow score of session from its stored intervals and
// sets session.FlowScore. It does not persist.
func (s *Service) score(ctx context.Context, session *domain.StudySession) (*flowscore.Result, error) {
	rec, err := s.sessions.GetRecord(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", session.ID, err)
	}
	var intervals []domain.Interval
	if rec != nil {
		intervals = rec.Intervals
	}

	loc, err := s.location(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	res := normalize.ScoreSession(domain.SessionRecord{Session: session, Intervals: intervals}, loc)
	if res == nil {
		session.FlowScore = nil
		return nil, nil
	}
	score := res.Score
	session.FlowScore = &score
	if s.metrics != nil {
		s.metrics.RecordFlowScore(ctx, res.Score, flowscore.WeakestComponent(res.Components))
	}
	return res, nil
}

// rescore recomputes the score of a completed session after its intervals changed.
func (s *Service) rescore(ctx context.Context, session *domain.StudySession) error {
	if _, err := s.score(ctx, session); err != nil {
		return err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return err
	}
	return s.refresh(ctx, session.ID)
}

func (s *Service) refresh(ctx context.Context, sessionID string) error {
	if err := s.aggregates.UpdateForSessionChange(ctx, sessionID); err != nil {
		s.logger.Error("failed to update aggregates", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to update aggregates for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Service) getSession(ctx context.Context, id string) (*domain.StudySession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return session, nil
}

func (s *Service) editableSession(ctx context.Context, id string) (*domain.StudySession, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionCancelled {
		return nil, fmt.Errorf("%w: session %s is cancelled", domain.ErrInvalidInput, id)
	}
	return session, nil
}

func (s *Service) location(ctx context.Context, userID string) (*time.Location, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return s.tz.Location(user.Timezone), nil
}

func checkSpan(start time.Time, end *time.Time) error {
	if start.IsZero() {
		return fmt.Errorf("%w: start time is required", domain.ErrInvalidInput)
	}
	if end != nil && !end.After(start) {
		return fmt.Errorf("%w: end must be after start", domain.ErrInvalidInput)
	}
	return nil
}

func checkRating(r *int) error {
	if r != nil && (*r < 1 || *r > 5) {
		return fmt.Errorf("%w: focus rating must be between 1 and 5, got %d", domain.ErrInvalidInput, *r)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
