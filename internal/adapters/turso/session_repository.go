package turso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/util"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, started_at, ended_at, status, focus_rating, duration_seconds, flow_score, created_at`

func (r *SessionRepository) Create(ctx context.Context, s *domain.StudySession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO study_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID,
		util.FormatTimestamp(s.StartedAt), util.NullTime(s.EndedAt),
		string(s.Status),
		util.NullInt(s.FocusRating), util.NullInt64(s.DurationSeconds), util.NullInt(s.FlowScore),
		util.FormatTimestamp(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Update(ctx context.Context, s *domain.StudySession) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE study_sessions
		SET started_at = ?, ended_at = ?, status = ?, focus_rating = ?, duration_seconds = ?, flow_score = ?
		WHERE id = ?`,
		util.FormatTimestamp(s.StartedAt), util.NullTime(s.EndedAt), string(s.Status),
		util.NullInt(s.FocusRating), util.NullInt64(s.DurationSeconds), util.NullInt(s.FlowScore),
		s.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.StudySession, error) {
	return withRetry(ctx, func() (*domain.StudySession, error) {
		s, err := getSession(ctx, r.db, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		return s, nil
	})
}

func (r *SessionRepository) GetRecord(ctx context.Context, id string) (*domain.SessionRecord, error) {
	return withRetry(ctx, func() (*domain.SessionRecord, error) {
		var rec *domain.SessionRecord
		err := inTx(ctx, r.db, func(tx *sql.Tx) error {
			s, err := getSession(ctx, tx, id)
			if err != nil || s == nil {
				return err
			}
			intervals, err := listIntervals(ctx, tx, `session_id = ?`, id)
			if err != nil {
				return err
			}
			rec = &domain.SessionRecord{Session: s, Intervals: intervals[id]}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get session record: %w", err)
		}
		return rec, nil
	})
}

func (r *SessionRepository) ListRecords(ctx context.Context, userID string, from, to time.Time) ([]domain.SessionRecord, error) {
	return withRetry(ctx, func() ([]domain.SessionRecord, error) {
		var records []domain.SessionRecord
		err := inTx(ctx, r.db, func(tx *sql.Tx) error {
			args := []any{userID, string(domain.SessionCompleted), util.FormatTimestamp(from), util.FormatTimestamp(to)}

			rows, err := tx.QueryContext(ctx, `
				SELECT `+sessionColumns+` FROM study_sessions
				WHERE user_id = ? AND status = ? AND started_at >= ? AND started_at < ?
				ORDER BY started_at, id`, args...)
			if err != nil {
				return err
			}
			defer rows.Close()

			var sessions []*domain.StudySession
			for rows.Next() {
				s, err := scanSession(rows)
				if err != nil {
					return err
				}
				sessions = append(sessions, s)
			}
			if err := rows.Err(); err != nil {
				return err
			}
			if len(sessions) == 0 {
				return nil
			}

			intervals, err := listIntervals(ctx, tx, `session_id IN (
				SELECT id FROM study_sessions
				WHERE user_id = ? AND status = ? AND started_at >= ? AND started_at < ?)`, args...)
			if err != nil {
				return err
			}
			records = make([]domain.SessionRecord, len(sessions))
			for i, s := range sessions {
				records[i] = domain.SessionRecord{Session: s, Intervals: intervals[s.ID]}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list session records: %w", err)
		}
		return records, nil
	})
}

func (r *SessionRepository) CompletedSpan(ctx context.Context, userID string) (*time.Time, *time.Time, error) {
	var first, last sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(started_at), MAX(started_at) FROM study_sessions
		WHERE user_id = ? AND status = ?`,
		userID, string(domain.SessionCompleted)).Scan(&first, &last)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session span: %w", err)
	}
	from, err := util.NullTimeToPtr(first)
	if err != nil {
		return nil, nil, err
	}
	to, err := util.NullTimeToPtr(last)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// getSession returns (nil, nil) when no row matches.
func getSession(ctx context.Context, q querier, id string) (*domain.StudySession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM study_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func scanSession(sc scanner) (*domain.StudySession, error) {
	var (
		s                   domain.StudySession
		startedAt, created  string
		endedAt             sql.NullString
		status              string
		rating, score, secs sql.NullInt64
	)
	if err := sc.Scan(&s.ID, &s.UserID, &startedAt, &endedAt, &status, &rating, &secs, &score, &created); err != nil {
		return nil, err
	}
	var err error
	if s.StartedAt, err = util.ParseTimestamp(startedAt); err != nil {
		return nil, err
	}
	if s.EndedAt, err = util.NullTimeToPtr(endedAt); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = util.ParseTimestamp(created); err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	s.FocusRating = util.NullIntToPtr(rating)
	s.DurationSeconds = util.NullInt64ToPtr(secs)
	s.FlowScore = util.NullIntToPtr(score)
	return &s, nil
}

// listIntervals loads blocks and breaks matching where, grouped by session.
// Break records become break intervals here so the rest of the system sees
// a single representation.
func listIntervals(ctx context.Context, q querier, where string, args ...any) (map[string][]domain.Interval, error) {
	out := map[string][]domain.Interval{}

	blocks, err := queryBlocks(ctx, q, where, args...)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		out[b.SessionID] = append(out[b.SessionID], b.Interval())
	}

	breaks, err := queryBreaks(ctx, q, where, args...)
	if err != nil {
		return nil, err
	}
	for _, br := range breaks {
		out[br.SessionID] = append(out[br.SessionID], br.Interval())
	}
	return out, nil
}
