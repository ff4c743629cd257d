package turso

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/util"
)

type CategoryBlockRepository struct {
	db *sql.DB
}

func NewCategoryBlockRepository(db *sql.DB) *CategoryBlockRepository {
	return &CategoryBlockRepository{db: db}
}

const blockColumns = `id, session_id, category_id, category_name, started_at, ended_at, duration_seconds, is_break`

func (r *CategoryBlockRepository) Create(ctx context.Context, b *domain.CategoryBlock) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO category_blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SessionID, util.NullString(b.CategoryID), b.CategoryName,
		util.FormatTimestamp(b.StartedAt), util.NullTime(b.EndedAt), util.NullInt64(b.DurationSeconds),
		util.BoolToInt64(b.IsBreak))
	if err != nil {
		return fmt.Errorf("failed to create category block: %w", err)
	}
	return nil
}

func (r *CategoryBlockRepository) ListBySessionID(ctx context.Context, sessionID string) ([]*domain.CategoryBlock, error) {
	blocks, err := queryBlocks(ctx, r.db, `session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list category blocks: %w", err)
	}
	return blocks, nil
}

func queryBlocks(ctx context.Context, q querier, where string, args ...any) ([]*domain.CategoryBlock, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+blockColumns+` FROM category_blocks WHERE `+where+` ORDER BY started_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*domain.CategoryBlock
	for rows.Next() {
		var (
			b          domain.CategoryBlock
			categoryID sql.NullString
			startedAt  string
			endedAt    sql.NullString
			secs       sql.NullInt64
			isBreak    int64
		)
		if err := rows.Scan(&b.ID, &b.SessionID, &categoryID, &b.CategoryName, &startedAt, &endedAt, &secs, &isBreak); err != nil {
			return nil, err
		}
		if b.StartedAt, err = util.ParseTimestamp(startedAt); err != nil {
			return nil, err
		}
		if b.EndedAt, err = util.NullTimeToPtr(endedAt); err != nil {
			return nil, err
		}
		b.CategoryID = util.NullStringToString(categoryID)
		b.DurationSeconds = util.NullInt64ToPtr(secs)
		b.IsBreak = isBreak == 1
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}

type BreakRepository struct {
	db *sql.DB
}

func NewBreakRepository(db *sql.DB) *BreakRepository {
	return &BreakRepository{db: db}
}

const breakColumns = `id, session_id, started_at, ended_at, duration_seconds`

func (r *BreakRepository) Create(ctx context.Context, br *domain.Break) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO breaks (`+breakColumns+`) VALUES (?, ?, ?, ?, ?)`,
		br.ID, br.SessionID, util.FormatTimestamp(br.StartedAt), util.NullTime(br.EndedAt), util.NullInt64(br.DurationSeconds))
	if err != nil {
		return fmt.Errorf("failed to create break: %w", err)
	}
	return nil
}

func (r *BreakRepository) ListBySessionID(ctx context.Context, sessionID string) ([]*domain.Break, error) {
	breaks, err := queryBreaks(ctx, r.db, `session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list breaks: %w", err)
	}
	return breaks, nil
}

func queryBreaks(ctx context.Context, q querier, where string, args ...any) ([]*domain.Break, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+breakColumns+` FROM breaks WHERE `+where+` ORDER BY started_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breaks []*domain.Break
	for rows.Next() {
		var (
			br        domain.Break
			startedAt string
			endedAt   sql.NullString
			secs      sql.NullInt64
		)
		if err := rows.Scan(&br.ID, &br.SessionID, &startedAt, &endedAt, &secs); err != nil {
			return nil, err
		}
		if br.StartedAt, err = util.ParseTimestamp(startedAt); err != nil {
			return nil, err
		}
		if br.EndedAt, err = util.NullTimeToPtr(endedAt); err != nil {
			return nil, err
		}
		br.DurationSeconds = util.NullInt64ToPtr(secs)
		breaks = append(breaks, &br)
	}
	return breaks, rows.Err()
}
