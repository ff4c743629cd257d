package turso

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/util"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, timezone, created_at`

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	tz := user.Timezone
	if tz == "" {
		tz = "UTC"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, timezone, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, tz, util.FormatTimestamp(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return withRetry(ctx, func() (*domain.User, error) {
		row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
		user, err := scanUser(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		return user, nil
	})
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) ListWithCompletedSessions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM study_sessions WHERE status = ? ORDER BY user_id`,
		string(domain.SessionCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to list users with sessions: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanUser(s scanner) (*domain.User, error) {
	var (
		u         domain.User
		createdAt string
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Timezone, &createdAt); err != nil {
		return nil, err
	}
	t, err := util.ParseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
