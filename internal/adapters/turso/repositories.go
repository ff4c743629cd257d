package turso

import (
	"database/sql"

	"github.com/emiliopalmerini/studi/internal/ports"
)

// Repositories holds all turso repository implementations as port interfaces.
type Repositories struct {
	Users      ports.UserRepository
	Sessions   ports.SessionRepository
	Blocks     ports.CategoryBlockRepository
	Breaks     ports.BreakRepository
	Aggregates ports.AggregateRepository
}

// NewRepositories creates all turso repository implementations from a database connection.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Users:      NewUserRepository(db),
		Sessions:   NewSessionRepository(db),
		Blocks:     NewCategoryBlockRepository(db),
		Breaks:     NewBreakRepository(db),
		Aggregates: NewAggregateRepository(db),
	}
}
