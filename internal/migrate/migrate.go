// Package migrate applies the embedded schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/emiliopalmerini/studi/migrations"
)

// Migration represents a single database migration with up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Status describes where a database stands relative to the embedded migrations.
type Status struct {
	Current int
	Dirty   bool
	Latest  int
	Pending []Migration
}

var upPattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// EnsureMigrationsTable creates the schema_migrations table if it doesn't exist.
func EnsureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// GetCurrentVersion returns the current migration version and dirty state.
func GetCurrentVersion(ctx context.Context, db *sql.DB) (int, bool, error) {
	var version, dirty int
	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty == 1, nil
}

// SetVersion records version as the only row of schema_migrations.
func SetVersion(ctx context.Context, db *sql.DB, version int, dirty bool) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return err
	}
	if version <= 0 {
		return nil
	}
	d := 0
	if dirty {
		d = 1
	}
	_, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, d)
	return err
}

// LoadMigrations reads all embedded migration files and returns them sorted by version.
func LoadMigrations() ([]Migration, error) {
	return load(migrations.FS)
}

func load(fsys fs.FS) ([]Migration, error) {
	var result []Migration
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matches := upPattern.FindStringSubmatch(path.Base(p))
		if matches == nil {
			return nil
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("invalid migration version in %s: %w", p, err)
		}

		up, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		down, err := fs.ReadFile(fsys, path.Join(path.Dir(p), fmt.Sprintf("%s_%s.down.sql", matches[1], matches[2])))
		if err != nil {
			down = nil
		}

		result = append(result, Migration{
			Version: version,
			Name:    matches[2],
			UpSQL:   string(up),
			DownSQL: string(down),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	for i := 1; i < len(result); i++ {
		if result[i].Version == result[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", result[i].Version)
		}
	}
	return result, nil
}

// SplitSQL splits a script into statements, dropping "--" comment lines.
func SplitSQL(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// RunMigration executes a single migration (up or down). The version is
// flagged dirty until every statement succeeded.
func RunMigration(ctx context.Context, db *sql.DB, out io.Writer, m Migration, up bool) error {
	direction, script, target := "up", m.UpSQL, m.Version
	if !up {
		direction, script, target = "down", m.DownSQL, m.Version-1
	}
	fmt.Fprintf(out, "  %s %03d_%s\n", direction, m.Version, m.Name)

	if err := SetVersion(ctx, db, m.Version, true); err != nil {
		return fmt.Errorf("failed to set dirty flag: %w", err)
	}
	for _, stmt := range SplitSQL(script) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d %s: %w\nSQL: %s", m.Version, direction, err, stmt)
		}
	}
	if err := SetVersion(ctx, db, target, false); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}

// GetStatus reports the current and latest versions and what is pending.
func GetStatus(ctx context.Context, db *sql.DB) (Status, error) {
	var st Status
	if err := EnsureMigrationsTable(ctx, db); err != nil {
		return st, fmt.Errorf("failed to create migrations table: %w", err)
	}
	current, dirty, err := GetCurrentVersion(ctx, db)
	if err != nil {
		return st, fmt.Errorf("failed to get current version: %w", err)
	}
	all, err := LoadMigrations()
	if err != nil {
		return st, fmt.Errorf("failed to load migrations: %w", err)
	}
	st.Current, st.Dirty = current, dirty
	for _, m := range all {
		st.Latest = m.Version
		if m.Version > current {
			st.Pending = append(st.Pending, m)
		}
	}
	return st, nil
}

// MigrateTo moves the schema up or down to target. A negative target means latest.
func MigrateTo(ctx context.Context, db *sql.DB, out io.Writer, target int) error {
	st, err := GetStatus(ctx, db)
	if err != nil {
		return err
	}
	if st.Dirty {
		return fmt.Errorf("database is in dirty state at version %d", st.Current)
	}
	if target < 0 {
		target = st.Latest
	}

	all, err := LoadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied := 0
	if target >= st.Current {
		for _, m := range all {
			if m.Version <= st.Current || m.Version > target {
				continue
			}
			if err := RunMigration(ctx, db, out, m, true); err != nil {
				return err
			}
			applied++
		}
	} else {
		for i := len(all) - 1; i >= 0; i-- {
			m := all[i]
			if m.Version > st.Current || m.Version <= target {
				continue
			}
			if m.DownSQL == "" {
				return fmt.Errorf("no down migration for version %d", m.Version)
			}
			if err := RunMigration(ctx, db, out, m, false); err != nil {
				return err
			}
			applied++
		}
	}

	if applied == 0 {
		fmt.Fprintln(out, "No migrations to run")
		return nil
	}
	fmt.Fprintf(out, "Migrated to version %d (%d migrations applied)\n", target, applied)
	return nil
}

// RunAll runs all pending migrations on the provided database.
func RunAll(ctx context.Context, db *sql.DB) error {
	return MigrateTo(ctx, db, io.Discard, -1)
}
