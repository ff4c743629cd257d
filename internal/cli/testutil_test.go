package cli

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/studi/internal/adapters/locallock"
	"github.com/emiliopalmerini/studi/internal/adapters/otel"
	"github.com/emiliopalmerini/studi/internal/adapters/zaplog"
	"github.com/emiliopalmerini/studi/internal/clock"
	"github.com/emiliopalmerini/studi/internal/migrate"
	"github.com/emiliopalmerini/studi/internal/period"
)

// testNow is the fixed clock of command tests: the day after the sessions
// they record, so those days are closed.
var testNow = time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)

// testDB creates an in-memory SQLite database with all migrations applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := migrate.RunAll(context.Background(), db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// useTestApp points every command at db with a fixed clock.
func useTestApp(t *testing.T, db *sql.DB) {
	t.Helper()
	useTestAppCalendar(t, db, period.Default)
}

// useTestAppCalendar is useTestApp with weeks keyed by cal.
func useTestAppCalendar(t *testing.T, db *sql.DB, cal period.Calendar) {
	t.Helper()
	prev := newApp
	newApp = func(ctx context.Context) (*AppContext, error) {
		return buildApp(db, zaplog.NewNop(), locallock.New(), otel.NewNoOpExporter(), clock.NewFixed(testNow), cal), nil
	}
	t.Cleanup(func() { newApp = prev })
}

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// mustRun is run that fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("studi %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// resetFlags restores flag defaults since flag variables outlive a single execution.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
