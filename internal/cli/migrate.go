package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/studi/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run database migrations",
	Long: `Run database migrations.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  studi migrate      # Run all pending migrations
  studi migrate 1    # Migrate to version 1
  studi migrate 0    # Rollback all migrations`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	target := -1
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		target = v
	}

	return withApp(cmd.Context(), func(app *AppContext) error {
		return migrate.MigrateTo(cmd.Context(), app.DB, cmd.OutOrStdout(), target)
	})
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *AppContext) error {
		st, err := migrate.GetStatus(cmd.Context(), app.DB)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Current version: %d\n", st.Current)
		fmt.Fprintf(out, "Latest version:  %d\n", st.Latest)
		if st.Dirty {
			fmt.Fprintln(out, "State:           dirty (manual intervention required)")
		}
		for _, m := range st.Pending {
			fmt.Fprintf(out, "Pending:         %03d_%s\n", m.Version, m.Name)
		}
		return nil
	})
}
