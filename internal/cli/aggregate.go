package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/studi/internal/aggregate"
	"github.com/emiliopalmerini/studi/internal/period"
	"github.com/emiliopalmerini/studi/internal/util"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute <daily|weekly|monthly>",
	Short: "Rebuild one aggregate row from source data",
	Long: `Rebuild the daily, weekly or monthly aggregate containing a date.

Weekly and monthly rows are built from the daily rows, so recompute the
days first when sessions changed.

Examples:
  studi recompute daily --user ada --date 2024-01-15
  studi recompute weekly --user ada --date 2024-01-15`,
	Args: cobra.ExactArgs(1),
	RunE: runRecompute,
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Mark aggregates of closed periods as final",
	Args:  cobra.NoArgs,
	RunE:  runFinalize,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild every aggregate from stored sessions",
	Long: `Rebuild every day, week and month that has completed sessions.

Without --user all users are backfilled, --concurrency at a time.`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

var updatePeriodsCmd = &cobra.Command{
	Use:   "update-periods",
	Short: "Refresh the weekly or monthly rows containing a date for all users",
	Args:  cobra.NoArgs,
	RunE:  runUpdatePeriods,
}

var rebuildWeeksCmd = &cobra.Command{
	Use:   "rebuild-weeks",
	Short: "Delete and rebuild weekly rows under the current week start",
	Long: `Delete every weekly row and rebuild them from the daily rows using
STUDI_WEEK_START. Run it after changing the week start.

Without --user all users are rebuilt, --concurrency at a time.`,
	Args: cobra.NoArgs,
	RunE: runRebuildWeeks,
}

var (
	aggUser        string
	aggDate        string
	aggDryRun      bool
	aggConcurrency int
	aggGranularity string
)

func init() {
	rootCmd.AddCommand(recomputeCmd, finalizeCmd, backfillCmd, updatePeriodsCmd, rebuildWeeksCmd)

	recomputeCmd.Flags().StringVarP(&aggUser, "user", "u", "", "User ID or username")
	recomputeCmd.Flags().StringVarP(&aggDate, "date", "d", "", "Date in the period, YYYY-MM-DD (default today)")

	finalizeCmd.Flags().BoolVar(&aggDryRun, "dry-run", false, "Only count the rows that would be finalized")

	backfillCmd.Flags().StringVarP(&aggUser, "user", "u", "", "Only backfill this user")
	rebuildWeeksCmd.Flags().StringVarP(&aggUser, "user", "u", "", "Only rebuild this user")
	for _, c := range []*cobra.Command{backfillCmd, updatePeriodsCmd, rebuildWeeksCmd} {
		c.Flags().IntVar(&aggConcurrency, "concurrency", aggregate.DefaultConcurrency, "Users processed in parallel")
	}

	updatePeriodsCmd.Flags().StringVarP(&aggDate, "date", "d", "", "Date in the period, YYYY-MM-DD (default today, UTC)")
	updatePeriodsCmd.Flags().StringVarP(&aggGranularity, "granularity", "g", "weekly", "weekly or monthly")
}

func runRecompute(cmd *cobra.Command, args []string) error {
	g, err := period.ParseGranularity(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		user, err := resolveUser(ctx, app, aggUser)
		if err != nil {
			return err
		}
		date, err := dateOrToday(aggDate, app.Timezone.Location(user.Timezone))
		if err != nil {
			return err
		}
		start, end, err := app.Calendar.Bounds(date, g)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch g {
		case period.Daily:
			a, err := app.Engine.RecomputeDaily(ctx, user.ID, date)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "daily %s: %d sessions, %s studied, final=%t\n",
				a.Date, a.SessionCount, util.FormatDuration(a.TotalDuration), a.IsFinal)
		case period.Weekly:
			a, err := app.Engine.RecomputeWeekly(ctx, user.ID, start, end)
			if err != nil {
				return err
			}
			if a == nil {
				fmt.Fprintf(out, "weekly %s: no daily rows, nothing written\n", start)
				return nil
			}
			fmt.Fprintf(out, "weekly %s..%s: %d sessions, %s studied, final=%t\n",
				a.WeekStart, a.WeekEnd, a.SessionCount, util.FormatDuration(a.TotalDuration), a.IsFinal)
		case period.Monthly:
			a, err := app.Engine.RecomputeMonthly(ctx, user.ID, start, end)
			if err != nil {
				return err
			}
			if a == nil {
				fmt.Fprintf(out, "monthly %s: no daily rows, nothing written\n", start)
				return nil
			}
			fmt.Fprintf(out, "monthly %s..%s: %d sessions, %s studied, final=%t\n",
				a.MonthStart, a.MonthEnd, a.SessionCount, util.FormatDuration(a.TotalDuration), a.IsFinal)
		}
		return nil
	})
}

func runFinalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		report, err := app.Engine.Finalize(ctx, aggDryRun)
		if err != nil {
			return err
		}
		verb := "finalized"
		if report.DryRun {
			verb = "would finalize"
		}
		out := cmd.OutOrStdout()
		for _, g := range period.Granularities {
			fmt.Fprintf(out, "%-8s %s %d\n", g, verb, report.Closed[g])
		}
		return nil
	})
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		var (
			report aggregate.BackfillReport
			err    error
		)
		if aggUser != "" {
			user, uerr := resolveUser(ctx, app, aggUser)
			if uerr != nil {
				return uerr
			}
			report, err = app.Engine.Backfill(ctx, user.ID)
		} else {
			report, err = app.Engine.BackfillAll(ctx, aggConcurrency)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %d days, %d weeks, %d months\n", report.Days, report.Weeks, report.Months)
		return nil
	})
}

func runUpdatePeriods(cmd *cobra.Command, args []string) error {
	g, err := period.ParseGranularity(aggGranularity)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		date, err := dateOrToday(aggDate, time.UTC)
		if err != nil {
			return err
		}
		n, err := app.Engine.UpdatePeriodsForDate(ctx, date, g, aggConcurrency)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s rows for %d users\n", g, n)
		return nil
	})
}

func runRebuildWeeks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		var (
			report aggregate.RebuildReport
			err    error
		)
		if aggUser != "" {
			user, uerr := resolveUser(ctx, app, aggUser)
			if uerr != nil {
				return uerr
			}
			report, err = app.Engine.RebuildWeeks(ctx, user.ID)
		} else {
			report, err = app.Engine.RebuildWeeksAll(ctx, aggConcurrency)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d weekly rows, rebuilt %d weeks starting on %s\n",
			report.Deleted, report.Weeks, app.Calendar.WeekStart)
		return nil
	})
}
