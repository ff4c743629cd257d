package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/studi/internal/tracking"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Record study sessions",
	Long: `Record study sessions.

Times are RFC 3339 or "YYYY-MM-DD HH:MM" in the user's timezone.

Examples:
  studi session start --user ada
  studi session block <id> --category Math --start "2024-01-15 09:00" --end "2024-01-15 09:50"
  studi session break <id> --start "2024-01-15 09:50" --end "2024-01-15 10:00"
  studi session complete <id> --rating 4`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session",
	Args:  cobra.NoArgs,
	RunE:  runSessionStart,
}

var sessionBlockCmd = &cobra.Command{
	Use:   "block <session-id>",
	Short: "Add a category block to a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionBlock,
}

var sessionBreakCmd = &cobra.Command{
	Use:   "break <session-id>",
	Short: "Add a break to a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionBreak,
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete <session-id>",
	Short: "Complete a session and score it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionComplete,
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionCancel,
}

var sessionRateCmd = &cobra.Command{
	Use:   "rate <session-id> <rating>",
	Short: "Correct the focus rating (1-5) of a completed session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionRate,
}

var (
	sessionUser       string
	sessionAt         string
	sessionStart      string
	sessionEnd        string
	sessionCategory   string
	sessionCategoryID string
	sessionIsBreak    bool
	sessionRating     int
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionBlockCmd, sessionBreakCmd, sessionCompleteCmd, sessionCancelCmd, sessionRateCmd)

	sessionStartCmd.Flags().StringVarP(&sessionUser, "user", "u", "", "User ID or username")
	sessionStartCmd.Flags().StringVar(&sessionAt, "at", "", "Start time (default now)")

	sessionBlockCmd.Flags().StringVarP(&sessionCategory, "category", "c", "", "Category name")
	sessionBlockCmd.Flags().StringVar(&sessionCategoryID, "category-id", "", "Category ID")
	sessionBlockCmd.Flags().BoolVar(&sessionIsBreak, "break", false, "Mark the block as a break")
	for _, c := range []*cobra.Command{sessionBlockCmd, sessionBreakCmd} {
		c.Flags().StringVar(&sessionStart, "start", "", "Start time")
		c.Flags().StringVar(&sessionEnd, "end", "", "End time (omit to leave open)")
		_ = c.MarkFlagRequired("start")
	}

	sessionCompleteCmd.Flags().StringVar(&sessionEnd, "end", "", "End time (default now)")
	sessionCompleteCmd.Flags().IntVarP(&sessionRating, "rating", "r", 0, "Focus rating 1-5")
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		user, err := resolveUser(ctx, app, sessionUser)
		if err != nil {
			return err
		}
		at, err := parseInstant(sessionAt, app.Timezone.Location(user.Timezone))
		if err != nil {
			return err
		}
		s, err := app.Tracker.StartSession(ctx, user.ID, at)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.ID)
		return nil
	})
}

func runSessionBlock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		loc, err := sessionLocation(ctx, app, args[0])
		if err != nil {
			return err
		}
		start, err := parseInstant(sessionStart, loc)
		if err != nil {
			return err
		}
		end, err := optionalInstant(sessionEnd, loc)
		if err != nil {
			return err
		}
		b, err := app.Tracker.AddBlock(ctx, args[0], tracking.BlockInput{
			CategoryID:   sessionCategoryID,
			CategoryName: sessionCategory,
			Start:        start,
			End:          end,
			IsBreak:      sessionIsBreak,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), b.ID)
		return nil
	})
}

func runSessionBreak(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		loc, err := sessionLocation(ctx, app, args[0])
		if err != nil {
			return err
		}
		start, err := parseInstant(sessionStart, loc)
		if err != nil {
			return err
		}
		end, err := optionalInstant(sessionEnd, loc)
		if err != nil {
			return err
		}
		br, err := app.Tracker.AddBreak(ctx, args[0], start, end)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), br.ID)
		return nil
	})
}

func runSessionComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		loc, err := sessionLocation(ctx, app, args[0])
		if err != nil {
			return err
		}
		end, err := parseInstant(sessionEnd, loc)
		if err != nil {
			return err
		}
		res, err := app.Tracker.CompleteSession(ctx, args[0], end, ratingFlag(sessionRating))
		if res != nil {
			printScore(cmd.OutOrStdout(), res.Session.Duration(), res.Score)
		}
		return err
	})
}

func runSessionCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		s, err := app.Tracker.CancelSession(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s cancelled\n", s.ID)
		return nil
	})
}

func runSessionRate(cmd *cobra.Command, args []string) error {
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid rating: %s", args[1])
	}
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		res, err := app.Tracker.CorrectRating(ctx, args[0], &rating)
		if res != nil {
			printScore(cmd.OutOrStdout(), res.Session.Duration(), res.Score)
		}
		return err
	})
}
