package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/studi/internal/domain"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Long: `Create a user. The timezone decides which local day a session belongs to.

Examples:
  studi user add ada --tz Europe/Rome`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userTimezone string

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userListCmd)

	userAddCmd.Flags().StringVar(&userTimezone, "tz", "UTC", "IANA timezone of the user")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	if _, err := time.LoadLocation(userTimezone); err != nil {
		return fmt.Errorf("unknown timezone %q", userTimezone)
	}
	return withApp(cmd.Context(), func(app *AppContext) error {
		u := &domain.User{
			ID:        uuid.NewString(),
			Username:  args[0],
			Timezone:  userTimezone,
			CreatedAt: time.Now().UTC(),
		}
		if err := app.Repos.Users.Create(cmd.Context(), u); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	})
}

func runUserList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *AppContext) error {
		users, err := app.Repos.Users.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(users) == 0 {
			fmt.Fprintln(out, "No users")
			return nil
		}
		for _, u := range users {
			fmt.Fprintf(out, "%-36s  %-16s  %s\n", u.ID, u.Username, u.Timezone)
		}
		return nil
	})
}
