package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "studi",
	Short: "Study session tracking and flow scoring",
	Long: `studi records study sessions, scores how focused they were and keeps
daily, weekly and monthly summaries of where the time went.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command named by os.Args.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
