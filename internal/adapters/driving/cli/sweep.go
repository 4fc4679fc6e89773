package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge expired off-topic violations",
	Long:  `Deletes off-topic violations older than offtopic.retention. serve runs this on a schedule.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireCore(cmd.Context()); err != nil {
			return err
		}
		n, err := sweepViolations(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		cmd.Printf("Removed %d violations.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
