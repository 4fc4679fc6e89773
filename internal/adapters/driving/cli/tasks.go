package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tasksRecent int

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show background task status",
	Long: `Lists the tasks serve runs in the background (manifest re-ingestion and the
off-topic violation sweep) with their schedule and most recent runs.`,
	Args: cobra.NoArgs,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().IntVarP(&tasksRecent, "recent", "n", 3, "number of recent runs to show per task")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, _ []string) error {
	if err := requireCore(cmd.Context()); err != nil {
		return err
	}
	if scheduler == nil {
		return errors.New("scheduler is not available")
	}

	status, err := scheduler.Status(cmd.Context(), tasksRecent)
	if err != nil {
		return fmt.Errorf("failed to read task status: %w", err)
	}
	if len(status) == 0 {
		cmd.Println("No tasks scheduled yet. They are registered when serve starts.")
		return nil
	}

	for i := range status {
		task := status[i].Task
		cmd.Printf("%s (%s)\n", task.Name, task.ID)
		cmd.Printf("  Every:    %s\n", task.Interval)
		cmd.Printf("  Last run: %s\n", formatTime(task.LastRun))
		cmd.Printf("  Next run: %s\n", formatTime(task.NextRun))
		if task.LastError != "" {
			cmd.Printf("  Error:    %s\n", task.LastError)
		}
		for _, r := range status[i].Recent {
			state := "ok"
			if !r.Success {
				state = "failed: " + r.Error
			}
			cmd.Printf("    %s  %d items in %s  %s\n",
				formatTime(r.StartedAt), r.ItemsProcessed, r.Duration().Round(time.Millisecond), state)
		}
		cmd.Println()
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
