package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/townhall/internal/adapters/driving/api"
	"github.com/custodia-labs/townhall/internal/logger"
)

var (
	serveAddr        string
	serveNoScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat API",
	Long: `Starts the HTTP API with streaming chat and, unless disabled, the
background scheduler that re-ingests the manifest and purges old off-topic
violations.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "do not run background tasks")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := requireChat(ctx); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	cfg := settings.Server
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	server, err := api.NewServer(&api.Ports{Chat: chatService, Health: healthChecker}, cfg)
	if err != nil {
		return err
	}

	if !serveNoScheduler && settings.Scheduler.Enabled && scheduler != nil {
		schedCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := scheduler.Start(schedCtx); err != nil {
				logger.Warn("scheduler stopped: %v", err)
			}
		}()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("scheduler stop: %v", err)
			}
		}()
	}

	cmd.Printf("Serving on %s\n", cfg.Addr)
	return server.Run(ctx)
}
