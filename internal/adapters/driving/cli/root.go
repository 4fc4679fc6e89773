// Package cli implements the townhall command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/townhall/internal/adapters/driving/api"
	"github.com/custodia-labs/townhall/internal/app"
	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
	"github.com/custodia-labs/townhall/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

var (
	homeDir   string
	verbose   bool
	logFormat string
)

// Ports the commands drive. Tests assign fakes and set coreReady; otherwise
// they are built from the home directory on first use.
var (
	settingsService driving.SettingsService
	searchService   driving.SearchService
	documentService driving.DocumentService
	ingestService   driving.IngestService
	chatService     driving.ChatService
	scheduler       driving.Scheduler
	healthChecker   api.Pinger
	loadManifest    func() ([]domain.SourceDescriptor, error)
	sweepViolations func(ctx context.Context) (int, error)

	coreReady   bool
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "townhall",
	Short: "Municipal document assistant",
	Long: `townhall answers residents' questions from the municipality's own documents.

It ingests web pages, PDFs, spreadsheets, calendars and scanned notices, indexes
them for hybrid retrieval and serves a streaming chat API with citations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		switch logger.Format(logFormat) {
		case logger.FormatAuto, logger.FormatConsole, logger.FormatJSON:
			logger.SetFormat(logger.Format(logFormat))
		default:
			return fmt.Errorf("%w: unknown log format %q", domain.ErrInvalidInput, logFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "",
		"config and data directory (default $"+app.EnvHome+" or ~/.townhall)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logger.FormatAuto),
		"log format: auto, console or json")
}

// Execute runs the root command and releases whatever it opened.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if application != nil {
		if closeErr := application.Close(); closeErr != nil {
			logger.Warn("closing application: %v", closeErr)
		}
	}
	return err
}

// requireSettings builds the configuration tier only.
func requireSettings() error {
	if settingsService != nil {
		return nil
	}
	home, err := app.ResolveHome(homeDir)
	if err != nil {
		return err
	}
	svc, err := app.NewSettings(home)
	if err != nil {
		return err
	}
	settingsService = svc
	return nil
}

// requireCore builds the full application graph once.
func requireCore(ctx context.Context) error {
	if coreReady {
		return nil
	}
	home, err := app.ResolveHome(homeDir)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, home)
	if err != nil {
		return err
	}

	application = a
	settingsService = a.Settings
	searchService = a.Search
	documentService = a.Documents
	scheduler = a.Scheduler
	healthChecker = a.Store
	loadManifest = a.LoadManifest
	sweepViolations = func(ctx context.Context) (int, error) {
		return a.Offtopic.Sweep(ctx, a.Config.Offtopic.Retention)
	}
	if a.Ingest != nil {
		ingestService = a.Ingest
	}
	if a.Chat != nil {
		chatService = a.Chat
	}
	coreReady = true
	return nil
}

func requireIngest(ctx context.Context) error {
	if err := requireCore(ctx); err != nil {
		return err
	}
	if ingestService == nil {
		return app.ErrNoEmbedder
	}
	return nil
}

func requireChat(ctx context.Context) error {
	if err := requireCore(ctx); err != nil {
		return err
	}
	if chatService == nil {
		return app.ErrNoGenerator
	}
	return nil
}

// errNoManifest is returned when a command needs a manifest and none is configured.
var errNoManifest = errors.New("no manifest: pass --manifest or set ingest.manifest")
