package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/townhall/internal/adapters/driven/config/file"
	"github.com/custodia-labs/townhall/internal/connectors"
	"github.com/custodia-labs/townhall/internal/connectors/filesystem"
	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/logger"
)

var (
	ingestForce    bool
	ingestDir      string
	ingestWatch    bool
	ingestManifest string
	ingestTitle    string
	ingestType     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [url-or-path...]",
	Short: "Ingest documents into the index",
	Long: `Fetches, extracts, chunks and embeds documents.

Sources come from the arguments, a directory (--dir), a manifest (--manifest)
or, with none of these, the manifest configured as ingest.manifest.
Unchanged documents are skipped unless --force is given. One failing document
never stops the batch.

Examples:
  townhall ingest https://obec.example/uredni-deska
  townhall ingest --dir ./zpravodaje --watch
  townhall ingest --manifest sources.toml --force`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-index even when content is unchanged")
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "ingest every file below a directory")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep running and re-ingest files in --dir as they change")
	ingestCmd.Flags().StringVarP(&ingestManifest, "manifest", "m", "", "TOML manifest of sources")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "title for a single source argument")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "document type for a single source argument")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestWatch && ingestDir == "" {
		return fmt.Errorf("%w: --watch needs --dir", domain.ErrInvalidInput)
	}
	if (ingestTitle != "" || ingestType != "") && len(args) != 1 {
		return fmt.Errorf("%w: --title and --type apply to exactly one source", domain.ErrInvalidInput)
	}
	if ingestType != "" && !domain.DocumentType(ingestType).IsValid() {
		return fmt.Errorf("%w: unknown document type %q", domain.ErrInvalidInput, ingestType)
	}

	ctx := cmd.Context()
	if err := requireIngest(ctx); err != nil {
		return err
	}

	srcs, err := collectSources(ctx, args)
	if err != nil {
		return err
	}

	if len(srcs) > 0 {
		report := ingestService.IngestBatch(ctx, srcs, ingestForce)
		printReport(cmd, report)
	}

	if ingestWatch {
		return watchDir(ctx, cmd, ingestDir)
	}
	return nil
}

// collectSources merges the argument, directory and manifest sources.
func collectSources(ctx context.Context, args []string) ([]domain.SourceDescriptor, error) {
	var srcs []domain.SourceDescriptor
	for _, arg := range args {
		srcs = append(srcs, sourceFromArg(arg))
	}
	if len(args) == 1 {
		srcs[0].Title = ingestTitle
		srcs[0].Type = domain.DocumentType(ingestType)
	}

	if ingestDir != "" {
		walked, err := filesystem.Walk(ctx, ingestDir)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, walked...)
	}

	if ingestManifest != "" {
		listed, err := file.LoadManifest(ingestManifest)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, listed...)
	}

	if len(srcs) == 0 && ingestDir == "" {
		if loadManifest == nil {
			return nil, errNoManifest
		}
		listed, err := loadManifest()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errNoManifest, err)
		}
		srcs = listed
	}
	return srcs, nil
}

func sourceFromArg(arg string) domain.SourceDescriptor {
	if connectors.Scheme(arg) != "file" {
		return domain.SourceDescriptor{SourceURL: arg}
	}
	path := filesystem.ResolvePath(arg)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return domain.SourceDescriptor{SourceURL: filesystem.FileURL(path), Location: path}
}

func printReport(cmd *cobra.Command, report domain.BatchReport) {
	cmd.Printf("Created: %d, updated: %d, skipped: %d, failed: %d, chunks: %d\n",
		report.Created, report.Updated, report.Skipped, report.Failed, report.ChunksCreated)
	for _, f := range report.Failures {
		cmd.Printf("  failed %s: %s\n", f.SourceURL, f.Error)
	}
	logger.L().Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("chunks", report.ChunksCreated).
		Msg("ingest finished")
}

// watchDir re-ingests changed files and drops removed ones until ctx ends.
func watchDir(ctx context.Context, cmd *cobra.Command, dir string) error {
	changes, err := filesystem.NewWatcher(dir).Watch(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Watching %s for changes (Ctrl+C to stop)\n", dir)

	for change := range changes {
		url := filesystem.FileURL(change.Path)
		if change.Removed {
			if err := removeByURL(ctx, url); err != nil {
				logger.Warn("removing %s: %v", change.Path, err)
			}
			continue
		}
		res, err := ingestService.Ingest(ctx, domain.SourceDescriptor{SourceURL: url, Location: change.Path}, false)
		if err != nil {
			logger.Warn("ingesting %s: %v", change.Path, err)
			continue
		}
		cmd.Printf("%s %s (%d chunks)\n", res.Status, change.Path, res.ChunksCreated)
	}
	return nil
}

func removeByURL(ctx context.Context, url string) error {
	docs, err := documentService.List(ctx)
	if err != nil {
		return err
	}
	for i := range docs {
		if docs[i].SourceURL == url {
			logger.Info("Removing %s", url)
			return documentService.Delete(ctx, docs[i].ID)
		}
	}
	return nil
}
