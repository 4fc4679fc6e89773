// Package filesystem fetches documents from local files and watches
// directories for changes.
package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure Fetcher implements the interface.
var _ driven.ContentFetcher = (*Fetcher)(nil)

// DefaultMaxFileSize bounds the bytes read from one file.
const DefaultMaxFileSize = 25 << 20

// Fetcher reads documents from the local filesystem.
type Fetcher struct {
	maxSize int64
}

// NewFetcher creates a filesystem fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{maxSize: DefaultMaxFileSize}
}

// Fetch reads the file named by the descriptor's location.
func (f *Fetcher) Fetch(ctx context.Context, src domain.SourceDescriptor) (*domain.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := ResolvePath(src.Location)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", domain.ErrFetchFailed)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrFetchFailed, path)
	}
	if info.Size() > f.maxSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrFetchFailed, path, f.maxSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}

	sourceURL := src.SourceURL
	if sourceURL == "" {
		sourceURL = FileURL(path)
	}

	return &domain.RawDocument{
		SourceURL: sourceURL,
		MIMEType:  DetectMIMEType(path),
		Content:   content,
		Metadata: map[string]any{
			"path":     path,
			"filename": filepath.Base(path),
			"size":     info.Size(),
			"mod_time": info.ModTime().UTC(),
		},
	}, nil
}

// Walk lists every visible regular file under root as a source descriptor,
// in lexical order. Hidden files and directories are skipped.
func Walk(ctx context.Context, root string) ([]domain.SourceDescriptor, error) {
	root = ResolvePath(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", root)
	}

	var sources []domain.SourceDescriptor
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && isHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		sources = append(sources, domain.SourceDescriptor{
			SourceURL: FileURL(abs),
			Location:  abs,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return sources, nil
}
