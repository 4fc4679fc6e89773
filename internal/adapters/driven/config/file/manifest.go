package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// manifest is the on-disk shape of an ingest manifest:
//
//	[[document]]
//	url = "https://obec.cz/uredni-deska"
//	title = "Úřední deska"
//	type = "board"
//
//	[[document]]
//	url = "https://obec.cz/vyhlaska-2024.pdf"
//	path = "archiv/vyhlaska-2024.pdf"
type manifest struct {
	Documents []manifestEntry `toml:"document"`
}

type manifestEntry struct {
	URL      string         `toml:"url"`
	Path     string         `toml:"path"`
	Title    string         `toml:"title"`
	Type     string         `toml:"type"`
	Metadata map[string]any `toml:"metadata"`
}

// LoadManifest reads a TOML manifest into source descriptors. When an entry
// has a path the bytes are read from it and url becomes the public URL.
// Relative paths are resolved against the manifest's directory.
func LoadManifest(path string) ([]domain.SourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data, filepath.Dir(path))
}

// ParseManifest parses manifest bytes. baseDir resolves relative paths.
func ParseManifest(data []byte, baseDir string) ([]domain.SourceDescriptor, error) {
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %w", domain.ErrInvalidInput, err)
	}

	var errs []error
	seen := make(map[string]int, len(m.Documents))
	sources := make([]domain.SourceDescriptor, 0, len(m.Documents))
	for i, entry := range m.Documents {
		src, err := entry.descriptor(baseDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", i+1, err))
			continue
		}
		if prev, dup := seen[src.URL()]; dup {
			errs = append(errs, fmt.Errorf("document %d: %s already listed as document %d", i+1, src.URL(), prev))
			continue
		}
		seen[src.URL()] = i + 1
		sources = append(sources, src)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return sources, nil
}

func (e manifestEntry) descriptor(baseDir string) (domain.SourceDescriptor, error) {
	url := strings.TrimSpace(e.URL)
	path := strings.TrimSpace(e.Path)
	if url == "" && path == "" {
		return domain.SourceDescriptor{}, errors.New("url or path is required")
	}

	docType := domain.DocumentType(strings.ToLower(strings.TrimSpace(e.Type)))
	if docType != "" && !docType.IsValid() {
		return domain.SourceDescriptor{}, fmt.Errorf("unknown type %q", e.Type)
	}

	src := domain.SourceDescriptor{
		SourceURL: url,
		Location:  url,
		Title:     strings.TrimSpace(e.Title),
		Type:      docType,
		Metadata:  e.Metadata,
	}
	if path != "" {
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		src.Location = path
		if src.SourceURL == "" {
			src.SourceURL = "file://" + path
		}
	}
	return src, nil
}
