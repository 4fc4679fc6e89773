// Package pdf provides a Normaliser for PDF documents. Text is extracted by
// the pdftotext tool from poppler, which must be installed on the host.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// ErrPDFToolNotFound is returned when pdftotext is not on PATH.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler to ingest PDF files")

const toolName = "pdftotext"

// maxTitleRunes bounds the first-line title guess.
const maxTitleRunes = 200

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// Normaliser handles PDF documents.
type Normaliser struct {
	runner CommandRunner
	tool   string
}

// New creates a PDF normaliser that shells out to pdftotext.
func New() *Normaliser {
	return NewWithRunner(execRunner{})
}

// NewWithRunner creates a PDF normaliser with a custom command runner.
func NewWithRunner(runner CommandRunner) *Normaliser {
	return &Normaliser{runner: runner, tool: toolName}
}

// WithTool overrides the pdftotext executable name or path.
func (n *Normaliser) WithTool(tool string) *Normaliser {
	if tool != "" {
		n.tool = tool
	}
	return n
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts the text layer. Pages are separated by blank lines.
// A scanned PDF without a text layer yields empty text.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	tmp, err := os.CreateTemp("", "townhall-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw.Content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	out, err := n.runner.Run(ctx, n.tool, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	// pdftotext terminates every page with a form feed.
	pageCount := strings.Count(string(out), "\f")
	if pageCount == 0 {
		pageCount = 1
	}
	text := normalisers.CleanLines(strings.ReplaceAll(string(out), "\f", "\n\n"))

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "pdf"
	metadata["page_count"] = pageCount
	if text == "" {
		metadata["text_layer"] = false
	}

	return &domain.NormaliseResult{
		Title:    extractTitle(text, raw.SourceURL),
		Type:     domain.DocumentTypePDF,
		Text:     text,
		Metadata: metadata,
	}, nil
}

// extractTitle uses the first short line, then the file name.
func extractTitle(content, sourceURL string) string {
	if line := normalisers.FirstLine(content, maxTitleRunes); line != "" {
		return line
	}
	return normalisers.TitleFromURL(sourceURL)
}

// CheckAvailable reports whether pdftotext can be found on PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath(toolName); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions explains how to install pdftotext.
func InstallInstructions() string {
	return `pdftotext is part of poppler:
  macOS:          brew install poppler
  Debian/Ubuntu:  apt install poppler-utils
  Fedora:         dnf install poppler-utils`
}
