package markdown

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct {
	md goldmark.Markdown
}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise renders the markdown AST to plain text. Headings, paragraphs,
// list items and table rows each end up on their own line; link targets,
// images and inline formatting are dropped.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	source := raw.Content
	doc := n.md.Parser().Parse(text.NewReader(source))

	w := &textWriter{source: source}
	_ = ast.Walk(doc, w.walk)

	title := w.title
	if title == "" {
		title = normalisers.TitleFromURL(raw.SourceURL)
	}

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "markdown"

	return &domain.NormaliseResult{
		Title:    title,
		Type:     domain.DocumentTypeWebpage,
		Text:     normalisers.CleanLines(w.sb.String()),
		Metadata: metadata,
	}, nil
}

// textWriter accumulates the plain text of an AST walk.
type textWriter struct {
	source []byte
	sb     strings.Builder
	title  string
}

func (w *textWriter) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Heading:
		if entering {
			if n.Level == 1 && w.title == "" {
				w.title = strings.TrimSpace(inlineText(n, w.source))
			}
			return ast.WalkContinue, nil
		}
		w.sb.WriteString("\n\n")

	case *ast.Paragraph, *ast.Blockquote, *ast.List:
		if !entering {
			w.sb.WriteString("\n\n")
		}

	case *ast.TextBlock:
		if !entering {
			w.sb.WriteString("\n")
		}

	case *ast.ListItem:
		if entering {
			w.sb.WriteString("- ")
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				w.sb.Write(seg.Value(w.source))
			}
			w.sb.WriteString("\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock, *ast.RawHTML, *ast.Image:
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			w.sb.WriteString("\n\n")
		}

	case *extast.TableCell:
		if !entering {
			w.sb.WriteString(" | ")
		}

	case *extast.TableRow, *extast.TableHeader:
		if !entering {
			w.sb.WriteString("\n")
		}

	case *ast.Text:
		if entering {
			w.sb.Write(n.Segment.Value(w.source))
			if n.HardLineBreak() {
				w.sb.WriteString("\n")
			} else if n.SoftLineBreak() {
				w.sb.WriteString(" ")
			}
		}

	case *ast.String:
		if entering {
			w.sb.Write(n.Value)
		}
	}
	return ast.WalkContinue, nil
}

// inlineText concatenates the text leaves below node.
func inlineText(node ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
