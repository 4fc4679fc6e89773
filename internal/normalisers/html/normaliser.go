package html

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// mainSelectors are tried in order; the first non-empty match is the page body.
var mainSelectors = []string{"main", "article", "[role=main]", "#content", ".content", "#main"}

// boilerplate is removed before conversion.
const boilerplate = "script, style, noscript, svg, iframe, form, nav, header, footer, aside, " +
	"[role=navigation], [role=banner], [role=contentinfo], .breadcrumb, .breadcrumbs, " +
	".cookie, .cookies, #cookie-bar, .skip-link"

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise extracts the main content of a page as markdown.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader, err := charset.NewReader(bytes.NewReader(raw.Content), raw.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("detecting charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "html"
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		metadata["lang"] = lang
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(desc) != "" {
		metadata["description"] = strings.TrimSpace(desc)
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(boilerplate).Remove()
	body := mainContent(doc)

	title := strings.TrimSpace(body.Find("h1").First().Text())
	if title == "" {
		title = pageTitle
	}
	if title == "" {
		title = normalisers.TitleFromURL(raw.SourceURL)
	}

	converter := md.NewConverter(md.DomainFromURL(raw.SourceURL), true, nil)
	converter.Use(plugin.Table())
	text := converter.Convert(body)

	return &domain.NormaliseResult{
		Title:    strings.Join(strings.Fields(title), " "),
		Type:     domain.DocumentTypeWebpage,
		Text:     normalisers.CleanLines(text),
		Metadata: metadata,
	}, nil
}

// mainContent returns the element holding the page's own content.
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainSelectors {
		s := doc.Find(sel).First()
		if s.Length() > 0 && strings.TrimSpace(s.Text()) != "" {
			return s
		}
	}
	return doc.Find("body")
}
