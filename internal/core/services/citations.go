package services

import (
	"strings"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// CitationFormatter orders and paginates sources for display.
type CitationFormatter struct {
	minWebpages   int
	initialCount  int
	noInfoPhrases []string
}

// NewCitationFormatter creates a formatter. Answers containing one of
// noInfoPhrases (case-insensitive) never show sources.
func NewCitationFormatter(cfg domain.CitationSettings, noInfoPhrases []string) *CitationFormatter {
	if cfg.InitialCount <= 0 {
		cfg.InitialCount = domain.DefaultAppSettings().Citations.InitialCount
	}
	phrases := make([]string, 0, len(noInfoPhrases))
	for _, p := range noInfoPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &CitationFormatter{
		minWebpages:   max(cfg.MinWebpages, 0),
		initialCount:  cfg.InitialCount,
		noInfoPhrases: phrases,
	}
}

// Reorder moves the first minWebpages webpage sources to the front. Every
// other source keeps its relative order.
func (f *CitationFormatter) Reorder(sources []domain.Source) []domain.Source {
	front := make([]domain.Source, 0, len(sources))
	rest := make([]domain.Source, 0, len(sources))
	for _, src := range sources {
		if src.Type == domain.DocumentTypeWebpage && len(front) < f.minWebpages {
			front = append(front, src)
			continue
		}
		rest = append(rest, src)
	}
	return append(front, rest...)
}

// FormatForAPI reorders the sources, numbers them from 1 and splits them into
// the initial window and the expandable remainder.
func (f *CitationFormatter) FormatForAPI(sources []domain.Source) domain.CitationSet {
	ordered := f.Reorder(sources)

	set := domain.CitationSet{
		Initial:  make([]domain.Citation, 0, min(len(ordered), f.initialCount)),
		Expanded: []domain.Citation{},
	}
	for i, src := range ordered {
		c := domain.Citation{Index: i + 1, URL: src.URL, Title: src.Title, Type: src.Type}
		if i < f.initialCount {
			set.Initial = append(set.Initial, c)
		} else {
			set.Expanded = append(set.Expanded, c)
		}
	}
	set.HasMore = len(set.Expanded) > 0
	return set
}

// ShouldShowSources reports whether an answer should be displayed with the
// sources of its context.
func (f *CitationFormatter) ShouldShowSources(answer string, ctx domain.AssembledContext) bool {
	if ctx.IsEmpty() || len(ctx.Sources) == 0 {
		return false
	}
	lower := strings.ToLower(answer)
	for _, p := range f.noInfoPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
