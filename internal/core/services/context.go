package services

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

var (
	mdImage    = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink     = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdHeading  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	mdBold     = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	mdEmphasis = regexp.MustCompile(`\*([^*\s][^*]*)\*`)
	mdRule     = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
)

// ContextAssembler packs ranked chunks into a token-budgeted prompt context.
type ContextAssembler struct {
	minScore float64
}

// NewContextAssembler creates an assembler that ignores results scoring
// below minScore.
func NewContextAssembler(minScore float64) *ContextAssembler {
	return &ContextAssembler{minScore: minScore}
}

// BuildContext appends results in ranked order until the next block would
// push the estimate past maxTokens. Sources are the distinct URLs of the
// included chunks in first-seen order.
func (a *ContextAssembler) BuildContext(results []domain.RankedChunk, maxTokens int) domain.AssembledContext {
	var (
		b       strings.Builder
		sources []domain.Source
		seen    = make(map[string]bool)
	)

	for _, r := range results {
		if r.Score < a.minScore {
			continue
		}
		content := cleanMarkdown(r.Content)
		if content == "" {
			continue
		}

		block := "[Zdroj: " + firstNonEmpty(r.Title, r.SourceURL) + "]\n" + content
		candidate := block
		if b.Len() > 0 {
			candidate = b.String() + "\n\n" + block
		}
		if domain.EstimateTokens(candidate) > maxTokens {
			break
		}

		b.Reset()
		b.WriteString(candidate)

		if r.SourceURL != "" && !seen[r.SourceURL] {
			seen[r.SourceURL] = true
			sources = append(sources, domain.Source{URL: r.SourceURL, Title: r.Title, Type: r.DocumentType})
		}
	}

	text := b.String()
	return domain.AssembledContext{
		Text:       text,
		Sources:    sources,
		TokenCount: domain.EstimateTokens(text),
	}
}

// cleanMarkdown strips heading hashes, emphasis, inline code ticks and link
// syntax, then collapses whitespace.
func cleanMarkdown(s string) string {
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdRule.ReplaceAllString(s, "")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBold.ReplaceAllString(s, "$2")
	s = mdEmphasis.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "`", "")
	return strings.Join(strings.Fields(s), " ")
}
