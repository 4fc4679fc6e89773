package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

func source(name string, typ domain.DocumentType) domain.Source {
	return domain.Source{URL: "https://obec.cz/" + name, Title: name, Type: typ}
}

func titles(sources []domain.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Title
	}
	return out
}

func newTestFormatter() *CitationFormatter {
	return NewCitationFormatter(domain.CitationSettings{MinWebpages: 2, InitialCount: 4},
		domain.DefaultAppSettings().Chat.NoInfoPhrases)
}

func TestCitationFormatter_Reorder(t *testing.T) {
	f := newTestFormatter()

	t.Run("webpages promoted", func(t *testing.T) {
		in := []domain.Source{
			source("p1", domain.DocumentTypePDF),
			source("p2", domain.DocumentTypePDF),
			source("w1", domain.DocumentTypeWebpage),
			source("w2", domain.DocumentTypeWebpage),
			source("p3", domain.DocumentTypePDF),
		}
		assert.Equal(t, []string{"w1", "w2", "p1", "p2", "p3"}, titles(f.Reorder(in)))
	})

	t.Run("only first two webpages move", func(t *testing.T) {
		in := []domain.Source{
			source("p1", domain.DocumentTypePDF),
			source("w1", domain.DocumentTypeWebpage),
			source("w2", domain.DocumentTypeWebpage),
			source("w3", domain.DocumentTypeWebpage),
		}
		assert.Equal(t, []string{"w1", "w2", "p1", "w3"}, titles(f.Reorder(in)))
	})

	t.Run("no webpages keeps order", func(t *testing.T) {
		in := []domain.Source{
			source("p1", domain.DocumentTypePDF),
			source("i1", domain.DocumentTypeImage),
		}
		assert.Equal(t, []string{"p1", "i1"}, titles(f.Reorder(in)))
	})

	t.Run("is a permutation", func(t *testing.T) {
		in := []domain.Source{
			source("c", domain.DocumentTypeCalendar),
			source("w", domain.DocumentTypeWebpage),
			source("b", domain.DocumentTypeBoard),
		}
		assert.ElementsMatch(t, titles(in), titles(f.Reorder(in)))
	})
}

func TestCitationFormatter_FormatForAPI(t *testing.T) {
	f := newTestFormatter()

	t.Run("splits after initial count", func(t *testing.T) {
		set := f.FormatForAPI([]domain.Source{
			source("p1", domain.DocumentTypePDF),
			source("p2", domain.DocumentTypePDF),
			source("w1", domain.DocumentTypeWebpage),
			source("w2", domain.DocumentTypeWebpage),
			source("p3", domain.DocumentTypePDF),
		})

		require.Len(t, set.Initial, 4)
		require.Len(t, set.Expanded, 1)
		assert.True(t, set.HasMore)
		assert.Equal(t, "w1", set.Initial[0].Title)
		assert.Equal(t, "p3", set.Expanded[0].Title)
		for i, c := range set.All() {
			assert.Equal(t, i+1, c.Index)
		}
	})

	t.Run("fewer than initial count", func(t *testing.T) {
		set := f.FormatForAPI([]domain.Source{source("w1", domain.DocumentTypeWebpage)})

		assert.Len(t, set.Initial, 1)
		assert.NotNil(t, set.Expanded)
		assert.Empty(t, set.Expanded)
		assert.False(t, set.HasMore)
	})

	t.Run("empty", func(t *testing.T) {
		set := f.FormatForAPI(nil)

		assert.NotNil(t, set.Initial)
		assert.True(t, set.IsEmpty())
		assert.False(t, set.HasMore)
	})
}

func TestCitationFormatter_ShouldShowSources(t *testing.T) {
	f := newTestFormatter()
	ctx := domain.AssembledContext{
		Text:    "[Zdroj: A]\nobsah",
		Sources: []domain.Source{source("a", domain.DocumentTypeWebpage)},
	}

	assert.True(t, f.ShouldShowSources("Svoz odpadu probíhá v úterý.", ctx))
	assert.False(t, f.ShouldShowSources("Tuto informaci NEMÁM K DISPOZICI.", ctx))
	assert.False(t, f.ShouldShowSources("Bohužel nemám informace o otevírací době.", ctx))
	assert.False(t, f.ShouldShowSources("Svoz je v úterý.", domain.AssembledContext{}))
}

func TestNewCitationFormatter_Defaults(t *testing.T) {
	f := NewCitationFormatter(domain.CitationSettings{MinWebpages: -1}, []string{"  ", "Nevím"})

	assert.Equal(t, 4, f.initialCount)
	assert.Zero(t, f.minWebpages)
	assert.Equal(t, []string{"nevím"}, f.noInfoPhrases)
}
