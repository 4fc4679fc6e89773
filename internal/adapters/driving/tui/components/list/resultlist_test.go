package list

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

func testResults() []domain.RankedChunk {
	return []domain.RankedChunk{
		{
			ChunkID:      "c1",
			DocumentID:   "d1",
			Title:        "Svoz odpadu 2026",
			SourceURL:    "https://obec.example.cz/odpady",
			DocumentType: domain.DocumentTypeWebpage,
			Content:      "Svoz   komunálního\nodpadu probíhá každé úterý.",
			Score:        0.91,
		},
		{
			ChunkID:      "c2",
			DocumentID:   "d2",
			SourceURL:    "file:///data/vyhlaska.pdf",
			DocumentType: domain.DocumentTypePDF,
			Content:      "Obecně závazná vyhláška.",
			Score:        0.42,
		},
	}
}

func TestNewResultList(t *testing.T) {
	r := NewResultList(nil)

	assert.NotNil(t, r.styles)
	assert.Zero(t, r.Len())
	assert.Nil(t, r.SelectedResult())
	assert.Contains(t, r.View(), "No results")
}

func TestResultList_View(t *testing.T) {
	r := NewResultList(nil)
	r.SetDimensions(120, 30)
	r.SetResults(testResults())

	view := r.View()

	assert.Contains(t, view, "Results (2)")
	assert.Contains(t, view, " 1. Svoz odpadu 2026")
	assert.Contains(t, view, " 2. (Untitled)")
	assert.Contains(t, view, "https://obec.example.cz/odpady")
	assert.Contains(t, view, "Svoz komunálního odpadu probíhá každé úterý.")
	assert.Contains(t, view, "0.910")
}

func TestResultList_View_TruncatesLongTitles(t *testing.T) {
	r := NewResultList(nil)
	r.SetDimensions(40, 30)
	r.SetResults([]domain.RankedChunk{{ChunkID: "c", Title: strings.Repeat("Zastupitelstvo ", 10)}})

	view := r.View()

	assert.Contains(t, view, "...")
	assert.NotContains(t, view, strings.Repeat("Zastupitelstvo ", 10))
}

func TestResultList_View_ScrollsWithCursor(t *testing.T) {
	results := make([]domain.RankedChunk, 10)
	for i := range results {
		results[i] = domain.RankedChunk{ChunkID: fmt.Sprint(i), Title: fmt.Sprintf("Dokument %d", i)}
	}
	r := NewResultList(nil)
	r.SetDimensions(80, 10) // two entries fit
	r.SetResults(results)
	r.SetSelected(5)

	view := r.View()

	assert.Contains(t, view, "Dokument 4")
	assert.Contains(t, view, "Dokument 5")
	assert.NotContains(t, view, "Dokument 3")
	assert.NotContains(t, view, "Dokument 6")
}

func TestResultList_Navigation(t *testing.T) {
	r := NewResultList(nil)
	r.SetResults(testResults())

	r.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, r.Selected())

	r.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	assert.Equal(t, 1, r.Selected(), "cursor stops at the last result")

	r.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	assert.Equal(t, 0, r.Selected())

	r.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, r.Selected(), "cursor stops at the first result")
}

func TestResultList_SetSelected(t *testing.T) {
	r := NewResultList(nil)
	r.SetResults(testResults())

	r.SetSelected(1)
	require.NotNil(t, r.SelectedResult())
	assert.Equal(t, "c2", r.SelectedResult().ChunkID)

	r.SetSelected(5)
	assert.Equal(t, 1, r.Selected())

	r.SetResults(testResults()[:1])
	assert.Zero(t, r.Selected())
	assert.Equal(t, 1, r.Len())
}
