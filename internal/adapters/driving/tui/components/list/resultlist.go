// Package list renders ranked retrieval results for the search view.
package list

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/townhall/internal/core/domain"
)

// linesPerResult is the height of one rendered result.
const linesPerResult = 3

// ResultList shows ranked chunks best first, one selectable entry each.
type ResultList struct {
	styles *styles.Styles
	keys   *keymap.KeyMap

	results []domain.RankedChunk
	cursor  int
	width   int
	height  int
}

// NewResultList creates an empty list.
func NewResultList(s *styles.Styles) *ResultList {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &ResultList{styles: s, keys: keymap.DefaultKeyMap(), width: 80, height: 10}
}

// Update moves the cursor on up and down keys.
func (r *ResultList) Update(msg tea.Msg) (*ResultList, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return r, nil
	}
	switch {
	case key.Matches(km, r.keys.Up):
		r.SetSelected(r.cursor - 1)
	case key.Matches(km, r.keys.Down):
		r.SetSelected(r.cursor + 1)
	}
	return r, nil
}

// View renders the window of results around the cursor.
func (r *ResultList) View() string {
	if len(r.results) == 0 {
		return r.styles.Muted.Render("No results")
	}

	first, last := r.window()
	blocks := make([]string, 0, last-first+2)
	blocks = append(blocks, r.styles.Subtitle.Render(fmt.Sprintf("Results (%d)", len(r.results))), "")
	for i := first; i < last; i++ {
		blocks = append(blocks, r.entry(i))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

// window returns the half-open range of result indexes that fit the height.
func (r *ResultList) window() (int, int) {
	fit := max((r.height-4)/linesPerResult, 1)
	first := max(r.cursor-fit+1, 0)
	return first, min(first+fit, len(r.results))
}

func (r *ResultList) entry(i int) string {
	res := &r.results[i]

	title := res.Title
	if title == "" {
		title = "(Untitled)"
	}
	meta := fmt.Sprintf("%-11s %.3f", res.DocumentType, res.Score)
	titleWidth := max(r.width-lipgloss.Width(meta)-8, 10)
	head := fmt.Sprintf("%2d. %-*s", i+1, titleWidth, ansi.Truncate(title, titleWidth, "..."))

	bodyWidth := max(r.width-6, 20)
	snippet := strings.Join(strings.Fields(res.Content), " ")
	url := r.styles.Subtitle.Render("    " + ansi.Truncate(res.SourceURL, bodyWidth, "..."))
	text := r.styles.Muted.Render("    " + ansi.Truncate(snippet, bodyWidth, "..."))

	if i == r.cursor {
		return r.styles.Selected.Render(head+"  "+meta) + "\n" + url + "\n" + text
	}
	return r.styles.Normal.Render(head+"  ") + r.styles.Muted.Render(meta) + "\n" + url + "\n" + text
}

// SetResults replaces the list and moves the cursor to the top.
func (r *ResultList) SetResults(results []domain.RankedChunk) {
	r.results = results
	r.cursor = 0
}

// Results returns the current results.
func (r *ResultList) Results() []domain.RankedChunk {
	return r.results
}

// Selected returns the cursor index.
func (r *ResultList) Selected() int {
	return r.cursor
}

// SetSelected moves the cursor, ignoring indexes outside the list.
func (r *ResultList) SetSelected(index int) {
	if index >= 0 && index < len(r.results) {
		r.cursor = index
	}
}

// SelectedResult returns the result under the cursor, or nil when empty.
func (r *ResultList) SelectedResult() *domain.RankedChunk {
	if len(r.results) == 0 {
		return nil
	}
	return &r.results[r.cursor]
}

// SetDimensions sets the area the list renders into.
func (r *ResultList) SetDimensions(width, height int) {
	r.width = width
	r.height = height
}

// Len returns the number of results.
func (r *ResultList) Len() int {
	return len(r.results)
}
