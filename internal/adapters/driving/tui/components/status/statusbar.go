// Package status renders the one-line footer shown under the chat and
// search views.
package status

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/styles"
)

// State selects the footer's label and key hints.
type State string

const (
	StateReady     State = "ready"
	StateSearching State = "searching"
	StateStreaming State = "streaming"
	StateError     State = "error"
	StateResults   State = "results"
	StateChat      State = "chat"
)

// Bar is a passive footer; views drive it through its setters.
type Bar struct {
	styles *styles.Styles
	keymap *keymap.KeyMap
	help   help.Model

	state   State
	message string
	tag     string
	count   int
	width   int
}

// NewBar creates a footer. Nil arguments fall back to the defaults.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	h := help.New()
	h.ShortSeparator = " | "
	h.Styles.ShortKey = s.Muted
	h.Styles.ShortDesc = s.Muted
	h.Styles.ShortSeparator = s.Muted

	return &Bar{styles: s, keymap: km, help: h, state: StateReady, width: 80}
}

// View renders the label on the left and the key hints on the right.
func (b *Bar) View() string {
	left := b.label()
	if b.tag != "" {
		left += "  " + b.styles.Muted.Render("["+b.tag+"]")
	}

	inner := b.width - b.styles.StatusBar.GetHorizontalFrameSize()
	b.help.Width = max(inner-lipgloss.Width(left)-1, 0)
	right := b.help.ShortHelpView(b.hints())

	gap := max(inner-lipgloss.Width(left)-lipgloss.Width(right), 1)
	row := lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.NewStyle().Width(gap).Render(""), right)
	return b.styles.StatusBar.Width(b.width).Render(row)
}

func (b *Bar) label() string {
	switch b.state {
	case StateSearching:
		return b.styles.Muted.Render("Searching...")
	case StateStreaming:
		return b.styles.Muted.Render("Answering...")
	case StateError:
		if b.message == "" {
			return b.styles.Error.Render("Error")
		}
		return b.styles.Error.Render("Error: " + b.message)
	case StateResults:
		return b.styles.Normal.Render(fmt.Sprintf("%d results", b.count))
	case StateChat, StateReady:
	}
	if b.message != "" {
		return b.styles.Normal.Render(b.message)
	}
	return b.styles.Muted.Render("Ready")
}

func (b *Bar) hints() []key.Binding {
	switch b.state {
	case StateChat, StateStreaming:
		return b.keymap.ChatHelp()
	case StateResults:
		return b.keymap.ResultsHelp()
	case StateReady, StateSearching, StateError:
	}
	return b.keymap.ShortHelp()
}

// SetState sets the current state.
func (b *Bar) SetState(state State) { b.state = state }

// State returns the current state.
func (b *Bar) State() State { return b.state }

// SetMessage sets the text shown in the ready, chat and error states.
func (b *Bar) SetMessage(message string) { b.message = message }

// Message returns the current message.
func (b *Bar) Message() string { return b.message }

// SetTag sets a short bracketed marker shown after the label, such as the
// search mode.
func (b *Bar) SetTag(tag string) { b.tag = tag }

// Tag returns the current tag.
func (b *Bar) Tag() string { return b.tag }

// SetResultCount sets the count shown in the results state.
func (b *Bar) SetResultCount(count int) { b.count = count }

// ResultCount returns the current result count.
func (b *Bar) ResultCount() int { return b.count }

// SetWidth sets the footer width.
func (b *Bar) SetWidth(width int) { b.width = width }

// Width returns the footer width.
func (b *Bar) Width() int { return b.width }

// Clear drops the message and count and returns to the ready state. The
// tag is kept.
func (b *Bar) Clear() {
	b.state = StateReady
	b.message = ""
	b.count = 0
}
