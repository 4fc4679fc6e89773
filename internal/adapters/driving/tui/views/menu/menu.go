// Package menu is the landing view reached with esc from the chat.
package menu

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/styles"
)

// Item is one menu entry. Entries with Quit set end the program.
type Item struct {
	Shortcut    string
	Label       string
	Description string
	View        messages.ViewType
	Quit        bool
}

// DefaultItems lists the entries in display order.
func DefaultItems() []Item {
	return []Item{
		{Shortcut: "c", Label: "Chat", Description: "Ask about the municipality", View: messages.ViewChat},
		{Shortcut: "s", Label: "Search", Description: "Preview what retrieval finds", View: messages.ViewSearch},
		{Shortcut: "d", Label: "Documents", Description: "Browse ingested sources", View: messages.ViewDocuments},
		{Shortcut: "?", Label: "Help", Description: "Keybindings", View: messages.ViewHelp},
		{Shortcut: "q", Label: "Quit", Quit: true},
	}
}

// View is the menu.
type View struct {
	styles *styles.Styles
	keys   *keymap.KeyMap
	items  []Item
	cursor int
	width  int
	height int
	ready  bool
}

// NewView creates the menu with DefaultItems.
func NewView(s *styles.Styles) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles: s,
		keys:   keymap.DefaultKeyMap(),
		items:  DefaultItems(),
		width:  80,
		height: 24,
	}
}

// Init implements the view contract.
func (v *View) Init() tea.Cmd {
	return nil
}

// Update moves the cursor and activates entries by enter or shortcut.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keys.Up):
			v.cursor = max(v.cursor-1, 0)
		case key.Matches(msg, v.keys.Down):
			v.cursor = min(v.cursor+1, len(v.items)-1)
		case key.Matches(msg, v.keys.Select):
			return v, v.activate(v.items[v.cursor])
		case key.Matches(msg, v.keys.Back):
			return v, func() tea.Msg {
				return messages.ViewChanged{View: messages.ViewChat}
			}
		default:
			for i, item := range v.items {
				if msg.String() == item.Shortcut {
					v.cursor = i
					return v, v.activate(item)
				}
			}
		}
	}
	return v, nil
}

func (v *View) activate(item Item) tea.Cmd {
	if item.Quit {
		return tea.Quit
	}
	return func() tea.Msg {
		return messages.ViewChanged{View: item.View}
	}
}

// View renders the menu.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	rows := make([]string, 0, len(v.items))
	for i, item := range v.items {
		pointer, label := "  ", v.styles.Normal.Render(item.Label)
		if i == v.cursor {
			pointer, label = "> ", v.styles.Subtitle.Render(item.Label)
		}
		row := fmt.Sprintf("%s%s %s", pointer, v.styles.Muted.Render("["+item.Shortcut+"]"), label)
		if item.Description != "" {
			row += "  " + v.styles.Muted.Render(item.Description)
		}
		rows = append(rows, row)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		v.styles.Title.Render("Townhall"),
		"",
		v.styles.Muted.Render("Municipal information assistant"),
		"",
		lipgloss.JoinVertical(lipgloss.Left, rows...),
		"",
		v.styles.Help.Render("[j/k] Navigate  [Enter] Select  [esc] Back to chat"),
	)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Selected returns the cursor index.
func (v *View) Selected() int {
	return v.cursor
}

// Items returns the menu entries.
func (v *View) Items() []Item {
	return v.items
}
