// Package messages defines Bubbletea message types for the TUI.
// Messages represent events and commands that flow through the Elm architecture.
package messages

import (
	"github.com/custodia-labs/townhall/internal/core/domain"
)

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewMenu is the main navigation menu.
	ViewMenu ViewType = iota
	// ViewChat is the conversation view.
	ViewChat
	// ViewSearch is the retrieval preview view.
	ViewSearch
	// ViewDocuments lists ingested documents.
	ViewDocuments
	// ViewDocContent shows the text of one document.
	ViewDocContent
	// ViewHelp is the help/keybindings view.
	ViewHelp
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewMenu:
		return "menu"
	case ViewChat:
		return "chat"
	case ViewSearch:
		return "search"
	case ViewDocuments:
		return "documents"
	case ViewDocContent:
		return "doc_content"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ConversationStarted carries a newly created conversation.
type ConversationStarted struct {
	Conversation *domain.Conversation
	Err          error
}

// ConversationEnded reports the outcome of ending a conversation.
type ConversationEnded struct {
	ConversationID string
	Err            error
}

// StreamOpened carries the event channel of a turn, or the synchronous
// refusal (validation, rate limit, policy) that prevented it.
type StreamOpened struct {
	Events <-chan domain.Event
	Err    error
}

// StreamEvent is one event read from an open turn.
type StreamEvent struct {
	Event domain.Event
}

// StreamClosed is sent when the turn's channel has been drained.
type StreamClosed struct{}

// FeedbackSubmitted reports the outcome of a feedback submission.
type FeedbackSubmitted struct {
	Feedback *domain.Feedback
	Err      error
}

// SearchCompleted carries ranked chunks back to the model.
type SearchCompleted struct {
	Results []domain.RankedChunk
	Err     error
}

// DocumentsLoaded is sent when the document list has been loaded.
type DocumentsLoaded struct {
	Documents []domain.Document
	Err       error
}

// DocumentSelected is sent when a document is chosen for display.
type DocumentSelected struct {
	Document domain.Document
}

// DocumentContentLoaded is sent when a document's text has been loaded.
type DocumentContentLoaded struct {
	DocumentID string
	Content    string
	Err        error
}

// DocumentDeleted is sent when a document removal finishes.
type DocumentDeleted struct {
	DocumentID string
	Err        error
}

// ErrorOccurred is sent when an error needs to be displayed.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}

// ConversationLoaded carries a resumed conversation with its history.
type ConversationLoaded struct {
	Detail *domain.ConversationDetail
	Err    error
}
