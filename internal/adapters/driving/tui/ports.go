// Package tui provides an interactive terminal chat client for townhall.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces used by the TUI.
// Search and Documents are optional; their menu entries report an error
// when the service is missing.
type Ports struct {
	// Chat runs conversations.
	Chat driving.ChatService

	// Search previews retrieval for a question.
	Search driving.SearchService

	// Documents browses the ingested corpus.
	Documents driving.DocumentService
}

// Validate ensures the required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Chat == nil {
		return ErrMissingChatService
	}
	return nil
}
