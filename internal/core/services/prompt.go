package services

import (
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

const maxTitleRunes = 60

// loadPrompt returns the named prompt from store, or the built-in default
// when the store is nil or fails.
func loadPrompt(store driven.PromptStore, name string) string {
	if store != nil {
		if prompt, err := store.Load(name); err == nil && strings.TrimSpace(prompt) != "" {
			return prompt
		}
	}
	return domain.DefaultPrompts()[name]
}

// systemPrompt fills the rules template and appends the retrieved context.
// The rules tell the model to answer from the context and to reply with only
// the marker when the question is outside the domain.
func systemPrompt(rules string, cfg domain.ChatSettings, marker, context string) string {
	var b strings.Builder
	b.WriteString(strings.NewReplacer(
		domain.PlaceholderAssistant, cfg.AssistantName,
		domain.PlaceholderMunicipality, cfg.Municipality,
		domain.PlaceholderMarker, marker,
	).Replace(strings.TrimSpace(rules)))
	b.WriteString("\n\nKontext:\n")
	if context == "" {
		b.WriteString("(žádné relevantní dokumenty)")
	} else {
		b.WriteString(context)
	}
	return b.String()
}

// buildPrompt assembles system prompt, history and the new question.
func buildPrompt(system string, history []domain.ChatMessage, question string) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	return append(msgs, domain.ChatMessage{Role: domain.RoleUser, Content: question})
}

func titlePrompt(instruction, question string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: instruction},
		{Role: domain.RoleUser, Content: question},
	}
}

// cleanTitle trims quotes and punctuation from a generated title and caps it.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'„“”. ")
	return truncateRunes(s, maxTitleRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
