package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

func TestSystemPrompt(t *testing.T) {
	cfg := domain.ChatSettings{AssistantName: "Bára", Municipality: "Horní Lhota"}

	rules := domain.DefaultPrompts()[domain.PromptChatRules]

	p := systemPrompt(rules, cfg, "[OFFTOPIC]", "[Zdroj: Odpady]\nÚterý.")
	assert.Contains(t, p, "Bára")
	assert.Contains(t, p, "Horní Lhota")
	assert.Contains(t, p, "odpověz pouze [OFFTOPIC]")
	assert.NotContains(t, p, "{{")
	assert.True(t, strings.HasSuffix(p, "Kontext:\n[Zdroj: Odpady]\nÚterý."))

	empty := systemPrompt(rules, cfg, "[OFFTOPIC]", "")
	assert.Contains(t, empty, "(žádné relevantní dokumenty)")
}

// stubPrompts serves fixed prompts or fails every load.
type stubPrompts struct {
	prompts map[string]string
	err     error
}

func (s stubPrompts) Load(name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.prompts[name], nil
}

func TestLoadPrompt(t *testing.T) {
	defaults := domain.DefaultPrompts()

	assert.Equal(t, defaults[domain.PromptTitle], loadPrompt(nil, domain.PromptTitle))
	assert.Equal(t, defaults[domain.PromptTitle],
		loadPrompt(stubPrompts{err: errors.New("disk gone")}, domain.PromptTitle))
	assert.Equal(t, defaults[domain.PromptTitle],
		loadPrompt(stubPrompts{prompts: map[string]string{domain.PromptTitle: "  "}}, domain.PromptTitle))
	assert.Equal(t, "Krátký název.",
		loadPrompt(stubPrompts{prompts: map[string]string{domain.PromptTitle: "Krátký název."}}, domain.PromptTitle))
}

func TestSystemPrompt_CustomRules(t *testing.T) {
	cfg := domain.ChatSettings{AssistantName: "Bára", Municipality: "Horní Lhota"}

	p := systemPrompt("Jsem {{assistant}} z {{municipality}}. Mimo téma: {{marker}}", cfg, "[X]", "ctx")
	assert.Equal(t, "Jsem Bára z Horní Lhota. Mimo téma: [X]\n\nKontext:\nctx", p)
}

func TestBuildPrompt(t *testing.T) {
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
	}

	msgs := buildPrompt("sys", history, "q2")

	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "q2"},
	}, msgs)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Svoz odpadu", "Svoz odpadu"},
		{"\"Svoz odpadu.\"", "Svoz odpadu"},
		{"„Poplatky za psa“", "Poplatky za psa"},
		{"Úřední hodiny\nDalší řádek", "Úřední hodiny"},
		{"   ", ""},
		{strings.Repeat("ř", 80), strings.Repeat("ř", maxTitleRunes)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanTitle(tt.in))
	}
}
