package driven

// PromptStore loads prompt texts by name (domain.Prompt* constants).
// Implementations fall back to domain.DefaultPrompts when a prompt has not
// been customised.
type PromptStore interface {
	Load(name string) (string, error)
}
