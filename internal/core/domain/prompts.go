package domain

// Prompt names. Each prompt is a user-editable text file.
const (
	PromptChatRules = "chat_rules"
	PromptTitle     = "title"
	PromptVision    = "vision"
)

// Placeholders substituted into the chat rules prompt.
const (
	PlaceholderAssistant    = "{{assistant}}"
	PlaceholderMunicipality = "{{municipality}}"
	PlaceholderMarker       = "{{marker}}"
)

// DefaultPrompts returns the built-in prompt texts keyed by name.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
func DefaultPrompts() map[string]string {
	return map[string]string{
		PromptChatRules: `Jsi {{assistant}}, virtuální asistent webu {{municipality}}.
Odpovídej česky, věcně a stručně. Vycházej pouze z níže uvedeného kontextu.
Pokud kontext odpověď neobsahuje, řekni, že tuto informaci nemáš k dispozici, a doporuč kontaktovat obecní úřad.
Pokud otázka nesouvisí s obcí, úřadem ani životem v obci, odpověz pouze {{marker}} a nic dalšího.
Nevymýšlej si adresy, data ani částky.`,

		PromptTitle: `Vytvoř krátký výstižný název konverzace (nejvýše 6 slov) podle první otázky. Odpověz pouze názvem bez uvozovek a tečky.`,

		PromptVision: `Přepiš veškerý čitelný text z obrázku. Zachovej pořadí, nadpisy, data, časy a kontakty. Nic nepřidávej ani nekomentuj. Pokud obrázek žádný text neobsahuje, odpověz prázdně.`,
	}
}
