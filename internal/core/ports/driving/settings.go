package driving

import "github.com/custodia-labs/townhall/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings, defaults filled in.
	Get() (*domain.AppSettings, error)

	// Set updates a single dotted key (e.g. "retrieval.rrf_k") and persists it.
	Set(key, value string) error

	// Value returns the effective value of one dotted key.
	Value(key string) (string, error)

	// Keys lists the keys understood by Set and Value.
	Keys() []string

	// Validate checks that the configured providers are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
