package ai

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.ProviderValidator = (*ConfigValidator)(nil)

// ConfigValidator validates AI provider configurations.
type ConfigValidator struct {
	prompts driven.PromptStore
}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator(prompts driven.PromptStore) *ConfigValidator {
	return &ConfigValidator{prompts: prompts}
}

// Validate builds the configured services and pings each of them.
func (v *ConfigValidator) Validate(ctx context.Context, settings *domain.AppSettings) error {
	svc, err := NewServices(settings, v.prompts)
	if err != nil {
		return err
	}
	defer svc.Close()
	return svc.Validate(ctx)
}
