package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/logger"
)

// ModerationGate screens user input before any retrieval or generation.
type ModerationGate struct {
	moderator  driven.Moderator
	enabled    bool
	failClosed bool
}

// NewModerationGate creates a gate. A nil moderator disables moderation.
func NewModerationGate(moderator driven.Moderator, cfg domain.ModerationSettings) *ModerationGate {
	return &ModerationGate{
		moderator:  moderator,
		enabled:    cfg.Enabled && moderator != nil,
		failClosed: cfg.FailClosed,
	}
}

// ShouldBlock reports whether text violates the content policy.
//
// When the moderation capability is down the message is allowed, unless the
// gate fails closed, in which case the outage is returned as an error.
func (g *ModerationGate) ShouldBlock(ctx context.Context, text string) (bool, error) {
	if !g.enabled {
		return false, nil
	}

	verdict, err := g.moderator.Moderate(ctx, text)
	if err != nil {
		if g.failClosed {
			return false, fmt.Errorf("%w: %w", domain.ErrModerationUnavailable, err)
		}
		logger.Warn("Moderation unavailable, allowing message: %v", err)
		return false, nil
	}

	if verdict.Flagged {
		logger.Info("Message flagged by moderation: %s", strings.Join(verdict.Categories, ","))
	}
	return verdict.Flagged, nil
}
