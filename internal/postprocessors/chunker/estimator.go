package chunker

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// Estimator approximates how many model tokens a text occupies.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator counts two characters per token.
type CharEstimator struct{}

// Estimate implements Estimator.
func (CharEstimator) Estimate(text string) int {
	return domain.EstimateTokens(text)
}

// TiktokenEstimator counts real cl100k_base tokens.
type TiktokenEstimator struct {
	codec tokenizer.Codec
}

// NewTiktokenEstimator loads the cl100k_base encoding.
func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &TiktokenEstimator{codec: codec}, nil
}

// Estimate implements Estimator. Texts the codec rejects fall back to the
// character heuristic.
func (e *TiktokenEstimator) Estimate(text string) int {
	ids, _, err := e.codec.Encode(text)
	if err != nil {
		return domain.EstimateTokens(text)
	}
	return len(ids)
}

// NewEstimator returns the estimator registered under name.
// Accepted names are "chars" (the default when empty) and "tiktoken".
func NewEstimator(name string) (Estimator, error) {
	switch name {
	case "", "chars":
		return CharEstimator{}, nil
	case "tiktoken":
		return NewTiktokenEstimator()
	default:
		return nil, fmt.Errorf("%w: unknown token estimator %q", domain.ErrInvalidInput, name)
	}
}

// FromSettings builds a chunker from the chunking section of the settings.
func FromSettings(cfg domain.ChunkingSettings) (*Chunker, error) {
	est, err := NewEstimator(cfg.Estimator)
	if err != nil {
		return nil, err
	}
	return New(WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.Overlap), WithEstimator(est)), nil
}
