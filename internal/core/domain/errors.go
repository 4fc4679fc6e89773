package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist or is not
	// owned by the requesting guest.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates no normaliser handles a content type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Ingestion Errors.

	// ErrFetchFailed indicates source bytes could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrHashFailed indicates the content digest could not be computed.
	ErrHashFailed = errors.New("hash failed")

	// Upstream Errors.

	// ErrEmbeddingUnavailable indicates the embedding service failed or is not configured.
	// Retrieval cannot run without a query vector.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLexicalUnavailable indicates keyword search failed.
	// Hybrid retrieval degrades to vector-only.
	ErrLexicalUnavailable = errors.New("lexical search unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrGenerationFailed indicates the generative model failed mid-turn.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrUpstreamRejected indicates an upstream API refused a request in a way
	// that retrying cannot fix (bad input, authentication).
	ErrUpstreamRejected = errors.New("request rejected by upstream")

	// ErrModerationUnavailable indicates the moderation capability failed.
	ErrModerationUnavailable = errors.New("moderation unavailable")

	// Conversation Errors.

	// ErrConversationEnded indicates a message was sent to an ended conversation.
	ErrConversationEnded = errors.New("conversation ended")

	// ErrNotAssistantMessage indicates feedback targeted a non-assistant message.
	ErrNotAssistantMessage = errors.New("not an assistant message")

	// Policy Errors.

	// ErrMessageFlagged indicates moderation rejected the user message.
	ErrMessageFlagged = errors.New("message flagged by moderation")

	// ErrGuestBlocked indicates the guest exceeded the off-topic threshold.
	ErrGuestBlocked = errors.New("guest temporarily blocked")

	// ErrModerationCooldown indicates the guest recently sent a flagged message.
	ErrModerationCooldown = errors.New("moderation cooldown")

	// ErrRateLimited indicates a per-guest rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// PolicyError carries the canned text shown to the user for a policy refusal.
type PolicyError struct {
	Err     error
	Message string
}

func (e *PolicyError) Error() string {
	return e.Err.Error()
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}
