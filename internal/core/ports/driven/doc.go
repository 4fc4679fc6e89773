// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - DocumentStore: documents, chunks and embeddings
//   - ConversationStore, FeedbackStore, ViolationStore: guest state
//   - RateCounter: atomic sliding-window counters per guest
//   - VectorIndex: nearest-neighbour ranking over chunk embeddings
//   - EmbeddingService: query and chunk vectors
//   - Generator: one-shot and streamed completions
//   - ContentFetcher, NormaliserRegistry: source bytes to text
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LexicalIndex: keyword ranking. Without it, hybrid retrieval is vector-only.
//   - Moderator: input moderation. Without it, messages are not moderated.
//   - VisionService: image text extraction. Without it, images are unsupported.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
