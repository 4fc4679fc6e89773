// Package domain defines the core entities of the townhall assistant.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document, Chunk, Embedding: the ingested corpus
//   - RankedChunk, AssembledContext, CitationSet: one retrieval turn
//   - Conversation, Message, Feedback, OfftopicViolation: guest state
//   - Event: the tagged output of a streamed turn
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
