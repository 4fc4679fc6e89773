package domain

// SearchMode selects the retrieval strategy.
type SearchMode string

// Available search modes.
const (
	// SearchModeVector ranks chunks by vector distance only.
	SearchModeVector SearchMode = "vector"

	// SearchModeHybrid fuses vector and lexical rankings.
	SearchModeHybrid SearchMode = "hybrid"
)

// IsValid returns true if the search mode is recognised.
func (m SearchMode) IsValid() bool {
	return m == SearchModeVector || m == SearchModeHybrid
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// SearchOptions configures a retrieval call.
type SearchOptions struct {
	// Limit is the maximum number of results.
	Limit int

	// Mode defaults to hybrid when empty.
	Mode SearchMode
}

// RankedChunk is a retrieved chunk joined with its document.
type RankedChunk struct {
	ChunkID      string
	DocumentID   string
	Content      string
	SourceURL    string
	Title        string
	DocumentType DocumentType
	Score        float64
}

// VectorHit is a nearest-neighbour match; smaller Distance is closer.
type VectorHit struct {
	ChunkID  string
	Distance float64
}

// LexicalHit is a keyword match; larger Score is more relevant.
type LexicalHit struct {
	ChunkID string
	Score   float64
}
