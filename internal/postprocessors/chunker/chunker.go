// Package chunker splits document text into overlapping, size-bounded chunks.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

const (
	// DefaultChunkSize is the default token budget of one chunk.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the default number of tokens repeated from the
	// tail of one chunk at the head of the next.
	DefaultChunkOverlap = 50
)

// Chunker splits text on sentence boundaries.
type Chunker struct {
	chunkSize int
	overlap   int
	estimator Estimator
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the token budget of a chunk.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in tokens.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithEstimator replaces the character based token estimate.
func WithEstimator(e Estimator) Option {
	return func(c *Chunker) {
		if e != nil {
			c.estimator = e
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		estimator: CharEstimator{},
	}
	for _, opt := range opts {
		opt(c)
	}

	// An overlap as large as the chunk would never make progress.
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// ChunkSize returns the configured token budget.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// span is a sentence as a byte range of the text, including the whitespace
// that follows it, so consecutive spans tile the text.
type span struct {
	start, end int
}

// Chunk splits text into ordered chunks. Text that fits the budget is
// returned as one chunk; longer text is packed sentence by sentence.
func (c *Chunker) Chunk(text string) []domain.TextChunk {
	text = strings.TrimSpace(strings.ToValidUTF8(text, ""))
	if text == "" {
		return nil
	}

	if tokens := c.estimator.Estimate(text); tokens <= c.chunkSize {
		return []domain.TextChunk{{Text: text, TokenCount: tokens, Index: 0}}
	}

	sentences := splitSentences(text)
	var chunks []domain.TextChunk
	emit := func(start, end int) {
		s := strings.TrimSpace(text[start:end])
		if s == "" {
			return
		}
		chunks = append(chunks, domain.TextChunk{
			Text:       s,
			TokenCount: c.estimator.Estimate(s),
			Index:      len(chunks),
		})
	}

	// The current chunk is text[start:end].
	start, end := 0, 0
	for _, sent := range sentences {
		switch {
		case start == end:
			// Empty chunk: the sentence goes in even when it alone is oversized.
			end = sent.end
		case c.estimator.Estimate(strings.TrimSpace(text[start:sent.end])) <= c.chunkSize:
			end = sent.end
		default:
			emit(start, end)
			start = c.overlapStart(text, sentences, start, end)
			// An overlap that cannot share a chunk with the next sentence is dropped.
			if start == end || c.estimator.Estimate(strings.TrimSpace(text[start:sent.end])) > c.chunkSize {
				start = sent.start
			}
			end = sent.end
		}
	}
	emit(start, end)

	return chunks
}

// overlapStart returns where the overlap taken from the chunk text[start:end]
// begins. It prefers the earliest sentence start whose tail fits the overlap
// budget, falls back to a word boundary inside the last sentence and returns
// end when nothing fits.
func (c *Chunker) overlapStart(text string, sentences []span, start, end int) int {
	if c.overlap == 0 {
		return end
	}

	fits := func(from int) bool {
		return c.estimator.Estimate(strings.TrimSpace(text[from:end])) <= c.overlap
	}

	best := end
	lastSentence := start
	for i := len(sentences) - 1; i >= 0; i-- {
		s := sentences[i]
		if s.start >= end {
			continue
		}
		if s.start <= start {
			break
		}
		if lastSentence == start {
			lastSentence = s.start
		}
		if !fits(s.start) {
			break
		}
		best = s.start
	}
	if best < end {
		return best
	}

	// No sentence boundary inside the window: cut on whitespace instead.
	for i := lastSentence; i < end; {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			next := i + size
			if next < end && fits(next) {
				return next
			}
		}
		i += size
	}
	return end
}

// splitSentences breaks text after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	prevTerminal := false
	for i, r := range text {
		if prevTerminal && unicode.IsSpace(r) {
			// Swallow the whitespace run so the next sentence starts on a letter.
			j := i
			for j < len(text) {
				r2, size := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += size
			}
			if j > start {
				spans = append(spans, span{start: start, end: j})
				start = j
			}
		}
		prevTerminal = r == '.' || r == '!' || r == '?'
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}
