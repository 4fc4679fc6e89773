package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockFetcher serves raw documents keyed by source URL.
type mockFetcher struct {
	mu    sync.Mutex
	docs  map[string]*domain.RawDocument
	err   error
	calls int
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{docs: make(map[string]*domain.RawDocument)}
}

func (m *mockFetcher) put(url, mime, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[url] = &domain.RawDocument{SourceURL: url, MIMEType: mime, Content: []byte(content)}
}

func (m *mockFetcher) Fetch(_ context.Context, src domain.SourceDescriptor) (*domain.RawDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	raw, ok := m.docs[src.URL()]
	if !ok {
		return nil, errors.Join(domain.ErrFetchFailed, errors.New("no such document"))
	}
	return raw, nil
}

// mockNormalisers returns the raw bytes as text.
type mockNormalisers struct {
	err   error
	calls int
}

func (m *mockNormalisers) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &domain.NormaliseResult{
		Title:    "Titulek " + raw.SourceURL,
		Type:     domain.DocumentTypeWebpage,
		Text:     string(raw.Content),
		Metadata: map[string]any{"normaliser": "mock"},
	}, nil
}

func (m *mockNormalisers) Register(driven.Normaliser) {}

func (m *mockNormalisers) SupportedMIMETypes() []string { return []string{"text/plain"} }

// memDocStore is an in-memory driven.DocumentStore.
type memDocStore struct {
	mu         sync.Mutex
	docs       map[string]domain.Document
	chunks     map[string]domain.Chunk
	embeddings map[string]domain.Embedding // by chunk id
	saveErr    error
	saveCalls  int
}

func newMemDocStore() *memDocStore {
	return &memDocStore{
		docs:       make(map[string]domain.Document),
		chunks:     make(map[string]domain.Chunk),
		embeddings: make(map[string]domain.Embedding),
	}
}

func (m *memDocStore) GetDocumentByURL(_ context.Context, url string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.SourceURL == url {
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDocStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (m *memDocStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceURL < out[j].SourceURL })
	return out, nil
}

func (m *memDocStore) ResetDocument(_ context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropChildren(doc.ID)
	m.docs[doc.ID] = *doc
	return nil
}

func (m *memDocStore) dropChildren(docID string) {
	for id, c := range m.chunks {
		if c.DocumentID == docID {
			delete(m.embeddings, id)
			delete(m.chunks, id)
		}
	}
}

func (m *memDocStore) SaveEmbeddedChunks(_ context.Context, items []domain.EmbeddedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, it := range items {
		m.chunks[it.Chunk.ID] = it.Chunk
		m.embeddings[it.Chunk.ID] = it.Embedding
	}
	return nil
}

func (m *memDocStore) GetChunks(_ context.Context, docID string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == docID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *memDocStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memDocStore) RankedChunks(_ context.Context, ids []string) ([]domain.RankedChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RankedChunk
	for _, id := range ids {
		c, ok := m.chunks[id]
		if !ok {
			continue
		}
		d := m.docs[c.DocumentID]
		out = append(out, domain.RankedChunk{
			ChunkID: c.ID, DocumentID: d.ID, Content: c.Content,
			SourceURL: d.SourceURL, Title: d.Title, DocumentType: d.Type,
		})
	}
	return out, nil
}

func (m *memDocStore) EmbeddingModel(_ context.Context, docID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == docID {
			return m.embeddings[id].Model, nil
		}
	}
	return "", nil
}

func (m *memDocStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.ErrNotFound
	}
	m.dropChildren(id)
	delete(m.docs, id)
	return nil
}

func (m *memDocStore) Ping(context.Context) error { return nil }

// addChunk seeds a document and one chunk for search tests.
func (m *memDocStore) addChunk(docID, url string, typ domain.DocumentType, chunkID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docID] = domain.Document{ID: docID, SourceURL: url, Title: "Doc " + docID, Type: typ}
	m.chunks[chunkID] = domain.Chunk{ID: chunkID, DocumentID: docID, Content: content}
}

// mockVectorIndex implements driven.VectorIndex for testing.
type mockVectorIndex struct {
	mu        sync.Mutex
	hits      []domain.VectorHit
	searchErr error
	addErr    error
	added     []driven.VectorRecord
	deleted   []string
	lastK     int
}

func (m *mockVectorIndex) Add(_ context.Context, records []driven.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, records...)
	return nil
}

func (m *mockVectorIndex) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, documentID)
	return nil
}

func (m *mockVectorIndex) Search(_ context.Context, _ []float32, k int) ([]domain.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastK = k
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if k > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:k], nil
}

func (m *mockVectorIndex) Close() error { return nil }

// mockLexicalIndex implements driven.LexicalIndex for testing.
type mockLexicalIndex struct {
	hits  []domain.LexicalHit
	err   error
	lastK int
}

func (m *mockLexicalIndex) Search(_ context.Context, _ string, k int) ([]domain.LexicalHit, error) {
	m.lastK = k
	if m.err != nil {
		return nil, m.err
	}
	if k > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:k], nil
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
// failOnCall makes the n-th EmbedBatch call (1-based) fail.
type mockEmbeddingService struct {
	mu         sync.Mutex
	embedErr   error
	dims       int
	model      string
	failOnCall int
	batchCalls int
	texts      int
}

func (m *mockEmbeddingService) vector() []float32 {
	v := make([]float32, m.Dimensions())
	for i := range v {
		v[i] = 0.1
	}
	return v
}

func (m *mockEmbeddingService) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.vector(), nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.embedErr != nil || (m.failOnCall > 0 && m.batchCalls == m.failOnCall) {
		return nil, errors.New("embedding API down")
	}
	m.texts += len(texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector()
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	if m.dims > 0 {
		return m.dims
	}
	return 4
}

func (m *mockEmbeddingService) ModelName() string {
	if m.model != "" {
		return m.model
	}
	return "mock-embed"
}

func (m *mockEmbeddingService) Close() error { return nil }

// memConversationStore implements driven.ConversationStore and driven.FeedbackStore.
type memConversationStore struct {
	mu       sync.Mutex
	convs    map[string]domain.Conversation
	messages []domain.Message
	feedback []domain.Feedback

	// assistantErr fails assistant messages only.
	assistantErr error
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{convs: make(map[string]domain.Conversation)}
}

func (m *memConversationStore) CreateConversation(_ context.Context, c *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[c.ID] = *c
	return nil
}

func (m *memConversationStore) GetConversation(_ context.Context, id, guestID string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok || c.GuestID != guestID {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memConversationStore) ListConversations(_ context.Context, guestID string) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Conversation
	for _, c := range m.convs {
		if c.GuestID == guestID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memConversationStore) EndConversation(_ context.Context, id, guestID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok || c.GuestID != guestID {
		return domain.ErrNotFound
	}
	c.EndedAt = &at
	m.convs[id] = c
	return nil
}

func (m *memConversationStore) SetTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[id]
	c.Title = title
	m.convs[id] = c
	return nil
}

func (m *memConversationStore) DeleteConversation(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	return nil
}

func (m *memConversationStore) AddMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assistantErr != nil && msg.Role == domain.RoleAssistant {
		return m.assistantErr
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memConversationStore) ListMessages(_ context.Context, convID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.ConversationID == convID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memConversationStore) RecentMessages(ctx context.Context, convID string, n int) ([]domain.Message, error) {
	all, _ := m.ListMessages(ctx, convID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (m *memConversationStore) GetOwnedMessage(_ context.Context, messageID, guestID string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID != messageID {
			continue
		}
		if c, ok := m.convs[msg.ConversationID]; ok && c.GuestID == guestID {
			return &msg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memConversationStore) SaveFeedback(_ context.Context, fb *domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, *fb)
	return nil
}

func (m *memConversationStore) assistantMessages(convID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.ConversationID == convID && msg.Role == domain.RoleAssistant {
			out = append(out, msg)
		}
	}
	return out
}

// memViolationStore implements driven.ViolationStore.
type memViolationStore struct {
	mu         sync.Mutex
	violations []domain.OfftopicViolation
}

func (m *memViolationStore) RecordViolation(_ context.Context, v *domain.OfftopicViolation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, *v)
	return nil
}

func (m *memViolationStore) CountViolationsSince(_ context.Context, guestID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.violations {
		if v.GuestID == guestID && !v.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memViolationStore) PurgeViolationsBefore(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.violations[:0]
	n := 0
	for _, v := range m.violations {
		if v.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, v)
	}
	m.violations = kept
	return n, nil
}

// mockStream replays deltas, then optionally fails.
type mockStream struct {
	deltas []string
	i      int
	err    error
	block  <-chan struct{}
	ctx    context.Context
	closed bool
	mu     sync.Mutex
}

func (s *mockStream) Next() bool {
	if s.i >= len(s.deltas) {
		if s.block != nil {
			select {
			case <-s.block:
			case <-s.ctx.Done():
				s.err = s.ctx.Err()
			}
		}
		return false
	}
	s.i++
	return true
}

func (s *mockStream) Delta() string { return s.deltas[s.i-1] }

func (s *mockStream) Err() error { return s.err }

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// mockGenerator implements driven.Generator for testing.
type mockGenerator struct {
	mu          sync.Mutex
	deltas      []string
	streamErr   error
	midErr      error
	block       chan struct{}
	title       string
	completeErr error
	prompts     [][]domain.ChatMessage
	streams     []*mockStream
}

func (m *mockGenerator) Complete(_ context.Context, _ []domain.ChatMessage, _ driven.GenerateOptions) (string, error) {
	if m.completeErr != nil {
		return "", m.completeErr
	}
	return m.title, nil
}

func (m *mockGenerator) Stream(
	ctx context.Context, msgs []domain.ChatMessage, _ driven.GenerateOptions,
) (driven.TokenStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, msgs)
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	s := &mockStream{deltas: m.deltas, err: m.midErr, block: m.block, ctx: ctx}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *mockGenerator) ModelName() string { return "mock-llm" }

func (m *mockGenerator) lastPrompt() []domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return nil
	}
	return m.prompts[len(m.prompts)-1]
}

// mockModerator implements driven.Moderator for testing.
type mockModerator struct {
	flagOn string
	err    error
	calls  int
}

func (m *mockModerator) Moderate(_ context.Context, text string) (driven.ModerationVerdict, error) {
	m.calls++
	if m.err != nil {
		return driven.ModerationVerdict{}, m.err
	}
	if m.flagOn != "" && strings.Contains(text, m.flagOn) {
		return driven.ModerationVerdict{Flagged: true, Categories: []string{"harassment"}}, nil
	}
	return driven.ModerationVerdict{}, nil
}

// Ensure mocks implement interfaces
var (
	_ driven.ContentFetcher     = (*mockFetcher)(nil)
	_ driven.NormaliserRegistry = (*mockNormalisers)(nil)
	_ driven.DocumentStore      = (*memDocStore)(nil)
	_ driven.VectorIndex        = (*mockVectorIndex)(nil)
	_ driven.LexicalIndex       = (*mockLexicalIndex)(nil)
	_ driven.EmbeddingService   = (*mockEmbeddingService)(nil)
	_ driven.ConversationStore  = (*memConversationStore)(nil)
	_ driven.FeedbackStore      = (*memConversationStore)(nil)
	_ driven.ViolationStore     = (*memViolationStore)(nil)
	_ driven.Generator          = (*mockGenerator)(nil)
	_ driven.Moderator          = (*mockModerator)(nil)
)
