package cli

import (
	"bytes"
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/townhall/internal/adapters/driving/api"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui"
	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
)

// mockSettings keeps settings as flat key/value pairs.
type mockSettings struct {
	values      map[string]string
	validateErr error
}

func (m *mockSettings) Get() (*domain.AppSettings, error) {
	s := domain.DefaultAppSettings()
	return &s, nil
}

func (m *mockSettings) Set(key, value string) error {
	if _, ok := m.values[key]; !ok {
		return domain.ErrInvalidInput
	}
	m.values[key] = value
	return nil
}

func (m *mockSettings) Value(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrInvalidInput
	}
	return v, nil
}

func (m *mockSettings) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *mockSettings) Validate() error {
	return m.validateErr
}

func (m *mockSettings) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

type mockSearch struct {
	results   []domain.RankedChunk
	lastQuery string
	lastOpts  domain.SearchOptions
}

func (m *mockSearch) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.RankedChunk, error) {
	m.lastQuery = query
	m.lastOpts = opts
	return m.results, nil
}

type mockDocuments struct {
	docs    []domain.Document
	content map[string]string
	deleted []string
}

func (m *mockDocuments) List(context.Context) ([]domain.Document, error) {
	return m.docs, nil
}

func (m *mockDocuments) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocuments) GetContent(_ context.Context, id string) (string, error) {
	c, ok := m.content[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return c, nil
}

func (m *mockDocuments) Delete(_ context.Context, id string) error {
	if _, err := m.Get(context.Background(), id); err != nil {
		return err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockIngest struct {
	mu      sync.Mutex
	batches [][]domain.SourceDescriptor
	force   bool
}

func (m *mockIngest) Ingest(_ context.Context, src domain.SourceDescriptor, _ bool) (domain.IngestResult, error) {
	return domain.IngestResult{SourceURL: src.URL(), Status: domain.IngestCreated, ChunksCreated: 1}, nil
}

func (m *mockIngest) IngestBatch(_ context.Context, srcs []domain.SourceDescriptor, force bool) domain.BatchReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, srcs)
	m.force = force
	report := domain.BatchReport{}
	for _, s := range srcs {
		if strings.Contains(s.URL(), "broken") {
			report.Add(domain.IngestResult{SourceURL: s.URL()}, domain.ErrFetchFailed)
			continue
		}
		report.Add(domain.IngestResult{SourceURL: s.URL(), Status: domain.IngestCreated, ChunksCreated: 2}, nil)
	}
	return report
}

type mockChat struct {
	conversations []domain.Conversation
	listedFor     string
}

func (m *mockChat) StartConversation(_ context.Context, guestID, _ string) (*domain.Conversation, error) {
	return &domain.Conversation{ID: "conv-new", GuestID: guestID, StartedAt: time.Now()}, nil
}

func (m *mockChat) SendMessage(context.Context, domain.SendRequest) (<-chan domain.Event, error) {
	ch := make(chan domain.Event)
	close(ch)
	return ch, nil
}

func (m *mockChat) GetConversation(context.Context, string, string) (*domain.ConversationDetail, error) {
	return nil, domain.ErrNotFound
}

func (m *mockChat) ListConversations(_ context.Context, guestID string) ([]domain.Conversation, error) {
	m.listedFor = guestID
	return m.conversations, nil
}

func (m *mockChat) EndConversation(context.Context, string, string) error {
	return nil
}

func (m *mockChat) SubmitFeedback(context.Context, string, string, string) (*domain.Feedback, error) {
	return &domain.Feedback{ID: "fb"}, nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

// testServices exposes the fakes installed by setupTestServices.
type testServices struct {
	settings  *mockSettings
	search    *mockSearch
	documents *mockDocuments
	ingest    *mockIngest
	chat      *mockChat
	home      string
	out       *bytes.Buffer
}

var testSvc *testServices

// setupTestServices installs fakes for every port, points the home
// directory at a temp dir and resets the command flags. The returned
// function restores the previous state.
func setupTestServices() func() {
	home, err := os.MkdirTemp("", "townhall-cli-*")
	if err != nil {
		panic(err)
	}

	svc := &testServices{
		settings: &mockSettings{values: map[string]string{
			"retrieval.mode":  "hybrid",
			"llm.model":       "gpt-4o-mini",
			"llm.api_key":     "sk-test-1234567890abcd",
			"server.addr":     ":8080",
			"offtopic.window": "24h",
		}},
		search: &mockSearch{results: []domain.RankedChunk{
			{
				ChunkID:      "d1-0",
				DocumentID:   "d1",
				Title:        "Úřední hodiny",
				SourceURL:    "https://obec.example.cz/urad",
				DocumentType: domain.DocumentTypeWebpage,
				Score:        0.0325,
				Content:      "Obecní úřad je otevřen\n\nv pondělí a ve středu.",
			},
		}},
		documents: &mockDocuments{
			docs: []domain.Document{{
				ID:        "d1",
				Title:     "Úřední hodiny",
				Type:      domain.DocumentTypeWebpage,
				SourceURL: "https://obec.example.cz/urad",
				Metadata:  map[string]any{"lang": "cs", "author": "OÚ"},
			}},
			content: map[string]string{"d1": "Pondělí 8-17, středa 8-17"},
		},
		ingest: &mockIngest{},
		chat:   &mockChat{},
		home:   home,
		out:    new(bytes.Buffer),
	}

	saved := struct {
		settings  driving.SettingsService
		search    driving.SearchService
		documents driving.DocumentService
		ingest    driving.IngestService
		chat      driving.ChatService
		scheduler driving.Scheduler
		health    api.Pinger
		manifest  func() ([]domain.SourceDescriptor, error)
		sweep     func(context.Context) (int, error)
		ready     bool
		home      string
		run       func(*tui.App) error
	}{
		settingsService, searchService, documentService, ingestService, chatService,
		scheduler, healthChecker, loadManifest, sweepViolations, coreReady, homeDir, runProgram,
	}

	settingsService = svc.settings
	searchService = svc.search
	documentService = svc.documents
	ingestService = svc.ingest
	chatService = svc.chat
	scheduler = nil
	healthChecker = mockPinger{}
	loadManifest = func() ([]domain.SourceDescriptor, error) {
		return []domain.SourceDescriptor{{SourceURL: "https://obec.example.cz/manifest"}}, nil
	}
	sweepViolations = func(context.Context) (int, error) { return 3, nil }
	coreReady = true
	homeDir = home
	runProgram = func(*tui.App) error { return nil }
	resetFlags()
	testSvc = svc

	rootCmd.SetOut(svc.out)
	rootCmd.SetErr(svc.out)

	return func() {
		settingsService = saved.settings
		searchService = saved.search
		documentService = saved.documents
		ingestService = saved.ingest
		chatService = saved.chat
		scheduler = saved.scheduler
		healthChecker = saved.health
		loadManifest = saved.manifest
		sweepViolations = saved.sweep
		coreReady = saved.ready
		homeDir = saved.home
		runProgram = saved.run
		resetFlags()
		testSvc = nil
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		_ = os.RemoveAll(home)
	}
}

// resetFlags puts every command flag back to its default; cobra keeps
// parsed values in package variables between executions.
func resetFlags() {
	searchLimit, searchMode, searchJSON = 10, "", false
	ingestForce, ingestDir, ingestWatch = false, "", false
	ingestManifest, ingestTitle, ingestType = "", "", ""
	serveAddr, serveNoScheduler = "", false
	chatResume, chatList, chatGuest = "", false, ""
	tasksRecent = 3
	_ = mcpCmd.Flags().Set("port", "0")
}

// execute runs the root command with args and returns its output.
func execute(args ...string) (string, error) {
	testSvc.out.Reset()
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return testSvc.out.String(), err
}
