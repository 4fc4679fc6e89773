// Package ollama provides generation and vision adapters for a local Ollama
// server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure LLMService implements the interfaces.
var (
	_ driven.Generator     = (*LLMService)(nil)
	_ driven.VisionService = (*LLMService)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultLLMModel   = "llama3.2"
	DefaultLLMTimeout = 120 * time.Second
)

// LLMConfig holds configuration for the Ollama LLM service.
type LLMConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model (default: llama3.2).
	Model string

	// VisionModel reads images, e.g. llava (default: Model).
	VisionModel string

	// VisionPrompt is the instruction sent with images.
	VisionPrompt string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// LLMService provides completions and image transcription using Ollama.
type LLMService struct {
	client       *http.Client
	baseURL      string
	model        string
	visionModel  string
	visionPrompt string
}

// options holds generation parameters.
type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// chatResponse is one /api/chat response object. Streamed responses are
// newline-delimited objects of the same shape.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// NewLLMService creates a new Ollama LLM service.
func NewLLMService(cfg LLMConfig) *LLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.VisionPrompt == "" {
		cfg.VisionPrompt = domain.DefaultPrompts()[domain.PromptVision]
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	return &LLMService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		visionModel:  cfg.VisionModel,
		visionPrompt: cfg.VisionPrompt,
	}
}

// Complete returns a one-shot completion.
func (s *LLMService) Complete(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts driven.GenerateOptions,
) (string, error) {
	resp, err := s.post(ctx, s.request(s.model, toMessages(messages), opts, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", chatResp.Error)
	}
	return chatResp.Message.Content, nil
}

// Stream starts a streamed completion.
func (s *LLMService) Stream(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts driven.GenerateOptions,
) (driven.TokenStream, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", domain.ErrInvalidInput)
	}
	resp, err := s.post(ctx, s.request(s.model, toMessages(messages), opts, true))
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &tokenStream{body: resp.Body, scanner: scanner}, nil
}

// ExtractText transcribes the text in an image with the vision model.
func (s *LLMService) ExtractText(ctx context.Context, _ string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", domain.ErrUpstreamRejected)
	}
	messages := []chatMessage{{
		Role:    string(domain.RoleUser),
		Content: s.visionPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	}}

	resp, err := s.post(ctx, s.request(s.visionModel, messages, driven.GenerateOptions{}, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(chatResp.Message.Content), nil
}

func (s *LLMService) request(model string, messages []chatMessage, opts driven.GenerateOptions, stream bool) chatRequest {
	return chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options: &options{
			NumPredict:  opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	}
}

// post sends a chat request and returns the response when the status is OK.
// The caller closes the body.
func (s *LLMService) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		err = fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamRejected, err)
		}
		return nil, err
	}
	return resp, nil
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
// This is a lightweight check that validates connectivity without running inference.
func (s *LLMService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ollama: API returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}

func toMessages(messages []domain.ChatMessage) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, msg := range messages {
		out[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return out
}

// tokenStream reads newline-delimited chat responses.
type tokenStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	delta   string
	err     error
	done    bool
}

func (t *tokenStream) Next() bool {
	if t.done || t.err != nil {
		return false
	}
	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			t.err = fmt.Errorf("decode stream: %w", err)
			return false
		}
		if chunk.Error != "" {
			t.err = fmt.Errorf("ollama error: %s", chunk.Error)
			return false
		}
		if chunk.Done {
			t.done = true
			if chunk.Message.Content == "" {
				return false
			}
		}
		if chunk.Message.Content != "" {
			t.delta = chunk.Message.Content
			return true
		}
	}
	if err := t.scanner.Err(); err != nil {
		t.err = fmt.Errorf("read stream: %w", err)
	} else if !t.done {
		t.err = io.ErrUnexpectedEOF
	}
	return false
}

func (t *tokenStream) Delta() string {
	return t.delta
}

func (t *tokenStream) Err() error {
	return t.err
}

func (t *tokenStream) Close() error {
	return t.body.Close()
}
