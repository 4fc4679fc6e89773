// Package web fetches documents over HTTP(S).
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/townhall/internal/connectors/filesystem"
	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.ContentFetcher = (*Fetcher)(nil)

// Default configuration values.
const (
	DefaultUserAgent   = "townhall-ingest/1.0"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxBodySize = 25 << 20
	maxRetries         = 3
)

// Config holds fetcher settings.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int64

	// RequestsPerSecond limits requests to be polite to municipal web servers.
	// Zero means unlimited.
	RequestsPerSecond float64

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Fetcher downloads documents over HTTP.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxBody    int64
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
}

// NewFetcher creates an HTTP fetcher.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodySize,
		limiter:   limiter,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// Fetch downloads the descriptor's location. Server errors and 429 are
// retried; other HTTP errors fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, src domain.SourceDescriptor) (*domain.RawDocument, error) {
	u, err := url.Parse(src.Location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid URL %q", domain.ErrFetchFailed, src.Location)
	}

	var raw *domain.RawDocument
	op := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		doc, err := f.get(ctx, u)
		if err != nil {
			var status *statusError
			if errors.As(err, &status) && !status.retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			logger.Debug("Fetch of %s failed, retrying: %v", u, err)
			return err
		}
		raw = doc
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrFetchFailed, u, err)
	}

	if src.SourceURL != "" {
		raw.SourceURL = src.SourceURL
	}
	return raw, nil
}

// statusError is a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (f *Fetcher) get(ctx context.Context, u *url.URL) (*domain.RawDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, backoff.Permanent(fmt.Errorf("body larger than %d bytes", f.maxBody))
	}

	finalURL := resp.Request.URL
	mimeType, params := contentType(resp.Header.Get("Content-Type"), finalURL, body)
	if strings.HasPrefix(mimeType, "text/") {
		body = toUTF8(body, mimeType, params["charset"])
	}

	metadata := map[string]any{
		"status":    resp.StatusCode,
		"final_url": finalURL.String(),
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		metadata["etag"] = etag
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		metadata["last_modified"] = lm
	}

	return &domain.RawDocument{
		SourceURL: u.String(),
		MIMEType:  mimeType,
		Content:   body,
		Metadata:  metadata,
	}, nil
}

// contentType takes the media type from the header, falling back to the URL
// extension and then to content sniffing.
func contentType(header string, u *url.URL, body []byte) (string, map[string]string) {
	if header != "" {
		if mt, params, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return strings.ToLower(mt), params
		}
	}
	if ext := path.Ext(u.Path); ext != "" {
		if mt := filesystem.DetectMIMEType(u.Path); mt != "application/octet-stream" {
			return mt, nil
		}
	}
	sniffed := http.DetectContentType(body)
	mt, params, err := mime.ParseMediaType(sniffed)
	if err != nil {
		return "application/octet-stream", nil
	}
	return mt, params
}

// toUTF8 decodes text in a legacy encoding (windows-1250, iso-8859-2).
// The label comes from the header or, for HTML, from a meta tag.
func toUTF8(body []byte, mimeType, label string) []byte {
	if label == "" && utf8.Valid(body) {
		return body
	}
	if strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return body
	}
	r, err := charset.NewReader(bytes.NewReader(body), mime.FormatMediaType(mimeType, charsetParam(label)))
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return decoded
}

func charsetParam(label string) map[string]string {
	if label == "" {
		return nil
	}
	return map[string]string{"charset": label}
}
