package normalisers

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches raw documents by MIME type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates a registry holding the given normalisers.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// Register adds a normaliser.
func (r *Registry) Register(normaliser driven.Normaliser) {
	if normaliser == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, normaliser)
}

// Normalise transforms a raw document using the best matching normaliser.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	n := r.lookup(raw.MIMEType)
	if n == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedType, raw.MIMEType)
	}

	result, err := n.Normalise(ctx, raw)
	if err != nil {
		return nil, err
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata["mime_type"] = BaseMIMEType(raw.MIMEType)
	return result, nil
}

// SupportedMIMETypes returns every MIME type some normaliser accepts.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, n := range r.normalisers {
		for _, m := range n.SupportedMIMETypes() {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

// lookup returns the highest-priority normaliser for mimeType. An exact
// match beats a family wildcard of any priority.
func (r *Registry) lookup(mimeType string) driven.Normaliser {
	base := BaseMIMEType(mimeType)
	if base == "" {
		return nil
	}
	family := base
	if i := strings.IndexByte(base, '/'); i >= 0 {
		family = base[:i] + "/*"
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var exact, wildcard driven.Normaliser
	for _, n := range r.normalisers {
		for _, m := range n.SupportedMIMETypes() {
			switch m {
			case base:
				if exact == nil || n.Priority() > exact.Priority() {
					exact = n
				}
			case family:
				if wildcard == nil || n.Priority() > wildcard.Priority() {
					wildcard = n
				}
			}
		}
	}
	if exact != nil {
		return exact
	}
	return wildcard
}

// BaseMIMEType lowercases a content type and drops its parameters.
func BaseMIMEType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if base, _, err := mime.ParseMediaType(contentType); err == nil {
		return base
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
