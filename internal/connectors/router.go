package connectors

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure Router implements the interface.
var _ driven.ContentFetcher = (*Router)(nil)

// Router dispatches a fetch to the fetcher registered for the location's
// URL scheme. Locations without a scheme are local files.
type Router struct {
	fetchers map[string]driven.ContentFetcher
}

// NewRouter creates a router with the given local and web fetchers.
// Either may be nil to disable that kind of source.
func NewRouter(local, web driven.ContentFetcher) *Router {
	r := &Router{fetchers: make(map[string]driven.ContentFetcher)}
	if local != nil {
		r.Register("file", local)
	}
	if web != nil {
		r.Register("http", web)
		r.Register("https", web)
	}
	return r
}

// Register sets the fetcher for a scheme.
func (r *Router) Register(scheme string, f driven.ContentFetcher) {
	r.fetchers[strings.ToLower(scheme)] = f
}

// Fetch routes the descriptor by its location scheme.
func (r *Router) Fetch(ctx context.Context, src domain.SourceDescriptor) (*domain.RawDocument, error) {
	scheme := Scheme(src.Location)
	f, ok := r.fetchers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for %q sources", domain.ErrFetchFailed, scheme)
	}
	return f.Fetch(ctx, src)
}

// Scheme returns the lower-cased URL scheme of a location, "file" for
// bare paths (including Windows drive paths).
func Scheme(location string) string {
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}
