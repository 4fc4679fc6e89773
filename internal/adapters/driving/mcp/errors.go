// Package mcp exposes the municipal document index over the Model Context
// Protocol, so editors and AI assistants can query the same corpus the chat
// assistant answers from.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
