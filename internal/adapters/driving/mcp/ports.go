package mcp

import (
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server needs.
type Ports struct {
	// Search ranks indexed chunks for a query.
	Search driving.SearchService

	// Documents exposes the ingested corpus. Optional; without it no
	// resources are served.
	Documents driving.DocumentService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
