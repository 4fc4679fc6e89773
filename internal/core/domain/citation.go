package domain

// Source is a document referenced by an assembled context.
type Source struct {
	URL   string       `json:"url"`
	Title string       `json:"title"`
	Type  DocumentType `json:"type"`
}

// Citation is a numbered source as presented to the client.
type Citation struct {
	Index int          `json:"index"`
	URL   string       `json:"url"`
	Title string       `json:"title"`
	Type  DocumentType `json:"type"`
}

// CitationSet splits citations into an always-visible window and the rest.
type CitationSet struct {
	Initial  []Citation `json:"initial"`
	Expanded []Citation `json:"expanded"`
	HasMore  bool       `json:"hasMore"`
}

// All returns initial followed by expanded citations.
func (c CitationSet) All() []Citation {
	out := make([]Citation, 0, len(c.Initial)+len(c.Expanded))
	out = append(out, c.Initial...)
	return append(out, c.Expanded...)
}

// IsEmpty reports whether there is nothing to display.
func (c CitationSet) IsEmpty() bool {
	return len(c.Initial) == 0 && len(c.Expanded) == 0
}

// AssembledContext is the token-budgeted prompt context for one turn.
type AssembledContext struct {
	Text       string
	Sources    []Source
	TokenCount int
}

// IsEmpty reports whether no chunk fit into the context.
func (c AssembledContext) IsEmpty() bool {
	return c.Text == ""
}
