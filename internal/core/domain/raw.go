package domain

// SourceDescriptor tells ingestion where a document lives and how to label it.
// Location is a URL or filesystem path; SourceURL is the public URL stored on
// the document and shown in citations (defaults to Location).
type SourceDescriptor struct {
	SourceURL string
	Location  string
	Title     string
	Type      DocumentType
	Metadata  map[string]any
}

// URL returns the natural key used for the document.
func (d SourceDescriptor) URL() string {
	if d.SourceURL != "" {
		return d.SourceURL
	}
	return d.Location
}

// RawDocument represents opaque bytes fetched from a source.
// It is the fetcher's output before normalisation.
type RawDocument struct {
	// SourceURL is the natural key of the document.
	SourceURL string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains fetcher-specific key-value pairs.
	Metadata map[string]any
}

// NormaliseResult is the text extracted from a RawDocument.
type NormaliseResult struct {
	Title    string
	Type     DocumentType
	Text     string
	Metadata map[string]any
}
