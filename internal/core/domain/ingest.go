package domain

// IngestFlushSize is the number of embedded chunks written per store flush.
const IngestFlushSize = 10

// IngestStatus reports what ingestion did with a document.
type IngestStatus string

// Ingestion outcomes.
const (
	IngestCreated IngestStatus = "created"
	IngestUpdated IngestStatus = "updated"
	IngestSkipped IngestStatus = "skipped"
	IngestFailed  IngestStatus = "failed"
)

// IngestResult is the outcome for one document.
type IngestResult struct {
	DocumentID    string
	SourceURL     string
	Status        IngestStatus
	ChunksCreated int
}

// IngestFailure records a document that could not be ingested.
type IngestFailure struct {
	SourceURL string
	Error     string
}

// BatchReport aggregates a batch run. Failed documents never abort the batch.
type BatchReport struct {
	Created       int
	Updated       int
	Skipped       int
	Failed        int
	ChunksCreated int
	Failures      []IngestFailure
}

// Add folds a single result into the report.
func (r *BatchReport) Add(res IngestResult, err error) {
	r.ChunksCreated += res.ChunksCreated
	if err != nil {
		r.Failed++
		r.Failures = append(r.Failures, IngestFailure{SourceURL: res.SourceURL, Error: err.Error()})
		return
	}
	switch res.Status {
	case IngestCreated:
		r.Created++
	case IngestUpdated:
		r.Updated++
	case IngestSkipped:
		r.Skipped++
	}
}

// Total returns the number of documents processed.
func (r *BatchReport) Total() int {
	return r.Created + r.Updated + r.Skipped + r.Failed
}
