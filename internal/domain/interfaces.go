package domain

import "time"

// Status is the processing state of an ingested document.
type Status string

const (
	StatusUploaded   Status = "Uploaded"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// Document is a single ingested PDF, already reduced to its extracted text.
// It is mutated only by the worker that owns it.
type Document struct {
	ID         string           `msgpack:"id"`
	Content    string           `msgpack:"content"`
	Status     Status           `msgpack:"status"`
	Result     *ChecklistResult `msgpack:"result,omitempty"`
	Error      string           `msgpack:"error,omitempty"`
	RetryCount int              `msgpack:"retry_count"`
	UpdatedAt  time.Time        `msgpack:"updated_at"`
}

// Chunk is a contiguous, non-overlapping slice of a document's text.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// ChecklistResult is the assembled compliance report for one document.
type ChecklistResult struct {
	ComplianceInfo string   `msgpack:"compliance_info" json:"compliance_info"`
	Checklist      []string `msgpack:"checklist" json:"checklist"`
}

// Item is one key/value row of a ChecklistResult. Value is a string or []string.
type Item struct {
	Key   string
	Value any
}

// Items returns the result as an ordered mapping, in the row order used by exports.
func (r ChecklistResult) Items() []Item {
	list := make([]string, len(r.Checklist))
	copy(list, r.Checklist)
	return []Item{
		{Key: "compliance_info", Value: r.ComplianceInfo},
		{Key: "checklist", Value: list},
	}
}

// EmbeddingRecord is the single indexed vector of a document.
type EmbeddingRecord struct {
	DocumentID string
	Vector     []float64
	Content    string
}

// SearchResult is a ranked match from the vector storage.
type SearchResult struct {
	DocumentID string
	Score      float64
	Content    string
}

// Retrieved is one slot returned by retrieval: either the document content or
// the no-relevant-information placeholder.
type Retrieved struct {
	DocumentID string
	Score      float64
	Text       string
	Relevant   bool
}

// Chunker splits documents into ordered chunks.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}
