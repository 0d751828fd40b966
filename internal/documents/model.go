package documents

import "time"

// Status is the enrichment state of a document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// DefaultBucket is the logical bucket every upload is written to.
const DefaultBucket = "documents"

// MaxOriginalNameRunes caps the stored user filename.
const MaxOriginalNameRunes = 255

// ParseStatus validates a status filter value.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return s, true
	default:
		return "", false
	}
}

// CanTransition reports whether the enrichment status may move from one state
// to the other. Ready is terminal; failed may be retried.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusReady || to == StatusFailed
	case StatusFailed:
		return to == StatusProcessing
	default:
		return false
	}
}

// Document is an uploaded file plus its extracted and enriched metadata.
type Document struct {
	ID            string
	OwnerID       string
	OriginalName  string
	StoredName    string
	MimeType      string
	SizeBytes     int64
	Bucket        string
	StoragePath   string
	ExtractedText string
	ExtractedHTML string
	Status        Status
	Summary       *string
	Keywords      []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ListQuery filters and paginates document listings.
type ListQuery struct {
	// OwnerID restricts results to one owner; empty means all owners.
	OwnerID string
	Search  string
	Status  Status
	Page    int
	Limit   int
}

// Offset returns the zero-based row offset for the page.
func (q ListQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}
