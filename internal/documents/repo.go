package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for documents.
//
// The enrichment updates are keyed by id and guarded by the current status.
// They report false when no row matched, which happens when the document was
// deleted or another worker already moved it on.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, q ListQuery) ([]Document, int, error)
	Delete(ctx context.Context, id string) error
	MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error)
	CompleteEnrichment(ctx context.Context, id, summary string, keywords []string, at time.Time) (bool, error)
	FailEnrichment(ctx context.Context, id string, at time.Time) (bool, error)
}
