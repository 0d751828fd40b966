package documents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
	}
}

// Create stores a new document. Duplicate ids or storage paths are rejected.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[doc.ID]; exists {
		return fmt.Errorf("duplicate document id %s", doc.ID)
	}
	for _, existing := range r.data {
		if existing.Bucket == doc.Bucket && existing.StoragePath == doc.StoragePath {
			return fmt.Errorf("duplicate storage path %s/%s", doc.Bucket, doc.StoragePath)
		}
	}
	r.data[doc.ID] = cloneDocument(doc)
	return nil
}

// GetByID returns a document by id.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// List returns one page of matching documents newest-first and the total match count.
func (r *MemoryRepo) List(ctx context.Context, q ListQuery) ([]Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))

	r.mu.RLock()
	matched := make([]Document, 0, len(r.data))
	for _, doc := range r.data {
		if q.OwnerID != "" && doc.OwnerID != q.OwnerID {
			continue
		}
		if q.Status != "" && doc.Status != q.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(doc.OriginalName), search) {
			continue
		}
		matched = append(matched, cloneDocument(doc))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	offset := q.Offset()
	if offset >= total {
		return []Document{}, total, nil
	}
	end := total
	if q.Limit > 0 && offset+q.Limit < end {
		end = offset + q.Limit
	}
	return matched[offset:end], total, nil
}

// Delete removes a document.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// MarkProcessing moves a pending or failed document to processing.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.transition(ctx, id, StatusProcessing, at, nil)
}

// CompleteEnrichment stores the enrichment and marks a processing document ready.
func (r *MemoryRepo) CompleteEnrichment(ctx context.Context, id, summary string, keywords []string, at time.Time) (bool, error) {
	return r.transition(ctx, id, StatusReady, at, func(doc *Document) {
		s := summary
		doc.Summary = &s
		doc.Keywords = append([]string{}, keywords...)
	})
}

// FailEnrichment marks a processing document failed and clears any enrichment.
func (r *MemoryRepo) FailEnrichment(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.transition(ctx, id, StatusFailed, at, func(doc *Document) {
		doc.Summary = nil
		doc.Keywords = []string{}
	})
}

func (r *MemoryRepo) transition(ctx context.Context, id string, to Status, at time.Time, apply func(*Document)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok || !CanTransition(doc.Status, to) {
		return false, nil
	}
	doc.Status = to
	doc.UpdatedAt = at
	if apply != nil {
		apply(&doc)
	}
	r.data[id] = doc
	return true, nil
}

func cloneDocument(doc Document) Document {
	out := doc
	if doc.Summary != nil {
		s := *doc.Summary
		out.Summary = &s
	}
	out.Keywords = append([]string{}, doc.Keywords...)
	return out
}

var _ Repo = (*MemoryRepo)(nil)
