package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docvault/internal/access"
	"docvault/internal/extract"
	"docvault/internal/llm"
	"docvault/internal/shared/metrics"
	"docvault/internal/shared/storage/object"
	"docvault/internal/shared/telemetry"
	"docvault/internal/shared/util"
)

const (
	defaultSignedURLTTL  = 10 * time.Minute
	defaultEnrichTimeout = 60 * time.Second
	rollbackTimeout      = 15 * time.Second

	defaultPageLimit = 10
	maxPageLimit     = 100
)

// ContentExtractor pulls text and HTML out of an uploaded binary.
type ContentExtractor interface {
	Extract(ctx context.Context, mimeType string, data []byte) (extract.Content, error)
}

// Dispatcher hands a document to the enrichment workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, documentID, requestID string) error
}

// Service contains business logic for documents.
type Service struct {
	Repo       Repo
	Store      object.BlobStore
	Extractor  ContentExtractor
	Enricher   llm.Enricher
	Dispatcher Dispatcher
	Cache      ListCache

	Bucket        string
	SignedURLTTL  time.Duration
	EnrichTimeout time.Duration
	CacheTTL      time.Duration

	now   func() time.Time
	newID func() string
}

// IngestInput is one uploaded file.
type IngestInput struct {
	FileName string
	MimeType string
	Data     []byte
}

// ListInput carries the caller's list filters.
type ListInput struct {
	Page    int
	Limit   int
	Search  string
	Status  string
	OwnerID string
}

// ListResult is one page of documents.
type ListResult struct {
	Items []Document
	Page  int
	Limit int
	Total int
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

func (s *Service) bucket() string {
	if s.Bucket != "" {
		return s.Bucket
	}
	return DefaultBucket
}

// Ingest stores the blob, extracts content, records the document and starts
// enrichment. A failed record insert removes the blob before returning.
func (s *Service) Ingest(ctx context.Context, p access.Principal, in IngestInput) (Document, error) {
	if d := access.Authorize(p, p.ID, access.ActionCreate); !d.Allowed {
		return Document{}, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}

	name := strings.TrimSpace(in.FileName)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return Document{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if len(in.Data) == 0 {
		return Document{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	mimeType := extract.NormalizeMimeType(in.MimeType)
	if !extract.IsAllowed(mimeType) {
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mimeType)
	}

	requestID := RequestIDFromContext(ctx)
	// Mismatched bytes only degrade extraction; the upload still proceeds.
	if err := extract.CheckContent(mimeType, in.Data); err != nil {
		telemetry.Warn("document.ingest.content_mismatch", map[string]any{
			"request_id": requestID,
			"user_id":    p.ID,
			"mime_type":  mimeType,
			"err":        err.Error(),
		})
	}
	storedName := uuid.NewString() + "." + util.FileExtension(name)
	doc := Document{
		ID:           s.id(),
		OwnerID:      p.ID,
		OriginalName: util.TruncateRunes(name, MaxOriginalNameRunes),
		StoredName:   storedName,
		MimeType:     mimeType,
		SizeBytes:    int64(len(in.Data)),
		Bucket:       s.bucket(),
		StoragePath:  p.ID + "/" + storedName,
		Status:       StatusPending,
		Keywords:     []string{},
	}

	if _, err := s.Store.Put(ctx, doc.Bucket, doc.StoragePath, mimeType, bytes.NewReader(in.Data)); err != nil {
		metrics.IncDocumentsIngestFailed()
		telemetry.Error("document.ingest.storage_failed", map[string]any{
			"request_id":   requestID,
			"user_id":      p.ID,
			"storage_path": doc.StoragePath,
			"err":          err.Error(),
		})
		return Document{}, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	if s.Extractor != nil {
		content, err := s.Extractor.Extract(ctx, mimeType, in.Data)
		if err != nil {
			telemetry.Warn("document.extract.failed", map[string]any{
				"request_id": requestID,
				"user_id":    p.ID,
				"mime_type":  mimeType,
				"err":        err.Error(),
			})
		} else {
			doc.ExtractedText = content.Text
			doc.ExtractedHTML = content.HTML
		}
	}

	now := s.clock()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if err := s.Repo.Create(ctx, doc); err != nil {
		metrics.IncDocumentsIngestFailed()
		telemetry.Error("document.ingest.insert_failed", map[string]any{
			"request_id":  requestID,
			"user_id":     p.ID,
			"document_id": doc.ID,
			"err":         err.Error(),
		})
		s.rollbackBlob(ctx, doc)
		return Document{}, fmt.Errorf("%w: %v", ErrRecordInsertFailed, err)
	}

	metrics.IncDocumentsIngested()
	telemetry.Info("document.ingest.stored", map[string]any{
		"request_id":        requestID,
		"user_id":           p.ID,
		"document_id":       doc.ID,
		"mime_type":         mimeType,
		"size_bytes":        doc.SizeBytes,
		"status":            StatusPending,
		"status_transition": "none->pending",
	})
	s.invalidateLists(ctx, doc.OwnerID)

	s.startEnrichment(ctx, doc)

	current, err := s.Repo.GetByID(ctx, doc.ID)
	if err != nil {
		return doc, nil
	}
	return current, nil
}

// rollbackBlob removes a blob whose record could not be written. It runs on a
// context detached from the request so a cancelled upload still cleans up.
func (s *Service) rollbackBlob(ctx context.Context, doc Document) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	metrics.IncDocumentsRollbacks()
	if err := s.Store.Delete(cleanupCtx, doc.Bucket, doc.StoragePath); err != nil {
		telemetry.Error("document.ingest.rollback_failed", map[string]any{
			"request_id":   RequestIDFromContext(ctx),
			"user_id":      doc.OwnerID,
			"document_id":  doc.ID,
			"storage_path": doc.StoragePath,
			"err":          err.Error(),
		})
		return
	}
	telemetry.Warn("document.ingest.rolled_back", map[string]any{
		"request_id":   RequestIDFromContext(ctx),
		"user_id":      doc.OwnerID,
		"document_id":  doc.ID,
		"storage_path": doc.StoragePath,
	})
}

func (s *Service) startEnrichment(ctx context.Context, doc Document) {
	id := doc.ID
	requestID := RequestIDFromContext(ctx)
	if s.Dispatcher == nil {
		if err := s.Enrich(context.WithoutCancel(ctx), id); err != nil {
			telemetry.Error("document.enrichment.inline_failed", map[string]any{
				"request_id":  requestID,
				"document_id": id,
				"err":         err.Error(),
			})
		}
		return
	}

	if err := s.Dispatcher.Dispatch(ctx, id, requestID); err != nil {
		telemetry.Error("document.enrichment.dispatch_failed", map[string]any{
			"request_id":  requestID,
			"document_id": id,
			"err":         err.Error(),
		})
		bg := backgroundWithRequestID(ctx)
		if ok, markErr := s.Repo.MarkProcessing(bg, id, s.clock()); markErr != nil || !ok {
			return
		}
		s.recordFailure(bg, id, doc.OwnerID, time.Time{}, err)
	}
}

// Enrich runs the model over a stored document and records the outcome.
// Outcomes are recorded as data: only infrastructure failures are returned.
// Missing, ready or already claimed documents are skipped.
func (s *Service) Enrich(ctx context.Context, id string) (err error) {
	var (
		ownerID   string
		startedAt time.Time
		claimed   bool
	)
	defer func() {
		if r := recover(); r != nil {
			if claimed {
				s.recordFailure(ctx, id, ownerID, startedAt, fmt.Errorf("panic: %v", r))
				err = nil
				return
			}
			err = fmt.Errorf("%w: panic: %v", ErrInternal, r)
		}
	}()

	requestID := RequestIDFromContext(ctx)
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			telemetry.Info("document.enrichment.skipped", map[string]any{
				"request_id":  requestID,
				"document_id": id,
				"reason":      "not_found",
			})
			return nil
		}
		return fmt.Errorf("%w: load document %s: %v", ErrInternal, id, err)
	}
	ownerID = doc.OwnerID
	if doc.Status == StatusReady {
		return nil
	}

	startedAt = s.clock()
	ok, err := s.Repo.MarkProcessing(ctx, id, startedAt)
	if err != nil {
		return fmt.Errorf("%w: mark processing %s: %v", ErrInternal, id, err)
	}
	if !ok {
		telemetry.Info("document.enrichment.skipped", map[string]any{
			"request_id":  requestID,
			"document_id": id,
			"reason":      "not_claimable",
			"status":      doc.Status,
		})
		return nil
	}
	claimed = true
	metrics.IncEnrichmentStarted()
	telemetry.Info("document.status", map[string]any{
		"request_id":        requestID,
		"user_id":           ownerID,
		"document_id":       id,
		"status":            StatusProcessing,
		"status_transition": string(doc.Status) + "->processing",
	})
	s.invalidateLists(ctx, ownerID)

	if strings.TrimSpace(doc.ExtractedText) == "" {
		s.recordFailure(ctx, id, ownerID, startedAt, llm.ErrEmptyInput)
		return nil
	}
	if s.Enricher == nil {
		s.recordFailure(ctx, id, ownerID, startedAt, llm.ErrNotConfigured)
		return nil
	}

	timeout := s.EnrichTimeout
	if timeout <= 0 {
		timeout = defaultEnrichTimeout
	}
	modelCtx, cancel := context.WithTimeout(ctx, timeout)
	out, enrichErr := s.Enricher.Enrich(modelCtx, doc.ExtractedText)
	cancel()
	if enrichErr != nil {
		s.recordFailure(ctx, id, ownerID, startedAt, enrichErr)
		return nil
	}

	completedAt := s.clock()
	updated, err := s.Repo.CompleteEnrichment(ctx, id, out.Summary, out.Keywords, completedAt)
	if err != nil {
		// A recorded failure is final until a client retries explicitly.
		if failErr := s.recordFailure(ctx, id, ownerID, startedAt, err); failErr != nil {
			return fmt.Errorf("%w: complete enrichment %s: %v", ErrInternal, id, err)
		}
		return nil
	}
	if !updated {
		telemetry.Info("document.enrichment.discarded", map[string]any{
			"request_id":  requestID,
			"document_id": id,
			"reason":      "no_row",
		})
		return nil
	}

	metrics.IncEnrichmentCompleted()
	metrics.ObserveEnrichmentDurationMs(millisBetween(startedAt, completedAt))
	telemetry.Info("document.status", map[string]any{
		"request_id":        requestID,
		"user_id":           ownerID,
		"document_id":       id,
		"status":            StatusReady,
		"status_transition": "processing->ready",
		"keywords":          len(out.Keywords),
		"duration_ms":       millisBetween(startedAt, completedAt),
	})
	s.invalidateLists(ctx, ownerID)
	return nil
}

// recordFailure moves the document to failed and returns the error only when
// that update itself could not be written.
func (s *Service) recordFailure(ctx context.Context, id, ownerID string, startedAt time.Time, cause error) error {
	completedAt := s.clock()
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	updated, err := s.Repo.FailEnrichment(updateCtx, id, completedAt)
	if err != nil {
		telemetry.Error("document.enrichment.fail_update_failed", map[string]any{
			"request_id":  RequestIDFromContext(ctx),
			"document_id": id,
			"err":         err.Error(),
			"cause":       cause.Error(),
		})
		return err
	}
	metrics.IncEnrichmentFailed()
	fields := map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"user_id":           ownerID,
		"document_id":       id,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"cause":             cause.Error(),
		"updated":           updated,
	}
	if !startedAt.IsZero() {
		metrics.ObserveEnrichmentDurationMs(millisBetween(startedAt, completedAt))
		fields["duration_ms"] = millisBetween(startedAt, completedAt)
	}
	telemetry.Warn("document.status", fields)
	if updated && ownerID != "" {
		s.invalidateLists(ctx, ownerID)
	}
	return nil
}

// Get returns a document the principal may view.
func (s *Service) Get(ctx context.Context, p access.Principal, id string) (Document, error) {
	return s.load(ctx, p, id, access.ActionView)
}

// Download returns a short-lived signed URL for the document's blob.
func (s *Service) Download(ctx context.Context, p access.Principal, id string) (string, error) {
	doc, err := s.load(ctx, p, id, access.ActionDownload)
	if err != nil {
		return "", err
	}
	ttl := s.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	url, err := s.Store.SignedURL(ctx, doc.Bucket, doc.StoragePath, object.SignOptions{
		Expiry:       ttl,
		DownloadName: util.SanitizeFileName(doc.OriginalName),
	})
	if err != nil {
		if errors.Is(err, object.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: blob missing for %s", ErrNotFound, id)
		}
		telemetry.Error("document.download.sign_failed", map[string]any{
			"request_id":  RequestIDFromContext(ctx),
			"document_id": id,
			"err":         err.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrSignedURLFailed, err)
	}
	return url, nil
}

// Delete removes the blob and then the record.
func (s *Service) Delete(ctx context.Context, p access.Principal, id string) error {
	doc, err := s.load(ctx, p, id, access.ActionDelete)
	if err != nil {
		return err
	}
	requestID := RequestIDFromContext(ctx)
	if err := s.Store.Delete(ctx, doc.Bucket, doc.StoragePath); err != nil {
		telemetry.Error("document.delete.storage_failed", map[string]any{
			"request_id":   requestID,
			"document_id":  id,
			"storage_path": doc.StoragePath,
			"err":          err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrStorageDeleteFailed, err)
	}
	if err := s.Repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		telemetry.Error("document.delete.record_failed", map[string]any{
			"request_id":  requestID,
			"document_id": id,
			"err":         err.Error(),
		})
		return fmt.Errorf("%w: delete record %s: %v", ErrInternal, id, err)
	}
	metrics.IncDocumentsDeleted()
	telemetry.Info("document.deleted", map[string]any{
		"request_id":  requestID,
		"user_id":     p.ID,
		"owner_id":    doc.OwnerID,
		"document_id": id,
	})
	s.invalidateLists(ctx, doc.OwnerID)
	return nil
}

// List returns one page of the documents the principal may see.
func (s *Service) List(ctx context.Context, p access.Principal, in ListInput) (ListResult, error) {
	scopeOwner, all, d := access.ListScope(p)
	if !d.Allowed {
		return ListResult{}, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}

	q := ListQuery{
		OwnerID: scopeOwner,
		Search:  strings.TrimSpace(in.Search),
		Page:    in.Page,
		Limit:   in.Limit,
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	if raw := strings.TrimSpace(in.Status); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			return ListResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
		}
		q.Status = status
	}
	if owner := strings.TrimSpace(in.OwnerID); owner != "" {
		switch {
		case all:
			q.OwnerID = owner
		case owner != p.ID:
			return ListResult{}, fmt.Errorf("%w: owner filter requires an elevated role", ErrForbidden)
		}
	}

	page, key, hit := s.cachedList(ctx, q)
	if !hit {
		items, total, err := s.Repo.List(ctx, q)
		if err != nil {
			return ListResult{}, fmt.Errorf("%w: list documents: %v", ErrInternal, err)
		}
		page = cachedPage{Items: items, Total: total}
		s.storeList(ctx, key, page)
	}
	if page.Items == nil {
		page.Items = []Document{}
	}
	return ListResult{Items: page.Items, Page: q.Page, Limit: q.Limit, Total: page.Total}, nil
}

// load resolves a document for action. Roles that may never perform the action
// are rejected before the lookup.
func (s *Service) load(ctx context.Context, p access.Principal, id string, action access.Action) (Document, error) {
	if d := access.Authorize(p, p.ID, action); !d.Allowed {
		return Document{}, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return Document{}, ErrNotFound
	}
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("%w: load document %s: %v", ErrInternal, id, err)
	}
	if d := access.Authorize(p, doc.OwnerID, action); !d.Allowed {
		return Document{}, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	return doc, nil
}

func millisBetween(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000.0
}
