package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, owner_id, original_name, stored_name, mime_type, size_bytes, bucket, storage_path,
       extracted_text, extracted_html, enrichment_status, summary, keywords, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    owner_id,
    original_name,
    stored_name,
    mime_type,
    size_bytes,
    bucket,
    storage_path,
    extracted_text,
    extracted_html,
    enrichment_status,
    summary,
    keywords,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15)`

	keywords, err := encodeKeywords(doc.Keywords)
	if err != nil {
		return err
	}
	status := doc.Status
	if status == "" {
		status = StatusPending
	}

	_, err = r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OwnerID,
		doc.OriginalName,
		doc.StoredName,
		doc.MimeType,
		doc.SizeBytes,
		doc.Bucket,
		doc.StoragePath,
		doc.ExtractedText,
		doc.ExtractedHTML,
		string(status),
		nullString(doc.Summary),
		keywords,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// GetByID fetches a document by id.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// List returns one page of matching documents newest-first and the total match count.
func (r *PGRepo) List(ctx context.Context, q ListQuery) ([]Document, int, error) {
	where, args := listFilter(q)

	var total int
	countQuery := `SELECT COUNT(*) FROM documents` + where
	if err := r.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []Document{}, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	pageArgs := append(append([]any{}, args...), limit, q.Offset())
	query := fmt.Sprintf(`
SELECT %s
FROM documents%s
ORDER BY created_at DESC, id DESC
LIMIT $%d OFFSET $%d`, documentColumns, where, len(args)+1, len(args)+2)

	rows, err := r.DB.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

// Delete removes a document. ErrNotFound is returned when no row matched.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessing moves a pending or failed document to processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
UPDATE documents
SET enrichment_status = 'processing', updated_at = $2
WHERE id = $1 AND enrichment_status IN ('pending', 'failed')`
	return execAffected(ctx, r.DB, query, id, at)
}

// CompleteEnrichment stores the enrichment and marks a processing document ready.
func (r *PGRepo) CompleteEnrichment(ctx context.Context, id, summary string, keywords []string, at time.Time) (bool, error) {
	const query = `
UPDATE documents
SET enrichment_status = 'ready', summary = $2, keywords = $3::jsonb, updated_at = $4
WHERE id = $1 AND enrichment_status = 'processing'`
	encoded, err := encodeKeywords(keywords)
	if err != nil {
		return false, err
	}
	return execAffected(ctx, r.DB, query, id, summary, encoded, at)
}

// FailEnrichment marks a processing document failed and clears any enrichment.
func (r *PGRepo) FailEnrichment(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
UPDATE documents
SET enrichment_status = 'failed', summary = NULL, keywords = '[]'::jsonb, updated_at = $2
WHERE id = $1 AND enrichment_status = 'processing'`
	return execAffected(ctx, r.DB, query, id, at)
}

func execAffected(ctx context.Context, db *sql.DB, query string, args ...any) (bool, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func listFilter(q ListQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		clauses = append(clauses, fmt.Sprintf("enrichment_status = $%d", len(args)))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		clauses = append(clauses, fmt.Sprintf("original_name ILIKE $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc      Document
		status   string
		summary  sql.NullString
		keywords []byte
	)
	if err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.OriginalName,
		&doc.StoredName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.Bucket,
		&doc.StoragePath,
		&doc.ExtractedText,
		&doc.ExtractedHTML,
		&status,
		&summary,
		&keywords,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	if summary.Valid {
		s := summary.String
		doc.Summary = &s
	}
	doc.Keywords = []string{}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &doc.Keywords); err != nil {
			return Document{}, fmt.Errorf("decode keywords for %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(raw), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
