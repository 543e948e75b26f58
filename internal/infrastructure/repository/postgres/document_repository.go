package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

const (
	uniqueViolation = "23505"
	// tagSeparator matches chr(31) in the aggregate query.
	tagSeparator = "\x1f"
)

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	now := r.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	status := doc.Status
	if status == "" {
		status = domain.StatusQueued
	}

	err := r.db.QueryRowContext(ctx, `
INSERT INTO documents (title, original_filename, file_path, status, created_at, updated_at,
	provided_title, provided_summary, provided_created_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`, doc.Title, doc.OriginalFilename, doc.FilePath, string(status), doc.CreatedAt, doc.UpdatedAt,
		doc.Provided.Title, doc.Provided.Summary, dateArg(doc.Provided.CreatedDate)).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	doc.Status = status
	return nil
}

const documentColumns = `id, title, original_filename, file_path, thumbnail, content, summary, created_date, file_hash, status, status_message, created_at, updated_at,
	provided_title, provided_summary, provided_created_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc                                                  domain.Document
		thumbnail, content, summary, fileHash, statusMessage sql.NullString
		providedTitle, providedSummary                       sql.NullString
		createdDate, providedDate                            sql.NullTime
		status                                               string
	)
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.OriginalFilename, &doc.FilePath, &thumbnail, &content, &summary,
		&createdDate, &fileHash, &status, &statusMessage, &doc.CreatedAt, &doc.UpdatedAt,
		&providedTitle, &providedSummary, &providedDate,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Thumbnail = thumbnail.String
	doc.Content = content.String
	doc.Summary = summary.String
	doc.FileHash = fileHash.String
	doc.StatusMessage = statusMessage.String
	doc.Status = domain.DocumentStatus(status)
	doc.CreatedDate = dayOf(createdDate)
	doc.Provided = domain.UploadMetadata{
		Title:       providedTitle.String,
		Summary:     providedSummary.String,
		CreatedDate: dayOf(providedDate),
	}
	return doc, nil
}

func dayOf(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	day := time.Date(t.Time.Year(), t.Time.Month(), t.Time.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}

// dateArg binds an optional calendar date to a DATE column.
func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format("2006-01-02")
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%d", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	tags, err := r.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Tags = tags
	return &doc, nil
}

func (r *DocumentRepository) tagsFor(ctx context.Context, id int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT t.name
FROM document_tags dt
JOIN tags t ON t.id = dt.tag_id
WHERE dt.document_id = $1
ORDER BY t.name
`, id)
	if err != nil {
		return nil, fmt.Errorf("list document tags: %w", err)
	}
	defer rows.Close()

	tags := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, message string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, status_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), message, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRow(result, "update document status", id)
}

// CommitFileHash is phase one of the two-phase update. The UNIQUE constraint
// on file_hash is the only dedup authority.
func (r *DocumentRepository) CommitFileHash(ctx context.Context, id int64, hash string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET file_hash = $2, updated_at = $3
WHERE id = $1
`, id, hash, r.now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateHash, "commit file hash", err)
		}
		return fmt.Errorf("commit file hash: %w", err)
	}
	return requireRow(result, "commit file hash", id)
}

func (r *DocumentRepository) Finalize(ctx context.Context, id int64, input domain.FinalizeInput) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET content = $2,
	thumbnail = NULLIF($3, ''),
	title = COALESCE(NULLIF($4, ''), title),
	summary = $5,
	created_date = $6,
	status = $7,
	status_message = '',
	updated_at = $8
WHERE id = $1
`, id, input.Content, input.Thumbnail, input.Title, input.Summary, dateArg(input.CreatedDate), string(domain.StatusCompleted), r.now().UTC())
	if err != nil {
		return fmt.Errorf("finalize document: %w", err)
	}
	return requireRow(result, "finalize document", id)
}

// LinkTags find-or-creates every tag and links it. Re-linking is a no-op.
func (r *DocumentRepository) LinkTags(ctx context.Context, id int64, names []string) error {
	names = domain.NormalizeTags(names)
	if len(names) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tag tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, name := range names {
		var tagID int64
		err := tx.QueryRowContext(ctx, `
INSERT INTO tags (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`, name).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO document_tags (document_id, tag_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, id, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tag tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(result, "delete document", id)
}

func (r *DocumentRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id
FROM documents
WHERE status = $1 AND updated_at < $2
ORDER BY id
`, string(domain.StatusProcessing), olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale document: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale documents: %w", err)
	}
	return ids, nil
}

// ListCompleted returns completed documents with their tags, oldest first.
func (r *DocumentRepository) ListCompleted(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT d.id, d.title, d.original_filename, d.file_path, d.thumbnail, d.content, d.summary, d.created_date,
	d.file_hash, d.status, d.status_message, d.created_at, d.updated_at,
	d.provided_title, d.provided_summary, d.provided_created_date,
	COALESCE(string_agg(t.name, chr(31) ORDER BY t.name), '')
FROM documents d
LEFT JOIN document_tags dt ON dt.document_id = d.id
LEFT JOIN tags t ON t.id = dt.tag_id
WHERE d.status = $1
GROUP BY d.id
ORDER BY d.id
`, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		var tags string
		doc, err := scanDocument(taggedRow{rows: rows, tags: &tags})
		if err != nil {
			return nil, fmt.Errorf("scan completed document: %w", err)
		}
		doc.Tags = splitTags(tags)
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed documents: %w", err)
	}
	return out, nil
}

// taggedRow appends the aggregated tag column to a document scan.
type taggedRow struct {
	rows *sql.Rows
	tags *string
}

func (t taggedRow) Scan(dest ...any) error {
	return t.rows.Scan(append(dest, t.tags)...)
}

func splitTags(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, tagSeparator)
}

func requireRow(result sql.Result, operation string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%d", id))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
