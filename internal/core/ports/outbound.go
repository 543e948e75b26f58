package ports

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

// DocumentRepository owns the document record and its tag links.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, message string) error
	// CommitFileHash returns domain.ErrDuplicateHash when another document holds hash.
	CommitFileHash(ctx context.Context, id int64, hash string) error
	Finalize(ctx context.Context, id int64, input domain.FinalizeInput) error
	LinkTags(ctx context.Context, id int64, names []string) error
	Delete(ctx context.Context, id int64) error
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]int64, error)
}

// ObjectStorage stores uploaded files and thumbnails by key.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove is a no-op for missing keys.
	Remove(ctx context.Context, key string) error
}

// WorkQueue is the durable mailbox between producers and the worker.
type WorkQueue interface {
	Enqueue(ctx context.Context, documentID int64, extension string, body io.Reader) error
	Pending(ctx context.Context) iter.Seq2[domain.QueueItem, error]
	Read(ctx context.Context, item domain.QueueItem) ([]byte, error)
	Remove(ctx context.Context, item domain.QueueItem) error
}

// QueueNotifier carries best-effort wake-ups from producers to the worker.
type QueueNotifier interface {
	NotifyQueued(ctx context.Context, documentID int64) error
	SubscribeQueued(ctx context.Context, handler func(documentID int64)) error
}

// DocumentExtractor is the hash and extraction stage.
type DocumentExtractor interface {
	Extract(ctx context.Context, input domain.ExtractionInput) (domain.ExtractionResult, error)
}

// OCREngine recognizes text in one encoded image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// PDFRasterizer renders every page of a PDF to an encoded image, in page order.
type PDFRasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([][]byte, error)
}

// ThumbnailRenderer scales an encoded image to fit a box and encodes it as JPEG.
type ThumbnailRenderer interface {
	Render(src []byte, maxWidth, maxHeight int) ([]byte, error)
}

// DateEntityTagger returns text spans tagged as date entities, in text order.
type DateEntityTagger interface {
	DateEntities(text string) []string
}

// Enricher calls the external analysis collaborator.
type Enricher interface {
	Enrich(ctx context.Context, content string) (domain.Enrichment, error)
}
