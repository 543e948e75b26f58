package ports

import (
	"context"
	"io"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload and enqueue.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename string, meta domain.UploadMetadata, body io.Reader) (domain.EnqueueAck, error)
	Enqueue(ctx context.Context, documentID int64, extension string, body io.Reader) (domain.EnqueueAck, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
}

// DocumentProcessor drives one queued payload to a terminal outcome.
type DocumentProcessor interface {
	Process(ctx context.Context, input domain.ExtractionInput) (domain.ProcessOutcome, error)
}

// DocumentPreviewer serves synchronous, stateless previews.
type DocumentPreviewer interface {
	Thumbnail(ctx context.Context, filename string, data []byte) ([]byte, error)
	OCR(ctx context.Context, filename string, data []byte) (string, error)
}
