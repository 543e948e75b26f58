package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	queue    ports.WorkQueue
	notifier ports.QueueNotifier
	logger   *slog.Logger
}

// NewIngestDocumentUseCase accepts a nil notifier; the worker then relies on polling.
func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.WorkQueue,
	notifier ports.QueueNotifier,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		notifier: notifier,
		logger:   logger,
	}
}

// Upload stores the original file, creates the queued row and enqueues the
// payload. A failed enqueue removes the row and the stored file again.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, filename string, meta domain.UploadMetadata, body io.Reader) (domain.EnqueueAck, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.EnqueueAck{}, fmt.Errorf("read upload body: %w", err)
	}
	if len(data) == 0 {
		return domain.EnqueueAck{}, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	}

	storageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return domain.EnqueueAck{}, fmt.Errorf("save to object storage: %w", err)
	}

	ext := filepath.Ext(filename)
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Summary = strings.TrimSpace(meta.Summary)
	title := meta.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), ext)
	}
	now := time.Now().UTC()
	doc := &domain.Document{
		Title:            title,
		OriginalFilename: filename,
		FilePath:         storageKey,
		Status:           domain.StatusQueued,
		Provided:         meta,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.removeUpload(ctx, storageKey)
		return domain.EnqueueAck{}, fmt.Errorf("create document metadata: %w", err)
	}

	ack, err := uc.Enqueue(ctx, doc.ID, ext, bytes.NewReader(data))
	if err != nil {
		// A queued row without a queue item would never be picked up.
		if delErr := uc.repo.Delete(ctx, doc.ID); delErr != nil {
			uc.logger.Warn("upload_row_cleanup_failed", "document_id", doc.ID, "error", delErr)
		}
		uc.removeUpload(ctx, storageKey)
		return domain.EnqueueAck{}, err
	}
	return ack, nil
}

func (uc *IngestDocumentUseCase) removeUpload(ctx context.Context, key string) {
	if err := uc.storage.Remove(ctx, key); err != nil {
		uc.logger.Warn("upload_cleanup_failed", "key", key, "error", err)
	}
}

// Enqueue persists the payload for an existing queued row and returns immediately.
func (uc *IngestDocumentUseCase) Enqueue(ctx context.Context, documentID int64, extension string, body io.Reader) (domain.EnqueueAck, error) {
	if documentID <= 0 {
		return domain.EnqueueAck{}, domain.WrapError(domain.ErrInvalidInput, "enqueue", fmt.Errorf("invalid document id %d", documentID))
	}
	if err := uc.queue.Enqueue(ctx, documentID, NormalizeExtension(extension), body); err != nil {
		return domain.EnqueueAck{}, fmt.Errorf("enqueue document payload: %w", err)
	}

	if uc.notifier != nil {
		if err := uc.notifier.NotifyQueued(ctx, documentID); err != nil {
			uc.logger.Warn("queue_notify_failed", "document_id", documentID, "error", err)
		}
	}
	return domain.EnqueueAck{ID: documentID, Status: domain.StatusQueued}, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
