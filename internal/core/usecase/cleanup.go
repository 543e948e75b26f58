package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/core/ports"
)

// DuplicateCleaner removes a document that lost the content-hash race: its
// row, its stored upload and the thumbnail made during this attempt. The
// surviving original keeps its own files.
type DuplicateCleaner struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	logger  *slog.Logger
}

func NewDuplicateCleaner(repo ports.DocumentRepository, storage ports.ObjectStorage, logger *slog.Logger) *DuplicateCleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuplicateCleaner{repo: repo, storage: storage, logger: logger}
}

func (c *DuplicateCleaner) Cleanup(ctx context.Context, documentID int64, attemptThumbnail string) error {
	c.removeFile(ctx, documentID, attemptThumbnail)

	doc, err := c.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil
		}
		return fmt.Errorf("read duplicate document: %w", err)
	}

	if err := c.repo.Delete(ctx, documentID); err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("delete duplicate document: %w", err)
	}
	c.removeFile(ctx, documentID, doc.FilePath)

	c.logger.Info("duplicate_document_removed", "document_id", documentID, "file_path", doc.FilePath)
	return nil
}

func (c *DuplicateCleaner) removeFile(ctx context.Context, documentID int64, key string) {
	if key == "" {
		return
	}
	if err := c.storage.Remove(ctx, key); err != nil {
		c.logger.Warn("duplicate_file_cleanup_failed", "document_id", documentID, "key", key, "error", err)
	}
}
