package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/core/ports"
)

const staleProcessingMessage = "processing abandoned"

// StaleSweeper fails documents left in processing longer than the threshold,
// typically after a worker crash.
type StaleSweeper struct {
	repo   ports.DocumentRepository
	after  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewStaleSweeper(repo ports.DocumentRepository, after time.Duration, logger *slog.Logger) *StaleSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleSweeper{repo: repo, after: after, now: time.Now, logger: logger}
}

// Sweep returns the number of documents it marked failed.
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	if s == nil || s.after <= 0 {
		return 0, nil
	}
	ids, err := s.repo.ListStaleProcessing(ctx, s.now().UTC().Add(-s.after))
	if err != nil {
		return 0, fmt.Errorf("list stale processing documents: %w", err)
	}

	swept := 0
	for _, id := range ids {
		if err := s.repo.UpdateStatus(ctx, id, domain.StatusFailed, staleProcessingMessage); err != nil {
			s.logger.Warn("stale_document_mark_failed", "document_id", id, "error", err)
			continue
		}
		swept++
		s.logger.Warn("stale_document_failed", "document_id", id)
	}
	return swept, nil
}
