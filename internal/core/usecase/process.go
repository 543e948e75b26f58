package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/core/ports"
)

// EnrichmentObserver receives the result class of every enrichment attempt.
type EnrichmentObserver interface {
	ObserveEnrichment(result string)
}

const (
	enrichmentOK       = "ok"
	enrichmentEmpty    = "empty"
	enrichmentDegraded = "degraded"
	enrichmentDisabled = "disabled"
)

// ProcessDocumentUseCase drives one payload through extraction and the
// two-phase update: commit the content hash first, then enrich and finalize.
type ProcessDocumentUseCase struct {
	repo          ports.DocumentRepository
	extractor     ports.DocumentExtractor
	enricher      ports.Enricher
	storage       ports.ObjectStorage
	cleaner       *DuplicateCleaner
	enrichTimeout time.Duration
	observer      EnrichmentObserver
	logger        *slog.Logger
}

type ProcessOption func(*ProcessDocumentUseCase)

func WithEnrichmentTimeout(d time.Duration) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if d > 0 {
			uc.enrichTimeout = d
		}
	}
}

func WithEnrichmentObserver(o EnrichmentObserver) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.observer = o }
}

func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

// NewProcessDocumentUseCase accepts a nil enricher, which disables enrichment.
func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.DocumentExtractor,
	enricher ports.Enricher,
	storage ports.ObjectStorage,
	opts ...ProcessOption,
) *ProcessDocumentUseCase {
	uc := &ProcessDocumentUseCase{
		repo:          repo,
		extractor:     extractor,
		enricher:      enricher,
		storage:       storage,
		enrichTimeout: 600 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.cleaner = NewDuplicateCleaner(repo, storage, uc.logger)
	return uc
}

func (uc *ProcessDocumentUseCase) Process(ctx context.Context, input domain.ExtractionInput) (outcome domain.ProcessOutcome, err error) {
	documentID := input.DocumentID
	logger := uc.logger.With("document_id", documentID)

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return domain.OutcomeSkipped, fmt.Errorf("fetch document by id: %w", err)
		}
		return domain.OutcomeDeferred, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusCompleted {
		logger.Info("document_already_completed")
		return domain.OutcomeSkipped, nil
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return domain.OutcomeSkipped, fmt.Errorf("set status=processing: %w", err)
		}
		return domain.OutcomeDeferred, fmt.Errorf("set status=processing: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during processing: %v", r)
			outcome = uc.fail(ctx, documentID, err, "")
		}
	}()

	result, err := uc.extractor.Extract(ctx, input)
	if err != nil {
		err = fmt.Errorf("extract document: %w", err)
		return uc.fail(ctx, documentID, err, ""), err
	}

	// Phase 1: the store's uniqueness constraint decides duplicates.
	if err := uc.repo.CommitFileHash(ctx, documentID, result.FileHash); err != nil {
		if domain.IsKind(err, domain.ErrDuplicateHash) {
			logger.Info("duplicate_document_detected", "file_hash", result.FileHash)
			if cleanErr := uc.cleaner.Cleanup(ctx, documentID, result.ThumbnailPath); cleanErr != nil {
				return domain.OutcomeDeferred, fmt.Errorf("cleanup duplicate: %w", cleanErr)
			}
			return domain.OutcomeDuplicate, nil
		}
		err = fmt.Errorf("commit file hash: %w", err)
		return uc.fail(ctx, documentID, err, result.ThumbnailPath), err
	}

	// Phase 2: enrich and finalize in one update.
	enrichment := uc.enrich(ctx, documentID, result.Text)
	if err := uc.repo.Finalize(ctx, documentID, finalizeInput(doc.Provided, enrichment, result)); err != nil {
		err = fmt.Errorf("finalize document: %w", err)
		return uc.fail(ctx, documentID, err, result.ThumbnailPath), err
	}

	if tags := domain.NormalizeTags(enrichment.Tags); len(tags) > 0 {
		if err := uc.repo.LinkTags(ctx, documentID, tags); err != nil {
			logger.Warn("link_tags_failed", "tags", tags, "error", err)
		}
	}
	return domain.OutcomeCompleted, nil
}

// finalizeInput resolves every field as provided > enrichment > extraction.
// An empty title keeps the stored one.
func finalizeInput(provided domain.UploadMetadata, enrichment domain.Enrichment, result domain.ExtractionResult) domain.FinalizeInput {
	return domain.FinalizeInput{
		Content:     result.Text,
		Thumbnail:   result.ThumbnailPath,
		Title:       firstNonEmpty(provided.Title, enrichment.Title),
		Summary:     firstNonEmpty(provided.Summary, enrichment.Summary),
		CreatedDate: firstDate(provided.CreatedDate, enrichment.ExtractedDate, result.ExtractedDate),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstDate(dates ...*time.Time) *time.Time {
	for _, d := range dates {
		if d != nil {
			return d
		}
	}
	return nil
}

// enrich never fails the document: errors and timeouts degrade to an empty result.
func (uc *ProcessDocumentUseCase) enrich(ctx context.Context, documentID int64, text string) domain.Enrichment {
	if uc.enricher == nil {
		uc.observe(enrichmentDisabled)
		return domain.Enrichment{}
	}

	enrichCtx, cancel := context.WithTimeout(ctx, uc.enrichTimeout)
	defer cancel()

	enrichment, err := uc.enricher.Enrich(enrichCtx, text)
	if err != nil {
		uc.logger.Warn("enrichment_degraded", "document_id", documentID, "error", err)
		uc.observe(enrichmentDegraded)
		return domain.Enrichment{}
	}
	if enrichment.IsEmpty() {
		uc.observe(enrichmentEmpty)
	} else {
		uc.observe(enrichmentOK)
	}
	return enrichment
}

func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID int64, processErr error, attemptThumbnail string) domain.ProcessOutcome {
	if attemptThumbnail != "" {
		if err := uc.storage.Remove(ctx, attemptThumbnail); err != nil {
			uc.logger.Warn("thumbnail_cleanup_failed", "document_id", documentID, "key", attemptThumbnail, "error", err)
		}
	}
	if err := uc.markFailed(ctx, documentID, processErr); err != nil {
		uc.logger.Error("mark_failed_status_failed", "document_id", documentID, "error", err, "cause", processErr)
		return domain.OutcomeDeferred
	}
	return domain.OutcomeFailed
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID int64, processErr error) error {
	if processErr == nil {
		processErr = errors.New("unknown processing failure")
	}
	return uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}

func (uc *ProcessDocumentUseCase) observe(result string) {
	if uc.observer != nil {
		uc.observer.ObserveEnrichment(result)
	}
}
