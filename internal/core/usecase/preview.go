package usecase

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

// PreviewUseCase renders thumbnails and OCR text without touching the store.
type PreviewUseCase struct {
	stage *ExtractionStage
}

func NewPreviewUseCase(stage *ExtractionStage) *PreviewUseCase {
	return &PreviewUseCase{stage: stage}
}

func (uc *PreviewUseCase) Thumbnail(ctx context.Context, filename string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "thumbnail preview", errors.New("empty file"))
	}
	return uc.stage.RenderThumbnail(ctx, filepath.Ext(filename), data)
}

func (uc *PreviewUseCase) OCR(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "ocr preview", errors.New("empty file"))
	}
	return uc.stage.RecognizeText(ctx, filepath.Ext(filename), data)
}
