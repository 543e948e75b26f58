package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/dokeep/internal/core/domain"
	"github.com/kirillkom/dokeep/internal/core/ports"
)

const (
	PDFThumbnailBox   = 500
	ImageThumbnailBox = 100

	thumbnailKeyPrefix = "thumbnails"
)

type fileKind int

const (
	kindUnsupported fileKind = iota
	kindPDF
	kindImage
)

// ExtractionStage turns raw document bytes into OCR text, a thumbnail, a
// best-effort date and a content hash. Its only side effect is the
// thumbnail write.
type ExtractionStage struct {
	ocr        ports.OCREngine
	rasterizer ports.PDFRasterizer
	thumbnails ports.ThumbnailRenderer
	storage    ports.ObjectStorage
	dates      *DateResolver
}

func NewExtractionStage(
	ocr ports.OCREngine,
	rasterizer ports.PDFRasterizer,
	thumbnails ports.ThumbnailRenderer,
	storage ports.ObjectStorage,
	dates *DateResolver,
) *ExtractionStage {
	return &ExtractionStage{
		ocr:        ocr,
		rasterizer: rasterizer,
		thumbnails: thumbnails,
		storage:    storage,
		dates:      dates,
	}
}

func (s *ExtractionStage) Extract(ctx context.Context, input domain.ExtractionInput) (domain.ExtractionResult, error) {
	result := domain.ExtractionResult{FileHash: ContentHash(input.Data)}

	var (
		text      string
		thumbnail []byte
		err       error
	)
	switch classifyExtension(input.Extension) {
	case kindPDF:
		text, thumbnail, err = s.extractPDF(ctx, input.Data, true)
	case kindImage:
		text, thumbnail, err = s.extractImage(ctx, input.Data, true)
	default:
		return result, nil
	}
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	result.Text = text
	result.ExtractedDate = s.dates.Resolve(text)
	if len(thumbnail) > 0 {
		key, err := s.storeThumbnail(ctx, input.DocumentID, thumbnail)
		if err != nil {
			return domain.ExtractionResult{}, err
		}
		result.ThumbnailPath = key
	}
	return result, nil
}

// RecognizeText runs OCR only. Unsupported extensions yield empty text.
func (s *ExtractionStage) RecognizeText(ctx context.Context, extension string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch classifyExtension(extension) {
	case kindPDF:
		text, _, err = s.extractPDF(ctx, data, false)
	case kindImage:
		text, _, err = s.extractImage(ctx, data, false)
	}
	return text, err
}

// RenderThumbnail renders a JPEG thumbnail without storing it.
func (s *ExtractionStage) RenderThumbnail(ctx context.Context, extension string, data []byte) ([]byte, error) {
	switch classifyExtension(extension) {
	case kindPDF:
		pages, err := s.rasterize(ctx, data)
		if err != nil {
			return nil, err
		}
		if len(pages) == 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "render thumbnail", fmt.Errorf("pdf has no pages"))
		}
		return s.render(pages[0], PDFThumbnailBox)
	case kindImage:
		return s.render(data, ImageThumbnailBox)
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedType, "render thumbnail", fmt.Errorf("extension %q", extension))
	}
}

func (s *ExtractionStage) extractPDF(ctx context.Context, data []byte, withThumbnail bool) (string, []byte, error) {
	pages, err := s.rasterize(ctx, data)
	if err != nil {
		return "", nil, err
	}
	if len(pages) == 0 {
		return "", nil, nil
	}

	var text strings.Builder
	for idx, page := range pages {
		pageText, err := s.ocr.Recognize(ctx, page)
		if err != nil {
			return "", nil, fmt.Errorf("ocr pdf page %d: %w", idx+1, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	if !withThumbnail {
		return text.String(), nil, nil
	}
	thumbnail, err := s.render(pages[0], PDFThumbnailBox)
	if err != nil {
		return "", nil, err
	}
	return text.String(), thumbnail, nil
}

func (s *ExtractionStage) extractImage(ctx context.Context, data []byte, withThumbnail bool) (string, []byte, error) {
	text, err := s.ocr.Recognize(ctx, data)
	if err != nil {
		return "", nil, fmt.Errorf("ocr image: %w", err)
	}
	if !withThumbnail {
		return text, nil, nil
	}
	thumbnail, err := s.render(data, ImageThumbnailBox)
	if err != nil {
		return "", nil, err
	}
	return text, thumbnail, nil
}

func (s *ExtractionStage) rasterize(ctx context.Context, data []byte) ([][]byte, error) {
	pages, err := s.rasterizer.Rasterize(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("rasterize pdf: %w", err)
	}
	return pages, nil
}

func (s *ExtractionStage) render(src []byte, box int) ([]byte, error) {
	thumbnail, err := s.thumbnails.Render(src, box, box)
	if err != nil {
		return nil, fmt.Errorf("render thumbnail: %w", err)
	}
	return thumbnail, nil
}

func (s *ExtractionStage) storeThumbnail(ctx context.Context, documentID int64, thumbnail []byte) (string, error) {
	key := path.Join(thumbnailKeyPrefix, fmt.Sprintf("%d_%s.jpg", documentID, uuid.NewString()))
	if err := s.storage.Save(ctx, key, bytes.NewReader(thumbnail)); err != nil {
		return "", fmt.Errorf("save thumbnail: %w", err)
	}
	return key, nil
}

// ContentHash is the hex SHA-256 of the raw uploaded bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeExtension lower-cases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func classifyExtension(ext string) fileKind {
	switch NormalizeExtension(ext) {
	case ".pdf":
		return kindPDF
	case ".jpg", ".jpeg", ".png":
		return kindImage
	default:
		return kindUnsupported
	}
}
