package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

const defaultJPEGQuality = 85

// ThumbnailRenderer fits images inside a box, keeping the aspect ratio and
// never upscaling. Output is always JPEG on a white background.
type ThumbnailRenderer struct {
	quality int
}

func NewThumbnailRenderer(quality int) *ThumbnailRenderer {
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	return &ThumbnailRenderer{quality: quality}
}

func (r *ThumbnailRenderer) Render(src []byte, maxWidth, maxHeight int) ([]byte, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "render thumbnail", fmt.Errorf("invalid box %dx%d", maxWidth, maxHeight))
	}
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode image", err)
	}

	bounds := img.Bounds()
	width, height := FitWithin(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}

// FitWithin scales width x height down to fit maxWidth x maxHeight. Images
// that already fit keep their size.
func FitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return 1, 1
	}
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	scale := min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	w := max(int(math.Round(float64(width)*scale)), 1)
	h := max(int(math.Round(float64(height)*scale)), 1)
	return w, h
}
