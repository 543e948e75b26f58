package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Config struct {
	Tesseract     string // binary name or path, default "tesseract"
	Pdftoppm      string // binary name or path, default "pdftoppm"
	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI, default 300
	MaxPages      int    // 0 = no limit
}

func (c Config) normalize() Config {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// Tesseract recognizes text in one encoded image passed on stdin.
type Tesseract struct {
	cfg    Config
	runner Runner
}

func NewTesseract(cfg Config, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tesseract{cfg: cfg.normalize(), runner: execRunner{logger: logger}}
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	// tesseract stdin stdout -l <lang>
	out, errb, err := t.runner.Run(ctx, bytes.NewReader(image), t.cfg.Tesseract, "stdin", "stdout", "-l", t.cfg.TesseractLang)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	return strings.TrimSpace(string(out)), nil
}
