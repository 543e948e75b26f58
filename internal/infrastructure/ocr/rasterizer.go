package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Rasterizer renders PDF pages to PNG with pdftoppm.
type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewRasterizer(cfg Config, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{cfg: cfg.normalize(), runner: execRunner{logger: logger}, logger: logger}
}

// Rasterize returns encoded PNG pages in page order. A document the PDF
// parser reports as empty yields no pages and runs no command.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte) ([][]byte, error) {
	lastPage := 0
	if pages, err := countPages(data); err != nil {
		r.logger.Warn("pdf_page_count_failed", "error", err)
	} else {
		if pages == 0 {
			return nil, nil
		}
		lastPage = pages
	}
	if r.cfg.MaxPages > 0 && (lastPage == 0 || lastPage > r.cfg.MaxPages) {
		lastPage = r.cfg.MaxPages
	}

	tmpDir, err := os.MkdirTemp("", "dokeep-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("raster_dir_cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	input := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write raster input: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png"}
	if lastPage > 0 {
		args = append(args, "-l", strconv.Itoa(lastPage))
	}
	args = append(args, input, prefix)
	// pdftoppm -r <dpi> -png [-l <last>] in.pdf <tmp/page>
	if _, errb, err := r.runner.Run(ctx, nil, r.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	sortPageFiles(matches, prefix)

	pages := make([][]byte, 0, len(matches))
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		pages = append(pages, raw)
	}
	return pages, nil
}

func countPages(data []byte) (n int, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return reader.NumPage(), nil
}

// sortPageFiles orders prefix-N.png by N; pdftoppm zero-pads inconsistently
// across versions.
func sortPageFiles(paths []string, prefix string) {
	pageNumber := func(path string) int {
		raw := strings.TrimSuffix(strings.TrimPrefix(path, prefix+"-"), ".png")
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return pageNumber(paths[i]) < pageNumber(paths[j])
	})
}
