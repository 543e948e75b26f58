package xlsx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

const sheetName = "Documents"

// maxSummaryRunes keeps cells readable; full summaries stay in the database.
const maxSummaryRunes = 500

// CompletedLister is the read side the export needs.
type CompletedLister interface {
	ListCompleted(ctx context.Context) ([]domain.Document, error)
}

type Exporter struct {
	documents CompletedLister
	logger    *slog.Logger
}

func NewExporter(documents CompletedLister, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{documents: documents, logger: logger}
}

var headers = []string{"ID", "Title", "Original File", "Document Date", "Tags", "Summary", "File Hash", "Added"}

// Export writes one row per completed document and returns the row count.
func (e *Exporter) Export(ctx context.Context, w io.Writer) (int, error) {
	start := time.Now()

	docs, err := e.documents.ListCompleted(ctx)
	if err != nil {
		return 0, fmt.Errorf("query completed documents: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	for idx, doc := range docs {
		row := idx + 2
		documentDate := ""
		if doc.CreatedDate != nil {
			documentDate = doc.CreatedDate.Format("2006-01-02")
		}
		values := []any{
			doc.ID,
			doc.Title,
			doc.OriginalFilename,
			documentDate,
			strings.Join(doc.Tags, ", "),
			truncateRunes(doc.Summary, maxSummaryRunes),
			doc.FileHash,
			doc.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return 0, fmt.Errorf("write row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "C", 32)
	_ = f.SetColWidth(sheetName, "D", "D", 14)
	_ = f.SetColWidth(sheetName, "E", "E", 28)
	_ = f.SetColWidth(sheetName, "F", "F", 60)
	_ = f.SetColWidth(sheetName, "G", "G", 66)
	_ = f.SetColWidth(sheetName, "H", "H", 22)

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("export_xlsx_ok", "rows", len(docs), "elapsed_ms", time.Since(start).Milliseconds())
	return len(docs), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
