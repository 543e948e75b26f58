package xlsx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

type listerFake struct {
	docs []domain.Document
	err  error
}

func (f listerFake) ListCompleted(context.Context) ([]domain.Document, error) {
	return f.docs, f.err
}

func TestExportWritesOneRowPerDocument(t *testing.T) {
	date := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	docs := []domain.Document{
		{ID: 1, Title: "Invoice", OriginalFilename: "inv.pdf", CreatedDate: &date, Tags: []string{"finance", "tax"}, Summary: strings.Repeat("s", 600), FileHash: "h1", CreatedAt: date},
		{ID: 2, Title: "Photo", OriginalFilename: "p.png", FileHash: "h2", CreatedAt: date},
	}

	var buf bytes.Buffer
	n, err := NewExporter(listerFake{docs: docs}, nil).Export(context.Background(), &buf)
	if err != nil || n != 2 {
		t.Fatalf("Export() = %d, %v", n, err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "ID" {
		t.Fatalf("unexpected rows %q", rows)
	}
	if rows[1][1] != "Invoice" || rows[1][3] != "2023-04-01" || rows[1][4] != "finance, tax" {
		t.Fatalf("unexpected first row %q", rows[1])
	}
	if got := len([]rune(rows[1][5])); got != maxSummaryRunes {
		t.Fatalf("expected truncated summary, got %d runes", got)
	}
	if rows[2][3] != "" || rows[2][4] != "" {
		t.Fatalf("expected empty date and tags, got %q", rows[2])
	}
}

func TestExportPropagatesQueryError(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewExporter(listerFake{err: errors.New("db down")}, nil).Export(context.Background(), &buf)
	if err == nil || buf.Len() != 0 {
		t.Fatalf("expected error and no output, got %v (%d bytes)", err, buf.Len())
	}
}
