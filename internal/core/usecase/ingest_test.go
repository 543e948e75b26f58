package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

func TestIngestUploadSuccess(t *testing.T) {
	repo := newMemRepoFake()
	storage := newMemStorageFake()
	queue := &memQueueFake{}
	notifier := &notifierFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue, notifier, nil)

	ack, err := uc.Upload(context.Background(), "Scan 1.PDF", domain.UploadMetadata{}, bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if ack.ID == 0 || ack.Status != domain.StatusQueued {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	doc := repo.doc(ack.ID)
	if doc == nil {
		t.Fatalf("expected created document row")
	}
	if doc.Title != "Scan 1" || doc.Status != domain.StatusQueued {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if !strings.HasSuffix(doc.FilePath, "_Scan_1.PDF") || !storage.has(doc.FilePath) {
		t.Fatalf("expected sanitized stored file, got %q", doc.FilePath)
	}
	keys := queue.keys()
	if len(keys) != 1 || keys[0] != "1.pdf" {
		t.Fatalf("expected queue key 1.pdf, got %v", keys)
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != ack.ID {
		t.Fatalf("expected wake-up for %d, got %v", ack.ID, notifier.notified)
	}
}

func TestIngestUploadRejectsEmptyBody(t *testing.T) {
	uc := NewIngestDocumentUseCase(newMemRepoFake(), newMemStorageFake(), &memQueueFake{}, nil, nil)

	_, err := uc.Upload(context.Background(), "empty.pdf", domain.UploadMetadata{}, bytes.NewReader(nil))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIngestUploadRemovesFileWhenCreateFails(t *testing.T) {
	repo := newMemRepoFake()
	repo.createErr = errors.New("db down")
	storage := newMemStorageFake()
	queue := &memQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue, nil, nil)

	_, err := uc.Upload(context.Background(), "report.pdf", domain.UploadMetadata{}, bytes.NewBufferString("hello"))
	if err == nil || !strings.Contains(err.Error(), "create document metadata") {
		t.Fatalf("expected create error, got %v", err)
	}
	if storage.count() != 0 {
		t.Fatalf("expected stored file to be removed")
	}
	if len(queue.keys()) != 0 {
		t.Fatalf("expected nothing queued")
	}
}

func TestIngestUploadRollsBackWhenEnqueueFails(t *testing.T) {
	repo := newMemRepoFake()
	storage := newMemStorageFake()
	queue := &memQueueFake{enqueueErr: errors.New("disk full")}
	notifier := &notifierFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue, notifier, nil)

	_, err := uc.Upload(context.Background(), "a.pdf", domain.UploadMetadata{}, bytes.NewBufferString("hello"))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected enqueue error, got %v", err)
	}
	if doc := repo.doc(1); doc != nil {
		t.Fatalf("expected created row to be deleted, got %+v", doc)
	}
	if storage.count() != 0 {
		t.Fatalf("expected stored upload to be removed")
	}
	if len(notifier.notified) != 0 {
		t.Fatalf("unexpected wake-up: %v", notifier.notified)
	}
}

func TestIngestUploadKeepsProvidedMetadata(t *testing.T) {
	repo := newMemRepoFake()
	uc := NewIngestDocumentUseCase(repo, newMemStorageFake(), &memQueueFake{}, nil, nil)

	date := time.Date(2021, 3, 9, 0, 0, 0, 0, time.UTC)
	meta := domain.UploadMetadata{Title: "  Lease 2021 ", Summary: "Flat lease", CreatedDate: &date}
	ack, err := uc.Upload(context.Background(), "scan.pdf", meta, bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	doc := repo.doc(ack.ID)
	if doc.Title != "Lease 2021" || doc.Provided.Title != "Lease 2021" || doc.Provided.Summary != "Flat lease" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.Provided.CreatedDate == nil || !doc.Provided.CreatedDate.Equal(date) {
		t.Fatalf("unexpected provided date: %v", doc.Provided.CreatedDate)
	}
}

func TestIngestEnqueueQueueError(t *testing.T) {
	queue := &memQueueFake{enqueueErr: errors.New("disk full")}
	uc := NewIngestDocumentUseCase(newMemRepoFake(), newMemStorageFake(), queue, nil, nil)

	_, err := uc.Enqueue(context.Background(), 7, "pdf", bytes.NewBufferString("x"))
	if err == nil || !strings.Contains(err.Error(), "enqueue document payload") {
		t.Fatalf("expected enqueue error, got %v", err)
	}
}

func TestIngestEnqueueRejectsInvalidID(t *testing.T) {
	uc := NewIngestDocumentUseCase(newMemRepoFake(), newMemStorageFake(), &memQueueFake{}, nil, nil)

	_, err := uc.Enqueue(context.Background(), 0, ".pdf", bytes.NewBufferString("x"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIngestEnqueueIgnoresNotifierFailure(t *testing.T) {
	queue := &memQueueFake{}
	notifier := &notifierFake{err: errors.New("nats down")}
	uc := NewIngestDocumentUseCase(newMemRepoFake(), newMemStorageFake(), queue, notifier, nil)

	ack, err := uc.Enqueue(context.Background(), 42, ".PNG", bytes.NewBufferString("x"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if ack.ID != 42 || ack.Status != domain.StatusQueued {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if keys := queue.keys(); len(keys) != 1 || keys[0] != "42.png" {
		t.Fatalf("unexpected queue keys: %v", keys)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"my file.pdf":      "my_file.pdf",
		"../../etc/passwd": "passwd",
		"отчёт.png":        "_____.png",
		"":                 "document.bin",
		"a+b(1).jpeg":      "a_b_1_.jpeg",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
