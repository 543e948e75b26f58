package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/dokeep/internal/core/domain"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewDocumentRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock, func() { _ = db.Close() }
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

var documentRowColumns = []string{
	"id", "title", "original_filename", "file_path", "thumbnail", "content", "summary",
	"created_date", "file_hash", "status", "status_message", "created_at", "updated_at",
	"provided_title", "provided_summary", "provided_created_date",
}

func TestCreateReturnsGeneratedID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("scan", "scan.pdf", "uuid_scan.pdf", "queued", fixedNow, fixedNow, "", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

	doc := &domain.Document{Title: "scan", OriginalFilename: "scan.pdf", FilePath: "uuid_scan.pdf"}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if doc.ID != 17 || doc.Status != domain.StatusQueued {
		t.Fatalf("unexpected document after create: %+v", doc)
	}
	expectationsMet(t, mock)
}

func TestCreateStoresProvidedMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	date := time.Date(2022, 12, 31, 15, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("Lease", "lease.pdf", "uuid_lease.pdf", "queued", fixedNow, fixedNow, "Lease", "Flat lease", "2022-12-31").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(18)))

	doc := &domain.Document{
		Title:            "Lease",
		OriginalFilename: "lease.pdf",
		FilePath:         "uuid_lease.pdf",
		Provided:         domain.UploadMetadata{Title: "Lease", Summary: "Flat lease", CreatedDate: &date},
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestGetByIDLoadsProvidedMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, original_filename").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow(
			int64(4), "Lease", "lease.pdf", "k_lease.pdf", nil, nil, nil,
			nil, nil, "queued", nil, fixedNow, fixedNow,
			"Lease", "Flat lease", time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
		))
	mock.ExpectQuery("SELECT t.name").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	doc, err := repo.GetByID(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	p := doc.Provided
	if p.Title != "Lease" || p.Summary != "Flat lease" || p.CreatedDate == nil || p.CreatedDate.Format("2006-01-02") != "2022-12-31" {
		t.Fatalf("unexpected provided metadata: %+v", p)
	}
	expectationsMet(t, mock)
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, original_filename").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 404)
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestGetByIDLoadsNullableColumnsAndTags(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, original_filename").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow(
			int64(3), "Invoice", "inv.pdf", "k_inv.pdf", "thumbnails/3_x.jpg", "text", nil,
			time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), "abc", "completed", nil, fixedNow, fixedNow,
			"", "", nil,
		))
	mock.ExpectQuery("SELECT t.name").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("finance").AddRow("invoice"))

	doc, err := repo.GetByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Summary != "" || doc.StatusMessage != "" || doc.Status != domain.StatusCompleted {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.CreatedDate == nil || doc.CreatedDate.Format("2006-01-02") != "2023-04-01" {
		t.Fatalf("unexpected created date: %v", doc.CreatedDate)
	}
	if strings.Join(doc.Tags, ",") != "finance,invoice" {
		t.Fatalf("unexpected tags: %v", doc.Tags)
	}
	expectationsMet(t, mock)
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs(int64(9), string(domain.StatusProcessing), "", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), 9, domain.StatusProcessing, "")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCommitFileHashMapsUniqueViolation(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("SET file_hash = $2")).
		WithArgs(int64(11), "deadbeef", fixedNow).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "documents_file_hash_key"})

	err := repo.CommitFileHash(context.Background(), 11, "deadbeef")
	if !domain.IsKind(err, domain.ErrDuplicateHash) {
		t.Fatalf("expected ErrDuplicateHash, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCommitFileHashKeepsOtherErrors(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("SET file_hash = $2")).
		WithArgs(int64(11), "deadbeef", fixedNow).
		WillReturnError(&pgconn.PgError{Code: "40P01"})

	err := repo.CommitFileHash(context.Background(), 11, "deadbeef")
	if err == nil || domain.IsKind(err, domain.ErrDuplicateHash) {
		t.Fatalf("expected plain error, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestFinalizeWritesCompletedState(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	date := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE documents").
		WithArgs(int64(5), "text", "thumbnails/5_a.jpg", "Invoice", "summary", "2023-04-01", "completed", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Finalize(context.Background(), 5, domain.FinalizeInput{
		Content:     "text",
		Thumbnail:   "thumbnails/5_a.jpg",
		Title:       "Invoice",
		Summary:     "summary",
		CreatedDate: &date,
	})
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestLinkTagsUpsertsAndLinksEachNormalizedTag(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO tags").
		WithArgs("finance").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO document_tags").
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO tags").
		WithArgs("tax").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectExec("INSERT INTO document_tags").
		WithArgs(int64(7), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.LinkTags(context.Background(), 7, []string{"Finance", " finance", "", "TAX"}); err != nil {
		t.Fatalf("LinkTags() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestLinkTagsRollsBackOnError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO tags").
		WithArgs("finance").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if err := repo.LinkTags(context.Background(), 7, []string{"finance"}); err == nil {
		t.Fatalf("expected error")
	}
	expectationsMet(t, mock)
}

func TestLinkTagsWithoutTagsIsNoop(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	if err := repo.LinkTags(context.Background(), 7, []string{" ", ""}); err != nil {
		t.Fatalf("LinkTags() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestDeleteAndListStaleProcessing(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM documents").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	cutoff := fixedNow.Add(-time.Hour)
	mock.ExpectQuery("SELECT id").
		WithArgs("processing", cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)).AddRow(int64(6)))

	if err := repo.Delete(context.Background(), 11); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ids, err := repo.ListStaleProcessing(context.Background(), cutoff)
	if err != nil || len(ids) != 2 || ids[0] != 4 || ids[1] != 6 {
		t.Fatalf("ListStaleProcessing() = %v, %v", ids, err)
	}
	expectationsMet(t, mock)
}

func TestListCompletedSplitsAggregatedTags(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	columns := append(append([]string{}, documentRowColumns...), "tags")
	mock.ExpectQuery("FROM documents d").
		WithArgs("completed").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "A", "a.pdf", "k_a.pdf", nil, "text", "s", nil, "h1", "completed", "", fixedNow, fixedNow, "", "", nil, "finance\x1ftax").
			AddRow(int64(2), "B", "b.png", "k_b.png", nil, "", "", nil, "h2", "completed", "", fixedNow, fixedNow, "User B", "", nil, ""))

	docs, err := repo.ListCompleted(context.Background())
	if err != nil {
		t.Fatalf("ListCompleted() error = %v", err)
	}
	if len(docs) != 2 || strings.Join(docs[0].Tags, "|") != "finance|tax" || len(docs[1].Tags) != 0 || docs[1].Provided.Title != "User B" {
		t.Fatalf("unexpected documents: %+v", docs)
	}
	expectationsMet(t, mock)
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	expectationsMet(t, mock)
}
