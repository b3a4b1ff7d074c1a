package vectorstore

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fabfab/pdf-rag/domain"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresReplaceRunsInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteCollectionSQL)).
		WithArgs("document_pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertCollectionSQL)).
		WithArgs(sqlmock.AnyArg(), "document_pdf", "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertEmbeddingSQL)).
		WithArgs("chunk-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "first chunk", `{"source":"manual.pdf","page":1,"chunk_index":0}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertEmbeddingSQL)).
		WithArgs("chunk-2", sqlmock.AnyArg(), sqlmock.AnyArg(), "second chunk", `{"source":"manual.pdf","page":2,"chunk_index":1}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	records := []Record{
		{Chunk: domain.Chunk{ID: "chunk-1", Content: "first chunk", Source: "manual.pdf", Page: 1, Index: 0}, Embedding: []float32{1, 0}},
		{Chunk: domain.Chunk{ID: "chunk-2", Content: "second chunk", Source: "manual.pdf", Page: 2, Index: 1}, Embedding: []float32{0, 1}},
	}
	if err := store.Replace(context.Background(), "document_pdf", records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresReplaceRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteCollectionSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertCollectionSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertEmbeddingSQL)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	records := []Record{{Chunk: domain.Chunk{ID: "chunk-1", Content: "text"}, Embedding: []float32{1}}}
	err := store.Replace(context.Background(), "document_pdf", records)
	if !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSearchReturnsRowsInOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectCollectionSQL)).
		WithArgs("document_pdf").
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow("6f1c2a8e-5a4b-4b7e-9d53-0b7c1c2f9a10"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM langchain_pg_embedding e")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document", "cmetadata", "distance"}).
			AddRow("chunk-2", "The warranty period is 24 months.", []byte(`{"source":"manual.pdf","page":2}`), 0.12).
			AddRow("chunk-7", "Returns are accepted.", []byte(`{"source":"manual.pdf","page":"5"}`), 0.4))

	results, err := store.Search(context.Background(), "document_pdf", []float32{0.1, 0.2}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.Chunk.Content != "The warranty period is 24 months." || first.Chunk.Page != 2 || first.Chunk.Source != "manual.pdf" || first.Score != 0.12 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if results[1].Chunk.Page != 5 {
		t.Fatalf("expected string page metadata to be parsed, got %d", results[1].Chunk.Page)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSearchMissingCollection(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectCollectionSQL)).
		WithArgs("never_ingested").
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}))

	_, err := store.Search(context.Background(), "never_ingested", []float32{1}, 10)
	if !domain.IsKind(err, domain.ErrStorage) || !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected collection not found storage error, got %v", err)
	}
}

func TestPostgresSearchUnreachable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectCollectionSQL)).WillReturnError(errors.New("connection refused"))

	_, err := store.Search(context.Background(), "document_pdf", []float32{1}, 10)
	if !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatal("connection failure must not be reported as a missing collection")
	}
}

func TestPostgresSearchHugeK(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectCollectionSQL)).
		WithArgs("document_pdf").
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow("6f1c2a8e-5a4b-4b7e-9d53-0b7c1c2f9a10"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM langchain_pg_embedding e")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document", "cmetadata", "distance"}).
			AddRow("chunk-2", "The warranty period is 24 months.", []byte(`{"source":"manual.pdf","page":2}`), 0.12))

	results, err := store.Search(context.Background(), "document_pdf", []float32{1, 0}, math.MaxInt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "chunk-2" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSearchRejectsNonPositiveK(t *testing.T) {
	store, _ := newMockStore(t)
	if _, err := store.Search(context.Background(), "document_pdf", []float32{1}, 0); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteCollectionSQL)).
		WithArgs("document_pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Delete(context.Background(), "document_pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
