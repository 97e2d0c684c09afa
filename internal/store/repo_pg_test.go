package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGRepoInsertListingMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	listing := Listing{
		ExternalID:  "job-1",
		Title:       "Go Engineer",
		FirstSeenAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO listings").
		WithArgs(
			sqlmock.AnyArg(), listing.ExternalID, listing.Title, listing.HiringEntity, listing.FullText,
			listing.FirstSeenAt, listing.SearchKeyword, string(listing.RoleType), string(listing.Seniority),
			sqlmock.AnyArg(), listing.IntelligenceOnly,
		).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = repo.InsertListing(context.Background(), listing)
	if err != ErrUniqueConflict {
		t.Fatalf("expected ErrUniqueConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoOpenBatchRejectsSecondOpenUnderLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT batch_id FROM batch_lock WHERE id = 1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"batch_id"}).AddRow("existing-batch"))
	mock.ExpectRollback()

	_, err = repo.OpenBatch(context.Background(), Builder)
	if err != ErrBatchAlreadyOpen {
		t.Fatalf("expected ErrBatchAlreadyOpen, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoOpenBatchCommitsWhenLockIsFree(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT batch_id FROM batch_lock WHERE id = 1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"batch_id"}).AddRow(nil))
	mock.ExpectExec("INSERT INTO batches").
		WithArgs(sqlmock.AnyArg(), string(Builder), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE batch_lock SET batch_id").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	batch, err := repo.OpenBatch(context.Background(), Builder)
	if err != nil {
		t.Fatalf("OpenBatch: %v", err)
	}
	if batch.Archetype != Builder {
		t.Fatalf("expected archetype %s, got %s", Builder, batch.Archetype)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSetOutcomeNeverDemotesUnderLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT outcome FROM applications WHERE id = \\$1 FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"outcome"}).AddRow(string(OutcomeInterview)))
	mock.ExpectCommit()

	applied, err := repo.SetOutcome(context.Background(), "app-1", OutcomeAcknowledged, time.Now().UTC(), nil)
	if err != nil {
		t.Fatalf("SetOutcome: %v", err)
	}
	if applied {
		t.Fatalf("expected demotion from interview to acknowledged to be rejected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
