package library

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockDB(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewDatabaseFromDB(sqlx.NewDb(raw, "sqlmock")), mock
}

var errStoreDown = errors.New("connection refused")

func TestCheckoutRollsBackOnInsertFailure(t *testing.T) {
	db, mock := mockDB(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT available_copies FROM books WHERE book_id = ?`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"available_copies"}).AddRow(1))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM borrowers`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM loans`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE books SET available_copies = available_copies - 1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO loans`).WillReturnError(errStoreDown)
	mock.ExpectRollback()

	_, err := db.CheckoutBook(context.Background(), 1, 2, day, day.AddDate(0, 0, 14), day)
	assert.ErrorIs(t, err, errStoreDown)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutLosesRaceOnGuardedUpdate(t *testing.T) {
	db, mock := mockDB(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT available_copies FROM books`).
		WillReturnRows(sqlmock.NewRows([]string{"available_copies"}).AddRow(1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM loans`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE books SET available_copies`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := db.CheckoutBook(context.Background(), 1, 2, day, day.AddDate(0, 0, 14), day)
	assert.ErrorIs(t, err, ErrBookNotAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnCommitFailure(t *testing.T) {
	db, mock := mockDB(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"transaction_id", "book_id", "borrower_id", "borrow_date", "due_date", "return_date",
		"status", "fine_cents", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT transaction_id, book_id`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(9, 1, 2, day, day.AddDate(0, 0, 14), nil, "borrowed", 0, day))
	mock.ExpectExec(`UPDATE loans SET return_date`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE books SET available_copies = available_copies \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errStoreDown)

	_, err := db.ReturnBook(context.Background(), 9, day.AddDate(0, 0, 20), DefaultFinePerDay)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "commit tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadFailureSurfaces(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`SELECT .* FROM books`).WillReturnError(errStoreDown)

	_, err := db.GetAllBooks(context.Background())
	assert.ErrorIs(t, err, errStoreDown)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailure(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectBegin().WillReturnError(errStoreDown)

	err := db.DeleteBorrower(context.Background(), 1)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "begin tx")
}
