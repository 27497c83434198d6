package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addBook(t *testing.T, db *Database, title string, copies int) int64 {
	t.Helper()
	id, err := db.AddBook(context.Background(), BookInput{Title: title, Author: "Some Author", Copies: copies})
	if err != nil {
		t.Fatalf("add book %q: %v", title, err)
	}
	return id
}

func addBorrower(t *testing.T, db *Database, name, email string) int64 {
	t.Helper()
	id, err := db.AddBorrower(context.Background(), BorrowerInput{Name: name, Email: email})
	if err != nil {
		t.Fatalf("add borrower %q: %v", name, err)
	}
	return id
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lib.db")
	db, err := NewDatabase(path)
	require.NoError(t, err)
	id := addBook(t, db, "Dune", 2)
	require.NoError(t, db.Close())

	db, err = NewDatabase(path)
	require.NoError(t, err, "migrations must be idempotent")
	defer db.Close()

	b, err := db.GetBook(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Dune", b.Title)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestAddAndGetBook(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	id, err := db.AddBook(ctx, BookInput{
		Title: "  The Hobbit ", Author: "J.R.R. Tolkien", ISBN: "978-0261102217",
		Category: "Fantasy", Year: 1937, Copies: 3,
	})
	require.NoError(t, err)

	b, err := db.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "The Hobbit", b.Title)
	assert.Equal(t, 3, b.Copies)
	assert.Equal(t, 3, b.AvailableCopies)
	assert.Equal(t, 1937, b.Year)

	byISBN, err := db.GetBookByISBN(ctx, "978-0261102217")
	require.NoError(t, err)
	assert.Equal(t, id, byISBN.ID)

	_, err = db.GetBook(ctx, id+100)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestAddBookValidation(t *testing.T) {
	db := tempDB(t)
	_, err := db.AddBook(context.Background(), BookInput{Title: "X", Author: "", Copies: 0, Year: 20})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Problems, "Title must be at least 2 characters")
	assert.Contains(t, verr.Problems, "Author must be at least 2 characters")
	assert.Contains(t, verr.Problems, "Copies must be at least 1")
	assert.Contains(t, verr.Problems, "Year must be between 1000 and 9999")
}

func TestDuplicateISBN(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	first, err := db.AddBook(ctx, BookInput{Title: "One", Author: "Author", ISBN: "123", Copies: 1})
	require.NoError(t, err)
	_, err = db.AddBook(ctx, BookInput{Title: "Two", Author: "Author", ISBN: "123", Copies: 1})
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	// Books without an ISBN never collide.
	_, err = db.AddBook(ctx, BookInput{Title: "Three", Author: "Author", Copies: 1})
	require.NoError(t, err)
	_, err = db.AddBook(ctx, BookInput{Title: "Four", Author: "Author", Copies: 1})
	require.NoError(t, err)

	second, err := db.AddBook(ctx, BookInput{Title: "Five", Author: "Author", ISBN: "456", Copies: 1})
	require.NoError(t, err)
	err = db.UpdateBook(ctx, second, BookInput{Title: "Five", Author: "Author", ISBN: "123", Copies: 1})
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	// Keeping its own ISBN is fine.
	err = db.UpdateBook(ctx, first, BookInput{Title: "One Revised", Author: "Author", ISBN: "123", Copies: 1})
	assert.NoError(t, err)
}

func TestUpdateBookRecomputesAvailability(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Emma", 3)
	alice := addBorrower(t, db, "Alice", "alice@example.com")
	day := DateOf(mustDate(t, "2024-03-01"))

	_, err := db.CheckoutBook(ctx, bookID, alice, day, day.AddDate(0, 0, 14), day)
	require.NoError(t, err)
	_, err = db.CheckoutBook(ctx, bookID, alice, day, day.AddDate(0, 0, 14), day)
	require.NoError(t, err)

	require.NoError(t, db.UpdateBook(ctx, bookID, BookInput{Title: "Emma", Author: "Jane Austen", Copies: 5}))
	b, err := db.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 5, b.Copies)
	assert.Equal(t, 3, b.AvailableCopies)

	err = db.UpdateBook(ctx, bookID, BookInput{Title: "Emma", Author: "Jane Austen", Copies: 1})
	var cerr *CopiesOnLoanError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, 2, cerr.OnLoan)

	err = db.UpdateBook(ctx, bookID+50, BookInput{Title: "Gone", Author: "Nobody", Copies: 1})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestDeleteBook(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Ulysses", 1)
	bob := addBorrower(t, db, "Bob", "bob@example.com")
	day := DateOf(mustDate(t, "2024-03-01"))

	txID, err := db.CheckoutBook(ctx, bookID, bob, day, day.AddDate(0, 0, 14), day)
	require.NoError(t, err)

	err = db.DeleteBook(ctx, bookID)
	require.EqualError(t, err, "Cannot delete! Book has 1 active loan(s).")

	_, err = db.ReturnBook(ctx, txID, day.AddDate(0, 0, 3), DefaultFinePerDay)
	require.NoError(t, err)
	require.NoError(t, db.DeleteBook(ctx, bookID))

	_, err = db.GetLoan(ctx, txID)
	assert.ErrorIs(t, err, ErrTransactionNotFound, "history goes with the book")
	assert.ErrorIs(t, db.DeleteBook(ctx, bookID), ErrBookNotFound)
}

func TestListingAndSearchBooks(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	inputs := []BookInput{
		{Title: "Neuromancer", Author: "William Gibson", Category: "Sci-Fi", ISBN: "111", Copies: 1},
		{Title: "Count Zero", Author: "William Gibson", Category: "Sci-Fi", Copies: 2},
		{Title: "Middlemarch", Author: "George Eliot", Category: "Classic", Copies: 1},
	}
	var ids []int64
	for _, in := range inputs {
		id, err := db.AddBook(ctx, in)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	carol := addBorrower(t, db, "Carol", "carol@example.com")
	day := DateOf(mustDate(t, "2024-03-01"))
	_, err := db.CheckoutBook(ctx, ids[2], carol, day, day.AddDate(0, 0, 14), day)
	require.NoError(t, err)

	all, err := db.GetAllBooks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Count Zero", all[0].Title)

	avail, err := db.GetAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, avail, 2)

	cats, err := db.GetCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Classic", "Sci-Fi"}, cats)

	tests := []struct {
		term, field string
		want        int
	}{
		{"gibson", SearchAuthor, 2},
		{"MARCH", SearchTitle, 1},
		{"sci", SearchCategory, 2},
		{"111", SearchISBN, 1},
		{"eliot", SearchAny, 1},
		{"zzz", SearchAny, 0},
		{"   ", SearchAny, 0},
	}
	for _, tc := range tests {
		got, err := db.SearchBooks(ctx, tc.term, tc.field)
		require.NoError(t, err)
		assert.Len(t, got, tc.want, "search %q in %s", tc.term, tc.field)
	}

	_, err = db.SearchBooks(ctx, "x", "publisher")
	assert.Error(t, err)
}

func TestBorrowerCRUD(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	id, err := db.AddBorrower(ctx, BorrowerInput{
		Name: "Dana Scully", Email: "dana@fbi.gov", Phone: "+1 (202) 555-0100", Address: "Washington",
	})
	require.NoError(t, err)

	_, err = db.AddBorrower(ctx, BorrowerInput{Name: "Impostor", Email: "dana@fbi.gov"})
	assert.ErrorIs(t, err, ErrEmailRegistered)

	other := addBorrower(t, db, "Fox Mulder", "fox@fbi.gov")
	err = db.UpdateBorrower(ctx, other, BorrowerInput{Name: "Fox Mulder", Email: "dana@fbi.gov"})
	assert.ErrorIs(t, err, ErrEmailRegisteredByPeer)

	require.NoError(t, db.UpdateBorrower(ctx, id, BorrowerInput{Name: "Dana K. Scully", Email: "dscully@fbi.gov"}))
	b, err := db.GetBorrowerByEmail(ctx, "dscully@fbi.gov")
	require.NoError(t, err)
	assert.Equal(t, id, b.ID)
	assert.Equal(t, "Dana K. Scully", b.Name)
	assert.Empty(t, b.Phone)
	assert.Nil(t, b.UserID)

	err = db.UpdateBorrower(ctx, id+100, BorrowerInput{Name: "Ghost", Email: "ghost@fbi.gov"})
	assert.ErrorIs(t, err, ErrBorrowerNotFound)

	_, err = db.AddBorrower(ctx, BorrowerInput{Name: "Bad Phone", Email: "bad@phone.com", Phone: "call me"})
	assert.EqualError(t, err, "Invalid phone number")

	results, err := db.SearchBorrowers(ctx, "FBI", SearchEmail)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	results, err = db.SearchBorrowers(ctx, "mulder", SearchAny)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, other, results[0].ID)
}

func TestDeleteBorrowerBlockedByOpenLoan(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Beloved", 1)
	eve := addBorrower(t, db, "Eve", "eve@example.com")
	day := DateOf(mustDate(t, "2024-03-01"))

	txID, err := db.CheckoutBook(ctx, bookID, eve, day, day.AddDate(0, 0, 14), day)
	require.NoError(t, err)

	all, err := db.GetAllBorrowers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].ActiveLoans)

	err = db.DeleteBorrower(ctx, eve)
	assert.EqualError(t, err, "Cannot delete! Borrower has 1 active loan(s).")

	_, err = db.ReturnBook(ctx, txID, day, DefaultFinePerDay)
	require.NoError(t, err)
	require.NoError(t, db.DeleteBorrower(ctx, eve))
	_, err = db.GetBorrower(ctx, eve)
	assert.ErrorIs(t, err, ErrBorrowerNotFound)
}
