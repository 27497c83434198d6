package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const bookColumns = `book_id, title, author, COALESCE(isbn, '') AS isbn, category, year,
	copies, available_copies, created_at`

// AddBook inserts a title with every copy available.
func (d *Database) AddBook(ctx context.Context, in BookInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		if in.ISBN != "" {
			dup, err := exists(ctx, tx, `SELECT 1 FROM books WHERE isbn = ?`, in.ISBN)
			if err != nil {
				return err
			}
			if dup {
				return ErrDuplicateISBN
			}
		}
		return get(ctx, tx, &id, `
			INSERT INTO books (title, author, isbn, category, year, copies, available_copies)
			VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?)
			RETURNING book_id`,
			in.Title, in.Author, in.ISBN, in.Category, in.Year, in.Copies, in.Copies)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateBook replaces a book's fields and recomputes available copies from
// the loans currently open on it.
func (d *Database) UpdateBook(ctx context.Context, id int64, in BookInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := exists(ctx, tx, `SELECT 1 FROM books WHERE book_id = ?`, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookNotFound
		}

		if in.ISBN != "" {
			dup, err := exists(ctx, tx, `SELECT 1 FROM books WHERE isbn = ? AND book_id <> ?`, in.ISBN, id)
			if err != nil {
				return err
			}
			if dup {
				return ErrDuplicateISBN
			}
		}

		onLoan, err := openLoansForBook(ctx, tx, id)
		if err != nil {
			return err
		}
		if in.Copies < onLoan {
			return &CopiesOnLoanError{OnLoan: onLoan}
		}

		_, err = exec(ctx, tx, `
			UPDATE books
			SET title = ?, author = ?, isbn = NULLIF(?, ''), category = ?, year = ?,
			    copies = ?, available_copies = ?
			WHERE book_id = ?`,
			in.Title, in.Author, in.ISBN, in.Category, in.Year, in.Copies, in.Copies-onLoan, id)
		return err
	})
}

// DeleteBook removes a book and its loan history. Books with open loans
// cannot be deleted.
func (d *Database) DeleteBook(ctx context.Context, id int64) error {
	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		onLoan, err := openLoansForBook(ctx, tx, id)
		if err != nil {
			return err
		}
		if onLoan > 0 {
			return &ActiveLoansError{Entity: "Book", Count: onLoan}
		}

		n, err := exec(ctx, tx, `DELETE FROM books WHERE book_id = ?`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBookNotFound
		}
		return nil
	})
}

func openLoansForBook(ctx context.Context, q sqlx.ExtContext, bookID int64) (int, error) {
	var n int
	err := get(ctx, q, &n, `SELECT COUNT(*) FROM loans WHERE book_id = ? AND status IN `+openStatusList, bookID)
	return n, err
}

// GetBook fetches a single book.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := get(ctx, d.db, &b, `SELECT `+bookColumns+` FROM books WHERE book_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookByISBN looks a book up by its unique ISBN.
func (d *Database) GetBookByISBN(ctx context.Context, isbn string) (*Book, error) {
	var b Book
	err := get(ctx, d.db, &b, `SELECT `+bookColumns+` FROM books WHERE isbn = ?`, strings.TrimSpace(isbn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetAllBooks returns the catalog ordered by title.
func (d *Database) GetAllBooks(ctx context.Context) ([]*Book, error) {
	var books []*Book
	err := selectAll(ctx, d.db, &books, `SELECT `+bookColumns+` FROM books ORDER BY title, book_id`)
	return books, err
}

// GetAvailableBooks returns titles with at least one copy on the shelf.
func (d *Database) GetAvailableBooks(ctx context.Context) ([]*Book, error) {
	var books []*Book
	err := selectAll(ctx, d.db, &books,
		`SELECT `+bookColumns+` FROM books WHERE available_copies > 0 ORDER BY title, book_id`)
	return books, err
}

// GetCategories lists distinct non-empty categories.
func (d *Database) GetCategories(ctx context.Context) ([]string, error) {
	var cats []string
	err := selectAll(ctx, d.db, &cats,
		`SELECT DISTINCT category FROM books WHERE category <> '' ORDER BY category`)
	return cats, err
}

// Search fields accepted by SearchBooks and SearchBorrowers.
const (
	SearchTitle    = "title"
	SearchAuthor   = "author"
	SearchCategory = "category"
	SearchISBN     = "isbn"
	SearchName     = "name"
	SearchEmail    = "email"
	SearchPhone    = "phone"
	SearchAny      = "any"
)

// SearchBooks does a case-insensitive substring match on one field, or on
// title and author for SearchAny.
func (d *Database) SearchBooks(ctx context.Context, term, field string) ([]*Book, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []*Book{}, nil
	}
	pattern := "%" + strings.ToLower(term) + "%"

	var where, order string
	args := []any{pattern}
	switch field {
	case SearchTitle:
		where, order = "LOWER(title) LIKE ?", "title"
	case SearchAuthor:
		where, order = "LOWER(author) LIKE ?", "author"
	case SearchCategory:
		where, order = "LOWER(category) LIKE ?", "category"
	case SearchISBN:
		where, order = "LOWER(COALESCE(isbn, '')) LIKE ?", "isbn"
	case SearchAny, "":
		where, order = "LOWER(title) LIKE ? OR LOWER(author) LIKE ?", "title"
		args = append(args, pattern)
	default:
		return nil, fmt.Errorf("unknown book search field %q", field)
	}

	var books []*Book
	err := selectAll(ctx, d.db, &books,
		`SELECT `+bookColumns+` FROM books WHERE `+where+` ORDER BY `+order+`, book_id`, args...)
	return books, err
}
