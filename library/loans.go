package library

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const loanColumns = `transaction_id, book_id, borrower_id, borrow_date, due_date, return_date,
	status, fine_cents, created_at`

const loanDetailSelect = `
	SELECT l.transaction_id, l.book_id, l.borrower_id, l.borrow_date, l.due_date, l.return_date,
	       l.status, l.fine_cents, l.created_at,
	       b.title, b.author, COALESCE(b.isbn, '') AS isbn,
	       br.name AS borrower_name, br.email AS borrower_email, br.phone AS borrower_phone
	FROM loans l
	JOIN books b ON b.book_id = l.book_id
	JOIN borrowers br ON br.borrower_id = l.borrower_id`

// CheckoutBook records a loan and takes one copy off the shelf in a single
// transaction. today decides which of the borrower's loans count as overdue.
//
// The checks run in this order:
//   - the book exists and has a copy available
//   - the borrower exists
//   - the borrower holds no open loan past its due date
//
// The copy counter is decremented with a guarded UPDATE so two concurrent
// checkouts of the last copy cannot both succeed.
func (d *Database) CheckoutBook(ctx context.Context, bookID, borrowerID int64, borrowDate, dueDate, today time.Time) (int64, error) {
	var id int64
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		var avail int
		err := get(ctx, tx, &avail, `SELECT available_copies FROM books WHERE book_id = ?`, bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookNotAvailable
		}
		if err != nil {
			return err
		}
		if avail <= 0 {
			return ErrBookNotAvailable
		}

		ok, err := exists(ctx, tx, `SELECT 1 FROM borrowers WHERE borrower_id = ?`, borrowerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBorrowerNotFound
		}

		var overdue int
		if err := get(ctx, tx, &overdue, `
			SELECT COUNT(*) FROM loans
			WHERE borrower_id = ? AND status IN `+openStatusList+` AND due_date < ?`,
			borrowerID, DateOf(today)); err != nil {
			return err
		}
		if overdue > 0 {
			return &OverdueError{Count: overdue}
		}

		n, err := exec(ctx, tx, `
			UPDATE books SET available_copies = available_copies - 1
			WHERE book_id = ? AND available_copies > 0`, bookID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBookNotAvailable
		}

		return get(ctx, tx, &id, `
			INSERT INTO loans (book_id, borrower_id, borrow_date, due_date, status, fine_cents)
			VALUES (?, ?, ?, ?, ?, 0)
			RETURNING transaction_id`,
			bookID, borrowerID, DateOf(borrowDate), DateOf(dueDate), StatusBorrowed)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ReturnBook closes an open loan on returnDate, charges finePerDay for each
// day past due and puts the copy back on the shelf. A returned loan is final.
func (d *Database) ReturnBook(ctx context.Context, transactionID int64, returnDate time.Time, finePerDay Money) (*Loan, error) {
	var loan Loan
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		err := get(ctx, tx, &loan, `SELECT `+loanColumns+` FROM loans WHERE transaction_id = ?`, transactionID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		if loan.Status == StatusReturned {
			return ErrAlreadyReturned
		}

		returned := DateOf(returnDate)
		if returned.Before(DateOf(loan.BorrowDate)) {
			return ErrReturnBeforeBorrow
		}
		fine := CalculateFine(loan.DueDate, returned, finePerDay)

		n, err := exec(ctx, tx, `
			UPDATE loans SET return_date = ?, status = ?, fine_cents = ?
			WHERE transaction_id = ? AND status <> ?`,
			returned, StatusReturned, fine, transactionID, StatusReturned)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrAlreadyReturned
		}

		if _, err := exec(ctx, tx, `
			UPDATE books SET available_copies = available_copies + 1
			WHERE book_id = ? AND available_copies < copies`, loan.BookID); err != nil {
			return err
		}

		loan.ReturnDate = &returned
		loan.Status = StatusReturned
		loan.Fine = fine
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// MarkOverdue relabels open loans due before today as overdue and returns
// how many rows changed. The relabel has no effect on borrowing or returning.
func (d *Database) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	return exec(ctx, d.db, `
		UPDATE loans SET status = ?
		WHERE status = ? AND due_date < ?`,
		StatusOverdue, StatusBorrowed, DateOf(today))
}

// GetLoan fetches one loan with its book and borrower.
func (d *Database) GetLoan(ctx context.Context, id int64) (*LoanDetail, error) {
	var l LoanDetail
	err := get(ctx, d.db, &l, loanDetailSelect+` WHERE l.transaction_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetAllLoans returns the full loan history, newest first.
func (d *Database) GetAllLoans(ctx context.Context) ([]*LoanDetail, error) {
	return d.ListLoans(ctx, LoanFilter{})
}

// ListLoans returns loans matching f, newest first.
func (d *Database) ListLoans(ctx context.Context, f LoanFilter) ([]*LoanDetail, error) {
	query := loanDetailSelect + ` WHERE 1 = 1`
	var args []any
	if len(f.Statuses) > 0 {
		query += ` AND l.status IN (?)`
		args = append(args, f.Statuses)
	}
	if !f.From.IsZero() {
		query += ` AND l.borrow_date >= ?`
		args = append(args, DateOf(f.From))
	}
	if !f.To.IsZero() {
		query += ` AND l.borrow_date <= ?`
		args = append(args, DateOf(f.To))
	}
	query += ` ORDER BY l.borrow_date DESC, l.transaction_id DESC`

	var loans []*LoanDetail
	err := selectAll(ctx, d.db, &loans, query, args...)
	return loans, err
}

// GetOpenLoans returns every loan that still holds a copy, earliest due first.
func (d *Database) GetOpenLoans(ctx context.Context) ([]*LoanDetail, error) {
	var loans []*LoanDetail
	err := selectAll(ctx, d.db, &loans,
		loanDetailSelect+` WHERE l.status IN `+openStatusList+` ORDER BY l.due_date, l.transaction_id`)
	return loans, err
}

// GetOverdueLoans returns open loans due before today, most overdue first.
func (d *Database) GetOverdueLoans(ctx context.Context, today time.Time) ([]*LoanDetail, error) {
	var loans []*LoanDetail
	err := selectAll(ctx, d.db, &loans,
		loanDetailSelect+` WHERE l.status IN `+openStatusList+` AND l.due_date < ? ORDER BY l.due_date, l.transaction_id`,
		DateOf(today))
	return loans, err
}

// GetBorrowerLoans returns a borrower's loan history, newest first.
func (d *Database) GetBorrowerLoans(ctx context.Context, borrowerID int64) ([]*LoanDetail, error) {
	var loans []*LoanDetail
	err := selectAll(ctx, d.db, &loans,
		loanDetailSelect+` WHERE l.borrower_id = ? ORDER BY l.borrow_date DESC, l.transaction_id DESC`, borrowerID)
	return loans, err
}
