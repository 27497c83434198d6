package library

import (
	"context"
	"fmt"
	"time"

	"librarydesk/logger"
)

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
// It owns the circulation policy: the clock, the loan period and the fine.
type LibraryManager struct {
	db         *Database
	now        func() time.Time
	loanPeriod int
	finePerDay Money
}

// Option adjusts a LibraryManager.
type Option func(*LibraryManager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(lm *LibraryManager) { lm.now = now }
}

// WithLoanPeriod sets the default number of days a loan runs.
func WithLoanPeriod(days int) Option {
	return func(lm *LibraryManager) {
		if days > 0 {
			lm.loanPeriod = days
		}
	}
}

// WithFinePerDay sets the charge for each day a return is late.
func WithFinePerDay(m Money) Option {
	return func(lm *LibraryManager) {
		if m >= 0 {
			lm.finePerDay = m
		}
	}
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return NewManager(db, opts...), nil
}

// NewManager wraps an open Database.
func NewManager(db *Database, opts ...Option) *LibraryManager {
	lm := &LibraryManager{
		db:         db,
		now:        time.Now,
		loanPeriod: DefaultLoanPeriodDays,
		finePerDay: DefaultFinePerDay,
	}
	for _, o := range opts {
		o(lm)
	}
	return lm
}

// Database exposes the underlying store.
func (lm *LibraryManager) Database() *Database { return lm.db }

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Today is the manager's current calendar date.
func (lm *LibraryManager) Today() time.Time { return DateOf(lm.now()) }

// LoanPeriod is the default loan length in days.
func (lm *LibraryManager) LoanPeriod() int { return lm.loanPeriod }

// FinePerDay is the late charge per day.
func (lm *LibraryManager) FinePerDay() Money { return lm.finePerDay }

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(ctx context.Context, in BookInput) (int64, error) {
	return lm.db.AddBook(ctx, in)
}

func (lm *LibraryManager) UpdateBook(ctx context.Context, id int64, in BookInput) error {
	return lm.db.UpdateBook(ctx, id, in)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, id int64) error {
	return lm.db.DeleteBook(ctx, id)
}

func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	return lm.db.GetBook(ctx, id)
}

func (lm *LibraryManager) GetAllBooks(ctx context.Context) ([]*Book, error) {
	return lm.db.GetAllBooks(ctx)
}

func (lm *LibraryManager) GetAvailableBooks(ctx context.Context) ([]*Book, error) {
	return lm.db.GetAvailableBooks(ctx)
}

func (lm *LibraryManager) SearchBooks(ctx context.Context, term, field string) ([]*Book, error) {
	return lm.db.SearchBooks(ctx, term, field)
}

// ------------------ Borrower helpers ------------------

func (lm *LibraryManager) AddBorrower(ctx context.Context, in BorrowerInput) (int64, error) {
	return lm.db.AddBorrower(ctx, in)
}

func (lm *LibraryManager) UpdateBorrower(ctx context.Context, id int64, in BorrowerInput) error {
	return lm.db.UpdateBorrower(ctx, id, in)
}

func (lm *LibraryManager) DeleteBorrower(ctx context.Context, id int64) error {
	return lm.db.DeleteBorrower(ctx, id)
}

func (lm *LibraryManager) GetBorrower(ctx context.Context, id int64) (*Borrower, error) {
	return lm.db.GetBorrower(ctx, id)
}

func (lm *LibraryManager) GetAllBorrowers(ctx context.Context) ([]*Borrower, error) {
	return lm.db.GetAllBorrowers(ctx)
}

func (lm *LibraryManager) SearchBorrowers(ctx context.Context, term, field string) ([]*Borrower, error) {
	return lm.db.SearchBorrowers(ctx, term, field)
}

// ------------------ Circulation ------------------

// BorrowRequest describes a checkout. Zero dates take the manager defaults:
// today for the borrow date and borrow date plus the loan period for the due date.
type BorrowRequest struct {
	BookID     int64
	BorrowerID int64
	BorrowDate time.Time
	DueDate    time.Time
}

// BorrowBook lends one copy and returns the new transaction id.
func (lm *LibraryManager) BorrowBook(ctx context.Context, req BorrowRequest) (int64, error) {
	today := lm.Today()
	borrowDate := req.BorrowDate
	if borrowDate.IsZero() {
		borrowDate = today
	}
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = DueDate(borrowDate, lm.loanPeriod)
	}
	if DateOf(dueDate).Before(DateOf(borrowDate)) {
		return 0, ErrDueBeforeBorrow
	}

	id, err := lm.db.CheckoutBook(ctx, req.BookID, req.BorrowerID, borrowDate, dueDate, today)
	if err != nil {
		logger.Log.Warnw("borrow rejected", "book_id", req.BookID, "borrower_id", req.BorrowerID, "error", err)
		return 0, err
	}
	logger.Log.Infow("book borrowed", "transaction_id", id, "book_id", req.BookID,
		"borrower_id", req.BorrowerID, "due_date", DateOf(dueDate).Format(time.DateOnly))
	return id, nil
}

// ReturnBook closes a loan. A zero returnDate means today.
func (lm *LibraryManager) ReturnBook(ctx context.Context, transactionID int64, returnDate time.Time) (*Loan, error) {
	if returnDate.IsZero() {
		returnDate = lm.Today()
	}
	loan, err := lm.db.ReturnBook(ctx, transactionID, returnDate, lm.finePerDay)
	if err != nil {
		logger.Log.Warnw("return rejected", "transaction_id", transactionID, "error", err)
		return nil, err
	}
	logger.Log.Infow("book returned", "transaction_id", transactionID, "fine", loan.Fine.String())
	return loan, nil
}

// MarkOverdue relabels open loans past their due date.
func (lm *LibraryManager) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := lm.db.MarkOverdue(ctx, lm.Today())
	if err != nil {
		logger.Log.Errorw("overdue sweep failed", "error", err)
		return 0, err
	}
	if n > 0 {
		logger.Log.Infow("loans marked overdue", "count", n)
	}
	return n, nil
}

func (lm *LibraryManager) GetLoan(ctx context.Context, id int64) (*LoanDetail, error) {
	return lm.db.GetLoan(ctx, id)
}

func (lm *LibraryManager) ListLoans(ctx context.Context, f LoanFilter) ([]*LoanDetail, error) {
	return lm.db.ListLoans(ctx, f)
}

func (lm *LibraryManager) GetBorrowerLoans(ctx context.Context, borrowerID int64) ([]*LoanDetail, error) {
	return lm.db.GetBorrowerLoans(ctx, borrowerID)
}

// GetActiveLoans lists open loans by due date, labelled against today.
func (lm *LibraryManager) GetActiveLoans(ctx context.Context) ([]*ActiveLoan, error) {
	loans, err := lm.db.GetOpenLoans(ctx)
	if err != nil {
		return nil, err
	}
	today := lm.Today()
	out := make([]*ActiveLoan, 0, len(loans))
	for _, l := range loans {
		a := &ActiveLoan{LoanDetail: *l, DaysOverdue: l.DaysOverdue(today), StatusLabel: "On Time"}
		if a.DaysOverdue > 0 {
			a.StatusLabel = "Overdue"
		}
		out = append(out, a)
	}
	return out, nil
}

// GetOverdueLoans lists open loans due before today.
func (lm *LibraryManager) GetOverdueLoans(ctx context.Context) ([]*LoanDetail, error) {
	return lm.db.GetOverdueLoans(ctx, lm.Today())
}

// ------------------ Reports ------------------

func (lm *LibraryManager) SystemStatistics(ctx context.Context) (*SystemStatistics, error) {
	return lm.db.SystemStatistics(ctx, lm.Today())
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	return fmt.Sprintf("%-5d %-30s %-25s %-15s %3d/%-3d", b.ID, b.Title, b.Author, b.Category, b.AvailableCopies, b.Copies)
}

// PrettyLoan formats a loan for lists.
func PrettyLoan(l *LoanDetail) string {
	returned := "-"
	if l.ReturnDate != nil {
		returned = l.ReturnDate.Format(time.DateOnly)
	}
	return fmt.Sprintf("%-5d %-30s %-20s %s  %s  %-10s %-8s %s",
		l.ID, l.Title, l.BorrowerName,
		l.BorrowDate.Format(time.DateOnly), l.DueDate.Format(time.DateOnly),
		returned, l.Status, l.Fine)
}
