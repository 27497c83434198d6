package library

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// BookStatistics summarizes the catalog.
type BookStatistics struct {
	TotalBooks       int    `db:"total_books" json:"total_books"`
	TotalCopies      int    `db:"total_copies" json:"total_copies"`
	AvailableCopies  int    `db:"available_copies" json:"available_copies"`
	UnavailableBooks int    `db:"unavailable_books" json:"unavailable_books"`
	PopularCategory  string `db:"popular_category" json:"popular_category"`
}

// BorrowerStatistics summarizes the patron base.
type BorrowerStatistics struct {
	TotalBorrowers  int    `db:"total_borrowers" json:"total_borrowers"`
	NewestBorrower  string `db:"newest_borrower" json:"newest_borrower"`
	ActiveBorrowers int    `db:"active_borrowers" json:"active_borrowers"`
}

// LoanStatistics summarizes circulation.
type LoanStatistics struct {
	TotalLoans      int     `db:"total_loans" json:"total_loans"`
	OpenLoans       int     `db:"open_loans" json:"open_loans"`
	ReturnedLoans   int     `db:"returned_loans" json:"returned_loans"`
	FlaggedOverdue  int     `db:"flagged_overdue" json:"flagged_overdue"`
	TotalFines      Money   `db:"total_fines" json:"total_fines"`
	AvgLoanDuration float64 `db:"-" json:"avg_loan_duration_days"`
}

// SystemStatistics is the dashboard view.
type SystemStatistics struct {
	BookStatistics
	BorrowerStatistics
	LoanStatistics
	CurrentDate  time.Time `json:"current_date"`
	OverdueCount int       `json:"overdue_count"`
}

// DailyActivity is one row of the monthly report.
type DailyActivity struct {
	Day      int   `json:"day"`
	Loans    int   `json:"loans"`
	Borrowed int   `json:"borrowed"` // still open
	Returned int   `json:"returned"`
	Fines    Money `json:"fines"`
}

// CategoryActivity is one row of the category report.
type CategoryActivity struct {
	Category        string `db:"category" json:"category"`
	TotalBooks      int    `db:"total_books" json:"total_books"`
	TotalCopies     int    `db:"total_copies" json:"total_copies"`
	AvailableCopies int    `db:"available_copies" json:"available_copies"`
	TimesBorrowed   int    `db:"times_borrowed" json:"times_borrowed"`
}

// BorrowerActivity is one row of the borrower activity report.
type BorrowerActivity struct {
	BorrowerID        int64      `db:"borrower_id" json:"borrower_id"`
	Name              string     `db:"name" json:"name"`
	Email             string     `db:"email" json:"email"`
	TotalBorrowed     int        `db:"total_borrowed" json:"total_borrowed"`
	CurrentlyBorrowed int        `db:"currently_borrowed" json:"currently_borrowed"`
	TotalFines        Money      `db:"total_fines" json:"total_fines"`
	LastBorrowed      *time.Time `db:"-" json:"last_borrowed,omitempty"`
}

// PopularBook is one row of the popular books report.
type PopularBook struct {
	BookID          int64  `db:"book_id" json:"book_id"`
	Title           string `db:"title" json:"title"`
	Author          string `db:"author" json:"author"`
	Category        string `db:"category" json:"category"`
	AvailableCopies int    `db:"available_copies" json:"available_copies"`
	TimesBorrowed   int    `db:"times_borrowed" json:"times_borrowed"`
}

// BookStatistics counts titles and copies.
func (d *Database) BookStatistics(ctx context.Context) (*BookStatistics, error) {
	var s BookStatistics
	err := get(ctx, d.db, &s, `
		SELECT COUNT(*) AS total_books,
		       CAST(COALESCE(SUM(copies), 0) AS BIGINT) AS total_copies,
		       CAST(COALESCE(SUM(available_copies), 0) AS BIGINT) AS available_copies,
		       COUNT(CASE WHEN available_copies = 0 THEN 1 END) AS unavailable_books,
		       COALESCE((SELECT category FROM books WHERE category <> ''
		                 GROUP BY category ORDER BY COUNT(*) DESC, category LIMIT 1), '') AS popular_category
		FROM books`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// BorrowerStatistics counts borrowers and those holding loans.
func (d *Database) BorrowerStatistics(ctx context.Context) (*BorrowerStatistics, error) {
	var s BorrowerStatistics
	err := get(ctx, d.db, &s, `
		SELECT COUNT(*) AS total_borrowers,
		       COALESCE((SELECT name FROM borrowers
		                 ORDER BY created_date DESC, borrower_id DESC LIMIT 1), '') AS newest_borrower,
		       (SELECT COUNT(DISTINCT borrower_id) FROM loans
		        WHERE status IN `+openStatusList+`) AS active_borrowers
		FROM borrowers`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LoanStatistics counts loans by state and totals fines. The average loan
// duration covers returned loans only.
func (d *Database) LoanStatistics(ctx context.Context) (*LoanStatistics, error) {
	var s LoanStatistics
	err := get(ctx, d.db, &s, `
		SELECT COUNT(*) AS total_loans,
		       COUNT(CASE WHEN status IN `+openStatusList+` THEN 1 END) AS open_loans,
		       COUNT(CASE WHEN status = 'returned' THEN 1 END) AS returned_loans,
		       COUNT(CASE WHEN status = 'overdue' THEN 1 END) AS flagged_overdue,
		       CAST(COALESCE(SUM(fine_cents), 0) AS BIGINT) AS total_fines
		FROM loans`)
	if err != nil {
		return nil, err
	}

	var spans []struct {
		BorrowDate time.Time `db:"borrow_date"`
		ReturnDate time.Time `db:"return_date"`
	}
	if err := selectAll(ctx, d.db, &spans,
		`SELECT borrow_date, return_date FROM loans WHERE status = ? AND return_date IS NOT NULL`,
		StatusReturned); err != nil {
		return nil, err
	}
	if len(spans) > 0 {
		total := 0
		for _, sp := range spans {
			total += DaysBetween(sp.BorrowDate, sp.ReturnDate)
		}
		s.AvgLoanDuration = float64(total) / float64(len(spans))
	}
	return &s, nil
}

// SystemStatistics gathers every statistic for the dashboard.
func (d *Database) SystemStatistics(ctx context.Context, today time.Time) (*SystemStatistics, error) {
	books, err := d.BookStatistics(ctx)
	if err != nil {
		return nil, err
	}
	borrowers, err := d.BorrowerStatistics(ctx)
	if err != nil {
		return nil, err
	}
	loans, err := d.LoanStatistics(ctx)
	if err != nil {
		return nil, err
	}

	var overdue int
	if err := get(ctx, d.db, &overdue,
		`SELECT COUNT(*) FROM loans WHERE status IN `+openStatusList+` AND due_date < ?`,
		DateOf(today)); err != nil {
		return nil, err
	}

	return &SystemStatistics{
		BookStatistics:     *books,
		BorrowerStatistics: *borrowers,
		LoanStatistics:     *loans,
		CurrentDate:        DateOf(today),
		OverdueCount:       overdue,
	}, nil
}

// MonthlyReport buckets loans started in the given month by day. Only days
// with activity are returned, in ascending order.
func (d *Database) MonthlyReport(ctx context.Context, year int, month time.Month) ([]DailyActivity, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	var rows []struct {
		BorrowDate time.Time  `db:"borrow_date"`
		Status     LoanStatus `db:"status"`
		Fine       Money      `db:"fine_cents"`
	}
	if err := selectAll(ctx, d.db, &rows, `
		SELECT borrow_date, status, fine_cents FROM loans
		WHERE borrow_date >= ? AND borrow_date < ?
		ORDER BY borrow_date`,
		first, first.AddDate(0, 1, 0)); err != nil {
		return nil, err
	}

	var report []DailyActivity
	for _, r := range rows {
		day := r.BorrowDate.Day()
		if len(report) == 0 || report[len(report)-1].Day != day {
			report = append(report, DailyActivity{Day: day})
		}
		a := &report[len(report)-1]
		a.Loans++
		switch {
		case r.Status.Open():
			a.Borrowed++
		case r.Status == StatusReturned:
			a.Returned++
		}
		a.Fines += r.Fine
	}
	return report, nil
}

// CategoryReport groups the catalog by category, most borrowed first.
func (d *Database) CategoryReport(ctx context.Context) ([]CategoryActivity, error) {
	var rows []CategoryActivity
	err := selectAll(ctx, d.db, &rows, `
		SELECT b.category AS category,
		       COUNT(*) AS total_books,
		       CAST(SUM(b.copies) AS BIGINT) AS total_copies,
		       CAST(SUM(b.available_copies) AS BIGINT) AS available_copies,
		       CAST(COALESCE(SUM(lc.n), 0) AS BIGINT) AS times_borrowed
		FROM books b
		LEFT JOIN (SELECT book_id, COUNT(*) AS n FROM loans GROUP BY book_id) lc ON lc.book_id = b.book_id
		GROUP BY b.category
		ORDER BY times_borrowed DESC, b.category`)
	return rows, err
}

// BorrowerActivityReport lists the limit most active borrowers.
func (d *Database) BorrowerActivityReport(ctx context.Context, limit int) ([]BorrowerActivity, error) {
	var rows []BorrowerActivity
	if err := selectAll(ctx, d.db, &rows, `
		SELECT br.borrower_id, br.name, br.email,
		       COUNT(l.transaction_id) AS total_borrowed,
		       COUNT(CASE WHEN l.status IN `+openStatusList+` THEN 1 END) AS currently_borrowed,
		       CAST(COALESCE(SUM(l.fine_cents), 0) AS BIGINT) AS total_fines
		FROM borrowers br
		LEFT JOIN loans l ON l.borrower_id = br.borrower_id
		GROUP BY br.borrower_id, br.name, br.email
		ORDER BY total_borrowed DESC, br.name
		LIMIT ?`, limit); err != nil {
		return nil, err
	}

	for i := range rows {
		var last time.Time
		err := get(ctx, d.db, &last,
			`SELECT borrow_date FROM loans WHERE borrower_id = ? ORDER BY borrow_date DESC LIMIT 1`,
			rows[i].BorrowerID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rows[i].LastBorrowed = &last
	}
	return rows, nil
}

// PopularBooksReport lists the limit most borrowed titles.
func (d *Database) PopularBooksReport(ctx context.Context, limit int) ([]PopularBook, error) {
	var rows []PopularBook
	err := selectAll(ctx, d.db, &rows, `
		SELECT b.book_id, b.title, b.author, b.category, b.available_copies,
		       COUNT(l.transaction_id) AS times_borrowed
		FROM books b
		LEFT JOIN loans l ON l.book_id = b.book_id
		GROUP BY b.book_id, b.title, b.author, b.category, b.available_copies
		ORDER BY times_borrowed DESC, b.title
		LIMIT ?`, limit)
	return rows, err
}
