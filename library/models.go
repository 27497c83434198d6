package library

import (
	"fmt"
	"time"
)

// Role gates what a logged-in user may do.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleBorrower  Role = "borrower"
)

// ParseRole accepts the role names stored in the users table.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleLibrarian, RoleBorrower:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsStaff reports whether the role may manage the catalog and circulation.
func (r Role) IsStaff() bool { return r == RoleAdmin || r == RoleLibrarian }

// User is a login account. Password material is never serialized.
type User struct {
	ID           int64      `db:"user_id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Salt         string     `db:"salt" json:"-"`
	Role         Role       `db:"role" json:"role"`
	Active       bool       `db:"is_active" json:"is_active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Book is a catalog title with its copy counters.
// Invariant: 0 <= AvailableCopies <= Copies, and Copies-AvailableCopies
// equals the number of open loans on the book.
type Book struct {
	ID              int64     `db:"book_id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	ISBN            string    `db:"isbn" json:"isbn"`
	Category        string    `db:"category" json:"category"`
	Year            int       `db:"year" json:"year"`
	Copies          int       `db:"copies" json:"copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Borrower is a patron who can hold loans. UserID links the record to a login
// account created through registration.
type Borrower struct {
	ID           int64     `db:"borrower_id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	Address      string    `db:"address" json:"address,omitempty"`
	UserID       *int64    `db:"user_id" json:"user_id,omitempty"`
	RegisteredAt time.Time `db:"created_date" json:"registered_at"`
	ActiveLoans  int       `db:"active_loans" json:"active_loans"`
}

// LoanStatus is the stored label of a loan. StatusOverdue is a reporting
// relabel of StatusBorrowed; both mean the loan is open.
type LoanStatus string

const (
	StatusBorrowed LoanStatus = "borrowed"
	StatusOverdue  LoanStatus = "overdue"
	StatusReturned LoanStatus = "returned"
)

// Open reports whether the loan still holds a copy.
func (s LoanStatus) Open() bool { return s == StatusBorrowed || s == StatusOverdue }

// openStatusList is the SQL form of every open status.
const openStatusList = "('borrowed', 'overdue')"

// Money is an amount in cents.
type Money int64

// String formats m with two decimal places.
func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign, m = "-", -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}

// Loan is one borrow transaction. Once Status is StatusReturned the row is
// never modified again.
type Loan struct {
	ID         int64      `db:"transaction_id" json:"id"`
	BookID     int64      `db:"book_id" json:"book_id"`
	BorrowerID int64      `db:"borrower_id" json:"borrower_id"`
	BorrowDate time.Time  `db:"borrow_date" json:"borrow_date"`
	DueDate    time.Time  `db:"due_date" json:"due_date"`
	ReturnDate *time.Time `db:"return_date" json:"return_date,omitempty"`
	Status     LoanStatus `db:"status" json:"status"`
	Fine       Money      `db:"fine_cents" json:"fine_cents"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// DaysOverdue is the number of whole days an open loan is past due on today,
// or zero.
func (l *Loan) DaysOverdue(today time.Time) int {
	d := DaysBetween(l.DueDate, today)
	if d < 0 || !l.Status.Open() {
		return 0
	}
	return d
}

// LoanDetail is a loan joined with its book and borrower for listings.
type LoanDetail struct {
	Loan
	Title         string `db:"title" json:"title"`
	Author        string `db:"author" json:"author"`
	ISBN          string `db:"isbn" json:"isbn"`
	BorrowerName  string `db:"borrower_name" json:"borrower_name"`
	BorrowerEmail string `db:"borrower_email" json:"borrower_email"`
	BorrowerPhone string `db:"borrower_phone" json:"borrower_phone"`
}

// ActiveLoan is an open loan annotated relative to a reference date.
type ActiveLoan struct {
	LoanDetail
	DaysOverdue int    `json:"days_overdue"`
	StatusLabel string `json:"status_label"` // "Overdue" or "On Time"
}

// LoanFilter narrows ListLoans. Zero values do not filter.
type LoanFilter struct {
	Statuses []LoanStatus
	From     time.Time // borrow_date >= From
	To       time.Time // borrow_date <= To
}
