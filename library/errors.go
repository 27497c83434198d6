package library

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBookNotAvailable    = errors.New("Book not available for borrowing")
	ErrBookNotFound        = errors.New("Book not found")
	ErrBorrowerNotFound    = errors.New("Borrower not found")
	ErrTransactionNotFound = errors.New("Transaction not found")
	ErrAlreadyReturned     = errors.New("Book already returned")
	ErrUserNotFound        = errors.New("User not found")

	ErrDuplicateISBN         = errors.New("ISBN already exists")
	ErrEmailRegistered       = errors.New("Email already registered")
	ErrEmailRegisteredByPeer = errors.New("Email already registered by another borrower")

	ErrDueBeforeBorrow    = errors.New("Due date cannot be before borrow date")
	ErrReturnBeforeBorrow = errors.New("Return date cannot be before borrow date")
)

// OverdueError blocks a borrow while the borrower holds overdue loans.
type OverdueError struct {
	Count int
}

func (e *OverdueError) Error() string {
	return fmt.Sprintf("Borrower has %d overdue book(s)", e.Count)
}

// ActiveLoansError blocks deleting a book or borrower that has open loans.
type ActiveLoansError struct {
	Entity string // "Book" or "Borrower"
	Count  int
}

func (e *ActiveLoansError) Error() string {
	return fmt.Sprintf("Cannot delete! %s has %d active loan(s).", e.Entity, e.Count)
}

// CopiesOnLoanError rejects shrinking a title below its loaned-out copies.
type CopiesOnLoanError struct {
	OnLoan int
}

func (e *CopiesOnLoanError) Error() string {
	return fmt.Sprintf("Cannot reduce copies below the %d currently on loan", e.OnLoan)
}

// ValidationError lists every problem found in user input.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
