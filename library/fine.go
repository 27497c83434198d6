package library

import "time"

const (
	// DefaultLoanPeriodDays is the due-date offset applied when none is given.
	DefaultLoanPeriodDays = 14

	// DefaultFinePerDay is charged for each whole day a return is late.
	DefaultFinePerDay Money = 500
)

// DateOf truncates t to its calendar date at UTC midnight. All loan dates are
// stored in this form so that SQL date comparisons line up.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// DueDate returns borrowDate plus the loan period.
func DueDate(borrowDate time.Time, periodDays int) time.Time {
	return DateOf(borrowDate).AddDate(0, 0, periodDays)
}

// CalculateFine charges perDay for each whole day returned is after due.
// Returns on or before the due date are free.
func CalculateFine(due, returned time.Time, perDay Money) Money {
	days := DaysBetween(due, returned)
	if days <= 0 {
		return 0
	}
	return Money(days) * perDay
}
