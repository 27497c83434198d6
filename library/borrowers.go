package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const borrowerColumns = `borrower_id, name, email, phone, address, user_id, created_date`

const borrowerWithLoansColumns = `br.borrower_id, br.name, br.email, br.phone, br.address, br.user_id,
	br.created_date,
	(SELECT COUNT(*) FROM loans l
	 WHERE l.borrower_id = br.borrower_id AND l.status IN ` + openStatusList + `) AS active_loans`

// AddBorrower registers a patron. Emails are unique across borrowers.
func (d *Database) AddBorrower(ctx context.Context, in BorrowerInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		dup, err := exists(ctx, tx, `SELECT 1 FROM borrowers WHERE email = ?`, in.Email)
		if err != nil {
			return err
		}
		if dup {
			return ErrEmailRegistered
		}
		return get(ctx, tx, &id, `
			INSERT INTO borrowers (name, email, phone, address)
			VALUES (?, ?, ?, ?)
			RETURNING borrower_id`,
			in.Name, in.Email, in.Phone, in.Address)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateBorrower replaces a borrower's contact details.
func (d *Database) UpdateBorrower(ctx context.Context, id int64, in BorrowerInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		dup, err := exists(ctx, tx, `SELECT 1 FROM borrowers WHERE email = ? AND borrower_id <> ?`, in.Email, id)
		if err != nil {
			return err
		}
		if dup {
			return ErrEmailRegisteredByPeer
		}

		n, err := exec(ctx, tx, `
			UPDATE borrowers SET name = ?, email = ?, phone = ?, address = ?
			WHERE borrower_id = ?`,
			in.Name, in.Email, in.Phone, in.Address, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBorrowerNotFound
		}
		return nil
	})
}

// DeleteBorrower removes a borrower and their loan history. Borrowers with
// open loans cannot be deleted.
func (d *Database) DeleteBorrower(ctx context.Context, id int64) error {
	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		var open int
		if err := get(ctx, tx, &open,
			`SELECT COUNT(*) FROM loans WHERE borrower_id = ? AND status IN `+openStatusList, id); err != nil {
			return err
		}
		if open > 0 {
			return &ActiveLoansError{Entity: "Borrower", Count: open}
		}

		n, err := exec(ctx, tx, `DELETE FROM borrowers WHERE borrower_id = ?`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBorrowerNotFound
		}
		return nil
	})
}

// GetBorrower fetches a single borrower.
func (d *Database) GetBorrower(ctx context.Context, id int64) (*Borrower, error) {
	var b Borrower
	err := get(ctx, d.db, &b, `SELECT `+borrowerColumns+` FROM borrowers WHERE borrower_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBorrowerByEmail looks a borrower up by their unique email.
func (d *Database) GetBorrowerByEmail(ctx context.Context, email string) (*Borrower, error) {
	var b Borrower
	err := get(ctx, d.db, &b, `SELECT `+borrowerColumns+` FROM borrowers WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBorrowerByUser returns the borrower linked to a login account.
func (d *Database) GetBorrowerByUser(ctx context.Context, userID int64) (*Borrower, error) {
	var b Borrower
	err := get(ctx, d.db, &b, `SELECT `+borrowerColumns+` FROM borrowers WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetAllBorrowers returns every borrower ordered by name, with the number of
// loans each currently holds.
func (d *Database) GetAllBorrowers(ctx context.Context) ([]*Borrower, error) {
	var borrowers []*Borrower
	err := selectAll(ctx, d.db, &borrowers,
		`SELECT `+borrowerWithLoansColumns+` FROM borrowers br ORDER BY br.name, br.borrower_id`)
	return borrowers, err
}

// SearchBorrowers does a case-insensitive substring match on one field, or on
// name and email for SearchAny.
func (d *Database) SearchBorrowers(ctx context.Context, term, field string) ([]*Borrower, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []*Borrower{}, nil
	}
	pattern := "%" + strings.ToLower(term) + "%"

	var where, order string
	args := []any{pattern}
	switch field {
	case SearchName:
		where, order = "LOWER(br.name) LIKE ?", "br.name"
	case SearchEmail:
		where, order = "LOWER(br.email) LIKE ?", "br.email"
	case SearchPhone:
		where, order = "br.phone LIKE ?", "br.phone"
	case SearchAny, "":
		where, order = "LOWER(br.name) LIKE ? OR LOWER(br.email) LIKE ?", "br.name"
		args = append(args, pattern)
	default:
		return nil, fmt.Errorf("unknown borrower search field %q", field)
	}

	var borrowers []*Borrower
	err := selectAll(ctx, d.db, &borrowers,
		`SELECT `+borrowerWithLoansColumns+` FROM borrowers br WHERE `+where+` ORDER BY `+order+`, br.borrower_id`, args...)
	return borrowers, err
}
