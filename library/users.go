package library

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const userColumns = `user_id, username, email, password_hash, salt, role, is_active, last_login, created_at`

// UserExists reports whether username or email is already in use.
func (d *Database) UserExists(ctx context.Context, username, email string) (bool, error) {
	return exists(ctx, d.db, `SELECT 1 FROM users WHERE username = ? OR email = ?`, username, email)
}

// CreateUser inserts u together with its linked borrower record in one
// transaction. An existing unlinked borrower with the same email is adopted
// instead of duplicated.
func (d *Database) CreateUser(ctx context.Context, u *User) (int64, error) {
	var id int64
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := get(ctx, tx, &id, `
			INSERT INTO users (username, email, password_hash, salt, role, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING user_id`,
			u.Username, u.Email, u.PasswordHash, u.Salt, u.Role, true); err != nil {
			return err
		}

		var linked struct {
			ID     int64         `db:"borrower_id"`
			UserID sql.NullInt64 `db:"user_id"`
		}
		err := get(ctx, tx, &linked, `SELECT borrower_id, user_id FROM borrowers WHERE email = ?`, u.Email)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = exec(ctx, tx, `INSERT INTO borrowers (name, email, user_id) VALUES (?, ?, ?)`,
				u.Username, u.Email, id)
			return err
		case err != nil:
			return err
		case linked.UserID.Valid:
			return ErrEmailRegistered
		}
		_, err = exec(ctx, tx, `UPDATE borrowers SET user_id = ? WHERE borrower_id = ?`, id, linked.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetUser fetches a user by id regardless of active state.
func (d *Database) GetUser(ctx context.Context, id int64) (*User, error) {
	return d.oneUser(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, id)
}

// GetUserByEmail fetches a user by email.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return d.oneUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// FindActiveUser returns the active user whose username or email equals login.
func (d *Database) FindActiveUser(ctx context.Context, login string) (*User, error) {
	return d.oneUser(ctx,
		`SELECT `+userColumns+` FROM users WHERE (username = ? OR email = ?) AND is_active = ?`,
		login, login, true)
}

func (d *Database) oneUser(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	err := get(ctx, d.db, &u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAllUsers lists every account ordered by username.
func (d *Database) GetAllUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	err := selectAll(ctx, d.db, &users, `SELECT `+userColumns+` FROM users ORDER BY username`)
	return users, err
}

// TouchLastLogin records a successful login.
func (d *Database) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return d.updateUser(ctx, `UPDATE users SET last_login = ? WHERE user_id = ?`, at.UTC(), id)
}

// UpdatePassword stores a new hash and salt.
func (d *Database) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	return d.updateUser(ctx, `UPDATE users SET password_hash = ?, salt = ? WHERE user_id = ?`, hash, salt, id)
}

// SetUserActive enables or disables login for an account.
func (d *Database) SetUserActive(ctx context.Context, id int64, active bool) error {
	return d.updateUser(ctx, `UPDATE users SET is_active = ? WHERE user_id = ?`, active, id)
}

func (d *Database) updateUser(ctx context.Context, query string, args ...any) error {
	n, err := exec(ctx, d.db, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UsernameTaken reports whether another user already has username.
func (d *Database) UsernameTaken(ctx context.Context, username string, exceptID int64) (bool, error) {
	return exists(ctx, d.db, `SELECT 1 FROM users WHERE username = ? AND user_id <> ?`, username, exceptID)
}

// EmailTaken reports whether email belongs to another user, or to a borrower
// other than the one linked to exceptID.
func (d *Database) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	return exists(ctx, d.db, `
		SELECT 1 FROM users WHERE email = ? AND user_id <> ?
		UNION ALL
		SELECT 1 FROM borrowers WHERE email = ? AND (user_id IS NULL OR user_id <> ?)`,
		email, exceptID, email, exceptID)
}

// UpdateProfile changes the non-empty fields of a user and mirrors them onto
// the linked borrower as name and email.
func (d *Database) UpdateProfile(ctx context.Context, id int64, username, email string) error {
	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := exec(ctx, tx, `
			UPDATE users
			SET username = COALESCE(NULLIF(?, ''), username),
			    email = COALESCE(NULLIF(?, ''), email)
			WHERE user_id = ?`,
			username, email, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}

		_, err = exec(ctx, tx, `
			UPDATE borrowers
			SET name = COALESCE(NULLIF(?, ''), name),
			    email = COALESCE(NULLIF(?, ''), email)
			WHERE user_id = ?`,
			username, email, id)
		return err
	})
}
