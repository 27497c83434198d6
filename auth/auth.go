// Package auth registers accounts, logs users in and manages their
// credentials. A successful login yields a Session value that callers pass
// around explicitly; there is no process-wide current user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"librarydesk/credential"
	"librarydesk/library"
	"librarydesk/logger"
)

var (
	ErrFieldsRequired     = errors.New("All fields are required")
	ErrLoginRequired      = errors.New("Username/email and password are required")
	ErrInvalidEmail       = errors.New("Invalid email format")
	ErrUserExists         = errors.New("Username or email already exists")
	ErrInvalidCredentials = errors.New("Invalid username/email or password")
	ErrWrongPassword      = errors.New("Current password is incorrect")
	ErrUsernameTaken      = errors.New("Username already taken")
	ErrNoUpdates          = errors.New("No updates provided")
	ErrEmailNotFound      = errors.New("Email not found in our system")
	ErrNotLoggedIn        = errors.New("Not logged in")
	ErrForbidden          = errors.New("Permission denied")
)

// ResetAcknowledgement is returned by ResetPasswordRequest for known emails.
const ResetAcknowledgement = "Password reset instructions sent to your email"

// UserStore is the persistence AuthSystem needs. *library.Database
// implements it.
type UserStore interface {
	UserExists(ctx context.Context, username, email string) (bool, error)
	CreateUser(ctx context.Context, u *library.User) (int64, error)
	FindActiveUser(ctx context.Context, login string) (*library.User, error)
	GetUser(ctx context.Context, id int64) (*library.User, error)
	GetUserByEmail(ctx context.Context, email string) (*library.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdatePassword(ctx context.Context, id int64, hash, salt string) error
	SetUserActive(ctx context.Context, id int64, active bool) error
	UsernameTaken(ctx context.Context, username string, exceptID int64) (bool, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	UpdateProfile(ctx context.Context, id int64, username, email string) error
}

// Session is the identity of a logged-in user.
type Session struct {
	ID        uuid.UUID
	UserID    int64
	Username  string
	Email     string
	Role      library.Role
	Active    bool
	StartedAt time.Time

	closed bool
}

// IsStaff reports whether the session may manage the catalog, borrowers,
// loans and accounts.
func (s *Session) IsStaff() bool {
	return s.Valid() && s.Role.IsStaff()
}

// Valid reports whether s is a live session.
func (s *Session) Valid() bool { return s != nil && !s.closed }

// RequireStaff returns ErrNotLoggedIn or ErrForbidden unless s is a staff session.
func (s *Session) RequireStaff() error {
	if !s.Valid() {
		return ErrNotLoggedIn
	}
	if !s.Role.IsStaff() {
		return ErrForbidden
	}
	return nil
}

// AuthSystem implements the account workflows over a UserStore.
type AuthSystem struct {
	store UserStore
	now   func() time.Time
}

// New returns an AuthSystem backed by store.
func New(store UserStore) *AuthSystem {
	return &AuthSystem{store: store, now: time.Now}
}

// SetClock replaces time.Now for login timestamps.
func (a *AuthSystem) SetClock(now func() time.Time) { a.now = now }

// Register creates an account and its linked borrower record, returning the
// new user id.
func (a *AuthSystem) Register(ctx context.Context, username, email, password string, role library.Role) (int64, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return 0, ErrFieldsRequired
	}
	if role == "" {
		role = library.RoleBorrower
	}
	if _, err := library.ParseRole(string(role)); err != nil {
		return 0, err
	}
	if !credential.ValidateEmail(email) {
		return 0, ErrInvalidEmail
	}

	exists, err := a.store.UserExists(ctx, username, email)
	if err != nil {
		return 0, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return 0, ErrUserExists
	}
	if err := credential.ValidatePasswordStrength(password); err != nil {
		return 0, err
	}

	hash, salt, err := credential.HashPassword(password, "")
	if err != nil {
		return 0, err
	}
	id, err := a.store.CreateUser(ctx, &library.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		Role:         role,
	})
	if err != nil {
		logger.Log.Warnw("registration failed", "username", username, "error", err)
		return 0, err
	}

	logger.Log.Infow("user registered", "user_id", id, "username", username, "role", role)
	return id, nil
}

// Login authenticates an active user by username or email. Unknown users,
// inactive users and wrong passwords all yield ErrInvalidCredentials.
func (a *AuthSystem) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrLoginRequired
	}

	u, err := a.store.FindActiveUser(ctx, login)
	if errors.Is(err, library.ErrUserNotFound) {
		logger.Log.Warnw("login failed", "login", login)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !credential.VerifyPassword(password, u.PasswordHash, u.Salt) {
		logger.Log.Warnw("login failed", "login", login)
		return nil, ErrInvalidCredentials
	}
	if credential.NeedsRehash(u.PasswordHash) {
		// Upgrade to the configured parameters; the old hash stays valid on failure.
		if hash, salt, err := credential.HashPassword(password, ""); err == nil {
			if err := a.store.UpdatePassword(ctx, u.ID, hash, salt); err != nil {
				logger.Log.Warnw("password rehash failed", "user_id", u.ID, "error", err)
			}
		}
	}

	now := a.now()
	if err := a.store.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	s := &Session{
		ID:        uuid.New(),
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		StartedAt: now,
	}
	logger.Log.Infow("login", "user_id", u.ID, "session", s.ID.String(), "role", u.Role)
	return s, nil
}

// Logout invalidates s.
func (a *AuthSystem) Logout(s *Session) {
	if !s.Valid() {
		return
	}
	s.closed = true
	logger.Log.Infow("logout", "user_id", s.UserID, "session", s.ID.String())
}

// ChangePassword replaces a user's password after checking the current one.
// The new hash always gets a fresh salt.
func (a *AuthSystem) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	u, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !credential.VerifyPassword(oldPassword, u.PasswordHash, u.Salt) {
		return ErrWrongPassword
	}
	if err := credential.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	hash, salt, err := credential.HashPassword(newPassword, "")
	if err != nil {
		return err
	}
	if err := a.store.UpdatePassword(ctx, userID, hash, salt); err != nil {
		return err
	}
	logger.Log.Infow("password changed", "user_id", userID)
	return nil
}

// UpdateProfile changes the given non-empty fields of a user. Both fields
// are checked before either is written, and the change propagates to the
// linked borrower.
func (a *AuthSystem) UpdateProfile(ctx context.Context, userID int64, username, email string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" && email == "" {
		return ErrNoUpdates
	}

	if username != "" {
		taken, err := a.store.UsernameTaken(ctx, username, userID)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}
	}
	if email != "" {
		if !credential.ValidateEmail(email) {
			return ErrInvalidEmail
		}
		taken, err := a.store.EmailTaken(ctx, email, userID)
		if err != nil {
			return err
		}
		if taken {
			return library.ErrEmailRegistered
		}
	}

	if err := a.store.UpdateProfile(ctx, userID, username, email); err != nil {
		return err
	}
	logger.Log.Infow("profile updated", "user_id", userID)
	return nil
}

// ResetPasswordRequest acknowledges a reset for a registered email. No
// token is issued and nothing is sent.
func (a *AuthSystem) ResetPasswordRequest(ctx context.Context, email string) (string, error) {
	_, err := a.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, library.ErrUserNotFound) {
		return "", ErrEmailNotFound
	}
	if err != nil {
		return "", err
	}
	return ResetAcknowledgement, nil
}

// SetActive enables or disables an account. Only staff may call it, and
// nobody may deactivate their own account.
func (a *AuthSystem) SetActive(ctx context.Context, s *Session, userID int64, active bool) error {
	if err := s.RequireStaff(); err != nil {
		return err
	}
	if !active && userID == s.UserID {
		return errors.New("Cannot deactivate your own account")
	}
	if err := a.store.SetUserActive(ctx, userID, active); err != nil {
		return err
	}
	logger.Log.Infow("account state changed", "user_id", userID, "active", active, "by", s.UserID)
	return nil
}
