package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/credential"
	"librarydesk/library"
)

func init() {
	credential.SetParams(credential.Params{Time: 1, MemoryKiB: 1024, Threads: 1})
}

func newAuth(t *testing.T) (*AuthSystem, *library.Database) {
	t.Helper()
	db, err := library.NewDatabase(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestRegisterValidation(t *testing.T) {
	a, _ := newAuth(t)
	ctx := context.Background()

	tests := []struct {
		name                      string
		username, email, password string
		want                      error
	}{
		{"missing username", "", "a@b.co", "Valid123", ErrFieldsRequired},
		{"missing password", "ann", "a@b.co", "", ErrFieldsRequired},
		{"bad email", "ann", "not-an-email", "Valid123", ErrInvalidEmail},
		{"weak password", "ann", "a@b.co", "weakpass", credential.ErrNoUppercase},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Register(ctx, tc.username, tc.email, tc.password, library.RoleBorrower)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := a.Register(ctx, "ann", "a@b.co", "Valid123", library.Role("janitor"))
	assert.Error(t, err)
}

func TestRegisterDuplicate(t *testing.T) {
	a, _ := newAuth(t)
	ctx := context.Background()

	_, err := a.Register(ctx, "ann", "ann@example.com", "Valid123", "")
	require.NoError(t, err)

	_, err = a.Register(ctx, "ann", "other@example.com", "Valid123", "")
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = a.Register(ctx, "other", "ann@example.com", "Valid123", "")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestRegisterThenLogin(t *testing.T) {
	a, db := newAuth(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	a.SetClock(func() time.Time { return at })

	id, err := a.Register(ctx, "ann", "ann@example.com", "Valid123", "")
	require.NoError(t, err)

	b, err := db.GetBorrowerByUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ann", b.Name)

	for _, login := range []string{"ann", "ann@example.com"} {
		s, err := a.Login(ctx, login, "Valid123")
		require.NoError(t, err, login)
		assert.Equal(t, id, s.UserID)
		assert.Equal(t, library.RoleBorrower, s.Role)
		assert.True(t, s.Active)
		assert.False(t, s.IsStaff())
		assert.NotEqual(t, uuid.Nil, s.ID)
	}

	u, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u.LastLogin)
	assert.True(t, at.Equal(*u.LastLogin))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	a, db := newAuth(t)
	ctx := context.Background()

	id, err := a.Register(ctx, "ann", "ann@example.com", "Valid123", "")
	require.NoError(t, err)

	_, wrongPassword := a.Login(ctx, "ann", "Valid124")
	_, unknownUser := a.Login(ctx, "nobody", "Valid123")
	require.NoError(t, db.SetUserActive(ctx, id, false))
	_, deactivated := a.Login(ctx, "ann", "Valid123")

	for _, err := range []error{wrongPassword, unknownUser, deactivated} {
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.EqualError(t, err, "Invalid username/email or password")
	}

	_, err = a.Login(ctx, "  ", "x")
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestChangePassword(t *testing.T) {
	a, db := newAuth(t)
	ctx := context.Background()
	id, err := a.Register(ctx, "ann", "ann@example.com", "Valid123", "")
	require.NoError(t, err)
	before, err := db.GetUser(ctx, id)
	require.NoError(t, err)

	assert.ErrorIs(t, a.ChangePassword(ctx, id, "Wrong123", "Better456"), ErrWrongPassword)
	assert.ErrorIs(t, a.ChangePassword(ctx, id, "Valid123", "short"), credential.ErrTooShort)
	assert.ErrorIs(t, a.ChangePassword(ctx, id+99, "Valid123", "Better456"), library.ErrUserNotFound)

	require.NoError(t, a.ChangePassword(ctx, id, "Valid123", "Better456"))
	after, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, before.Salt, after.Salt)

	_, err = a.Login(ctx, "ann", "Valid123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login(ctx, "ann", "Better456")
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	a, db := newAuth(t)
	ctx := context.Background()
	id, err := a.Register(ctx, "ann", "ann@example.com", "Valid123", "")
	require.NoError(t, err)
	_, err = a.Register(ctx, "bob", "bob@example.com", "Valid123", "")
	require.NoError(t, err)

	assert.ErrorIs(t, a.UpdateProfile(ctx, id, "", ""), ErrNoUpdates)
	assert.ErrorIs(t, a.UpdateProfile(ctx, id, "bob", ""), ErrUsernameTaken)
	assert.ErrorIs(t, a.UpdateProfile(ctx, id, "", "bob@example.com"), library.ErrEmailRegistered)
	assert.ErrorIs(t, a.UpdateProfile(ctx, id, "", "broken"), ErrInvalidEmail)
	assert.ErrorIs(t, a.UpdateProfile(ctx, id, "annie", "bob@example.com"), library.ErrEmailRegistered)

	u, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ann", u.Username, "failed update must not half-apply")

	require.NoError(t, a.UpdateProfile(ctx, id, "annie", "annie@example.com"))
	b, err := db.GetBorrowerByUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "annie", b.Name)
	assert.Equal(t, "annie@example.com", b.Email)
}

func TestUpdateProfileEmailOfUnlinkedBorrower(t *testing.T) {
	a, db := newAuth(t)
	ctx := context.Background()
	id, err := a.Register(ctx, "alice", "alice@example.com", "Valid123", "")
	require.NoError(t, err)
	_, err = db.AddBorrower(ctx, library.BorrowerInput{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	assert.ErrorIs(t, a.UpdateProfile(ctx, id, "", "bob@example.com"), library.ErrEmailRegistered)

	u, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	// The user's own borrower row does not count as a conflict.
	require.NoError(t, a.UpdateProfile(ctx, id, "alicia", "alice@example.com"))
}

func TestLoginSurvivesParamChange(t *testing.T) {
	a, db := newAuth(t)
	ctx := context.Background()
	id, err := a.Register(ctx, "alice", "alice@example.com", "Valid123", "")
	require.NoError(t, err)
	before, err := db.GetUser(ctx, id)
	require.NoError(t, err)

	credential.SetParams(credential.Params{Time: 2, MemoryKiB: 2048, Threads: 1})
	t.Cleanup(func() { credential.SetParams(credential.Params{Time: 1, MemoryKiB: 1024, Threads: 1}) })

	_, err = a.Login(ctx, "alice", "Valid123")
	require.NoError(t, err)

	after, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash, "hash upgraded to the new parameters")
	assert.False(t, credential.NeedsRehash(after.PasswordHash))

	_, err = a.Login(ctx, "alice", "Valid123")
	require.NoError(t, err)
	_, err = a.Login(ctx, "alice", "Wrong123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResetPasswordRequest(t *testing.T) {
	a, _ := newAuth(t)
	ctx := context.Background()
	_, err := a.Register(ctx, "ann", "ann@example.com", "Valid123", "")
	require.NoError(t, err)

	msg, err := a.ResetPasswordRequest(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, ResetAcknowledgement, msg)

	_, err = a.ResetPasswordRequest(ctx, "nobody@example.com")
	assert.EqualError(t, err, "Email not found in our system")
}

func TestSetActiveRequiresStaff(t *testing.T) {
	a, _ := newAuth(t)
	ctx := context.Background()
	adminID, err := a.Register(ctx, "root", "root@example.com", "Valid123", library.RoleAdmin)
	require.NoError(t, err)
	annID, err := a.Register(ctx, "ann", "ann@example.com", "Valid123", "")
	require.NoError(t, err)

	ann, err := a.Login(ctx, "ann", "Valid123")
	require.NoError(t, err)
	assert.ErrorIs(t, a.SetActive(ctx, ann, adminID, false), ErrForbidden)

	admin, err := a.Login(ctx, "root", "Valid123")
	require.NoError(t, err)
	assert.True(t, admin.IsStaff())
	assert.Error(t, a.SetActive(ctx, admin, adminID, false))

	require.NoError(t, a.SetActive(ctx, admin, annID, false))
	_, err = a.Login(ctx, "ann", "Valid123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, a.SetActive(ctx, admin, annID, true))
	_, err = a.Login(ctx, "ann", "Valid123")
	assert.NoError(t, err)

	a.Logout(admin)
	assert.False(t, admin.IsStaff())
	assert.ErrorIs(t, a.SetActive(ctx, admin, annID, false), ErrNotLoggedIn)
	assert.ErrorIs(t, (*Session)(nil).RequireStaff(), ErrNotLoggedIn)
}

// failingStore reports a persistence failure from every lookup.
type failingStore struct{ UserStore }

func (failingStore) FindActiveUser(context.Context, string) (*library.User, error) {
	return nil, errors.New("connection reset")
}

func TestLoginPersistenceFailureIsNotAuthFailure(t *testing.T) {
	a := New(failingStore{})
	_, err := a.Login(context.Background(), "ann", "Valid123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "connection reset")
}
