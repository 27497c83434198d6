package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(name, email string, role Role) *User {
	return &User{Username: name, Email: email, PasswordHash: "hash", Salt: "salt", Role: role}
}

func TestCreateUserLinksBorrower(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	id, err := db.CreateUser(ctx, newUser("alice", "alice@example.com", RoleBorrower))
	require.NoError(t, err)

	u, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.Active)
	assert.Nil(t, u.LastLogin)

	b, err := db.GetBorrowerByUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", b.Name)
	assert.Equal(t, "alice@example.com", b.Email)
	require.NotNil(t, b.UserID)
	assert.Equal(t, id, *b.UserID)

	ok, err := db.UserExists(ctx, "alice", "other@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.UserExists(ctx, "bob", "bob@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateUserAdoptsUnlinkedBorrower(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	existing := addBorrower(t, db, "Walk-in Patron", "patron@example.com")

	id, err := db.CreateUser(ctx, newUser("patron", "patron@example.com", RoleBorrower))
	require.NoError(t, err)

	b, err := db.GetBorrowerByUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, existing, b.ID)
	assert.Equal(t, "Walk-in Patron", b.Name)

	all, err := db.GetAllBorrowers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateUserIsAtomic(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	first, err := db.CreateUser(ctx, newUser("first", "shared@example.com", RoleBorrower))
	require.NoError(t, err)
	require.NoError(t, db.UpdateProfile(ctx, first, "", "first@example.com"))

	// Point the linked borrower back at the old address so a new account
	// with that address collides on the borrower side only.
	_, err = exec(ctx, db.db, `UPDATE borrowers SET email = ? WHERE user_id = ?`, "shared@example.com", first)
	require.NoError(t, err)

	_, err = db.CreateUser(ctx, newUser("second", "shared@example.com", RoleBorrower))
	assert.ErrorIs(t, err, ErrEmailRegistered)

	_, err = db.FindActiveUser(ctx, "second")
	assert.ErrorIs(t, err, ErrUserNotFound, "user insert must roll back with the borrower")
}

func TestFindActiveUser(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	id, err := db.CreateUser(ctx, newUser("carol", "carol@example.com", RoleLibrarian))
	require.NoError(t, err)

	byName, err := db.FindActiveUser(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
	assert.Equal(t, RoleLibrarian, byName.Role)

	byEmail, err := db.FindActiveUser(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)

	_, err = db.FindActiveUser(ctx, "Carol")
	assert.ErrorIs(t, err, ErrUserNotFound, "lookups are case-sensitive")

	require.NoError(t, db.SetUserActive(ctx, id, false))
	_, err = db.FindActiveUser(ctx, "carol")
	assert.ErrorIs(t, err, ErrUserNotFound)

	u, err := db.GetUserByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.False(t, u.Active)

	assert.ErrorIs(t, db.SetUserActive(ctx, id+10, true), ErrUserNotFound)
}

func TestUserUpdates(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	id, err := db.CreateUser(ctx, newUser("dave", "dave@example.com", RoleBorrower))
	require.NoError(t, err)
	other, err := db.CreateUser(ctx, newUser("erin", "erin@example.com", RoleBorrower))
	require.NoError(t, err)

	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, db.TouchLastLogin(ctx, id, at))
	require.NoError(t, db.UpdatePassword(ctx, id, "newhash", "newsalt"))

	u, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u.LastLogin)
	assert.True(t, at.Equal(*u.LastLogin))
	assert.Equal(t, "newhash", u.PasswordHash)
	assert.Equal(t, "newsalt", u.Salt)

	taken, err := db.UsernameTaken(ctx, "erin", id)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = db.UsernameTaken(ctx, "erin", other)
	require.NoError(t, err)
	assert.False(t, taken, "own username is not taken")
	taken, err = db.EmailTaken(ctx, "erin@example.com", id)
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, db.UpdateProfile(ctx, id, "david", ""))
	u, err = db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "david", u.Username)
	assert.Equal(t, "dave@example.com", u.Email)

	require.NoError(t, db.UpdateProfile(ctx, id, "", "david@example.com"))
	b, err := db.GetBorrowerByUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "david", b.Name)
	assert.Equal(t, "david@example.com", b.Email)

	assert.ErrorIs(t, db.UpdateProfile(ctx, id+10, "ghost", ""), ErrUserNotFound)

	users, err := db.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "david", users[0].Username)
}
