package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mplan/errors"
	testutil "github.com/teranos/mplan/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.CreateTestDB(t), 0)
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	store := newTestStore(t)

	has, err := store.HasUsers()
	require.NoError(t, err)
	assert.False(t, has)

	user, err := store.CreateUser("admin", "hunter2", true)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)

	has, err = store.HasUsers()
	require.NoError(t, err)
	assert.True(t, has)

	got, err := store.Authenticate("admin", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Name lookup is case-insensitive.
	_, err = store.Authenticate("ADMIN", "hunter2")
	require.NoError(t, err)

	_, err = store.Authenticate("admin", "wrong")
	assert.True(t, errors.IsUnauthorizedError(err))

	_, err = store.Authenticate("nobody", "hunter2")
	assert.True(t, errors.IsUnauthorizedError(err))
}

func TestCreateUserValidation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateUser("", "pw", false)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = store.CreateUser("someone", "", false)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = store.CreateUser("taken", "pw", false)
	require.NoError(t, err)
	_, err = store.CreateUser("TAKEN", "pw", false)
	assert.True(t, errors.IsConflictError(err))
}

func TestSessions(t *testing.T) {
	store := newTestStore(t)
	user, err := store.CreateUser("someone", "pw", false)
	require.NoError(t, err)

	session, err := store.CreateSession(user.ID)
	require.NoError(t, err)

	got, err := store.UserForSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.UserForSession("bogus")
	assert.True(t, errors.IsUnauthorizedError(err))

	require.NoError(t, store.DeleteSession(session.ID))
	_, err = store.UserForSession(session.ID)
	assert.True(t, errors.IsUnauthorizedError(err))
}

func TestExpiredSessionsAreRejectedAndSwept(t *testing.T) {
	database := testutil.CreateTestDB(t)
	store := NewStore(database, time.Hour)

	user, err := store.CreateUser("someone", "pw", false)
	require.NoError(t, err)
	session, err := store.CreateSession(user.ID)
	require.NoError(t, err)

	stale := time.Now().Add(-2 * time.Hour).Unix()
	_, err = database.Exec("UPDATE user_sessions SET created_at = ? WHERE id = ?", stale, session.ID)
	require.NoError(t, err)

	_, err = store.UserForSession(session.ID)
	assert.True(t, errors.IsUnauthorizedError(err))

	fresh, err := store.CreateSession(user.ID)
	require.NoError(t, err)

	removed, err := store.SweepExpiredSessions()
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.UserForSession(fresh.ID)
	require.NoError(t, err)
}

func TestLastAdminProtection(t *testing.T) {
	store := newTestStore(t)
	admin, err := store.CreateUser("admin", "pw", true)
	require.NoError(t, err)

	err = store.DeleteUser(admin.ID)
	assert.True(t, errors.IsConflictError(err))

	err = store.SetAdmin(admin.ID, false)
	assert.True(t, errors.IsConflictError(err))

	second, err := store.CreateUser("backup-admin", "pw", true)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(admin.ID))
	err = store.SetAdmin(second.ID, false)
	assert.True(t, errors.IsConflictError(err))
}

func TestDeleteUserRemovesSessions(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateUser("admin", "pw", true)
	require.NoError(t, err)
	user, err := store.CreateUser("someone", "pw", false)
	require.NoError(t, err)
	session, err := store.CreateSession(user.ID)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(user.ID))

	_, err = store.UserForSession(session.ID)
	assert.True(t, errors.IsUnauthorizedError(err))
	_, err = store.GetUser(user.ID)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSetPassword(t *testing.T) {
	store := newTestStore(t)
	user, err := store.CreateUser("someone", "old", false)
	require.NoError(t, err)

	require.NoError(t, store.SetPassword(user.ID, "new"))

	_, err = store.Authenticate("someone", "old")
	assert.True(t, errors.IsUnauthorizedError(err))
	_, err = store.Authenticate("someone", "new")
	require.NoError(t, err)

	assert.True(t, errors.IsNotFoundError(store.SetPassword("missing", "pw")))
	assert.True(t, errors.IsInvalidRequestError(store.SetPassword(user.ID, "")))
}
