package auth

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teranos/mplan/errors"
)

// Store handles persistence of users and sessions.
type Store struct {
	db            *sql.DB
	sessionExpiry time.Duration
}

// NewStore creates an auth store. A non-positive sessionExpiry falls back
// to DefaultSessionExpiry.
func NewStore(db *sql.DB, sessionExpiry time.Duration) *Store {
	if sessionExpiry <= 0 {
		sessionExpiry = DefaultSessionExpiry
	}
	return &Store{db: db, sessionExpiry: sessionExpiry}
}

// HasUsers reports whether any account exists yet. Used to decide whether
// first-run setup is still open.
func (s *Store) HasUsers() (bool, error) {
	var exists bool
	if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users)").Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to check for users")
	}
	return exists, nil
}

// CreateUser creates an account with a bcrypt-hashed password.
// Names are unique case-insensitively.
func (s *Store) CreateUser(name, password string, isAdmin bool) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequestError("user name must not be empty")
	}
	if password == "" {
		return nil, errors.NewInvalidRequestError("password must not be empty")
	}

	var taken bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE name = ? COLLATE NOCASE)", name).Scan(&taken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check user name")
	}
	if taken {
		return nil, errors.NewConflictError("user name %q is already taken", name)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	user := &User{
		ID:        uuid.New().String(),
		Name:      name,
		IsAdmin:   isAdmin,
		CreatedAt: time.Now().Unix(),
	}
	_, err = s.db.Exec(
		"INSERT INTO users (id, name, is_admin, created_at, password_hash) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Name, user.IsAdmin, user.CreatedAt, string(hash),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	return user, nil
}

// Authenticate verifies a name/password pair and returns the matching user.
// Unknown names and wrong passwords both fail with ErrUnauthorized so the
// response does not leak which accounts exist.
func (s *Store) Authenticate(name, password string) (*User, error) {
	user := &User{}
	var hash string
	err := s.db.QueryRow(
		"SELECT id, name, is_admin, created_at, password_hash FROM users WHERE name = ? COLLATE NOCASE",
		strings.TrimSpace(name),
	).Scan(&user.ID, &user.Name, &user.IsAdmin, &user.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user")
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
	}
	return user, nil
}

// GetUser retrieves a user by id
func (s *Store) GetUser(id string) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(
		"SELECT id, name, is_admin, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Name, &user.IsAdmin, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no user exists for id: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user")
	}
	return user, nil
}

// ListUsers returns all accounts ordered by name
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query("SELECT id, name, is_admin, created_at FROM users ORDER BY name ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.IsAdmin, &user.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetPassword replaces a user's password hash
func (s *Store) SetPassword(id, password string) error {
	if password == "" {
		return errors.NewInvalidRequestError("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	result, err := s.db.Exec("UPDATE users SET password_hash = ? WHERE id = ?", string(hash), id)
	if err != nil {
		return errors.Wrap(err, "failed to update password")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("no user exists for id: %s", id)
	}
	return nil
}

// SetAdmin grants or revokes admin rights. Revoking the last admin is
// refused so the instance never locks itself out.
func (s *Store) SetAdmin(id string, isAdmin bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var current bool
	err = tx.QueryRow("SELECT is_admin FROM users WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("no user exists for id: %s", id)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load user")
	}

	if current && !isAdmin {
		var admins int
		if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE is_admin = 1").Scan(&admins); err != nil {
			return errors.Wrap(err, "failed to count admins")
		}
		if admins <= 1 {
			return errors.NewConflictError("cannot demote the last admin")
		}
	}

	if _, err := tx.Exec("UPDATE users SET is_admin = ? WHERE id = ?", isAdmin, id); err != nil {
		return errors.Wrap(err, "failed to update admin flag")
	}
	return errors.Wrap(tx.Commit(), "failed to commit admin change")
}

// DeleteUser removes an account and its sessions. Deleting the last admin
// is refused.
func (s *Store) DeleteUser(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var isAdmin bool
	err = tx.QueryRow("SELECT is_admin FROM users WHERE id = ?", id).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("no user exists for id: %s", id)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load user")
	}

	if isAdmin {
		var admins int
		if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE is_admin = 1").Scan(&admins); err != nil {
			return errors.Wrap(err, "failed to count admins")
		}
		if admins <= 1 {
			return errors.NewConflictError("cannot delete the last admin")
		}
	}

	if _, err := tx.Exec("DELETE FROM user_sessions WHERE user_id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete user sessions")
	}
	if _, err := tx.Exec("DELETE FROM users WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	return errors.Wrap(tx.Commit(), "failed to commit user delete")
}

// CreateSession opens a new session for the user
func (s *Store) CreateSession(userID string) (*Session, error) {
	session := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().Unix(),
	}
	_, err := s.db.Exec(
		"INSERT INTO user_sessions (id, user_id, created_at) VALUES (?, ?, ?)",
		session.ID, session.UserID, session.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	return session, nil
}

// UserForSession resolves a session id to its user. Expired sessions are
// deleted on sight and fail with ErrUnauthorized.
func (s *Store) UserForSession(sessionID string) (*User, error) {
	session := &Session{}
	err := s.db.QueryRow(
		"SELECT id, user_id, created_at FROM user_sessions WHERE id = ?", sessionID,
	).Scan(&session.ID, &session.UserID, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "unknown session")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}

	if session.Expired(s.sessionExpiry) {
		s.db.Exec("DELETE FROM user_sessions WHERE id = ?", sessionID)
		return nil, errors.Wrap(errors.ErrUnauthorized, "session expired")
	}
	return s.GetUser(session.UserID)
}

// DeleteSession ends a session. Unknown sessions are a no-op.
func (s *Store) DeleteSession(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM user_sessions WHERE id = ?", sessionID); err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return nil
}

// SweepExpiredSessions deletes all sessions past the expiry window and
// returns how many were removed.
func (s *Store) SweepExpiredSessions() (int64, error) {
	cutoff := time.Now().Add(-s.sessionExpiry).Unix()
	result, err := s.db.Exec("DELETE FROM user_sessions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to sweep sessions")
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count swept sessions")
	}
	return removed, nil
}
