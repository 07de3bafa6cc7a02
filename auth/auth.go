// Package auth provides user accounts and cookie sessions backed by the
// application database. Passwords are stored as bcrypt hashes; sessions are
// random ids with a server-side expiry.
package auth

import "time"

// DefaultSessionExpiry is how long a session stays valid without renewal.
const DefaultSessionExpiry = 30 * 24 * time.Hour

// User is an account that can sign in to the planner.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt int64  `json:"created_at"`
}

// Session is a server-side login session referenced by a cookie.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
}

// Expired reports whether the session has outlived the given expiry window.
func (s *Session) Expired(expiry time.Duration) bool {
	return time.Since(time.Unix(s.CreatedAt, 0)) > expiry
}
