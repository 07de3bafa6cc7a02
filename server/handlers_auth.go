package server

import (
	"net/http"

	"github.com/teranos/mplan/auth"
	"github.com/teranos/mplan/sym"
)

// CredentialsRequest is the body for setup and login
type CredentialsRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CreateUserRequest is the admin body for creating accounts
type CreateUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// AuthStatusResponse reports the session state for the UI
type AuthStatusResponse struct {
	Authenticated bool       `json:"authenticated"`
	SetupRequired bool       `json:"setup_required"`
	User          *auth.User `json:"user,omitempty"`
}

// HandleSetup creates the first admin account
// POST /auth/setup, only available while no accounts exist
func (s *Server) HandleSetup(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	has, err := s.users.HasUsers()
	if err != nil {
		s.writeStoreError(w, err, "check users")
		return
	}
	if has {
		writeError(w, http.StatusConflict, "Setup has already been completed")
		return
	}

	var req CredentialsRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	user, err := s.users.CreateUser(req.Name, req.Password, true)
	if err != nil {
		s.writeStoreError(w, err, "create admin")
		return
	}

	s.logger.Infow(sym.User+" First admin created", "user", user.Name)
	s.startSessionFor(w, user)
}

// HandleLogin authenticates and opens a session
// POST /auth/login, rate limited per client IP
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if !s.loginLimiter(clientAddr(r)).Allow() {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	var req CredentialsRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	user, err := s.users.Authenticate(req.Name, req.Password)
	if err != nil {
		s.writeStoreError(w, err, "login")
		return
	}

	s.logger.Infow(sym.User+" User signed in", "user", user.Name)
	s.startSessionFor(w, user)
}

func (s *Server) startSessionFor(w http.ResponseWriter, user *auth.User) {
	session, err := s.users.CreateSession(user.ID)
	if err != nil {
		s.writeStoreError(w, err, "create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, AuthStatusResponse{Authenticated: true, User: user})
}

// HandleLogout ends the current session
// POST /auth/logout
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := s.users.DeleteSession(cookie.Value); err != nil {
			s.writeStoreError(w, err, "logout")
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// HandleAuthStatus reports whether the request carries a valid session
// GET /auth/status
func (s *Server) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	has, err := s.users.HasUsers()
	if err != nil {
		s.writeStoreError(w, err, "check users")
		return
	}

	resp := AuthStatusResponse{SetupRequired: !has}
	if user, err := s.sessionUser(r); err == nil {
		resp.Authenticated = true
		resp.User = user
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUsers handles the account collection, admin only
// GET /api/users lists accounts, POST /api/users creates one
func (s *Server) HandleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.users.ListUsers()
		if err != nil {
			s.writeStoreError(w, err, "list users")
			return
		}
		if users == nil {
			users = []auth.User{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})

	case http.MethodPost:
		var req CreateUserRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		user, err := s.users.CreateUser(req.Name, req.Password, req.IsAdmin)
		if err != nil {
			s.writeStoreError(w, err, "create user")
			return
		}
		s.logger.Infow(sym.User+" User created", "user", user.Name, "is_admin", user.IsAdmin)
		writeJSON(w, http.StatusCreated, user)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleUser handles a single account, admin only
// PATCH /api/users/{id} updates password or admin flag
// DELETE /api/users/{id} removes the account
func (s *Server) HandleUser(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/users/")
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "Invalid path format")
		return
	}
	userID := parts[0]

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Password *string `json:"password,omitempty"`
			IsAdmin  *bool   `json:"is_admin,omitempty"`
		}
		if readJSON(w, r, &req) != nil {
			return
		}
		if req.Password != nil {
			if err := s.users.SetPassword(userID, *req.Password); err != nil {
				s.writeStoreError(w, err, "set password")
				return
			}
		}
		if req.IsAdmin != nil {
			if err := s.users.SetAdmin(userID, *req.IsAdmin); err != nil {
				s.writeStoreError(w, err, "set admin")
				return
			}
		}
		user, err := s.users.GetUser(userID)
		if err != nil {
			s.writeStoreError(w, err, "get user")
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodDelete:
		if current := currentUser(r); current != nil && current.ID == userID {
			writeError(w, http.StatusConflict, "Cannot delete your own account")
			return
		}
		if err := s.users.DeleteUser(userID); err != nil {
			s.writeStoreError(w, err, "delete user")
			return
		}
		s.logger.Infow(sym.User+" User deleted", "user_id", shortID(userID))
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
