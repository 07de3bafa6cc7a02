package server

import (
	"context"
	"net/http"

	"github.com/teranos/mplan/auth"
)

// SessionCookie is the cookie carrying the session id.
const SessionCookie = "mplan_session"

type contextKey string

const userContextKey contextKey = "user"

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	// Session endpoints stay outside the auth middleware so signing in is
	// possible without a session.
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	s.mux.HandleFunc("/auth/setup", s.corsMiddleware(s.HandleSetup))
	s.mux.HandleFunc("/auth/login", s.corsMiddleware(s.HandleLogin))
	s.mux.HandleFunc("/auth/logout", s.corsMiddleware(s.HandleLogout))
	s.mux.HandleFunc("/auth/status", s.corsMiddleware(s.HandleAuthStatus))

	s.mux.HandleFunc("/ws", s.corsMiddleware(s.withUser(s.HandleWebSocket)))

	s.mux.HandleFunc("/api/plans", s.corsMiddleware(s.withUser(s.HandlePlans)))                 // List/create plans (GET/POST)
	s.mux.HandleFunc("/api/plans/", s.corsMiddleware(s.withUser(s.HandlePlan)))                 // Plan detail and sub-resources
	s.mux.HandleFunc("/api/items/", s.corsMiddleware(s.withUser(s.HandleItem)))                 // Remove item (DELETE /api/items/{id})
	s.mux.HandleFunc("/api/actions", s.corsMiddleware(s.withUser(s.HandleActions)))             // List actions (GET)
	s.mux.HandleFunc("/api/actions/search", s.corsMiddleware(s.withUser(s.HandleActionSearch))) // Autocomplete search (GET ?q=)
	s.mux.HandleFunc("/api/actions/", s.corsMiddleware(s.withUser(s.HandleAction)))             // Rename/delete action (PATCH/DELETE)
	s.mux.HandleFunc("/api/executions", s.corsMiddleware(s.withUser(s.HandleExecutions)))       // List executions (GET ?state=)
	s.mux.HandleFunc("/api/executions/", s.corsMiddleware(s.withUser(s.HandleExecution)))       // Execution detail and sub-resources
	s.mux.HandleFunc("/api/backup", s.corsMiddleware(s.withAdmin(s.HandleBackup)))              // Export/import (GET/POST)
	s.mux.HandleFunc("/api/users", s.corsMiddleware(s.withAdmin(s.HandleUsers)))                // List/create users (GET/POST)
	s.mux.HandleFunc("/api/users/", s.corsMiddleware(s.withAdmin(s.HandleUser)))                // User admin (PATCH/DELETE)
}

// Handler returns the server's HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// originAllowed checks an Origin header against server.allowed_origins
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// withUser resolves the session cookie and stores the user in the request
// context. While no accounts exist yet the instance is open, so setup can
// be driven through the API itself.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.sessionUser(r)
		if err != nil {
			has, hasErr := s.users.HasUsers()
			if hasErr != nil {
				s.writeStoreError(w, hasErr, "check users")
				return
			}
			if has {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			// First run: no accounts yet.
			next(w, r)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// withAdmin additionally requires the session user to be an admin
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.withUser(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user != nil && !user.IsAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}

// sessionUser resolves the request's session cookie to a user
func (s *Server) sessionUser(r *http.Request) (*auth.User, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, err
	}
	return s.users.UserForSession(cookie.Value)
}

// currentUser returns the authenticated user from the request context,
// or nil during first-run setup.
func currentUser(r *http.Request) *auth.User {
	user, _ := r.Context().Value(userContextKey).(*auth.User)
	return user
}
