// Package server exposes the planner over a JSON HTTP API with a WebSocket
// feed for live execution updates.
package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/mplan/auth"
	"github.com/teranos/mplan/backup"
	"github.com/teranos/mplan/config"
	"github.com/teranos/mplan/db"
	"github.com/teranos/mplan/execution"
	"github.com/teranos/mplan/plan"
)

const (
	// MaxClients limits concurrent WebSocket connections
	MaxClients = 64

	// ShutdownTimeout bounds how long Stop waits for goroutines
	ShutdownTimeout = 10 * time.Second

	// sessionSweepInterval is how often expired sessions are purged
	sessionSweepInterval = 1 * time.Hour
)

// Server serves the planner API and pushes execution updates to
// WebSocket clients.
type Server struct {
	db     *sql.DB
	cfg    *config.Config
	logger *zap.SugaredLogger

	plans   *plan.Store
	execs   *execution.Store
	backups *backup.Store
	users   *auth.Store

	mux        *http.ServeMux
	httpServer *http.Server

	// WebSocket hub state
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// Per-IP login throttling
	loginLimiters map[string]*rate.Limiter
	limiterMu     sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server over an already-migrated database
func New(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	sessionExpiry := time.Duration(cfg.Auth.SessionExpiryDays) * 24 * time.Hour

	s := &Server{
		db:     db,
		cfg:    cfg,
		logger: logger,
		plans: plan.NewStoreWithSearch(db, plan.SearchOptions{
			Limit:         cfg.Search.ResultLimit,
			ExactScore:    cfg.Search.ExactMatchScore,
			PrefixScore:   cfg.Search.PrefixMatchScore,
			ContainsScore: cfg.Search.ContainsScore,
		}),
		execs:         execution.NewStore(db),
		backups:       backup.NewStore(db),
		users:         auth.NewStore(db, sessionExpiry),
		mux:           http.NewServeMux(),
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		loginLimiters: make(map[string]*rate.Limiter),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.setupRoutes()
	return s
}

// Run processes client registration until the server context is cancelled
func (s *Server) Run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"execution_id", client.executionID,
		"total_clients", total,
	)
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		total := len(s.clients)
		s.mu.Unlock()
		client.close()
		s.logger.Infow("Client disconnected",
			"client_id", client.id,
			"total_clients", total,
		)
		return
	}
	s.mu.Unlock()
}

// HandleHealth reports server liveness
// GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loginLimiter returns the rate limiter for a client IP, creating one on
// first sight.
func (s *Server) loginLimiter(ip string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	limiter, ok := s.loginLimiters[ip]
	if !ok {
		perSecond := rate.Limit(s.cfg.Auth.LoginRatePerMinute / 60.0)
		limiter = rate.NewLimiter(perSecond, s.cfg.Auth.LoginBurst)
		s.loginLimiters[ip] = limiter
	}
	return limiter
}

// startSessionSweeper periodically purges expired sessions
func (s *Server) startSessionSweeper() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.users.SweepExpiredSessions()
				if err != nil {
					if db.IsDatabaseClosed(err) {
						// Shutdown closed the database under us.
						return
					}
					s.logger.Warnw("Session sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					s.logger.Infow("Swept expired sessions", "removed", removed)
				}
			}
		}
	}()
}

// shortID truncates an ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// clientAddr extracts the client IP portion of a remote address
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
