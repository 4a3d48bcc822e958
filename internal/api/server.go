package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marcus/formsync/internal/airtable"
	"github.com/marcus/formsync/internal/serverdb"
	"github.com/marcus/formsync/internal/webhook"
)

// Server is the HTTP API server for formsync.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	metrics     *Metrics
	rateLimiter *RateLimiter
	oauth       *airtable.OAuth
	webhook     *webhook.Dispatcher
	cancel      context.CancelFunc
	background  sync.WaitGroup
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.OAuthStateTTL <= 0 {
		cfg.OAuthStateTTL = serverdb.DefaultOAuthStateTTL
	}

	s := &Server{
		config:      cfg,
		store:       store,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
		webhook:     webhook.NewDispatcher(cfg.WebhookURL, cfg.WebhookSecret),
	}
	if cfg.AirtableClientID != "" {
		s.oauth = airtable.NewOAuth(airtable.OAuthConfig{
			ClientID:     cfg.AirtableClientID,
			ClientSecret: cfg.AirtableClientSecret,
			RedirectURL:  cfg.AirtableRedirectURL,
			AuthURL:      cfg.AirtableAuthURL,
			TokenURL:     cfg.AirtableTokenURL,
		})
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("cleanup panic", "panic", r)
			}
		}()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()

	return nil
}

// cleanup drops expired OAuth states and old rate limit events.
func (s *Server) cleanup() {
	n, err := s.store.CleanupExpiredOAuthStates()
	if err != nil {
		slog.Error("cleanup expired oauth states", "err", err)
	} else if n > 0 {
		slog.Info("cleaned up expired oauth states", "count", n)
	}

	n, err = s.store.CleanupRateLimitEvents(s.config.RateLimitEventRetention)
	if err != nil {
		slog.Error("cleanup rate limit events", "err", err)
	} else if n > 0 {
		slog.Info("cleaned up rate limit events", "count", n)
	}
}

// Shutdown gracefully stops the server and waits for in-flight webhook deliveries.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown: background deliveries still running")
	}
	return err
}

// Handler returns the server's root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	other := s.config.RateLimitOther

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Users
	mux.HandleFunc("POST /v1/users", s.handleSignup)
	mux.HandleFunc("GET /v1/users/me", s.requireAuth(s.withRateLimit(s.handleGetMe, other)))
	mux.HandleFunc("PATCH /v1/users/me", s.requireAuth(s.withRateLimit(s.handleUpdateMe, other)))

	// Forms
	mux.HandleFunc("POST /v1/forms", s.requireAuth(s.withRateLimit(s.handleCreateForm, other)))
	mux.HandleFunc("GET /v1/forms", s.requireAuth(s.withRateLimit(s.handleListForms, other)))
	mux.HandleFunc("GET /v1/forms/{id}", s.withForm(s.handleGetForm))
	mux.HandleFunc("PUT /v1/forms/{id}", s.requireFormOwner(s.withRateLimit(s.handleUpdateForm, other)))
	mux.HandleFunc("DELETE /v1/forms/{id}", s.requireFormOwner(s.withRateLimit(s.handleDeleteForm, other)))

	// Fields
	mux.HandleFunc("POST /v1/forms/{id}/fields", s.requireFormOwner(s.withRateLimit(s.handleAddField, other)))
	mux.HandleFunc("PATCH /v1/forms/{id}/fields/{fieldID}", s.requireFormOwner(s.withRateLimit(s.handleUpdateField, other)))
	mux.HandleFunc("DELETE /v1/forms/{id}/fields/{fieldID}", s.requireFormOwner(s.withRateLimit(s.handleRemoveField, other)))
	mux.HandleFunc("POST /v1/forms/{id}/fields/{fieldID}/move", s.requireFormOwner(s.withRateLimit(s.handleMoveField, other)))

	// Conditional logic
	mux.HandleFunc("GET /v1/forms/{id}/references", s.withForm(s.handleReferences))
	mux.HandleFunc("POST /v1/forms/{id}/visible", s.withForm(s.handleVisible))
	mux.HandleFunc("GET /v1/forms/{id}/check", s.requireFormOwner(s.withRateLimit(s.handleCheckForm, other)))

	// Submissions
	mux.HandleFunc("POST /v1/forms/{id}/submissions", s.withForm(s.handleSubmit))
	mux.HandleFunc("GET /v1/forms/{id}/submissions", s.requireFormOwner(s.withRateLimit(s.handleListSubmissions, other)))
	mux.HandleFunc("POST /v1/submissions/{id}/sync", s.requireAuth(s.withRateLimit(s.handleResync, other)))

	// Airtable
	mux.HandleFunc("POST /v1/airtable/connect", s.requireAuth(s.withRateLimit(s.handleAirtableConnect, other)))
	mux.HandleFunc("GET /v1/airtable/callback", s.handleAirtableCallback)
	mux.HandleFunc("GET /v1/airtable/status", s.requireAuth(s.withRateLimit(s.handleAirtableStatus, other)))
	mux.HandleFunc("GET /v1/airtable/bases", s.requireAuth(s.withRateLimit(s.handleAirtableBases, other)))
	mux.HandleFunc("GET /v1/airtable/bases/{baseID}/tables", s.requireAuth(s.withRateLimit(s.handleAirtableTables, other)))
	mux.HandleFunc("DELETE /v1/airtable/connection", s.requireAuth(s.withRateLimit(s.handleAirtableDisconnect, other)))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		metricsMiddleware(s.metrics),
		loggingMiddleware,
		s.CORSMiddleware,
		maxBytesMiddleware(10<<20),
		publicRateLimitMiddleware(s.rateLimiter, s.config.RateLimitPublic, s.store),
	)
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// goBackground runs fn on its own goroutine, tracked for Shutdown.
func (s *Server) goBackground(name string, fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background panic", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}
