package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"dealercal/internal/backup"
	"dealercal/internal/calendar"
	"dealercal/internal/config"
	"dealercal/internal/importer"
	"dealercal/internal/layout"
	appLog "dealercal/internal/log"
	"dealercal/internal/model"
	"dealercal/internal/store"
)

// EventStore is the part of *store.Store the API uses.
type EventStore interface {
	Create(ev model.Event) (model.Event, error)
	Update(ev model.Event) (model.Event, error)
	Delete(id string) error
	Get(id string) (model.Event, error)
	InRange(from, to string) []model.Event
	Snapshot() store.Snapshot
	Restore(snap store.Snapshot) error
}

// Importer runs one ICS import; *importer.Importer satisfies it.
type Importer interface {
	Run(ctx context.Context, now time.Time) (importer.Report, error)
}

// Backups is the part of *backup.Repo the API uses.
type Backups interface {
	Save(ctx context.Context, label string, snap store.Snapshot) (backup.Meta, error)
	List(ctx context.Context, limit int) ([]backup.Meta, error)
	Load(ctx context.Context, id int64) (store.Snapshot, error)
	Delete(ctx context.Context, id int64) error
}

// Server provides the JSON API over the event store and the layout engine.
type Server struct {
	cfg      *config.Config
	store    EventStore
	importer Importer
	backups  Backups
	mux      *http.ServeMux
	now      func() time.Time

	// Last import report, served by GET /api/import.
	importMu   sync.RWMutex
	lastImport *importer.Report
}

// Option customises a Server.
type Option func(*Server)

// WithImporter enables POST /api/import.
func WithImporter(im Importer) Option {
	return func(s *Server) { s.importer = im }
}

// WithBackups enables the /api/backups endpoints.
func WithBackups(b Backups) Option {
	return func(s *Server) { s.backups = b }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st EventStore, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		mux:   http.NewServeMux(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve runs the HTTP server on addr until ctx is canceled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured with
// both a username and a password.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dealercal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/layout/week", s.handleWeekLayout)
	s.mux.HandleFunc("GET /api/layout/month", s.handleMonthLayout)

	s.mux.HandleFunc("GET /api/import", s.handleLastImport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)

	s.mux.HandleFunc("GET /api/backups", s.handleListBackups)
	s.mux.HandleFunc("POST /api/backups", s.handleCreateBackup)
	s.mux.HandleFunc("POST /api/backups/{id}/restore", s.handleRestoreBackup)
	s.mux.HandleFunc("DELETE /api/backups/{id}", s.handleDeleteBackup)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// layoutOptions builds layout.Options from config, with ?order= taking
// precedence.
func (s *Server) layoutOptions(r *http.Request) layout.Options {
	opts := layout.Options{MaxRows: s.cfg.Layout.MaxRows}
	if s.cfg.Layout.OpenEnd == "start" {
		opts.OpenEnd = layout.OpenEndAtStart
	}

	order := r.URL.Query().Get("order")
	if order == "" {
		order = s.cfg.Layout.Order
	}
	if order != "given" {
		opts.Order = layout.OrderByStart
	}
	return opts
}

func (s *Server) weekStart() time.Weekday {
	return calendar.ParseWeekStart(s.cfg.WeekStart)
}

func (s *Server) today() time.Time {
	return s.now().In(s.cfg.Location())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, store.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "store: "))
	default:
		appLog.Error("store operation failed", err)
		writeError(w, http.StatusInternalServerError, "store failure")
	}
}
