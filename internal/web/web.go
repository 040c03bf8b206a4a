package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"plannercal/internal/config"
	appLog "plannercal/internal/log"
	"plannercal/internal/model"
	"plannercal/internal/recurrence"
	"plannercal/internal/store"
)

// EventStore is the persistence the API needs.
type EventStore interface {
	List(ctx context.Context) ([]model.Event, error)
	ListWindow(ctx context.Context, start, end time.Time) ([]model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	Create(ctx context.Context, ev model.Event) (model.Event, error)
	Update(ctx context.Context, ev model.Event) (model.Event, error)
	Delete(ctx context.Context, id string) error
}

const (
	occurrencesCacheTTL = 30 * time.Second
	maxCachedWindows    = 64
)

// Server serves the events and occurrences API.
type Server struct {
	cfg      *config.Config
	store    EventStore
	expander recurrence.Expander
	loc      *time.Location
	mux      *http.ServeMux
	now      func() time.Time

	// Expanded responses keyed by query window. Any write clears it and
	// bumps cacheGen so expansions that raced the write are not stored.
	cacheMu  sync.RWMutex
	cache    map[recurrence.Window]*occurrencesCache
	cacheGen uint64
}

type occurrencesCache struct {
	result    recurrence.Result
	updatedAt time.Time
}

// NewServer constructs a Server.
func NewServer(cfg *config.Config, st EventStore) *Server {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", cfg.Timezone)
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		expander: recurrence.Expander{MaxOccurrences: cfg.MaxOccurrences},
		loc:      loc,
		mux:      http.NewServeMux(),
		now:      time.Now,
		cache:    make(map[recurrence.Window]*occurrencesCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Invalidate drops cached expansions, e.g. after a subscription refresh.
func (s *Server) Invalidate() {
	s.cacheMu.Lock()
	s.cache = make(map[recurrence.Window]*occurrencesCache)
	s.cacheGen++
	s.cacheMu.Unlock()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarICS)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	a := s.cfg.BasicAuth
	return a.Username != "" && (a.Password != "" || a.PasswordHash != "")
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	auth := *s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, auth.Username) || !checkPassword(auth, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="plannercal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func checkPassword(auth config.BasicAuthConfig, given string) bool {
	if auth.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(auth.PasswordHash), []byte(given)) == nil
	}
	return secureCompare(given, auth.Password)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// expand returns the expansion of window, served from the cache while fresh.
func (s *Server) expand(ctx context.Context, window recurrence.Window) (recurrence.Result, error) {
	now := s.now()

	s.cacheMu.RLock()
	c := s.cache[window]
	gen := s.cacheGen
	s.cacheMu.RUnlock()
	if c != nil && now.Sub(c.updatedAt) < occurrencesCacheTTL {
		return c.result, nil
	}

	events, err := s.store.ListWindow(ctx, window.Start, window.End)
	if err != nil {
		return recurrence.Result{}, err
	}
	res := s.expander.Run(events, window.Start, window.End)

	if len(res.Degraded) > 0 {
		appLog.Warn("malformed recurrence descriptors treated as non-recurring", "event_ids", res.Degraded)
	}
	if len(res.Truncated) > 0 {
		appLog.Info("recurring series stopped at safety ceiling", "event_ids", res.Truncated, "ceiling", s.cfg.MaxOccurrences)
	}

	s.storeCached(window, gen, &occurrencesCache{result: res, updatedAt: now})
	return res, nil
}

// storeCached keeps c unless a write happened since gen was read. Expired
// windows are dropped first; if the map is still full the new entry is
// not cached.
func (s *Server) storeCached(window recurrence.Window, gen uint64, c *occurrencesCache) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.cacheGen != gen {
		return
	}
	if len(s.cache) >= maxCachedWindows {
		for w, old := range s.cache {
			if c.updatedAt.Sub(old.updatedAt) >= occurrencesCacheTTL {
				delete(s.cache, w)
			}
		}
	}
	if len(s.cache) >= maxCachedWindows {
		return
	}
	s.cache[window] = c
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

// writeStoreError maps store failures to HTTP statuses.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	appLog.Error("store operation failed", err, "op", op)
	writeError(w, http.StatusInternalServerError, "internal error")
}
