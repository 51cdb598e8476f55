// Package api serves matches over HTTP.
// GET endpoints are public. Game POSTs are rate limited per client IP; the
// round-advance endpoint additionally requires the admin bearer token.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/talgya/market-disruption/internal/config"
	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/engine"
	"github.com/talgya/market-disruption/internal/entropy"
	"github.com/talgya/market-disruption/internal/persistence"
)

// Server serves matches over HTTP.
type Server struct {
	DB       *persistence.DB // nil runs without persistence
	Addr     string
	AdminKey string // Bearer token for admin endpoints. Empty = admin disabled.

	// SaveEvery writes a snapshot after every mutation. When false the owner
	// calls SaveAll on its own schedule.
	SaveEvery bool

	// NewDice returns the random source for a new match.
	NewDice func() dice.Source

	started time.Time
	origins map[string]bool
	limiter *ipLimiter

	mu      sync.RWMutex
	matches map[string]*matchEntry

	upgrader websocket.Upgrader
}

// New builds a server from configuration.
func New(cfg config.Server, db *persistence.DB) *Server {
	s := &Server{
		DB:        db,
		Addr:      cfg.Addr,
		AdminKey:  cfg.AdminKey,
		SaveEvery: cfg.SaveEvery,
		NewDice:   diceFactory(cfg.Seed, entropy.NewClient(cfg.RandomOrg)),
		started:   time.Now(),
		origins: map[string]bool{
			"http://localhost:5173": true,
			"http://localhost:4173": true,
			"http://localhost:3000": true,
		},
		limiter: newIPLimiter(cfg.RateLimit, cfg.RateBurst),
		matches: make(map[string]*matchEntry),
	}
	for _, origin := range cfg.Origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			s.origins[origin] = true
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// diceFactory hands out one source per match. A fixed seed makes every match
// of a server run replayable: the n-th match gets seed+n. Otherwise each
// match is seeded from entropy.
func diceFactory(seed int64, ent *entropy.Client) func() dice.Source {
	if seed == 0 {
		return func() dice.Source {
			src := dice.NewSeeded(ent.Seed())
			slog.Debug("match seeded", "seed", src.Seed(), "random_org", ent.Enabled())
			return src
		}
	}
	var mu sync.Mutex
	n := int64(0)
	return func() dice.Source {
		mu.Lock()
		defer mu.Unlock()
		src := dice.NewSeeded(seed + n)
		n++
		return src
	}
}

// Router returns the HTTP handler with every route and middleware attached.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/matches", s.handleListMatches).Methods(http.MethodGet)
	api.HandleFunc("/matches", s.handleCreateMatch).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods(http.MethodGet)
	api.HandleFunc("/matches/{id}/join", s.handleJoin).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/actions", s.handleAction).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/end-turn", s.handleEndTurn).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/advance", s.adminOnly(s.handleAdvance)).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/log", s.handleLog).Methods(http.MethodGet)
	api.HandleFunc("/matches/{id}/stream", s.handleStream).Methods(http.MethodGet)

	// Preflight requests are answered by the CORS middleware.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	return r
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "", "persistence", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.origins[origin]
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no MD_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	total, live := len(s.matches), 0
	for _, e := range s.matches {
		e.mu.Lock()
		if !e.match.State().GameEnded {
			live++
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "Market Disruption",
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"matches":     total,
		"live":        live,
		"persistence": s.DB != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// errorBody is the JSON shape of every error response from a game endpoint.
type errorBody struct {
	Code     engine.Code       `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// statusFor maps an engine error code to an HTTP status.
func statusFor(code engine.Code) int {
	switch code {
	case engine.CodeInvalidMove:
		return http.StatusUnprocessableEntity
	case engine.CodePlayerNotFound, engine.CodeTargetNotFound, codeMatchNotFound:
		return http.StatusNotFound
	case engine.CodeUnknownAction, engine.CodeBadRequest:
		return http.StatusBadRequest
	case engine.CodeNotYourTurn, engine.CodeNotStarted:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	var body errorBody
	var e *engine.Error
	if errors.Is(err, engine.ErrPlayerCount) {
		body = errorBody{Code: engine.CodeBadRequest, Message: err.Error()}
	} else if errors.As(err, &e) {
		body = errorBody{Code: e.Code, Message: e.Message, Metadata: e.Metadata}
	} else {
		body = errorBody{Code: engine.CodeOf(err), Message: err.Error()}
	}
	status := statusFor(body.Code)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: engine.CodeBadRequest, Message: msg})
}
