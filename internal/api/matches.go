package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/talgya/market-disruption/internal/engine"
	"github.com/talgya/market-disruption/internal/persistence"
)

const codeMatchNotFound engine.Code = "MATCH_NOT_FOUND"

// matchEntry serialises access to one match. Every read and write of the
// match's state happens under mu.
type matchEntry struct {
	mu    sync.Mutex
	match *engine.Match
	subs  map[chan []byte]struct{}
}

// Register adds a match to the server, e.g. one resumed from the store.
func (s *Server) Register(m *engine.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID()] = &matchEntry{match: m, subs: make(map[chan []byte]struct{})}
}

func (s *Server) entry(id string) *matchEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[id]
}

func (s *Server) entries() []*matchEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*matchEntry, 0, len(s.matches))
	for _, e := range s.matches {
		out = append(out, e)
	}
	return out
}

// SaveAll writes a snapshot of every registered match.
func (s *Server) SaveAll() error {
	if s.DB == nil {
		return nil
	}
	var errs []error
	for _, e := range s.entries() {
		e.mu.Lock()
		err := s.DB.SaveMatch(e.match.State())
		e.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func matchNotFound(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusNotFound, errorBody{
		Code:     codeMatchNotFound,
		Message:  "no match " + strconv.Quote(id),
		Metadata: map[string]string{"match_id": id},
	})
}

// mutate runs fn against the match named in the route under its lock. On
// success the match is saved, subscribers receive the new state and fn's
// result is written with the given status.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, status int, fn func(m *engine.Match) (any, error)) {
	id := mux.Vars(r)["id"]
	e := s.entry(id)
	if e == nil {
		matchNotFound(w, id)
		return
	}

	e.mu.Lock()
	out, err := fn(e.match)
	if err != nil {
		e.mu.Unlock()
		writeError(w, err)
		return
	}
	s.afterMutation(e)
	body, err := json.MarshalIndent(out, "", "  ")
	e.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// afterMutation saves and broadcasts. Callers hold e.mu.
func (s *Server) afterMutation(e *matchEntry) {
	g := e.match.State()
	if s.SaveEvery && s.DB != nil {
		if err := s.DB.SaveMatch(g); err != nil {
			slog.Error("save match failed", "match", g.ID, "error", err)
		}
	}
	if len(e.subs) == 0 {
		return
	}
	frame, err := json.Marshal(g)
	if err != nil {
		slog.Error("encode match state failed", "match", g.ID, "error", err)
		return
	}
	for ch := range e.subs {
		select {
		case ch <- frame:
		default:
			// Slow reader; the next frame carries the full state anyway.
		}
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func summarize(g *engine.GameState) persistence.MatchSummary {
	return persistence.MatchSummary{
		ID:      g.ID,
		Round:   g.Round,
		Phase:   g.Phase.String(),
		Players: len(g.Seats),
		Ended:   g.GameEnded,
		Winner:  g.Winner,
	}
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)
	var out []persistence.MatchSummary
	for _, e := range s.entries() {
		e.mu.Lock()
		sum := summarize(e.match.State())
		e.mu.Unlock()
		seen[sum.ID] = true
		out = append(out, sum)
	}
	if s.DB != nil {
		stored, err := s.DB.ListMatches()
		if err != nil {
			writeError(w, err)
			return
		}
		for _, sum := range stored {
			if !seen[sum.ID] {
				out = append(out, sum)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []persistence.MatchSummary{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NumPlayers int `json:"num_players"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	id := "match-" + uuid.NewString()
	var m *engine.Match
	if req.NumPlayers == 0 {
		m = engine.New(id, s.NewDice())
	} else {
		var err error
		m, err = engine.NewMatch(id, req.NumPlayers, s.NewDice())
		if err != nil {
			writeError(w, err)
			return
		}
	}
	s.Register(m)
	slog.Info("match created", "match", id, "players", req.NumPlayers)

	e := s.entry(id)
	e.mu.Lock()
	s.afterMutation(e)
	body := m.Snapshot()
	e.mu.Unlock()
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if e := s.entry(id); e != nil {
		e.mu.Lock()
		snap := e.match.Snapshot()
		e.mu.Unlock()
		writeJSON(w, http.StatusOK, snap)
		return
	}
	// Finished matches are not resumed at startup but stay readable.
	if s.DB != nil {
		g, err := s.DB.LoadMatch(id)
		if err == nil {
			writeJSON(w, http.StatusOK, g)
			return
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			writeError(w, err)
			return
		}
	}
	matchNotFound(w, id)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	s.mutate(w, r, http.StatusCreated, func(m *engine.Match) (any, error) {
		return m.Join(req.Name)
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, http.StatusOK, func(m *engine.Match) (any, error) {
		if err := m.Start(); err != nil {
			return nil, err
		}
		return m.State(), nil
	})
}

type actionResponse struct {
	Result engine.Result     `json:"result"`
	State  *engine.GameState `json:"state"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req engine.ActionRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	s.mutate(w, r, http.StatusOK, func(m *engine.Match) (any, error) {
		if err := checkTurn(m.State(), req); err != nil {
			return nil, err
		}
		res, err := m.Do(req)
		if err != nil {
			return nil, err
		}
		return actionResponse{Result: res, State: m.State()}, nil
	})
}

// checkTurn rejects actions from seated players out of turn. Order responses
// are exempt: a contractor answers whenever the request reaches them.
func checkTurn(g *engine.GameState, req engine.ActionRequest) error {
	if g.Phase != engine.PhaseAction || g.GameEnded || g.Player(req.ActorID) == nil {
		return nil
	}
	if req.Type == engine.KindRespondToOrder {
		return nil
	}
	if cur := g.CurrentPlayerID(); cur != req.ActorID {
		return &engine.Error{
			Code:     engine.CodeNotYourTurn,
			Message:  "it is " + cur + "'s turn",
			Metadata: map[string]string{"current_player": cur},
		}
	}
	return nil
}

type roundResponse struct {
	Report *engine.RoundReport `json:"round_report,omitempty"`
	State  *engine.GameState   `json:"state"`
}

func (s *Server) handleEndTurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	s.mutate(w, r, http.StatusOK, func(m *engine.Match) (any, error) {
		rep, err := m.EndTurn(req.ActorID)
		if err != nil {
			return nil, err
		}
		return roundResponse{Report: rep, State: m.State()}, nil
	})
}

// handleAdvance forces the round to end regardless of whose turn it is.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, http.StatusOK, func(m *engine.Match) (any, error) {
		rep, err := m.EndRound()
		if err != nil {
			return nil, err
		}
		slog.Info("round advanced by admin", "match", m.ID(), "round", rep.Round)
		return roundResponse{Report: &rep, State: m.State()}, nil
	})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	if e := s.entry(id); e != nil {
		e.mu.Lock()
		log := e.match.State().PlayLog
		start := max(len(log)-limit, 0)
		out := append([]engine.PlayLogEntry{}, log[start:]...)
		e.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
		return
	}
	if s.DB != nil {
		out, err := s.DB.RecentLog(id, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(out) > 0 {
			writeJSON(w, http.StatusOK, out)
			return
		}
	}
	matchNotFound(w, id)
}
