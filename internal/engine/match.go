package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/economy"
)

// ErrPlayerCount is returned when a match is set up with too few or too many seats.
var ErrPlayerCount = errors.New("engine: a match seats 1 to 4 players")

// Match owns one GameState for its lifetime and sequences its rounds.
// It does no locking; callers serialise access.
type Match struct {
	state *GameState
	dice  dice.Source
	now   func() time.Time
}

// Option configures a Match.
type Option func(*Match)

// WithClock sets the clock used to stamp play log entries.
func WithClock(now func() time.Time) Option {
	return func(m *Match) { m.now = now }
}

// New opens a lobby.
func New(id string, src dice.Source, opts ...Option) *Match {
	return Restore(NewGameState(id), src, opts...)
}

// NewMatch seats numPlayers players and starts the game.
func NewMatch(id string, numPlayers int, src dice.Source, opts ...Option) (*Match, error) {
	if numPlayers < 1 || numPlayers > MaxPlayers {
		return nil, ErrPlayerCount
	}
	m := New(id, src, opts...)
	for range numPlayers {
		if _, err := m.Join(""); err != nil {
			return nil, err
		}
	}
	if err := m.Start(); err != nil {
		return nil, err
	}
	return m, nil
}

// Restore resumes a match from saved state.
func Restore(state *GameState, src dice.Source, opts ...Option) *Match {
	m := &Match{state: state, dice: src, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.state.Players == nil {
		m.state.Players = make(map[string]*Player)
	}
	if m.state.AvailableTrends == nil {
		m.state.AvailableTrends = make(map[string]PendingTrend)
	}
	return m
}

// ID returns the match ID.
func (m *Match) ID() string { return m.state.ID }

// State returns the live state. Treat it as read-only.
func (m *Match) State() *GameState { return m.state }

// Snapshot returns a deep copy of the state.
func (m *Match) Snapshot() *GameState { return m.state.Clone() }

func (m *Match) rules() *rules {
	return &rules{g: m.state, dice: m.dice, now: m.now}
}

// Join adds a seat while the match is in the lobby. An empty name becomes
// "Player N".
func (m *Match) Join(name string) (*Player, error) {
	g := m.state
	if g.Phase != PhaseLobby {
		return nil, invalid("match %s already started", g.ID)
	}
	if len(g.Seats) >= MaxPlayers {
		return nil, invalid("match %s is full", g.ID)
	}
	id := strconv.Itoa(len(g.Seats))
	if name == "" {
		name = fmt.Sprintf("Player %d", len(g.Seats)+1)
	}
	p := &Player{ID: id, Name: name}
	g.Players[id] = p
	g.Seats = append(g.Seats, id)
	m.rules().logf(ActorSystem, "join", "%s joined as seat %s", name, id)
	return p, nil
}

// Start deals every seat its opening money, prestige and two designs.
func (m *Match) Start() error {
	g := m.state
	if g.Phase != PhaseLobby {
		return invalid("match %s already started", g.ID)
	}
	if len(g.Seats) == 0 {
		return ErrPlayerCount
	}
	g.Phase = PhaseSetup
	for _, p := range g.SeatedPlayers() {
		p.Money = StartingMoney
		p.Prestige = StartingPrestige
		p.ActionPoints = MaxActionPoints
		p.Designs = p.Designs[:0]
		for range StartingDesigns {
			p.Designs = append(p.Designs, &economy.Design{ID: newID("design"), Cost: dice.D6(m.dice)})
		}
	}
	g.Round = 1
	g.CurrentSeat = 0
	g.Phase = PhaseAction
	m.rules().logf(ActorSystem, "start", "game started with %d players", len(g.Seats))
	slog.Info("match started", "match", g.ID, "players", len(g.Seats))
	return nil
}

// Result is the outcome of a successful action.
type Result struct {
	Entry  PlayLogEntry `json:"entry"`
	Winner string       `json:"winner,omitempty"`
}

func (m *Match) actor(id string) (*Player, error) {
	g := m.state
	if g.Phase == PhaseLobby || g.Phase == PhaseSetup {
		return nil, &Error{Code: CodeNotStarted, Message: fmt.Sprintf("match %s has not started", g.ID)}
	}
	p := g.Player(id)
	if p == nil {
		return nil, playerNotFound(id)
	}
	if g.GameEnded {
		return nil, invalid("game is over")
	}
	if g.Phase != PhaseAction {
		return nil, invalid("actions not allowed in %s phase", g.Phase)
	}
	return p, nil
}

// Apply runs one action for actorID. On error the state is unchanged.
func (m *Match) Apply(actorID string, a Action) (Result, error) {
	p, err := m.actor(actorID)
	if err != nil {
		return Result{}, err
	}
	r := m.rules()
	details, err := r.dispatch(p, a)
	if err != nil {
		return Result{}, err
	}
	res := Result{Entry: r.log(p.ID, string(a.Kind()), details)}
	res.Winner = m.checkVictory()
	return res, nil
}

// Do decodes and applies a wire request.
func (m *Match) Do(req ActionRequest) (Result, error) {
	a, err := DecodeAction(req)
	if err != nil {
		return Result{}, err
	}
	return m.Apply(req.ActorID, a)
}

// EndTurn passes play to the next seat. After the last seat the round ends
// and its report is returned.
func (m *Match) EndTurn(actorID string) (*RoundReport, error) {
	p, err := m.actor(actorID)
	if err != nil {
		return nil, err
	}
	g := m.state
	if g.CurrentPlayerID() != p.ID {
		return nil, &Error{Code: CodeNotYourTurn, Message: fmt.Sprintf("it is %s's turn", g.CurrentPlayerID())}
	}
	m.rules().log(p.ID, "end_turn", "ended turn")
	g.CurrentSeat++
	if g.CurrentSeat < len(g.Seats) {
		return nil, nil
	}
	g.CurrentSeat = 0
	rep, err := m.EndRound()
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// RoundReport is what happened between two action phases.
type RoundReport struct {
	Round        int                `json:"round"`
	Manufacturer ManufacturerReport `json:"manufacturer"`
	Resale       ResaleReport       `json:"resale"`
	Market       MarketReport       `json:"market"`
	Winner       string             `json:"winner,omitempty"`
}

// EndRound runs the automata and market phases, then opens the next round.
func (m *Match) EndRound() (RoundReport, error) {
	g := m.state
	if g.GameEnded || g.Phase != PhaseAction {
		return RoundReport{}, invalid("cannot end round in %s phase", g.Phase)
	}
	r := m.rules()
	rep := RoundReport{Round: g.Round}

	g.Phase = PhaseAutomata
	rep.Manufacturer = r.runManufacturer()
	rep.Resale = r.runResale()

	g.Phase = PhaseMarket
	rep.Market = r.runMarket()

	g.Round++
	if g.RegulationStage != StageNone {
		g.RegulationStageRounds++
	}
	for _, p := range g.SeatedPlayers() {
		p.ActionPoints = MaxActionPoints
	}
	g.CurrentSeat = 0
	g.Phase = PhaseAction
	rep.Winner = m.checkVictory()

	slog.Info("round ended", "match", g.ID, "round", rep.Round, "demand", rep.Market.Demand,
		"sold", len(rep.Market.Sales), "pollution", g.MarketPollution)
	return rep, nil
}

// checkVictory ends the game for the first seat meeting a win condition.
func (m *Match) checkVictory() string {
	g := m.state
	if g.GameEnded {
		return g.Winner
	}
	for _, p := range g.SeatedPlayers() {
		if CheckVictory(p) {
			g.GameEnded = true
			g.Winner = p.ID
			g.Phase = PhaseVictory
			m.rules().logf(ActorSystem, "victory", "%s wins with %d money and %d prestige", p.Name, p.Money, p.Prestige)
			slog.Info("match won", "match", g.ID, "winner", p.ID, "round", g.Round)
			return p.ID
		}
	}
	return ""
}
