// Market Disruption rules engine: entity model.
package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/talgya/market-disruption/internal/economy"
)

// Per-player limits and starting values.
const (
	MaxPlayers       = 4
	MaxDesigns       = 6
	MaxActionPoints  = 3
	StartingMoney    = 30
	StartingPrestige = 5
	StartingDesigns  = 2
	PrestigeFloor    = -5 // penalties never push prestige below this
	ResaleBudget     = 20 // resale automaton is topped up to this each turn
)

// AutomataTarget addresses the shared automata market in purchase, resale and
// review actions.
const AutomataTarget = "automata"

// Phase is where a match is in its round cycle.
type Phase uint8

const (
	PhaseLobby Phase = iota
	PhaseSetup
	PhaseAction
	PhaseAutomata
	PhaseMarket
	PhaseVictory
)

var phaseNames = [...]string{"lobby", "setup", "action", "automata", "market", "victory"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// RegulationStage is the anti-resale regulation track position.
type RegulationStage uint8

const (
	StageNone RegulationStage = iota
	StagePublicComment
	StageConsideration
	StageEnforcement
)

var stageNames = [...]string{"none", "public_comment", "consideration", "enforcement"}

func (s RegulationStage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

func (s RegulationStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RegulationStage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = RegulationStage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown regulation stage %q", b)
}

// Player is one seat at the table.
type Player struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Money         int               `json:"money"`
	Prestige      int               `json:"prestige"`
	ResaleHistory int               `json:"resale_history"` // never decreases
	ActionPoints  int               `json:"action_points"`
	Designs       []*economy.Design `json:"designs"`
	Market        economy.Shelf     `json:"market"`

	// Round of the last prestige purchase (0 = never).
	LastPrestigePurchase int `json:"last_prestige_purchase,omitempty"`
}

// Design returns the player's design with the given ID, or nil.
func (p *Player) Design(id string) *economy.Design {
	for _, d := range p.Designs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// RemoveDesign deletes a design and reports whether it existed.
func (p *Player) RemoveDesign(id string) bool {
	for i, d := range p.Designs {
		if d.ID == id {
			p.Designs = append(p.Designs[:i], p.Designs[i+1:]...)
			return true
		}
	}
	return false
}

// LatestDesign returns the most recently added design, or nil.
func (p *Player) LatestDesign() *economy.Design {
	if len(p.Designs) == 0 {
		return nil
	}
	return p.Designs[len(p.Designs)-1]
}

// losePrestige applies a prestige penalty, floored at PrestigeFloor.
func (p *Player) losePrestige(n int) {
	p.Prestige -= n
	if p.Prestige < PrestigeFloor {
		p.Prestige = PrestigeFloor
	}
}

// AutomataState holds the two automata. They share one market shelf; each
// product's OwnerID says which automaton listed it.
type AutomataState struct {
	ManufacturerMoney int           `json:"manufacturer_money"`
	ResaleMoney       int           `json:"resale_money"`
	Market            economy.Shelf `json:"market"`
}

// PendingTrend is a researched trend waiting to be activated.
type PendingTrend struct {
	Sum  int    `json:"sum"`
	Name string `json:"name"`
}

// GameState is the whole mutable aggregate of one match.
type GameState struct {
	ID          string             `json:"id"`
	Players     map[string]*Player `json:"players"`
	Seats       []string           `json:"seats"` // player IDs in turn order
	CurrentSeat int                `json:"current_seat"`
	Round       int                `json:"round"`
	Phase       Phase              `json:"phase"`

	MarketPollution       int             `json:"market_pollution"`
	RegulationLevel       int             `json:"regulation_level"`
	RegulationStage       RegulationStage `json:"regulation_stage"`
	RegulationStageRounds int             `json:"regulation_stage_rounds"`
	ShortVideoBonus       bool            `json:"short_video_bonus"`

	Automata        AutomataState           `json:"automata"`
	AvailableTrends map[string]PendingTrend `json:"available_trends"`
	Orders          []*Order                `json:"orders"` // pending manufacturing orders
	PlayLog         []PlayLogEntry          `json:"play_log"`

	GameEnded bool   `json:"game_ended"`
	Winner    string `json:"winner,omitempty"`
}

// NewGameState returns an empty lobby.
func NewGameState(id string) *GameState {
	return &GameState{
		ID:              id,
		Players:         make(map[string]*Player),
		Round:           1,
		Phase:           PhaseLobby,
		RegulationStage: StageNone,
		Automata: AutomataState{
			ManufacturerMoney: math.MaxInt,
			ResaleMoney:       ResaleBudget,
		},
		AvailableTrends: make(map[string]PendingTrend),
	}
}

// Player returns a player by ID, or nil.
func (g *GameState) Player(id string) *Player {
	return g.Players[id]
}

// SeatedPlayers returns players in turn order.
func (g *GameState) SeatedPlayers() []*Player {
	out := make([]*Player, 0, len(g.Seats))
	for _, id := range g.Seats {
		if p, ok := g.Players[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// CurrentPlayerID returns whose turn it is, or "" outside the action phase.
func (g *GameState) CurrentPlayerID() string {
	if g.Phase != PhaseAction || len(g.Seats) == 0 {
		return ""
	}
	return g.Seats[g.CurrentSeat%len(g.Seats)]
}

// Shelves returns every seller's shelf: players in seat order, then automata.
func (g *GameState) Shelves() []economy.Shelf {
	out := make([]economy.Shelf, 0, len(g.Seats)+1)
	for _, p := range g.SeatedPlayers() {
		out = append(out, p.Market)
	}
	return append(out, g.Automata.Market)
}

// Grid indexes every listing in the match.
func (g *GameState) Grid() *economy.Grid {
	return economy.NewGrid(g.Shelves()...)
}

// shelfOf resolves a seller ID (player ID, "automata" or an automaton ID) to
// the shelf holding its products.
func (g *GameState) shelfOf(sellerID string) (*economy.Shelf, bool) {
	if sellerID == AutomataTarget || economy.IsAutomaton(sellerID) {
		return &g.Automata.Market, true
	}
	if p, ok := g.Players[sellerID]; ok {
		return &p.Market, true
	}
	return nil, false
}

// shelfHolding returns the shelf a product lives on, by owner.
func (g *GameState) shelfHolding(p *economy.Product) *economy.Shelf {
	s, ok := g.shelfOf(p.OwnerID)
	if !ok {
		return nil
	}
	return s
}

// FindOrder returns a pending order by ID, or nil.
func (g *GameState) FindOrder(id string) *Order {
	for _, o := range g.Orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (g *GameState) removeOrder(id string) {
	for i, o := range g.Orders {
		if o.ID == id {
			g.Orders = append(g.Orders[:i], g.Orders[i+1:]...)
			return
		}
	}
}

// findDesign locates a design anywhere at the table and returns its owner.
func (g *GameState) findDesign(id string) (*economy.Design, *Player) {
	for _, p := range g.SeatedPlayers() {
		if d := p.Design(id); d != nil {
			return d, p
		}
	}
	return nil, nil
}

// Clone returns a deep copy.
func (g *GameState) Clone() *GameState {
	b, err := json.Marshal(g)
	if err != nil {
		panic(fmt.Sprintf("engine: clone game state: %v", err))
	}
	var out GameState
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("engine: clone game state: %v", err))
	}
	if out.Players == nil {
		out.Players = make(map[string]*Player)
	}
	if out.AvailableTrends == nil {
		out.AvailableTrends = make(map[string]PendingTrend)
	}
	return &out
}

// CheckVictory reports whether a player has won:
// (prestige ≥ 17 and money ≥ 75) or money ≥ 150.
func CheckVictory(p *Player) bool {
	return (p.Prestige >= 17 && p.Money >= 75) || p.Money >= 150
}
