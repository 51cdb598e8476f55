package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/market-disruption/internal/economy"
)

// Regulation track constants.
const (
	RegulationTarget   = 9 // 2d6 needed for a campaign to succeed
	MaxRegulationLevel = 3
)

// StageForLevel maps a regulation level to its stage.
func StageForLevel(level int) RegulationStage {
	switch {
	case level <= 0:
		return StageNone
	case level == 1:
		return StagePublicComment
	case level == 2:
		return StageConsideration
	default:
		return StageEnforcement
	}
}

// Confiscation summarises the one-time enforcement sweep.
type Confiscation struct {
	Products int            `json:"products"`
	Fines    map[string]int `json:"fines"`
}

// advanceRegulation moves the track one step and returns a description.
func (r *rules) advanceRegulation() string {
	g := r.g
	if g.RegulationLevel >= MaxRegulationLevel {
		return "regulation already at maximum"
	}
	g.RegulationLevel++
	g.RegulationStage = StageForLevel(g.RegulationLevel)
	g.RegulationStageRounds = 0
	slog.Info("regulation advanced", "match", g.ID, "level", g.RegulationLevel, "stage", g.RegulationStage)

	if g.RegulationStage != StageEnforcement {
		return fmt.Sprintf("regulation now %s", g.RegulationStage)
	}
	c := r.confiscate()
	r.logf(ActorSystem, "confiscation", "enforcement removed %d resale products; fines %v", c.Products, c.Fines)
	return fmt.Sprintf("regulation now %s; %d resale products confiscated", g.RegulationStage, c.Products)
}

// confiscate removes every resale product at the table and fines resellers
// min(history×2, money).
func (r *rules) confiscate() Confiscation {
	c := Confiscation{Fines: make(map[string]int)}
	isResale := func(p *economy.Product) bool { return p.IsResale }
	for _, p := range r.g.SeatedPlayers() {
		c.Products += len(p.Market.RemoveWhere(isResale))
		fine := min(p.ResaleHistory*2, p.Money)
		if fine > 0 {
			p.Money -= fine
			c.Fines[p.ID] = fine
		}
	}
	c.Products += len(r.g.Automata.Market.RemoveWhere(isResale))
	return c
}
