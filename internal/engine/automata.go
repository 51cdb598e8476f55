package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/economy"
)

// ManufacturerReport records one manufacturer automaton turn.
type ManufacturerReport struct {
	Roll     int    `json:"roll"`
	Mode     string `json:"mode"`
	Produced string `json:"produced,omitempty"`
	Reviewed int    `json:"reviewed,omitempty"`
	Repriced int    `json:"repriced,omitempty"`
}

// ResaleReport records one resale automaton turn.
type ResaleReport struct {
	Roll      int      `json:"roll,omitempty"`
	Mode      string   `json:"mode"`
	Purchased []string `json:"purchased,omitempty"`
	Spent     int      `json:"spent,omitempty"`
}

// rollUntil rerolls a d6 until accept holds.
func rollUntil(src dice.Source, accept func(int) bool) int {
	for {
		if v := dice.D6(src); accept(v) {
			return v
		}
	}
}

// runManufacturer plays the manufacturer automaton's turn.
func (r *rules) runManufacturer() ManufacturerReport {
	am := &r.g.Automata
	rep := ManufacturerReport{Roll: dice.Sum(r.dice, 2)}

	produce := func(cost, price int) *economy.Product {
		p := newProduct(economy.ManufacturerID, cost)
		p.Price = price
		am.Market = append(am.Market, p)
		rep.Produced = fmt.Sprintf("%s cost %d at %d", p.ID, cost, price)
		return p
	}

	switch {
	case rep.Roll <= 4:
		rep.Mode = "high-cost"
		cost := rollUntil(r.dice, func(v int) bool { return v >= 3 })
		produce(cost, cost*3)
		rep.Reviewed = r.reviewAll(r.g.Grid().HighestPriced(), -1)
	case rep.Roll <= 7:
		rep.Mode = "mid-cost"
		produce(3, 6)
	case rep.Roll <= 10:
		rep.Mode = "low-cost"
		cost := rollUntil(r.dice, func(v int) bool { return v <= 3 })
		produce(cost, cost*2)
		rep.Reviewed = r.reviewAll(r.g.Grid().CheapestOf(economy.ManufacturerID), 1)
	default:
		rep.Mode = "clearance"
		rep.Repriced = am.Market.BumpPrice(func(p *economy.Product) bool { return p.Listed() }, -2)
	}

	slog.Debug("manufacturer automata", "match", r.g.ID, "roll", rep.Roll, "mode", rep.Mode)
	r.logf(economy.ManufacturerID, rep.Mode, "rolled %d; %s", rep.Roll, rep.summary())
	return rep
}

func (rep ManufacturerReport) summary() string {
	s := "no change"
	switch {
	case rep.Produced != "":
		s = "produced " + rep.Produced
		if rep.Reviewed > 0 {
			s += fmt.Sprintf(", reviewed %d", rep.Reviewed)
		}
	case rep.Repriced > 0:
		s = fmt.Sprintf("cut %d prices by 2", rep.Repriced)
	}
	return s
}

// reviewAll shifts the popularity of every tied target, visiting them in the
// direction of travel. Moves blocked by an owner's occupied cell are skipped.
func (r *rules) reviewAll(targets []*economy.Product, delta int) int {
	sort.SliceStable(targets, func(i, j int) bool {
		if delta > 0 {
			return targets[i].Popularity > targets[j].Popularity
		}
		return targets[i].Popularity < targets[j].Popularity
	})
	n := 0
	for _, p := range targets {
		if s := r.g.shelfHolding(p); s != nil && s.ShiftPopularity(p, delta) {
			n++
		}
	}
	return n
}

// resaleCandidate is a listing the resale automaton may buy.
type resaleCandidate struct {
	product *economy.Product
	shelf   *economy.Shelf
}

// runResale plays the resale automaton's turn.
func (r *rules) runResale() ResaleReport {
	g := r.g
	am := &g.Automata

	if g.RegulationStage == StageEnforcement && g.RegulationStageRounds < 2 {
		r.log(economy.ResaleAutomatonID, "suspended", "resale suspended under enforcement")
		return ResaleReport{Mode: "suspended"}
	}
	if am.ResaleMoney < ResaleBudget {
		am.ResaleMoney = ResaleBudget
	}

	rep := ResaleReport{Roll: dice.Sum(r.dice, 2)}
	if rep.Roll >= 6 && rep.Roll <= 8 {
		rep.Mode = "wait"
		r.logf(economy.ResaleAutomatonID, rep.Mode, "rolled %d; waits", rep.Roll)
		return rep
	}

	var candidates []resaleCandidate
	for _, p := range g.SeatedPlayers() {
		for _, prod := range p.Market.Listed() {
			if prod.Price <= am.ResaleMoney {
				candidates = append(candidates, resaleCandidate{prod, &p.Market})
			}
		}
	}
	for _, prod := range am.Market.Listed() {
		if prod.OwnerID == economy.ManufacturerID && prod.Price <= am.ResaleMoney {
			candidates = append(candidates, resaleCandidate{prod, &am.Market})
		}
	}

	var picks []resaleCandidate
	switch {
	case rep.Roll <= 4:
		rep.Mode = "mass"
		limit := 3
		if g.RegulationStage == StagePublicComment {
			limit = 2
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i].product, candidates[j].product
			if a.Price != b.Price {
				return a.Price < b.Price
			}
			return a.Popularity > b.Popularity
		})
		picks = candidates[:min(limit, len(candidates))]
	case rep.Roll == 5 || rep.Roll == 9:
		rep.Mode = "selective"
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i].product, candidates[j].product
			if a.Popularity != b.Popularity {
				return a.Popularity > b.Popularity
			}
			return a.Price < b.Price
		})
		picks = candidates[:min(1, len(candidates))]
	default:
		rep.Mode = "speculative"
		if len(candidates) > 0 {
			picks = []resaleCandidate{candidates[r.dice.Roll(len(candidates))-1]}
		}
	}

	bonus := 5
	if rep.Roll >= 10 {
		bonus = 8
	}
	for _, c := range picks {
		p := c.product
		if p.Price > am.ResaleMoney {
			continue
		}
		am.ResaleMoney -= p.Price
		rep.Spent += p.Price
		r.payOwner(p.OwnerID, p.Price)
		c.shelf.Remove(p.ID)
		price := stageResaleCap(g.RegulationStage, p.Price, p.Price+bonus)
		am.Market = append(am.Market, relist(p, economy.ResaleAutomatonID, price))
		g.MarketPollution++
		rep.Purchased = append(rep.Purchased, p.ID)
	}

	slog.Debug("resale automata", "match", g.ID, "roll", rep.Roll, "mode", rep.Mode, "bought", len(rep.Purchased))
	r.logf(economy.ResaleAutomatonID, rep.Mode, "rolled %d; bought %d for %d", rep.Roll, len(rep.Purchased), rep.Spent)
	return rep
}
