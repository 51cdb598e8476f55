package engine

import (
	"fmt"
	"sort"

	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/economy"
)

// Trend is one row of the research table, indexed by a 3d6 sum.
type Trend struct {
	Sum          int    `json:"sum"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PrestigeCost int    `json:"prestige_cost"`

	// check validates the activation parameters without mutating anything.
	check func(r *rules, actor *Player, a ActivateTrend) error
	apply func(r *rules, actor *Player, a ActivateTrend) string
}

var noEffect = Trend{Name: "No effect", Description: "Nothing happens."}

var trendTable = map[int]Trend{
	3: {Name: "Economic boom", Description: "Every player gains 15 money.",
		apply: func(r *rules, _ *Player, _ ActivateTrend) string {
			for _, p := range r.g.SeatedPlayers() {
				p.Money += 15
			}
			return "every player gains 15"
		}},
	4: {Name: "Technical innovation", Description: "One of your designs costs 1 less (minimum 1).",
		check: checkOwnDesign,
		apply: func(r *rules, actor *Player, a ActivateTrend) string {
			d := actor.Design(a.DesignID)
			if d == nil && len(actor.Designs) > 0 {
				d = actor.Designs[0]
			}
			if d == nil {
				return "no design to improve"
			}
			d.Cost = max(1, d.Cost-1)
			return fmt.Sprintf("%s now costs %d", d.ID, d.Cost)
		}},
	5: {Name: "Influencer endorsement", Description: "Your products gain 1 popularity.",
		apply: func(r *rules, actor *Player, _ ActivateTrend) string {
			n := actor.Market.BumpPopularity(nil, 1)
			return fmt.Sprintf("%d products gain popularity", n)
		}},
	6: {Name: "Pollution campaign", Description: "Market pollution falls by 2.",
		apply: func(r *rules, _ *Player, _ ActivateTrend) string {
			r.g.MarketPollution = max(0, r.g.MarketPollution-2)
			return fmt.Sprintf("pollution now %d", r.g.MarketPollution)
		}},
	7: {Name: "Sustainability", Description: "Up to 3 popularity steps on chosen products, or +1 on all of yours.", PrestigeCost: 1,
		check: func(r *rules, _ *Player, a ActivateTrend) error {
			if len(a.ProductIDs) > 3 {
				return invalid("at most 3 products may be chosen")
			}
			for _, id := range a.ProductIDs {
				if r.findProduct(id) == nil {
					return invalid("product %s not found", id)
				}
			}
			return nil
		},
		apply: func(r *rules, actor *Player, a ActivateTrend) string {
			if len(a.ProductIDs) == 0 {
				n := actor.Market.BumpPopularity(nil, 1)
				return fmt.Sprintf("%d products gain popularity", n)
			}
			n := 0
			for _, id := range a.ProductIDs {
				p := r.findProduct(id)
				if s := r.g.shelfHolding(p); s != nil && s.ShiftPopularity(p, 1) {
					n++
				}
			}
			return fmt.Sprintf("%d popularity steps applied", n)
		}},
	8: {Name: "DIY boom", Description: "Every player's newest design costs 1 less (minimum 1).",
		apply: func(r *rules, _ *Player, _ ActivateTrend) string {
			n := 0
			for _, p := range r.g.SeatedPlayers() {
				if d := p.LatestDesign(); d != nil && d.Cost > 1 {
					d.Cost--
					n++
				}
			}
			return fmt.Sprintf("%d designs cheaper", n)
		}},
	9: {Name: "Inflation", Description: "Every non-resale listing rises 2 in price.",
		apply: func(r *rules, _ *Player, _ ActivateTrend) string {
			n := r.bumpAll(func(p *economy.Product) bool { return p.Listed() && !p.IsResale }, func(s economy.Shelf, f func(*economy.Product) bool) int {
				return s.BumpPrice(f, 2)
			})
			return fmt.Sprintf("%d listings repriced", n)
		}},
	10: shortVideoBoom,
	11: shortVideoBoom,
	12: {Name: "Telework", Description: "Listings priced 10 or less gain 1 popularity.",
		apply: func(r *rules, _ *Player, _ ActivateTrend) string {
			n := r.bumpAll(func(p *economy.Product) bool { return p.Listed() && p.Price <= 10 }, popularityUp)
			return fmt.Sprintf("%d listings gain popularity", n)
		}},
	13: {Name: "Gift demand", Description: "Listings with popularity 3 or less gain 1 popularity.",
		apply: func(r *rules, _ *Player, _ ActivateTrend) string {
			n := r.bumpAll(func(p *economy.Product) bool { return p.Listed() && p.Popularity <= 3 }, popularityUp)
			return fmt.Sprintf("%d listings gain popularity", n)
		}},
	14: {Name: "Greening", Description: "Market pollution falls by 3.", PrestigeCost: 3,
		apply: func(r *rules, _ *Player, _ ActivateTrend) string {
			r.g.MarketPollution = max(0, r.g.MarketPollution-3)
			return fmt.Sprintf("pollution now %d", r.g.MarketPollution)
		}},
	15: {Name: "Consumer distrust", Description: "Every other player loses 1 prestige.", PrestigeCost: 2,
		apply: func(r *rules, actor *Player, _ ActivateTrend) string {
			for _, p := range r.g.SeatedPlayers() {
				if p.ID != actor.ID {
					p.losePrestige(1)
				}
			}
			return "rivals lose 1 prestige"
		}},
	16: {Name: "Market opening", Description: "Gain a free design and list a free product from it at twice its cost.",
		apply: func(r *rules, actor *Player, _ ActivateTrend) string {
			if len(actor.Designs) >= MaxDesigns {
				return "design limit reached"
			}
			cost := dice.D6(r.dice)
			d := &economy.Design{ID: newID("design"), Cost: cost}
			actor.Designs = append(actor.Designs, d)
			p := newProduct(actor.ID, cost)
			if actor.Market.CanOccupy(p, economy.Cell{Price: cost * 2, Popularity: p.Popularity}) {
				p.Price = cost * 2
			}
			actor.Market = append(actor.Market, p)
			return fmt.Sprintf("free design %s (cost %d), product listed at %d", d.ID, cost, p.Price)
		}},
	17: {Name: "Smear campaign", Description: "Another player loses 3 prestige.", PrestigeCost: 2,
		check: func(r *rules, actor *Player, a ActivateTrend) error {
			if a.TargetPlayerID == "" {
				return nil
			}
			if r.g.Player(a.TargetPlayerID) == nil {
				return targetNotFound(a.TargetPlayerID)
			}
			if a.TargetPlayerID == actor.ID {
				return invalid("cannot smear yourself")
			}
			return nil
		},
		apply: func(r *rules, actor *Player, a ActivateTrend) string {
			victim := r.g.Player(a.TargetPlayerID)
			if victim == nil {
				var rivals []*Player
				for _, p := range r.g.SeatedPlayers() {
					if p.ID != actor.ID {
						rivals = append(rivals, p)
					}
				}
				if len(rivals) == 0 {
					return "no one to smear"
				}
				victim = rivals[r.dice.Roll(len(rivals))-1]
			}
			victim.losePrestige(3)
			return fmt.Sprintf("%s loses 3 prestige", victim.ID)
		}},
	18: {Name: "Market darling", Description: "You gain 5 prestige.",
		apply: func(r *rules, actor *Player, _ ActivateTrend) string {
			actor.Prestige += 5
			return "prestige +5"
		}},
}

var shortVideoBoom = Trend{
	Name:        "Short video boom",
	Description: "From now on every successful player resale earns 2 extra money.",
	apply: func(r *rules, _ *Player, _ ActivateTrend) string {
		r.g.ShortVideoBonus = true
		return "resale bonus active"
	},
}

func init() {
	for sum, t := range trendTable {
		t.Sum = sum
		trendTable[sum] = t
	}
}

func popularityUp(s economy.Shelf, f func(*economy.Product) bool) int {
	return s.BumpPopularity(f, 1)
}

func checkOwnDesign(_ *rules, actor *Player, a ActivateTrend) error {
	if a.DesignID != "" && actor.Design(a.DesignID) == nil {
		return invalid("design %s not owned", a.DesignID)
	}
	return nil
}

// LookupTrend returns the trend for a 3d6 sum. Sums outside the table have no
// effect.
func LookupTrend(sum int) Trend {
	if t, ok := trendTable[sum]; ok {
		return t
	}
	t := noEffect
	t.Sum = sum
	return t
}

// Trends returns the whole table ordered by sum.
func Trends() []Trend {
	out := make([]Trend, 0, len(trendTable))
	for _, t := range trendTable {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sum < out[j].Sum })
	return out
}

// bumpAll runs a shelf mutator over every seller's shelf.
func (r *rules) bumpAll(filter func(*economy.Product) bool, bump func(economy.Shelf, func(*economy.Product) bool) int) int {
	n := 0
	for _, s := range r.g.Shelves() {
		n += bump(s, filter)
	}
	return n
}

// findProduct looks a product up on every shelf.
func (r *rules) findProduct(id string) *economy.Product {
	for _, s := range r.g.Shelves() {
		if p := s.Find(id); p != nil {
			return p
		}
	}
	return nil
}

func (r *rules) activateTrend(actor *Player, a ActivateTrend) (string, error) {
	pending, ok := r.g.AvailableTrends[actor.ID]
	if !ok {
		return "", invalid("no researched trend to activate")
	}
	t := LookupTrend(pending.Sum)
	if actor.Prestige < t.PrestigeCost {
		return "", invalid("%s needs %d prestige, have %d", t.Name, t.PrestigeCost, actor.Prestige)
	}
	if t.check != nil {
		if err := t.check(r, actor, a); err != nil {
			return "", err
		}
	}
	actor.Prestige -= t.PrestigeCost
	result := "no effect"
	if t.apply != nil {
		result = t.apply(r, actor, a)
	}
	delete(r.g.AvailableTrends, actor.ID)
	return fmt.Sprintf("activated %s: %s", t.Name, result), nil
}
