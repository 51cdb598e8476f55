package playtest

import (
	"encoding/json"
	"math"
	"slices"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/market-disruption/internal/economy"
	"github.com/talgya/market-disruption/internal/engine"
)

// Markup bounds for listing prices, as multiples of manufacturing cost.
const (
	minMarkup = 1.5
	maxMarkup = 3.0
)

// Bot picks moves for any seat from an observed state. Its pricing
// temperament drifts smoothly from round to round along a noise field, so
// each seat has bullish and bearish stretches instead of a fixed markup.
type Bot struct {
	noise    opensimplex.Noise
	rejected map[rejection]bool
}

type rejection struct {
	player string
	round  int
	kind   engine.ActionKind
}

// NewBot creates a bot whose pricing is reproducible for seed.
func NewBot(seed int64) *Bot {
	return &Bot{
		noise:    opensimplex.NewNormalized(seed),
		rejected: make(map[rejection]bool),
	}
}

// Markup returns the price multiplier a seat uses in a round.
func (b *Bot) Markup(round, seat int) float64 {
	n := b.noise.Eval2(float64(round)*0.35, float64(seat)*7.3)
	return minMarkup + (maxMarkup-minMarkup)*n
}

// Reject records that the server refused a move so the bot stops repeating
// it for the rest of the round.
func (b *Bot) Reject(playerID string, round int, kind engine.ActionKind) {
	b.rejected[rejection{playerID, round, kind}] = true
}

// Decide returns the next move for playerID. ok is false when the bot wants
// to end its turn.
func (b *Bot) Decide(g *engine.GameState, playerID string) (req engine.ActionRequest, ok bool) {
	p := g.Player(playerID)
	if p == nil || g.GameEnded || g.Phase != engine.PhaseAction {
		return engine.ActionRequest{}, false
	}
	can := func(kind engine.ActionKind) bool {
		return engine.Cost(kind) <= p.ActionPoints && !b.rejected[rejection{p.ID, g.Round, kind}]
	}
	move := func(a engine.Action) (engine.ActionRequest, bool) {
		params, _ := json.Marshal(a)
		return engine.ActionRequest{ActorID: p.ID, Type: a.Kind(), Params: params}, true
	}

	if t, pending := g.AvailableTrends[p.ID]; pending && can(engine.KindActivateTrend) &&
		p.Prestige >= engine.LookupTrend(t.Sum).PrestigeCost {
		return move(engine.ActivateTrend{})
	}

	if can(engine.KindSell) && p.Prestige > -3 {
		if sell, found := b.listing(g, p); found {
			return move(sell)
		}
	}

	switch {
	case p.Money < 20 && p.ActionPoints == engine.MaxActionPoints && can(engine.KindDayLabor):
		return move(engine.DayLabor{})
	case p.Money < 5 && can(engine.KindPartTimeWork):
		return move(engine.PartTimeWork{})
	}

	if p.Money >= 40 && p.LastPrestigePurchase != g.Round && can(engine.KindPurchasePrestige) {
		return move(engine.PurchasePrestige{})
	}

	if len(p.Designs) == 0 && can(engine.KindDesign) {
		return move(engine.Design{})
	}

	if d := cheapestDesign(p); d != nil && d.Cost <= p.Money && can(engine.KindManufacture) {
		return move(engine.Manufacture{DesignID: d.ID})
	}

	if _, pending := g.AvailableTrends[p.ID]; !pending && p.Money >= 10 && can(engine.KindResearch) {
		return move(engine.Research{})
	}
	return engine.ActionRequest{}, false
}

// listing prices the first unlisted product at the seat's current markup,
// stepping down until it finds a cell the player does not already hold.
func (b *Bot) listing(g *engine.GameState, p *engine.Player) (engine.Sell, bool) {
	seat := slices.Index(g.Seats, p.ID)
	for _, prod := range p.Market {
		if prod.Listed() {
			continue
		}
		ceiling := economy.MaxPrice(prod.Cost, p.Prestige)
		price := int(math.Round(float64(prod.Cost) * b.Markup(g.Round, seat)))
		price = max(1, min(price, ceiling))
		for ; price >= 1; price-- {
			cell := economy.Cell{Price: price, Popularity: prod.Popularity}
			if p.Market.CellFree(p.ID, cell, prod.ID) {
				return engine.Sell{ProductID: prod.ID, Price: price}, true
			}
		}
	}
	return engine.Sell{}, false
}

func cheapestDesign(p *engine.Player) *economy.Design {
	var best *economy.Design
	for _, d := range p.Designs {
		if best == nil || d.Cost < best.Cost {
			best = d
		}
	}
	return best
}
