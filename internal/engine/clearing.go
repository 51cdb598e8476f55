package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/economy"
)

// Sale is one product sold to the market.
type Sale struct {
	ProductID string `json:"product_id"`
	OwnerID   string `json:"owner_id"`
	Cost      int    `json:"cost"`
	Listed    int    `json:"listed"`
	Paid      int    `json:"paid"`
}

// MarketReport summarises one round of demand.
type MarketReport struct {
	Demand    int    `json:"demand"`
	Pollution int    `json:"pollution"`
	Sales     []Sale `json:"sales"`
	Total     int    `json:"total"` // paid to players
}

// runMarket rolls demand and sells the most popular eligible listings.
func (r *rules) runMarket() MarketReport {
	g := r.g
	rep := MarketReport{Demand: dice.Sum(r.dice, 2), Pollution: g.MarketPollution}

	eligible := g.Grid().Listed()
	n := 0
	for _, p := range eligible {
		if economy.ClearsOn(p.Cost, rep.Demand) {
			eligible[n] = p
			n++
		}
	}
	eligible = eligible[:n]
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.Price < b.Price
	})
	if len(eligible) > economy.MaxSoldPerRound {
		eligible = eligible[:economy.MaxSoldPerRound]
	}

	for _, p := range eligible {
		paid := economy.SalePrice(p.Price, g.MarketPollution)
		sale := Sale{ProductID: p.ID, OwnerID: p.OwnerID, Cost: p.Cost, Listed: p.Price}
		if owner := g.Player(p.OwnerID); owner != nil {
			owner.Money += paid
			sale.Paid = paid
			rep.Total += paid
		}
		if s := g.shelfHolding(p); s != nil {
			s.Remove(p.ID)
		}
		rep.Sales = append(rep.Sales, sale)
	}

	slog.Debug("market cleared", "match", g.ID, "round", g.Round, "demand", rep.Demand, "sold", len(rep.Sales))
	r.log(ActorMarket, "demand", fmt.Sprintf("demand %d; sold %d products, %d paid to players", rep.Demand, len(rep.Sales), rep.Total))
	return rep
}
