package engine

import (
	"testing"

	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/economy"
)

func TestManufacturerBands(t *testing.T) {
	t.Run("high cost reviews the priciest listings", func(t *testing.T) {
		m, src := newTestMatch(t, 2, 2, 2, 2, 2)
		a := product("0", 5, 20, 3)
		b := product("1", 5, 20, 4)
		stock(m.State().Player("0"), a)
		stock(m.State().Player("1"), b)
		src.Push(1, 2, 2, 5)

		rep := m.rules().runManufacturer()
		if rep.Roll != 3 || rep.Mode != "high-cost" || rep.Reviewed != 2 {
			t.Fatalf("got %+v, want roll 3 high-cost reviewed 2", rep)
		}
		if a.Popularity != 2 || b.Popularity != 3 {
			t.Fatalf("got popularities %d %d, want 2 3", a.Popularity, b.Popularity)
		}
		am := m.State().Automata.Market
		if len(am) != 1 || am[0].Cost != 5 || am[0].Price != 15 || am[0].OwnerID != economy.ManufacturerID {
			t.Fatalf("got automata market %+v", am)
		}
	})
	t.Run("mid cost", func(t *testing.T) {
		m, src := newTestMatch(t, 1, 2, 2)
		src.Push(3, 3)
		rep := m.rules().runManufacturer()
		am := m.State().Automata.Market
		if rep.Mode != "mid-cost" || len(am) != 1 || am[0].Cost != 3 || am[0].Price != 6 || am[0].Popularity != 1 {
			t.Fatalf("got %+v market %+v", rep, am)
		}
	})
	t.Run("low cost promotes its cheapest", func(t *testing.T) {
		m, src := newTestMatch(t, 1, 2, 2)
		old := product(economy.ManufacturerID, 5, 10, 1)
		stockAutomata(m, old)
		src.Push(4, 5, 6, 2)
		rep := m.rules().runManufacturer()
		am := m.State().Automata.Market
		if rep.Mode != "low-cost" || len(am) != 2 {
			t.Fatalf("got %+v market %d", rep, len(am))
		}
		made := am[1]
		if made.Cost != 2 || made.Price != 4 || made.Popularity != 2 || old.Popularity != 1 {
			t.Fatalf("got new %+v old popularity %d", made, old.Popularity)
		}
	})
	t.Run("clearance", func(t *testing.T) {
		m, src := newTestMatch(t, 1, 2, 2)
		mine := product(economy.ManufacturerID, 3, 5, 1)
		resold := resaleProduct(economy.ResaleAutomatonID, 1, 2, 1)
		theirs := product("0", 2, 5, 1)
		stockAutomata(m, mine, resold)
		stock(m.State().Player("0"), theirs)
		src.Push(6, 6)
		rep := m.rules().runManufacturer()
		if rep.Mode != "clearance" || len(m.State().Automata.Market) != 2 {
			t.Fatalf("got %+v", rep)
		}
		if mine.Price != 3 || resold.Price != 1 || theirs.Price != 5 {
			t.Fatalf("got prices %d %d %d, want 3 1 5", mine.Price, resold.Price, theirs.Price)
		}
	})
}

func TestResaleAutomaton(t *testing.T) {
	seller := func(t *testing.T, prods ...*economy.Product) (*Match, *Player, *dice.Script) {
		m, src := newTestMatch(t, 2, 2, 2, 2, 2)
		p := m.State().Player("1")
		stock(p, prods...)
		return m, p, src
	}

	t.Run("suspended early in enforcement", func(t *testing.T) {
		m, src := newTestMatch(t, 1, 2, 2)
		g := m.State()
		g.RegulationStage, g.RegulationLevel, g.RegulationStageRounds = StageEnforcement, 3, 1
		if rep := m.rules().runResale(); rep.Mode != "suspended" {
			t.Fatalf("got mode %s, want suspended", rep.Mode)
		}
		if src.Remaining() != 0 {
			t.Fatalf("suspended automaton rolled dice")
		}
	})
	t.Run("waits and tops up budget", func(t *testing.T) {
		m, src := newTestMatch(t, 1, 2, 2)
		g := m.State()
		g.RegulationStage, g.RegulationLevel, g.RegulationStageRounds = StageEnforcement, 3, 2
		g.Automata.ResaleMoney = 3
		src.Push(3, 4)
		if rep := m.rules().runResale(); rep.Mode != "wait" {
			t.Fatalf("got mode %s, want wait", rep.Mode)
		}
		if g.Automata.ResaleMoney != ResaleBudget {
			t.Fatalf("got budget %d, want %d", g.Automata.ResaleMoney, ResaleBudget)
		}
	})
	t.Run("mass buy", func(t *testing.T) {
		m, p, src := seller(t, product("1", 1, 3, 1), product("1", 1, 5, 2), product("1", 1, 7, 3), product("1", 1, 9, 4))
		src.Push(1, 1)
		rep := m.rules().runResale()
		g := m.State()
		if rep.Mode != "mass" || len(rep.Purchased) != 3 || rep.Spent != 15 {
			t.Fatalf("got %+v", rep)
		}
		if g.Automata.ResaleMoney != 5 || p.Money != 45 || len(p.Market) != 1 || g.MarketPollution != 3 {
			t.Fatalf("got budget %d seller %d left %d pollution %d", g.Automata.ResaleMoney, p.Money, len(p.Market), g.MarketPollution)
		}
		for i, want := range []int{8, 10, 12} {
			r := g.Automata.Market[i]
			if !r.IsResale || r.OwnerID != economy.ResaleAutomatonID || r.Price != want || r.OriginalOwnerID != "1" {
				t.Fatalf("relisting %d: got %+v, want price %d", i, r, want)
			}
		}
	})
	t.Run("public comment limits mass buy", func(t *testing.T) {
		m, _, src := seller(t, product("1", 1, 3, 1), product("1", 1, 5, 2), product("1", 1, 7, 3))
		m.State().RegulationStage, m.State().RegulationLevel = StagePublicComment, 1
		src.Push(2, 2)
		if rep := m.rules().runResale(); len(rep.Purchased) != 2 || rep.Spent != 8 {
			t.Fatalf("got %+v, want 2 purchases for 8", rep)
		}
	})
	t.Run("mass buy breaks price ties by popularity", func(t *testing.T) {
		cheap := product("1", 1, 3, 1)
		plain := product("1", 1, 4, 1)
		liked := product("1", 1, 4, 3)
		m, _, src := seller(t, plain, cheap, liked)
		m.State().RegulationStage, m.State().RegulationLevel = StagePublicComment, 1
		src.Push(2, 2)
		rep := m.rules().runResale()
		if len(rep.Purchased) != 2 || rep.Purchased[0] != cheap.ID || rep.Purchased[1] != liked.ID {
			t.Fatalf("got %v, want [%s %s]", rep.Purchased, cheap.ID, liked.ID)
		}
		if rep.Spent != 7 {
			t.Fatalf("got spent %d, want 7", rep.Spent)
		}
	})
	t.Run("selective takes most popular", func(t *testing.T) {
		want := product("1", 1, 3, 5)
		m, _, src := seller(t, product("1", 1, 4, 2), product("1", 1, 6, 5), want)
		src.Push(2, 3)
		rep := m.rules().runResale()
		if rep.Mode != "selective" || len(rep.Purchased) != 1 || rep.Purchased[0] != want.ID {
			t.Fatalf("got %+v, want %s", rep, want.ID)
		}
		if got := m.State().Automata.Market[0].Price; got != 8 {
			t.Fatalf("got relist price %d, want 8", got)
		}
	})
	t.Run("speculative uses the dice", func(t *testing.T) {
		second := product("1", 2, 6, 1)
		m, _, src := seller(t, product("1", 1, 4, 1), second)
		stockAutomata(m, product(economy.ManufacturerID, 3, 6, 1))
		src.Push(5, 5, 2)
		rep := m.rules().runResale()
		if rep.Mode != "speculative" || len(rep.Purchased) != 1 || rep.Purchased[0] != second.ID {
			t.Fatalf("got %+v, want %s", rep, second.ID)
		}
		relisted := m.State().Automata.Market[1]
		if relisted.Price != 14 {
			t.Fatalf("got relist price %d, want 14", relisted.Price)
		}
	})
	t.Run("ignores unaffordable and its own listings", func(t *testing.T) {
		m, _, src := seller(t, product("1", 6, 25, 1))
		stockAutomata(m, resaleProduct(economy.ResaleAutomatonID, 1, 2, 1))
		src.Push(1, 1)
		if rep := m.rules().runResale(); len(rep.Purchased) != 0 || m.State().MarketPollution != 0 {
			t.Fatalf("got %+v", rep)
		}
	})
	t.Run("regulation caps relist price", func(t *testing.T) {
		m, _, src := seller(t, product("1", 1, 4, 1))
		m.State().RegulationStage, m.State().RegulationLevel = StageConsideration, 2
		src.Push(2, 3)
		m.rules().runResale()
		if got := m.State().Automata.Market[0].Price; got != 7 {
			t.Fatalf("got relist price %d, want 7", got)
		}
	})
}

func TestMarketClearing(t *testing.T) {
	m, src := newTestMatch(t, 1, 2, 2)
	g := m.State()
	g.MarketPollution = 3
	p := g.Player("0")
	low, slow := product("0", 1, 2, 1), product("0", 1, 7, 2)
	off := product("0", 2, 8, 6)
	stock(p,
		low,
		product("0", 1, 3, 6),
		product("0", 1, 4, 5),
		product("0", 1, 5, 4),
		product("0", 1, 6, 3),
		slow,
		off,
	)
	stockAutomata(m, product(economy.ManufacturerID, 1, 9, 6))
	src.Push(3, 4)

	rep := m.rules().runMarket()
	if rep.Demand != 7 || len(rep.Sales) != 5 || rep.Total != 14 {
		t.Fatalf("got demand %d sales %d total %d, want 7 5 14", rep.Demand, len(rep.Sales), rep.Total)
	}
	wantListed := []int{3, 9, 4, 5, 6}
	wantPaid := []int{2, 0, 3, 4, 5}
	for i, s := range rep.Sales {
		if s.Listed != wantListed[i] || s.Paid != wantPaid[i] {
			t.Fatalf("sale %d: got listed %d paid %d, want %d %d", i, s.Listed, s.Paid, wantListed[i], wantPaid[i])
		}
	}
	if p.Money != 44 || len(g.Automata.Market) != 0 {
		t.Fatalf("got money %d automata %d, want 44 0", p.Money, len(g.Automata.Market))
	}
	if len(p.Market) != 3 || p.Market.Find(low.ID) == nil || p.Market.Find(slow.ID) == nil || p.Market.Find(off.ID) == nil {
		t.Fatalf("wrong products left: %+v", p.Market)
	}
}

func TestMarketClearingFloorsPrice(t *testing.T) {
	m, src := newTestMatch(t, 1, 2, 2)
	g := m.State()
	g.MarketPollution = 12
	stock(g.Player("0"), product("0", 5, 1, 1), product("0", 5, 3, 1))
	src.Push(6, 6)
	rep := m.rules().runMarket()
	if rep.Total != 2 || g.Player("0").Money != 32 {
		t.Fatalf("got total %d money %d, want 2 32", rep.Total, g.Player("0").Money)
	}
}
