package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/economy"
)

// rules is everything a rule needs for one mutation: the state it operates
// on, the dice and the clock. It holds no state of its own.
type rules struct {
	g    *GameState
	dice dice.Source
	now  func() time.Time
}

func (r *rules) log(actor, action, details string) PlayLogEntry {
	e := PlayLogEntry{
		ID:        newID("log"),
		Round:     r.g.Round,
		Phase:     r.g.Phase,
		Actor:     actor,
		Action:    action,
		Details:   details,
		Timestamp: r.now().UnixMilli(),
	}
	r.g.PlayLog = append(r.g.PlayLog, e)
	return e
}

func (r *rules) logf(actor, action, format string, args ...any) PlayLogEntry {
	return r.log(actor, action, fmt.Sprintf(format, args...))
}

// newProduct creates an unlisted product for owner.
func newProduct(owner string, cost int) *economy.Product {
	return &economy.Product{
		ID:         newID("product"),
		Cost:       cost,
		Popularity: economy.MinPopularity,
		OwnerID:    owner,
	}
}

// seller resolves a target seller ID. Unknown IDs are structural errors.
func (r *rules) seller(targetID string) (*economy.Shelf, error) {
	s, ok := r.g.shelfOf(targetID)
	if !ok {
		return nil, targetNotFound(targetID)
	}
	return s, nil
}

// listedFrom finds a listed product on a seller's shelf.
func (r *rules) listedFrom(actor *Player, targetID, productID string) (*economy.Shelf, *economy.Product, error) {
	if targetID == actor.ID {
		return nil, nil, invalid("cannot buy from yourself")
	}
	shelf, err := r.seller(targetID)
	if err != nil {
		return nil, nil, err
	}
	p := shelf.Find(productID)
	if p == nil || !p.Listed() {
		return nil, nil, invalid("product %s is not listed by %s", productID, targetID)
	}
	return shelf, p, nil
}

// payOwner credits a sale to a player owner. Automata keep nothing.
func (r *rules) payOwner(ownerID string, amount int) {
	if p := r.g.Player(ownerID); p != nil {
		p.Money += amount
	}
}

// stageResaleCap narrows a resale price ceiling by regulation stage.
func stageResaleCap(stage RegulationStage, purchase, ceiling int) int {
	switch stage {
	case StageConsideration:
		return min(ceiling, purchase+3)
	case StageEnforcement:
		return min(ceiling, purchase+1)
	}
	return ceiling
}

// PlayerResaleCap is the highest price a player may relist a product bought
// at purchase.
func PlayerResaleCap(stage RegulationStage, purchase, history int) int {
	ceiling := min(economy.ResalePriceCap, purchase+economy.ResaleBonus(history))
	return stageResaleCap(stage, purchase, ceiling)
}

// dispatch runs one action for actor. Guards come first; nothing is mutated
// unless the action succeeds. It returns the log details.
func (r *rules) dispatch(actor *Player, a Action) (string, error) {
	cost, ok := actionCosts[a.Kind()]
	if !ok {
		return "", &Error{Code: CodeUnknownAction, Message: fmt.Sprintf("unknown action %q", a.Kind())}
	}
	if actor.ActionPoints < cost {
		return "", invalid("%s needs %d action points, have %d", a.Kind(), cost, actor.ActionPoints)
	}

	var (
		details string
		err     error
	)
	switch a := a.(type) {
	case Manufacture:
		details, err = r.manufacture(actor, a)
	case Sell:
		details, err = r.sell(actor, a)
	case Purchase:
		details, err = r.purchase(actor, a)
	case Resale:
		details, err = r.resale(actor, a)
	case Review:
		details, err = r.review(actor, a.TargetID, a.ProductID, a.Positive)
	case OutsourceReview:
		details, err = r.outsourceReview(actor, a)
	case Design:
		details, err = r.design(actor, a)
	case Research:
		details, err = r.research(actor)
	case ActivateTrend:
		details, err = r.activateTrend(actor, a)
	case PartTimeWork:
		actor.Money += 5
		details = "earned 5 from part-time work"
	case DayLabor:
		details, err = r.dayLabor(actor)
	case PurchasePrestige:
		details, err = r.purchasePrestige(actor)
	case PromoteRegulation:
		details, err = r.promoteRegulation(actor)
	case OutsourceManufacturing:
		details, err = r.outsourceManufacturing(actor, a)
	case RespondToOrder:
		details, err = r.respondToOrder(actor, a)
	case BuyBack:
		details, err = r.buyBack(actor, a)
	case Discontinue:
		details, err = r.discontinue(actor, a)
	default:
		return "", &Error{Code: CodeUnknownAction, Message: fmt.Sprintf("unhandled action %T", a)}
	}
	if err != nil {
		return "", err
	}
	actor.ActionPoints -= cost
	slog.Debug("action applied", "match", r.g.ID, "round", r.g.Round, "player", actor.ID, "action", a.Kind())
	return details, nil
}

func (r *rules) manufacture(actor *Player, a Manufacture) (string, error) {
	d := actor.Design(a.DesignID)
	if d == nil {
		return "", invalid("design %s not owned", a.DesignID)
	}
	if actor.Money < d.Cost {
		return "", invalid("manufacturing costs %d, have %d", d.Cost, actor.Money)
	}
	actor.Money -= d.Cost
	p := newProduct(actor.ID, d.Cost)
	actor.Market = append(actor.Market, p)
	return fmt.Sprintf("manufactured %s (cost %d)", p.ID, d.Cost), nil
}

func (r *rules) sell(actor *Player, a Sell) (string, error) {
	if actor.Prestige <= -3 {
		return "", invalid("prestige %d too low to sell", actor.Prestige)
	}
	p := actor.Market.Find(a.ProductID)
	if p == nil {
		return "", invalid("product %s not owned", a.ProductID)
	}
	if p.Listed() {
		return "", invalid("product %s already listed", a.ProductID)
	}
	limit := economy.MaxPrice(p.Cost, actor.Prestige)
	if a.Price < 1 || a.Price > limit {
		return "", invalid("price %d outside 1..%d", a.Price, limit)
	}
	cell := economy.Cell{Price: a.Price, Popularity: p.Popularity}
	if !actor.Market.CanOccupy(p, cell) {
		return "", invalid("cell price %d popularity %d already taken", cell.Price, cell.Popularity)
	}
	p.Price = a.Price
	return fmt.Sprintf("listed %s at %d", p.ID, a.Price), nil
}

func (r *rules) purchase(actor *Player, a Purchase) (string, error) {
	shelf, p, err := r.listedFrom(actor, a.TargetID, a.ProductID)
	if err != nil {
		return "", err
	}
	if actor.Money < p.Price {
		return "", invalid("price %d, have %d", p.Price, actor.Money)
	}
	actor.Money -= p.Price
	r.payOwner(p.OwnerID, p.Price)
	shelf.Remove(p.ID)
	return fmt.Sprintf("bought %s from %s for %d", p.ID, p.OwnerID, p.Price), nil
}

func (r *rules) resale(actor *Player, a Resale) (string, error) {
	if actor.Prestige < 1 {
		return "", invalid("prestige %d too low to resell", actor.Prestige)
	}
	shelf, p, err := r.listedFrom(actor, a.TargetID, a.ProductID)
	if err != nil {
		return "", err
	}
	if actor.Money < p.Price {
		return "", invalid("price %d, have %d", p.Price, actor.Money)
	}
	ceiling := PlayerResaleCap(r.g.RegulationStage, p.Price, actor.ResaleHistory)
	if a.Price < 1 || a.Price > ceiling {
		return "", invalid("resale price %d outside 1..%d", a.Price, ceiling)
	}
	if !actor.Market.CellFree(actor.ID, economy.Cell{Price: a.Price, Popularity: p.Popularity}, "") {
		return "", invalid("cell price %d popularity %d already taken", a.Price, p.Popularity)
	}

	actor.Money -= p.Price
	r.payOwner(p.OwnerID, p.Price)
	shelf.Remove(p.ID)
	relisted := relist(p, actor.ID, a.Price)
	actor.Market = append(actor.Market, relisted)

	actor.losePrestige(1)
	actor.ResaleHistory++
	r.g.MarketPollution++
	details := fmt.Sprintf("resold %s bought at %d for %d", relisted.ID, p.Price, a.Price)
	if r.g.ShortVideoBonus {
		actor.Money += 2
		details += " (+2 short video bonus)"
	}
	return details, nil
}

// relist turns a bought product into a resale listing owned by owner.
func relist(p *economy.Product, owner string, price int) *economy.Product {
	origin := p.OwnerID
	if p.IsResale && p.OriginalOwnerID != "" {
		origin = p.OriginalOwnerID
	}
	return &economy.Product{
		ID:              newID("product"),
		Cost:            p.Cost,
		Price:           price,
		Popularity:      p.Popularity,
		OwnerID:         owner,
		IsResale:        true,
		OriginalCost:    p.Cost,
		OriginalOwnerID: origin,
	}
}

// reviewTarget finds any product of a seller and checks the popularity move.
func (r *rules) reviewTarget(targetID, productID string, positive bool) (*economy.Shelf, *economy.Product, int, error) {
	shelf, err := r.seller(targetID)
	if err != nil {
		return nil, nil, 0, err
	}
	p := shelf.Find(productID)
	if p == nil {
		return nil, nil, 0, invalid("product %s not held by %s", productID, targetID)
	}
	delta := -1
	if positive {
		delta = 1
	}
	next := economy.ClampPopularity(p.Popularity + delta)
	if next != p.Popularity && p.Listed() && !shelf.CanOccupy(p, economy.Cell{Price: p.Price, Popularity: next}) {
		return nil, nil, 0, invalid("popularity %d at price %d already taken", next, p.Price)
	}
	return shelf, p, delta, nil
}

func (r *rules) review(actor *Player, targetID, productID string, positive bool) (string, error) {
	if actor.Prestige < 1 {
		return "", invalid("prestige %d too low to review", actor.Prestige)
	}
	shelf, p, delta, err := r.reviewTarget(targetID, productID, positive)
	if err != nil {
		return "", err
	}
	before := p.Popularity
	shelf.ShiftPopularity(p, delta)
	actor.losePrestige(1)
	return fmt.Sprintf("reviewed %s: popularity %d -> %d", p.ID, before, p.Popularity), nil
}

func (r *rules) outsourceReview(actor *Player, a OutsourceReview) (string, error) {
	if actor.Money < 3 {
		return "", invalid("outsourced review costs 3, have %d", actor.Money)
	}
	shelf, p, delta, err := r.reviewTarget(a.TargetID, a.ProductID, a.Positive)
	if err != nil {
		return "", err
	}
	roll := dice.D6(r.dice)
	actor.Money -= 3
	before := p.Popularity
	shelf.ShiftPopularity(p, delta)
	details := fmt.Sprintf("outsourced review of %s: popularity %d -> %d", p.ID, before, p.Popularity)
	if roll == 1 {
		actor.losePrestige(2)
		details += " (detected, prestige -2)"
	}
	return details, nil
}

func (r *rules) design(actor *Player, a Design) (string, error) {
	if len(actor.Designs) >= MaxDesigns {
		return "", invalid("design limit of %d reached", MaxDesigns)
	}
	rolls := dice.RollN(r.dice, 3)
	cost := rolls[r.dice.Roll(len(rolls))-1]
	d := &economy.Design{ID: newID("design"), Cost: cost, IsOpenSource: a.OpenSource}
	actor.Designs = append(actor.Designs, d)
	details := fmt.Sprintf("designed %s with cost %d from %v", d.ID, cost, rolls)
	if a.OpenSource {
		actor.Prestige += 2
		details += " (open source, prestige +2)"
	}
	return details, nil
}

func (r *rules) research(actor *Player) (string, error) {
	sum := dice.Sum(r.dice, 3)
	t := LookupTrend(sum)
	r.g.AvailableTrends[actor.ID] = PendingTrend{Sum: sum, Name: t.Name}
	return fmt.Sprintf("researched %d: %s", sum, t.Name), nil
}

func (r *rules) dayLabor(actor *Player) (string, error) {
	if actor.Money > 100 {
		return "", invalid("day labor only available with money 100 or less")
	}
	actor.Money += 18
	return "earned 18 from day labor", nil
}

func (r *rules) purchasePrestige(actor *Player) (string, error) {
	if actor.Money < 5 {
		return "", invalid("prestige costs 5, have %d", actor.Money)
	}
	if actor.LastPrestigePurchase == r.g.Round {
		return "", invalid("prestige already purchased this round")
	}
	actor.Money -= 5
	actor.Prestige++
	actor.LastPrestigePurchase = r.g.Round
	return "bought 1 prestige for 5", nil
}

func (r *rules) promoteRegulation(actor *Player) (string, error) {
	rolls := dice.RollN(r.dice, 2)
	sum := dice.Total(rolls)
	if sum < RegulationTarget {
		return fmt.Sprintf("regulation campaign failed: rolled %v = %d", rolls, sum), nil
	}
	return fmt.Sprintf("regulation campaign succeeded: rolled %v = %d; %s", rolls, sum, r.advanceRegulation()), nil
}

func (r *rules) outsourceManufacturing(actor *Player, a OutsourceManufacturing) (string, error) {
	d, owner := r.g.findDesign(a.DesignID)
	if d == nil {
		return "", invalid("design %s not found", a.DesignID)
	}
	if owner.ID != actor.ID && !d.IsOpenSource {
		return "", invalid("design %s is not open source", a.DesignID)
	}
	qty := a.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return "", invalid("quantity must be positive")
	}

	if a.Contractor == AutomataTarget || economy.IsAutomaton(a.Contractor) {
		unit := d.Cost + 2
		if qty > actor.Money/unit {
			return "", invalid("outsourcing %d at %d each exceeds money %d", qty, unit, actor.Money)
		}
		total := qty * unit
		o := &Order{
			ID: newID("order"), ClientID: actor.ID, ContractorID: AutomataTarget,
			DesignID: d.ID, DesignOwnerID: owner.ID, Cost: total, Quantity: qty, Round: r.g.Round,
		}
		if err := o.Accept(); err != nil {
			return "", err
		}
		actor.Money -= total
		for range qty {
			actor.Market = append(actor.Market, newProduct(actor.ID, d.Cost))
		}
		details := fmt.Sprintf("automata made %d of %s for %d", qty, d.ID, total)
		if owner.ID != actor.ID {
			fee := min(r.g.Round, 8) * qty
			owner.Money += fee
			details += fmt.Sprintf("; %s earned %d in fees", owner.ID, fee)
		}
		if err := o.Complete(); err != nil {
			return "", err
		}
		return details, nil
	}

	contractor := r.g.Player(a.Contractor)
	if contractor == nil {
		return "", targetNotFound(a.Contractor)
	}
	if contractor.ID == actor.ID {
		return "", invalid("cannot contract yourself")
	}
	if actor.Money < d.Cost {
		return "", invalid("order costs %d, have %d", d.Cost, actor.Money)
	}
	o := &Order{
		ID: newID("order"), ClientID: actor.ID, ContractorID: contractor.ID,
		DesignID: d.ID, DesignOwnerID: owner.ID, Cost: d.Cost, Quantity: 1, Round: r.g.Round,
	}
	r.g.Orders = append(r.g.Orders, o)
	return fmt.Sprintf("ordered %s from %s for %d (%s)", d.ID, contractor.ID, d.Cost, o.ID), nil
}

func (r *rules) respondToOrder(actor *Player, a RespondToOrder) (string, error) {
	o := r.g.FindOrder(a.OrderID)
	if o == nil || o.Status != OrderPending {
		return "", invalid("no pending order %s", a.OrderID)
	}
	if o.ContractorID != actor.ID {
		return "", invalid("order %s is not addressed to %s", o.ID, actor.ID)
	}
	client := r.g.Player(o.ClientID)
	if client == nil {
		return "", targetNotFound(o.ClientID)
	}

	if !a.Accept {
		if err := o.Reject(); err != nil {
			return "", err
		}
		client.ActionPoints = min(MaxActionPoints, client.ActionPoints+1)
		r.g.removeOrder(o.ID)
		return fmt.Sprintf("rejected %s; %s refunded 1 action point", o.ID, client.ID), nil
	}

	var design *economy.Design
	owner := r.g.Player(o.DesignOwnerID)
	if owner != nil {
		design = owner.Design(o.DesignID)
	}
	if design == nil {
		return "", invalid("design %s no longer available", o.DesignID)
	}
	if client.Money < o.Cost {
		return "", invalid("%s cannot pay %d", client.ID, o.Cost)
	}
	if err := o.Accept(); err != nil {
		return "", err
	}
	client.Money -= o.Cost
	actor.Money += o.Cost
	for range o.Quantity {
		client.Market = append(client.Market, newProduct(client.ID, design.Cost))
	}
	details := fmt.Sprintf("fulfilled %s for %s, paid %d", o.ID, client.ID, o.Cost)
	if design.IsOpenSource && owner.ID != client.ID {
		fee := min(r.g.Round, 8) * o.Quantity
		owner.Money += fee
		details += fmt.Sprintf("; %s earned %d in fees", owner.ID, fee)
	}
	if err := o.Complete(); err != nil {
		return "", err
	}
	r.g.removeOrder(o.ID)
	return details, nil
}

func (r *rules) buyBack(actor *Player, a BuyBack) (string, error) {
	p := actor.Market.Find(a.ProductID)
	if p == nil || !p.Listed() {
		return "", invalid("product %s is not listed by %s", a.ProductID, actor.ID)
	}
	price := p.Price
	p.Price = 0
	return fmt.Sprintf("took %s off the market (was %d)", p.ID, price), nil
}

func (r *rules) discontinue(actor *Player, a Discontinue) (string, error) {
	if !actor.RemoveDesign(a.DesignID) {
		return "", invalid("design %s not owned", a.DesignID)
	}
	return fmt.Sprintf("discontinued %s", a.DesignID), nil
}
