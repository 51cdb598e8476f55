package engine

import (
	"encoding/json"
	"fmt"
)

// ActionKind is the wire name of a player action.
type ActionKind string

const (
	KindManufacture            ActionKind = "manufacture"
	KindSell                   ActionKind = "sell"
	KindPurchase               ActionKind = "purchase"
	KindResale                 ActionKind = "resale"
	KindReview                 ActionKind = "review"
	KindOutsourceReview        ActionKind = "outsource_review"
	KindDesign                 ActionKind = "design"
	KindResearch               ActionKind = "research"
	KindActivateTrend          ActionKind = "activate_trend"
	KindPartTimeWork           ActionKind = "part_time_work"
	KindDayLabor               ActionKind = "day_labor"
	KindPurchasePrestige       ActionKind = "purchase_prestige"
	KindPromoteRegulation      ActionKind = "promote_regulation"
	KindOutsourceManufacturing ActionKind = "outsource_manufacturing"
	KindRespondToOrder         ActionKind = "respond_to_order"
	KindBuyBack                ActionKind = "buyback"
	KindDiscontinue            ActionKind = "discontinue"
)

// Action is one player move. The set of implementations is closed.
type Action interface {
	Kind() ActionKind
	action()
}

// Action point cost per kind.
var actionCosts = map[ActionKind]int{
	KindManufacture:            1,
	KindSell:                   1,
	KindPurchase:               1,
	KindResale:                 2,
	KindReview:                 1,
	KindOutsourceReview:        1,
	KindDesign:                 2,
	KindResearch:               1,
	KindActivateTrend:          0,
	KindPartTimeWork:           2,
	KindDayLabor:               3,
	KindPurchasePrestige:       1,
	KindPromoteRegulation:      2,
	KindOutsourceManufacturing: 1,
	KindRespondToOrder:         0,
	KindBuyBack:                1,
	KindDiscontinue:            1,
}

// Cost returns the action point cost of an action kind.
func Cost(k ActionKind) int {
	return actionCosts[k]
}

// Manufacture makes one unlisted product from an owned design.
type Manufacture struct {
	DesignID string `json:"design_id"`
}

// Sell lists an owned, unlisted product at Price.
type Sell struct {
	ProductID string `json:"product_id"`
	Price     int    `json:"price"`
}

// Purchase buys a listed product. TargetID is a player ID or "automata".
type Purchase struct {
	TargetID  string `json:"target_id"`
	ProductID string `json:"product_id"`
}

// Resale buys a listed product and relists it at Price.
type Resale struct {
	TargetID  string `json:"target_id"`
	ProductID string `json:"product_id"`
	Price     int    `json:"price"`
}

// Review spends one prestige to raise or lower a product's popularity.
type Review struct {
	TargetID  string `json:"target_id"`
	ProductID string `json:"product_id"`
	Positive  bool   `json:"positive"`
}

// OutsourceReview is a paid review that risks being detected.
type OutsourceReview struct {
	TargetID  string `json:"target_id"`
	ProductID string `json:"product_id"`
	Positive  bool   `json:"positive"`
}

// Design draws a new design. OpenSource designs earn prestige.
type Design struct {
	OpenSource bool `json:"open_source"`
}

// Research rolls 3d6 and holds the matching trend for ActivateTrend.
type Research struct{}

// ActivateTrend spends the pending trend. The optional fields steer effects
// that need a choice; when omitted a default target is used.
type ActivateTrend struct {
	DesignID       string   `json:"design_id,omitempty"`
	TargetPlayerID string   `json:"target_player_id,omitempty"`
	ProductIDs     []string `json:"product_ids,omitempty"`
}

// PartTimeWork earns a small wage.
type PartTimeWork struct{}

// DayLabor earns a larger wage while money is 100 or less.
type DayLabor struct{}

// PurchasePrestige buys one prestige, once per round.
type PurchasePrestige struct{}

// PromoteRegulation campaigns to advance anti-resale regulation.
type PromoteRegulation struct{}

// OutsourceManufacturing has Contractor make products from DesignID.
// Contractor is "automata" or a player ID.
type OutsourceManufacturing struct {
	DesignID   string `json:"design_id"`
	Quantity   int    `json:"quantity,omitempty"`
	Contractor string `json:"contractor"`
}

// RespondToOrder accepts or rejects a pending order as its contractor.
type RespondToOrder struct {
	OrderID string `json:"order_id"`
	Accept  bool   `json:"accept"`
}

// BuyBack takes a listed product off the market.
type BuyBack struct {
	ProductID string `json:"product_id"`
}

// Discontinue drops an owned design.
type Discontinue struct {
	DesignID string `json:"design_id"`
}

func (Manufacture) Kind() ActionKind            { return KindManufacture }
func (Sell) Kind() ActionKind                   { return KindSell }
func (Purchase) Kind() ActionKind               { return KindPurchase }
func (Resale) Kind() ActionKind                 { return KindResale }
func (Review) Kind() ActionKind                 { return KindReview }
func (OutsourceReview) Kind() ActionKind        { return KindOutsourceReview }
func (Design) Kind() ActionKind                 { return KindDesign }
func (Research) Kind() ActionKind               { return KindResearch }
func (ActivateTrend) Kind() ActionKind          { return KindActivateTrend }
func (PartTimeWork) Kind() ActionKind           { return KindPartTimeWork }
func (DayLabor) Kind() ActionKind               { return KindDayLabor }
func (PurchasePrestige) Kind() ActionKind       { return KindPurchasePrestige }
func (PromoteRegulation) Kind() ActionKind      { return KindPromoteRegulation }
func (OutsourceManufacturing) Kind() ActionKind { return KindOutsourceManufacturing }
func (RespondToOrder) Kind() ActionKind         { return KindRespondToOrder }
func (BuyBack) Kind() ActionKind                { return KindBuyBack }
func (Discontinue) Kind() ActionKind            { return KindDiscontinue }

func (Manufacture) action()            {}
func (Sell) action()                   {}
func (Purchase) action()               {}
func (Resale) action()                 {}
func (Review) action()                 {}
func (OutsourceReview) action()        {}
func (Design) action()                 {}
func (Research) action()               {}
func (ActivateTrend) action()          {}
func (PartTimeWork) action()           {}
func (DayLabor) action()               {}
func (PurchasePrestige) action()       {}
func (PromoteRegulation) action()      {}
func (OutsourceManufacturing) action() {}
func (RespondToOrder) action()         {}
func (BuyBack) action()                {}
func (Discontinue) action()            {}

// ActionRequest is the wire form of an action.
type ActionRequest struct {
	ActorID string          `json:"actor_id"`
	Type    ActionKind      `json:"type"`
	Params  json.RawMessage `json:"params,omitempty"`
}

var registry = map[ActionKind]func(json.RawMessage) (Action, error){
	KindManufacture:            decode[Manufacture],
	KindSell:                   decode[Sell],
	KindPurchase:               decode[Purchase],
	KindResale:                 decode[Resale],
	KindReview:                 decode[Review],
	KindOutsourceReview:        decode[OutsourceReview],
	KindDesign:                 decode[Design],
	KindResearch:               decode[Research],
	KindActivateTrend:          decode[ActivateTrend],
	KindPartTimeWork:           decode[PartTimeWork],
	KindDayLabor:               decode[DayLabor],
	KindPurchasePrestige:       decode[PurchasePrestige],
	KindPromoteRegulation:      decode[PromoteRegulation],
	KindOutsourceManufacturing: decode[OutsourceManufacturing],
	KindRespondToOrder:         decode[RespondToOrder],
	KindBuyBack:                decode[BuyBack],
	KindDiscontinue:            decode[Discontinue],
}

func decode[T Action](raw json.RawMessage) (Action, error) {
	var a T
	if len(raw) == 0 || string(raw) == "null" {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, &Error{
			Code:     CodeBadRequest,
			Message:  fmt.Sprintf("decode %s params: %v", a.Kind(), err),
			Metadata: map[string]string{"type": string(a.Kind())},
		}
	}
	return a, nil
}

// Kinds lists every action kind the engine accepts.
func Kinds() []ActionKind {
	return []ActionKind{
		KindManufacture, KindSell, KindPurchase, KindResale, KindReview,
		KindOutsourceReview, KindDesign, KindResearch, KindActivateTrend,
		KindPartTimeWork, KindDayLabor, KindPurchasePrestige,
		KindPromoteRegulation, KindOutsourceManufacturing,
		KindRespondToOrder, KindBuyBack, KindDiscontinue,
	}
}

// DecodeAction turns a request into a typed action.
func DecodeAction(req ActionRequest) (Action, error) {
	ctor, ok := registry[req.Type]
	if !ok {
		return nil, &Error{
			Code:     CodeUnknownAction,
			Message:  fmt.Sprintf("unknown action type %q", req.Type),
			Metadata: map[string]string{"type": string(req.Type)},
		}
	}
	return ctor(req.Params)
}
