// Package economy provides the goods traded in the market and the tables
// that price them: designs, products, per-seller shelves, the price ×
// popularity grid, demand and pollution tables.
package economy

import "sort"

// Popularity bounds. Every mutator clamps into this range.
const (
	MinPopularity = 1
	MaxPopularity = 6
)

// Owner IDs of the two automata. Their listings share one shelf.
const (
	ManufacturerID    = "manufacturer-automata"
	ResaleAutomatonID = "resale-automata"
)

// Design is a blueprint a player can manufacture from.
type Design struct {
	ID           string `json:"id"`
	Cost         int    `json:"cost"` // 1–6, manufacturing price and demand tier
	IsOpenSource bool   `json:"is_open_source"`
}

// Product is one manufactured item. Price 0 means it is owned but not listed.
type Product struct {
	ID              string `json:"id"`
	Cost            int    `json:"cost"`
	Price           int    `json:"price"`
	Popularity      int    `json:"popularity"`
	OwnerID         string `json:"owner_id"`
	IsResale        bool   `json:"is_resale"`
	OriginalCost    int    `json:"original_cost,omitempty"`
	OriginalOwnerID string `json:"original_owner_id,omitempty"`
}

// Listed reports whether the product is on sale.
func (p *Product) Listed() bool {
	return p.Price > 0
}

// Cell returns the grid cell the product occupies.
func (p *Product) Cell() Cell {
	return Cell{Price: p.Price, Popularity: p.Popularity}
}

// IsAutomaton reports whether an owner ID belongs to one of the automata.
func IsAutomaton(ownerID string) bool {
	return ownerID == ManufacturerID || ownerID == ResaleAutomatonID
}

// Exclusive reports whether an owner's listings must each hold a distinct cell.
// Players are exclusive; the automata are not.
func Exclusive(ownerID string) bool {
	return !IsAutomaton(ownerID)
}

// ClampPopularity keeps a popularity value within bounds.
func ClampPopularity(p int) int {
	if p < MinPopularity {
		return MinPopularity
	}
	if p > MaxPopularity {
		return MaxPopularity
	}
	return p
}

// Shelf is the ordered list of products held by one seller.
type Shelf []*Product

// Find returns the product with the given ID, or nil.
func (s Shelf) Find(id string) *Product {
	for _, p := range s {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Remove deletes the product with the given ID and returns it.
func (s *Shelf) Remove(id string) *Product {
	for i, p := range *s {
		if p.ID == id {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return p
		}
	}
	return nil
}

// RemoveWhere deletes every product matching drop and returns the removed
// products in shelf order.
func (s *Shelf) RemoveWhere(drop func(*Product) bool) []*Product {
	var removed []*Product
	n := 0
	for _, p := range *s {
		if drop(p) {
			removed = append(removed, p)
			continue
		}
		(*s)[n] = p
		n++
	}
	for i := n; i < len(*s); i++ {
		(*s)[i] = nil
	}
	*s = (*s)[:n]
	return removed
}

// Listed returns the products currently on sale.
func (s Shelf) Listed() []*Product {
	var out []*Product
	for _, p := range s {
		if p.Listed() {
			out = append(out, p)
		}
	}
	return out
}

// CellFree reports whether no listing of ownerID other than exceptID holds cell.
func (s Shelf) CellFree(ownerID string, c Cell, exceptID string) bool {
	for _, p := range s {
		if p.ID == exceptID || p.OwnerID != ownerID || !p.Listed() {
			continue
		}
		if p.Cell() == c {
			return false
		}
	}
	return true
}

// CanOccupy reports whether p may move to cell c on this shelf.
func (s Shelf) CanOccupy(p *Product, c Cell) bool {
	if c.Price <= 0 || !Exclusive(p.OwnerID) {
		return true
	}
	return s.CellFree(p.OwnerID, c, p.ID)
}

// ShiftPopularity moves p's popularity by delta, clamped. It refuses to move a
// listing into a cell its owner already holds. Reports whether p changed.
func (s Shelf) ShiftPopularity(p *Product, delta int) bool {
	next := ClampPopularity(p.Popularity + delta)
	if next == p.Popularity {
		return false
	}
	if p.Listed() && !s.CanOccupy(p, Cell{Price: p.Price, Popularity: next}) {
		return false
	}
	p.Popularity = next
	return true
}

// ShiftPrice moves a listed product's price by delta (floor 1), subject to the
// same cell rule as ShiftPopularity.
func (s Shelf) ShiftPrice(p *Product, delta int) bool {
	if !p.Listed() {
		return false
	}
	next := p.Price + delta
	if next < 1 {
		next = 1
	}
	if next == p.Price {
		return false
	}
	if !s.CanOccupy(p, Cell{Price: next, Popularity: p.Popularity}) {
		return false
	}
	p.Price = next
	return true
}

// BumpPopularity shifts every product matching filter by delta and returns
// how many changed. Products are visited in the direction of travel so a
// group moving together does not block itself.
func (s Shelf) BumpPopularity(filter func(*Product) bool, delta int) int {
	targets := s.matching(filter)
	sort.SliceStable(targets, func(i, j int) bool {
		if delta > 0 {
			return targets[i].Popularity > targets[j].Popularity
		}
		return targets[i].Popularity < targets[j].Popularity
	})
	changed := 0
	for _, p := range targets {
		if s.ShiftPopularity(p, delta) {
			changed++
		}
	}
	return changed
}

// BumpPrice shifts every listed product matching filter by delta.
func (s Shelf) BumpPrice(filter func(*Product) bool, delta int) int {
	targets := s.matching(filter)
	sort.SliceStable(targets, func(i, j int) bool {
		if delta > 0 {
			return targets[i].Price > targets[j].Price
		}
		return targets[i].Price < targets[j].Price
	})
	changed := 0
	for _, p := range targets {
		if s.ShiftPrice(p, delta) {
			changed++
		}
	}
	return changed
}

func (s Shelf) matching(filter func(*Product) bool) []*Product {
	var out []*Product
	for _, p := range s {
		if filter == nil || filter(p) {
			out = append(out, p)
		}
	}
	return out
}

// Clone deep-copies the shelf.
func (s Shelf) Clone() Shelf {
	if s == nil {
		return nil
	}
	out := make(Shelf, len(s))
	for i, p := range s {
		cp := *p
		out[i] = &cp
	}
	return out
}
