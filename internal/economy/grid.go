package economy

// Cell is one price × popularity position on the market board.
type Cell struct {
	Price      int `json:"price"`
	Popularity int `json:"popularity"`
}

// Grid indexes every listed product across all sellers by cell.
// It is a read view built on demand; mutate shelves, then rebuild.
type Grid struct {
	cells  map[Cell][]*Product
	listed []*Product
}

// NewGrid indexes the listed products of the given shelves.
func NewGrid(shelves ...Shelf) *Grid {
	g := &Grid{cells: make(map[Cell][]*Product)}
	for _, s := range shelves {
		for _, p := range s {
			if !p.Listed() {
				continue
			}
			g.cells[p.Cell()] = append(g.cells[p.Cell()], p)
			g.listed = append(g.listed, p)
		}
	}
	return g
}

// At returns every listing in a cell, across sellers.
func (g *Grid) At(c Cell) []*Product {
	return g.cells[c]
}

// Occupied reports whether ownerID has a listing other than exceptID in c.
func (g *Grid) Occupied(ownerID string, c Cell, exceptID string) bool {
	for _, p := range g.cells[c] {
		if p.OwnerID == ownerID && p.ID != exceptID {
			return true
		}
	}
	return false
}

// Listed returns every indexed listing in shelf order.
func (g *Grid) Listed() []*Product {
	return g.listed
}

// Len returns the number of listings.
func (g *Grid) Len() int {
	return len(g.listed)
}

// MaxPrice returns the highest listed price, or 0 for an empty market.
func (g *Grid) MaxPrice() int {
	max := 0
	for _, p := range g.listed {
		if p.Price > max {
			max = p.Price
		}
	}
	return max
}

// HighestPriced returns every listing tied at the highest price.
func (g *Grid) HighestPriced() []*Product {
	max := g.MaxPrice()
	if max == 0 {
		return nil
	}
	var out []*Product
	for _, p := range g.listed {
		if p.Price == max {
			out = append(out, p)
		}
	}
	return out
}

// CheapestOf returns every listing of ownerID tied at that owner's lowest price.
func (g *Grid) CheapestOf(ownerID string) []*Product {
	min := 0
	for _, p := range g.listed {
		if p.OwnerID != ownerID {
			continue
		}
		if min == 0 || p.Price < min {
			min = p.Price
		}
	}
	if min == 0 {
		return nil
	}
	var out []*Product
	for _, p := range g.listed {
		if p.OwnerID == ownerID && p.Price == min {
			out = append(out, p)
		}
	}
	return out
}
