package economy

// ResalePriceCap is the absolute ceiling on any player resale listing.
const ResalePriceCap = 24

// MaxSoldPerRound is how many listings one demand roll can clear.
const MaxSoldPerRound = 5

// demandTable maps design cost to the 2d6 demand values that clear it.
var demandTable = map[int][]int{
	1: {6, 7, 8},
	2: {5, 9},
	3: {4, 10},
	4: {3, 11},
	5: {2, 12},
}

// DemandValues returns the demand rolls that clear products of a cost.
// Costs outside 1–5 never clear.
func DemandValues(cost int) []int {
	return demandTable[cost]
}

// ClearsOn reports whether a product of cost sells on a demand roll.
func ClearsOn(cost, demand int) bool {
	for _, v := range demandTable[cost] {
		if v == demand {
			return true
		}
	}
	return false
}

// PollutionPenalty is the price reduction market clearing applies at a
// pollution level.
func PollutionPenalty(pollution int) int {
	switch {
	case pollution <= 2:
		return 0
	case pollution <= 5:
		return 1
	case pollution <= 8:
		return 2
	case pollution <= 11:
		return 3
	default:
		return 4
	}
}

// MaxPrice is the highest listing price a seller with prestige may ask.
func MaxPrice(cost, prestige int) int {
	switch {
	case prestige >= 9:
		return cost * 4
	case prestige >= 3:
		return cost * 3
	default:
		return cost * 2
	}
}

// ResaleBonus is the markup a reseller may add on top of the purchase price,
// growing with the number of resales already made.
func ResaleBonus(history int) int {
	switch {
	case history <= 1:
		return 5
	case history <= 4:
		return 8
	case history <= 7:
		return 11
	default:
		return 15
	}
}

// SalePrice is what a listing fetches at clearing once pollution is applied.
func SalePrice(price, pollution int) int {
	v := price - PollutionPenalty(pollution)
	if v < 1 {
		return 1
	}
	return v
}
