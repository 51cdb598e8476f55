package economy

import "testing"

func TestClearsOn(t *testing.T) {
	for cost := 1; cost <= 8; cost++ {
		for demand := 2; demand <= 12; demand++ {
			got := ClearsOn(cost, demand)
			want := false
			for _, v := range DemandValues(cost) {
				if v == demand {
					want = true
				}
			}
			if got != want {
				t.Fatalf("ClearsOn(%d, %d) = %v, want %v", cost, demand, got, want)
			}
			if cost >= 6 && got {
				t.Fatalf("cost %d cleared on %d", cost, demand)
			}
		}
	}
	for _, d := range []int{6, 7, 8} {
		if !ClearsOn(1, d) {
			t.Fatalf("cost 1 should clear on %d", d)
		}
	}
	for _, d := range []int{2, 3, 4, 5, 9, 10, 11, 12} {
		if ClearsOn(1, d) {
			t.Fatalf("cost 1 should not clear on %d", d)
		}
	}
}

func TestDemandTableCoversEveryRollOnce(t *testing.T) {
	seen := make(map[int]int)
	for cost := 1; cost <= 5; cost++ {
		for _, v := range DemandValues(cost) {
			seen[v]++
		}
	}
	for d := 2; d <= 12; d++ {
		if seen[d] != 1 {
			t.Fatalf("demand %d mapped %d times, want 1", d, seen[d])
		}
	}
}

func TestPollutionPenalty(t *testing.T) {
	tests := []struct {
		pollution int
		want      int
	}{
		{0, 0}, {2, 0}, {3, 1}, {5, 1}, {6, 2}, {8, 2}, {9, 3}, {11, 3}, {12, 4}, {40, 4},
	}
	for _, tt := range tests {
		if got := PollutionPenalty(tt.pollution); got != tt.want {
			t.Errorf("PollutionPenalty(%d) = %d, want %d", tt.pollution, got, tt.want)
		}
	}
}

func TestSalePriceFloor(t *testing.T) {
	if got := SalePrice(2, 20); got != 1 {
		t.Fatalf("SalePrice(2, 20) = %d, want 1", got)
	}
	if got := SalePrice(10, 4); got != 9 {
		t.Fatalf("SalePrice(10, 4) = %d, want 9", got)
	}
}

func TestMaxPrice(t *testing.T) {
	tests := []struct {
		cost, prestige, want int
	}{
		{3, -2, 6},
		{3, 2, 6},
		{3, 3, 9},
		{3, 8, 9},
		{3, 9, 12},
		{5, 20, 20},
	}
	for _, tt := range tests {
		if got := MaxPrice(tt.cost, tt.prestige); got != tt.want {
			t.Errorf("MaxPrice(%d, %d) = %d, want %d", tt.cost, tt.prestige, got, tt.want)
		}
	}
}

func TestResaleBonusMonotonic(t *testing.T) {
	want := map[int]int{0: 5, 1: 5, 2: 8, 4: 8, 5: 11, 7: 11, 8: 15, 30: 15}
	for h, w := range want {
		if got := ResaleBonus(h); got != w {
			t.Errorf("ResaleBonus(%d) = %d, want %d", h, got, w)
		}
	}
	values := make(map[int]bool)
	prev := 0
	for h := 0; h <= 20; h++ {
		b := ResaleBonus(h)
		if b < prev {
			t.Fatalf("ResaleBonus decreased at %d: %d < %d", h, b, prev)
		}
		prev = b
		values[b] = true
	}
	if len(values) != 4 || !values[5] || !values[8] || !values[11] || !values[15] {
		t.Fatalf("ResaleBonus took values %v, want exactly {5,8,11,15}", values)
	}
}
