// Package dice provides the random source every game rule rolls against.
// Rules never call math/rand directly; they take a Source so a match can be
// replayed from a seed and tests can script exact outcomes.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Source produces uniform die values in 1..sides.
type Source interface {
	Roll(sides int) int
}

// Rand is a seeded pseudo-random Source.
type Rand struct {
	mu   sync.Mutex
	rng  *rand.Rand
	seed int64
}

// NewSeeded returns a deterministic Source for the given seed.
func NewSeeded(seed int64) *Rand {
	return &Rand{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// NewRandom returns a Source seeded from crypto/rand.
// Falls back to the wall clock if crypto/rand is unavailable.
func NewRandom() *Rand {
	seed, err := NewSeed()
	if err != nil {
		seed = time.Now().UnixNano()
	}
	return NewSeeded(seed)
}

// Seed returns the seed this source was created with.
func (r *Rand) Seed() int64 {
	return r.seed
}

// Roll returns a value in 1..sides. Non-positive sides roll a d6.
func (r *Rand) Roll(sides int) int {
	if sides <= 0 {
		sides = 6
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(sides) + 1
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// D6 rolls a single six-sided die.
func D6(src Source) int {
	return src.Roll(6)
}

// RollN rolls n six-sided dice and returns them in roll order.
func RollN(src Source, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = src.Roll(6)
	}
	return out
}

// Sum rolls n six-sided dice and returns their total.
func Sum(src Source, n int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += src.Roll(6)
	}
	return total
}

// Total adds up already-rolled values.
func Total(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
