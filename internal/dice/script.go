package dice

import "fmt"

// Script is a Source that replays a fixed sequence of values.
// It panics when the sequence runs out so a test that rolls more dice
// than it scripted fails at the offending roll.
type Script struct {
	values []int
	pos    int
}

// NewScript returns a Source yielding values in order.
func NewScript(values ...int) *Script {
	return &Script{values: values}
}

// Roll returns the next scripted value, folded into 1..sides.
func (s *Script) Roll(sides int) int {
	if sides <= 0 {
		sides = 6
	}
	if s.pos >= len(s.values) {
		panic(fmt.Sprintf("dice: script exhausted after %d rolls", len(s.values)))
	}
	v := s.values[s.pos]
	s.pos++
	if v < 1 || v > sides {
		v = ((v-1)%sides+sides)%sides + 1
	}
	return v
}

// Push appends more values to the script.
func (s *Script) Push(values ...int) {
	s.values = append(s.values, values...)
}

// Remaining reports how many scripted values have not been rolled yet.
func (s *Script) Remaining() int {
	return len(s.values) - s.pos
}
