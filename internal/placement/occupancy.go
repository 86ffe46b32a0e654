package placement

import "math/bits"

// Occupancy is a fixed-size bitset over slot indices. Bits are only ever
// set during an assignment; nothing clears them.
type Occupancy struct {
	words []uint64
	size  int
}

// NewOccupancy returns an empty occupancy map over n slots.
func NewOccupancy(n int) *Occupancy {
	return &Occupancy{words: make([]uint64, (n+63)/64), size: n}
}

// Len returns the number of slots tracked.
func (o *Occupancy) Len() int {
	return o.size
}

// Occupied reports whether slot i is taken. Indices outside the map are
// reported as occupied so they are never chosen.
func (o *Occupancy) Occupied(i int) bool {
	if i < 0 || i >= o.size {
		return true
	}
	return o.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Occupy marks slot i as taken.
func (o *Occupancy) Occupy(i int) {
	if i < 0 || i >= o.size {
		return
	}
	o.words[i/64] |= 1 << (uint(i) % 64)
}

// Count returns the number of occupied slots.
func (o *Occupancy) Count() int {
	n := 0
	for _, w := range o.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// FreeIn counts unoccupied slots in [lo, hi).
func (o *Occupancy) FreeIn(lo, hi int) int {
	n := 0
	for i := lo; i < hi; i++ {
		if !o.Occupied(i) {
			n++
		}
	}
	return n
}

// Slots returns the occupied indices in ascending order.
func (o *Occupancy) Slots() []int {
	var out []int
	for i := 0; i < o.size; i++ {
		if o.Occupied(i) {
			out = append(out, i)
		}
	}
	return out
}
