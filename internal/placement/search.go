package placement

// Candidate returns the slot tried at the given search radius around
// preferred. Radius 0 is the preferred slot itself. Odd radii look left and
// even radii look right, so the order is p, p-1, p+1, p-2, p+2, ...
//
// The asymmetry is deliberate: on ties the earlier slot wins. Changing this
// mapping changes every downstream placement.
func Candidate(preferred, radius int) int {
	if radius == 0 {
		return preferred
	}
	if radius%2 == 1 {
		return preferred - (radius/2 + 1)
	}
	return preferred + radius/2
}

// nearestFree walks Candidate outwards from preferred and returns the first
// free slot inside [lo, hi). maxRadius bounds the walk; a radius of
// 2*(hi-lo) covers both sides of any preferred slot in the range.
func nearestFree(occ *Occupancy, preferred, lo, hi, maxRadius int) (int, bool) {
	for r := 0; r <= maxRadius; r++ {
		c := Candidate(preferred, r)
		if c >= lo && c < hi && !occ.Occupied(c) {
			return c, true
		}
	}
	return 0, false
}
