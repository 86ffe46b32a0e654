// Package beatgrid derives the ordered slot sequence from a tempo and a
// soundtrack duration.
package beatgrid

import (
	"math"

	"github.com/roach88/beatspine/internal/ir"
)

// frameEpsilon absorbs float noise when converting seconds to frames, so
// that 0.5s at 60fps is frame 30 and not 29.
const frameEpsilon = 1e-6

// Grid is the slot sequence plus the effective window.
type Grid struct {
	Tempo       float64
	Duration    float64 // seconds
	Spacing     float64 // seconds between slots
	StartOffset int
	EndOffset   int
	Slots       []ir.Slot
}

// Generate builds a grid of floor(duration/spacing)+1 slots spaced 60/tempo
// seconds apart. It fails when the offsets leave no usable slot.
func Generate(tempo, duration float64, startOffset, endOffset int) (*Grid, error) {
	if !(tempo > 0) || math.IsInf(tempo, 0) {
		return nil, ir.NewConfigError("tempo must be positive, got %v", tempo)
	}
	if !(duration > 0) || math.IsInf(duration, 0) {
		return nil, ir.NewConfigError("duration must be positive, got %v", duration)
	}
	if startOffset < 0 || endOffset < 0 {
		return nil, ir.NewConfigError("offsets must be non-negative, got start=%d end=%d", startOffset, endOffset)
	}

	spacing := 60 / tempo
	count := int(math.Floor(duration/spacing+frameEpsilon)) + 1
	if count-startOffset-endOffset <= 0 {
		return nil, ir.NewConfigError(
			"no usable slots: %d total, start offset %d, end offset %d",
			count, startOffset, endOffset)
	}

	slots := make([]ir.Slot, count)
	for i := range slots {
		// Multiply rather than accumulate so late slots carry no drift.
		slots[i] = ir.Slot{Index: i, Seconds: float64(i) * spacing}
	}

	return &Grid{
		Tempo:       tempo,
		Duration:    duration,
		Spacing:     spacing,
		StartOffset: startOffset,
		EndOffset:   endOffset,
		Slots:       slots,
	}, nil
}

// Len returns the total slot count.
func (g *Grid) Len() int {
	return len(g.Slots)
}

// EffectiveStart is the first assignable slot index.
func (g *Grid) EffectiveStart() int {
	return g.StartOffset
}

// EffectiveEnd is one past the last assignable slot index.
func (g *Grid) EffectiveEnd() int {
	return len(g.Slots) - g.EndOffset
}

// EffectiveCount is the number of assignable slots.
func (g *Grid) EffectiveCount() int {
	return g.EffectiveEnd() - g.EffectiveStart()
}

// InRange reports whether slot index i is assignable.
func (g *Grid) InRange(i int) bool {
	return i >= g.EffectiveStart() && i < g.EffectiveEnd()
}

// Effective returns the assignable slots.
func (g *Grid) Effective() []ir.Slot {
	return g.Slots[g.EffectiveStart():g.EffectiveEnd()]
}

// SlotEnd returns the time at which slot i ends: the next slot's time, or
// the end of the soundtrack for the last slot.
func (g *Grid) SlotEnd(i int) float64 {
	if i+1 < len(g.Slots) {
		return g.Slots[i+1].Seconds
	}
	return g.Duration
}

// SecondsToFrame converts a time to a whole frame index, truncating.
func SecondsToFrame(seconds float64, fps int) int64 {
	return int64(math.Floor(seconds*float64(fps) + frameEpsilon))
}
