package beatgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatspine/internal/ir"
)

func TestGenerate_CountAndSpacing(t *testing.T) {
	g, err := Generate(120, 10, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 0.5, g.Spacing)
	assert.Equal(t, 21, g.Len(), "floor(10/0.5)+1")
	assert.Equal(t, 0, g.Slots[0].Index)
	assert.Equal(t, 0.0, g.Slots[0].Seconds)
	assert.InDelta(t, 10.0, g.Slots[20].Seconds, 1e-9)
}

func TestGenerate_PartialBeat(t *testing.T) {
	g, err := Generate(60, 3.7, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())
	assert.InDelta(t, 0.7, g.SlotEnd(3)-g.Slots[3].Seconds, 1e-9, "last slot runs to end of audio")
	assert.Equal(t, 1.0, g.SlotEnd(0))
}

func TestGenerate_EffectiveRange(t *testing.T) {
	g, err := Generate(60, 9, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, 10, g.Len())
	assert.Equal(t, 2, g.EffectiveStart())
	assert.Equal(t, 7, g.EffectiveEnd())
	assert.Equal(t, 5, g.EffectiveCount())
	assert.Len(t, g.Effective(), 5)
	assert.False(t, g.InRange(1))
	assert.True(t, g.InRange(2))
	assert.True(t, g.InRange(6))
	assert.False(t, g.InRange(7))
}

func TestGenerate_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name             string
		tempo, duration  float64
		startOff, endOff int
	}{
		{"zero tempo", 0, 10, 0, 0},
		{"negative tempo", -5, 10, 0, 0},
		{"zero duration", 120, 0, 0, 0},
		{"negative offset", 120, 10, -1, 0},
		{"offsets consume grid", 60, 4, 3, 2},
		{"offsets exactly consume grid", 60, 4, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.tempo, tt.duration, tt.startOff, tt.endOff)
			require.Error(t, err)
			assert.True(t, ir.IsConfigError(err), "expected INVALID_CONFIGURATION, got %v", err)
		})
	}
}

func TestSecondsToFrame(t *testing.T) {
	assert.Equal(t, int64(30), SecondsToFrame(0.5, 60))
	assert.Equal(t, int64(0), SecondsToFrame(0, 60))
	assert.Equal(t, int64(14), SecondsToFrame(0.499, 30))
	// 0.1 * 3 is 0.30000000000000004 in binary; 0.3*30 must still be frame 9.
	assert.Equal(t, int64(9), SecondsToFrame(0.1*3, 30))
}
