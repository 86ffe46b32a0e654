package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatspine/internal/ir"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want ir.GapPolicy
	}{
		{"none", ir.NoGap()},
		{"", ir.NoGap()},
		{"NONE", ir.NoGap()},
		{"1-day", ir.MinimumGap(1, ir.UnitDay)},
		{"20-second", ir.MinimumGap(20, ir.UnitSecond)},
		{"3-Week", ir.MinimumGap(3, ir.UnitWeek)},
		{"1-year-same", ir.SamePeriod(ir.UnitYear)},
		{"1-month-same", ir.SamePeriod(ir.UnitMonth)},
		{"0-day", ir.NoGap()},
		{"0-day-same", ir.NoGap()},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePolicy_Invalid(t *testing.T) {
	for _, in := range []string{"day", "x-day", "-1-day", "1-fortnight", "1-day-other", "1-day-same-extra"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePolicy(in)
			require.Error(t, err)
			assert.True(t, ir.IsConfigError(err))
		})
	}
}

func TestFormatPolicy_RoundTrip(t *testing.T) {
	for _, in := range []string{"none", "2-hour", "1-month-same"} {
		p, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, in, FormatPolicy(p))
	}
}
