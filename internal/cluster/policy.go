package cluster

import (
	"strconv"
	"strings"

	"github.com/roach88/beatspine/internal/ir"
)

// ParsePolicy parses a gap policy string.
//
// Accepted forms:
//
//	none            no clustering
//	1-day           minimum gap of one day between clusters
//	1-year-same     group items from the same calendar year
//
// An amount of zero is equivalent to none.
func ParsePolicy(s string) (ir.GapPolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" {
		return ir.NoGap(), nil
	}

	parts := strings.Split(s, "-")
	if len(parts) < 2 || len(parts) > 3 {
		return ir.GapPolicy{}, ir.NewConfigError("invalid time gap format %q", s)
	}

	amount, err := strconv.Atoi(parts[0])
	if err != nil || amount < 0 {
		return ir.GapPolicy{}, ir.NewConfigError("invalid amount in time gap %q", parts[0])
	}

	unit := ir.TimeUnit(parts[1])
	if !ir.ValidTimeUnits[unit] {
		return ir.GapPolicy{}, ir.NewConfigError("invalid time unit %q", parts[1])
	}

	if len(parts) == 3 {
		if parts[2] != "same" {
			return ir.GapPolicy{}, ir.NewConfigError("invalid time gap modifier %q", parts[2])
		}
		if amount == 0 {
			return ir.NoGap(), nil
		}
		return ir.SamePeriod(unit), nil
	}

	if amount == 0 {
		return ir.NoGap(), nil
	}
	return ir.MinimumGap(amount, unit), nil
}

// FormatPolicy is the inverse of ParsePolicy.
func FormatPolicy(p ir.GapPolicy) string {
	switch {
	case p.Disabled():
		return "none"
	case p.Mode == ir.GapSamePeriod:
		return "1-" + string(p.Unit) + "-same"
	default:
		return strconv.Itoa(p.Amount) + "-" + string(p.Unit)
	}
}
