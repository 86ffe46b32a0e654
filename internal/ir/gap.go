package ir

// TimeUnit is the granularity used by gap policies.
type TimeUnit string

const (
	UnitSecond TimeUnit = "second"
	UnitMinute TimeUnit = "minute"
	UnitHour   TimeUnit = "hour"
	UnitDay    TimeUnit = "day"
	UnitWeek   TimeUnit = "week"
	UnitMonth  TimeUnit = "month"
	UnitYear   TimeUnit = "year"
)

// ValidTimeUnits defines the accepted time units.
var ValidTimeUnits = map[TimeUnit]bool{
	UnitSecond: true,
	UnitMinute: true,
	UnitHour:   true,
	UnitDay:    true,
	UnitWeek:   true,
	UnitMonth:  true,
	UnitYear:   true,
}

// GapMode selects the clustering strategy.
type GapMode string

const (
	GapNone       GapMode = "none"
	GapMinimum    GapMode = "minimum"
	GapSamePeriod GapMode = "same"
)

// GapPolicy configures temporal clustering of items.
type GapPolicy struct {
	Mode   GapMode  `json:"mode"`
	Amount int      `json:"amount,omitempty"` // minimum mode only
	Unit   TimeUnit `json:"unit,omitempty"`
}

// NoGap returns the identity policy: every item is its own cluster.
func NoGap() GapPolicy {
	return GapPolicy{Mode: GapNone}
}

// MinimumGap starts a new cluster whenever consecutive items are at least
// amount units apart.
func MinimumGap(amount int, unit TimeUnit) GapPolicy {
	return GapPolicy{Mode: GapMinimum, Amount: amount, Unit: unit}
}

// SamePeriod groups items falling into the same calendar period.
func SamePeriod(unit TimeUnit) GapPolicy {
	return GapPolicy{Mode: GapSamePeriod, Amount: 1, Unit: unit}
}

// Disabled reports whether the policy performs no grouping.
func (p GapPolicy) Disabled() bool {
	return p.Mode == "" || p.Mode == GapNone || (p.Mode == GapMinimum && p.Amount == 0)
}
