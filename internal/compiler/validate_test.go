package compiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/source"
)

func validConfig() *Config {
	return &Config{
		Name:         "P",
		Timeline:     "P",
		Tempo:        120,
		FrameRate:    60,
		TimeGap:      ir.NoGap(),
		Placeholders: ir.PlaceholderNone,
		IDMethod:     source.IDInode,
		Manifest:     "/m.yaml",
	}
}

func codes(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateValid(t *testing.T) {
	assert.Empty(t, Validate(validConfig()))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	c := validConfig()
	c.Name = ""
	c.Tempo = 0
	c.FrameRate = -1
	c.EndOffset = -2
	c.Manifest = " "

	assert.ElementsMatch(t,
		[]string{ErrNameEmpty, ErrTempoRange, ErrFrameRateRange, ErrOffsetRange, ErrManifestRequired},
		codes(Validate(c)))
}

func TestValidateDateOrder(t *testing.T) {
	c := validConfig()
	c.StartDate = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	c.EndDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{ErrDateOrder}, codes(Validate(c)))

	c.EndDate = c.StartDate
	assert.Empty(t, Validate(c))

	c.StartDate = time.Time{}
	assert.Empty(t, Validate(c), "one-sided window is valid")
}

func TestValidatePins(t *testing.T) {
	c := validConfig()
	c.Pins = map[string]int{"": 2, "/b.jpg": 0, "/c.jpg": 5}
	assert.ElementsMatch(t, []string{ErrPinInvalid, ErrPinInvalid}, codes(Validate(c)))
}

func TestValidateEnumerations(t *testing.T) {
	c := validConfig()
	c.Placeholders = "sparkles"
	c.IDMethod = "hash"
	assert.ElementsMatch(t, []string{ErrPlaceholderMode, ErrIDMethod}, codes(Validate(c)))
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "tempo", Message: "tempo must be positive, got 0", Code: ErrTempoRange}
	assert.Equal(t, "[E102] tempo: tempo must be positive, got 0", e.Error())
}
