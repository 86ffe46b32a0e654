package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatspine/internal/assemble"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/source"
)

func TestCompileDefaults(t *testing.T) {
	cfg, err := Compile([]byte(`
		name:     "Summer"
		tempo:    120
		manifest: "photos.yaml"
	`), "project.cue")
	require.NoError(t, err)

	assert.Equal(t, "Summer", cfg.Name)
	assert.Equal(t, "Summer", cfg.Timeline)
	assert.Equal(t, 120.0, cfg.Tempo)
	assert.Equal(t, 60, cfg.FrameRate)
	assert.Equal(t, 0.0, cfg.GapSeconds)
	assert.Equal(t, 0, cfg.StartOffset)
	assert.Equal(t, 0, cfg.EndOffset)
	assert.True(t, cfg.TimeGap.Disabled())
	assert.Equal(t, ir.PlaceholderNone, cfg.Placeholders)
	assert.Equal(t, source.IDInode, cfg.IDMethod)
	assert.Nil(t, cfg.Pins)
	assert.True(t, cfg.StartDate.IsZero())
	assert.Empty(t, cfg.AudioPath)
}

func TestCompileAllFields(t *testing.T) {
	cfg, err := Compile([]byte(`
		name:         "Trip"
		timeline:     "Trip v2"
		tempo:        96.5
		frameRate:    30
		gapSeconds:   1.5
		startOffset:  2
		endOffset:    4
		timeGap:      "1-month-same"
		placeholders: "title"
		idMethod:     "content"
		manifest:     "shots/manifest.yaml"
		startDate:    "2024-01-01"
		endDate:      "2024-03-31T23:59:59Z"
		pins: {
			"shots/a.jpg": 3
			"shots/b.jpg": 10
		}
		audio: {
			path:     "song.wav"
			duration: 184.2
		}
	`), "project.cue")
	require.NoError(t, err)

	assert.Equal(t, "Trip v2", cfg.Timeline)
	assert.Equal(t, 96.5, cfg.Tempo)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.Equal(t, 1.5, cfg.GapSeconds)
	assert.Equal(t, 2, cfg.StartOffset)
	assert.Equal(t, 4, cfg.EndOffset)
	assert.Equal(t, ir.SamePeriod(ir.UnitMonth), cfg.TimeGap)
	assert.Equal(t, ir.PlaceholderTitle, cfg.Placeholders)
	assert.Equal(t, source.IDContent, cfg.IDMethod)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, map[string]int{"shots/a.jpg": 3, "shots/b.jpg": 10}, cfg.Pins)
	assert.Equal(t, "song.wav", cfg.AudioPath)
	assert.Equal(t, 184.2, cfg.AudioDuration)
}

func TestCompileSchemaViolations(t *testing.T) {
	base := `name: "P", manifest: "m.yaml"` + "\n"
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing tempo", base, "tempo"},
		{"zero tempo", base + `tempo: 0`, "tempo"},
		{"negative offset", base + "tempo: 120\nstartOffset: -1", "startOffset"},
		{"fractional frame rate", base + "tempo: 120\nframeRate: 29.97", "frameRate"},
		{"unknown placeholder", base + "tempo: 120\nplaceholders: \"sparkles\"", "placeholders"},
		{"unknown id method", base + "tempo: 120\nidMethod: \"hash\"", "idMethod"},
		{"zero pin", base + "tempo: 120\npins: {\"a.jpg\": 0}", "pins"},
		{"unknown field", base + "tempo: 120\ncolour: \"red\"", "colour"},
		{"blank name", `name: "  ", manifest: "m.yaml", tempo: 120`, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.src), "project.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestCompileSyntaxErrorHasPosition(t *testing.T) {
	_, err := Compile([]byte("name: \"P\"\ntempo: {\n"), "broken.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompileRejectsBadPolicyAndDates(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		field string
	}{
		{"policy unit", `timeGap: "3-fortnight"`, "timeGap"},
		{"policy modifier", `timeGap: "1-day-other"`, "timeGap"},
		{"start date", `startDate: "last tuesday"`, "startDate"},
		{"end date", `endDate: "2024-13-01"`, "endDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(`name: "P", tempo: 120, manifest: "m.yaml"`+"\n"+tt.extra), "project.cue")
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
		name:     "P"
		tempo:    120
		manifest: "photos/manifest.yaml"
		audio: path: "/abs/song.wav"
	`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "photos", "manifest.yaml"), cfg.Manifest)
	assert.Equal(t, "/abs/song.wav", cfg.AudioPath)
}

func TestLoadResolvesPinPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
		name:     "P"
		tempo:    120
		manifest: "photos.yaml"
		pins: {
			"shots/a.jpg": 3
			"/abs/b.jpg":  7
		}
	`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		filepath.Join(dir, "shots", "a.jpg"): 3,
		"/abs/b.jpg":                         7,
	}, cfg.Pins)
}

func TestLoadRunsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
		name:      "P"
		tempo:     120
		manifest:  "m.yaml"
		startDate: "2024-06-01"
		endDate:   "2024-05-01"
	`), 0o644))

	_, err := Load(path)
	var ve ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, ErrDateOrder, ve.Code)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestAssembleOptions(t *testing.T) {
	cfg := &Config{
		Name:         "P",
		Tempo:        100,
		FrameRate:    24,
		GapSeconds:   2,
		StartOffset:  1,
		EndOffset:    3,
		TimeGap:      ir.MinimumGap(2, ir.UnitHour),
		Placeholders: ir.PlaceholderCaptions,
		Pins:         map[string]int{"/a.jpg": 4},
	}
	audio := assemble.Audio{Path: "/song.wav", Duration: 60}

	opts := cfg.AssembleOptions(audio)
	assert.Equal(t, "P", opts.Name)
	assert.Equal(t, 100.0, opts.Tempo)
	assert.Equal(t, 24, opts.FrameRate)
	assert.Equal(t, 2.0, opts.Gap)
	assert.Equal(t, 1, opts.StartOffset)
	assert.Equal(t, 3, opts.EndOffset)
	assert.Equal(t, cfg.TimeGap, opts.Policy)
	assert.Equal(t, ir.PlaceholderCaptions, opts.PlaceholderMode)
	assert.Equal(t, cfg.Pins, opts.Pins)
	assert.Equal(t, audio, opts.Audio)
}
