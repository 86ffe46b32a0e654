package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/beatspine/internal/assemble"
	"github.com/roach88/beatspine/internal/cluster"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/source"
)

//go:embed schema.cue
var schemaSource string

// Config is a compiled project configuration. Relative paths are resolved
// against the configuration file's directory by Load.
type Config struct {
	Name     string `json:"name"`
	Timeline string `json:"timeline"`

	Tempo       float64 `json:"tempo"`
	FrameRate   int     `json:"frameRate"`
	GapSeconds  float64 `json:"gapSeconds"`
	StartOffset int     `json:"startOffset"`
	EndOffset   int     `json:"endOffset"`

	TimeGap      ir.GapPolicy       `json:"timeGap"`
	Placeholders ir.PlaceholderMode `json:"placeholders"`
	IDMethod     source.IDMethod    `json:"idMethod"`

	Manifest  string         `json:"manifest"`
	StartDate time.Time      `json:"startDate,omitzero"`
	EndDate   time.Time      `json:"endDate,omitzero"`
	Pins      map[string]int `json:"pins,omitempty"`

	// AudioPath overrides the manifest soundtrack. AudioDuration is in
	// seconds; zero means read it from the file.
	AudioPath     string  `json:"audioPath,omitempty"`
	AudioDuration float64 `json:"audioDuration,omitempty"`
}

// Load reads, compiles and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Compile(data, path)
	if err != nil {
		return nil, err
	}
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, errs[0]
	}

	if err := cfg.ResolvePaths(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePaths makes the manifest, soundtrack and pin paths absolute,
// relative to the directory of the configuration file at configPath. Pin
// keys then match item IDs, which are absolute.
func (c *Config) ResolvePaths(configPath string) error {
	dir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return fmt.Errorf("resolve config directory: %w", err)
	}
	c.Manifest = resolve(dir, c.Manifest)
	if c.AudioPath != "" {
		c.AudioPath = resolve(dir, c.AudioPath)
	}
	if len(c.Pins) > 0 {
		pins := make(map[string]int, len(c.Pins))
		for k, slot := range c.Pins {
			pins[resolve(dir, k)] = slot
		}
		c.Pins = pins
	}
	return nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// Compile unifies CUE source with the project schema and extracts a Config.
// filename is used for error positions only.
func Compile(src []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("project schema: %w", err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Project")).Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProject(v)
}

// CompileProject extracts a Config from a value already unified with the
// project schema.
func CompileProject(v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var (
		cfg    Config
		policy string
		place  string
		method string
	)
	for _, f := range []struct {
		path string
		dst  any
	}{
		{"name", &cfg.Name},
		{"tempo", &cfg.Tempo},
		{"frameRate", &cfg.FrameRate},
		{"gapSeconds", &cfg.GapSeconds},
		{"startOffset", &cfg.StartOffset},
		{"endOffset", &cfg.EndOffset},
		{"timeGap", &policy},
		{"placeholders", &place},
		{"idMethod", &method},
		{"manifest", &cfg.Manifest},
	} {
		if err := decodeField(v, f.path, f.dst); err != nil {
			return nil, err
		}
	}
	cfg.Placeholders = ir.PlaceholderMode(place)
	cfg.IDMethod = source.IDMethod(method)

	cfg.Timeline = cfg.Name
	if tl := v.LookupPath(cue.ParsePath("timeline")); tl.Exists() {
		if err := decodeField(v, "timeline", &cfg.Timeline); err != nil {
			return nil, err
		}
	}

	gap, err := cluster.ParsePolicy(policy)
	if err != nil {
		return nil, &CompileError{
			Field:   "timeGap",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("timeGap")).Pos(),
		}
	}
	cfg.TimeGap = gap

	for _, d := range []struct {
		path string
		dst  *time.Time
	}{
		{"startDate", &cfg.StartDate},
		{"endDate", &cfg.EndDate},
	} {
		dv := v.LookupPath(cue.ParsePath(d.path))
		if !dv.Exists() {
			continue
		}
		s, err := dv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t, err := source.ParseTimestamp(s)
		if err != nil {
			return nil, &CompileError{Field: d.path, Message: err.Error(), Pos: dv.Pos()}
		}
		*d.dst = t
	}

	if pv := v.LookupPath(cue.ParsePath("pins")); pv.Exists() {
		cfg.Pins = make(map[string]int)
		iter, err := pv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			n, err := iter.Value().Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			cfg.Pins[iter.Label()] = int(n)
		}
	}

	if av := v.LookupPath(cue.ParsePath("audio.path")); av.Exists() {
		if err := decodeField(v, "audio.path", &cfg.AudioPath); err != nil {
			return nil, err
		}
	}
	if av := v.LookupPath(cue.ParsePath("audio.duration")); av.Exists() {
		if err := decodeField(v, "audio.duration", &cfg.AudioDuration); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func decodeField(v cue.Value, path string, dst any) error {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return &CompileError{Field: path, Message: path + " is required", Pos: v.Pos()}
	}
	if d, ok := fv.Default(); ok {
		fv = d
	}
	var err error
	switch d := dst.(type) {
	case *string:
		*d, err = fv.String()
	case *float64:
		*d, err = fv.Float64()
	case *int:
		var n int64
		n, err = fv.Int64()
		*d = int(n)
	default:
		panic(fmt.Sprintf("compiler: unsupported field type %T", dst))
	}
	if err != nil {
		return formatCUEError(err)
	}
	return nil
}

// AssembleOptions maps the configuration onto assemble.Options. The
// caller supplies the soundtrack, whose path and duration may come from
// the manifest or the file itself.
func (c *Config) AssembleOptions(audio assemble.Audio) assemble.Options {
	return assemble.Options{
		Name:            c.Name,
		FrameRate:       c.FrameRate,
		Tempo:           c.Tempo,
		Gap:             c.GapSeconds,
		StartOffset:     c.StartOffset,
		EndOffset:       c.EndOffset,
		Policy:          c.TimeGap,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		Pins:            c.Pins,
		PlaceholderMode: c.Placeholders,
		Audio:           audio,
	}
}
