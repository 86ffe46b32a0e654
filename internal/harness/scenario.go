package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beatspine/internal/reconcile"
	"github.com/roach88/beatspine/internal/source"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is CUE project configuration source. The manifest field is
	// required by the schema but ignored; photos come from Photos.
	Config string `yaml:"config"`

	// Photos are the candidate items, in manifest format.
	Photos []source.PhotoEntry `yaml:"photos"`

	// Runs are reconciliation runs executed in order against one host.
	Runs []RunSpec `yaml:"runs,omitempty"`

	// Assertions validate the placements and final host state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RunSpec is one reconciliation run.
type RunSpec struct {
	// Edits are applied to the host before the run.
	Edits []Edit `yaml:"edits,omitempty"`

	Force    bool `yaml:"force,omitempty"`
	DryRun   bool `yaml:"dry_run,omitempty"`
	Recreate bool `yaml:"recreate,omitempty"`

	// Confirm answers the conflict prompt. Nil means no operator is
	// present and conflicts block the run.
	Confirm *bool `yaml:"confirm,omitempty"`

	Expect *RunExpect `yaml:"expect,omitempty"`
}

// Edit simulates a manual change made in the host between runs. Frames are
// relative to the timeline start.
type Edit struct {
	Type     string `yaml:"type"`
	Path     string `yaml:"path,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Track    int    `yaml:"track,omitempty"`
	Frame    int64  `yaml:"frame,omitempty"`
	Frames   int64  `yaml:"frames,omitempty"`
	Duration int64  `yaml:"duration,omitempty"`
	Tag      string `yaml:"tag,omitempty"`
	Label    string `yaml:"label,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// Edit types.
const (
	EditShift       = "shift"
	EditPlaceItem   = "place_item"
	EditPlaceMarker = "place_marker"
	EditLock        = "lock"
)

// RunExpect is a subset match against a run's report. Nil counts are not
// checked.
type RunExpect struct {
	Outcome   reconcile.Outcome `yaml:"outcome,omitempty"`
	Error     string            `yaml:"error,omitempty"` // reconcile error code
	Added     *int              `yaml:"added,omitempty"`
	Removed   *int              `yaml:"removed,omitempty"`
	Updated   *int              `yaml:"updated,omitempty"`
	Skipped   *int              `yaml:"skipped,omitempty"`
	Failed    *int              `yaml:"failed,omitempty"`
	Conflicts *int              `yaml:"conflicts,omitempty"`
	Markers   *int              `yaml:"markers,omitempty"` // planned marker operations
}

// Assertion validates placements or final host state.
type Assertion struct {
	Type string `yaml:"type"`

	// Item is a photo path (placement, unplaced).
	Item string `yaml:"item,omitempty"`

	// Slot is 1-based (placement).
	Slot int `yaml:"slot,omitempty"`

	// Code is an ir error code (build_error).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number (timeline_items, markers).
	Count *int `yaml:"count,omitempty"`

	// Tagged restricts timeline_items to tagged (true) or untagged (false)
	// items.
	Tagged *bool `yaml:"tagged,omitempty"`
}

// Assertion types.
const (
	AssertPlacement     = "placement"
	AssertUnplaced      = "unplaced"
	AssertBuildError    = "build_error"
	AssertTimelineItems = "timeline_items"
	AssertMarkers       = "markers"
	AssertSynced        = "synced"
)

// LoadScenario loads a scenario from a YAML file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Config == "" {
		return fmt.Errorf("config is required")
	}
	if len(s.Photos) == 0 {
		return fmt.Errorf("at least one photo is required")
	}
	for i, r := range s.Runs {
		for j, e := range r.Edits {
			if err := validateEdit(e); err != nil {
				return fmt.Errorf("runs[%d].edits[%d]: %w", i, j, err)
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateEdit(e Edit) error {
	switch e.Type {
	case EditShift:
		if e.Path == "" {
			return fmt.Errorf("path is required for shift")
		}
	case EditPlaceItem:
		if e.Name == "" || e.Duration <= 0 {
			return fmt.Errorf("name and a positive duration are required for place_item")
		}
	case EditPlaceMarker:
		if e.Label == "" {
			return fmt.Errorf("label is required for place_marker")
		}
	case EditLock:
		if e.Token == "" {
			return fmt.Errorf("token is required for lock")
		}
	default:
		return fmt.Errorf("unknown edit type %q", e.Type)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertPlacement:
		if a.Item == "" || a.Slot < 1 {
			return fmt.Errorf("item and a 1-based slot are required for placement")
		}
	case AssertUnplaced:
		if a.Item == "" {
			return fmt.Errorf("item is required for unplaced")
		}
	case AssertBuildError:
		if a.Code == "" {
			return fmt.Errorf("code is required for build_error")
		}
	case AssertTimelineItems, AssertMarkers:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("a non-negative count is required for %s", a.Type)
		}
	case AssertSynced:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
