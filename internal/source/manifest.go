package source

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beatspine/internal/ir"
)

// ErrNoItems is returned when a source yields no usable items.
var ErrNoItems = errors.New("no usable items")

// ItemSource yields the photos to place, ordered by timestamp.
type ItemSource interface {
	Items(ctx context.Context) ([]ir.Item, error)
}

// Manifest is a parsed photo manifest.
type Manifest struct {
	// Audio optionally names the soundtrack.
	Audio *AudioEntry `yaml:"audio,omitempty"`

	// Photos lists the candidate items.
	Photos []PhotoEntry `yaml:"photos"`

	// dir resolves relative paths.
	dir string
}

// AudioEntry names the soundtrack and, optionally, its duration in seconds.
type AudioEntry struct {
	Path     string  `yaml:"path"`
	Duration float64 `yaml:"duration,omitempty"`
}

// PhotoEntry is one manifest line.
type PhotoEntry struct {
	// Path is the photo file, relative to the manifest.
	Path string `yaml:"path"`

	// Taken is the capture time. When empty, a screenshot file name is
	// consulted.
	Taken string `yaml:"taken,omitempty"`

	// Comment is free text; "beat:N" or a bare number pins the photo.
	Comment string `yaml:"comment,omitempty"`

	// Pin is an explicit 1-based slot request and wins over Comment.
	Pin int `yaml:"pin,omitempty"`
}

// LoadManifest reads and parses a manifest YAML file. Unknown fields are
// rejected so that typos surface as errors.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve manifest directory: %w", err)
	}
	m.dir = abs
	return &m, nil
}

// Resolve returns p as an absolute path relative to the manifest.
func (m *Manifest) Resolve(p string) string {
	if filepath.IsAbs(p) || m.dir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(m.dir, p)
}

// ManifestSource adapts a Manifest to ItemSource.
type ManifestSource struct {
	Manifest *Manifest

	// RequireFiles skips entries whose file does not exist.
	RequireFiles bool

	Logger *slog.Logger
}

// Items converts the manifest entries to items sorted by timestamp, then
// by path. Unreadable entries are logged and skipped.
func (s *ManifestSource) Items(ctx context.Context) ([]ir.Item, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	var items []ir.Item
	seen := make(map[string]bool)
	for i, e := range s.Manifest.Photos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it, err := s.item(e)
		if err != nil {
			log.Warn("skipping manifest entry", "index", i, "path", e.Path, "error", err)
			continue
		}
		if seen[it.ID] {
			log.Warn("skipping duplicate manifest entry", "index", i, "path", it.ID)
			continue
		}
		seen[it.ID] = true
		items = append(items, it)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("manifest: %w (%d entries)", ErrNoItems, len(s.Manifest.Photos))
	}

	slices.SortStableFunc(items, func(a, b ir.Item) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	log.Debug("loaded manifest", "items", len(items), "skipped", len(s.Manifest.Photos)-len(items))
	return items, nil
}

func (s *ManifestSource) item(e PhotoEntry) (ir.Item, error) {
	if e.Path == "" {
		return ir.Item{}, errors.New("path is required")
	}
	path := s.Manifest.Resolve(e.Path)
	if s.RequireFiles {
		if _, err := os.Stat(path); err != nil {
			return ir.Item{}, err
		}
	}

	it := ir.Item{ID: path, Comment: e.Comment}
	if e.Taken != "" {
		t, err := ParseTimestamp(e.Taken)
		if err != nil {
			return ir.Item{}, err
		}
		it.Timestamp = t
	} else {
		t, ok := TimestampFromFilename(path)
		if !ok {
			return ir.Item{}, errors.New("no capture time")
		}
		it.Timestamp = t
	}

	switch {
	case e.Pin < 0:
		return ir.Item{}, fmt.Errorf("pin %d must be positive", e.Pin)
	case e.Pin > 0:
		it.Pin = e.Pin
	default:
		it.Pin, _ = ParsePinComment(e.Comment)
	}
	return it, nil
}
