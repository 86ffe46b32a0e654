// Package host defines the narrow capability interface through which the
// reconciliation engine observes and mutates an external timeline
// application.
//
// Adapters translate host-native objects into the plain values defined
// here; nothing outside an adapter inspects host objects directly. Frames
// on Item and Marker values are absolute timeline frames, including the
// timeline's start frame.
package host

import (
	"context"
	"errors"
)

// Sentinel errors for host operations.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("operation not supported by host")
	ErrTimeout     = errors.New("host call timed out")
	ErrRejected    = errors.New("rejected by host")
)

// TrackKind is the media kind of a track.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// TrackKinds lists the kinds enumerated by a snapshot, in order.
var TrackKinds = []TrackKind{TrackVideo, TrackAudio}

// Project is a handle to a host project.
type Project struct {
	ID   string
	Name string
}

// Timeline is a handle to a timeline inside a project.
type Timeline struct {
	ID         string
	ProjectID  string
	Name       string
	StartFrame int64
}

// Track addresses a track by kind and 1-based index.
type Track struct {
	Kind  TrackKind
	Index int
}

// Item is a clip placed on a timeline track.
type Item struct {
	ID             string
	Name           string
	Track          Track
	StartFrame     int64 // absolute record frame
	DurationFrames int64
}

// Marker is a timeline marker. Frame is absolute.
type Marker struct {
	Frame int64
	Label string
	Note  string
	Color string
	Tag   string
}

// Media is an imported media pool entry.
type Media struct {
	ID         string
	Path       string
	FPS        float64 // 0 when the host does not report one
	StartFrame float64 // native first frame of the media
}

// ClipPlacement describes a clip to append to a timeline. SourceIn and
// SourceOut are in media frames; RecordFrame is the absolute timeline frame.
type ClipPlacement struct {
	Media       Media
	Track       Track
	SourceIn    float64
	SourceOut   float64
	RecordFrame int64
}

// Projects manages projects by name.
type Projects interface {
	FindProject(ctx context.Context, name string) (Project, error)
	CreateProject(ctx context.Context, name string) (Project, error)
	DeleteProject(ctx context.Context, name string) error
}

// Settings reads and writes project settings.
type Settings interface {
	Setting(ctx context.Context, p Project, key string) (string, error)
	SetSetting(ctx context.Context, p Project, key, value string) error
}

// Timelines manages timelines inside a project.
type Timelines interface {
	FindTimeline(ctx context.Context, p Project, name string) (Timeline, error)
	CreateTimeline(ctx context.Context, p Project, name string) (Timeline, error)
	SetCurrentTimeline(ctx context.Context, p Project, tl Timeline) error
}

// Items enumerates and places timeline items.
type Items interface {
	ListTracks(ctx context.Context, tl Timeline, kind TrackKind) ([]Track, error)
	ListItems(ctx context.Context, tl Timeline, tr Track) ([]Item, error)
	ItemTag(ctx context.Context, it Item) (string, error)
	SetItemTag(ctx context.Context, it Item, tag string) error
	AddItem(ctx context.Context, tl Timeline, clip ClipPlacement) (Item, error)
}

// Markers manages timeline markers.
type Markers interface {
	ListMarkers(ctx context.Context, tl Timeline) ([]Marker, error)
	AddMarker(ctx context.Context, tl Timeline, m Marker) error
	DeleteMarker(ctx context.Context, tl Timeline, frame int64) error
}

// Metadata is the host's key/value store attached to a timeline.
// Metadata returns "" for unset keys.
type Metadata interface {
	Metadata(ctx context.Context, tl Timeline, key string) (string, error)
	SetMetadata(ctx context.Context, tl Timeline, key, value string) error
}

// MediaPool imports source media.
type MediaPool interface {
	ImportMedia(ctx context.Context, p Project, paths []string) ([]Media, error)
	ListMedia(ctx context.Context, p Project) ([]Media, error)
}

// Host is the full capability set required by reconciliation.
type Host interface {
	Projects
	Settings
	Timelines
	Items
	Markers
	Metadata
	MediaPool
}

// ItemRemover is implemented by hosts that can delete a specific item.
type ItemRemover interface {
	RemoveItem(ctx context.Context, tl Timeline, it Item) error
}

// ItemMover is implemented by hosts that can reposition a specific item.
type ItemMover interface {
	MoveItem(ctx context.Context, tl Timeline, it Item, startFrame, durationFrames int64) error
}

// Dialer connects to a running host.
type Dialer interface {
	Dial(ctx context.Context) (Host, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (Host, error)

// Dial implements Dialer.
func (f DialFunc) Dial(ctx context.Context) (Host, error) {
	return f(ctx)
}
