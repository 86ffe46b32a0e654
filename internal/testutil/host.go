package testutil

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/beatspine/internal/host"
)

// FakeHost is an in-memory timeline host for tests.
//
// It implements host.Host, host.ItemRemover, host.ItemMover and
// host.Dialer. Failures are injected per operation through Fail and per
// media path through FailAdd. Every mutating call is appended to Mutations
// so tests can assert that a session changed nothing.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeHost struct {
	mu sync.Mutex

	// Fail maps an operation name (e.g. "SetSetting", "AddItem") to the
	// error it returns.
	Fail map[string]error

	// FailAdd maps a media path to the error AddItem returns for it.
	FailAdd map[string]error

	// Unreachable makes Dial fail.
	Unreachable bool

	// StartFrame is the start frame of created timelines.
	StartFrame int64

	// MediaFPS reports a native frame rate for imported paths.
	MediaFPS map[string]float64

	// Delay is slept (honoring the context) before every call.
	Delay time.Duration

	Mutations []string

	projects []*fakeProject
	nextID   int
}

// FakeItem is the stored state of a timeline item.
type FakeItem struct {
	host.Item
	Tag       string
	MediaPath string
	SourceIn  float64
	SourceOut float64
}

type fakeProject struct {
	id        string
	name      string
	settings  map[string]string
	timelines []*fakeTimeline
	media     []host.Media
	current   string
}

type fakeTimeline struct {
	tl      host.Timeline
	tracks  map[host.TrackKind]int
	items   []*FakeItem
	markers []host.Marker
	meta    map[string]string
}

// NewFakeHost returns an empty host.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		Fail:     make(map[string]error),
		FailAdd:  make(map[string]error),
		MediaFPS: make(map[string]float64),
	}
}

// Dial implements host.Dialer.
func (f *FakeHost) Dial(ctx context.Context) (host.Host, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable {
		return nil, fmt.Errorf("connection refused")
	}
	return f, nil
}

func (f *FakeHost) enter(ctx context.Context, op string) error {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := f.Fail[op]; err != nil {
		return err
	}
	return nil
}

func (f *FakeHost) mutate(format string, args ...any) {
	f.Mutations = append(f.Mutations, fmt.Sprintf(format, args...))
}

func (f *FakeHost) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeHost) project(p host.Project) (*fakeProject, error) {
	for _, fp := range f.projects {
		if fp.id == p.ID {
			return fp, nil
		}
	}
	return nil, fmt.Errorf("project %q: %w", p.Name, host.ErrNotFound)
}

func (f *FakeHost) timeline(tl host.Timeline) (*fakeTimeline, error) {
	for _, fp := range f.projects {
		for _, ft := range fp.timelines {
			if ft.tl.ID == tl.ID {
				return ft, nil
			}
		}
	}
	return nil, fmt.Errorf("timeline %q: %w", tl.Name, host.ErrNotFound)
}

func (f *FakeHost) FindProject(ctx context.Context, name string) (host.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "FindProject"); err != nil {
		return host.Project{}, err
	}
	for _, fp := range f.projects {
		if fp.name == name {
			return host.Project{ID: fp.id, Name: fp.name}, nil
		}
	}
	return host.Project{}, fmt.Errorf("project %q: %w", name, host.ErrNotFound)
}

func (f *FakeHost) CreateProject(ctx context.Context, name string) (host.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "CreateProject"); err != nil {
		return host.Project{}, err
	}
	fp := &fakeProject{id: f.newID("project"), name: name, settings: make(map[string]string)}
	f.projects = append(f.projects, fp)
	f.mutate("CreateProject %s", name)
	return host.Project{ID: fp.id, Name: name}, nil
}

func (f *FakeHost) DeleteProject(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "DeleteProject"); err != nil {
		return err
	}
	i := slices.IndexFunc(f.projects, func(fp *fakeProject) bool { return fp.name == name })
	if i < 0 {
		return fmt.Errorf("project %q: %w", name, host.ErrNotFound)
	}
	f.projects = slices.Delete(f.projects, i, i+1)
	f.mutate("DeleteProject %s", name)
	return nil
}

func (f *FakeHost) Setting(ctx context.Context, p host.Project, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "Setting"); err != nil {
		return "", err
	}
	fp, err := f.project(p)
	if err != nil {
		return "", err
	}
	return fp.settings[key], nil
}

func (f *FakeHost) SetSetting(ctx context.Context, p host.Project, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "SetSetting"); err != nil {
		return err
	}
	if err := f.Fail["SetSetting:"+key]; err != nil {
		return err
	}
	fp, err := f.project(p)
	if err != nil {
		return err
	}
	fp.settings[key] = value
	f.mutate("SetSetting %s=%s", key, value)
	return nil
}

func (f *FakeHost) FindTimeline(ctx context.Context, p host.Project, name string) (host.Timeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "FindTimeline"); err != nil {
		return host.Timeline{}, err
	}
	fp, err := f.project(p)
	if err != nil {
		return host.Timeline{}, err
	}
	for _, ft := range fp.timelines {
		if ft.tl.Name == name {
			return ft.tl, nil
		}
	}
	return host.Timeline{}, fmt.Errorf("timeline %q: %w", name, host.ErrNotFound)
}

func (f *FakeHost) CreateTimeline(ctx context.Context, p host.Project, name string) (host.Timeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "CreateTimeline"); err != nil {
		return host.Timeline{}, err
	}
	fp, err := f.project(p)
	if err != nil {
		return host.Timeline{}, err
	}
	ft := &fakeTimeline{
		tl:     host.Timeline{ID: f.newID("timeline"), ProjectID: fp.id, Name: name, StartFrame: f.StartFrame},
		tracks: map[host.TrackKind]int{host.TrackVideo: 1, host.TrackAudio: 1},
		meta:   make(map[string]string),
	}
	fp.timelines = append(fp.timelines, ft)
	f.mutate("CreateTimeline %s", name)
	return ft.tl, nil
}

func (f *FakeHost) SetCurrentTimeline(ctx context.Context, p host.Project, tl host.Timeline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "SetCurrentTimeline"); err != nil {
		return err
	}
	fp, err := f.project(p)
	if err != nil {
		return err
	}
	if fp.current != tl.ID {
		fp.current = tl.ID
		f.mutate("SetCurrentTimeline %s", tl.Name)
	}
	return nil
}

func (f *FakeHost) ListTracks(ctx context.Context, tl host.Timeline, kind host.TrackKind) ([]host.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ListTracks"); err != nil {
		return nil, err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return nil, err
	}
	tracks := make([]host.Track, ft.tracks[kind])
	for i := range tracks {
		tracks[i] = host.Track{Kind: kind, Index: i + 1}
	}
	return tracks, nil
}

func (f *FakeHost) ListItems(ctx context.Context, tl host.Timeline, tr host.Track) ([]host.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ListItems"); err != nil {
		return nil, err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return nil, err
	}
	var out []host.Item
	for _, it := range ft.items {
		if it.Track == tr {
			out = append(out, it.Item)
		}
	}
	slices.SortFunc(out, func(a, b host.Item) int { return cmp.Compare(a.StartFrame, b.StartFrame) })
	return out, nil
}

func (f *FakeHost) findItem(id string) (*fakeTimeline, *FakeItem) {
	for _, fp := range f.projects {
		for _, ft := range fp.timelines {
			for _, it := range ft.items {
				if it.ID == id {
					return ft, it
				}
			}
		}
	}
	return nil, nil
}

func (f *FakeHost) ItemTag(ctx context.Context, it host.Item) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ItemTag"); err != nil {
		return "", err
	}
	_, fi := f.findItem(it.ID)
	if fi == nil {
		return "", fmt.Errorf("item %q: %w", it.ID, host.ErrNotFound)
	}
	return fi.Tag, nil
}

func (f *FakeHost) SetItemTag(ctx context.Context, it host.Item, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "SetItemTag"); err != nil {
		return err
	}
	_, fi := f.findItem(it.ID)
	if fi == nil {
		return fmt.Errorf("item %q: %w", it.ID, host.ErrNotFound)
	}
	fi.Tag = tag
	f.mutate("SetItemTag %s %s", it.Name, tag)
	return nil
}

func (f *FakeHost) AddItem(ctx context.Context, tl host.Timeline, clip host.ClipPlacement) (host.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "AddItem"); err != nil {
		return host.Item{}, err
	}
	if err := f.FailAdd[clip.Media.Path]; err != nil {
		return host.Item{}, err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return host.Item{}, err
	}
	if clip.Track.Index > ft.tracks[clip.Track.Kind] {
		ft.tracks[clip.Track.Kind] = clip.Track.Index
	}

	fps := clip.Media.FPS
	dur := clip.SourceOut - clip.SourceIn
	if fps > 0 && clip.Track.Kind == host.TrackVideo {
		if tfps := f.timelineFPS(tl); tfps > 0 {
			dur = dur * tfps / fps
		}
	}

	fi := &FakeItem{
		Item: host.Item{
			ID:             f.newID("item"),
			Name:           clip.Media.Path,
			Track:          clip.Track,
			StartFrame:     clip.RecordFrame,
			DurationFrames: int64(dur + 0.5),
		},
		MediaPath: clip.Media.Path,
		SourceIn:  clip.SourceIn,
		SourceOut: clip.SourceOut,
	}
	ft.items = append(ft.items, fi)
	f.mutate("AddItem %s@%d+%d", clip.Media.Path, fi.StartFrame, fi.DurationFrames)
	return fi.Item, nil
}

// timelineFPS reads the project frame rate setting, 0 when unset.
func (f *FakeHost) timelineFPS(tl host.Timeline) float64 {
	for _, fp := range f.projects {
		if fp.id != tl.ProjectID {
			continue
		}
		var fps float64
		if _, err := fmt.Sscanf(fp.settings["timelineFrameRate"], "%g", &fps); err == nil {
			return fps
		}
	}
	return 0
}

func (f *FakeHost) RemoveItem(ctx context.Context, tl host.Timeline, it host.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "RemoveItem"); err != nil {
		return err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(ft.items, func(fi *FakeItem) bool { return fi.ID == it.ID })
	if i < 0 {
		return fmt.Errorf("item %q: %w", it.ID, host.ErrNotFound)
	}
	ft.items = slices.Delete(ft.items, i, i+1)
	f.mutate("RemoveItem %s", it.Name)
	return nil
}

func (f *FakeHost) MoveItem(ctx context.Context, tl host.Timeline, it host.Item, startFrame, durationFrames int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "MoveItem"); err != nil {
		return err
	}
	_, fi := f.findItem(it.ID)
	if fi == nil {
		return fmt.Errorf("item %q: %w", it.ID, host.ErrNotFound)
	}
	fi.StartFrame = startFrame
	fi.DurationFrames = durationFrames
	f.mutate("MoveItem %s@%d+%d", it.Name, startFrame, durationFrames)
	return nil
}

func (f *FakeHost) ListMarkers(ctx context.Context, tl host.Timeline) ([]host.Marker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ListMarkers"); err != nil {
		return nil, err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return nil, err
	}
	return slices.Clone(ft.markers), nil
}

func (f *FakeHost) AddMarker(ctx context.Context, tl host.Timeline, m host.Marker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "AddMarker"); err != nil {
		return err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(ft.markers, func(x host.Marker) bool { return x.Frame == m.Frame }) {
		return fmt.Errorf("marker at frame %d: %w", m.Frame, host.ErrRejected)
	}
	ft.markers = append(ft.markers, m)
	slices.SortFunc(ft.markers, func(a, b host.Marker) int { return cmp.Compare(a.Frame, b.Frame) })
	f.mutate("AddMarker %d %s", m.Frame, m.Label)
	return nil
}

func (f *FakeHost) DeleteMarker(ctx context.Context, tl host.Timeline, frame int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "DeleteMarker"); err != nil {
		return err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(ft.markers, func(x host.Marker) bool { return x.Frame == frame })
	if i < 0 {
		return fmt.Errorf("marker at frame %d: %w", frame, host.ErrNotFound)
	}
	ft.markers = slices.Delete(ft.markers, i, i+1)
	f.mutate("DeleteMarker %d", frame)
	return nil
}

func (f *FakeHost) Metadata(ctx context.Context, tl host.Timeline, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "Metadata"); err != nil {
		return "", err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return "", err
	}
	return ft.meta[key], nil
}

func (f *FakeHost) SetMetadata(ctx context.Context, tl host.Timeline, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "SetMetadata"); err != nil {
		return err
	}
	ft, err := f.timeline(tl)
	if err != nil {
		return err
	}
	ft.meta[key] = value
	f.mutate("SetMetadata %s", key)
	return nil
}

func (f *FakeHost) ImportMedia(ctx context.Context, p host.Project, paths []string) ([]host.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ImportMedia"); err != nil {
		return nil, err
	}
	fp, err := f.project(p)
	if err != nil {
		return nil, err
	}
	var out []host.Media
	for _, path := range paths {
		if f.Fail["ImportMedia:"+path] != nil {
			continue
		}
		m := host.Media{ID: f.newID("media"), Path: path, FPS: f.MediaFPS[path]}
		fp.media = append(fp.media, m)
		out = append(out, m)
	}
	f.mutate("ImportMedia %d", len(out))
	return out, nil
}

func (f *FakeHost) ListMedia(ctx context.Context, p host.Project) ([]host.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ListMedia"); err != nil {
		return nil, err
	}
	fp, err := f.project(p)
	if err != nil {
		return nil, err
	}
	return slices.Clone(fp.media), nil
}

// Test helpers. These bypass failure injection and are not recorded as
// mutations.

func (f *FakeHost) mustTimeline(project, timeline string) *fakeTimeline {
	for _, fp := range f.projects {
		if fp.name != project {
			continue
		}
		for _, ft := range fp.timelines {
			if ft.tl.Name == timeline {
				return ft
			}
		}
	}
	panic(fmt.Sprintf("FakeHost: no timeline %s/%s", project, timeline))
}

// Items returns a copy of the items on a timeline, ordered by track and
// start frame.
func (f *FakeHost) Items(project, timeline string) []FakeItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := f.mustTimeline(project, timeline)
	out := make([]FakeItem, len(ft.items))
	for i, it := range ft.items {
		out[i] = *it
	}
	slices.SortStableFunc(out, func(a, b FakeItem) int {
		if c := cmp.Compare(a.Track.Kind, b.Track.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.StartFrame, b.StartFrame)
	})
	return out
}

// MarkerList returns the markers on a timeline in frame order.
func (f *FakeHost) MarkerList(project, timeline string) []host.Marker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.mustTimeline(project, timeline).markers)
}

// MetadataValue reads a timeline metadata key.
func (f *FakeHost) MetadataValue(project, timeline, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mustTimeline(project, timeline).meta[key]
}

// PutMetadata writes a timeline metadata key.
func (f *FakeHost) PutMetadata(project, timeline, key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mustTimeline(project, timeline).meta[key] = value
}

// SettingValue reads a project setting.
func (f *FakeHost) SettingValue(project, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fp := range f.projects {
		if fp.name == project {
			return fp.settings[key]
		}
	}
	return ""
}

// CurrentTimeline returns the name of a project's active timeline.
func (f *FakeHost) CurrentTimeline(project string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fp := range f.projects {
		if fp.name != project {
			continue
		}
		for _, ft := range fp.timelines {
			if ft.tl.ID == fp.current {
				return ft.tl.Name
			}
		}
	}
	return ""
}

// PlaceItem simulates a manual edit: an item with the given tag ("" for
// untagged) placed directly on a timeline.
func (f *FakeHost) PlaceItem(project, timeline string, track host.Track, name, tag string, start, duration int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := f.mustTimeline(project, timeline)
	if track.Index > ft.tracks[track.Kind] {
		ft.tracks[track.Kind] = track.Index
	}
	ft.items = append(ft.items, &FakeItem{
		Item: host.Item{
			ID:             f.newID("item"),
			Name:           name,
			Track:          track,
			StartFrame:     start,
			DurationFrames: duration,
		},
		Tag:       tag,
		MediaPath: name,
	})
}

// ShiftItem simulates a manual move of the first item whose media path
// matches.
func (f *FakeHost) ShiftItem(project, timeline, mediaPath string, delta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.mustTimeline(project, timeline).items {
		if it.MediaPath == mediaPath {
			it.StartFrame += delta
			return
		}
	}
	panic(fmt.Sprintf("FakeHost: no item %s", mediaPath))
}

// PlaceMarker simulates a manual marker.
func (f *FakeHost) PlaceMarker(project, timeline string, m host.Marker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := f.mustTimeline(project, timeline)
	ft.markers = append(ft.markers, m)
	slices.SortFunc(ft.markers, func(a, b host.Marker) int { return cmp.Compare(a.Frame, b.Frame) })
}

// ResetMutations clears the mutation log.
func (f *FakeHost) ResetMutations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mutations = nil
}

// MutationLog returns a copy of the mutation log.
func (f *FakeHost) MutationLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Mutations)
}

// BasicHost hides the optional editing capabilities of h, leaving only
// host.Host.
func BasicHost(h host.Host) host.Host {
	return basicHost{h}
}

type basicHost struct {
	host.Host
}
