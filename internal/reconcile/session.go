package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
)

// State is a reconciliation session state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateProjectResolved
	StateTimelineResolved
	StatePlanned
	StateApplied
	StateDryRunReported
	StatePersisted
)

var stateNames = [...]string{
	StateDisconnected:     "disconnected",
	StateConnected:        "connected",
	StateProjectResolved:  "project_resolved",
	StateTimelineResolved: "timeline_resolved",
	StatePlanned:          "planned",
	StateApplied:          "applied",
	StateDryRunReported:   "dry_run_reported",
	StatePersisted:        "persisted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Confirmer asks an operator whether to proceed despite conflicts.
type Confirmer interface {
	Confirm(ctx context.Context, conflicts ConflictReport) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, conflicts ConflictReport) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, conflicts ConflictReport) (bool, error) {
	return f(ctx, conflicts)
}

// Options configures a session.
type Options struct {
	// Force applies changes despite conflicts and overrides a live lock.
	Force bool

	// DryRun plans and reports without any host mutation.
	DryRun bool

	// Recreate deletes and recreates an existing project.
	Recreate bool

	// Confirmer is consulted when conflicts exist and Force is off. A nil
	// Confirmer blocks the session.
	Confirmer Confirmer

	// Timeout bounds every host call. Zero uses host.DefaultTimeout; a
	// negative value disables the bound.
	Timeout time.Duration

	// LockTTL is the age after which another session's lock is ignored.
	LockTTL time.Duration

	Tokens TokenGenerator   // defaults to UUIDv7Generator
	Now    func() time.Time // defaults to time.Now
	Logger *slog.Logger     // defaults to slog.Default()
}

// Session is one reconciliation run against one host. It is not safe for
// concurrent use.
type Session struct {
	dialer host.Dialer
	opts   Options
	log    *slog.Logger

	state State
	h     host.Host
	token string

	project         host.Project
	projectMissing  bool
	timeline        host.Timeline
	timelineMissing bool

	snapshot  *Snapshot
	target    *ir.TargetProject
	changes   *ChangeSet
	conflicts ConflictReport
	locked    bool

	// removed holds UIDs whose managed item was removed; lingering holds
	// UIDs with a copy that could not be removed.
	removed   map[string]bool
	lingering map[string]bool

	report *Report
}

// NewSession creates a disconnected session.
func NewSession(dialer host.Dialer, opts Options) *Session {
	if opts.Tokens == nil {
		opts.Tokens = UUIDv7Generator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Session{
		dialer:    dialer,
		opts:      opts,
		log:       opts.Logger,
		report:    &Report{},
		removed:   make(map[string]bool),
		lingering: make(map[string]bool),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Report returns the report accumulated so far.
func (s *Session) Report() *Report {
	return s.report
}

// Changes returns the planned change set, nil before Plan.
func (s *Session) Changes() *ChangeSet {
	return s.changes
}

// Conflicts returns the conflicts found by Plan.
func (s *Session) Conflicts() ConflictReport {
	return s.conflicts
}

func (s *Session) expect(want State, op string) error {
	if s.state != want {
		return &Error{
			Code:    ErrCodeInvalidState,
			Op:      op,
			Message: fmt.Sprintf("session is %s, %s requires %s", s.state, op, want),
		}
	}
	return nil
}

// Connect dials the host. All later calls on the returned handle are
// bounded by Options.Timeout.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.expect(StateDisconnected, "connect"); err != nil {
		return err
	}
	h, err := s.dialer.Dial(ctx)
	if err != nil {
		return newError(ErrCodeHostUnavailable, "connect", err,
			"host cannot be reached; ensure it is running with scripting enabled")
	}
	if s.opts.Timeout >= 0 {
		h = host.WithTimeout(h, s.opts.Timeout)
	}

	s.h = h
	s.token = s.opts.Tokens.Generate()
	s.report.SessionToken = s.token
	s.state = StateConnected
	s.log.Debug("connected to host", "session", s.token)
	return nil
}

// ResolveProject locates the named project, creating it when absent and
// recreating it when recreate is set. In a dry run nothing is created and
// a missing or to-be-recreated project is planned as empty.
func (s *Session) ResolveProject(ctx context.Context, name string, recreate bool) error {
	if err := s.expect(StateConnected, "resolve project"); err != nil {
		return err
	}
	s.report.Project = name

	p, err := s.h.FindProject(ctx, name)
	found := err == nil
	if err != nil && !errors.Is(err, host.ErrNotFound) {
		return hostFailure("find project", err)
	}

	switch {
	case found && !recreate:
		s.project = p
		s.log.Info("located project", "project", name)
	case s.opts.DryRun:
		s.projectMissing = true
		s.report.ProjectCreated = !found
		s.report.ProjectRecreated = found
	default:
		if found {
			if err := s.h.DeleteProject(ctx, name); err != nil {
				return hostFailure("delete project", err)
			}
			s.report.ProjectRecreated = true
		}
		p, err = s.h.CreateProject(ctx, name)
		if err != nil {
			return hostFailure("create project", err)
		}
		s.project = p
		s.report.ProjectCreated = !found
		s.log.Info("created project", "project", name, "recreated", found)
	}

	s.state = StateProjectResolved
	return nil
}

// ResolveTimeline locates the named timeline. A missing timeline is not an
// error; it selects the full-create path.
func (s *Session) ResolveTimeline(ctx context.Context, name string) error {
	if err := s.expect(StateProjectResolved, "resolve timeline"); err != nil {
		return err
	}
	s.report.Timeline = name

	if s.projectMissing {
		s.timelineMissing = true
	} else {
		tl, err := s.h.FindTimeline(ctx, s.project, name)
		switch {
		case err == nil:
			s.timeline = tl
		case errors.Is(err, host.ErrNotFound):
			s.timelineMissing = true
		default:
			return hostFailure("find timeline", err)
		}
	}

	s.report.FullCreate = s.timelineMissing
	if s.timelineMissing {
		s.timeline = host.Timeline{ProjectID: s.project.ID, Name: name}
		s.log.Info("timeline not found, planning full create", "timeline", name)
	}
	s.state = StateTimelineResolved
	return nil
}

// Snapshot enumerates the items and markers on the resolved timeline and
// reads back the persisted sync state. The result is cached for Plan.
func (s *Session) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := s.expect(StateTimelineResolved, "snapshot"); err != nil {
		return nil, err
	}
	if s.snapshot != nil {
		return s.snapshot, nil
	}

	snap := emptySnapshot()
	if s.timelineMissing {
		s.snapshot = snap
		return snap, nil
	}
	snap.StartFrame = s.timeline.StartFrame

	for _, kind := range host.TrackKinds {
		tracks, err := s.h.ListTracks(ctx, s.timeline, kind)
		if err != nil {
			return nil, hostFailure("list tracks", err)
		}
		for _, tr := range tracks {
			items, err := s.h.ListItems(ctx, s.timeline, tr)
			if err != nil {
				return nil, hostFailure("list items", err)
			}
			for _, it := range items {
				raw, err := s.h.ItemTag(ctx, it)
				if err != nil {
					return nil, hostFailure("read item tag", err)
				}
				tag, ok := host.ParseTag(raw)
				if !ok || tag.Kind != host.TagItem {
					snap.Foreign = append(snap.Foreign, it)
					continue
				}
				if _, dup := snap.Managed[tag.UID]; dup {
					s.log.Warn("uid tagged on more than one item", "uid", tag.UID, "item", it.Name)
					snap.Duplicates = append(snap.Duplicates, Removal{UID: tag.UID, Item: it})
					continue
				}
				snap.Managed[tag.UID] = it
			}
		}
	}

	markers, err := s.h.ListMarkers(ctx, s.timeline)
	if err != nil {
		return nil, hostFailure("list markers", err)
	}
	for _, m := range markers {
		tag, ok := host.ParseTag(m.Tag)
		if !ok || tag.Kind != host.TagBeat {
			snap.ForeignMarkers = append(snap.ForeignMarkers, m)
			continue
		}
		if _, dup := snap.BeatMarkers[tag.Beat]; dup {
			snap.StaleMarkers = append(snap.StaleMarkers, m)
			continue
		}
		snap.BeatMarkers[tag.Beat] = m
	}

	raw, err := s.h.Metadata(ctx, s.timeline, KeySyncState)
	if err != nil {
		return nil, hostFailure("read sync state", err)
	}
	if snap.State, err = DecodeSyncState(raw); err != nil {
		s.log.Warn("ignoring unreadable sync state", "error", err)
	}

	rawLock, err := s.h.Metadata(ctx, s.timeline, KeySyncLock)
	if err != nil {
		return nil, hostFailure("read sync lock", err)
	}
	if rec, ok := DecodeLock(rawLock); ok {
		snap.Lock = &rec
	}

	s.log.Debug("snapshot taken",
		"managed", len(snap.Managed),
		"duplicates", len(snap.Duplicates),
		"foreign", len(snap.Foreign),
		"beat_markers", len(snap.BeatMarkers),
		"foreign_markers", len(snap.ForeignMarkers),
		"has_state", snap.State != nil)

	s.snapshot = snap
	return snap, nil
}

// Plan computes the change set and conflicts for target, taking a snapshot
// first if none was taken.
func (s *Session) Plan(ctx context.Context, target *ir.TargetProject) (*ChangeSet, error) {
	if err := s.expect(StateTimelineResolved, "plan"); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cs := Diff(target, snap)
	cs.Settings, err = s.planSettings(ctx, target.FrameRate)
	if err != nil {
		return nil, err
	}

	s.target = target
	s.changes = &cs
	s.conflicts = DetectConflicts(snap)
	s.report.Changes = cs
	s.report.Conflicts = s.conflicts
	if snap.Lock != nil {
		s.report.Lock = snap.Lock
	}

	s.log.Info("planned changes",
		"add", len(cs.Additions),
		"remove", len(cs.Removals),
		"update", len(cs.Updates),
		"markers", cs.Markers.Len(),
		"settings", len(cs.Settings),
		"conflicts", s.conflicts.Len())
	for _, uid := range cs.Untracked {
		s.log.Warn("tagged item is neither targeted nor managed, leaving it", "uid", uid)
	}

	s.state = StatePlanned
	return &cs, nil
}

func (s *Session) planSettings(ctx context.Context, frameRate int) ([]SettingChange, error) {
	var out []SettingChange
	for _, set := range ProjectSettings(frameRate) {
		cur := ""
		if !s.projectMissing {
			v, err := s.h.Setting(ctx, s.project, set.Key)
			if err != nil {
				return nil, hostFailure("read setting "+set.Key, err)
			}
			cur = v
		}
		if cur != set.Value {
			out = append(out, SettingChange{Key: set.Key, From: cur, To: set.Value})
		}
	}
	return out, nil
}

// ReportDryRun ends a dry-run session after Plan.
func (s *Session) ReportDryRun() (*Report, error) {
	if err := s.expect(StatePlanned, "report dry run"); err != nil {
		return nil, err
	}
	s.report.Outcome = OutcomeDryRun
	s.state = StateDryRunReported
	return s.report, nil
}

// UpToDate reports whether the planned change set is empty and the stored
// sync state already describes the target.
func (s *Session) UpToDate() bool {
	if s.changes == nil || s.snapshot == nil || s.timelineMissing {
		return false
	}
	st := s.snapshot.State
	return s.changes.Empty() && st != nil &&
		st.TargetDigest != "" && st.TargetDigest == s.target.Digest &&
		st.FormatVersion == ir.FormatVersion
}

// Close releases the host handle.
func (s *Session) Close() error {
	if c, ok := s.h.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
