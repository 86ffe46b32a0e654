package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
)

// Marker color for beat markers.
const beatMarkerColor = "Yellow"

// Apply executes the planned change set. Settings are written first and a
// rejected setting aborts the session before any timeline edit. Per-item
// failures are recorded in the report and do not stop the session.
func (s *Session) Apply(ctx context.Context) error {
	if err := s.expect(StatePlanned, "apply"); err != nil {
		return err
	}
	if s.opts.DryRun {
		return &Error{Code: ErrCodeInvalidState, Op: "apply", Message: "dry-run session cannot apply"}
	}

	if err := s.apply(ctx); err != nil {
		if s.locked {
			s.releaseLock(context.WithoutCancel(ctx))
		}
		return err
	}
	s.state = StateApplied
	return nil
}

func (s *Session) apply(ctx context.Context) error {
	cs := s.changes

	if !s.timelineMissing {
		if err := s.acquireLock(ctx); err != nil {
			return err
		}
	}

	for _, set := range cs.Settings {
		if err := s.h.SetSetting(ctx, s.project, set.Key, set.To); err != nil {
			return &Error{
				Code:    ErrCodeSettingRejected,
				Op:      "apply settings",
				Message: fmt.Sprintf("host rejected setting %s=%q", set.Key, set.To),
				Details: map[string]string{"key": set.Key, "value": set.To},
				Err:     err,
			}
		}
		s.report.SettingsWritten = append(s.report.SettingsWritten, set.Key)
	}

	if s.timelineMissing {
		tl, err := s.h.CreateTimeline(ctx, s.project, s.timeline.Name)
		if err != nil {
			return hostFailure("create timeline", err)
		}
		s.timeline = tl
		s.timelineMissing = false
		s.report.TimelineCreated = true
		s.log.Info("created timeline", "timeline", tl.Name, "start_frame", tl.StartFrame)
		if err := s.acquireLock(ctx); err != nil {
			return err
		}
	}

	if err := s.addItems(ctx, cs.Additions); err != nil {
		return err
	}
	s.removeItems(ctx, cs.Removals)
	s.updateItems(ctx, cs.Updates)
	s.syncMarkers(ctx, cs.Markers)

	s.log.Info("applied changes",
		"added", len(s.report.Added),
		"removed", len(s.report.Removed),
		"updated", len(s.report.Updated),
		"skipped", len(s.report.Skipped),
		"failed", len(s.report.Failed))
	return nil
}

func (s *Session) issue(uid, name, op string, err error) ItemIssue {
	return ItemIssue{UID: uid, Name: name, Op: op, Reason: err.Error()}
}

func (s *Session) fail(uid, name, op string, err error) {
	s.log.Warn("item operation failed", "op", op, "uid", uid, "item", name, "error", err)
	s.report.Failed = append(s.report.Failed, s.issue(uid, name, op, err))
}

func (s *Session) skip(uid, name, op string, err error) {
	s.log.Warn("item operation skipped", "op", op, "uid", uid, "item", name, "error", err)
	s.report.Skipped = append(s.report.Skipped, s.issue(uid, name, op, err))
}

// resolveMedia returns the pool entries for paths, importing those not
// already in the pool in one batch. Paths that fail to import are absent
// from the result.
func (s *Session) resolveMedia(ctx context.Context, paths []string) (map[string]host.Media, error) {
	pool, err := s.h.ListMedia(ctx, s.project)
	if err != nil {
		return nil, hostFailure("list media", err)
	}
	byPath := make(map[string]host.Media, len(pool))
	for _, m := range pool {
		byPath[m.Path] = m
	}

	var missing []string
	for _, p := range paths {
		if _, ok := byPath[p]; !ok && !slices.Contains(missing, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return byPath, nil
	}

	imported, err := s.h.ImportMedia(ctx, s.project, missing)
	if err != nil {
		s.log.Warn("media import failed", "paths", len(missing), "error", err)
		return byPath, nil
	}
	for _, m := range imported {
		byPath[m.Path] = m
	}
	return byPath, nil
}

func (s *Session) addItems(ctx context.Context, adds []ir.TargetElement) error {
	if len(adds) == 0 {
		return nil
	}
	paths := make([]string, len(adds))
	for i, e := range adds {
		paths[i] = e.MediaPath
	}
	media, err := s.resolveMedia(ctx, paths)
	if err != nil {
		return err
	}

	tracks := make(map[host.TrackKind]host.Track)
	for _, e := range adds {
		kind := trackKind(e.Kind)
		tr, ok := tracks[kind]
		if !ok {
			existing, err := s.h.ListTracks(ctx, s.timeline, kind)
			if err != nil {
				return hostFailure("list tracks", err)
			}
			tr = host.Track{Kind: kind, Index: max(len(existing), 1)}
			tracks[kind] = tr
		}

		m, ok := media[e.MediaPath]
		if !ok {
			s.fail(e.UID, e.Name, "add", fmt.Errorf("media %s was not imported", e.MediaPath))
			continue
		}

		it, err := s.h.AddItem(ctx, s.timeline, s.clipFor(e, m, tr))
		if err != nil {
			s.fail(e.UID, e.Name, "add", err)
			continue
		}
		if err := s.h.SetItemTag(ctx, it, host.ItemTag(e.UID)); err != nil {
			s.untag(ctx, e, it, err)
			continue
		}
		s.report.Added = append(s.report.Added, e.UID)
	}
	return nil
}

// untag handles an item that was added but could not be tagged. It is
// removed when the host allows it; otherwise the handle is reported so the
// operator can delete the clip, which would read as foreign on the next run.
func (s *Session) untag(ctx context.Context, e ir.TargetElement, it host.Item, tagErr error) {
	rmErr := removeItem(ctx, s.h, s.timeline, it)
	if rmErr == nil {
		s.fail(e.UID, e.Name, "tag", fmt.Errorf("%w (clip removed)", tagErr))
		return
	}

	s.log.Warn("untagged clip left on timeline", "uid", e.UID, "item", it.ID, "error", rmErr)
	issue := s.issue(e.UID, e.Name, "tag", fmt.Errorf("%w (clip %s left untagged: %v)", tagErr, it.ID, rmErr))
	issue.Item = &it
	if errors.Is(rmErr, host.ErrUnsupported) {
		s.report.Skipped = append(s.report.Skipped, issue)
		return
	}
	s.report.Failed = append(s.report.Failed, issue)
}

func trackKind(k ir.MediaKind) host.TrackKind {
	if k == ir.MediaAudio {
		return host.TrackAudio
	}
	return host.TrackVideo
}

// clipFor maps a target element onto a media source range. Video source
// ranges are scaled when the media's native rate differs from the
// timeline's.
func (s *Session) clipFor(e ir.TargetElement, m host.Media, tr host.Track) host.ClipPlacement {
	dur := float64(e.DurationFrames)
	if tr.Kind == host.TrackVideo && m.FPS > 0 && s.target.FrameRate > 0 {
		dur = dur * m.FPS / float64(s.target.FrameRate)
	}
	return host.ClipPlacement{
		Media:       m,
		Track:       tr,
		SourceIn:    m.StartFrame,
		SourceOut:   m.StartFrame + dur,
		RecordFrame: s.timeline.StartFrame + e.StartFrame,
	}
}

func (s *Session) removeItems(ctx context.Context, removals []Removal) {
	for _, r := range removals {
		err := removeItem(ctx, s.h, s.timeline, r.Item)
		switch {
		case err == nil:
			s.report.Removed = append(s.report.Removed, r.UID)
			if !r.Duplicate {
				s.removed[r.UID] = true
			}
			continue
		case errors.Is(err, host.ErrUnsupported):
			s.skip(r.UID, r.Item.Name, "remove", err)
		default:
			s.fail(r.UID, r.Item.Name, "remove", err)
		}
		if r.Duplicate {
			s.lingering[r.UID] = true
		}
	}
}

func (s *Session) updateItems(ctx context.Context, updates []Update) {
	for _, u := range updates {
		err := moveItem(ctx, s.h, s.timeline, u.Item,
			s.timeline.StartFrame+u.Target.StartFrame, u.Target.DurationFrames)
		switch {
		case err == nil:
			s.report.Updated = append(s.report.Updated, u.UID)
		case errors.Is(err, host.ErrUnsupported):
			s.skip(u.UID, u.Item.Name, "update", err)
		default:
			s.fail(u.UID, u.Item.Name, "update", err)
		}
	}
}

func removeItem(ctx context.Context, h host.Host, tl host.Timeline, it host.Item) error {
	r, ok := h.(host.ItemRemover)
	if !ok {
		return host.ErrUnsupported
	}
	return r.RemoveItem(ctx, tl, it)
}

func moveItem(ctx context.Context, h host.Host, tl host.Timeline, it host.Item, start, dur int64) error {
	m, ok := h.(host.ItemMover)
	if !ok {
		return host.ErrUnsupported
	}
	return m.MoveItem(ctx, tl, it, start, dur)
}

// syncMarkers deletes before adding so that a marker moved onto a frame
// freed in the same pass does not collide.
func (s *Session) syncMarkers(ctx context.Context, plan MarkerPlan) {
	stats := &s.report.Markers

	for _, m := range plan.Remove {
		if err := s.h.DeleteMarker(ctx, s.timeline, m.Frame); err != nil {
			s.log.Warn("marker delete failed", "frame", m.Frame, "error", err)
			stats.Failed++
			continue
		}
		stats.Removed++
	}

	var updated []ir.TargetMarker
	for _, u := range plan.Update {
		if err := s.h.DeleteMarker(ctx, s.timeline, u.From.Frame); err != nil {
			s.log.Warn("marker delete failed", "frame", u.From.Frame, "error", err)
			stats.Failed++
			continue
		}
		updated = append(updated, u.To)
	}

	for _, m := range plan.Add {
		if s.addMarker(ctx, m) {
			stats.Added++
		}
	}
	for _, m := range updated {
		if s.addMarker(ctx, m) {
			stats.Updated++
		}
	}
}

func (s *Session) addMarker(ctx context.Context, m ir.TargetMarker) bool {
	err := s.h.AddMarker(ctx, s.timeline, host.Marker{
		Frame: s.timeline.StartFrame + m.Frame,
		Label: m.Label,
		Note:  m.Note,
		Color: beatMarkerColor,
		Tag:   host.BeatTag(m.Beat),
	})
	if err != nil {
		s.log.Warn("marker add failed", "beat", m.Beat, "frame", m.Frame, "error", err)
		s.report.Markers.Failed++
		return false
	}
	return true
}

// acquireLock records this session's token on the timeline. A lock held by
// another session younger than the TTL blocks unless Force is set.
// acquireLock re-reads the lock just before writing it, so a session that
// locked the timeline after this one's snapshot is still seen. The read and
// the write are separate host calls; two sessions can still interleave
// between them.
func (s *Session) acquireLock(ctx context.Context) error {
	raw, err := s.h.Metadata(ctx, s.timeline, KeySyncLock)
	if err != nil {
		return hostFailure("read sync lock", err)
	}
	var current *LockRecord
	if rec, ok := DecodeLock(raw); ok {
		current = &rec
		s.report.Lock = current
	}

	now := s.opts.Now()
	if l := current; l != nil && l.Token != s.token {
		age := now.Sub(l.AcquiredAt)
		if age < s.opts.LockTTL {
			if !s.opts.Force {
				return &Error{
					Code:    ErrCodeSessionLocked,
					Op:      "acquire lock",
					Message: fmt.Sprintf("timeline %q is locked by another session", s.timeline.Name),
					Details: map[string]string{
						"token":      l.Token,
						"acquiredAt": l.AcquiredAt.Format("2006-01-02T15:04:05Z07:00"),
					},
				}
			}
			s.log.Warn("overriding live session lock", "token", l.Token, "age", age)
		}
	}

	raw, err = encodeLock(LockRecord{Token: s.token, AcquiredAt: now})
	if err != nil {
		return err
	}
	if err := s.h.SetMetadata(ctx, s.timeline, KeySyncLock, raw); err != nil {
		return hostFailure("acquire lock", err)
	}
	s.locked = true
	return nil
}

func (s *Session) releaseLock(ctx context.Context) {
	if err := s.h.SetMetadata(ctx, s.timeline, KeySyncLock, ""); err != nil {
		s.log.Warn("failed to release session lock", "error", err)
		return
	}
	s.locked = false
}

// Persist records the managed set and fingerprint on the timeline, releases
// the lock and makes the timeline current.
func (s *Session) Persist(ctx context.Context) error {
	if err := s.expect(StateApplied, "persist"); err != nil {
		return err
	}

	state := s.syncState()
	if err := sealSyncState(&state); err != nil {
		return err
	}
	raw, err := EncodeSyncState(state)
	if err != nil {
		return err
	}
	if err := s.h.SetMetadata(ctx, s.timeline, KeySyncState, raw); err != nil {
		return hostFailure("persist sync state", err)
	}
	if err := s.h.SetMetadata(ctx, s.timeline, KeyManagedMarker, "true"); err != nil {
		return hostFailure("persist managed marker", err)
	}
	if s.locked {
		if err := s.h.SetMetadata(ctx, s.timeline, KeySyncLock, ""); err != nil {
			return hostFailure("release lock", err)
		}
		s.locked = false
	}
	if err := s.h.SetCurrentTimeline(ctx, s.project, s.timeline); err != nil {
		return hostFailure("set current timeline", err)
	}

	s.report.State = &state
	s.state = StatePersisted
	s.log.Info("persisted sync state", "managed", len(state.ManagedUIDs), "digest", state.TargetDigest != "")
	return nil
}

// syncState derives the managed set after Apply: previously managed or
// targeted items still present, plus everything added this run.
func (s *Session) syncState() ir.SyncState {
	snap := s.snapshot
	targeted := s.target.ElementsByUID()
	prev := snap.State.ManagedSet()
	removed := make(map[string]bool, len(s.removed))
	for uid := range s.removed {
		removed[uid] = !s.lingering[uid]
	}

	managed := make(map[string]bool)
	for uid := range snap.Managed {
		_, t := targeted[uid]
		if (t || prev[uid]) && !removed[uid] {
			managed[uid] = true
		}
	}
	for _, uid := range s.report.Added {
		managed[uid] = true
	}

	uids := make([]string, 0, len(managed))
	videos := 0
	for uid := range managed {
		uids = append(uids, uid)
		if e, ok := targeted[uid]; ok {
			if e.Kind == ir.MediaVideo {
				videos++
			}
			continue
		}
		if it := snap.Managed[uid]; it.Track.Kind == host.TrackVideo {
			videos++
		}
	}
	slices.Sort(uids)

	state := ir.SyncState{
		ProjectName:       s.project.Name,
		TimelineName:      s.timeline.Name,
		ItemCount:         videos,
		AudioDurationMs:   s.target.AudioDurationMs,
		PlaceholderMode:   s.target.PlaceholderMode,
		ManagedUIDs:       uids,
		TimelineItemCount: len(managed) + len(snap.Foreign),
		FormatVersion:     ir.FormatVersion,
		SessionToken:      s.token,
	}
	if s.report.clean() {
		state.TargetDigest = s.target.Digest
	}
	return state
}
