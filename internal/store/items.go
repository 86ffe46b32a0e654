package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/beatspine/internal/host"
)

func (s *Store) timelineExists(ctx context.Context, tl host.Timeline) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timelines WHERE id = ?`, tl.ID).Scan(&n); err != nil {
		return fmt.Errorf("lookup timeline: %w", err)
	}
	if n == 0 {
		return notFound("timeline %q", tl.Name)
	}
	return nil
}

// ListTracks returns the tracks of one kind, 1-based.
func (s *Store) ListTracks(ctx context.Context, tl host.Timeline, kind host.TrackKind) ([]host.Track, error) {
	if err := s.timelineExists(ctx, tl); err != nil {
		return nil, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM tracks WHERE timeline_id = ? AND kind = ?
	`, tl.ID, string(kind)).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	tracks := make([]host.Track, count)
	for i := range tracks {
		tracks[i] = host.Track{Kind: kind, Index: i + 1}
	}
	return tracks, nil
}

// ListItems returns the items on one track ordered by start frame.
func (s *Store) ListItems(ctx context.Context, tl host.Timeline, tr host.Track) ([]host.Item, error) {
	if err := s.timelineExists(ctx, tl); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_frame, duration_frames
		FROM items
		WHERE timeline_id = ? AND track_kind = ? AND track_index = ?
		ORDER BY start_frame ASC, id COLLATE BINARY ASC
	`, tl.ID, string(tr.Kind), tr.Index)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []host.Item{}
	for rows.Next() {
		it := host.Item{Track: tr}
		if err := rows.Scan(&it.ID, &it.Name, &it.StartFrame, &it.DurationFrames); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// ItemTag returns the tag stored on an item.
func (s *Store) ItemTag(ctx context.Context, it host.Item) (string, error) {
	var tag string
	err := s.db.QueryRowContext(ctx, `SELECT tag FROM items WHERE id = ?`, it.ID).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("item %q", it.Name)
	}
	if err != nil {
		return "", fmt.Errorf("get item tag: %w", err)
	}
	return tag, nil
}

// SetItemTag replaces the tag stored on an item.
func (s *Store) SetItemTag(ctx context.Context, it host.Item, tag string) error {
	return s.updateItem(ctx, it, "set item tag", `UPDATE items SET tag = ? WHERE id = ?`, tag, it.ID)
}

// AddItem places media on a track. The track is created if its index is
// one past the current count. The item's timeline duration is the source
// range converted from media to timeline frame rate.
func (s *Store) AddItem(ctx context.Context, tl host.Timeline, clip host.ClipPlacement) (host.Item, error) {
	if clip.SourceOut < clip.SourceIn {
		return host.Item{}, fmt.Errorf("source range %g..%g: %w", clip.SourceIn, clip.SourceOut, host.ErrRejected)
	}
	fps, err := s.projectFPS(ctx, tl.ProjectID)
	if err != nil {
		return host.Item{}, err
	}

	dur := clip.SourceOut - clip.SourceIn
	if clip.Track.Kind == host.TrackVideo && clip.Media.FPS > 0 && fps > 0 {
		dur = dur * fps / clip.Media.FPS
	}
	it := host.Item{
		ID:             newID(),
		Name:           clip.Media.Path,
		Track:          clip.Track,
		StartFrame:     clip.RecordFrame,
		DurationFrames: int64(math.Round(dur)),
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx, `
			SELECT count FROM tracks WHERE timeline_id = ? AND kind = ?
		`, tl.ID, string(clip.Track.Kind)).Scan(&count)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("timeline %q", tl.Name)
		}
		if err != nil {
			return fmt.Errorf("read tracks: %w", err)
		}
		switch {
		case clip.Track.Index < 1 || clip.Track.Index > count+1:
			return fmt.Errorf("track %s %d: %w", clip.Track.Kind, clip.Track.Index, host.ErrRejected)
		case clip.Track.Index == count+1:
			if _, err := tx.ExecContext(ctx, `
				UPDATE tracks SET count = ? WHERE timeline_id = ? AND kind = ?
			`, count+1, tl.ID, string(clip.Track.Kind)); err != nil {
				return fmt.Errorf("add track: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO items
			(id, timeline_id, media_id, name, track_kind, track_index, start_frame, duration_frames, source_in, source_out)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			it.ID,
			tl.ID,
			clip.Media.ID,
			it.Name,
			string(it.Track.Kind),
			it.Track.Index,
			it.StartFrame,
			it.DurationFrames,
			clip.SourceIn,
			clip.SourceOut,
		)
		if isConstraint(err) {
			return fmt.Errorf("media %q is not in the pool: %w", clip.Media.Path, host.ErrRejected)
		}
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return host.Item{}, err
	}
	return it, nil
}

// RemoveItem deletes an item from its timeline.
func (s *Store) RemoveItem(ctx context.Context, tl host.Timeline, it host.Item) error {
	return s.updateItem(ctx, it, "remove item", `DELETE FROM items WHERE id = ? AND timeline_id = ?`, it.ID, tl.ID)
}

// MoveItem changes an item's record position and duration.
func (s *Store) MoveItem(ctx context.Context, tl host.Timeline, it host.Item, startFrame, durationFrames int64) error {
	if durationFrames < 0 {
		return fmt.Errorf("duration %d: %w", durationFrames, host.ErrRejected)
	}
	return s.updateItem(ctx, it, "move item", `
		UPDATE items SET start_frame = ?, duration_frames = ? WHERE id = ? AND timeline_id = ?
	`, startFrame, durationFrames, it.ID, tl.ID)
}

func (s *Store) updateItem(ctx context.Context, it host.Item, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("item %q", it.Name)
	}
	return nil
}
