package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/beatspine/internal/host"
)

// ListMarkers returns the markers on a timeline in frame order.
func (s *Store) ListMarkers(ctx context.Context, tl host.Timeline) ([]host.Marker, error) {
	if err := s.timelineExists(ctx, tl); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, label, note, color, tag FROM markers
		WHERE timeline_id = ?
		ORDER BY frame ASC
	`, tl.ID)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	out := []host.Marker{}
	for rows.Next() {
		var m host.Marker
		if err := rows.Scan(&m.Frame, &m.Label, &m.Note, &m.Color, &m.Tag); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return out, nil
}

// AddMarker places a marker. A frame holds at most one marker.
func (s *Store) AddMarker(ctx context.Context, tl host.Timeline, m host.Marker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markers (timeline_id, frame, label, note, color, tag) VALUES (?, ?, ?, ?, ?, ?)
	`, tl.ID, m.Frame, m.Label, m.Note, m.Color, m.Tag)
	if isConstraint(err) {
		if err := s.timelineExists(ctx, tl); err != nil {
			return err
		}
		return fmt.Errorf("marker at frame %d: %w", m.Frame, host.ErrRejected)
	}
	if err != nil {
		return fmt.Errorf("add marker: %w", err)
	}
	return nil
}

// DeleteMarker removes the marker at frame.
func (s *Store) DeleteMarker(ctx context.Context, tl host.Timeline, frame int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE timeline_id = ? AND frame = ?`, tl.ID, frame)
	if err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("marker at frame %d", frame)
	}
	return nil
}

// Metadata returns a timeline metadata value, "" when unset.
func (s *Store) Metadata(ctx context.Context, tl host.Timeline, key string) (string, error) {
	if err := s.timelineExists(ctx, tl); err != nil {
		return "", err
	}
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM metadata WHERE timeline_id = ? AND key = ?
	`, tl.ID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return v, nil
}

// SetMetadata writes a timeline metadata value. An empty value deletes the
// key.
func (s *Store) SetMetadata(ctx context.Context, tl host.Timeline, key, value string) error {
	if err := s.timelineExists(ctx, tl); err != nil {
		return err
	}
	var err error
	if value == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM metadata WHERE timeline_id = ? AND key = ?`, tl.ID, key)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO metadata (timeline_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(timeline_id, key) DO UPDATE SET value = excluded.value
		`, tl.ID, key, value)
	}
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}
