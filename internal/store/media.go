package store

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/beatspine/internal/host"
)

// statInspect accepts any existing regular file and reports no frame rate.
func statInspect(path string) (float64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return 0, nil
}

// ImportMedia adds paths to the project's media pool and returns the
// entries created. Paths already in the pool and paths the inspector rejects
// are left out of the result.
func (s *Store) ImportMedia(ctx context.Context, p host.Project, paths []string) ([]host.Media, error) {
	if err := s.projectExists(ctx, p); err != nil {
		return nil, err
	}
	out := []host.Media{}
	for _, path := range paths {
		fps, err := s.inspect(path)
		if err != nil {
			continue
		}
		m := host.Media{ID: newID(), Path: path, FPS: fps}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO media (id, project_id, path, fps, start_frame) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(project_id, path) DO NOTHING
		`, m.ID, p.ID, m.Path, m.FPS, m.StartFrame)
		if err != nil {
			return nil, fmt.Errorf("import media: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListMedia returns the project's media pool ordered by path.
func (s *Store) ListMedia(ctx context.Context, p host.Project) ([]host.Media, error) {
	if err := s.projectExists(ctx, p); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, fps, start_frame FROM media
		WHERE project_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	out := []host.Media{}
	for rows.Next() {
		var m host.Media
		if err := rows.Scan(&m.ID, &m.Path, &m.FPS, &m.StartFrame); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return out, nil
}
