package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/beatspine/internal/host"
)

// Setting keys the store interprets.
const (
	SettingFrameRate = "timelineFrameRate"
)

// supportedFrameRates are the timeline rates a project accepts.
var supportedFrameRates = []string{"23.976", "24", "25", "29.97", "30", "50", "59.94", "60"}

// FindProject returns the project with the given name.
func (s *Store) FindProject(ctx context.Context, name string) (host.Project, error) {
	var p host.Project
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM projects WHERE name = ?`, name).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return host.Project{}, notFound("project %q", name)
	}
	if err != nil {
		return host.Project{}, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}

// CreateProject creates an empty project. Names are unique.
func (s *Store) CreateProject(ctx context.Context, name string) (host.Project, error) {
	p := host.Project{ID: newID(), Name: name}
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects (id, name) VALUES (?, ?)`, p.ID, p.Name)
	if isConstraint(err) {
		return host.Project{}, fmt.Errorf("project %q already exists: %w", name, host.ErrRejected)
	}
	if err != nil {
		return host.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// DeleteProject deletes a project and everything in it.
func (s *Store) DeleteProject(ctx context.Context, name string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE name = ?`, name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("project %q", name)
		}
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		// Items reference media without cascading, so drop them first.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM items WHERE timeline_id IN (SELECT id FROM timelines WHERE project_id = ?)
		`, id); err != nil {
			return fmt.Errorf("delete project items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
}

// Setting returns a project setting, "" when unset.
func (s *Store) Setting(ctx context.Context, p host.Project, key string) (string, error) {
	if err := s.projectExists(ctx, p); err != nil {
		return "", err
	}
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE project_id = ? AND key = ?
	`, p.ID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// SetSetting writes a project setting. The timeline frame rate must be a
// supported rate and cannot change once the project has a timeline.
func (s *Store) SetSetting(ctx context.Context, p host.Project, key, value string) error {
	if err := s.projectExists(ctx, p); err != nil {
		return err
	}
	if key == SettingFrameRate {
		if !slices.Contains(supportedFrameRates, value) {
			return fmt.Errorf("frame rate %q: %w", value, host.ErrRejected)
		}
		cur, err := s.Setting(ctx, p, key)
		if err != nil {
			return err
		}
		var timelines int
		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM timelines WHERE project_id = ?
		`, p.ID).Scan(&timelines); err != nil {
			return fmt.Errorf("count timelines: %w", err)
		}
		if timelines > 0 && cur != value {
			return fmt.Errorf("frame rate is fixed once timelines exist: %w", host.ErrRejected)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (project_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(project_id, key) DO UPDATE SET value = excluded.value
	`, p.ID, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (s *Store) projectExists(ctx context.Context, p host.Project) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, p.ID).Scan(&n); err != nil {
		return fmt.Errorf("lookup project: %w", err)
	}
	if n == 0 {
		return notFound("project %q", p.Name)
	}
	return nil
}

// FindTimeline returns the named timeline in p.
func (s *Store) FindTimeline(ctx context.Context, p host.Project, name string) (host.Timeline, error) {
	tl := host.Timeline{ProjectID: p.ID, Name: name}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, start_frame FROM timelines WHERE project_id = ? AND name = ?
	`, p.ID, name).Scan(&tl.ID, &tl.StartFrame)
	if errors.Is(err, sql.ErrNoRows) {
		return host.Timeline{}, notFound("timeline %q", name)
	}
	if err != nil {
		return host.Timeline{}, fmt.Errorf("find timeline: %w", err)
	}
	return tl, nil
}

// defaultStartFrame is where new timelines start: one hour at the project
// frame rate, or at 24 fps when no rate is set.
func defaultStartFrame(fps float64) int64 {
	if fps <= 0 {
		fps = 24
	}
	return int64(3600 * fps)
}

// CreateTimeline creates a timeline with one video and one audio track.
func (s *Store) CreateTimeline(ctx context.Context, p host.Project, name string) (host.Timeline, error) {
	fps, err := s.projectFPS(ctx, p.ID)
	if err != nil {
		return host.Timeline{}, err
	}
	tl := host.Timeline{ID: newID(), ProjectID: p.ID, Name: name, StartFrame: defaultStartFrame(fps)}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO timelines (id, project_id, name, start_frame) VALUES (?, ?, ?, ?)
		`, tl.ID, tl.ProjectID, tl.Name, tl.StartFrame)
		if isConstraint(err) {
			return fmt.Errorf("timeline %q: %w", name, host.ErrRejected)
		}
		if err != nil {
			return fmt.Errorf("create timeline: %w", err)
		}
		for _, kind := range host.TrackKinds {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tracks (timeline_id, kind, count) VALUES (?, ?, 1)
			`, tl.ID, string(kind)); err != nil {
				return fmt.Errorf("create tracks: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return host.Timeline{}, err
	}
	return tl, nil
}

// SetCurrentTimeline makes tl the project's active timeline.
func (s *Store) SetCurrentTimeline(ctx context.Context, p host.Project, tl host.Timeline) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET current_timeline = ? WHERE id = ?`, tl.ID, p.ID)
	if err != nil {
		return fmt.Errorf("set current timeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("project %q", p.Name)
	}
	return nil
}

// CurrentTimeline returns the name of the project's active timeline, ""
// when none is set.
func (s *Store) CurrentTimeline(ctx context.Context, p host.Project) (string, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT t.name FROM projects p
		LEFT JOIN timelines t ON t.id = p.current_timeline
		WHERE p.id = ?
	`, p.ID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("project %q", p.Name)
	}
	if err != nil {
		return "", fmt.Errorf("current timeline: %w", err)
	}
	return name.String, nil
}

func (s *Store) projectFPS(ctx context.Context, projectID string) (float64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE project_id = ? AND key = ?
	`, projectID, SettingFrameRate).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read frame rate: %w", err)
	}
	var fps float64
	if _, err := fmt.Sscanf(raw, "%g", &fps); err != nil {
		return 0, nil
	}
	return fps, nil
}
