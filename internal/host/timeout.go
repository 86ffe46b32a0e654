package host

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single host call.
const DefaultTimeout = 30 * time.Second

// WithTimeout wraps h so that every call returns within d. Calls that
// overrun return ErrTimeout even if the underlying host ignores context
// cancellation; the abandoned call is left to finish in the background.
//
// The wrapper always implements ItemRemover and ItemMover and returns
// ErrUnsupported when h does not.
func WithTimeout(h Host, d time.Duration) Host {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutHost{h: h, d: d}
}

type timeoutHost struct {
	h Host
	d time.Duration
}

func bounded[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return r.v, timeoutError(op, d, ctx.Err())
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, timeoutError(op, d, ctx.Err())
	}
}

func timeoutError(op string, d time.Duration, cause error) error {
	return fmt.Errorf("%s: %w after %s: %v", op, ErrTimeout, d, cause)
}

func boundedErr(ctx context.Context, d time.Duration, op string, fn func(context.Context) error) error {
	_, err := bounded(ctx, d, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (t *timeoutHost) FindProject(ctx context.Context, name string) (Project, error) {
	return bounded(ctx, t.d, "find project", func(ctx context.Context) (Project, error) {
		return t.h.FindProject(ctx, name)
	})
}

func (t *timeoutHost) CreateProject(ctx context.Context, name string) (Project, error) {
	return bounded(ctx, t.d, "create project", func(ctx context.Context) (Project, error) {
		return t.h.CreateProject(ctx, name)
	})
}

func (t *timeoutHost) DeleteProject(ctx context.Context, name string) error {
	return boundedErr(ctx, t.d, "delete project", func(ctx context.Context) error {
		return t.h.DeleteProject(ctx, name)
	})
}

func (t *timeoutHost) Setting(ctx context.Context, p Project, key string) (string, error) {
	return bounded(ctx, t.d, "get setting", func(ctx context.Context) (string, error) {
		return t.h.Setting(ctx, p, key)
	})
}

func (t *timeoutHost) SetSetting(ctx context.Context, p Project, key, value string) error {
	return boundedErr(ctx, t.d, "set setting", func(ctx context.Context) error {
		return t.h.SetSetting(ctx, p, key, value)
	})
}

func (t *timeoutHost) FindTimeline(ctx context.Context, p Project, name string) (Timeline, error) {
	return bounded(ctx, t.d, "find timeline", func(ctx context.Context) (Timeline, error) {
		return t.h.FindTimeline(ctx, p, name)
	})
}

func (t *timeoutHost) CreateTimeline(ctx context.Context, p Project, name string) (Timeline, error) {
	return bounded(ctx, t.d, "create timeline", func(ctx context.Context) (Timeline, error) {
		return t.h.CreateTimeline(ctx, p, name)
	})
}

func (t *timeoutHost) SetCurrentTimeline(ctx context.Context, p Project, tl Timeline) error {
	return boundedErr(ctx, t.d, "set current timeline", func(ctx context.Context) error {
		return t.h.SetCurrentTimeline(ctx, p, tl)
	})
}

func (t *timeoutHost) ListTracks(ctx context.Context, tl Timeline, kind TrackKind) ([]Track, error) {
	return bounded(ctx, t.d, "list tracks", func(ctx context.Context) ([]Track, error) {
		return t.h.ListTracks(ctx, tl, kind)
	})
}

func (t *timeoutHost) ListItems(ctx context.Context, tl Timeline, tr Track) ([]Item, error) {
	return bounded(ctx, t.d, "list items", func(ctx context.Context) ([]Item, error) {
		return t.h.ListItems(ctx, tl, tr)
	})
}

func (t *timeoutHost) ItemTag(ctx context.Context, it Item) (string, error) {
	return bounded(ctx, t.d, "get item tag", func(ctx context.Context) (string, error) {
		return t.h.ItemTag(ctx, it)
	})
}

func (t *timeoutHost) SetItemTag(ctx context.Context, it Item, tag string) error {
	return boundedErr(ctx, t.d, "set item tag", func(ctx context.Context) error {
		return t.h.SetItemTag(ctx, it, tag)
	})
}

func (t *timeoutHost) AddItem(ctx context.Context, tl Timeline, clip ClipPlacement) (Item, error) {
	return bounded(ctx, t.d, "add item", func(ctx context.Context) (Item, error) {
		return t.h.AddItem(ctx, tl, clip)
	})
}

func (t *timeoutHost) ListMarkers(ctx context.Context, tl Timeline) ([]Marker, error) {
	return bounded(ctx, t.d, "list markers", func(ctx context.Context) ([]Marker, error) {
		return t.h.ListMarkers(ctx, tl)
	})
}

func (t *timeoutHost) AddMarker(ctx context.Context, tl Timeline, m Marker) error {
	return boundedErr(ctx, t.d, "add marker", func(ctx context.Context) error {
		return t.h.AddMarker(ctx, tl, m)
	})
}

func (t *timeoutHost) DeleteMarker(ctx context.Context, tl Timeline, frame int64) error {
	return boundedErr(ctx, t.d, "delete marker", func(ctx context.Context) error {
		return t.h.DeleteMarker(ctx, tl, frame)
	})
}

func (t *timeoutHost) Metadata(ctx context.Context, tl Timeline, key string) (string, error) {
	return bounded(ctx, t.d, "get metadata", func(ctx context.Context) (string, error) {
		return t.h.Metadata(ctx, tl, key)
	})
}

func (t *timeoutHost) SetMetadata(ctx context.Context, tl Timeline, key, value string) error {
	return boundedErr(ctx, t.d, "set metadata", func(ctx context.Context) error {
		return t.h.SetMetadata(ctx, tl, key, value)
	})
}

func (t *timeoutHost) ImportMedia(ctx context.Context, p Project, paths []string) ([]Media, error) {
	return bounded(ctx, t.d, "import media", func(ctx context.Context) ([]Media, error) {
		return t.h.ImportMedia(ctx, p, paths)
	})
}

func (t *timeoutHost) ListMedia(ctx context.Context, p Project) ([]Media, error) {
	return bounded(ctx, t.d, "list media", func(ctx context.Context) ([]Media, error) {
		return t.h.ListMedia(ctx, p)
	})
}

func (t *timeoutHost) RemoveItem(ctx context.Context, tl Timeline, it Item) error {
	r, ok := t.h.(ItemRemover)
	if !ok {
		return ErrUnsupported
	}
	return boundedErr(ctx, t.d, "remove item", func(ctx context.Context) error {
		return r.RemoveItem(ctx, tl, it)
	})
}

func (t *timeoutHost) MoveItem(ctx context.Context, tl Timeline, it Item, startFrame, durationFrames int64) error {
	m, ok := t.h.(ItemMover)
	if !ok {
		return ErrUnsupported
	}
	return boundedErr(ctx, t.d, "move item", func(ctx context.Context) error {
		return m.MoveItem(ctx, tl, it, startFrame, durationFrames)
	})
}

// Close closes the wrapped host if it holds resources.
func (t *timeoutHost) Close() error {
	if c, ok := t.h.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
