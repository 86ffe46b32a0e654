package source

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/beatspine/internal/ir"
)

// IDMethod selects how a file's UID is derived.
type IDMethod string

const (
	// IDInode keys on device and inode, so renames keep the UID. Falls
	// back to IDContent where inodes are unavailable.
	IDInode IDMethod = "inode"

	// IDContent keys on the MD5 of the file bytes.
	IDContent IDMethod = "content"

	// IDPath keys on the absolute path.
	IDPath IDMethod = "path"
)

// ValidIDMethods defines the accepted UID methods.
var ValidIDMethods = map[IDMethod]bool{
	IDInode:   true,
	IDContent: true,
	IDPath:    true,
}

// FileUID derives the UID of the file at path.
func FileUID(path string, method IDMethod) (string, error) {
	key, err := identityKey(path, method)
	if err != nil {
		return "", err
	}
	return ir.UIDFromKey(key), nil
}

func identityKey(path string, method IDMethod) (string, error) {
	switch method {
	case IDInode:
		if key, ok := inodeKey(path); ok {
			return key, nil
		}
		return contentKey(path)
	case IDContent:
		return contentKey(path)
	case IDPath:
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		return abs, nil
	default:
		return "", fmt.Errorf("unknown id method %q", method)
	}
}

func contentKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UIDResolver precomputes file UIDs so placement can look them up without
// touching the filesystem.
type UIDResolver struct {
	Method IDMethod

	// Workers bounds concurrent hashing. Zero uses GOMAXPROCS.
	Workers int

	Logger *slog.Logger

	mu   sync.RWMutex
	uids map[string]string
}

// Resolve derives UIDs for every item in parallel. A file that cannot be
// read falls back to its path-derived UID with a warning; only context
// cancellation fails the call.
func (r *UIDResolver) Resolve(ctx context.Context, items []ir.Item) error {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	r.mu.Lock()
	if r.uids == nil {
		r.uids = make(map[string]string, len(items))
	}
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, it := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			uid, err := FileUID(it.ID, r.Method)
			if err != nil {
				log.Warn("falling back to path uid", "path", it.ID, "error", err)
				uid = ir.ItemUID(it)
			}
			r.mu.Lock()
			r.uids[it.ID] = uid
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// UID returns the resolved UID of it, deriving one from its ID when it was
// never resolved. Its signature matches placement.UIDFunc.
func (r *UIDResolver) UID(it ir.Item) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if uid, ok := r.uids[it.ID]; ok {
		return uid
	}
	return ir.ItemUID(it)
}
