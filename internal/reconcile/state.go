package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/beatspine/internal/ir"
)

// Timeline metadata keys.
const (
	KeyManagedMarker = "managed-marker"
	KeySyncState     = "sync-state"
	KeySyncLock      = "sync-lock"
)

// DefaultLockTTL is how long a lock left by a crashed session blocks others.
const DefaultLockTTL = 15 * time.Minute

// ErrStateModified is returned by DecodeSyncState when a state's
// fingerprint does not match its contents.
var ErrStateModified = errors.New("sync state was modified outside beatspine")

// DecodeSyncState parses a persisted sync state. An empty value yields nil.
// Unknown fields are ignored and missing fields keep their zero value. A
// state carrying a fingerprint must match it.
func DecodeSyncState(raw string) (*ir.SyncState, error) {
	if raw == "" {
		return nil, nil
	}
	var s ir.SyncState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode sync state: %w", err)
	}
	if s.Fingerprint != "" {
		fp, err := ir.SyncStateFingerprint(s)
		if err != nil {
			return nil, err
		}
		if fp != s.Fingerprint {
			return nil, fmt.Errorf("decode sync state: %w", ErrStateModified)
		}
	}
	return &s, nil
}

// sealSyncState sets the fingerprint of s.
func sealSyncState(s *ir.SyncState) error {
	fp, err := ir.SyncStateFingerprint(*s)
	if err != nil {
		return err
	}
	s.Fingerprint = fp
	return nil
}

// EncodeSyncState serializes a sync state for the metadata store.
func EncodeSyncState(s ir.SyncState) (string, error) {
	if s.ManagedUIDs == nil {
		s.ManagedUIDs = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode sync state: %w", err)
	}
	return string(b), nil
}

// LockRecord is the advisory lock persisted under KeySyncLock.
type LockRecord struct {
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// DecodeLock parses a lock record. ok is false for empty or unreadable
// values, which are treated as no lock.
func DecodeLock(raw string) (LockRecord, bool) {
	if raw == "" {
		return LockRecord{}, false
	}
	var rec LockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Token == "" {
		return LockRecord{}, false
	}
	return rec, true
}

func encodeLock(rec LockRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode lock: %w", err)
	}
	return string(b), nil
}

// Setting is a project setting the engine owns.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProjectSettings returns the settings written before any timeline edit.
// Downstream frame math assumes the host honors all of them.
func ProjectSettings(frameRate int) []Setting {
	fps := strconv.Itoa(frameRate)
	return []Setting{
		{Key: "timelineFrameRate", Value: fps},
		{Key: "timelineFrameRateMismatchBehavior", Value: "fcp7"},
		{Key: "videoMonitorFormat", Value: "HD 1080p " + fps},
	}
}
