package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// UIDNamespace is the UUIDv5 namespace for every derived UID.
var UIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainTarget    = "beatspine/target/v1"
	DomainSyncState = "beatspine/sync-state/v1"
)

// UIDFromKey derives a deterministic upper-case UUIDv5 from an identity key
// (a path, an inode pair, or a content hash). Equal keys always produce
// equal UIDs across runs.
func UIDFromKey(key string) string {
	return strings.ToUpper(uuid.NewSHA1(UIDNamespace, []byte(key)).String())
}

// ItemUID is the default UID derivation: the item's identity string.
func ItemUID(it Item) string {
	return UIDFromKey(it.ID)
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TargetDigest hashes everything in a project that reconciliation compares:
// element positions and marker positions. Names and notes are included so
// relabelled markers also change the digest.
func TargetDigest(p *TargetProject) (string, error) {
	elems := make(List, len(p.Elements))
	for i, e := range p.Elements {
		elems[i] = Object{
			"uid":            Str(e.UID),
			"kind":           Str(string(e.Kind)),
			"mediaPath":      Str(e.MediaPath),
			"startFrame":     Int(e.StartFrame),
			"durationFrames": Int(e.DurationFrames),
		}
	}
	markers := make(List, len(p.Markers))
	for i, m := range p.Markers {
		markers[i] = Object{
			"beat":  Int(int64(m.Beat)),
			"frame": Int(m.Frame),
			"label": Str(m.Label),
			"note":  Str(m.Note),
		}
	}
	canonical, err := MarshalCanonical(Object{
		"name":      Str(p.Name),
		"frameRate": Int(int64(p.FrameRate)),
		"elements":  elems,
		"markers":   markers,
	})
	if err != nil {
		return "", fmt.Errorf("TargetDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTarget, canonical), nil
}

// SyncStateFingerprint hashes the identity-bearing part of a sync state:
// the managed UID set (order-insensitive) and the target digest.
func SyncStateFingerprint(s SyncState) (string, error) {
	uids := append([]string(nil), s.ManagedUIDs...)
	slices.Sort(uids)
	canonical, err := MarshalCanonical(Object{
		"managedUIDs":   toList(uids),
		"targetDigest":  Str(s.TargetDigest),
		"formatVersion": Str(s.FormatVersion),
	})
	if err != nil {
		return "", fmt.Errorf("SyncStateFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSyncState, canonical), nil
}

func toList(ss []string) List {
	l := make(List, len(ss))
	for i, s := range ss {
		l[i] = Str(s)
	}
	return l
}
