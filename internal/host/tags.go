package host

import (
	"strconv"
	"strings"
)

// TagPrefix marks a value written by beatspine.
const TagPrefix = "beatspine:"

const beatTagPrefix = TagPrefix + "beat:"

// TagKind distinguishes item tags from beat-marker tags.
type TagKind int

const (
	TagItem TagKind = iota + 1
	TagBeat
)

// Tag is a parsed management tag.
type Tag struct {
	Kind TagKind
	UID  string // TagItem
	Beat int    // TagBeat, 0-based
}

// ItemTag formats the tag stored on a managed timeline item.
func ItemTag(uid string) string {
	return TagPrefix + uid
}

// BeatTag formats the tag stored on a managed beat marker.
func BeatTag(beat int) string {
	return beatTagPrefix + strconv.Itoa(beat)
}

// ParseTag parses a tag value. ok is false for anything not written by
// ItemTag or BeatTag; callers treat such values as foreign.
func ParseTag(s string) (Tag, bool) {
	if rest, found := strings.CutPrefix(s, beatTagPrefix); found {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || rest != strconv.Itoa(n) {
			return Tag{}, false
		}
		return Tag{Kind: TagBeat, Beat: n}, true
	}
	rest, found := strings.CutPrefix(s, TagPrefix)
	if !found || rest == "" || rest == "beat" || strings.ContainsAny(rest, ": \t\n") {
		return Tag{}, false
	}
	return Tag{Kind: TagItem, UID: rest}, true
}
