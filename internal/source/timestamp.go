package source

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// Accepted capture-time layouts, tried in order. Layouts without a zone
// are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05", // EXIF DateTimeOriginal
	"2006-01-02",
}

// ParseTimestamp parses a capture time in any accepted layout.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

var screenshotPattern = regexp.MustCompile(
	`Screenshot (\d{4})-(\d{2})-(\d{2}) at (\d{2})\.(\d{2})\.(\d{2})`)

// TimestampFromFilename recovers the capture time embedded in a screenshot
// file name such as "Screenshot 2024-03-09 at 14.05.33.png".
func TimestampFromFilename(path string) (time.Time, bool) {
	m := screenshotPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02 15.04.05",
		fmt.Sprintf("%s-%s-%s %s.%s.%s", m[1], m[2], m[3], m[4], m[5], m[6]), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
