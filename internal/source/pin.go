package source

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	beatPinPattern = regexp.MustCompile(`beat:\s*(\d+)`)
	barePinPattern = regexp.MustCompile(`^\s*(\d+)\s*$`)
)

// ParsePinComment extracts a 1-based slot request from a free-text
// comment: "beat:N" anywhere in the comment (case-insensitive, optional
// whitespace after the colon) or a comment that is just a number. Zero
// and unparseable comments yield no pin.
func ParsePinComment(comment string) (int, bool) {
	if comment == "" {
		return 0, false
	}
	var digits string
	if m := beatPinPattern.FindStringSubmatch(strings.ToLower(comment)); m != nil {
		digits = m[1]
	} else if m := barePinPattern.FindStringSubmatch(comment); m != nil {
		digits = m[1]
	} else {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
