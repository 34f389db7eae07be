package normalize

import (
	"slices"
	"strings"
)

var runControlSuffixes = []string{"HIGH.VAL", "LOW.VAL", "INRANGE.VAL", "ENABLE.VAL"}

// ShortenTitle reduces a full channel identifier to the name a reading is keyed by: the last
// segment, or `<block>:RC:<SUFFIX>` for run-control channels.
func ShortenTitle(title string) string {
	parts := strings.Split(title, ":")
	last := parts[len(parts)-1]
	if slices.Contains(parts, "RC") && slices.Contains(runControlSuffixes, last) {
		return strings.Join(parts[max(0, len(parts)-3):], ":")
	}
	return last
}
