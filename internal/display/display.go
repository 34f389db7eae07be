// Package display renders readings into the strings the dataweb front end shows.
package display

import (
	"dataweb-backend/internal/reading"
	"fmt"
	"strconv"
	"strings"
)

// Status field names, as they are keyed in a snapshot's status map.
const (
	FieldTitle         = "TITLE"
	FieldUsername      = "_USERNAME"
	FieldDisplay       = "DISPLAY"
	FieldRunDuration   = "RUNDURATION"
	FieldPeriodRunTime = "RUNDURATION_PD"
)

// Redacted replaces private fields the experiment team has not agreed to show.
const Redacted = "Unavailable"

var unformatted = map[string]bool{
	"runnumber": true,
	"_rbnumber": true,
}

// IsUnformatted reports whether a reading must be shown exactly as read. Run and RB numbers
// are identifiers, never quantities.
func IsUnformatted(name string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, ".VAL"))
	return unformatted[name]
}

// Format renders the value of a reading with its precision and units.
func Format(r reading.Reading) reading.Formatted {
	if IsUnformatted(r.Name) {
		return reading.Formatted{Reading: r, Display: r.Value}
	}
	value := FormatValue(r.Value, r.Precision)
	if r.Units != "" {
		value = fmt.Sprintf("%s %s", value, r.Units)
	}
	return reading.Formatted{Reading: r, Display: value}
}

// FormatSet renders every reading of a set.
func FormatSet(set reading.Set) map[string]reading.Formatted {
	out := make(map[string]reading.Formatted, len(set))
	for name, r := range set {
		out[name] = Format(r)
	}
	return out
}

// Redact hides the run title and user name unless the display flag is present and set to yes.
// A missing flag hides them too.
func Redact(fields map[string]reading.Formatted) {
	flag, ok := fields[FieldDisplay]
	if ok && strings.EqualFold(strings.TrimSpace(flag.Value), "yes") {
		return
	}
	for _, name := range []string{FieldTitle, FieldUsername} {
		f, ok := fields[name]
		if !ok {
			continue
		}
		f.Display = Redacted
		fields[name] = f
	}
}

// HumanizeDuration rewrites a connected whole-seconds reading as "H hr M min S s", dropping the
// hour and minute parts while they are zero, and clears its units.
func HumanizeDuration(r reading.Reading) reading.Reading {
	if !r.IsConnected() {
		return r
	}
	raw := strings.TrimSpace(r.Value)
	total, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || total < 0 {
		return r
	}

	seconds := total % 60
	minutes := (total / 60) % 60
	hours := total / 3600

	switch {
	case hours == 0 && minutes == 0:
		r.Value = fmt.Sprintf("%s s", raw)
	case hours == 0:
		r.Value = fmt.Sprintf("%d min %d s", minutes, seconds)
	default:
		r.Value = fmt.Sprintf("%d hr %d min %d s", hours, minutes, seconds)
	}
	r.Units = ""
	r.Precision = nil
	return r
}
