// Package scheduler implements the reminder pipeline for the Lembra worker:
// candidate resolution, deduplication, dispatch, and execution accounting.
//
// All appointment timestamps are naive civil values authored in Brasília
// wall-clock time. Brazil abolished DST in 2019, so the zone is a fixed
// UTC-3 offset rather than an IANA location.
package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// BrasiliaZone is the fixed civil timezone for all appointment date/time
// values, regardless of where servers or clients sit.
var BrasiliaZone = time.FixedZone("-03:00", -3*60*60)

// scheduledForLayout is the stored text representation of a send instant.
// Every value the worker writes uses this layout with the fixed -03:00
// offset, which makes lexicographic comparison chronological.
const scheduledForLayout = "2006-01-02T15:04:05-07:00"

// CombineDateTime interprets an appointment's (date, time) pair as Brasília
// wall-clock time and returns the absolute instant. Accepts "15:04" and
// "15:04:05" time strings.
func CombineDateTime(date, clock string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid appointment date %q: %w", date, err)
	}

	var hour, minute, second int
	switch strings.Count(clock, ":") {
	case 1:
		if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
			return time.Time{}, fmt.Errorf("invalid appointment time %q: %w", clock, err)
		}
	case 2:
		if _, err := fmt.Sscanf(clock, "%d:%d:%d", &hour, &minute, &second); err != nil {
			return time.Time{}, fmt.Errorf("invalid appointment time %q: %w", clock, err)
		}
	default:
		return time.Time{}, fmt.Errorf("invalid appointment time %q", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, fmt.Errorf("appointment time %q out of range", clock)
	}

	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, second, 0, BrasiliaZone), nil
}

// FormatScheduledFor renders an instant in the stored text representation
// (Brasília civil time with explicit -03:00 offset).
func FormatScheduledFor(t time.Time) string {
	return t.In(BrasiliaZone).Format(scheduledForLayout)
}

// scheduledForParseLayouts covers the representations found in rows written
// by the worker and by earlier tooling: offset-carrying RFC 3339 variants
// plus naive forms that are interpreted as Brasília civil time.
var scheduledForParseLayouts = []struct {
	layout string
	naive  bool
}{
	{layout: "2006-01-02T15:04:05.999999999Z07:00"},
	{layout: "2006-01-02T15:04:05Z07:00"},
	{layout: "2006-01-02 15:04:05Z07:00"},
	{layout: "2006-01-02T15:04:05.999999999", naive: true},
	{layout: "2006-01-02T15:04:05", naive: true},
	{layout: "2006-01-02 15:04:05", naive: true},
	{layout: "2006-01-02T15:04", naive: true},
}

// ParseScheduledFor parses a stored scheduled_for value back into an
// instant. Naive values (no offset) are interpreted as Brasília civil time.
func ParseScheduledFor(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range scheduledForParseLayouts {
		if l.naive {
			if t, err := time.ParseInLocation(l.layout, s, BrasiliaZone); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.Parse(l.layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable scheduled_for value %q", s)
}

// FormatBR renders an instant as "DD/MM/YYYY às HH:mm" in Brasília civil
// time, the format used in message bodies.
func FormatBR(t time.Time) string {
	local := t.In(BrasiliaZone)
	return fmt.Sprintf("%s às %s", local.Format("02/01/2006"), local.Format("15:04"))
}
