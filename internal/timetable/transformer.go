package timetable

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Controller limits. The firmware stores at most maxSlotsPerDay ring slots
// per day and rejects payloads larger than its maxPayloadBytes buffer.
const (
	maxSlotsPerDay  = 30
	maxPayloadBytes = 2048
)

// timePattern matches 24-hour HH:MM.
var timePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// whitespaceRun collapses whitespace runs in school names for the slug.
var whitespaceRun = regexp.MustCompile(`\s+`)

// TimetableID builds the identifier embedded in a device timetable: the
// school name with whitespace runs replaced by underscores, an underscore,
// then the last 6 characters of the schedule's storage ID. Controllers echo
// this ID back, which is how the server tells whether a device is running
// the current timetable.
func TimetableID(schoolName, scheduleID string) string {
	slug := whitespaceRun.ReplaceAllString(strings.TrimSpace(schoolName), "_")
	tail := scheduleID
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return slug + "_" + tail
}

// Transform compiles a weekly schedule and its presets into the compact
// device wire format.
//
// For each of the seven days the day's preset times (if any) and custom
// times are merged, deduplicated on the exact HH:MM string, sorted
// ascending and truncated to the controller slot limit. Truncation is
// flagged on the result, never an error: a school that schedules 40 rings
// gets the first 30 and a warning, not a dead controller.
//
// Transform is pure: same inputs, same output, no I/O.
func Transform(week WeeklySchedule, presets map[string]Preset, schoolName, scheduleID string, updatedAt time.Time) DeviceTimetable {
	dt := DeviceTimetable{
		ID:        TimetableID(schoolName, scheduleID),
		UpdatedAt: updatedAt.UTC().Format(time.RFC3339),
		Times:     make(map[string][]string, len(DayNames)),
	}

	for _, dayName := range DayNames {
		key := dayKeys[dayName]
		day := week.Days[dayName]

		var entries []TimeEntry
		if day.PresetID != nil {
			if preset, ok := presets[*day.PresetID]; ok {
				entries = append(entries, preset.Times...)
			}
		}
		entries = append(entries, day.CustomTimes...)

		times, truncated := compileDayTimes(entries)
		dt.Times[key] = times
		if truncated {
			dt.TruncatedDays = append(dt.TruncatedDays, key)
		}
	}

	return dt
}

// compileDayTimes deduplicates, sorts and truncates one day's ring times.
func compileDayTimes(entries []TimeEntry) (times []string, truncated bool) {
	seen := make(map[string]struct{}, len(entries))
	times = make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Time]; dup {
			continue
		}
		seen[e.Time] = struct{}{}
		times = append(times, e.Time)
	}

	// HH:MM strings sort correctly as text.
	sort.Strings(times)

	if len(times) > maxSlotsPerDay {
		times = times[:maxSlotsPerDay]
		truncated = true
	}
	return times, truncated
}

// Validate checks a device timetable against the controller's limits.
// All problems are accumulated; the result is advisory and the caller
// decides whether to block the publish.
func Validate(dt DeviceTimetable) ValidationResult {
	result := ValidationResult{Valid: true}

	payload, err := json.Marshal(dt)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("timetable not serializable: %v", err))
		return result
	}
	result.SizeBytes = len(payload)

	if result.SizeBytes > maxPayloadBytes {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(
			"payload is %d bytes, exceeds device limit of %d bytes",
			result.SizeBytes, maxPayloadBytes))
	}

	for _, dayName := range DayNames {
		key := dayKeys[dayName]
		times, ok := dt.Times[key]
		if !ok {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("missing day key %q", key))
			continue
		}
		if len(times) > maxSlotsPerDay {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"day %q has %d entries, exceeds limit of %d",
				key, len(times), maxSlotsPerDay))
		}
		for _, tm := range times {
			if !timePattern.MatchString(tm) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"day %q has malformed time %q", key, tm))
			}
		}
	}

	return result
}

// specialDayWindow is how far ahead special days are folded into a
// published timetable. Anything further out is picked up by a later
// publish.
const specialDayWindow = 7 * 24 * time.Hour

// OverlaySpecialDays replaces the weekday ring lists for special dates
// falling within the next seven days of from. The overlaid list goes
// through the same dedup/sort/truncate pipeline as regular days.
func OverlaySpecialDays(dt *DeviceTimetable, days []SpecialDay, from time.Time) {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := start.Add(specialDayWindow)

	for _, sd := range days {
		date, err := time.ParseInLocation("2006-01-02", sd.Date, from.Location())
		if err != nil {
			continue
		}
		if date.Before(start) || !date.Before(end) {
			continue
		}

		key := fmt.Sprintf("%d", int(date.Weekday()))
		times, truncated := compileDayTimes(sd.Times)
		dt.Times[key] = times
		if truncated {
			dt.TruncatedDays = append(dt.TruncatedDays, key)
		}
	}
}

// ValidateEntries checks user-supplied time entries before they are stored.
// Unlike Validate this is strict: a bad entry rejects the write.
func ValidateEntries(entries []TimeEntry) error {
	for i, e := range entries {
		if !timePattern.MatchString(e.Time) {
			return fmt.Errorf("%w: entry %d time %q is not 24h HH:MM", ErrInvalidTimeEntry, i, e.Time)
		}
		if e.Duration < 1 || e.Duration > 60 {
			return fmt.Errorf("%w: entry %d duration %d is outside 1-60 seconds", ErrInvalidTimeEntry, i, e.Duration)
		}
	}
	return nil
}

// ValidateDate checks a special day date string.
func ValidateDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}
