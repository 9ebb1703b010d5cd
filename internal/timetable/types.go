package timetable

import "time"

// Day names in the order schools think about them. Weekly schedule JSON is
// keyed by these names; the device wire format is keyed by DayKey numbers.
var DayNames = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday",
	"Friday", "Saturday", "Sunday",
}

// dayKeys maps day names to the single-character keys controllers expect.
// Sunday is "0" through Saturday "6", matching time.Weekday numbering.
var dayKeys = map[string]string{
	"Sunday":    "0",
	"Monday":    "1",
	"Tuesday":   "2",
	"Wednesday": "3",
	"Thursday":  "4",
	"Friday":    "5",
	"Saturday":  "6",
}

// DayKey returns the wire key ("0".."6") for a day name, or "" if the name
// is not a canonical day.
func DayKey(name string) string {
	return dayKeys[name]
}

// IsDayName reports whether name is one of the seven canonical day names.
func IsDayName(name string) bool {
	_, ok := dayKeys[name]
	return ok
}

// TimeEntry is a single scheduled ring.
type TimeEntry struct {
	Time     string `json:"time"`     // 24h HH:MM
	Duration int    `json:"duration"` // seconds, 1-60
	Label    string `json:"label,omitempty"`
}

// DaySchedule selects the rings for one weekday: an optional preset plus
// ad-hoc custom entries. Preset and custom times are merged at transform
// time.
type DaySchedule struct {
	PresetID    *string     `json:"preset_id,omitempty"`
	CustomTimes []TimeEntry `json:"custom_times"`
}

// WeeklySchedule is a school's standing week. Days always contains exactly
// the seven canonical day names; repositories create missing days empty
// rather than omitting them.
type WeeklySchedule struct {
	ID        string                 `json:"id"`
	SchoolID  string                 `json:"school_id"`
	Days      map[string]DaySchedule `json:"days"`
	UpdatedBy *string                `json:"updated_by,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Preset is a reusable named list of rings (e.g. "Standard Day",
// "Exam Day") referenced by weekly schedule days.
type Preset struct {
	ID          string      `json:"id"`
	SchoolID    string      `json:"school_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Times       []TimeEntry `json:"times"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SpecialDay overrides one calendar date with its own ring list
// (holidays, exam days, short days). Unique per (school, date).
type SpecialDay struct {
	ID        string      `json:"id"`
	SchoolID  string      `json:"school_id"`
	Date      string      `json:"date"` // YYYY-MM-DD
	Times     []TimeEntry `json:"times"`
	CreatedBy *string     `json:"created_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DeviceTimetable is the compact wire format pushed to controllers.
// Times maps day keys "0".."6" to sorted, deduplicated HH:MM strings.
type DeviceTimetable struct {
	ID        string              `json:"id"`
	UpdatedAt string              `json:"updatedAt"`
	Times     map[string][]string `json:"times"`

	// TruncatedDays lists day keys whose ring lists were cut to the
	// controller slot limit. Informational; not serialized to the wire.
	TruncatedDays []string `json:"-"`
}

// ValidationResult reports every problem found in a device timetable.
// Advisory: callers decide whether to block the publish.
type ValidationResult struct {
	Valid     bool
	Errors    []string
	SizeBytes int
}
