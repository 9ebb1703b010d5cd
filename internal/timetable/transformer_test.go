package timetable

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func entries(times ...string) []TimeEntry {
	out := make([]TimeEntry, len(times))
	for i, tm := range times {
		out[i] = TimeEntry{Time: tm, Duration: 5}
	}
	return out
}

func strPtr(s string) *string { return &s }

func emptyWeek() WeeklySchedule {
	return WeeklySchedule{ID: "ws-1", SchoolID: "sch-1", Days: emptyDays()}
}

func TestTransformAlwaysHasSevenDayKeys(t *testing.T) {
	dt := Transform(emptyWeek(), nil, "Northgate Primary", "65a1b2c3d4e5", time.Now())

	if len(dt.Times) != 7 {
		t.Fatalf("expected 7 day keys, got %d", len(dt.Times))
	}
	for i := 0; i < 7; i++ {
		key := fmt.Sprintf("%d", i)
		times, ok := dt.Times[key]
		if !ok {
			t.Errorf("missing day key %q", key)
			continue
		}
		if times == nil {
			t.Errorf("day %q should be an empty list, not nil", key)
		}
		if len(times) != 0 {
			t.Errorf("empty week day %q should have no times, got %v", key, times)
		}
	}
}

func TestTransformMergesPresetAndCustom(t *testing.T) {
	// Monday preset [08:30, 12:00] + custom [08:30, 15:30] must produce
	// [08:30, 12:00, 15:30]: deduplicated and sorted.
	week := emptyWeek()
	week.Days["Monday"] = DaySchedule{
		PresetID:    strPtr("preset-std"),
		CustomTimes: entries("08:30", "15:30"),
	}
	presets := map[string]Preset{
		"preset-std": {ID: "preset-std", Times: entries("08:30", "12:00")},
	}

	dt := Transform(week, presets, "Northgate", "65a1b2c3d4e5", time.Now())

	got := dt.Times["1"]
	want := []string{"08:30", "12:00", "15:30"}
	if len(got) != len(want) {
		t.Fatalf("Monday times: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Monday times: got %v, want %v", got, want)
		}
	}
}

func TestTransformSortsUnorderedTimes(t *testing.T) {
	week := emptyWeek()
	week.Days["Friday"] = DaySchedule{
		CustomTimes: entries("15:30", "07:45", "12:00", "09:10"),
	}

	dt := Transform(week, nil, "Northgate", "abcdef", time.Now())

	got := dt.Times["5"]
	want := []string{"07:45", "09:10", "12:00", "15:30"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Friday times: got %v, want %v", got, want)
		}
	}
}

func TestTransformTruncatesToSlotLimit(t *testing.T) {
	var many []TimeEntry
	for h := 6; h < 20; h++ {
		for _, m := range []string{"00", "15", "30"} {
			many = append(many, TimeEntry{Time: fmt.Sprintf("%02d:%s", h, m), Duration: 5})
		}
	}
	if len(many) <= maxSlotsPerDay {
		t.Fatalf("test needs more than %d entries, built %d", maxSlotsPerDay, len(many))
	}

	week := emptyWeek()
	week.Days["Wednesday"] = DaySchedule{CustomTimes: many}

	dt := Transform(week, nil, "Northgate", "abcdef", time.Now())

	got := dt.Times["3"]
	if len(got) != maxSlotsPerDay {
		t.Fatalf("expected %d entries after truncation, got %d", maxSlotsPerDay, len(got))
	}
	// The first 30 sorted times survive.
	if got[0] != "06:00" || got[maxSlotsPerDay-1] != "15:30" {
		t.Errorf("truncation kept wrong window: first %q last %q", got[0], got[maxSlotsPerDay-1])
	}
	if len(dt.TruncatedDays) != 1 || dt.TruncatedDays[0] != "3" {
		t.Errorf("expected day 3 flagged truncated, got %v", dt.TruncatedDays)
	}
}

func TestTimetableID(t *testing.T) {
	tests := []struct {
		name       string
		schoolName string
		scheduleID string
		want       string
	}{
		{"simple", "Northgate", "65a1b2c3d4e5", "Northgate_c3d4e5"},
		{"spaces to underscores", "Northgate Primary School", "65a1b2c3d4e5", "Northgate_Primary_School_c3d4e5"},
		{"whitespace runs collapse", "Northgate   Primary", "65a1b2c3d4e5", "Northgate_Primary_c3d4e5"},
		{"short id used whole", "Eastview", "ab12", "Eastview_ab12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimetableID(tt.schoolName, tt.scheduleID); got != tt.want {
				t.Errorf("TimetableID(%q, %q) = %q, want %q",
					tt.schoolName, tt.scheduleID, got, tt.want)
			}
		})
	}
}

func TestTransformIsPure(t *testing.T) {
	week := emptyWeek()
	week.Days["Monday"] = DaySchedule{CustomTimes: entries("09:00", "08:00")}
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	a := Transform(week, nil, "Northgate", "abcdef", at)
	b := Transform(week, nil, "Northgate", "abcdef", at)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("two transforms of the same input differ:\n%s\n%s", ja, jb)
	}
	// Input week must be untouched.
	if len(week.Days["Monday"].CustomTimes) != 2 || week.Days["Monday"].CustomTimes[0].Time != "09:00" {
		t.Error("Transform mutated its input")
	}
}

func TestValidateAcceptsTransformOutput(t *testing.T) {
	week := emptyWeek()
	week.Days["Monday"] = DaySchedule{CustomTimes: entries("08:30", "12:00")}

	dt := Transform(week, nil, "Northgate", "abcdef", time.Now())
	result := Validate(dt)

	if !result.Valid {
		t.Fatalf("transform output should validate, got errors: %v", result.Errors)
	}
	if result.SizeBytes == 0 {
		t.Error("SizeBytes should be reported")
	}
}

func TestValidateOversizedPayload(t *testing.T) {
	// A very long school name blows past the device buffer.
	dt := Transform(emptyWeek(), nil, strings.Repeat("Longname ", 300), "abcdef", time.Now())
	result := Validate(dt)

	if result.Valid {
		t.Fatal("oversized payload should fail validation")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, fmt.Sprintf("%d bytes", result.SizeBytes)) {
			found = true
		}
	}
	if !found {
		t.Errorf("size error should mention the byte count, got %v", result.Errors)
	}
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	dt := DeviceTimetable{
		ID:        "X_abcdef",
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Times: map[string][]string{
			// "0" missing entirely.
			"1": {"25:00"},     // malformed
			"2": {"08:3"},      // malformed
			"3": {}, "4": {}, "5": {}, "6": {},
		},
	}
	result := Validate(dt)

	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) < 3 {
		t.Errorf("expected missing-key plus two malformed-time errors, got %v", result.Errors)
	}
}

func TestOverlaySpecialDays(t *testing.T) {
	week := emptyWeek()
	for _, day := range DayNames {
		week.Days[day] = DaySchedule{CustomTimes: entries("08:30")}
	}
	// Monday 2026-03-02.
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	dt := Transform(week, nil, "Northgate", "abcdef", from)

	days := []SpecialDay{
		{Date: "2026-03-04", Times: entries("10:00", "11:00")}, // Wednesday, in window
		{Date: "2026-03-15", Times: entries("13:00")},          // beyond 7 days, ignored
		{Date: "2026-02-20", Times: entries("06:00")},          // past, ignored
		{Date: "not-a-date", Times: entries("07:00")},          // malformed, ignored
	}
	OverlaySpecialDays(&dt, days, from)

	if got := dt.Times["3"]; len(got) != 2 || got[0] != "10:00" || got[1] != "11:00" {
		t.Errorf("Wednesday should be replaced by the special day, got %v", got)
	}
	if got := dt.Times["1"]; len(got) != 1 || got[0] != "08:30" {
		t.Errorf("Monday should be untouched, got %v", got)
	}
	if got := dt.Times["0"]; len(got) != 1 || got[0] != "08:30" {
		t.Errorf("out-of-window and malformed dates must not apply, got %v", got)
	}
}

func TestValidateEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []TimeEntry
		wantErr bool
	}{
		{"valid", []TimeEntry{{Time: "08:30", Duration: 5, Label: "First bell"}}, false},
		{"empty list", nil, false},
		{"bad time", []TimeEntry{{Time: "8:30", Duration: 5}}, true},
		{"hour out of range", []TimeEntry{{Time: "24:00", Duration: 5}}, true},
		{"duration zero", []TimeEntry{{Time: "08:30", Duration: 0}}, true},
		{"duration too long", []TimeEntry{{Time: "08:30", Duration: 61}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntries(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEntries(%v) error = %v, wantErr %v", tt.entries, err, tt.wantErr)
			}
		})
	}
}
