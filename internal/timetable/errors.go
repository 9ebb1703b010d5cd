package timetable

import "errors"

var (
	// ErrScheduleNotFound is returned when a school has no weekly schedule.
	ErrScheduleNotFound = errors.New("weekly schedule not found")

	// ErrPresetNotFound is returned when a preset ID does not exist.
	ErrPresetNotFound = errors.New("preset not found")

	// ErrPresetInUse is returned when deleting a preset still referenced
	// by the school's weekly schedule.
	ErrPresetInUse = errors.New("preset is referenced by the weekly schedule")

	// ErrSpecialDayNotFound is returned when a special day ID does not exist.
	ErrSpecialDayNotFound = errors.New("special day not found")

	// ErrSpecialDayExists is returned when a school already has a special
	// day for the given date.
	ErrSpecialDayExists = errors.New("special day already exists for this date")

	// ErrInvalidDay is returned when a day name is not one of the seven
	// canonical names.
	ErrInvalidDay = errors.New("invalid day name")

	// ErrInvalidTimeEntry is returned when a time entry fails validation.
	ErrInvalidTimeEntry = errors.New("invalid time entry")

	// ErrInvalidDate is returned when a special day date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date: expected YYYY-MM-DD")
)
