package school

import "errors"

var (
	// ErrNotFound is returned when a school ID does not exist.
	ErrNotFound = errors.New("school not found")

	// ErrHasDevices is returned when trying to delete a school that still
	// has registered controllers.
	ErrHasDevices = errors.New("school has devices: unregister devices first")

	// ErrNameRequired is returned when creating or renaming a school with
	// an empty name.
	ErrNameRequired = errors.New("school name is required")
)
