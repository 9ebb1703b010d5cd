package device

import "errors"

// Domain-specific errors for device operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when a device ID or serial does not exist.
	ErrNotFound = errors.New("device not found")

	// ErrExists is returned when registering a device whose serial is
	// already taken.
	ErrExists = errors.New("device already exists")

	// ErrInvalidSerial is returned when a serial fails validation.
	ErrInvalidSerial = errors.New("invalid device serial")

	// ErrAssignmentExists is returned when assigning a user to a device
	// they are already assigned to.
	ErrAssignmentExists = errors.New("user already assigned to device")

	// ErrAssignmentNotFound is returned when removing an assignment that
	// does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
)
