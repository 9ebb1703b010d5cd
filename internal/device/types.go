package device

import "time"

// Device represents a bell controller installed at a school.
//
// Serial is the hardware identifier printed on the unit and embedded in
// every MQTT topic for that controller. It is immutable after registration.
type Device struct {
	ID       string `json:"id"`
	Serial   string `json:"serial"`
	SchoolID string `json:"school_id"`
	Location string `json:"location"`
	Model    string `json:"model"`

	// Liveness and sync state, maintained by the bellnet dispatcher.
	IsOnline           bool       `json:"is_online"`
	IsSilenced         bool       `json:"is_silenced"`
	CurrentTimetableID *string    `json:"current_timetable_id,omitempty"`
	TimeSynced         bool       `json:"time_synced"`
	LastSeen           *time.Time `json:"last_seen,omitempty"`
	LastStatusCheck    *time.Time `json:"last_status_check,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusReport is the decoded payload of a full status answer from a
// controller. All fields arrive in one message and are applied to the
// device row in a single update.
type StatusReport struct {
	IsSilenced         bool
	CurrentTimetableID string
	ReportedTime       time.Time
}

// Assignment links a user account to a controller they may operate.
type Assignment struct {
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
