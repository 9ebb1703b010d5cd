package school

import "time"

// School represents an institution with bell controllers managed by BellBot.
// The school name feeds into device timetable identifiers, so renames cause
// every controller in the school to report a stale timetable until the next
// publish.
type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
