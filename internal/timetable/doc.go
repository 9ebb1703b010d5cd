// Package timetable holds the scheduling domain: weekly schedules, reusable
// presets, date-specific special days, and the transformer that compiles
// them into the compact wire format bell controllers store.
//
// The transformer is pure. Persistence, special-day overlays and publishing
// are composed around it by the bellnet publisher and the REST API.
//
// Controllers are small: 30 ring slots per day and a 2KB payload buffer.
// Transform truncates to the slot limit and flags the overflow; Validate
// reports every violated limit so operators see the whole problem at once.
package timetable
