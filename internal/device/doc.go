// Package device manages the bell controller registry.
//
// A device row holds two disjoint groups of fields:
//
//   - Admin fields (serial, school, location, model), edited through the
//     REST API.
//   - Connectivity fields (is_online, is_silenced, current_timetable_id,
//     time_synced, last_seen, last_status_check), mutated only by the
//     bellnet dispatcher as controller messages arrive.
//
// Keeping the groups disjoint means dispatcher writes and admin edits can
// interleave without clobbering each other. The full status report is
// applied in a single UPDATE so readers never see a half-applied report.
package device
