package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the two controller generations.
//
// Legacy controllers use the request/response scheme under "bellbot":
//
//	bellbot/{serial}/status/request
//	bellbot/{serial}/status/response
//	bellbot/{serial}/schedule
//
// Current controllers use the flat kind-first scheme under "bellctl":
//
//	bellctl/{kind}/{serial}
//
// The kind-first layout lets the server subscribe per message kind with a
// single-level wildcard on the serial, without also receiving its own
// outbound publishes.
const (
	// TopicPrefixLegacy is the base for legacy controller topics.
	TopicPrefixLegacy = "bellbot"

	// TopicPrefixControl is the base for current controller topics.
	TopicPrefixControl = "bellctl"
)

// Topics provides builders for BellBot MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	ringTopic := topics.Ring("BB-1042")
//	// Returns: "bellctl/ring/BB-1042"
type Topics struct{}

// =============================================================================
// Outbound - server to controller
// =============================================================================

// Ring returns the topic for manual ring commands.
//
// Example: bellctl/ring/BB-1042
func (Topics) Ring(serial string) string {
	return fmt.Sprintf("%s/ring/%s", TopicPrefixControl, serial)
}

// TimeSync returns the topic for pushing server local time to a controller.
//
// Example: bellctl/time/BB-1042
func (Topics) TimeSync(serial string) string {
	return fmt.Sprintf("%s/time/%s", TopicPrefixControl, serial)
}

// Timetable returns the topic for pushing a compiled timetable.
//
// Example: bellctl/timetable/BB-1042
func (Topics) Timetable(serial string) string {
	return fmt.Sprintf("%s/timetable/%s", TopicPrefixControl, serial)
}

// SilenceOn returns the topic for enabling silenced mode on a controller.
//
// Example: bellctl/on/BB-1042
func (Topics) SilenceOn(serial string) string {
	return fmt.Sprintf("%s/on/%s", TopicPrefixControl, serial)
}

// SilenceOff returns the topic for disabling silenced mode on a controller.
//
// Example: bellctl/off/BB-1042
func (Topics) SilenceOff(serial string) string {
	return fmt.Sprintf("%s/off/%s", TopicPrefixControl, serial)
}

// TimeRequest returns the topic for querying a controller's clock.
// The controller answers on the TimeResponse topic.
//
// Example: bellctl/timereq/BB-1042
func (Topics) TimeRequest(serial string) string {
	return fmt.Sprintf("%s/timereq/%s", TopicPrefixControl, serial)
}

// TimetableRequest returns the topic for querying which timetable a
// controller is running. The controller answers on the CurrentTimetable topic.
//
// Example: bellctl/checkreq/BB-1042
func (Topics) TimetableRequest(serial string) string {
	return fmt.Sprintf("%s/checkreq/%s", TopicPrefixControl, serial)
}

// FreshnessReply returns the topic for answering a freshness query with
// the identifier and updated-at of the school's current timetable.
//
// Example: bellctl/nres/BB-1042
func (Topics) FreshnessReply(serial string) string {
	return fmt.Sprintf("%s/nres/%s", TopicPrefixControl, serial)
}

// StatusRequest returns the topic for a full status query.
// The controller answers on the StatusResponse topic.
//
// Example: bellctl/creq/BB-1042
func (Topics) StatusRequest(serial string) string {
	return fmt.Sprintf("%s/creq/%s", TopicPrefixControl, serial)
}

// =============================================================================
// Inbound - controller to server
// =============================================================================

// TimeAck returns the topic on which controllers confirm a time push.
//
// Example: bellctl/timeack/BB-1042
func (Topics) TimeAck(serial string) string {
	return fmt.Sprintf("%s/timeack/%s", TopicPrefixControl, serial)
}

// TimeReport returns the topic on which controllers report their clock
// unsolicited (on boot and periodically).
//
// Example: bellctl/timesync/BB-1042
func (Topics) TimeReport(serial string) string {
	return fmt.Sprintf("%s/timesync/%s", TopicPrefixControl, serial)
}

// TimeResponse returns the topic on which controllers answer a TimeRequest.
//
// Example: bellctl/timeres/BB-1042
func (Topics) TimeResponse(serial string) string {
	return fmt.Sprintf("%s/timeres/%s", TopicPrefixControl, serial)
}

// CurrentTimetable returns the topic on which controllers answer a
// TimetableRequest with the identifier of the timetable they are running.
//
// Example: bellctl/current/BB-1042
func (Topics) CurrentTimetable(serial string) string {
	return fmt.Sprintf("%s/current/%s", TopicPrefixControl, serial)
}

// FreshnessQuery returns the topic on which controllers ask whether their
// stored timetable is still current.
//
// Example: bellctl/nreq/BB-1042
func (Topics) FreshnessQuery(serial string) string {
	return fmt.Sprintf("%s/nreq/%s", TopicPrefixControl, serial)
}

// SyncRequest returns the topic on which controllers request a full
// re-provision (time plus timetable), typically after a factory reset.
//
// Example: bellctl/sync/BB-1042
func (Topics) SyncRequest(serial string) string {
	return fmt.Sprintf("%s/sync/%s", TopicPrefixControl, serial)
}

// StatusResponse returns the topic on which controllers answer a StatusRequest.
//
// Example: bellctl/checkres/BB-1042
func (Topics) StatusResponse(serial string) string {
	return fmt.Sprintf("%s/checkres/%s", TopicPrefixControl, serial)
}

// =============================================================================
// Legacy Controller Topics
// =============================================================================

// LegacyStatusRequest returns the status query topic for legacy controllers.
//
// Example: bellbot/BB-0217/status/request
func (Topics) LegacyStatusRequest(serial string) string {
	return fmt.Sprintf("%s/%s/status/request", TopicPrefixLegacy, serial)
}

// LegacyStatusResponse returns the status answer topic for legacy controllers.
//
// Example: bellbot/BB-0217/status/response
func (Topics) LegacyStatusResponse(serial string) string {
	return fmt.Sprintf("%s/%s/status/response", TopicPrefixLegacy, serial)
}

// LegacySchedule returns the timetable push topic for legacy controllers.
//
// Example: bellbot/BB-0217/schedule
func (Topics) LegacySchedule(serial string) string {
	return fmt.Sprintf("%s/%s/schedule", TopicPrefixLegacy, serial)
}

// =============================================================================
// Server Topics
// =============================================================================

// ServerStatus returns the server online/offline status topic.
// Published retained, and used as the LWT topic.
//
// Example: bellbot/server/status
func (Topics) ServerStatus() string {
	return fmt.Sprintf("%s/server/status", TopicPrefixLegacy)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================
//
// The server subscribes per inbound kind rather than bellctl/# so that it
// never receives its own outbound publishes back from the broker.

// AllTimeAcks returns a pattern matching time push confirmations.
//
// Pattern: bellctl/timeack/+
func (Topics) AllTimeAcks() string {
	return fmt.Sprintf("%s/timeack/+", TopicPrefixControl)
}

// AllTimeReports returns a pattern matching unsolicited clock reports.
//
// Pattern: bellctl/timesync/+
func (Topics) AllTimeReports() string {
	return fmt.Sprintf("%s/timesync/+", TopicPrefixControl)
}

// AllTimeResponses returns a pattern matching clock query answers.
//
// Pattern: bellctl/timeres/+
func (Topics) AllTimeResponses() string {
	return fmt.Sprintf("%s/timeres/+", TopicPrefixControl)
}

// AllCurrentTimetables returns a pattern matching timetable query answers.
//
// Pattern: bellctl/current/+
func (Topics) AllCurrentTimetables() string {
	return fmt.Sprintf("%s/current/+", TopicPrefixControl)
}

// AllFreshnessQueries returns a pattern matching freshness queries.
//
// Pattern: bellctl/nreq/+
func (Topics) AllFreshnessQueries() string {
	return fmt.Sprintf("%s/nreq/+", TopicPrefixControl)
}

// AllSyncRequests returns a pattern matching re-provision requests.
//
// Pattern: bellctl/sync/+
func (Topics) AllSyncRequests() string {
	return fmt.Sprintf("%s/sync/+", TopicPrefixControl)
}

// AllStatusResponses returns a pattern matching full status answers.
//
// Pattern: bellctl/checkres/+
func (Topics) AllStatusResponses() string {
	return fmt.Sprintf("%s/checkres/+", TopicPrefixControl)
}

// AllLegacyStatusResponses returns a pattern matching legacy status answers.
//
// Pattern: bellbot/+/status/response
func (Topics) AllLegacyStatusResponses() string {
	return fmt.Sprintf("%s/+/status/response", TopicPrefixLegacy)
}

// =============================================================================
// Parsing
// =============================================================================

// SerialFromControl extracts the controller serial from a kind-first topic.
// Returns false if the topic is not of the form bellctl/{kind}/{serial}.
func SerialFromControl(topic string) (kind, serial string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixControl+"/")
	if !found {
		return "", "", false
	}
	kind, serial, found = strings.Cut(rest, "/")
	if !found || kind == "" || serial == "" || strings.Contains(serial, "/") {
		return "", "", false
	}
	return kind, serial, true
}

// SerialFromLegacy extracts the controller serial from a legacy topic.
// Returns false if the topic is not of the form bellbot/{serial}/...
func SerialFromLegacy(topic string) (serial string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixLegacy+"/")
	if !found {
		return "", false
	}
	serial, _, found = strings.Cut(rest, "/")
	if !found || serial == "" || serial == "server" {
		return "", false
	}
	return serial, true
}
