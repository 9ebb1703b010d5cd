package mqtt

import (
	"strings"
	"testing"
)

// topicMatchesPattern implements MQTT single-level wildcard matching,
// enough to verify the subscription patterns here.
func topicMatchesPattern(topic, pattern string) bool {
	topicParts := strings.Split(topic, "/")
	patternParts := strings.Split(pattern, "/")
	if len(topicParts) != len(patternParts) {
		return false
	}
	for i, p := range patternParts {
		if p == "+" {
			continue
		}
		if p != topicParts[i] {
			return false
		}
	}
	return true
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ring", topics.Ring("BB-1042"), "bellctl/ring/BB-1042"},
		{"time sync", topics.TimeSync("BB-1042"), "bellctl/time/BB-1042"},
		{"timetable", topics.Timetable("BB-1042"), "bellctl/timetable/BB-1042"},
		{"silence on", topics.SilenceOn("BB-1042"), "bellctl/on/BB-1042"},
		{"silence off", topics.SilenceOff("BB-1042"), "bellctl/off/BB-1042"},
		{"time request", topics.TimeRequest("BB-1042"), "bellctl/timereq/BB-1042"},
		{"timetable request", topics.TimetableRequest("BB-1042"), "bellctl/checkreq/BB-1042"},
		{"status request", topics.StatusRequest("BB-1042"), "bellctl/creq/BB-1042"},
		{"time ack", topics.TimeAck("BB-1042"), "bellctl/timeack/BB-1042"},
		{"time report", topics.TimeReport("BB-1042"), "bellctl/timesync/BB-1042"},
		{"time response", topics.TimeResponse("BB-1042"), "bellctl/timeres/BB-1042"},
		{"current timetable", topics.CurrentTimetable("BB-1042"), "bellctl/current/BB-1042"},
		{"freshness query", topics.FreshnessQuery("BB-1042"), "bellctl/nreq/BB-1042"},
		{"sync request", topics.SyncRequest("BB-1042"), "bellctl/sync/BB-1042"},
		{"status response", topics.StatusResponse("BB-1042"), "bellctl/checkres/BB-1042"},
		{"legacy status request", topics.LegacyStatusRequest("BB-0217"), "bellbot/BB-0217/status/request"},
		{"legacy status response", topics.LegacyStatusResponse("BB-0217"), "bellbot/BB-0217/status/response"},
		{"legacy schedule", topics.LegacySchedule("BB-0217"), "bellbot/BB-0217/schedule"},
		{"server status", topics.ServerStatus(), "bellbot/server/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestSubscriptionPatternsExcludeOutbound(t *testing.T) {
	topics := Topics{}

	// Every inbound wildcard pattern must sit under a kind the server never
	// publishes on, so the server does not receive its own messages back.
	patterns := []string{
		topics.AllTimeAcks(),
		topics.AllTimeReports(),
		topics.AllTimeResponses(),
		topics.AllCurrentTimetables(),
		topics.AllFreshnessQueries(),
		topics.AllSyncRequests(),
		topics.AllStatusResponses(),
	}
	outbound := []string{
		topics.Ring("BB-1042"),
		topics.TimeSync("BB-1042"),
		topics.Timetable("BB-1042"),
		topics.SilenceOn("BB-1042"),
		topics.SilenceOff("BB-1042"),
		topics.TimeRequest("BB-1042"),
		topics.TimetableRequest("BB-1042"),
		topics.FreshnessReply("BB-1042"),
		topics.StatusRequest("BB-1042"),
	}

	for _, pattern := range patterns {
		for _, topic := range outbound {
			if topicMatchesPattern(topic, pattern) {
				t.Errorf("inbound pattern %q matches outbound topic %q", pattern, topic)
			}
		}
	}

	if !topicMatchesPattern(topics.TimeAck("BB-1042"), topics.AllTimeAcks()) {
		t.Error("time ack pattern should match a concrete time ack topic")
	}
	if !topicMatchesPattern(topics.LegacyStatusResponse("BB-0217"), topics.AllLegacyStatusResponses()) {
		t.Error("legacy pattern should match a concrete legacy response topic")
	}
}

func TestSerialFromControl(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		wantKind   string
		wantSerial string
		wantOK     bool
	}{
		{"time ack", "bellctl/timeack/BB-1042", "timeack", "BB-1042", true},
		{"status response", "bellctl/checkres/BB-7", "checkres", "BB-7", true},
		{"wrong prefix", "bellbot/BB-1042/schedule", "", "", false},
		{"missing serial", "bellctl/timeack", "", "", false},
		{"extra levels", "bellctl/timeack/BB-1042/extra", "", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, serial, ok := SerialFromControl(tt.topic)
			if kind != tt.wantKind || serial != tt.wantSerial || ok != tt.wantOK {
				t.Errorf("SerialFromControl(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, kind, serial, ok, tt.wantKind, tt.wantSerial, tt.wantOK)
			}
		})
	}
}

func TestSerialFromLegacy(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		wantSerial string
		wantOK     bool
	}{
		{"status response", "bellbot/BB-0217/status/response", "BB-0217", true},
		{"schedule", "bellbot/BB-0217/schedule", "BB-0217", true},
		{"server status excluded", "bellbot/server/status", "", false},
		{"wrong prefix", "bellctl/timeack/BB-1042", "", false},
		{"bare serial", "bellbot/BB-0217", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serial, ok := SerialFromLegacy(tt.topic)
			if serial != tt.wantSerial || ok != tt.wantOK {
				t.Errorf("SerialFromLegacy(%q) = (%q, %v), want (%q, %v)",
					tt.topic, serial, ok, tt.wantSerial, tt.wantOK)
			}
		})
	}
}
