package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceEvent records one dispatcher-observed controller event.
//
// The event name is the inbound message kind ("checkres", "timesync",
// "sync", ...); fields carry whatever the event reported. Tags stay low
// cardinality: serial and school only.
//
// The write is non-blocking; points are batched and sent asynchronously.
func (c *Client) WriteDeviceEvent(serial, schoolID, event string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	if len(fields) == 0 {
		fields = map[string]any{"count": 1}
	}

	point := write.NewPoint(
		"device_events",
		map[string]string{
			"serial": serial,
			"school": schoolID,
			"event":  event,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteClockDrift records a controller's reported clock drift in seconds.
// Positive means the controller runs ahead of the server.
func (c *Client) WriteClockDrift(serial, schoolID string, driftSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"clock_drift",
		map[string]string{
			"serial": serial,
			"school": schoolID,
		},
		map[string]any{
			"seconds": driftSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTimetablePush records a timetable transmitted to a controller.
func (c *Client) WriteTimetablePush(serial, schoolID, timetableID string, sizeBytes int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"timetable_push",
		map[string]string{
			"serial": serial,
			"school": schoolID,
		},
		map[string]any{
			"timetable_id": timetableID,
			"size_bytes":   sizeBytes,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom measurement with full control over tags and
// fields, for anything the helpers above do not cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
