package bellnet

// TelemetryWriter records device events in a time-series store. Writes
// must not block; the dispatcher's consumer goroutine calls these inline.
// *influxdb.Client satisfies this with its batched async write API.
type TelemetryWriter interface {
	WriteDeviceEvent(serial, schoolID, event string, fields map[string]any)
	WriteClockDrift(serial, schoolID string, driftSeconds float64)
}

// TelemetrySink forwards dispatcher events to a telemetry writer.
type TelemetrySink struct {
	writer TelemetryWriter
}

func NewTelemetrySink(w TelemetryWriter) *TelemetrySink {
	return &TelemetrySink{writer: w}
}

// Notify implements EventSink. Clock drift gets its own measurement so
// dashboards can graph the magnitude; everything else lands as a counted
// device event.
func (s *TelemetrySink) Notify(ev Event) {
	if ev.Type == "clock_drift" {
		if secs, ok := ev.Data["drift_seconds"].(float64); ok {
			s.writer.WriteClockDrift(ev.Serial, ev.School, secs)
			return
		}
	}
	s.writer.WriteDeviceEvent(ev.Serial, ev.School, ev.Type, ev.Data)
}

// FanoutSink delivers each event to every sink in order. Nil sinks are
// skipped so callers can pass optional sinks without guarding.
type FanoutSink struct {
	sinks []EventSink
}

func NewFanoutSink(sinks ...EventSink) *FanoutSink {
	out := &FanoutSink{}
	for _, s := range sinks {
		if s != nil {
			out.sinks = append(out.sinks, s)
		}
	}
	return out
}

func (f *FanoutSink) Notify(ev Event) {
	for _, s := range f.sinks {
		s.Notify(ev)
	}
}
