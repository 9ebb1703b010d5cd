// Package influxdb records device connectivity telemetry in InfluxDB v2.
//
// The measurements are operational, not billing-grade: when a controller
// was last heard, how far its clock drifted, which timetable pushes went
// out. Writes are batched and asynchronous; a slow or absent InfluxDB
// never blocks bell traffic.
//
// Telemetry is optional. When disabled in configuration, Connect returns
// ErrDisabled and callers run without a client.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteDeviceEvent("BB-1042", "sch-001", "checkres", map[string]any{
//	    "online": true,
//	})
package influxdb
