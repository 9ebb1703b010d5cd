package bellnet

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bellbot/bellbot-core/internal/device"
	"github.com/bellbot/bellbot-core/internal/infrastructure/logging"
	"github.com/bellbot/bellbot-core/internal/infrastructure/mqtt"
	"github.com/bellbot/bellbot-core/internal/school"
	"github.com/bellbot/bellbot-core/internal/timetable"
)

// Message is one inbound MQTT message queued for dispatch.
type Message struct {
	Topic   string
	Payload []byte
}

// Event is a device state change surfaced to live observers (the admin
// websocket stream).
type Event struct {
	Type   string         `json:"type"`
	Serial string         `json:"serial"`
	School string         `json:"school_id,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Time   time.Time      `json:"time"`
}

// EventSink receives dispatcher events. Implementations must not block.
type EventSink interface {
	Notify(Event)
}

// handleTimeout bounds the repository and publish work for one message.
const handleTimeout = 10 * time.Second

// DispatcherDeps carries the dispatcher's dependencies.
type DispatcherDeps struct {
	Registry  *Registry
	Publisher *Publisher
	Devices   device.Repository
	Schools   school.Repository
	Schedules timetable.ScheduleRepository
	Presets   timetable.PresetRepository
	Specials  timetable.SpecialDayRepository
	Location  *time.Location
	Logger    *logging.Logger

	// DriftThreshold is the tolerated controller clock error before a
	// corrective time push (default 60s).
	DriftThreshold time.Duration

	// QueueSize is the inbound buffer depth (default 256).
	QueueSize int

	// Events is optional; nil disables event notification.
	Events EventSink
}

// Dispatcher serialises all inbound controller traffic through a single
// consumer goroutine.
//
// MQTT handlers call Enqueue and return immediately; the consumer drains
// the queue in arrival order, so no two messages are ever processed
// concurrently and back-to-back messages for one controller observe each
// other's writes.
type Dispatcher struct {
	queue     chan Message
	registry  *Registry
	publisher *Publisher
	prov      *Provisioner
	devices   device.Repository
	schools   school.Repository
	schedules timetable.ScheduleRepository
	loc       *time.Location
	drift     time.Duration
	events    EventSink
	log       *logging.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now is stubbed in tests.
	now func() time.Time
}

// NewDispatcher creates a dispatcher. Call Start to begin consuming.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.QueueSize <= 0 {
		deps.QueueSize = 256
	}
	if deps.DriftThreshold <= 0 {
		deps.DriftThreshold = 60 * time.Second
	}
	prov := NewProvisioner(ProvisionerDeps{
		Publisher: deps.Publisher,
		Devices:   deps.Devices,
		Schools:   deps.Schools,
		Schedules: deps.Schedules,
		Presets:   deps.Presets,
		Specials:  deps.Specials,
		Location:  deps.Location,
		Logger:    deps.Logger,
	})
	return &Dispatcher{
		queue:     make(chan Message, deps.QueueSize),
		registry:  deps.Registry,
		publisher: deps.Publisher,
		prov:      prov,
		devices:   deps.Devices,
		schools:   deps.Schools,
		schedules: deps.Schedules,
		loc:       deps.Location,
		drift:     deps.DriftThreshold,
		events:    deps.Events,
		log:       deps.Logger.With("component", "dispatcher"),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Enqueue queues an inbound message. Called from the MQTT delivery
// goroutine; never blocks. A full queue drops the message with a log line
// rather than stalling broker delivery.
func (d *Dispatcher) Enqueue(topic string, payload []byte) {
	select {
	case d.queue <- Message{Topic: topic, Payload: payload}:
	default:
		d.log.Warn("dispatch queue full, dropping message", "topic", topic)
	}
}

// Handler returns the MessageHandler to register on MQTT subscriptions.
func (d *Dispatcher) Handler() mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		d.Enqueue(topic, payload)
		return nil
	}
}

// Start launches the consumer goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop shuts the consumer down and waits for the in-flight message.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case msg := <-d.queue:
			d.handle(msg)
		}
	}
}

// handle processes one message. Errors are logged and dropped; the
// consumer always moves on to the next message.
func (d *Dispatcher) handle(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if serial, ok := mqtt.SerialFromLegacy(msg.Topic); ok {
		d.handleLegacy(ctx, serial, msg)
		return
	}

	kind, serial, ok := mqtt.SerialFromControl(msg.Topic)
	if !ok {
		d.log.Warn("unparseable topic", "topic", msg.Topic)
		return
	}

	// Unknown serials are logged and dropped, never auto-registered:
	// a misconfigured or spoofed controller must not create records.
	dev, err := d.devices.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			d.log.Warn("message from unregistered device", "serial", serial, "kind", kind)
		} else {
			d.log.Error("device lookup failed", "serial", serial, "error", err)
		}
		return
	}

	// Any message proves the device is alive. Stamp before the per-kind
	// handling so even a malformed payload updates liveness.
	if err := d.devices.UpdateLastSeen(ctx, serial, d.now()); err != nil {
		d.log.Error("updating last_seen failed", "serial", serial, "error", err)
	}

	switch kind {
	case "timeack":
		d.handleTimeAck(ctx, dev)
	case "timesync":
		d.handleTimeReport(ctx, dev, msg.Payload)
	case "timeres":
		d.resolve(serial, ClassTimeQuery, msg.Payload)
	case "current":
		d.handleCurrentTimetable(ctx, serial, msg.Payload)
	case "nreq":
		d.handleFreshnessQuery(ctx, dev)
	case "sync":
		d.handleSyncRequest(ctx, dev)
	case "checkres":
		d.handleStatusResponse(ctx, dev, msg.Payload)
	default:
		d.log.Warn("unknown message kind", "kind", kind, "serial", serial)
	}
}

// handleLegacy routes messages on the old bellbot/{serial}/... topics.
func (d *Dispatcher) handleLegacy(ctx context.Context, serial string, msg Message) {
	if !strings.HasSuffix(msg.Topic, "/status/response") {
		d.log.Warn("unexpected legacy topic", "topic", msg.Topic)
		return
	}

	if _, err := d.devices.GetBySerial(ctx, serial); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			d.log.Warn("legacy response from unregistered device", "serial", serial)
		} else {
			d.log.Error("device lookup failed", "serial", serial, "error", err)
		}
		return
	}
	if err := d.devices.UpdateLastSeen(ctx, serial, d.now()); err != nil {
		d.log.Error("updating last_seen failed", "serial", serial, "error", err)
	}

	d.resolve(serial, ClassLegacyStatus, msg.Payload)
}

// resolve delivers an answer, logging late arrivals.
func (d *Dispatcher) resolve(serial string, class RequestClass, payload []byte) {
	if !d.registry.Resolve(serial, class, payload) {
		d.log.Debug("answer with no pending request",
			"serial", serial, "class", string(class))
	}
}

// handleTimeAck records a confirmed time push.
func (d *Dispatcher) handleTimeAck(ctx context.Context, dev *device.Device) {
	if err := d.devices.SetTimeSynced(ctx, dev.Serial, true); err != nil {
		d.log.Error("recording time ack failed", "serial", dev.Serial, "error", err)
		return
	}
	d.emit("time_synced", dev, nil)
}

// handleTimeReport checks a controller's self-reported clock against the
// server's. Drift beyond the threshold triggers an immediate corrective
// push and the device is marked unsynced until it acknowledges.
func (d *Dispatcher) handleTimeReport(ctx context.Context, dev *device.Device, payload []byte) {
	reported, err := d.parseDeviceTime(payload)
	if err != nil {
		d.log.Warn("malformed time report", "serial", dev.Serial, "error", err)
		return
	}

	drift := d.now().In(d.loc).Sub(reported)
	if drift < 0 {
		drift = -drift
	}

	if drift > d.drift {
		d.log.Info("clock drift detected, pushing corrective time",
			"serial", dev.Serial, "drift", drift.String())
		if err := d.devices.SetTimeSynced(ctx, dev.Serial, false); err != nil {
			d.log.Error("marking device unsynced failed", "serial", dev.Serial, "error", err)
		}
		if err := d.publisher.PushTime(dev.Serial); err != nil {
			d.log.Error("corrective time push failed", "serial", dev.Serial, "error", err)
		}
		d.emit("clock_drift", dev, map[string]any{"drift_seconds": drift.Seconds()})
		return
	}

	if err := d.devices.SetTimeSynced(ctx, dev.Serial, true); err != nil {
		d.log.Error("marking device synced failed", "serial", dev.Serial, "error", err)
	}
}

// parseDeviceTime decodes a controller wall-clock payload. Controllers
// send local time without an offset; the configured timezone applies.
func (d *Dispatcher) parseDeviceTime(payload []byte) (time.Time, error) {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(payload)), `"`))
	if t, err := time.ParseInLocation(deviceTimeLayout, s, d.loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.RFC3339, s, d.loc)
}

// handleCurrentTimetable persists which timetable the controller reports
// it is running, then resolves any waiting query.
func (d *Dispatcher) handleCurrentTimetable(ctx context.Context, serial string, payload []byte) {
	id := decodeTimetableID(payload)
	if err := d.devices.SetCurrentTimetable(ctx, serial, id); err != nil {
		d.log.Error("recording current timetable failed", "serial", serial, "error", err)
	}
	d.resolve(serial, ClassTimetableQuery, payload)
}

// decodeTimetableID accepts either a bare id string or {"id":"..."}.
func decodeTimetableID(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &body); err == nil {
			return body.ID
		}
	}
	return strings.Trim(s, `"`)
}

// handleFreshnessQuery answers "is my timetable current" with the school
// schedule's identifier and updated-at. No correlation; the controller
// decides whether to follow up with a sync request.
func (d *Dispatcher) handleFreshnessQuery(ctx context.Context, dev *device.Device) {
	sch, err := d.schools.Get(ctx, dev.SchoolID)
	if err != nil {
		d.log.Error("school lookup failed", "serial", dev.Serial, "error", err)
		return
	}
	ws, err := d.schedules.GetBySchool(ctx, dev.SchoolID)
	if err != nil {
		d.log.Error("schedule lookup failed", "serial", dev.Serial, "error", err)
		return
	}

	id := timetable.TimetableID(sch.Name, ws.ID)
	if err := d.publisher.ReplyFreshness(dev.Serial, id, ws.UpdatedAt); err != nil {
		d.log.Error("freshness reply failed", "serial", dev.Serial, "error", err)
	}
}

// handleSyncRequest re-provisions a controller: compile the school's
// current timetable, overlay imminent special days, validate and push.
// Controllers send this after factory resets or storage loss.
func (d *Dispatcher) handleSyncRequest(ctx context.Context, dev *device.Device) {
	dt, err := d.prov.PushToDevice(ctx, dev)
	if err != nil {
		d.log.Error("re-provisioning device failed", "serial", dev.Serial, "error", err)
		return
	}
	d.emit("device_synced", dev, map[string]any{"timetable_id": dt.ID})
}

// statusResponseBody is the checkres payload shape.
type statusResponseBody struct {
	Online  bool   `json:"online"`
	Silence bool   `json:"silence"`
	ID      string `json:"id"`
}

// handleStatusResponse applies a full status answer, then resolves the
// waiting query. Persist-then-resolve order matters: an API handler woken
// by the resolution re-reads the device row and must see this report.
func (d *Dispatcher) handleStatusResponse(ctx context.Context, dev *device.Device, payload []byte) {
	var body statusResponseBody
	if err := json.Unmarshal(payload, &body); err != nil {
		d.log.Warn("malformed status response", "serial", dev.Serial, "error", err)
		return
	}

	report := device.StatusReport{
		IsSilenced:         body.Silence,
		CurrentTimetableID: body.ID,
		ReportedTime:       d.now(),
	}
	if err := d.devices.UpdateStatusReport(ctx, dev.Serial, report); err != nil {
		d.log.Error("applying status report failed", "serial", dev.Serial, "error", err)
		return
	}

	d.resolve(dev.Serial, ClassStatus, payload)
	d.emit("status_report", dev, map[string]any{
		"silenced":     body.Silence,
		"timetable_id": body.ID,
	})
}

// emit notifies the event sink, if any.
func (d *Dispatcher) emit(eventType string, dev *device.Device, data map[string]any) {
	if d.events == nil {
		return
	}
	d.events.Notify(Event{
		Type:   eventType,
		Serial: dev.Serial,
		School: dev.SchoolID,
		Data:   data,
		Time:   d.now().UTC(),
	})
}
