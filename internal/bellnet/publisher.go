package bellnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bellbot/bellbot-core/internal/infrastructure/logging"
	"github.com/bellbot/bellbot-core/internal/infrastructure/mqtt"
	"github.com/bellbot/bellbot-core/internal/timetable"
)

// Broker is the slice of the MQTT client the publisher needs. Satisfied by
// *mqtt.Client and by fakes in tests.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher errors.
var (
	// ErrTimetableInvalid is returned when a timetable fails validation
	// before transmission. The wrapped message lists every problem.
	ErrTimetableInvalid = errors.New("bellnet: timetable failed validation")
)

// deviceTimeLayout is how controllers expect wall-clock time: local time in
// the configured school timezone, no offset suffix. The devices have no
// timezone database; they take what they are given.
const deviceTimeLayout = "2006-01-02T15:04:05"

// PublisherDeps carries the publisher's dependencies.
type PublisherDeps struct {
	Broker   Broker
	Registry *Registry
	Location *time.Location
	Logger   *logging.Logger

	// StatusTimeout bounds legacy status requests (default 5s).
	StatusTimeout time.Duration
	// QueryTimeout bounds the richer bellctl queries (default 15s).
	QueryTimeout time.Duration
}

// Publisher turns admin and dispatcher intents into outbound MQTT messages.
//
// Request* methods register their correlation BEFORE transmitting, so an
// answer racing the publish acknowledgment still finds a pending entry.
// A failed publish cancels the registration and surfaces only the publish
// error. Success means the broker accepted the message; no method waits
// for a device acknowledgment.
type Publisher struct {
	broker        Broker
	registry      *Registry
	topics        mqtt.Topics
	loc           *time.Location
	statusTimeout time.Duration
	queryTimeout  time.Duration
	log           *logging.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewPublisher creates a publisher.
func NewPublisher(deps PublisherDeps) *Publisher {
	if deps.StatusTimeout <= 0 {
		deps.StatusTimeout = 5 * time.Second
	}
	if deps.QueryTimeout <= 0 {
		deps.QueryTimeout = 15 * time.Second
	}
	return &Publisher{
		broker:        deps.Broker,
		registry:      deps.Registry,
		loc:           deps.Location,
		statusTimeout: deps.StatusTimeout,
		queryTimeout:  deps.QueryTimeout,
		log:           deps.Logger.With("component", "publisher"),
		now:           time.Now,
	}
}

// localNow returns the server clock in the configured school timezone.
func (p *Publisher) localNow() time.Time {
	return p.now().In(p.loc)
}

// Ring commands a manual bell ring of the given duration in seconds.
func (p *Publisher) Ring(serial string, duration int) error {
	payload, err := json.Marshal(map[string]any{
		"command":   "ring",
		"duration":  duration,
		"timestamp": p.localNow().Format(deviceTimeLayout),
	})
	if err != nil {
		return fmt.Errorf("encoding ring command: %w", err)
	}
	if err := p.broker.Publish(p.topics.Ring(serial), payload, 1, false); err != nil {
		return fmt.Errorf("publishing ring to %s: %w", serial, err)
	}
	p.log.Info("ring command sent", "serial", serial, "duration", duration)
	return nil
}

// SetSilence enables or disables silenced mode on a controller.
func (p *Publisher) SetSilence(serial string, silenced bool) error {
	topic := p.topics.SilenceOff(serial)
	if silenced {
		topic = p.topics.SilenceOn(serial)
	}
	if err := p.broker.Publish(topic, []byte("1"), 1, false); err != nil {
		return fmt.Errorf("publishing silence %t to %s: %w", silenced, serial, err)
	}
	p.log.Info("silence command sent", "serial", serial, "silenced", silenced)
	return nil
}

// PushTime sends the server's local wall-clock time to a controller.
func (p *Publisher) PushTime(serial string) error {
	payload := []byte(p.localNow().Format(deviceTimeLayout))
	if err := p.broker.Publish(p.topics.TimeSync(serial), payload, 1, false); err != nil {
		return fmt.Errorf("publishing time to %s: %w", serial, err)
	}
	p.log.Info("time pushed", "serial", serial)
	return nil
}

// PushTimetable validates and transmits a compiled timetable. Validation
// failure blocks the transmit and reports every problem at once, so an
// operator fixing an oversized schedule is not drip-fed errors.
// The message is retained: a controller that reconnects after downtime
// receives the latest timetable immediately.
func (p *Publisher) PushTimetable(serial string, dt timetable.DeviceTimetable) error {
	result := timetable.Validate(dt)
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrTimetableInvalid, strings.Join(result.Errors, "; "))
	}

	payload, err := json.Marshal(dt)
	if err != nil {
		return fmt.Errorf("encoding timetable: %w", err)
	}
	if err := p.broker.Publish(p.topics.Timetable(serial), payload, 1, true); err != nil {
		return fmt.Errorf("publishing timetable to %s: %w", serial, err)
	}
	p.log.Info("timetable pushed",
		"serial", serial, "timetable_id", dt.ID, "bytes", result.SizeBytes)
	return nil
}

// PushSchedule transmits a weekly schedule to a legacy controller in the
// old verbose format. Retained, like the compact push.
func (p *Publisher) PushSchedule(serial string, week timetable.WeeklySchedule) error {
	payload, err := json.Marshal(map[string]any{
		"weeklySchedule": week.Days,
		"effectiveDate":  p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	if err := p.broker.Publish(p.topics.LegacySchedule(serial), payload, 1, true); err != nil {
		return fmt.Errorf("publishing schedule to %s: %w", serial, err)
	}
	p.log.Info("legacy schedule pushed", "serial", serial)
	return nil
}

// ReplyFreshness answers a controller's freshness query with the identifier
// and updated-at of the school's current timetable. No correlation: the
// exchange is device-initiated.
func (p *Publisher) ReplyFreshness(serial, timetableID string, updatedAt time.Time) error {
	payload, err := json.Marshal(map[string]string{
		"id":        timetableID,
		"updatedAt": updatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding freshness reply: %w", err)
	}
	if err := p.broker.Publish(p.topics.FreshnessReply(serial), payload, 1, false); err != nil {
		return fmt.Errorf("publishing freshness reply to %s: %w", serial, err)
	}
	return nil
}

// RequestStatus queries a legacy controller's status. The returned channel
// yields within the legacy status timeout (5s by default).
func (p *Publisher) RequestStatus(serial string) (<-chan Result, error) {
	payload, err := json.Marshal(map[string]string{
		"command":   "status",
		"timestamp": p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding status request: %w", err)
	}
	return p.request(serial, ClassLegacyStatus, p.statusTimeout,
		p.topics.LegacyStatusRequest(serial), payload)
}

// RequestTime queries a controller's wall clock.
func (p *Publisher) RequestTime(serial string) (<-chan Result, error) {
	return p.request(serial, ClassTimeQuery, p.queryTimeout,
		p.topics.TimeRequest(serial), []byte("1"))
}

// RequestTimetable queries which timetable a controller is running.
func (p *Publisher) RequestTimetable(serial string) (<-chan Result, error) {
	return p.request(serial, ClassTimetableQuery, p.queryTimeout,
		p.topics.TimetableRequest(serial), []byte("1"))
}

// RequestComprehensiveStatus queries a controller's full status
// (online, silenced, running timetable).
func (p *Publisher) RequestComprehensiveStatus(serial string) (<-chan Result, error) {
	return p.request(serial, ClassStatus, p.queryTimeout,
		p.topics.StatusRequest(serial), []byte("1"))
}

// request registers the correlation, then publishes. Registration comes
// first so an answer racing the broker ack still finds its entry; a failed
// publish cancels the registration so the caller sees only the error.
func (p *Publisher) request(serial string, class RequestClass, timeout time.Duration, topic string, payload []byte) (<-chan Result, error) {
	ch := p.registry.Register(serial, class, timeout)

	if err := p.broker.Publish(topic, payload, 1, false); err != nil {
		p.registry.Cancel(serial, class)
		return nil, fmt.Errorf("publishing %s request to %s: %w", class, serial, err)
	}
	return ch, nil
}
