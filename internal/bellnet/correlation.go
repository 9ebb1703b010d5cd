package bellnet

import (
	"sync"
	"time"

	"github.com/bellbot/bellbot-core/internal/infrastructure/logging"
)

// RequestClass identifies one request/response pairing with a controller.
// At most one request per (serial, class) can be pending at a time.
type RequestClass string

const (
	// ClassLegacyStatus pairs bellbot/{serial}/status/request with
	// bellbot/{serial}/status/response.
	ClassLegacyStatus RequestClass = "legacy_status"

	// ClassTimeQuery pairs bellctl/timereq with bellctl/timeres.
	ClassTimeQuery RequestClass = "time_query"

	// ClassTimetableQuery pairs bellctl/checkreq with bellctl/current.
	ClassTimetableQuery RequestClass = "timetable_query"

	// ClassStatus pairs bellctl/creq with bellctl/checkres.
	ClassStatus RequestClass = "status"
)

// Outcome describes how a pending request completed.
type Outcome int

const (
	// OutcomeResolved means the controller answered in time.
	OutcomeResolved Outcome = iota

	// OutcomeTimeout means the timeout elapsed with no answer.
	OutcomeTimeout

	// OutcomeSuperseded means a newer request for the same (serial, class)
	// replaced this one before it completed.
	OutcomeSuperseded
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Result is delivered exactly once on the channel returned by Register.
type Result struct {
	Outcome Outcome
	Payload []byte
}

// correlationKey identifies one pending request.
type correlationKey struct {
	serial string
	class  RequestClass
}

// pendingRequest holds the delivery channel and expiry timer for one
// registered request. The channel is buffered so delivery never blocks,
// and each entry is removed from the map before its single delivery, so
// a result is sent at most once.
type pendingRequest struct {
	ch    chan Result
	timer *time.Timer
}

// Registry tracks pending controller requests and routes their answers.
//
// Callers register before publishing the request, then wait on the
// returned channel. The dispatcher resolves entries as answers arrive;
// per-entry timers fire timeouts. Re-registering supersedes the previous
// waiter rather than stacking a second one: the newest admin click wins.
type Registry struct {
	mu      sync.Mutex
	pending map[correlationKey]*pendingRequest
	log     *logging.Logger
}

// NewRegistry creates an empty correlation registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		pending: make(map[correlationKey]*pendingRequest),
		log:     log.With("component", "correlation"),
	}
}

// Register records a pending request and returns the channel its Result
// will arrive on. If a request for the same (serial, class) is already
// pending, that earlier waiter receives OutcomeSuperseded and its timer
// stops; the new request gets a fresh timeout, never an extension of the
// old one.
func (r *Registry) Register(serial string, class RequestClass, timeout time.Duration) <-chan Result {
	key := correlationKey{serial: serial, class: class}

	r.mu.Lock()
	old, superseded := r.pending[key]
	if superseded {
		old.timer.Stop()
		delete(r.pending, key)
	}

	entry := &pendingRequest{
		ch: make(chan Result, 1),
	}
	entry.timer = time.AfterFunc(timeout, func() {
		r.expire(key, entry)
	})
	r.pending[key] = entry
	r.mu.Unlock()

	if superseded {
		// Buffered channel, removed from the map above: the send cannot
		// block and cannot race another delivery.
		old.ch <- Result{Outcome: OutcomeSuperseded}
		r.log.Debug("request superseded", "serial", serial, "class", string(class))
	}

	return entry.ch
}

// Resolve delivers an answer to the pending request for (serial, class).
// Returns true iff a request was pending. An answer arriving after expiry
// or cancellation returns false and delivers nothing; there is never a
// second delivery on any channel.
func (r *Registry) Resolve(serial string, class RequestClass, payload []byte) bool {
	key := correlationKey{serial: serial, class: class}

	r.mu.Lock()
	entry, ok := r.pending[key]
	if !ok {
		r.mu.Unlock()
		return false
	}
	entry.timer.Stop()
	delete(r.pending, key)
	r.mu.Unlock()

	entry.ch <- Result{Outcome: OutcomeResolved, Payload: payload}
	return true
}

// Cancel removes a pending request without delivering anything. Used when
// the request publish fails: the caller already has the publish error and
// must not also receive a timeout later.
func (r *Registry) Cancel(serial string, class RequestClass) {
	key := correlationKey{serial: serial, class: class}

	r.mu.Lock()
	if entry, ok := r.pending[key]; ok {
		entry.timer.Stop()
		delete(r.pending, key)
	}
	r.mu.Unlock()
}

// PendingCount returns how many requests are awaiting answers.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// expire fires a timeout for an entry, unless that entry was already
// resolved, cancelled or superseded. The entry pointer comparison guards
// against the timer racing a re-registration under the same key.
func (r *Registry) expire(key correlationKey, entry *pendingRequest) {
	r.mu.Lock()
	current, ok := r.pending[key]
	if !ok || current != entry {
		r.mu.Unlock()
		return
	}
	delete(r.pending, key)
	r.mu.Unlock()

	entry.ch <- Result{Outcome: OutcomeTimeout}
	r.log.Debug("request timed out", "serial", key.serial, "class", string(key.class))
}
