// Package bellnet is the controller communication core: it owns every
// message that crosses the broker in either direction.
//
// Three pieces cooperate:
//
//   - Registry correlates outbound requests with inbound answers. The key
//     is (serial, request class); at most one request per key is pending,
//     and each registered waiter receives exactly one Result: resolved,
//     timed out, or superseded by a newer request.
//
//   - Publisher sends commands and queries. Request methods register their
//     correlation before transmitting and cancel it if the publish fails.
//     "Sent" means the broker accepted the message; devices never ack
//     commands.
//
//   - Dispatcher consumes inbound messages strictly in arrival order on a
//     single goroutine. MQTT handlers only enqueue. Because processing is
//     serial, a handler that persists device state before resolving a
//     correlation guarantees the awaiting caller reads the persisted state.
//
// Connection loss drops pending correlations on timeout; nothing is
// persisted or retried. Callers treat a timeout as "device unreachable"
// and query again.
package bellnet
