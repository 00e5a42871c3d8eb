// Package bus routes envelopes by agent id (unicast) and topic (fan-out).
// It is satisfied by either a real AMQP broker (AMQPBus) or an in-process
// router (MemoryBus); both meet the same ordering and isolation contract.
package bus

import (
	"context"
	"errors"

	"github.com/ashgrove-labs/synapse/internal/envelope"
)

// Handler processes one delivered envelope. Handlers must be idempotent:
// the bus guarantees at-least-once delivery, not exactly-once.
type Handler func(ctx context.Context, env *envelope.Envelope) error

// Errors of the Bus contract. Connect retries the transport internally
// before returning ErrTransport. Neither implementation in this package
// buffers publishes, so neither returns ErrBackpressure.
var (
	ErrNotConnected      = errors.New("bus: not connected")
	ErrAlreadySubscribed = errors.New("bus: agent already subscribed")
	ErrBackpressure      = errors.New("bus: backpressure high-water mark exceeded")
	ErrSerialization     = errors.New("bus: envelope failed to serialize")
	ErrTransport         = errors.New("bus: transport failure")
)

// Bus is the message-routing contract every worker and the orchestrator
// depend on.
type Bus interface {
	// Connect establishes the underlying transport. It is idempotent: a
	// second call on an already-connected Bus returns nil without
	// reconnecting.
	Connect(ctx context.Context) error

	// Publish routes env by its addressing rule (ReceiverID xor Topic).
	Publish(ctx context.Context, env *envelope.Envelope) error

	// SubscribeAgent registers the exclusive unicast handler for agentID.
	// A second subscription for the same agentID fails with
	// ErrAlreadySubscribed.
	SubscribeAgent(agentID string, h Handler) error

	// SubscribeTopic registers one of potentially many handlers for topic;
	// every matching handler receives its own copy of each message.
	SubscribeTopic(topic string, h Handler) error

	// UnsubscribeAgent tears down agentID's unicast registration. In-flight
	// dispatches already handed to h are allowed to finish; no new ones
	// are delivered afterward.
	UnsubscribeAgent(agentID string) error

	// UnsubscribeTopic removes one topic handler. Use the same Handler
	// value passed to SubscribeTopic (compared by identity).
	UnsubscribeTopic(topic string, h Handler) error

	// Disconnect drains in-flight dispatches and closes the transport.
	// Subsequent Publish calls fail with ErrNotConnected.
	Disconnect(ctx context.Context) error
}
