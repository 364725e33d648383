// Package transport abstracts the broker connection the engine
// multiplexes over. It provides a clean, minimal interface for
// subscribing to topic filters, publishing payload bytes, and funneling
// every inbound message into a single handler.
//
// Design decisions:
//   - Context-first: blocking operations accept context.Context
//   - Single funnel: all inbound messages reach one MessageFunc, the
//     engine performs its own filter matching and fan-out
//   - Opaque options: QoS and transport-specific properties pass through
//     uninterpreted
//
// Implementations:
//   - Memory: in-process broker for tests and examples
//   - MQTT: eclipse paho client
//   - NATS: nats.go connection with filter-to-subject mapping
package transport

import "context"

// MessageFunc receives every inbound message delivered on the client
// connection as a raw (topic, payload) pair.
type MessageFunc func(topic string, payload []byte)

// SubscribeOptions carries pass-through subscription configuration. The
// engine never interprets its contents beyond forwarding.
type SubscribeOptions struct {
	QoS byte
	// Properties holds transport-specific fields forwarded verbatim.
	Properties map[string]any
}

// PublishOptions carries pass-through publish configuration.
type PublishOptions struct {
	QoS    byte
	Retain bool
	// Properties holds transport-specific fields forwarded verbatim.
	Properties map[string]any
}

// Grant reports the broker-acknowledged options for one subscribed
// filter, e.g. the QoS level the broker actually granted.
type Grant struct {
	Filter string
	QoS    byte
}

// Transport is a client connection to a topic-based broker.
//
// Subscribe must not return before the broker has acknowledged the
// subscription. Implementations are free to deliver a message more than
// once through the funnel when several of the client's filters overlap;
// deduplicating per-listener delivery is the engine's job.
type Transport interface {
	Subscribe(ctx context.Context, filter string, opts SubscribeOptions) ([]Grant, error)
	Unsubscribe(ctx context.Context, filter string) error
	Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error

	// OnMessage installs the single inbound handler. It must be called
	// before the first Subscribe.
	OnMessage(fn MessageFunc)

	Close() error
}
