/*
Package topicmux multiplexes many logical listeners onto a small number
of broker-level topic subscriptions.

Callers subscribe to named triggers; the engine maps triggers to topic
filters, keeps exactly one transport subscription alive per distinct
filter through reference counting, and routes every inbound message to
the listeners whose filters match its topic, honoring the broker's "+"
and "#" wildcard semantics.

The package exposes the routed messages two ways:

  - Callback registration: Subscribe attaches a handler to a trigger and
    returns an id for Unsubscribe.
  - Pull-based sequences: Sequence turns one or more triggers into a
    lazy, cancellable stream consumed one value at a time with Next.

# Basic usage

	tr := transport.NewMemory()
	mux, err := topicmux.New(tr)
	if err != nil {
		// Handle error
	}

	id, err := mux.Subscribe(ctx, "posts/created", func(topic string, value any) {
		// Handle the decoded value
	})
	if err != nil {
		// Handle error
	}
	defer mux.Unsubscribe(id)

	if err := mux.Publish(ctx, "posts/created", map[string]any{"comment": "x"}); err != nil {
		// Handle error
	}

# Architecture

The engine owns the subscription registry (id and filter indexes with
per-filter in-flight operation guards) and the message router. The
transport package abstracts the broker connection; implementations exist
for MQTT (eclipse paho), NATS, and an in-process broker for tests. The
topics package holds the pure filter-matching function and the codec
package the payload byte↔value conversion.
*/
package topicmux
