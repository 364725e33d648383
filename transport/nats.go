package transport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// NATS is a Transport backed by a nats.go connection. MQTT-style topic
// filters map onto NATS subjects on the way out ("/"→".", "+"→"*",
// "#"→">") and inbound subjects map back, so the engine only ever sees
// "/"-separated topics.
//
// NATS delivers a message once per matching subscription, so a client
// with overlapping filters sees it through the funnel once per filter.
// The engine routes each inbound delivery independently, which keeps
// per-listener delivery exactly once per message per subscription.
type NATS struct {
	conn *nats.Conn

	mu   sync.Mutex
	fn   MessageFunc
	subs map[string]*nats.Subscription
}

// NewNATS wraps an established NATS connection.
func NewNATS(conn *nats.Conn) *NATS {
	return &NATS{
		conn: conn,
		subs: make(map[string]*nats.Subscription),
	}
}

// DialNATS connects to the server named by the NATS_URL environment
// variable and wraps the connection.
func DialNATS(options ...nats.Option) (*NATS, error) {
	if len(options) == 0 {
		options = append(options, nats.Name("topicmux"), nats.Compression(true))
	}
	conn, err := nats.Connect(os.Getenv("NATS_URL"), options...)
	if err != nil {
		return nil, err
	}
	return NewNATS(conn), nil
}

func (t *NATS) OnMessage(fn MessageFunc) {
	t.mu.Lock()
	t.fn = fn
	t.mu.Unlock()
}

func (t *NATS) Subscribe(ctx context.Context, filter string, opts SubscribeOptions) ([]Grant, error) {
	subject := SubjectFromFilter(filter)
	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		t.mu.Lock()
		fn := t.fn
		t.mu.Unlock()
		if fn != nil {
			fn(TopicFromSubject(msg.Subject), msg.Data)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", filter, err)
	}

	// The round trip stands in for the broker's subscribe ack: once the
	// flush returns, the server has registered the interest.
	if err := t.conn.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", filter, err)
	}

	t.mu.Lock()
	t.subs[filter] = sub
	t.mu.Unlock()

	// Core NATS has no QoS negotiation; echo the request.
	return []Grant{{Filter: filter, QoS: opts.QoS}}, nil
}

func (t *NATS) Unsubscribe(ctx context.Context, filter string) error {
	t.mu.Lock()
	sub, ok := t.subs[filter]
	delete(t.subs, filter)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", filter, err)
	}
	return t.conn.FlushWithContext(ctx)
}

func (t *NATS) Publish(ctx context.Context, topic string, payload []byte, _ PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.Publish(SubjectFromFilter(topic), payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (t *NATS) Close() error {
	t.conn.Close()
	return nil
}

var (
	filterToSubject = strings.NewReplacer("/", ".", "+", "*", "#", ">")
	subjectToFilter = strings.NewReplacer(".", "/", "*", "+", ">", "#")
)

// SubjectFromFilter rewrites an MQTT-style topic filter as a NATS
// subject pattern.
func SubjectFromFilter(filter string) string {
	return filterToSubject.Replace(filter)
}

// TopicFromSubject rewrites an inbound NATS subject as a "/"-separated
// topic.
func TopicFromSubject(subject string) string {
	return subjectToFilter.Replace(subject)
}
