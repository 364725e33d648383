package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/topicmux/topics"
)

const maxQoS = 2

type memSub struct {
	filter string
	qos    byte
}

// Memory is an in-process Transport for tests and examples. It behaves
// like a broker connection: subscriptions are tracked per filter, a
// published message reaches the funnel once when any registered filter
// matches its topic, and grants clamp the requested QoS to what a broker
// would allow.
type Memory struct {
	subs   *haxmap.Map[string, *memSub]
	mu     sync.RWMutex
	fn     MessageFunc
	closed atomic.Bool
}

// NewMemory creates an in-process transport with no subscriptions.
func NewMemory() *Memory {
	return &Memory{subs: haxmap.New[string, *memSub]()}
}

func (m *Memory) OnMessage(fn MessageFunc) {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
}

func (m *Memory) Subscribe(ctx context.Context, filter string, opts SubscribeOptions) ([]Grant, error) {
	if m.closed.Load() {
		return nil, ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qos := opts.QoS
	if qos > maxQoS {
		qos = maxQoS
	}
	m.subs.Set(filter, &memSub{filter: filter, qos: qos})
	return []Grant{{Filter: filter, QoS: qos}}, nil
}

func (m *Memory) Unsubscribe(ctx context.Context, filter string) error {
	if m.closed.Load() {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.subs.Del(filter)
	return nil
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte, _ PublishOptions) error {
	if m.closed.Load() {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	matched := false
	m.subs.ForEach(func(filter string, _ *memSub) bool {
		if topics.Match(filter, topic) {
			matched = true
			return false
		}
		return true
	})
	if !matched {
		return nil
	}

	m.mu.RLock()
	fn := m.fn
	m.mu.RUnlock()
	if fn != nil {
		// One delivery per inbound message, like a broker merging
		// overlapping subscriptions for a single client.
		fn(topic, payload)
	}
	return nil
}

func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}
