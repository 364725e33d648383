package topicmux

import (
	"context"
	"sync"
	"testing"

	"github.com/casualjim/topicmux/topics"
	"github.com/casualjim/topicmux/transport"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePublish struct {
	topic   string
	payload []byte
	opts    transport.PublishOptions
}

// fakeTransport records every transport call and can gate subscribes and
// unsubscribes to hold them in flight. With loopback enabled, published
// messages come back through the funnel when any subscribed filter
// matches, mimicking a broker round trip.
type fakeTransport struct {
	mu         sync.Mutex
	fn         transport.MessageFunc
	subscribed map[string]transport.SubscribeOptions
	subCalls   []string
	unsubCalls []string
	pubs       []fakePublish

	subErr      error
	failFilters map[string]error
	grantQoS    byte
	loopback    bool

	subStarted   chan string
	subGate      chan struct{}
	unsubStarted chan string
	unsubGate    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribed:  make(map[string]transport.SubscribeOptions),
		failFilters: make(map[string]error),
	}
}

func (f *fakeTransport) OnMessage(fn transport.MessageFunc) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakeTransport) Subscribe(_ context.Context, filter string, opts transport.SubscribeOptions) ([]transport.Grant, error) {
	f.mu.Lock()
	started := f.subStarted
	gate := f.subGate
	f.mu.Unlock()
	if started != nil {
		started <- filter
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls = append(f.subCalls, filter)
	if f.subErr != nil {
		return nil, f.subErr
	}
	if err, ok := f.failFilters[filter]; ok {
		return nil, err
	}
	f.subscribed[filter] = opts
	qos := opts.QoS
	if f.grantQoS != 0 {
		qos = f.grantQoS
	}
	return []transport.Grant{{Filter: filter, QoS: qos}}, nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, filter string) error {
	f.mu.Lock()
	started := f.unsubStarted
	gate := f.unsubGate
	f.mu.Unlock()
	if started != nil {
		started <- filter
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubCalls = append(f.unsubCalls, filter)
	delete(f.subscribed, filter)
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topic string, payload []byte, opts transport.PublishOptions) error {
	f.mu.Lock()
	f.pubs = append(f.pubs, fakePublish{topic: topic, payload: payload, opts: opts})
	fn := f.fn
	matched := false
	if f.loopback {
		for filter := range f.subscribed {
			if topics.Match(filter, topic) {
				matched = true
				break
			}
		}
	}
	f.mu.Unlock()
	if matched && fn != nil {
		fn(topic, payload)
	}
	return nil
}

func (f *fakeTransport) Close() error { return nil }

// inject pushes an inbound message through the funnel as if the broker
// delivered it.
func (f *fakeTransport) inject(topic string, payload []byte) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(topic, payload)
	}
}

func (f *fakeTransport) setSubErr(err error) {
	f.mu.Lock()
	f.subErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subCalls)
}

func (f *fakeTransport) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubCalls)
}

func (f *fakeTransport) published() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakePublish, len(f.pubs))
	copy(out, f.pubs)
	return out
}

// opWaiters reports how many subscribers are parked on the filter's
// in-flight transport operation.
func opWaiters(e *Engine, filter string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	fs := e.filters[filter]
	if fs == nil || fs.op == nil {
		return 0
	}
	return fs.op.waiters
}

// recordingListener collects every delivery it receives.
type recordingListener struct {
	mu     sync.Mutex
	topics []string
	values []any
}

func (r *recordingListener) handler(topic string, value any) {
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	r.values = append(r.values, value)
	r.mu.Unlock()
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func (r *recordingListener) recorded() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}
