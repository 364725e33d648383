package topicmux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/topicmux/codec"
	"github.com/casualjim/topicmux/pkg/slogx"
	"github.com/casualjim/topicmux/topics"
	"github.com/casualjim/topicmux/transport"
	"github.com/fogfish/opts"
)

// SubscriptionID identifies one caller-level subscription. IDs come from
// a monotonic counter owned by the engine instance and are never reused
// for the lifetime of the process.
type SubscriptionID uint64

// Handler receives each decoded value routed to a subscription, along
// with the concrete topic it arrived on.
type Handler func(topic string, value any)

type listenerEntry struct {
	id      SubscriptionID
	trigger string
	filter  string
	handler Handler
}

type opKind int

const (
	opSubscribe opKind = iota
	opUnsubscribe
)

// inflightOp serializes transport calls for a single filter. At most one
// exists per filter at any time; waiters block on done and, for
// subscribes, share err as their own outcome. waiters counts the
// subscribers currently parked on done; the engine mutex guards it.
type inflightOp struct {
	kind    opKind
	done    chan struct{}
	waiters int
	err     error
}

// filterSub owns the single transport-level subscription shared by every
// listener entry whose trigger resolves to the same filter. The entry
// count is the reference count: the transport subscription exists iff it
// is non-zero, created on the 0→1 transition and torn down on 1→0.
type filterSub struct {
	filter  string
	active  bool
	granted []transport.Grant
	entries map[SubscriptionID]*listenerEntry
	op      *inflightOp
}

// Engine multiplexes many caller subscriptions onto a minimal set of
// transport subscriptions and routes every inbound message to exactly
// the listeners whose filters match its topic.
type Engine struct {
	tr  transport.Transport
	cfg Config

	mu      sync.Mutex
	nextID  SubscriptionID
	entries map[SubscriptionID]*listenerEntry
	filters map[string]*filterSub
}

// New builds an engine on top of the given transport and installs itself
// as the transport's inbound message handler.
func New(tr transport.Transport, options ...Option) (*Engine, error) {
	cfg := Config{
		Transform: func(trigger string, _ ChannelOptions) string { return trigger },
		Codec:     codec.JSON(),
	}
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}

	e := &Engine{
		tr:      tr,
		cfg:     cfg,
		entries: make(map[SubscriptionID]*listenerEntry),
		filters: make(map[string]*filterSub),
	}
	tr.OnMessage(e.route)
	return e, nil
}

func (e *Engine) log() *slog.Logger {
	if e.cfg.Log != nil {
		return e.cfg.Log
	}
	return slog.Default()
}

// Subscribe registers handler under the given trigger and returns the
// subscription's id. The first subscription for a filter performs the
// transport subscribe and waits for the broker's ack; further
// subscriptions for the same filter piggyback on it without any
// transport call. Concurrent first subscribers share a single transport
// call and its outcome.
func (e *Engine) Subscribe(ctx context.Context, trigger string, handler Handler, channel ...ChannelOptions) (SubscriptionID, error) {
	if handler == nil {
		return 0, fmt.Errorf("topicmux: handler is required")
	}
	chOpts := firstChannel(channel)
	filter := e.cfg.Transform(trigger, chOpts)

	for {
		e.mu.Lock()
		fs := e.filters[filter]
		if fs == nil {
			fs = &filterSub{filter: filter, entries: make(map[SubscriptionID]*listenerEntry)}
			e.filters[filter] = fs
		}

		if op := fs.op; op != nil {
			// Another goroutine holds the filter's transport slot.
			op.waiters++
			e.mu.Unlock()
			select {
			case <-op.done:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			if op.kind == opSubscribe && op.err != nil {
				return 0, op.err
			}
			// After a subscribe the fast path below applies; after an
			// unsubscribe the filter gets recreated from scratch.
			continue
		}

		if fs.active {
			id := e.register(fs, trigger, handler)
			e.mu.Unlock()
			return id, nil
		}

		// First listener for this filter: own the 0→1 transition.
		op := &inflightOp{kind: opSubscribe, done: make(chan struct{})}
		fs.op = op
		e.mu.Unlock()

		var (
			subOpts transport.SubscribeOptions
			granted []transport.Grant
			err     error
		)
		if e.cfg.SubscribeOptions != nil {
			subOpts, err = e.cfg.SubscribeOptions(trigger, chOpts)
		}
		if err == nil {
			granted, err = e.tr.Subscribe(ctx, filter, subOpts)
		}

		e.mu.Lock()
		fs.op = nil
		if err != nil {
			// Roll the speculative filter entry back so a retry starts
			// clean.
			op.err = err
			if len(fs.entries) == 0 {
				delete(e.filters, filter)
			}
			e.mu.Unlock()
			close(op.done)
			return 0, err
		}
		fs.active = true
		fs.granted = granted
		id := e.register(fs, trigger, handler)
		e.mu.Unlock()
		close(op.done)

		if e.cfg.OnGranted != nil {
			e.cfg.OnGranted(id, granted)
		}
		return id, nil
	}
}

// register adds a listener entry to both indexes. Caller holds e.mu.
func (e *Engine) register(fs *filterSub, trigger string, handler Handler) SubscriptionID {
	e.nextID++
	id := e.nextID
	ent := &listenerEntry{id: id, trigger: trigger, filter: fs.filter, handler: handler}
	e.entries[id] = ent
	fs.entries[id] = ent
	return id
}

// Unsubscribe removes the subscription with the given id. It returns an
// *UnknownSubscriptionError when the id is not live. Removing the last
// listener of a filter schedules the transport unsubscribe; the caller
// does not wait for it, but it is sequenced after any in-flight
// transport call for the same filter.
func (e *Engine) Unsubscribe(id SubscriptionID) error {
	e.mu.Lock()
	ent, ok := e.entries[id]
	if !ok {
		e.mu.Unlock()
		return &UnknownSubscriptionError{ID: id}
	}
	delete(e.entries, id)
	fs := e.filters[ent.filter]
	delete(fs.entries, id)
	if len(fs.entries) > 0 {
		e.mu.Unlock()
		return nil
	}
	go e.teardown(fs)
	e.mu.Unlock()
	return nil
}

// teardown releases a filter's transport subscription once its last
// listener is gone. A subscribe that lands before the transport call is
// issued keeps the subscription alive and suppresses the unsubscribe.
func (e *Engine) teardown(fs *filterSub) {
	e.mu.Lock()
	for fs.op != nil {
		done := fs.op.done
		e.mu.Unlock()
		<-done
		e.mu.Lock()
	}
	if len(fs.entries) > 0 || !fs.active {
		e.mu.Unlock()
		return
	}
	op := &inflightOp{kind: opUnsubscribe, done: make(chan struct{})}
	fs.op = op
	e.mu.Unlock()

	err := e.tr.Unsubscribe(context.Background(), fs.filter)

	e.mu.Lock()
	fs.op = nil
	fs.active = false
	fs.granted = nil
	if len(fs.entries) == 0 {
		delete(e.filters, fs.filter)
	}
	e.mu.Unlock()
	close(op.done)

	if err != nil {
		e.log().Error("transport unsubscribe failed", slogx.Filter(fs.filter), slogx.Error(err))
	}
}

// Publish encodes value and hands it to the transport under the topic
// the trigger transform yields.
func (e *Engine) Publish(ctx context.Context, trigger string, value any, channel ...ChannelOptions) error {
	topic := e.cfg.Transform(trigger, firstChannel(channel))

	var pubOpts transport.PublishOptions
	if e.cfg.PublishOptions != nil {
		var err error
		pubOpts, err = e.cfg.PublishOptions(trigger, value)
		if err != nil {
			return fmt.Errorf("resolve publish options for %q: %w", trigger, err)
		}
	}

	payload, err := e.cfg.Codec.Encode(value)
	if err != nil {
		return err
	}
	return e.tr.Publish(ctx, topic, payload, pubOpts)
}

// route is the transport's inbound funnel: decode once, then fan out to
// every listener registered under a matching filter.
func (e *Engine) route(topic string, payload []byte) {
	value, err := e.cfg.Codec.Decode(payload)
	if err != nil {
		e.log().Warn("dropping undecodable payload", slogx.Topic(topic), slogx.Error(err))
		return
	}

	e.mu.Lock()
	var handlers []Handler
	for filter, fs := range e.filters {
		if !fs.active || !topics.Match(filter, topic) {
			continue
		}
		for _, ent := range fs.entries {
			handlers = append(handlers, ent.handler)
		}
	}
	e.mu.Unlock()

	for _, handler := range handlers {
		e.deliver(topic, value, handler)
	}
}

// deliver isolates a panicking listener so the remaining matched
// listeners still receive the message.
func (e *Engine) deliver(topic string, value any, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			e.log().Error("listener panicked", slogx.Topic(topic), slog.Any("panic", r))
		}
	}()
	handler(topic, value)
}
