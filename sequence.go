package topicmux

import (
	"context"
	"io"
	"iter"
	"slices"
	"sync"

	"github.com/casualjim/topicmux/pkg/slogx"
)

type pullResult struct {
	value any
	done  bool
}

// Sequence is a pull-based stream of the values delivered for one or
// more triggers. It is lazy: the underlying subscriptions are created on
// the first pull, so a sequence nobody consumes never reaches the
// transport. A closed sequence cannot be restarted; create a new one.
type Sequence struct {
	engine   *Engine
	triggers []string

	mu      sync.Mutex
	started bool
	closed  bool
	ids     []SubscriptionID
	values  []any
	pulls   []chan pullResult
}

// Sequence returns a pull-based view over the given triggers. A value
// published to any of them becomes one element, in delivery order.
func (e *Engine) Sequence(triggers ...string) *Sequence {
	return &Sequence{engine: e, triggers: slices.Clone(triggers)}
}

// Next blocks until a value is delivered, the sequence is closed, or ctx
// is canceled. It returns io.EOF after Close, immediately and forever.
// Values queue while nobody is pulling and pulls queue while no value is
// pending; both pair up FIFO, so no value is dropped while the sequence
// is open and concurrent pulls resolve in request order.
func (s *Sequence) Next(ctx context.Context) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.EOF
	}

	if !s.started {
		s.started = true
		for _, trigger := range s.triggers {
			id, err := s.engine.Subscribe(ctx, trigger, s.deliver)
			if err != nil {
				ids := s.ids
				s.ids = nil
				s.closed = true
				s.mu.Unlock()
				s.release(ids)
				return nil, err
			}
			s.ids = append(s.ids, id)
		}
	}

	if len(s.values) > 0 {
		v := s.values[0]
		s.values = s.values[1:]
		s.mu.Unlock()
		return v, nil
	}

	pull := make(chan pullResult, 1)
	s.pulls = append(s.pulls, pull)
	s.mu.Unlock()

	select {
	case r := <-pull:
		if r.done {
			return nil, io.EOF
		}
		return r.value, nil
	case <-ctx.Done():
		s.abandon(pull)
		return nil, ctx.Err()
	}
}

// Values adapts the sequence for range-over-func consumption. Iteration
// ends when the sequence closes or ctx is canceled; use Next directly
// when the terminating error matters.
func (s *Sequence) Values(ctx context.Context) iter.Seq[any] {
	return func(yield func(any) bool) {
		for {
			v, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Close cancels the sequence: pending pulls complete as normal
// termination, the underlying subscriptions unregister, and every later
// pull returns io.EOF. Close is idempotent.
func (s *Sequence) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pulls := s.pulls
	s.pulls = nil
	ids := s.ids
	s.ids = nil
	s.values = nil
	s.mu.Unlock()

	for _, pull := range pulls {
		pull <- pullResult{done: true}
	}
	s.release(ids)
	return nil
}

// deliver is the handler registered per trigger: resolve the oldest
// waiting pull, or queue when nobody is waiting. The send stays under
// the lock so abandon always observes either the pull still queued or
// the result already in its buffer; it never blocks, since a queued
// pull's cap-1 channel is empty. Sending after unlocking would let a
// racing abandon drain an empty channel and orphan the value.
func (s *Sequence) deliver(_ string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.pulls) > 0 {
		pull := s.pulls[0]
		s.pulls = s.pulls[1:]
		pull <- pullResult{value: value}
		return
	}
	s.values = append(s.values, value)
}

// abandon retracts a pull whose caller gave up. When a delivery won the
// race and already resolved the pull, the value goes back to the front
// of the queue so it is not lost.
func (s *Sequence) abandon(pull chan pullResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pulls {
		if p == pull {
			s.pulls = append(s.pulls[:i], s.pulls[i+1:]...)
			return
		}
	}
	select {
	case r := <-pull:
		if !r.done && !s.closed {
			s.values = append([]any{r.value}, s.values...)
		}
	default:
	}
}

func (s *Sequence) release(ids []SubscriptionID) {
	for _, id := range ids {
		if err := s.engine.Unsubscribe(id); err != nil {
			s.engine.log().Debug("sequence unsubscribe", slogx.Subscription(uint64(id)), slogx.Error(err))
		}
	}
}
