// Package eventbus implements the in-process, topic-addressed
// publish/subscribe service bus of spec §4.1 (C1), grounded on the
// teacher's common.EventBroker/Repository interface split
// (datasync/chaindatafetcher/common/common.go) and the topic/handler
// registration shape of kafka_client/main.go's AddTopicAndHandler.
//
// Delivery is at-most-once within the process. Per-topic handlers see
// messages in publish order; there is no ordering guarantee across
// topics. The bus never invokes two handlers belonging to the same
// subscriber concurrently for two different messages (serial per
// subscriber), each handler running on its own dedicated goroutine
// fed by a bounded channel.
package eventbus

import (
	"sync"

	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/log"
)

var logger = log.NewModuleLogger("eventbus")

// Handler processes one delivered event. Exceptions are caught by the
// bus and logged; they never stop delivery to other handlers (spec
// §4.1 failure contract).
type Handler func(events.Event)

// subscription is one handler's private inbox: a bounded channel and
// the goroutine draining it, guaranteeing serial delivery to this one
// handler regardless of how many producers publish concurrently.
type subscription struct {
	handler Handler
	inbox   chan events.Event
	done    chan struct{}
}

// Bus is the in-process service bus (spec §4.1).
type Bus struct {
	mu       sync.RWMutex
	topics   map[events.Topic][]*subscription
	capacity int
	started  bool
	wg       sync.WaitGroup
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithInboxCapacity sets the bounded channel size for each
// subscriber's inbox. Defaults to 1024, matching spec §5's
// recommendation for "smaller" CPU-worker queues.
func WithInboxCapacity(n int) Option {
	return func(b *Bus) { b.capacity = n }
}

// New constructs a Bus. Subscriptions may be registered up to Start;
// topics are declared up front as the subscription set (spec §4.1).
func New(opts ...Option) *Bus {
	b := &Bus{topics: make(map[events.Topic][]*subscription), capacity: 1024}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic. Must be called before
// Start; registration takes effect when Start runs.
func (b *Bus) Subscribe(topic events.Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], &subscription{
		handler: handler,
		inbox:   make(chan events.Event, b.capacity),
		done:    make(chan struct{}),
	})
}

// Start launches one delivery goroutine per subscription. Safe to call
// once; subsequent calls are no-ops.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.started = true
	for topic, subs := range b.topics {
		for _, s := range subs {
			b.wg.Add(1)
			go b.drain(topic, s)
		}
	}
	logger.Info("service bus started", "topics", len(b.topics))
	return nil
}

func (b *Bus) drain(topic events.Topic, s *subscription) {
	defer b.wg.Done()
	for {
		select {
		case ev, ok := <-s.inbox:
			if !ok {
				return
			}
			b.dispatch(topic, s, ev)
		case <-s.done:
			// Drain whatever remains buffered before exiting.
			for {
				select {
				case ev := <-s.inbox:
					b.dispatch(topic, s, ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(topic events.Topic, s *subscription, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "topic", topic, "recovered", r)
		}
	}()
	s.handler(ev)
}

// Publish enqueues the payload for delivery to every subscriber of
// topic and returns without waiting for handlers (spec §4.1). A
// payload failing schema validation is dropped and logged, never
// re-queued.
func (b *Bus) Publish(ev events.Event, producerID string) {
	if err := ev.Validate(); err != nil {
		logger.Error("dropping invalid payload", "topic", ev.Topic(), "producer", producerID, "err", err)
		return
	}
	b.mu.RLock()
	subs := b.topics[ev.Topic()]
	b.mu.RUnlock()
	for _, s := range subs {
		select {
		case s.inbox <- ev:
		default:
			logger.Warn("subscriber inbox full, dropping message", "topic", ev.Topic(), "producer", producerID)
		}
	}
}

// Stop signals every subscription to drain and exit, then waits for
// all delivery goroutines to finish.
func (b *Bus) Stop() error {
	b.mu.RLock()
	for _, subs := range b.topics {
		for _, s := range subs {
			close(s.done)
		}
	}
	b.mu.RUnlock()
	b.wg.Wait()
	logger.Info("service bus stopped")
	return nil
}
