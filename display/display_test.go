package display

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/market"
)

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
	done      chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{done: make(chan struct{}, 4)}
}

func (b *fakeBus) Publish(ev events.Event, producerID string) {
	b.mu.Lock()
	b.published = append(b.published, ev)
	b.mu.Unlock()
	b.done <- struct{}{}
}

func (b *fakeBus) eventsOfType(topic events.Topic) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, ev := range b.published {
		if ev.Topic() == topic {
			out = append(out, ev)
		}
	}
	return out
}

func TestHandleFinalResultsReady_PublishesDisplayCompleted(t *testing.T) {
	bus := newFakeBus()
	agent := New(bus)
	agent.Start()
	defer agent.Stop()

	agent.HandleFinalResultsReady(events.FinalResultsReady{
		Results: []market.CorrelationResult{
			{CoinID: market.CoinID{ID: "altcoin", Symbol: "ALT"}, Correlation: 0.8, MarketCap: 100, LowCapQuartile: true},
		},
		Weeks:      50,
		Timeframes: []string{"1d"},
	})

	select {
	case <-bus.done:
	case <-time.After(time.Second):
		t.Fatal("DisplayCompleted was not published")
	}

	completed := bus.eventsOfType(events.TopicDisplayCompleted)
	assert.Len(t, completed, 1)
}

func TestHandleFinalResultsReady_EmptyResultsStillCompletes(t *testing.T) {
	bus := newFakeBus()
	agent := New(bus)
	agent.Start()
	defer agent.Stop()

	agent.HandleFinalResultsReady(events.FinalResultsReady{Weeks: 50})

	select {
	case <-bus.done:
	case <-time.After(time.Second):
		t.Fatal("DisplayCompleted was not published")
	}
	assert.Len(t, bus.eventsOfType(events.TopicDisplayCompleted), 1)
}
