package rsi

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/worker"
)

// Bus is the narrow service-bus surface the RSI Calculator needs.
type Bus interface {
	Publish(ev events.Event, producerID string)
}

// Worker is the RSI Calculator worker (C4): a worker.Base wrapping the
// pure Calculate function with go-metrics gauges, matching
// chaindata_fetcher.go's totalInsertionTimeGauge pattern applied here
// to calculation latency.
type Worker struct {
	*worker.Base
	bus    Bus
	period int

	calcDurationGauge metrics.Gauge
}

// NewWorker constructs an RSI Calculator bound to bus, computing RSI
// with the given lookback period (spec §3 rsi_period).
func NewWorker(bus Bus, period int) *Worker {
	w := &Worker{
		Base:              worker.New("rsi", 1024),
		bus:               bus,
		period:            period,
		calcDurationGauge: metrics.NewGauge(),
	}
	metrics.Register("rsi/calc-duration-ms", w.calcDurationGauge)
	return w
}

// HandleCalculateRSIRequested enqueues the RSI calculation task.
func (w *Worker) HandleCalculateRSIRequested(ev events.CalculateRSIRequested) {
	w.Submit(func() { w.calculate(ev) })
}

func (w *Worker) calculate(ev events.CalculateRSIRequested) {
	started := time.Now()
	defer func() { w.calcDurationGauge.Update(time.Since(started).Milliseconds()) }()

	if ev.Prices == nil {
		w.bus.Publish(events.RSICalculated{CoinID: ev.CoinID, RSI: nil, Timeframe: ev.Timeframe}, "rsi")
		return
	}

	closes := ev.Prices.Closes()
	timestamps := ev.Prices.Timestamps()
	values, present, ok := Calculate(closes, w.period)
	if !ok {
		w.bus.Publish(events.RSICalculated{CoinID: ev.CoinID, RSI: nil, Timeframe: ev.Timeframe}, "rsi")
		return
	}

	points := make([]market.RSIPoint, len(values))
	for i := range values {
		points[i] = market.RSIPoint{Timestamp: timestamps[i], Value: values[i], Present: present[i]}
	}
	series := market.RSISeries{CoinID: ev.CoinID, Timeframe: ev.Timeframe, Points: points}
	w.bus.Publish(events.RSICalculated{CoinID: ev.CoinID, RSI: &series, Timeframe: ev.Timeframe}, "rsi")
}
