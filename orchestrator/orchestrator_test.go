package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/session"
)

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(ev events.Event, producerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
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

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(session.Config{
		Weeks:                10,
		TopNCoins:            5,
		CorrelationThreshold: 0.5,
		RSIPeriod:            3,
		Timeframes:           []string{"1d"},
		LowCapPercentile:     25,
		PubSubURL:            "http://localhost:5000",
	})
	assert.NoError(t, err)
	return sess
}

func TestHandleRunAnalysisRequested_RequestsBothSeeds(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)

	orch.HandleRunAnalysisRequested(events.RunAnalysisRequested{})

	assert.Equal(t, StateFetchingSeeds, orch.State())
	assert.Len(t, bus.eventsOfType(events.TopicFetchTopCoinsRequested), 1)
	assert.Len(t, bus.eventsOfType(events.TopicFetchPrecisionDataRequested), 1)
}

func TestHandleRunAnalysisRequested_IgnoredOutsideInit(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	orch.HandleRunAnalysisRequested(events.RunAnalysisRequested{})
	orch.HandleRunAnalysisRequested(events.RunAnalysisRequested{})
	assert.Len(t, bus.eventsOfType(events.TopicFetchTopCoinsRequested), 1)
}

func TestDispatch_FiltersByQuoteAssetAndDispatchesBTCFirst(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	orch.HandleRunAnalysisRequested(events.RunAnalysisRequested{})

	coins := []market.Coin{
		{ID: "bitcoin", Symbol: "BTC", MarketCap: 1_000_000_000},
		{ID: "ethereum", Symbol: "ETH", MarketCap: 500_000_000},
		{ID: "not-listed", Symbol: "NOPE", MarketCap: 1_000_000},
	}
	precision := []market.PrecisionData{
		{Symbol: "BTCUSDC", BaseAsset: "BTC", QuoteAsset: "USDC"},
		{Symbol: "ETHUSDC", BaseAsset: "ETH", QuoteAsset: "USDC"},
	}

	orch.HandleTopCoinsFetched(events.TopCoinsFetched{Coins: coins})
	orch.HandlePrecisionDataFetched(events.PrecisionDataFetched{PrecisionData: precision})

	assert.Equal(t, StateJoinJobs, orch.State())

	requests := bus.eventsOfType(events.TopicFetchHistoricalPricesRequested)
	assert.Len(t, requests, 2) // BTC + ETH, NOPE filtered out (no USDC market)
	first := requests[0].(events.FetchHistoricalPricesRequested)
	assert.Equal(t, "BTC", first.CoinID.Symbol)
}

func TestDispatch_RunsExactlyOnceRegardlessOfSeedOrder(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	orch.HandleRunAnalysisRequested(events.RunAnalysisRequested{})

	precision := []market.PrecisionData{{Symbol: "BTCUSDC", BaseAsset: "BTC", QuoteAsset: "USDC"}}
	coins := []market.Coin{{ID: "bitcoin", Symbol: "BTC", MarketCap: 1}}

	orch.HandlePrecisionDataFetched(events.PrecisionDataFetched{PrecisionData: precision})
	orch.HandleTopCoinsFetched(events.TopCoinsFetched{Coins: coins})
	// A duplicate delivery of a seed event must not re-trigger dispatch.
	orch.HandleTopCoinsFetched(events.TopCoinsFetched{Coins: coins})

	assert.Len(t, bus.eventsOfType(events.TopicFetchHistoricalPricesRequested), 1)
}

func TestHandleHistoricalPricesFetched_NilPricesIsAFailure(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	coinID := market.CoinID{ID: "altcoin", Symbol: "ALT"}

	orch.HandleHistoricalPricesFetched(events.HistoricalPricesFetched{CoinID: coinID, Prices: nil, Timeframe: "1d"})

	failures := bus.eventsOfType(events.TopicCoinProcessingFailed)
	assert.Len(t, failures, 1)
	assert.Equal(t, coinID, failures[0].(events.CoinProcessingFailed).CoinID)
}

func TestHandleHistoricalPricesFetched_RequestsRSIOnSuccess(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	coinID := market.CoinID{ID: "altcoin", Symbol: "ALT"}
	prices := &market.PricesSeries{CoinID: coinID, Timeframe: "1d"}

	orch.HandleHistoricalPricesFetched(events.HistoricalPricesFetched{CoinID: coinID, Prices: prices, Timeframe: "1d"})

	assert.Len(t, bus.eventsOfType(events.TopicCalculateRSIRequested), 1)
	assert.Empty(t, bus.eventsOfType(events.TopicCoinProcessingFailed))
}

func TestHandleRSICalculated_NilRSIIsAFailure(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	coinID := market.CoinID{ID: "altcoin", Symbol: "ALT"}

	orch.HandleRSICalculated(events.RSICalculated{CoinID: coinID, RSI: nil, Timeframe: "1d"})

	assert.Len(t, bus.eventsOfType(events.TopicCoinProcessingFailed), 1)
}

func TestHandleRSICalculated_StoresResultForRSIFor(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	coinID := market.CoinID{ID: "altcoin", Symbol: "ALT"}
	series := market.RSISeries{CoinID: coinID, Timeframe: "1d", Points: []market.RSIPoint{{Value: 42, Present: true}}}

	orch.HandleRSICalculated(events.RSICalculated{CoinID: coinID, RSI: &series, Timeframe: "1d"})

	got, ok := orch.RSIFor(coinID, "1d")
	assert.True(t, ok)
	assert.Equal(t, series, got)
}

func TestHandleAnalysisJobCompleted_PublishesSortedFinalResults(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	orch.pendingJobs = 1

	orch.HandleCorrelationAnalyzed(events.CorrelationAnalyzed{
		Result:    &market.CorrelationResult{CoinID: market.CoinID{ID: "weak", Symbol: "W"}, Correlation: 0.6, MarketCap: 100},
		Timeframe: "1d",
	})
	orch.HandleCorrelationAnalyzed(events.CorrelationAnalyzed{
		Result:    &market.CorrelationResult{CoinID: market.CoinID{ID: "strong", Symbol: "S"}, Correlation: -0.95, MarketCap: 50},
		Timeframe: "1d",
	})

	orch.HandleAnalysisJobCompleted(events.AnalysisJobCompleted{Timeframe: "1d"})

	ready := bus.eventsOfType(events.TopicFinalResultsReady)
	assert.Len(t, ready, 1)
	results := ready[0].(events.FinalResultsReady).Results
	assert.Len(t, results, 2)
	assert.Equal(t, "strong", results[0].CoinID.ID) // higher |correlation| first
	assert.Equal(t, "weak", results[1].CoinID.ID)
}

func TestHandleAnalysisJobCompleted_WaitsForAllTimeframes(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	orch.pendingJobs = 2

	orch.HandleAnalysisJobCompleted(events.AnalysisJobCompleted{Timeframe: "1d"})
	assert.Empty(t, bus.eventsOfType(events.TopicFinalResultsReady))

	orch.HandleAnalysisJobCompleted(events.AnalysisJobCompleted{Timeframe: "4h"})
	assert.Len(t, bus.eventsOfType(events.TopicFinalResultsReady), 1)
}

func TestHandleDisplayCompleted_ClosesDone(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)

	orch.HandleDisplayCompleted(events.DisplayCompleted{})

	select {
	case <-orch.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel was not closed")
	}
	assert.Equal(t, StateShutdown, orch.State())
	assert.Len(t, bus.eventsOfType(events.TopicAllProcessingCompleted), 1)
}

func TestHandleWorkerFailed_ClosesDoneFromAnyState(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	orch.HandleRunAnalysisRequested(events.RunAnalysisRequested{})

	orch.HandleWorkerFailed(events.WorkerFailed{Worker: "datafetcher", Reason: "boom"})

	select {
	case <-orch.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel was not closed")
	}
}

func TestHandleWorkerFailed_SetsFailed(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)

	assert.False(t, orch.Failed())
	orch.HandleWorkerFailed(events.WorkerFailed{Worker: "datafetcher", Reason: "boom"})
	assert.True(t, orch.Failed())
}

func TestHandleDisplayCompleted_DoesNotSetFailed(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)

	orch.HandleDisplayCompleted(events.DisplayCompleted{})
	assert.False(t, orch.Failed())
}

func TestFinish_IsIdempotent(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)

	orch.HandleDisplayCompleted(events.DisplayCompleted{})
	orch.HandleWorkerFailed(events.WorkerFailed{Worker: "x", Reason: "y"})

	assert.NotPanics(t, func() { <-orch.Done() })
}

func TestMarketCapForAndLowCapThreshold(t *testing.T) {
	bus := &fakeBus{}
	orch := New(bus, newTestSession(t), nil)
	orch.HandleRunAnalysisRequested(events.RunAnalysisRequested{})

	coins := []market.Coin{
		{ID: "bitcoin", Symbol: "BTC", MarketCap: 1000},
		{ID: "altcoin", Symbol: "ALT", MarketCap: 10},
	}
	precision := []market.PrecisionData{
		{Symbol: "BTCUSDC", BaseAsset: "BTC", QuoteAsset: "USDC"},
		{Symbol: "ALTUSDC", BaseAsset: "ALT", QuoteAsset: "USDC"},
	}
	orch.HandleTopCoinsFetched(events.TopCoinsFetched{Coins: coins})
	orch.HandlePrecisionDataFetched(events.PrecisionDataFetched{PrecisionData: precision})

	assert.Equal(t, 1000.0, orch.MarketCapFor(market.CoinID{ID: "bitcoin", Symbol: "BTC"}))
	assert.Equal(t, 10.0, orch.MarketCapFor(market.CoinID{ID: "altcoin", Symbol: "ALT"}))
	assert.False(t, orch.LowCapThreshold() == 0)
}
