// Package datafetcher implements the Data Fetcher worker of spec §4.7
// (C3), grounded on the teacher's ChainDataFetcher request-handling
// loop (datasync/chaindatafetcher/chaindata_fetcher.go: retryFunc +
// updateGauge wrapping a HandleChainEventFn) and on
// original_source/data_fetcher.py for the three fetch tasks and their
// exact symbol/quote/retry semantics.
package datafetcher

import (
	"context"
	"sort"
	"strings"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/log"
	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/retry"
	"github.com/venantvr/rsi-correlation/worker"
)

// MarketListClient is the external collaborator contract for fetching
// the coin universe and exchange market metadata (spec §1: "contracts
// only").
type MarketListClient interface {
	TopCoins(ctx context.Context, page, perPage int) ([]market.Coin, error)
	Markets(ctx context.Context) ([]market.PrecisionData, error)
	HasSymbol(ctx context.Context, symbol string) (bool, error)
}

// ExchangeClient is the external collaborator contract for OHLCV
// history (spec §1: "contracts only").
type ExchangeClient interface {
	OHLCV(ctx context.Context, symbol, timeframe string, sinceMillis int64, limit int) ([]market.PriceBar, error)
}

const pageSize = 100

// Publisher is the narrow service-bus surface the Data Fetcher uses
// to emit its outcomes (spec §4.1 Publish contract).
type Publisher interface {
	Publish(ev events.Event, producerID string)
}

// Fetcher is the Data Fetcher worker (C3): a worker.Base consuming
// FetchTopCoinsRequested, FetchHistoricalPricesRequested and
// FetchPrecisionDataRequested.
type Fetcher struct {
	*worker.Base

	bus        Publisher
	marketList MarketListClient
	exchange   ExchangeClient
	policy     retry.Policy
	quote      string
	logger     *log.Logger

	fetchDurationGauge metrics.Gauge
	retryGauge         metrics.Gauge
}

// New constructs a Data Fetcher bound to a bus, a market-list client
// and an exchange client. quote is the quote asset anchor from spec
// §4.7 ("SYMBOL/USDC"); callers pass "USDC".
func New(bus Publisher, marketList MarketListClient, exchange ExchangeClient, quote string) *Fetcher {
	f := &Fetcher{
		Base:               worker.New("datafetcher", 1024),
		bus:                bus,
		marketList:         marketList,
		exchange:           exchange,
		policy:             retry.Policy{Attempts: 3, MinBackoff: 5 * time.Second, MaxBackoff: 20 * time.Second},
		quote:              strings.ToUpper(quote),
		logger:             log.NewModuleLogger("datafetcher"),
		fetchDurationGauge: metrics.NewGauge(),
		retryGauge:         metrics.NewGauge(),
	}
	metrics.Register("datafetcher/fetch-duration-ms", f.fetchDurationGauge)
	metrics.Register("datafetcher/retry-count", f.retryGauge)
	return f
}

// HandleFetchTopCoinsRequested enqueues the top-coins fetch task.
func (f *Fetcher) HandleFetchTopCoinsRequested(ev events.FetchTopCoinsRequested) {
	f.Submit(func() { f.fetchTopCoins(ev.N) })
}

// HandleFetchHistoricalPricesRequested enqueues the historical-prices
// fetch task for one coin.
func (f *Fetcher) HandleFetchHistoricalPricesRequested(ev events.FetchHistoricalPricesRequested) {
	f.Submit(func() { f.fetchHistoricalPrices(ev.CoinID, ev.Weeks, ev.Timeframe) })
}

// HandleFetchPrecisionDataRequested enqueues the precision-data fetch
// task.
func (f *Fetcher) HandleFetchPrecisionDataRequested(events.FetchPrecisionDataRequested) {
	f.Submit(func() { f.fetchPrecisionData() })
}

// fetchTopCoins implements spec §4.7's TopCoins(n): paginated,
// per-page retry, robust to a final page failure which simply stops
// collection.
func (f *Fetcher) fetchTopCoins(n int) {
	ctx, cancel := context.Background(), func() {}
	_ = cancel
	started := time.Now()

	var coins []market.Coin
	pages := (n + pageSize - 1) / pageSize
	for page := 1; page <= pages; page++ {
		var pageCoins []market.Coin
		err := retry.Do(ctx, f.policy, func() error {
			var err error
			pageCoins, err = f.marketList.TopCoins(ctx, page, pageSize)
			return err
		})
		if err != nil {
			f.logger.Error("fetching top coins page failed, stopping collection", "page", page, "err", err)
			break
		}
		coins = append(coins, pageCoins...)
		for _, c := range pageCoins {
			f.bus.Publish(events.SingleCoinFetched{Coin: c}, "datafetcher")
		}
	}
	if len(coins) > n {
		coins = coins[:n]
	}
	f.fetchDurationGauge.Update(time.Since(started).Milliseconds())
	f.bus.Publish(events.TopCoinsFetched{Coins: coins}, "datafetcher")
}

// fetchHistoricalPrices implements spec §4.7's HistoricalPrices: the
// exchange symbol is anchored strictly as SYMBOL/USDC (spec §9's
// resolved open question — no fallback quote currency).
func (f *Fetcher) fetchHistoricalPrices(coinID market.CoinID, weeks int, timeframe string) {
	ctx := context.Background()
	started := time.Now()
	symbol := strings.ToUpper(coinID.Symbol) + "/" + f.quote

	present, err := f.marketList.HasSymbol(ctx, symbol)
	if err != nil || !present {
		if err != nil {
			f.logger.Warn("checking symbol presence failed", "symbol", symbol, "err", err)
		} else {
			f.logger.Warn("symbol not found on exchange, skipping without retry", "symbol", symbol)
		}
		f.bus.Publish(events.HistoricalPricesFetched{CoinID: coinID, Prices: nil, Timeframe: timeframe}, "datafetcher")
		return
	}

	since := time.Now().Add(-time.Duration(weeks) * 7 * 24 * time.Hour).UnixMilli()
	var bars []market.PriceBar
	err = retry.Do(ctx, f.policy, func() error {
		var err error
		bars, err = f.exchange.OHLCV(ctx, symbol, timeframe, since, 1000)
		return err
	})
	f.fetchDurationGauge.Update(time.Since(started).Milliseconds())
	if err != nil {
		f.logger.Error("fetching OHLCV failed after retries", "symbol", symbol, "err", err)
		f.bus.Publish(events.HistoricalPricesFetched{CoinID: coinID, Prices: nil, Timeframe: timeframe}, "datafetcher")
		return
	}

	series := market.PricesSeries{CoinID: coinID, Timeframe: timeframe, Bars: bars}
	f.bus.Publish(events.HistoricalPricesFetched{CoinID: coinID, Prices: &series, Timeframe: timeframe}, "datafetcher")
}

// fetchPrecisionData implements spec §4.7's PrecisionData(): every
// active market exposing LOT_SIZE/PRICE_FILTER/NOTIONAL filters
// (filtering already applied by the MarketListClient implementation;
// this task only shapes the outcome event).
func (f *Fetcher) fetchPrecisionData() {
	ctx := context.Background()
	started := time.Now()

	var data []market.PrecisionData
	err := retry.Do(ctx, f.policy, func() error {
		var err error
		data, err = f.marketList.Markets(ctx)
		return err
	})
	f.fetchDurationGauge.Update(time.Since(started).Milliseconds())
	if err != nil {
		f.logger.Error("fetching precision data failed after retries, emitting empty list", "err", err)
		data = nil
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Symbol < data[j].Symbol })
	f.bus.Publish(events.PrecisionDataFetched{PrecisionData: data}, "datafetcher")
}
