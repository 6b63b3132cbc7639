package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/session"
)

func validConfig() session.Config {
	return session.Config{
		Weeks:                50,
		TopNCoins:            200,
		CorrelationThreshold: 0.7,
		RSIPeriod:            14,
		Timeframes:           []string{"1d"},
		LowCapPercentile:     25,
		PubSubURL:            "http://localhost:5000",
	}
}

func TestAnalysisConfigurationProvided_Validate(t *testing.T) {
	ev := AnalysisConfigurationProvided{SessionGUID: "abc", Config: validConfig()}
	assert.NoError(t, ev.Validate())

	empty := AnalysisConfigurationProvided{SessionGUID: "", Config: validConfig()}
	assert.Error(t, empty.Validate())
}

func TestFetchTopCoinsRequested_Validate(t *testing.T) {
	assert.NoError(t, FetchTopCoinsRequested{N: 10}.Validate())
	assert.Error(t, FetchTopCoinsRequested{N: 0}.Validate())
}

func TestFetchHistoricalPricesRequested_Validate(t *testing.T) {
	ok := FetchHistoricalPricesRequested{CoinID: market.CoinID{ID: "bitcoin", Symbol: "BTC"}, Weeks: 50, Timeframe: "1d"}
	assert.NoError(t, ok.Validate())

	assert.Error(t, FetchHistoricalPricesRequested{Weeks: 0, Timeframe: "1d"}.Validate())
	assert.Error(t, FetchHistoricalPricesRequested{Weeks: 50, Timeframe: ""}.Validate())
}

func TestHistoricalPricesFetched_ValidatesNestedSeries(t *testing.T) {
	valid := &market.PricesSeries{
		CoinID:    market.CoinID{ID: "bitcoin", Symbol: "BTC"},
		Timeframe: "1d",
	}
	ev := HistoricalPricesFetched{CoinID: valid.CoinID, Prices: valid, Timeframe: "1d"}
	assert.NoError(t, ev.Validate())

	bad := &market.PricesSeries{
		CoinID:    market.CoinID{ID: "bitcoin", Symbol: "BTC"},
		Timeframe: "1d",
		Bars: []market.PriceBar{
			{Timestamp: time.Unix(86400, 0).UTC()},
			{Timestamp: time.Unix(0, 0).UTC()},
		},
	}
	unordered := HistoricalPricesFetched{CoinID: bad.CoinID, Prices: bad, Timeframe: "1d"}
	assert.Error(t, unordered.Validate())

	nilPrices := HistoricalPricesFetched{Timeframe: "1d"}
	assert.NoError(t, nilPrices.Validate())

	missingTimeframe := HistoricalPricesFetched{}
	assert.Error(t, missingTimeframe.Validate())
}

func TestRSICalculated_RejectsOutOfBoundsValues(t *testing.T) {
	series := &market.RSISeries{
		CoinID:    market.CoinID{ID: "bitcoin", Symbol: "BTC"},
		Timeframe: "1d",
		Points:    []market.RSIPoint{{Value: 150, Present: true}},
	}
	ev := RSICalculated{CoinID: series.CoinID, RSI: series, Timeframe: "1d"}
	assert.Error(t, ev.Validate())
}

func TestWorkerFailed_Validate(t *testing.T) {
	assert.NoError(t, WorkerFailed{Worker: "datafetcher", Reason: "boom"}.Validate())
	assert.Error(t, WorkerFailed{Reason: "boom"}.Validate())
}

// TestHistoricalPricesFetched_JSONUsesSplitOrientation confirms the
// event's embedded PricesSeries crosses any JSON boundary (e.g. a
// logged copy, or the bus running out-of-process) in split orientation,
// not a field-for-field dump of its Bars slice.
func TestHistoricalPricesFetched_JSONUsesSplitOrientation(t *testing.T) {
	coinID := market.CoinID{ID: "bitcoin", Symbol: "BTC"}
	prices := &market.PricesSeries{
		CoinID:    coinID,
		Timeframe: "1d",
		Bars:      []market.PriceBar{{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}},
	}
	ev := HistoricalPricesFetched{CoinID: coinID, Prices: prices, Timeframe: "1d"}

	data, err := json.Marshal(ev)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"columns":["open","high","low","close","volume"]`)
	assert.NotContains(t, string(data), `"Bars"`)

	var decoded HistoricalPricesFetched
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *prices, *decoded.Prices)
}

func TestRSICalculated_JSONUsesSplitOrientation(t *testing.T) {
	coinID := market.CoinID{ID: "bitcoin", Symbol: "BTC"}
	series := &market.RSISeries{
		CoinID:    coinID,
		Timeframe: "1d",
		Points:    []market.RSIPoint{{Value: 42, Present: true}},
	}
	ev := RSICalculated{CoinID: coinID, RSI: series, Timeframe: "1d"}

	data, err := json.Marshal(ev)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"columns":["rsi"]`)

	var decoded RSICalculated
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *series, *decoded.RSI)
}
