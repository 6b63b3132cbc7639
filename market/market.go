// Package market holds the asset and series types of spec §3: Coin,
// PricesSeries, RSISeries, and CorrelationResult.
package market

import (
	"fmt"
	"time"
)

// CoinID identifies a coin by its (id, symbol) pair, the identity spec
// §3 defines for Coin.
type CoinID struct {
	ID     string
	Symbol string
}

func (c CoinID) String() string { return fmt.Sprintf("%s/%s", c.ID, c.Symbol) }

// Coin is the asset metadata Data Fetcher produces and Orchestrator /
// Database Manager consume (spec §3).
type Coin struct {
	ID        string
	Symbol    string
	MarketCap float64
	Meta      map[string]interface{}
}

func (c Coin) CoinID() CoinID { return CoinID{ID: c.ID, Symbol: c.Symbol} }

// PriceBar is one OHLCV row.
type PriceBar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PricesSeries is an immutable, strictly-increasing-timestamp, UTC
// OHLCV series for one (coin, timeframe) (spec §3).
type PricesSeries struct {
	CoinID    CoinID
	Timeframe string
	Bars      []PriceBar
}

// Closes extracts the close-price column in timestamp order, the input
// the RSI calculator (§4.5) operates on.
func (p PricesSeries) Closes() []float64 {
	out := make([]float64, len(p.Bars))
	for i, b := range p.Bars {
		out[i] = b.Close
	}
	return out
}

// Timestamps extracts the timestamp column in order.
func (p PricesSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(p.Bars))
	for i, b := range p.Bars {
		out[i] = b.Timestamp
	}
	return out
}

// Validate enforces the strictly-increasing-timestamp invariant.
func (p PricesSeries) Validate() error {
	for i := 1; i < len(p.Bars); i++ {
		if !p.Bars[i].Timestamp.After(p.Bars[i-1].Timestamp) {
			return fmt.Errorf("prices series for %s/%s is not strictly increasing at index %d", p.CoinID, p.Timeframe, i)
		}
	}
	return nil
}

// RSIPoint is one RSI value at a timestamp; Value is only meaningful
// when Present is true (spec §3: "every value ∈[0,100] or absent").
type RSIPoint struct {
	Timestamp time.Time
	Value     float64
	Present   bool
}

// RSISeries is an immutable, derived (timestamp → RSI) series for one
// (coin, timeframe) (spec §3).
type RSISeries struct {
	CoinID    CoinID
	Timeframe string
	Points    []RSIPoint
}

// Validate enforces the [0,100]-or-absent invariant (spec §8 "RSI
// bounds").
func (r RSISeries) Validate() error {
	for _, p := range r.Points {
		if p.Present && (p.Value < 0 || p.Value > 100) {
			return fmt.Errorf("rsi value %f for %s/%s out of [0,100] bounds", p.Value, r.CoinID, r.Timeframe)
		}
	}
	return nil
}

// CorrelationResult is produced only when |correlation| >= threshold
// and the common index is long enough (spec §3, §4.4).
type CorrelationResult struct {
	CoinID         CoinID
	Timeframe      string
	Correlation    float64
	MarketCap      float64
	LowCapQuartile bool
}

// PrecisionData is one market's precision metadata (spec §4.7).
type PrecisionData struct {
	Symbol             string
	BaseAsset          string
	QuoteAsset         string
	Status             bool
	BaseAssetPrecision int
	StepSize           float64
	MinQty             float64
	TickSize           float64
	MinNotional        float64
}
