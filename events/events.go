package events

import (
	"fmt"

	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/session"
)

// AnalysisConfigurationProvided is broadcast once at session start
// (spec §3), translating the Python teacher's event of the same name.
type AnalysisConfigurationProvided struct {
	SessionGUID string
	Config      session.Config
}

func (AnalysisConfigurationProvided) Topic() Topic { return TopicAnalysisConfigurationProvided }
func (e AnalysisConfigurationProvided) Validate() error {
	if e.SessionGUID == "" {
		return fmt.Errorf("AnalysisConfigurationProvided: empty session guid")
	}
	return e.Config.Validate()
}

// RunAnalysisRequested triggers the start of the analysis workflow.
type RunAnalysisRequested struct{}

func (RunAnalysisRequested) Topic() Topic    { return TopicRunAnalysisRequested }
func (RunAnalysisRequested) Validate() error { return nil }

// FetchTopCoinsRequested requests the top N coins.
type FetchTopCoinsRequested struct {
	N int
}

func (FetchTopCoinsRequested) Topic() Topic { return TopicFetchTopCoinsRequested }
func (e FetchTopCoinsRequested) Validate() error {
	if e.N <= 0 {
		return fmt.Errorf("FetchTopCoinsRequested: n must be > 0, got %d", e.N)
	}
	return nil
}

// TopCoinsFetched carries the fetched coin universe.
type TopCoinsFetched struct {
	Coins []market.Coin
}

func (TopCoinsFetched) Topic() Topic    { return TopicTopCoinsFetched }
func (TopCoinsFetched) Validate() error { return nil }

// FetchPrecisionDataRequested requests market precision metadata.
type FetchPrecisionDataRequested struct{}

func (FetchPrecisionDataRequested) Topic() Topic    { return TopicFetchPrecisionDataRequested }
func (FetchPrecisionDataRequested) Validate() error { return nil }

// PrecisionDataFetched carries fetched market precision metadata
// (spec §4.7); may be empty on total failure.
type PrecisionDataFetched struct {
	PrecisionData []market.PrecisionData
}

func (PrecisionDataFetched) Topic() Topic    { return TopicPrecisionDataFetched }
func (PrecisionDataFetched) Validate() error { return nil }

// SingleCoinFetched is published for each individual coin fetched.
type SingleCoinFetched struct {
	Coin market.Coin
}

func (SingleCoinFetched) Topic() Topic    { return TopicSingleCoinFetched }
func (SingleCoinFetched) Validate() error { return nil }

// FetchHistoricalPricesRequested requests OHLCV history for one coin
// and timeframe.
type FetchHistoricalPricesRequested struct {
	CoinID    market.CoinID
	Weeks     int
	Timeframe string
}

func (FetchHistoricalPricesRequested) Topic() Topic { return TopicFetchHistoricalPricesRequested }
func (e FetchHistoricalPricesRequested) Validate() error {
	if e.Weeks <= 0 {
		return fmt.Errorf("FetchHistoricalPricesRequested: weeks must be > 0, got %d", e.Weeks)
	}
	if e.Timeframe == "" {
		return fmt.Errorf("FetchHistoricalPricesRequested: empty timeframe")
	}
	return nil
}

// HistoricalPricesFetched carries fetched OHLCV history, or a nil
// Prices on fetch failure (spec §4.7 — treated as a per-coin failure).
type HistoricalPricesFetched struct {
	CoinID    market.CoinID
	Prices    *market.PricesSeries
	Timeframe string
}

func (HistoricalPricesFetched) Topic() Topic { return TopicHistoricalPricesFetched }
func (e HistoricalPricesFetched) Validate() error {
	if e.Timeframe == "" {
		return fmt.Errorf("HistoricalPricesFetched: empty timeframe")
	}
	if e.Prices != nil {
		return e.Prices.Validate()
	}
	return nil
}

// CalculateRSIRequested requests RSI for a coin's price series.
type CalculateRSIRequested struct {
	CoinID    market.CoinID
	Prices    *market.PricesSeries
	Timeframe string
}

func (CalculateRSIRequested) Topic() Topic    { return TopicCalculateRSIRequested }
func (CalculateRSIRequested) Validate() error { return nil }

// RSICalculated carries the computed RSI series, or nil on "no RSI"
// (spec §4.5 precondition failure, counted as a failure outcome).
type RSICalculated struct {
	CoinID    market.CoinID
	RSI       *market.RSISeries
	Timeframe string
}

func (RSICalculated) Topic() Topic { return TopicRSICalculated }
func (e RSICalculated) Validate() error {
	if e.Timeframe == "" {
		return fmt.Errorf("RSICalculated: empty timeframe")
	}
	if e.RSI != nil {
		return e.RSI.Validate()
	}
	return nil
}

// CorrelationAnalyzed carries the result of a single correlation pass
// that passed the spec §4.4 filters; a discarded pair publishes no
// event.
type CorrelationAnalyzed struct {
	Result    *market.CorrelationResult
	Timeframe string
}

func (CorrelationAnalyzed) Topic() Topic    { return TopicCorrelationAnalyzed }
func (CorrelationAnalyzed) Validate() error { return nil }

// CoinProcessingFailed signals a per-coin failure (spec §7 class 2).
type CoinProcessingFailed struct {
	CoinID    market.CoinID
	Timeframe string
}

func (CoinProcessingFailed) Topic() Topic { return TopicCoinProcessingFailed }
func (e CoinProcessingFailed) Validate() error {
	if e.Timeframe == "" {
		return fmt.Errorf("CoinProcessingFailed: empty timeframe")
	}
	return nil
}

// AnalysisJobCompleted signals that a timeframe's job reached quorum
// (spec §4.6). Published exactly once per timeframe.
type AnalysisJobCompleted struct {
	Timeframe string
}

func (AnalysisJobCompleted) Topic() Topic { return TopicAnalysisJobCompleted }
func (e AnalysisJobCompleted) Validate() error {
	if e.Timeframe == "" {
		return fmt.Errorf("AnalysisJobCompleted: empty timeframe")
	}
	return nil
}

// FinalResultsReady carries the aggregated results across all jobs.
type FinalResultsReady struct {
	Results    []market.CorrelationResult
	Weeks      int
	Timeframes []string
}

func (FinalResultsReady) Topic() Topic    { return TopicFinalResultsReady }
func (FinalResultsReady) Validate() error { return nil }

// DisplayCompleted signals the Display Agent has printed the final
// results.
type DisplayCompleted struct{}

func (DisplayCompleted) Topic() Topic    { return TopicDisplayCompleted }
func (DisplayCompleted) Validate() error { return nil }

// AllProcessingCompleted unblocks the main wait and triggers ordered
// shutdown (spec §4.3).
type AllProcessingCompleted struct{}

func (AllProcessingCompleted) Topic() Topic    { return TopicAllProcessingCompleted }
func (AllProcessingCompleted) Validate() error { return nil }

// WorkerFailed signals an unrecoverable worker fault (spec §7 class 4).
type WorkerFailed struct {
	Worker string
	Reason string
}

func (WorkerFailed) Topic() Topic { return TopicWorkerFailed }
func (e WorkerFailed) Validate() error {
	if e.Worker == "" {
		return fmt.Errorf("WorkerFailed: empty worker name")
	}
	return nil
}
