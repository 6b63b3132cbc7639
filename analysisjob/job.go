// Package analysisjob implements the per-timeframe quorum state
// machine of spec §4.6 (C6), grounded on the teacher's checkpoint
// advance pattern in chaindata_fetcher.go's updateCheckpoint (a
// mutex-guarded, idempotent monotonic counter) generalized to a
// dedup-gated decrement, plus original_source/analysis_job.py for the
// exact field set (coins_to_process, processing_counter, btc_rsi,
// seen_decrements).
package analysisjob

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/venantvr/rsi-correlation/correlation"
	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/log"
	"github.com/venantvr/rsi-correlation/market"
)

// seenCapacity bounds the dedup fingerprint set (spec §4.6, §9).
const seenCapacity = 1000

var logger = log.NewModuleLogger("analysisjob")

// Host is the Orchestrator's read-only surface exposed to a Job,
// expressing the cyclic Job→Orchestrator reference as a narrow
// interface rather than ownership (spec §9 design note).
type Host interface {
	RSIFor(coinID market.CoinID, timeframe string) (market.RSISeries, bool)
	MarketCapFor(coinID market.CoinID) float64
	LowCapThreshold() float64
	Publish(ev events.Event)
}

// Job is the per-timeframe quorum tracker of spec §4.6.
type Job struct {
	Timeframe string
	host      Host

	mu                   sync.Mutex
	coinsToProcess       map[market.CoinID]struct{}
	counter              int
	btcRSI               *market.RSISeries
	completed            bool
	correlationThreshold float64
	rsiPeriod            int
	seen                 *lru.Cache
}

// New creates a Job for one timeframe with counter initialised to
// len(coins)+1 (BTC counted, per spec §9's resolved open question).
func New(timeframe string, coins []market.CoinID, correlationThreshold float64, rsiPeriod int, host Host) (*Job, error) {
	seen, err := lru.New(seenCapacity)
	if err != nil {
		return nil, fmt.Errorf("analysisjob: creating dedup cache: %w", err)
	}
	set := make(map[market.CoinID]struct{}, len(coins))
	for _, c := range coins {
		set[c] = struct{}{}
	}
	return &Job{
		Timeframe:            timeframe,
		host:                 host,
		coinsToProcess:       set,
		counter:              len(coins) + 1,
		correlationThreshold: correlationThreshold,
		rsiPeriod:            rsiPeriod,
		seen:                 seen,
	}, nil
}

// SetBTCRSI records BTC's RSI series for this timeframe, used by the
// correlation pass at quorum. It does not itself count as a decrement;
// the caller must also call Decrement for BTC's coin id.
func (j *Job) SetBTCRSI(rsi market.RSISeries) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := rsi
	j.btcRSI = &r
}

// Decrement records one outcome for coinID, deduplicated by
// fingerprint. When this call brings the job to quorum, Decrement
// itself runs the correlation pass and publishes AnalysisJobCompleted
// exactly once (spec §4.6's invariant); the caller need not act
// further.
func (j *Job) Decrement(coinID market.CoinID) {
	fingerprint := fmt.Sprintf("%s|%s|decrement", coinID, j.Timeframe)

	j.mu.Lock()
	if j.completed {
		j.mu.Unlock()
		return
	}
	if _, ok := j.seen.Get(fingerprint); ok {
		j.mu.Unlock()
		return
	}
	j.seen.Add(fingerprint, struct{}{})
	j.counter--
	reachedQuorum := j.counter <= 0
	var completeNow bool
	if reachedQuorum && !j.completed {
		j.completed = true
		completeNow = true
	}
	j.mu.Unlock()

	if completeNow {
		j.finish()
	}
}

// finish runs the correlation pass (spec §4.4) over every stored coin
// RSI against btc_rsi and publishes AnalysisJobCompleted. Runs exactly
// once per job, guarded by the completed flag under the job's mutex.
func (j *Job) finish() {
	j.mu.Lock()
	btcRSI := j.btcRSI
	coins := make([]market.CoinID, 0, len(j.coinsToProcess))
	for c := range j.coinsToProcess {
		coins = append(coins, c)
	}
	timeframe := j.Timeframe
	threshold := j.correlationThreshold
	period := j.rsiPeriod
	j.mu.Unlock()

	if btcRSI == nil {
		logger.Warn("job reached quorum without btc rsi, completing degraded", "timeframe", timeframe)
		j.host.Publish(events.AnalysisJobCompleted{Timeframe: timeframe})
		return
	}

	btcIndex, btcValues := rsiVectors(*btcRSI)
	for _, coinID := range coins {
		coinRSI, ok := j.host.RSIFor(coinID, timeframe)
		if !ok {
			continue
		}
		coinIndex, coinValues := rsiVectors(coinRSI)
		commonIndex, a, b := correlation.CommonIndex(btcIndex, btcValues, coinIndex, coinValues)
		if len(commonIndex) < period {
			continue
		}
		rho, ok := correlation.Pearson(a, b)
		if !ok || absFloat(rho) < threshold {
			continue
		}
		marketCap := j.host.MarketCapFor(coinID)
		lowCap := marketCap <= j.host.LowCapThreshold()
		result := market.CorrelationResult{
			CoinID:         coinID,
			Timeframe:      timeframe,
			Correlation:    rho,
			MarketCap:      marketCap,
			LowCapQuartile: lowCap,
		}
		j.host.Publish(events.CorrelationAnalyzed{Result: &result, Timeframe: timeframe})
	}

	j.host.Publish(events.AnalysisJobCompleted{Timeframe: timeframe})
}

func rsiVectors(r market.RSISeries) (index []int64, values []float64) {
	for _, p := range r.Points {
		if !p.Present {
			continue
		}
		index = append(index, p.Timestamp.UnixMilli())
		values = append(values, p.Value)
	}
	return index, values
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
