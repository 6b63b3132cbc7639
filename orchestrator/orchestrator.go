// Package orchestrator implements the Orchestrator (C7) of spec §4.3:
// the session state machine, seed join, coin filter, low-cap
// threshold, per-timeframe dispatch, and shutdown fan-out. Grounded on
// the teacher's own boolean-guarded phase transitions in
// datasync/chaindatafetcher/chaindata_fetcher.go
// (fetchingStarted/rangeFetchingStarted), generalized into an explicit
// state enum, and on original_source/crypto_analyzer.py for the
// filter/threshold/dispatch semantics this component owns.
package orchestrator

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/venantvr/rsi-correlation/analysisjob"
	"github.com/venantvr/rsi-correlation/db"
	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/log"
	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/session"
)

// State is the session state machine of spec §4.3.
type State int

const (
	StateInit State = iota
	StateFetchingSeeds
	StateDispatching
	StateJoinJobs
	StateAwaitDisplay
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateFetchingSeeds:
		return "FETCHING_SEEDS"
	case StateDispatching:
		return "DISPATCHING"
	case StateJoinJobs:
		return "JOIN_JOBS"
	case StateAwaitDisplay:
		return "AWAIT_DISPLAY"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Bus is the narrow service-bus surface the Orchestrator needs.
type Bus interface {
	Publish(ev events.Event, producerID string)
}

// Stopper is anything the Orchestrator shuts down at session end. Each
// worker.Base satisfies this via its Stop method.
type Stopper interface {
	Stop()
}

type rsiKey struct {
	coinID    market.CoinID
	timeframe string
}

const producerID = "orchestrator"

var logger = log.NewModuleLogger("orchestrator")

// Orchestrator is the Orchestrator worker (C7).
type Orchestrator struct {
	bus     Bus
	sess    *session.Session
	dbStore *db.Manager

	mu              sync.Mutex
	state           State
	gotTopCoins     bool
	gotPrecision    bool
	dispatched      bool
	coins           []market.Coin
	precisionData   []market.PrecisionData
	marketCapByCoin map[market.CoinID]float64
	lowCapThreshold float64
	rsiResults      map[rsiKey]market.RSISeries
	jobs            map[string]*analysisjob.Job
	pendingJobs     int
	results         []market.CorrelationResult

	workersMu sync.Mutex
	workers   []Stopper

	doneOnce sync.Once
	done     chan struct{}
	failed   bool
}

// New constructs an Orchestrator for sess, publishing through bus and
// ultimately draining dbStore last on shutdown (spec §4.8).
func New(bus Bus, sess *session.Session, dbStore *db.Manager) *Orchestrator {
	return &Orchestrator{
		bus:             bus,
		sess:            sess,
		dbStore:         dbStore,
		state:           StateInit,
		marketCapByCoin: make(map[market.CoinID]float64),
		rsiResults:      make(map[rsiKey]market.RSISeries),
		jobs:            make(map[string]*analysisjob.Job),
		done:            make(chan struct{}),
	}
}

// RegisterWorker records a worker to be stopped, in registration
// order, during Shutdown (stopped in reverse order, per spec §5).
func (o *Orchestrator) RegisterWorker(w Stopper) {
	o.workersMu.Lock()
	defer o.workersMu.Unlock()
	o.workers = append(o.workers, w)
}

// Done returns a channel closed once AllProcessingCompleted has fired,
// for the entry point's main wait.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// State reports the current state, for tests and diagnostics.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// HandleRunAnalysisRequested starts the pipeline (spec §4.3: INIT →
// FETCHING_SEEDS).
func (o *Orchestrator) HandleRunAnalysisRequested(events.RunAnalysisRequested) {
	o.mu.Lock()
	if o.state != StateInit {
		o.mu.Unlock()
		return
	}
	o.state = StateFetchingSeeds
	o.mu.Unlock()

	o.bus.Publish(events.FetchTopCoinsRequested{N: o.sess.Config.TopNCoins}, producerID)
	o.bus.Publish(events.FetchPrecisionDataRequested{}, producerID)
}

// HandleTopCoinsFetched records the coin-universe seed.
func (o *Orchestrator) HandleTopCoinsFetched(ev events.TopCoinsFetched) {
	o.mu.Lock()
	o.coins = ev.Coins
	o.gotTopCoins = true
	ready := o.gotTopCoins && o.gotPrecision && !o.dispatched
	if ready {
		o.dispatched = true
	}
	o.mu.Unlock()
	if ready {
		o.dispatch()
	}
}

// HandlePrecisionDataFetched records the market-precision seed.
func (o *Orchestrator) HandlePrecisionDataFetched(ev events.PrecisionDataFetched) {
	o.mu.Lock()
	o.precisionData = ev.PrecisionData
	o.gotPrecision = true
	ready := o.gotTopCoins && o.gotPrecision && !o.dispatched
	if ready {
		o.dispatched = true
	}
	o.mu.Unlock()
	if ready {
		o.dispatch()
	}
}

// dispatch implements spec §4.3's filter, low-cap threshold and
// per-timeframe BTC-first dispatch. Runs exactly once (guarded by the
// dispatched flag set under lock by the caller before invoking this).
func (o *Orchestrator) dispatch() {
	o.mu.Lock()
	o.state = StateDispatching

	baseAssetsOnUSDC := make(map[string]struct{})
	for _, p := range o.precisionData {
		if p.QuoteAsset == "USDC" {
			baseAssetsOnUSDC[p.BaseAsset] = struct{}{}
		}
	}

	var retained []market.Coin
	var positiveCaps []float64
	for _, c := range o.coins {
		if _, ok := baseAssetsOnUSDC[upper(c.Symbol)]; !ok {
			continue
		}
		retained = append(retained, c)
		o.marketCapByCoin[c.CoinID()] = c.MarketCap
		if c.MarketCap > 0 {
			positiveCaps = append(positiveCaps, c.MarketCap)
		}
	}

	if len(positiveCaps) == 0 {
		o.lowCapThreshold = posInf
	} else {
		o.lowCapThreshold = percentile(positiveCaps, o.sess.Config.LowCapPercentile)
	}
	logger.Info("low-cap threshold computed", "threshold", o.lowCapThreshold)

	var btc market.Coin
	var haveBTC bool
	var others []market.Coin
	for _, c := range retained {
		if upper(c.Symbol) == "BTC" {
			btc = c
			haveBTC = true
			continue
		}
		others = append(others, c)
	}

	timeframes := o.sess.Config.Timeframes
	o.pendingJobs = len(timeframes)

	coinIDs := make([]market.CoinID, len(others))
	for i, c := range others {
		coinIDs[i] = c.CoinID()
	}

	jobs := make(map[string]*analysisjob.Job, len(timeframes))
	for _, tf := range timeframes {
		job, err := analysisjob.New(tf, coinIDs, o.sess.Config.CorrelationThreshold, o.sess.Config.RSIPeriod, o)
		if err != nil {
			logger.Error("creating analysis job failed", "timeframe", tf, "err", err)
			continue
		}
		jobs[tf] = job
	}
	o.jobs = jobs
	o.state = StateJoinJobs
	o.mu.Unlock()

	weeks := o.sess.Config.Weeks
	for _, tf := range timeframes {
		if haveBTC {
			o.bus.Publish(events.FetchHistoricalPricesRequested{CoinID: btc.CoinID(), Weeks: weeks, Timeframe: tf}, producerID)
		} else {
			// No BTC in the retained universe: the job's counter still
			// carries the +1 BTC slot (spec §9 resolved open question),
			// so account for it immediately or the job never reaches
			// quorum.
			logger.Warn("no BTC in retained universe, job will complete degraded", "timeframe", tf)
			o.decrementJob(tf, market.CoinID{ID: "bitcoin", Symbol: "BTC"})
		}
		for _, c := range others {
			o.bus.Publish(events.FetchHistoricalPricesRequested{CoinID: c.CoinID(), Weeks: weeks, Timeframe: tf}, producerID)
		}
	}
}

// HandleHistoricalPricesFetched requests RSI for a successful fetch,
// or treats a null body as a per-coin failure (spec §4.7, §7 class 2).
func (o *Orchestrator) HandleHistoricalPricesFetched(ev events.HistoricalPricesFetched) {
	if ev.Prices == nil {
		o.bus.Publish(events.CoinProcessingFailed{CoinID: ev.CoinID, Timeframe: ev.Timeframe}, producerID)
		o.decrementJob(ev.Timeframe, ev.CoinID)
		return
	}
	o.bus.Publish(events.CalculateRSIRequested{CoinID: ev.CoinID, Prices: ev.Prices, Timeframe: ev.Timeframe}, producerID)
}

// HandleRSICalculated stores the RSI series and decrements the job
// counter for this coin, or treats a nil RSI as a per-coin failure.
func (o *Orchestrator) HandleRSICalculated(ev events.RSICalculated) {
	if ev.RSI == nil {
		o.bus.Publish(events.CoinProcessingFailed{CoinID: ev.CoinID, Timeframe: ev.Timeframe}, producerID)
		o.decrementJob(ev.Timeframe, ev.CoinID)
		return
	}

	o.mu.Lock()
	o.rsiResults[rsiKey{coinID: ev.CoinID, timeframe: ev.Timeframe}] = *ev.RSI
	job := o.jobs[ev.Timeframe]
	o.mu.Unlock()

	if job != nil && upper(ev.CoinID.Symbol) == "BTC" {
		job.SetBTCRSI(*ev.RSI)
	}
	o.decrementJob(ev.Timeframe, ev.CoinID)
}

func (o *Orchestrator) decrementJob(timeframe string, coinID market.CoinID) {
	o.mu.Lock()
	job := o.jobs[timeframe]
	o.mu.Unlock()
	if job == nil {
		return
	}
	job.Decrement(coinID)
}

// HandleCorrelationAnalyzed appends a correlation result to the
// session's aggregate (spec §4.3 aggregation).
func (o *Orchestrator) HandleCorrelationAnalyzed(ev events.CorrelationAnalyzed) {
	if ev.Result == nil {
		return
	}
	o.mu.Lock()
	o.results = append(o.results, *ev.Result)
	o.mu.Unlock()
}

// HandleAnalysisJobCompleted decrements the pending-jobs counter; when
// it reaches zero, publishes FinalResultsReady (spec §4.3).
func (o *Orchestrator) HandleAnalysisJobCompleted(events.AnalysisJobCompleted) {
	o.mu.Lock()
	o.pendingJobs--
	done := o.pendingJobs <= 0
	var results []market.CorrelationResult
	var weeks int
	var timeframes []string
	if done {
		o.state = StateAwaitDisplay
		results = append(results, o.results...)
		weeks = o.sess.Config.Weeks
		timeframes = o.sess.Config.Timeframes
	}
	o.mu.Unlock()

	if done {
		sort.Slice(results, func(i, j int) bool {
			if absFloat(results[i].Correlation) != absFloat(results[j].Correlation) {
				return absFloat(results[i].Correlation) > absFloat(results[j].Correlation)
			}
			return results[i].MarketCap < results[j].MarketCap
		})
		o.bus.Publish(events.FinalResultsReady{Results: results, Weeks: weeks, Timeframes: timeframes}, producerID)
	}
}

// HandleDisplayCompleted unblocks the main wait (spec §4.3: AWAIT_DISPLAY → SHUTDOWN).
func (o *Orchestrator) HandleDisplayCompleted(events.DisplayCompleted) {
	o.finish()
}

// HandleWorkerFailed unblocks the main wait immediately, from any
// state (spec §4.3: any → SHUTDOWN), and marks the session as failed
// so the entry point exits non-zero (spec §6).
func (o *Orchestrator) HandleWorkerFailed(ev events.WorkerFailed) {
	logger.Error("worker failed, triggering shutdown", "worker", ev.Worker, "reason", ev.Reason)
	o.mu.Lock()
	o.failed = true
	o.mu.Unlock()
	o.finish()
}

// Failed reports whether a WorkerFailed event triggered shutdown, for
// the entry point's exit-code decision (spec §6).
func (o *Orchestrator) Failed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.state = StateShutdown
	o.mu.Unlock()
	o.bus.Publish(events.AllProcessingCompleted{}, producerID)
	o.doneOnce.Do(func() { close(o.done) })
}

// Shutdown stops every registered worker one at a time in reverse
// registration order, recovering and logging a panic from any worker's
// Stop so the remaining workers are still stopped, then drains and
// closes the Database Manager last (spec §4.8, §5).
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.workersMu.Lock()
	workers := make([]Stopper, len(o.workers))
	copy(workers, o.workers)
	o.workersMu.Unlock()

	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("worker stop panicked", "recovered", r)
				}
			}()
			w.Stop()
		}()
	}

	if o.dbStore != nil {
		if err := o.dbStore.WaitForQueueCompletion(30 * time.Second); err != nil {
			logger.Warn("database manager did not drain in time", "err", err)
		}
		return o.dbStore.Close()
	}
	return nil
}

// RSIFor implements analysisjob.Host.
func (o *Orchestrator) RSIFor(coinID market.CoinID, timeframe string) (market.RSISeries, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rsiResults[rsiKey{coinID: coinID, timeframe: timeframe}]
	return r, ok
}

// MarketCapFor implements analysisjob.Host.
func (o *Orchestrator) MarketCapFor(coinID market.CoinID) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.marketCapByCoin[coinID]
}

// LowCapThreshold implements analysisjob.Host.
func (o *Orchestrator) LowCapThreshold() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lowCapThreshold
}

// Publish implements analysisjob.Host.
func (o *Orchestrator) Publish(ev events.Event) {
	o.bus.Publish(ev, producerID)
}

var posInf = math.Inf(1)

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// percentile computes the p-th percentile (0..100) over values using
// linear interpolation between closest ranks, matching numpy's default
// method that original_source/crypto_analyzer.py relies on
// (np.percentile).
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return posInf
	}
	if n == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(n-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
