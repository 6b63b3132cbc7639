// Package display implements the Display Agent (C8) of spec §4.9: a
// pure sink that prints the final ranked results and signals
// shutdown. Grounded on original_source/display_agent.py for the
// sorted, signed-correlation print format, using
// github.com/fatih/color (a teacher dependency) for the positive/
// negative correlation colour cue.
package display

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/log"
	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/worker"
)

var logger = log.NewModuleLogger("display")

// Bus is the narrow service-bus surface the Display Agent needs.
type Bus interface {
	Publish(ev events.Event, producerID string)
}

// Agent is the Display Agent worker (C8).
type Agent struct {
	*worker.Base
	bus Bus
}

// New constructs a Display Agent bound to bus.
func New(bus Bus) *Agent {
	return &Agent{Base: worker.New("display", 16), bus: bus}
}

// HandleFinalResultsReady enqueues the print-and-signal task. Results
// arrive already sorted by (-|correlation|, market_cap), the
// Orchestrator's own aggregation-step invariant (spec §4.3).
func (a *Agent) HandleFinalResultsReady(ev events.FinalResultsReady) {
	a.Submit(func() { a.print(ev) })
}

func (a *Agent) print(ev events.FinalResultsReady) {
	fmt.Printf("\nLow-capitalization tokens correlated with BTC RSI (%d weeks):\n", ev.Weeks)
	for _, r := range ev.Results {
		printRow(r)
	}
	logger.Info("final results printed", "count", len(ev.Results))
	a.bus.Publish(events.DisplayCompleted{}, "display")
}

func printRow(r market.CorrelationResult) {
	line := fmt.Sprintf("coin=%s timeframe=%s correlation=%.3f market_cap=$%.2f low_cap_quartile=%v",
		r.CoinID, r.Timeframe, r.Correlation, r.MarketCap, r.LowCapQuartile)
	if r.Correlation >= 0 {
		color.Green(line)
	} else {
		color.Red(line)
	}
}
