// Command rsicorrelation is the CLI entry point of spec §1/§6,
// grounded on the teacher's own cli.v1 command shape
// (cmd/utils/nodecmd/dumpconfigcmd.go): a `--config` flag, a
// `dumpconfig` subcommand, and a default `run` action.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/venantvr/rsi-correlation/config"
	"github.com/venantvr/rsi-correlation/datafetcher"
	"github.com/venantvr/rsi-correlation/db"
	"github.com/venantvr/rsi-correlation/display"
	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/eventbus"
	"github.com/venantvr/rsi-correlation/log"
	"github.com/venantvr/rsi-correlation/orchestrator"
	"github.com/venantvr/rsi-correlation/rsi"
	"github.com/venantvr/rsi-correlation/session"
)

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

var dbPathFlag = cli.StringFlag{
	Name:  "db-path",
	Usage: "override the SQLite database path",
}

func main() {
	app := cli.NewApp()
	app.Name = "rsicorrelation"
	app.Usage = "scan a crypto universe for low-cap assets whose RSI tracks BTC"
	app.Flags = []cli.Flag{configFileFlag, dbPathFlag}
	app.Action = runAction
	app.Commands = []cli.Command{
		{
			Name:   "dumpconfig",
			Usage:  "show the configuration that would be used",
			Flags:  []cli.Flag{configFileFlag},
			Action: dumpConfigAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dumpConfigAction(c *cli.Context) error {
	file, err := config.Load(c.String(configFileFlag.Name))
	if err != nil {
		return err
	}
	out, err := config.Dump(file)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runAction(c *cli.Context) error {
	file, err := config.Load(c.String(configFileFlag.Name))
	if err != nil {
		log.NewModuleLogger("main").Crit("loading configuration failed", "err", err)
		return err
	}
	if dbPath := c.String(dbPathFlag.Name); dbPath != "" {
		file.DBPath = dbPath
	}

	sess, err := session.New(file.ToSessionConfig())
	if err != nil {
		log.NewModuleLogger("main").Crit("configuration invalid, exiting", "err", err)
		return err
	}

	logger := log.NewModuleLogger("main")
	logger.Info("starting analysis session", "guid", sess.GUID)

	bus := eventbus.New(eventbus.WithInboxCapacity(1024))

	dbQueueCapacity := 4 * len(sess.Config.Timeframes) * sess.Config.TopNCoins
	dbManager, err := db.Open(file.DBPath, sess.GUID, dbQueueCapacity)
	if err != nil {
		logger.Crit("opening database failed", "err", err)
		return err
	}

	orch := orchestrator.New(busAdapter{bus}, sess, dbManager)

	marketListClient := datafetcher.NewHTTPMarketListClient(
		"https://api.coingecko.com/api/v3/coins/markets",
		"https://api.binance.com/api/v3/exchangeInfo",
	)
	exchangeClient := datafetcher.NewHTTPExchangeClient("https://api.binance.com")
	fetcher := datafetcher.New(busAdapter{bus}, marketListClient, exchangeClient, "USDC")

	rsiWorker := rsi.NewWorker(busAdapter{bus}, sess.Config.RSIPeriod)
	displayAgent := display.New(busAdapter{bus})

	registerSubscriptions(bus, orch, fetcher, rsiWorker, dbManager, displayAgent)

	orch.RegisterWorker(fetcher.Base)
	orch.RegisterWorker(rsiWorker.Base)
	orch.RegisterWorker(displayAgent.Base)

	if err := bus.Start(); err != nil {
		logger.Crit("starting service bus failed", "err", err)
		return err
	}
	fetcher.Start()
	rsiWorker.Start()
	dbManager.Start()
	displayAgent.Start()

	bus.Publish(events.AnalysisConfigurationProvided{SessionGUID: sess.GUID, Config: sess.Config}, "main")
	bus.Publish(events.RunAnalysisRequested{}, "main")

	<-orch.Done()
	failed := orch.Failed()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	shutdownErr := orch.Shutdown(ctx)
	if shutdownErr != nil {
		logger.Error("shutdown encountered an error", "err", shutdownErr)
	}
	if err := bus.Stop(); err != nil {
		logger.Error("stopping service bus failed", "err", err)
	}

	logger.Info("analysis session complete", "guid", sess.GUID)
	switch {
	case failed:
		os.Exit(1)
	case shutdownErr != nil:
		return shutdownErr
	}
	return nil
}

// busAdapter narrows eventbus.Bus to the Publish-only surfaces each
// package's own Bus interface expects.
type busAdapter struct{ bus *eventbus.Bus }

func (a busAdapter) Publish(ev events.Event, producerID string) { a.bus.Publish(ev, producerID) }

func registerSubscriptions(bus *eventbus.Bus, orch *orchestrator.Orchestrator, fetcher *datafetcher.Fetcher,
	rsiWorker *rsi.Worker, dbManager *db.Manager, displayAgent *display.Agent) {

	bus.Subscribe(events.TopicRunAnalysisRequested, func(ev events.Event) {
		orch.HandleRunAnalysisRequested(ev.(events.RunAnalysisRequested))
	})
	bus.Subscribe(events.TopicTopCoinsFetched, func(ev events.Event) {
		orch.HandleTopCoinsFetched(ev.(events.TopCoinsFetched))
	})
	bus.Subscribe(events.TopicPrecisionDataFetched, func(ev events.Event) {
		orch.HandlePrecisionDataFetched(ev.(events.PrecisionDataFetched))
		dbManager.HandlePrecisionDataFetched(ev.(events.PrecisionDataFetched))
	})
	bus.Subscribe(events.TopicSingleCoinFetched, func(ev events.Event) {
		dbManager.HandleSingleCoinFetched(ev.(events.SingleCoinFetched))
	})
	bus.Subscribe(events.TopicHistoricalPricesFetched, func(ev events.Event) {
		orch.HandleHistoricalPricesFetched(ev.(events.HistoricalPricesFetched))
		dbManager.HandleHistoricalPricesFetched(ev.(events.HistoricalPricesFetched))
	})
	bus.Subscribe(events.TopicRSICalculated, func(ev events.Event) {
		orch.HandleRSICalculated(ev.(events.RSICalculated))
		dbManager.HandleRSICalculated(ev.(events.RSICalculated))
	})
	bus.Subscribe(events.TopicCorrelationAnalyzed, func(ev events.Event) {
		orch.HandleCorrelationAnalyzed(ev.(events.CorrelationAnalyzed))
		dbManager.HandleCorrelationAnalyzed(ev.(events.CorrelationAnalyzed))
	})
	bus.Subscribe(events.TopicAnalysisJobCompleted, func(ev events.Event) {
		orch.HandleAnalysisJobCompleted(ev.(events.AnalysisJobCompleted))
	})
	bus.Subscribe(events.TopicFinalResultsReady, func(ev events.Event) {
		displayAgent.HandleFinalResultsReady(ev.(events.FinalResultsReady))
	})
	bus.Subscribe(events.TopicDisplayCompleted, func(ev events.Event) {
		orch.HandleDisplayCompleted(ev.(events.DisplayCompleted))
	})
	bus.Subscribe(events.TopicWorkerFailed, func(ev events.Event) {
		orch.HandleWorkerFailed(ev.(events.WorkerFailed))
	})

	bus.Subscribe(events.TopicFetchTopCoinsRequested, func(ev events.Event) {
		fetcher.HandleFetchTopCoinsRequested(ev.(events.FetchTopCoinsRequested))
	})
	bus.Subscribe(events.TopicFetchHistoricalPricesRequested, func(ev events.Event) {
		fetcher.HandleFetchHistoricalPricesRequested(ev.(events.FetchHistoricalPricesRequested))
	})
	bus.Subscribe(events.TopicFetchPrecisionDataRequested, func(ev events.Event) {
		fetcher.HandleFetchPrecisionDataRequested(ev.(events.FetchPrecisionDataRequested))
	})
	bus.Subscribe(events.TopicCalculateRSIRequested, func(ev events.Event) {
		rsiWorker.HandleCalculateRSIRequested(ev.(events.CalculateRSIRequested))
	})
}
