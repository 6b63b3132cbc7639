// Package db implements the Database Manager worker of spec §4.8
// (C5): the single exclusive SQLite writer, grounded on
// ChoSanghyuk-blackholedex/internal/db/transaction_recorder.go's
// gorm.Open/AutoMigrate/db.DB()/Close shape, adapted from gorm.io v2 +
// MySQL to the teacher's own pinned jinzhu/gorm v1 API pointed at a
// sqlite3 dialect (spec §4.8, §6), and from a single-row recorder to
// the five batched, insert-or-ignore tables original_source's
// database_manager.py writes.
package db

import (
	"database/sql"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/pkg/errors"

	"github.com/venantvr/rsi-correlation/events"
	"github.com/venantvr/rsi-correlation/log"
	"github.com/venantvr/rsi-correlation/market"
	"github.com/venantvr/rsi-correlation/worker"
)

// tokenRow, priceRow, rsiRow, correlationRow and precisionRow mirror
// the five tables spec §4.8 names, each carrying the primary key
// columns it specifies. gorm's AutoMigrate only needs these for schema
// creation; all row writes go through raw SQL (see inTransaction below),
// since jinzhu/gorm v1 has no Clauses/OnConflict insert-or-ignore API.
type tokenRow struct {
	CoinID      string `gorm:"primary_key;column:coin_id"`
	SessionGUID string `gorm:"primary_key;column:session_guid"`
	Symbol      string
	MarketCap   float64
}

func (tokenRow) TableName() string { return "tokens" }

type priceRow struct {
	CoinID      string `gorm:"primary_key;column:coin_id"`
	Timestamp   string `gorm:"primary_key;column:timestamp"`
	SessionGUID string `gorm:"primary_key;column:session_guid"`
	Timeframe   string `gorm:"primary_key;column:timeframe"`
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

func (priceRow) TableName() string { return "prices" }

type rsiRow struct {
	CoinID      string `gorm:"primary_key;column:coin_id"`
	Timestamp   string `gorm:"primary_key;column:timestamp"`
	SessionGUID string `gorm:"primary_key;column:session_guid"`
	Timeframe   string `gorm:"primary_key;column:timeframe"`
	Value       float64
}

func (rsiRow) TableName() string { return "rsi" }

type correlationRow struct {
	CoinID         string `gorm:"primary_key;column:coin_id"`
	RunTimestamp   string `gorm:"primary_key;column:run_timestamp"`
	SessionGUID    string `gorm:"primary_key;column:session_guid"`
	Timeframe      string `gorm:"primary_key;column:timeframe"`
	Correlation    float64
	MarketCap      float64
	LowCapQuartile bool
}

func (correlationRow) TableName() string { return "correlations" }

type precisionRow struct {
	Symbol             string `gorm:"primary_key;column:symbol"`
	SessionGUID        string `gorm:"primary_key;column:session_guid"`
	BaseAsset          string
	QuoteAsset         string
	Status             bool
	BaseAssetPrecision int
	StepSize           float64
	MinQty             float64
	TickSize           float64
	MinNotional        float64
}

func (precisionRow) TableName() string { return "precision_data" }

// Manager is the Database Manager worker (C5).
type Manager struct {
	*worker.Base

	sessionGUID string
	gdb         *gorm.DB
	sqlDB       *sql.DB
	logger      *log.Logger
}

// Open creates or opens the SQLite file at path, migrates the five
// tables, and returns a Manager ready to Start. Matches spec §4.8's
// "creates these tables if absent" contract.
func Open(path, sessionGUID string, queueCapacity int) (*Manager, error) {
	gdb, err := gorm.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sqlite database %s", path)
	}
	if err := gdb.AutoMigrate(&tokenRow{}, &priceRow{}, &rsiRow{}, &correlationRow{}, &precisionRow{}).Error; err != nil {
		return nil, errors.Wrap(err, "migrating schema")
	}
	m := &Manager{
		Base:        worker.New("db", queueCapacity),
		sessionGUID: sessionGUID,
		gdb:         gdb,
		sqlDB:       gdb.DB(),
		logger:      log.NewModuleLogger("db"),
	}
	return m, nil
}

// HandleSingleCoinFetched enqueues a token insert-or-ignore; an
// existing row for the same (coin_id, session_guid) is left unchanged.
func (m *Manager) HandleSingleCoinFetched(ev events.SingleCoinFetched) {
	m.Submit(func() { m.writeToken(ev.Coin) })
}

// HandleHistoricalPricesFetched enqueues a batched price-row insert.
func (m *Manager) HandleHistoricalPricesFetched(ev events.HistoricalPricesFetched) {
	m.Submit(func() {
		if ev.Prices == nil {
			return
		}
		m.writePrices(ev.CoinID, ev.Timeframe, *ev.Prices)
	})
}

// HandleRSICalculated enqueues a batched RSI-row insert.
func (m *Manager) HandleRSICalculated(ev events.RSICalculated) {
	m.Submit(func() {
		if ev.RSI == nil {
			return
		}
		m.writeRSI(ev.CoinID, ev.Timeframe, *ev.RSI)
	})
}

// HandleCorrelationAnalyzed enqueues a correlation-row insert.
func (m *Manager) HandleCorrelationAnalyzed(ev events.CorrelationAnalyzed) {
	m.Submit(func() {
		if ev.Result == nil {
			return
		}
		m.writeCorrelation(*ev.Result)
	})
}

// HandlePrecisionDataFetched enqueues a batched precision-data insert.
func (m *Manager) HandlePrecisionDataFetched(ev events.PrecisionDataFetched) {
	m.Submit(func() { m.writePrecisionData(ev.PrecisionData) })
}

func (m *Manager) writeToken(c market.Coin) {
	const stmt = `INSERT OR IGNORE INTO tokens (coin_id, session_guid, symbol, market_cap) VALUES (?, ?, ?, ?)`
	if _, err := m.sqlDB.Exec(stmt, c.ID, m.sessionGUID, c.Symbol, c.MarketCap); err != nil {
		m.logger.Error("writing token row failed", "coin_id", c.ID, "err", err)
	}
}

func (m *Manager) writePrices(coinID market.CoinID, timeframe string, series market.PricesSeries) {
	const stmt = `INSERT OR IGNORE INTO prices (coin_id, timestamp, session_guid, timeframe, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	m.inTransaction(stmt, len(series.Bars), func(tx *sql.Tx, prepared *sql.Stmt) error {
		for _, bar := range series.Bars {
			if _, err := prepared.Exec(coinID.ID, isoUTC(bar.Timestamp), m.sessionGUID, timeframe,
				bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Manager) writeRSI(coinID market.CoinID, timeframe string, series market.RSISeries) {
	const stmt = `INSERT OR IGNORE INTO rsi (coin_id, timestamp, session_guid, timeframe, value) VALUES (?, ?, ?, ?, ?)`
	m.inTransaction(stmt, len(series.Points), func(tx *sql.Tx, prepared *sql.Stmt) error {
		for _, p := range series.Points {
			if !p.Present {
				continue
			}
			if _, err := prepared.Exec(coinID.ID, isoUTC(p.Timestamp), m.sessionGUID, timeframe, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Manager) writeCorrelation(r market.CorrelationResult) {
	const stmt = `INSERT OR IGNORE INTO correlations (coin_id, run_timestamp, session_guid, timeframe, correlation, market_cap, low_cap_quartile) VALUES (?, ?, ?, ?, ?, ?, ?)`
	runTimestamp := isoUTC(time.Now().UTC())
	if _, err := m.sqlDB.Exec(stmt, r.CoinID.ID, runTimestamp, m.sessionGUID, r.Timeframe, r.Correlation, r.MarketCap, r.LowCapQuartile); err != nil {
		m.logger.Error("writing correlation row failed", "coin_id", r.CoinID.ID, "err", err)
	}
}

func (m *Manager) writePrecisionData(list []market.PrecisionData) {
	const stmt = `INSERT OR IGNORE INTO precision_data (symbol, session_guid, base_asset, quote_asset, status, base_asset_precision, step_size, min_qty, tick_size, min_notional) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	m.inTransaction(stmt, len(list), func(tx *sql.Tx, prepared *sql.Stmt) error {
		for _, p := range list {
			if _, err := prepared.Exec(p.Symbol, m.sessionGUID, p.BaseAsset, p.QuoteAsset, p.Status,
				p.BaseAssetPrecision, p.StepSize, p.MinQty, p.TickSize, p.MinNotional); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTransaction runs a single batched insert-or-ignore within one
// transaction, committing once per event per spec §4.8.
func (m *Manager) inTransaction(stmt string, rowCount int, fn func(*sql.Tx, *sql.Stmt) error) {
	if rowCount == 0 {
		return
	}
	tx, err := m.sqlDB.Begin()
	if err != nil {
		m.logger.Error("beginning transaction failed", "err", err)
		return
	}
	prepared, err := tx.Prepare(stmt)
	if err != nil {
		m.logger.Error("preparing statement failed", "err", err)
		_ = tx.Rollback()
		return
	}
	defer prepared.Close()

	if err := fn(tx, prepared); err != nil {
		m.logger.Error("batched insert failed, rolling back", "err", err)
		_ = tx.Rollback()
		return
	}
	if err := tx.Commit(); err != nil {
		m.logger.Error("committing transaction failed", "err", err)
	}
}

func isoUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Close drains the task queue, then closes the SQLite connection.
// Mirrors spec §4.8's "stop() must drain the queue before closing the
// connection"; the Orchestrator calls WaitForQueueCompletion(30s)
// before calling Stop/Close.
func (m *Manager) Close() error {
	m.Stop()
	if err := m.sqlDB.Close(); err != nil {
		return errors.Wrap(err, "closing sqlite connection")
	}
	return nil
}
