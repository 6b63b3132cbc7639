package datafetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/venantvr/rsi-correlation/market"
)

// httpExchangeClient and httpMarketListClient are minimal, concrete
// implementations of ExchangeClient and MarketListClient against
// Binance-shaped REST endpoints, using only net/http + encoding/json
// (spec §1: these collaborators are "contracts only"; no HTTP client
// library appears anywhere in the retrieval pack's go.mod set beyond
// blockchain-JSON-RPC shaped clients that are not a fit for a REST
// exchange API — see DESIGN.md). Tests exercise ExchangeClient/
// MarketListClient through fakes, never this implementation.
type httpExchangeClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPExchangeClient constructs an ExchangeClient against baseURL
// (e.g. "https://api.binance.com").
func NewHTTPExchangeClient(baseURL string) ExchangeClient {
	return &httpExchangeClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *httpExchangeClient) OHLCV(ctx context.Context, symbol, timeframe string, sinceMillis int64, limit int) ([]market.PriceBar, error) {
	tradingSymbol := toExchangeSymbol(symbol)
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&startTime=%d&limit=%d",
		c.baseURL, tradingSymbol, timeframe, sinceMillis, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange klines request failed: status %d", resp.StatusCode)
	}

	var rows [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding klines response: %w", err)
	}

	bars := make([]market.PriceBar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseKline(row)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKline(row []interface{}) (market.PriceBar, error) {
	if len(row) < 6 {
		return market.PriceBar{}, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
	}
	openTimeMs, ok := row[0].(float64)
	if !ok {
		return market.PriceBar{}, fmt.Errorf("kline open time is not numeric")
	}
	open, err := parseFloatField(row[1])
	if err != nil {
		return market.PriceBar{}, err
	}
	high, err := parseFloatField(row[2])
	if err != nil {
		return market.PriceBar{}, err
	}
	low, err := parseFloatField(row[3])
	if err != nil {
		return market.PriceBar{}, err
	}
	closePrice, err := parseFloatField(row[4])
	if err != nil {
		return market.PriceBar{}, err
	}
	volume, err := parseFloatField(row[5])
	if err != nil {
		return market.PriceBar{}, err
	}
	return market.PriceBar{
		Timestamp: time.UnixMilli(int64(openTimeMs)).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

func parseFloatField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("kline field is not a string")
	}
	return strconv.ParseFloat(s, 64)
}

type httpMarketListClient struct {
	coinListURL string
	exchangeURL string
	http        *http.Client
}

// NewHTTPMarketListClient constructs a MarketListClient against a
// coin-listing endpoint (coinListURL) and an exchange-info endpoint
// (exchangeURL).
func NewHTTPMarketListClient(coinListURL, exchangeURL string) MarketListClient {
	return &httpMarketListClient{coinListURL: coinListURL, exchangeURL: exchangeURL, http: &http.Client{Timeout: 30 * time.Second}}
}

type coinListEntry struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	MarketCap float64 `json:"market_cap"`
}

func (c *httpMarketListClient) TopCoins(ctx context.Context, page, perPage int) ([]market.Coin, error) {
	url := fmt.Sprintf("%s?vs_currency=usd&per_page=%d&page=%d", c.coinListURL, perPage, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coin list request failed: status %d", resp.StatusCode)
	}

	var entries []coinListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding coin list response: %w", err)
	}

	coins := make([]market.Coin, len(entries))
	for i, e := range entries {
		coins[i] = market.Coin{ID: e.ID, Symbol: e.Symbol, MarketCap: e.MarketCap}
	}
	return coins, nil
}

type exchangeInfoResponse struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol     string        `json:"symbol"`
	BaseAsset  string        `json:"baseAsset"`
	QuoteAsset string        `json:"quoteAsset"`
	Status     string        `json:"status"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	TickSize    string `json:"tickSize"`
	MinNotional string `json:"minNotional"`
}

func (c *httpMarketListClient) Markets(ctx context.Context) ([]market.PrecisionData, error) {
	symbols, err := c.fetchExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}

	var out []market.PrecisionData
	for _, s := range symbols {
		if s.Status != "TRADING" {
			continue
		}
		var lotSize, priceFilter, notional *symbolFilter
		for i := range s.Filters {
			switch s.Filters[i].FilterType {
			case "LOT_SIZE":
				lotSize = &s.Filters[i]
			case "PRICE_FILTER":
				priceFilter = &s.Filters[i]
			case "NOTIONAL", "MIN_NOTIONAL":
				notional = &s.Filters[i]
			}
		}
		if lotSize == nil || priceFilter == nil || notional == nil {
			continue
		}
		out = append(out, market.PrecisionData{
			Symbol:      s.Symbol,
			BaseAsset:   s.BaseAsset,
			QuoteAsset:  s.QuoteAsset,
			Status:      s.Status == "TRADING",
			StepSize:    parseOrZero(lotSize.StepSize),
			MinQty:      parseOrZero(lotSize.MinQty),
			TickSize:    parseOrZero(priceFilter.TickSize),
			MinNotional: parseOrZero(notional.MinNotional),
		})
	}
	return out, nil
}

func (c *httpMarketListClient) HasSymbol(ctx context.Context, symbol string) (bool, error) {
	symbols, err := c.fetchExchangeInfo(ctx)
	if err != nil {
		return false, err
	}
	tradingSymbol := toExchangeSymbol(symbol)
	for _, s := range symbols {
		if s.Symbol == tradingSymbol {
			return true, nil
		}
	}
	return false, nil
}

func (c *httpMarketListClient) fetchExchangeInfo(ctx context.Context) ([]exchangeSymbol, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exchangeURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange info request failed: status %d", resp.StatusCode)
	}
	var info exchangeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding exchange info response: %w", err)
	}
	return info.Symbols, nil
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// toExchangeSymbol converts "BTC/USDC" to the exchange's concatenated
// form "BTCUSDC".
func toExchangeSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] != '/' {
			out = append(out, symbol[i])
		}
	}
	return string(out)
}
