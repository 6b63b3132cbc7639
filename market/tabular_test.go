package market

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPricesSplitRoundTrip(t *testing.T) {
	coinID := CoinID{ID: "bitcoin", Symbol: "BTC"}
	series := PricesSeries{
		CoinID:    coinID,
		Timeframe: "1d",
		Bars: []PriceBar{
			{Timestamp: time.Unix(0, 0).UTC(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
			{Timestamp: time.Unix(86400, 0).UTC(), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 200},
		},
	}

	frame := series.MarshalSplit()
	var decoded PricesSeries
	decoded.CoinID, decoded.Timeframe = coinID, "1d"
	assert.NoError(t, decoded.UnmarshalSplit(frame))
	assert.Equal(t, series, decoded)
}

func TestPricesSeries_UnmarshalSplit_ColumnMismatch(t *testing.T) {
	frame := SplitFrame{Columns: []string{"close"}}
	var decoded PricesSeries
	assert.Error(t, decoded.UnmarshalSplit(frame))
}

func TestPricesSeries_JSONRoundTrip_UsesSplitOrientation(t *testing.T) {
	series := PricesSeries{
		CoinID:    CoinID{ID: "bitcoin", Symbol: "BTC"},
		Timeframe: "1d",
		Bars: []PriceBar{
			{Timestamp: time.Unix(0, 0).UTC(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		},
	}

	data, err := json.Marshal(series)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"columns":["open","high","low","close","volume"]`)

	var decoded PricesSeries
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, series, decoded)
}

func TestRSISplitRoundTrip_DropsAbsentPoints(t *testing.T) {
	coinID := CoinID{ID: "bitcoin", Symbol: "BTC"}
	series := RSISeries{
		CoinID:    coinID,
		Timeframe: "1d",
		Points: []RSIPoint{
			{Timestamp: time.Unix(0, 0).UTC(), Value: 0, Present: false},
			{Timestamp: time.Unix(86400, 0).UTC(), Value: 55.5, Present: true},
		},
	}

	frame := series.MarshalSplit()
	assert.Len(t, frame.Index, 1)

	var decoded RSISeries
	decoded.CoinID, decoded.Timeframe = coinID, "1d"
	assert.NoError(t, decoded.UnmarshalSplit(frame))
	assert.Len(t, decoded.Points, 1)
	assert.InDelta(t, 55.5, decoded.Points[0].Value, 1e-9)
	assert.True(t, decoded.Points[0].Present)
}

func TestRSISeries_UnmarshalSplit_RowArityMismatch(t *testing.T) {
	frame := SplitFrame{Columns: []string{"rsi"}, Index: []int64{0}, Data: [][]float64{{1, 2}}}
	var decoded RSISeries
	assert.Error(t, decoded.UnmarshalSplit(frame))
}

func TestRSISeries_JSONRoundTrip_UsesSplitOrientation(t *testing.T) {
	series := RSISeries{
		CoinID:    CoinID{ID: "bitcoin", Symbol: "BTC"},
		Timeframe: "1d",
		Points:    []RSIPoint{{Timestamp: time.Unix(0, 0).UTC(), Value: 42, Present: true}},
	}

	data, err := json.Marshal(series)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"columns":["rsi"]`)

	var decoded RSISeries
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, series, decoded)
}
