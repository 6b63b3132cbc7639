package market

import (
	"encoding/json"
	"fmt"
	"time"
)

// SplitFrame is the portable tabular encoding spec §6 requires for
// price/RSI payloads crossing the bus boundary: a split orientation of
// {index, columns, data} with millisecond-since-epoch UTC timestamps.
// PricesSeries and RSISeries marshal to and from this shape via
// MarshalSplit/UnmarshalSplit, and their MarshalJSON/UnmarshalJSON
// methods route through it, so any JSON encoding of an event payload
// carrying one of these series (events.HistoricalPricesFetched,
// events.RSICalculated) uses this format automatically, even though the
// bus dispatches in-process today (spec §9's design note).
type SplitFrame struct {
	Index   []int64     `json:"index"`
	Columns []string    `json:"columns"`
	Data    [][]float64 `json:"data"`
}

var priceColumns = []string{"open", "high", "low", "close", "volume"}

// MarshalSplit encodes p's bars into the split orientation.
func (p PricesSeries) MarshalSplit() SplitFrame {
	f := SplitFrame{Columns: priceColumns}
	for _, bar := range p.Bars {
		f.Index = append(f.Index, bar.Timestamp.UnixMilli())
		f.Data = append(f.Data, []float64{bar.Open, bar.High, bar.Low, bar.Close, bar.Volume})
	}
	return f
}

// UnmarshalSplit decodes f into p's Bars, leaving CoinID/Timeframe
// untouched.
func (p *PricesSeries) UnmarshalSplit(f SplitFrame) error {
	if len(f.Columns) != len(priceColumns) {
		return fmt.Errorf("prices split frame: expected %d columns, got %d", len(priceColumns), len(f.Columns))
	}
	bars := make([]PriceBar, len(f.Index))
	for i, ts := range f.Index {
		if len(f.Data[i]) != 5 {
			return fmt.Errorf("prices split frame: row %d has %d fields, want 5", i, len(f.Data[i]))
		}
		bars[i] = PriceBar{
			Timestamp: time.UnixMilli(ts).UTC(),
			Open:      f.Data[i][0],
			High:      f.Data[i][1],
			Low:       f.Data[i][2],
			Close:     f.Data[i][3],
			Volume:    f.Data[i][4],
		}
	}
	p.Bars = bars
	return nil
}

type pricesWire struct {
	CoinID    CoinID
	Timeframe string
	Frame     SplitFrame
}

// MarshalJSON encodes p using the split-orientation wire format rather
// than a field-for-field struct dump.
func (p PricesSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(pricesWire{CoinID: p.CoinID, Timeframe: p.Timeframe, Frame: p.MarshalSplit()})
}

// UnmarshalJSON decodes a split-orientation payload produced by
// MarshalJSON back into p.
func (p *PricesSeries) UnmarshalJSON(data []byte) error {
	var w pricesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.CoinID = w.CoinID
	p.Timeframe = w.Timeframe
	return p.UnmarshalSplit(w.Frame)
}

var rsiColumns = []string{"rsi"}

// MarshalSplit encodes r's present points into the split orientation,
// emitting NaN-free rows only: an absent point (spec §3: "every value
// ∈[0,100] or absent") is dropped from the frame rather than encoded as
// NaN, so the wire format stays type-stable.
func (r RSISeries) MarshalSplit() SplitFrame {
	f := SplitFrame{Columns: rsiColumns}
	for _, pt := range r.Points {
		if !pt.Present {
			continue
		}
		f.Index = append(f.Index, pt.Timestamp.UnixMilli())
		f.Data = append(f.Data, []float64{pt.Value})
	}
	return f
}

// UnmarshalSplit decodes f into r's Points (all present, since absent
// points were never encoded), leaving CoinID/Timeframe untouched.
func (r *RSISeries) UnmarshalSplit(f SplitFrame) error {
	points := make([]RSIPoint, len(f.Index))
	for i, ts := range f.Index {
		if len(f.Data[i]) != 1 {
			return fmt.Errorf("rsi split frame: row %d has %d fields, want 1", i, len(f.Data[i]))
		}
		points[i] = RSIPoint{Timestamp: time.UnixMilli(ts).UTC(), Value: f.Data[i][0], Present: true}
	}
	r.Points = points
	return nil
}

type rsiWire struct {
	CoinID    CoinID
	Timeframe string
	Frame     SplitFrame
}

// MarshalJSON encodes r using the split-orientation wire format.
func (r RSISeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(rsiWire{CoinID: r.CoinID, Timeframe: r.Timeframe, Frame: r.MarshalSplit()})
}

// UnmarshalJSON decodes a split-orientation payload produced by
// MarshalJSON back into r.
func (r *RSISeries) UnmarshalJSON(data []byte) error {
	var w rsiWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.CoinID = w.CoinID
	r.Timeframe = w.Timeframe
	return r.UnmarshalSplit(w.Frame)
}
