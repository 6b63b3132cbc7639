// Package rsi computes the Relative Strength Index (spec §4.5),
// grounded on original_source/rsi_calculator.py's rolling-mean
// formulation. The corpus carries no technical-analysis library (a
// full-text search of every example repo under _examples/ turned up
// no RSI/TA-lib/Wilder's-smoothing dependency), so this is a plain
// standard-library numeric function, matching the Python original's
// own hand-rolled implementation rather than a pandas-ta call.
package rsi

// Calculate computes RSI over closes using a simple rolling mean of
// gains and losses across period, returning one value per input bar
// and a false second point for every index below period (no RSI is
// defined until period losses/gains have accumulated). ok reports
// whether closes held at least period+1 points; with fewer, every
// point is reported absent (spec §4.5 precondition failure).
func Calculate(closes []float64, period int) (values []float64, present []bool, ok bool) {
	n := len(closes)
	values = make([]float64, n)
	present = make([]bool, n)
	if period <= 0 || n < period+1 {
		return values, present, false
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var sumGain, sumLoss float64
	for i := 1; i <= period; i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
	}
	values[period], present[period] = rsiFromAverages(sumGain/float64(period), sumLoss/float64(period))

	// Each later point slides the window by one delta (adding delta i,
	// dropping delta i-period), so its mean covers exactly the trailing
	// period deltas of closes[i-period:i+1], rather than carrying a
	// smoothed previous average forward, matching the Python
	// original's rolling(window=period).mean(), not Wilder's smoothing.
	for i := period + 1; i < n; i++ {
		sumGain += gains[i] - gains[i-period]
		sumLoss += losses[i] - losses[i-period]
		values[i], present[i] = rsiFromAverages(sumGain/float64(period), sumLoss/float64(period))
	}

	return values, present, true
}

func rsiFromAverages(avgGain, avgLoss float64) (float64, bool) {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}
