// Package correlation implements the common-index intersection and
// Pearson correlation coefficient of spec §4.4, grounded on
// original_source/crypto_analyzer.py's correlation pass (which aligns
// two price/RSI series on shared timestamps before calling
// numpy.corrcoef). No correlation/statistics library appears anywhere
// in _examples/, so this stays a plain standard-library numeric
// function as the Python original itself hand-rolled the index
// intersection before delegating only the final coefficient to numpy.
package correlation

import "math"

// CommonIndex returns the timestamps (as millisecond epoch) present in
// both a and b, in the order they appear in aIndex (ascending when
// aIndex is), along with the two corresponding value slices aligned to
// that shared index.
func CommonIndex(aIndex []int64, aValues []float64, bIndex []int64, bValues []float64) (index []int64, a, b []float64) {
	bPos := make(map[int64]int, len(bIndex))
	for i, ts := range bIndex {
		bPos[ts] = i
	}
	for i, ts := range aIndex {
		if j, ok := bPos[ts]; ok {
			index = append(index, ts)
			a = append(a, aValues[i])
			b = append(b, bValues[j])
		}
	}
	return index, a, b
}

// Pearson computes the Pearson correlation coefficient between two
// equal-length series. ok is false when fewer than two common points
// exist or either series has zero variance (spec §4.4 edge case: the
// pair is discarded rather than emitting NaN/Inf).
func Pearson(a, b []float64) (rho float64, ok bool) {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0, false
	}

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	rho = cov / math.Sqrt(varA*varB)
	if rho > 1 {
		rho = 1
	} else if rho < -1 {
		rho = -1
	}
	return rho, true
}
