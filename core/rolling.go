package core

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Column helpers. Missing values are NaN throughout; derivation never
// replaces NaN with a placeholder, that is left to the fill pass.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func anyPresent(x []float64) bool {
	for _, v := range x {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

// diffRate is the first difference of x divided by the elapsed time. The
// first row has no predecessor and is zero.
func diffRate(x, dt []float64) []float64 {
	out := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		out[i] = (x[i] - x[i-1]) / dt[i]
	}
	return out
}

// magnitude is the Euclidean norm across columns. Missing components count
// as zero; a row where every component is missing stays missing.
func magnitude(cols ...[]float64) []float64 {
	n := len(cols[0])
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		seen := false
		for _, c := range cols {
			if math.IsNaN(c[i]) {
				continue
			}
			seen = true
			sum += c[i] * c[i]
		}
		if !seen {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Sqrt(sum)
	}
	return out
}

func scaled(x []float64, k float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * k
	}
	return out
}

func product(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

// window collects the finite values of x in the trailing window ending at i.
func window(x []float64, i, size int, buf []float64) []float64 {
	buf = buf[:0]
	start := i - size + 1
	if start < 0 {
		start = 0
	}
	for _, v := range x[start : i+1] {
		if finite(v) {
			buf = append(buf, v)
		}
	}
	return buf
}

// rollingStats computes trailing mean, sample standard deviation and max
// with a minimum of one observation. The standard deviation of a single
// observation is undefined and left missing.
func rollingStats(x []float64, size int) (mean, std, peak []float64) {
	n := len(x)
	mean, std, peak = nanSeries(n), nanSeries(n), nanSeries(n)
	buf := make([]float64, 0, size)
	for i := 0; i < n; i++ {
		buf = window(x, i, size, buf)
		if len(buf) == 0 {
			continue
		}
		mean[i] = stat.Mean(buf, nil)
		peak[i] = floats.Max(buf)
		if len(buf) > 1 {
			std[i] = stat.StdDev(buf, nil)
		}
	}
	return mean, std, peak
}

func rollingStd(x []float64, size int) []float64 {
	_, std, _ := rollingStats(x, size)
	return std
}

// interpolateLinear fills missing values from finite neighbours by index
// position. Leading and trailing gaps take the nearest finite value.
func interpolateLinear(x []float64) {
	prev := -1
	for i, v := range x {
		if !finite(v) {
			continue
		}
		switch {
		case prev == -1:
			for j := 0; j < i; j++ {
				if math.IsNaN(x[j]) {
					x[j] = v
				}
			}
		case i-prev > 1:
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				if math.IsNaN(x[j]) {
					x[j] = x[prev] + (v-x[prev])*float64(j-prev)/span
				}
			}
		}
		prev = i
	}
	if prev == -1 {
		return
	}
	for j := prev + 1; j < len(x); j++ {
		if math.IsNaN(x[j]) {
			x[j] = x[prev]
		}
	}
}

// fillForward carries the last finite value forward, then back-fills the
// leading gap.
func fillForward(x []float64) {
	last := math.NaN()
	for i, v := range x {
		if finite(v) {
			last = v
		} else if math.IsNaN(v) {
			x[i] = last
		}
	}
	next := math.NaN()
	for i := len(x) - 1; i >= 0; i-- {
		if finite(x[i]) {
			next = x[i]
		} else if math.IsNaN(x[i]) {
			x[i] = next
		}
	}
}

// sanitize zero-fills whatever the fill pass left and clears infinities.
func sanitize(x []float64) {
	for i, v := range x {
		if !finite(v) {
			x[i] = 0
		}
	}
}
