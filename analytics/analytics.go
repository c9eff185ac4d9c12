// Package analytics computes run performance: total and annualized return,
// max drawdown, Sharpe and MAR ratios.
//
// The calculators are pure functions. Session wires them to the event
// stream of a single run.
package analytics

import (
	"errors"
	"math"
	"time"
)

// ErrZeroCapital is returned by TotalReturn when the starting value is zero.
var ErrZeroCapital = errors.New("analytics: zero starting capital")

// DefaultPeriodsPerYear assumes daily bars.
const DefaultPeriodsPerYear = 252

// varianceFloor treats smaller standard deviations as zero.
const varianceFloor = 1e-12

// TotalReturn returns (end-start)/start.
func TotalReturn(start, end float64) (float64, error) {
	if start == 0 {
		return 0, ErrZeroCapital
	}
	return (end - start) / start, nil
}

// AnnualReturn annualizes total geometrically over days. days <= 0 returns
// total unannualized. A total loss of 100% or more annualizes to -1.
func AnnualReturn(total, days float64) float64 {
	if days <= 0 {
		return total
	}
	if 1+total <= 0 {
		return -1
	}
	return math.Pow(1+total, 365/days) - 1
}

// Days returns the elapsed calendar days between start and end.
func Days(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction of the
// peak. Non-positive peaks are skipped.
func MaxDrawdown(values []float64) float64 {
	var d DrawdownTracker
	for _, v := range values {
		d.Add(v)
	}
	return d.Max()
}

// Returns builds the simple periodic return series of values. Steps from a
// zero value are skipped.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

// SharpeRatio returns the annualized Sharpe ratio of the equity curve.
// riskFree is an annual rate. It returns 0 when fewer than two returns exist
// or when the excess returns have no variance.
func SharpeRatio(values []float64, riskFree, periodsPerYear float64) float64 {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	rets := Returns(values)
	if len(rets) < 2 {
		return 0
	}

	rf := riskFree / periodsPerYear
	var mean float64
	for i := range rets {
		rets[i] -= rf
		mean += rets[i]
	}
	mean /= float64(len(rets))

	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(rets)-1))
	if std < varianceFloor || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// MAR returns annual return over max drawdown, or 0 without a drawdown.
func MAR(annual, maxDrawdown float64) float64 {
	if maxDrawdown <= 0 {
		return 0
	}
	return annual / maxDrawdown
}
