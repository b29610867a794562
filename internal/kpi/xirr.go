package kpi

import (
	"math"
	"time"
)

const (
	xirrTolerance     = 1e-10
	xirrMaxIterations = 100
	xirrGuess         = 0.10
	minRate           = -0.999999
	maxRate           = 100.0
	daysPerYear       = 365.0
)

// CashFlow is a dated signed amount: negative for investment, positive for
// receipts.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

// YearFraction is the ACT/365F time from start to date.
func YearFraction(start, date time.Time) float64 {
	return date.Sub(start).Hours() / 24 / daysPerYear
}

// NPV discounts the flows to the first flow's date at an annual rate.
func NPV(rate float64, flows []CashFlow) float64 {
	if len(flows) == 0 {
		return 0
	}
	start := flows[0].Date
	sum := 0.0
	for _, f := range flows {
		sum += f.Amount / math.Pow(1+rate, YearFraction(start, f.Date))
	}
	return sum
}

func dNPV(rate float64, flows []CashFlow) float64 {
	start := flows[0].Date
	sum := 0.0
	for _, f := range flows {
		t := YearFraction(start, f.Date)
		sum -= t * f.Amount / math.Pow(1+rate, t+1)
	}
	return sum
}

// XIRR returns the annual rate at which the flows have zero NPV. It runs
// Newton-Raphson from a 10% guess and falls back to bisection; converged
// is false when the flows have no sign change or no root was bracketed.
func XIRR(flows []CashFlow) (rate float64, converged bool) {
	var pos, neg bool
	scale := 0.0
	for _, f := range flows {
		pos = pos || f.Amount > 0
		neg = neg || f.Amount < 0
		scale = math.Max(scale, math.Abs(f.Amount))
	}
	if !pos || !neg {
		return 0, false
	}
	tol := xirrTolerance * math.Max(scale, 1)

	r := xirrGuess
	for i := 0; i < xirrMaxIterations; i++ {
		f := NPV(r, flows)
		if math.Abs(f) < tol {
			return r, true
		}
		df := dNPV(r, flows)
		if df == 0 || math.IsNaN(df) {
			break
		}
		next := r - f/df
		if next <= minRate {
			next = (r + minRate) / 2
		}
		if math.IsNaN(next) || math.IsInf(next, 0) || next > maxRate {
			break
		}
		r = next
	}
	return bisect(flows, tol)
}

func bisect(flows []CashFlow, tol float64) (float64, bool) {
	lo, hi := minRate, maxRate
	flo, fhi := NPV(lo, flows), NPV(hi, flows)
	if math.IsNaN(flo) || math.IsNaN(fhi) || flo*fhi > 0 {
		return 0, false
	}
	for i := 0; i < 500; i++ {
		mid := (lo + hi) / 2
		fm := NPV(mid, flows)
		if math.Abs(fm) < tol || hi-lo < 1e-14 {
			return mid, true
		}
		if fm*flo < 0 {
			hi = mid
		} else {
			lo, flo = mid, fm
		}
	}
	return (lo + hi) / 2, true
}
