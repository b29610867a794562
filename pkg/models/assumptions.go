package models

import "fmt"

// DefaultAssumptions returns the bundle used when an input omits the
// assumptions section: no credit events, no fees, no reserve. Accrual is
// left empty so the engine's configured method applies.
func DefaultAssumptions() Assumptions {
	return Assumptions{
		Name:     "base",
		DayCount: DayCountBus252,
	}
}

// Validate checks every field against its documented range and reports all
// violations together.
func (a Assumptions) Validate() error {
	verr := &InvalidInputError{}
	unit := func(field string, v float64, closed bool) {
		if v < 0 || v > 1 || (!closed && v == 1) {
			bound := "[0,1)"
			if closed {
				bound = "[0,1]"
			}
			verr.AddInvalid(field, fmt.Sprintf("%g outside %s", v, bound))
		}
	}
	unit("assumptions.default_rate", a.DefaultRate, false)
	unit("assumptions.prepayment_rate", a.PrepaymentRate, false)
	unit("assumptions.recovery_rate", a.RecoveryRate, true)
	unit("assumptions.reserve_ratio", a.ReserveRatio, false)
	if a.RecoveryLag < 0 {
		verr.AddInvalid("assumptions.recovery_lag", fmt.Sprintf("%d is negative", a.RecoveryLag))
	}
	if a.AssetSpread < -1 {
		verr.AddInvalid("assumptions.asset_spread", fmt.Sprintf("%g below -1", a.AssetSpread))
	}
	if a.FeeRate < 0 {
		verr.AddInvalid("assumptions.fee_rate", fmt.Sprintf("%g is negative", a.FeeRate))
	}
	if a.MinFee < 0 {
		verr.AddInvalid("assumptions.min_fee", fmt.Sprintf("%g is negative", a.MinFee))
	}
	switch a.DayCount {
	case DayCountBus252, DayCountAct360, DayCountAct365F, DayCount30360:
	default:
		verr.AddInvalid("assumptions.day_count", fmt.Sprintf("unknown convention %q", a.DayCount))
	}
	switch a.Accrual {
	case "", AccrualLinear, AccrualExponential:
	default:
		verr.AddInvalid("assumptions.accrual", fmt.Sprintf("unknown method %q", a.Accrual))
	}
	return verr.OrNil()
}

// ─── Copy helpers ───────────────────────────────────────────────────
// Assumptions is passed by value; each helper returns an edited copy.

func (a Assumptions) WithName(name string) Assumptions {
	a.Name = name
	return a
}

func (a Assumptions) WithDefaultRate(v float64) Assumptions {
	a.DefaultRate = v
	return a
}

func (a Assumptions) WithPrepaymentRate(v float64) Assumptions {
	a.PrepaymentRate = v
	return a
}

func (a Assumptions) WithRecovery(rate float64, lag int) Assumptions {
	a.RecoveryRate = rate
	a.RecoveryLag = lag
	return a
}

func (a Assumptions) WithAssetSpread(v float64) Assumptions {
	a.AssetSpread = v
	return a
}

func (a Assumptions) WithFees(rate, minimum float64) Assumptions {
	a.FeeRate = rate
	a.MinFee = minimum
	return a
}

func (a Assumptions) WithReserveRatio(v float64) Assumptions {
	a.ReserveRatio = v
	return a
}

func (a Assumptions) WithDayCount(dc DayCount) Assumptions {
	a.DayCount = dc
	return a
}

func (a Assumptions) WithAccrual(m AccrualMethod) Assumptions {
	a.Accrual = m
	return a
}
