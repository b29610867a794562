package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ════════════════════════════════════════════════════════════════════
// Conventions
// ════════════════════════════════════════════════════════════════════

// DayCount is a day-count convention used to turn a date interval into a
// year fraction.
type DayCount string

const (
	DayCountBus252  DayCount = "BUS/252"  // business days / 252 (CDI/DU)
	DayCountAct360  DayCount = "ACT/360"  // calendar days / 360
	DayCountAct365F DayCount = "ACT/365F" // calendar days / 365
	DayCount30360   DayCount = "30/360"   // 30E/360
)

// BusinessDayConvention decides how a non-business date is rolled.
type BusinessDayConvention string

const (
	Following         BusinessDayConvention = "following"
	Preceding         BusinessDayConvention = "preceding"
	ModifiedFollowing BusinessDayConvention = "modified_following"
	Unadjusted        BusinessDayConvention = "unadjusted"
)

// Interpolation selects how the rate curve is read between points.
type Interpolation string

const (
	FlatForward Interpolation = "flat_forward"
	Linear      Interpolation = "linear"
	CubicSpline Interpolation = "cubic_spline"
)

// AccrualMethod selects how a class rate is turned into period interest.
type AccrualMethod string

const (
	AccrualLinear      AccrualMethod = "linear"      // (index + spread) × fraction
	AccrualExponential AccrualMethod = "exponential" // ((1+index)(1+spread))^fraction − 1
)

// ShortfallPolicy decides how a class's interest payment is split between
// arrears and the current accrual.
type ShortfallPolicy string

const (
	ShortfallOldestFirst ShortfallPolicy = "oldest_first"
	ShortfallProRata     ShortfallPolicy = "pro_rata"
)

// PrincipalMode decides how much principal each class may receive.
type PrincipalMode string

const (
	PrincipalSweep     PrincipalMode = "sweep"     // all remaining cash, senior first
	PrincipalScheduled PrincipalMode = "scheduled" // only installments due
)

// ════════════════════════════════════════════════════════════════════
// Timeline
// ════════════════════════════════════════════════════════════════════

// Period is one accrual interval of the simulation.
type Period struct {
	Index        int       `json:"index"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	PaymentDate  time.Time `json:"payment_date"`
	Fraction     float64   `json:"fraction"` // day-count fraction of [Start, End]
	BusinessDays int       `json:"business_days"`
	CalendarDays int       `json:"calendar_days"`
}

// Timeline is the fixed, ordered sequence of periods of a run.
type Timeline struct {
	DayCount DayCount `json:"day_count"`
	Periods  []Period `json:"periods"`
}

// Len returns the number of periods.
func (t Timeline) Len() int { return len(t.Periods) }

// Start returns the start date of the first period.
func (t Timeline) Start() time.Time {
	if len(t.Periods) == 0 {
		return time.Time{}
	}
	return t.Periods[0].Start
}

// Maturity returns the end date of the last period.
func (t Timeline) Maturity() time.Time {
	if len(t.Periods) == 0 {
		return time.Time{}
	}
	return t.Periods[len(t.Periods)-1].End
}

// ════════════════════════════════════════════════════════════════════
// Market data
// ════════════════════════════════════════════════════════════════════

// CurvePoint is one observed (date, annual rate) pair of the index curve.
type CurvePoint struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"` // annual, decimal (0.1065 = 10.65% a.a.)
}

// BaseFlowRow is one contractual inflow of the receivables pool.
type BaseFlowRow struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// ReceivablesPool describes the pool when no base-flow table is supplied;
// the projector derives the contractual flow from it.
type ReceivablesPool struct {
	Volume      decimal.Decimal `json:"volume"`
	MonthlyRate float64         `json:"monthly_rate"` // assignment rate, % a.m. as decimal
	TermPeriods int             `json:"term_periods"` // straight-line amortization term
}

// ════════════════════════════════════════════════════════════════════
// Assumptions
// ════════════════════════════════════════════════════════════════════

// Assumptions is the immutable configuration bundle of one run. Scenario
// edits build a new value; a live bundle is never mutated.
type Assumptions struct {
	Name           string        `json:"name"`
	DefaultRate    float64       `json:"default_rate"`    // [0,1), share of each period's base flow lost
	PrepaymentRate float64       `json:"prepayment_rate"` // [0,1), share of each period's base flow prepaid away
	RecoveryRate   float64       `json:"recovery_rate"`   // [0,1], share of defaults recovered
	RecoveryLag    int           `json:"recovery_lag"`    // ≥ 0 periods between default and recovery
	AssetSpread    float64       `json:"asset_spread"`    // spread over the index earned by a synthetic pool
	FeeRate        float64       `json:"fee_rate"`        // annual admin/management fee over outstanding quotas
	MinFee         float64       `json:"min_fee"`         // minimum fee per period
	ReserveRatio   float64       `json:"reserve_ratio"`   // [0,1), cash reserve target over outstanding quotas
	DayCount       DayCount      `json:"day_count"`
	Accrual        AccrualMethod `json:"accrual,omitempty"` // empty: engine default
}

// ════════════════════════════════════════════════════════════════════
// Capital structure
// ════════════════════════════════════════════════════════════════════

// AmortizationSchedule is the contractual principal schedule of a class,
// used in scheduled principal mode: nothing during the grace periods, then
// equal installments.
type AmortizationSchedule struct {
	GracePeriods int `json:"grace_periods"`
	Installments int `json:"installments"`
}

// QuotaClass is one tranche of the fund.
type QuotaClass struct {
	Name               string                `json:"name"`
	Rank               int                   `json:"rank"` // 1 = most senior
	Face               decimal.Decimal       `json:"face"`
	Spread             float64               `json:"spread"`     // annual, over the index
	FixedRate          bool                  `json:"fixed_rate"` // Spread is the whole rate
	SubordinationFloor float64               `json:"subordination_floor"`
	Amortization       *AmortizationSchedule `json:"amortization,omitempty"`
}

// CapitalStructure owns the quota classes of the fund.
type CapitalStructure struct {
	TotalIssued decimal.Decimal `json:"total_issued"`
	Classes     []QuotaClass    `json:"classes"`
}

// Ordered returns a copy of the classes sorted by seniority rank.
func (cs CapitalStructure) Ordered() []QuotaClass {
	out := make([]QuotaClass, len(cs.Classes))
	copy(out, cs.Classes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Junior returns the most subordinated class.
func (cs CapitalStructure) Junior() (QuotaClass, bool) {
	ordered := cs.Ordered()
	if len(ordered) == 0 {
		return QuotaClass{}, false
	}
	return ordered[len(ordered)-1], true
}
