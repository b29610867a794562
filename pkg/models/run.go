package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ════════════════════════════════════════════════════════════════════
// Diagnostics
// ════════════════════════════════════════════════════════════════════

// DiagnosticLevel is the severity of a diagnostic. Diagnostics never
// interrupt a run; fatal conditions are errors.
type DiagnosticLevel string

const (
	LevelInfo    DiagnosticLevel = "info"
	LevelWarning DiagnosticLevel = "warning"
)

// Diagnostic codes attached to runs.
const (
	CodeCurveExtrapolation      = "CURVE_EXTRAPOLATION"
	CodeNegativeInflowClamped   = "NEGATIVE_INFLOW_CLAMPED"
	CodeBaseFlowOutsideTimeline = "BASE_FLOW_OUTSIDE_TIMELINE"
	CodeSubordinationFloor      = "SUBORDINATION_FLOOR"
	CodeEarlyTermination        = "EARLY_TERMINATION"
	CodeFeeArrears              = "FEE_ARREARS"
)

// NoPeriod marks a diagnostic that is not tied to one period.
const NoPeriod = -1

// Diagnostic is a data-quality or modeling note recorded during a run.
type Diagnostic struct {
	Level   DiagnosticLevel `json:"level"`
	Code    string          `json:"code"`
	Period  int             `json:"period"`
	Class   string          `json:"class,omitempty"`
	Message string          `json:"message"`
}

// ════════════════════════════════════════════════════════════════════
// Projection
// ════════════════════════════════════════════════════════════════════

// PeriodInflow is the asset-side cash of one period.
type PeriodInflow struct {
	Period     int             `json:"period"`
	Base       decimal.Decimal `json:"base"`       // contractual flow mapped to the period
	Performing decimal.Decimal `json:"performing"` // base × (1−default) × (1−prepayment)
	Defaulted  decimal.Decimal `json:"defaulted"`
	Recovered  decimal.Decimal `json:"recovered"` // recoveries of earlier defaults
	Gross      decimal.Decimal `json:"gross"`     // performing + recovered, never negative
}

// Projection is the projector output: one inflow per timeline period.
type Projection struct {
	Inflows     []PeriodInflow `json:"inflows"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
}

// ════════════════════════════════════════════════════════════════════
// Waterfall output
// ════════════════════════════════════════════════════════════════════

// PeriodResult is one row of engine output for a (period, class) pair.
//
//	EndingBalance = BeginningBalance + (InterestAccrued − InterestPaid) − PrincipalPaid
type PeriodResult struct {
	Period               int             `json:"period"`
	PaymentDate          time.Time       `json:"payment_date"`
	Class                string          `json:"class"`
	Rank                 int             `json:"rank"`
	Rate                 float64         `json:"rate"` // annual rate applied this period
	BeginningBalance     decimal.Decimal `json:"beginning_balance"`
	InterestAccrued      decimal.Decimal `json:"interest_accrued"`
	InterestPaid         decimal.Decimal `json:"interest_paid"`
	PrincipalPaid        decimal.Decimal `json:"principal_paid"`
	ResidualPaid         decimal.Decimal `json:"residual_paid"`
	EndingBalance        decimal.Decimal `json:"ending_balance"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	InterestShortfall    decimal.Decimal `json:"interest_shortfall"`  // carried to next period
	PrincipalShortfall   decimal.Decimal `json:"principal_shortfall"` // due but unpaid, carried
	ShortfallSince       int             `json:"shortfall_since"`     // period of the oldest unpaid interest, NoPeriod if none
	Subordination        float64         `json:"subordination"`       // share of classes junior to this one
}

// Shortfall returns the total unpaid obligation carried forward.
func (r PeriodResult) Shortfall() decimal.Decimal {
	return r.InterestShortfall.Add(r.PrincipalShortfall)
}

// CashPaid returns everything the class received this period.
func (r PeriodResult) CashPaid() decimal.Decimal {
	return r.InterestPaid.Add(r.PrincipalPaid).Add(r.ResidualPaid)
}

// PeriodCash is the fund-level cash ledger of one period.
//
//	Inflow + ReserveReleased = FeesPaid + ReserveTopUp + InterestPaid + PrincipalPaid + Residual
type PeriodCash struct {
	Period          int             `json:"period"`
	PaymentDate     time.Time       `json:"payment_date"`
	IndexRate       float64         `json:"index_rate"`
	Inflow          decimal.Decimal `json:"inflow"`
	ReserveReleased decimal.Decimal `json:"reserve_released"`
	FeesDue         decimal.Decimal `json:"fees_due"`
	FeesPaid        decimal.Decimal `json:"fees_paid"`
	ReserveTopUp    decimal.Decimal `json:"reserve_top_up"`
	ReserveBalance  decimal.Decimal `json:"reserve_balance"`
	Available       decimal.Decimal `json:"available"`
	InterestDue     decimal.Decimal `json:"interest_due"`
	InterestPaid    decimal.Decimal `json:"interest_paid"`
	PrincipalPaid   decimal.Decimal `json:"principal_paid"`
	Residual        decimal.Decimal `json:"residual"`
	Coverage        float64         `json:"coverage"` // available / interest due (0 when nothing due)
}

// WaterfallRun is the root aggregate of one simulation invocation. It is
// appended to while the engine folds over the timeline and is immutable
// once returned.
type WaterfallRun struct {
	ID                  string           `json:"id"`
	Fingerprint         string           `json:"fingerprint,omitempty"`
	Scenario            string           `json:"scenario"`
	Timeline            Timeline         `json:"timeline"`
	Structure           CapitalStructure `json:"structure"`
	Assumptions         Assumptions      `json:"assumptions"`
	Inflows             []PeriodInflow   `json:"inflows"`
	Results             []PeriodResult   `json:"results"`
	Cash                []PeriodCash     `json:"cash"`
	Diagnostics         []Diagnostic     `json:"diagnostics"`
	LastPeriod          int              `json:"last_period"`
	TerminatedEarly     bool             `json:"terminated_early"`
	UndistributedInflow decimal.Decimal  `json:"undistributed_inflow"`
}

// PeriodsSimulated returns how many timeline periods the engine processed.
func (r *WaterfallRun) PeriodsSimulated() int { return len(r.Cash) }

// ClassResults returns the rows of one class in period order.
func (r *WaterfallRun) ClassResults(class string) []PeriodResult {
	var out []PeriodResult
	for _, row := range r.Results {
		if row.Class == class {
			out = append(out, row)
		}
	}
	return out
}

// PeriodRows returns the rows of one period in seniority order.
func (r *WaterfallRun) PeriodRows(period int) []PeriodResult {
	var out []PeriodResult
	for _, row := range r.Results {
		if row.Period == period {
			out = append(out, row)
		}
	}
	return out
}

// DiagnosticsByCode returns the diagnostics with the given code.
func (r *WaterfallRun) DiagnosticsByCode(code string) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// ════════════════════════════════════════════════════════════════════
// KPIs
// ════════════════════════════════════════════════════════════════════

// ClassKPI summarizes the outcome of one quota class.
type ClassKPI struct {
	Class                   string          `json:"class"`
	Rank                    int             `json:"rank"`
	Face                    decimal.Decimal `json:"face"`
	WeightedAverageLife     float64         `json:"weighted_average_life"` // years
	EffectiveYield          float64         `json:"effective_yield"`       // annual IRR of the paid flows
	YieldConverged          bool            `json:"yield_converged"`
	PromisedYield           float64         `json:"promised_yield"` // annual IRR of the contractual flows
	PromisedConverged       bool            `json:"promised_converged"`
	Duration                float64         `json:"duration"` // Macaulay, years
	TotalInterestPaid       decimal.Decimal `json:"total_interest_paid"`
	TotalPrincipalRecovered decimal.Decimal `json:"total_principal_recovered"`
	TotalResidualPaid       decimal.Decimal `json:"total_residual_paid"`
	TotalShortfallIncurred  decimal.Decimal `json:"total_shortfall_incurred"`
	MaxShortfall            decimal.Decimal `json:"max_shortfall"`
	FinalShortfall          decimal.Decimal `json:"final_shortfall"`
	PrincipalLoss           decimal.Decimal `json:"principal_loss"`
	LossAbsorption          float64         `json:"loss_absorption"` // share of the fund's principal loss
	MinSubordination        float64         `json:"min_subordination"`
	EquityMultiple          float64         `json:"equity_multiple,omitempty"`
	Breach                  bool            `json:"breach"`
}

// FundKPI summarizes the fund-level cash ledger.
type FundKPI struct {
	PeriodsSimulated int             `json:"periods_simulated"`
	TotalInflow      decimal.Decimal `json:"total_inflow"`
	TotalDefaulted   decimal.Decimal `json:"total_defaulted"`
	TotalRecovered   decimal.Decimal `json:"total_recovered"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	TotalResidual    decimal.Decimal `json:"total_residual"`
	MinCoverage      float64         `json:"min_coverage"`
	AvgCoverage      float64         `json:"avg_coverage"`
	Breach           bool            `json:"breach"`
}

// KPISet is the KPI aggregator output.
type KPISet struct {
	Classes []ClassKPI `json:"classes"`
	Fund    FundKPI    `json:"fund"`
}

// Class returns the KPIs of one class by name.
func (k KPISet) Class(name string) (ClassKPI, bool) {
	for _, c := range k.Classes {
		if c.Class == name {
			return c, true
		}
	}
	return ClassKPI{}, false
}

// Report pairs a run with its KPIs; it is what the presentation layer gets.
type Report struct {
	Run  *WaterfallRun `json:"run"`
	KPIs KPISet        `json:"kpis"`
}
