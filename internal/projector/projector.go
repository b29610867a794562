// Package projector turns the contractual receivables flow into the gross
// cash inflow of each timeline period under an Assumptions bundle.
package projector

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/pkg/models"
	"github.com/seenimoa/fidcsim/pkg/utils"
)

// businessDaysPerMonth converts a monthly assignment rate to a period rate.
const businessDaysPerMonth = 21.0

// Projector is stateless; one value can serve concurrent runs.
type Projector struct {
	precision int32
}

// New creates a projector rounding amounts to precision decimal places.
func New(precision int32) *Projector {
	if precision < 0 {
		precision = 2
	}
	return &Projector{precision: precision}
}

// Project maps base-flow rows onto periods and applies credit assumptions.
//
// A row belongs to the period whose (Start, End] contains its date. Rows
// before the timeline fold into the first period and rows after maturity
// into the last, each with a diagnostic. Performing flow is
// base × (1−default) × (1−prepayment) per period; defaults of period t are
// recovered in period t+lag at the recovery rate. Recoveries falling past
// the last period are lost.
func (p *Projector) Project(tl models.Timeline, a models.Assumptions, base []models.BaseFlowRow) (models.Projection, error) {
	if tl.Len() == 0 {
		return models.Projection{}, fmt.Errorf("%w: empty timeline", models.ErrInvalidInput)
	}
	if err := a.Validate(); err != nil {
		return models.Projection{}, err
	}

	var diags []models.Diagnostic
	bucket := make([]decimal.Decimal, tl.Len())
	before, after := 0, 0
	for _, row := range base {
		idx := locate(tl, row)
		switch {
		case idx < 0:
			before++
			idx = 0
		case idx >= tl.Len():
			after++
			idx = tl.Len() - 1
		}
		bucket[idx] = bucket[idx].Add(row.Amount)
	}
	if before > 0 {
		diags = append(diags, models.Diagnostic{
			Level:   models.LevelWarning,
			Code:    models.CodeBaseFlowOutsideTimeline,
			Period:  0,
			Message: fmt.Sprintf("%d base-flow rows dated before %s folded into the first period", before, utils.FormatDate(tl.Start())),
		})
	}
	if after > 0 {
		diags = append(diags, models.Diagnostic{
			Level:   models.LevelWarning,
			Code:    models.CodeBaseFlowOutsideTimeline,
			Period:  tl.Len() - 1,
			Message: fmt.Sprintf("%d base-flow rows dated after %s folded into the last period", after, utils.FormatDate(tl.Periods[tl.Len()-1].PaymentDate)),
		})
	}

	keep := decimal.NewFromFloat((1 - a.DefaultRate) * (1 - a.PrepaymentRate))
	defRate := decimal.NewFromFloat(a.DefaultRate)
	recRate := decimal.NewFromFloat(a.RecoveryRate)

	inflows := make([]models.PeriodInflow, tl.Len())
	for t := range inflows {
		b := bucket[t].Round(p.precision)
		in := models.PeriodInflow{
			Period:     t,
			Base:       b,
			Performing: b.Mul(keep).Round(p.precision),
			Defaulted:  decimal.Max(b, decimal.Zero).Mul(defRate).Round(p.precision),
		}
		if src := t - a.RecoveryLag; src >= 0 {
			in.Recovered = inflows[src].Defaulted.Mul(recRate).Round(p.precision)
		}
		gross := in.Performing.Add(in.Recovered)
		if gross.IsNegative() {
			diags = append(diags, models.Diagnostic{
				Level:   models.LevelWarning,
				Code:    models.CodeNegativeInflowClamped,
				Period:  t,
				Message: fmt.Sprintf("projected inflow %s clamped to zero", gross.StringFixed(p.precision)),
			})
			gross = decimal.Zero
		}
		in.Gross = gross
		inflows[t] = in
	}
	return models.Projection{Inflows: inflows, Diagnostics: diags}, nil
}

// locate returns the period index of a row by payment date, -1 before the
// timeline and Len() after the last payment.
func locate(tl models.Timeline, row models.BaseFlowRow) int {
	if row.Date.Before(tl.Start()) {
		return -1
	}
	for i, per := range tl.Periods {
		if !row.Date.After(per.PaymentDate) {
			return i
		}
	}
	return tl.Len()
}

// SyntheticFlow derives a contractual flow for a receivables pool: the
// volume amortizes straight-line over TermPeriods and the outstanding
// balance earns the monthly assignment rate compounded on business days/21,
// plus the asset spread compounded on the period fraction.
func (p *Projector) SyntheticFlow(tl models.Timeline, pool models.ReceivablesPool, assetSpread float64) ([]models.BaseFlowRow, error) {
	if tl.Len() == 0 {
		return nil, fmt.Errorf("%w: empty timeline", models.ErrInvalidInput)
	}
	verr := &models.InvalidInputError{}
	if !pool.Volume.IsPositive() {
		verr.AddInvalid("pool.volume", "must be positive")
	}
	if pool.MonthlyRate <= -1 {
		verr.AddInvalid("pool.monthly_rate", "must be above -1")
	}
	if pool.TermPeriods < 0 {
		verr.AddInvalid("pool.term_periods", "must not be negative")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	term := pool.TermPeriods
	if term == 0 || term > tl.Len() {
		term = tl.Len()
	}
	installment := pool.Volume.Div(decimal.NewFromInt(int64(term))).Round(p.precision)
	outstanding := pool.Volume

	rows := make([]models.BaseFlowRow, 0, tl.Len())
	for i, per := range tl.Periods {
		growth := math.Pow(1+pool.MonthlyRate, float64(per.BusinessDays)/businessDaysPerMonth) *
			math.Pow(1+assetSpread, per.Fraction)
		interest := outstanding.Mul(decimal.NewFromFloat(growth - 1)).Round(p.precision)

		principal := decimal.Zero
		if i < term {
			principal = installment
			if i == term-1 || principal.GreaterThan(outstanding) {
				principal = outstanding
			}
		}
		outstanding = outstanding.Sub(principal)
		rows = append(rows, models.BaseFlowRow{Date: per.PaymentDate, Amount: interest.Add(principal)})
	}
	return rows, nil
}
