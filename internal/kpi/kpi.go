// Package kpi derives per-class and fund-level metrics from a completed
// waterfall run.
package kpi

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Summary
// ════════════════════════════════════════════════════════════════════

// Summarize computes the KPI set of a run. It only reads the run.
func Summarize(run *models.WaterfallRun) models.KPISet {
	if run == nil {
		return models.KPISet{}
	}
	ordered := run.Structure.Ordered()
	set := models.KPISet{Classes: make([]models.ClassKPI, 0, len(ordered))}

	// period in which each rank first received principal
	firstPrincipal := map[int]int{}
	for _, r := range run.Results {
		if _, seen := firstPrincipal[r.Rank]; !seen && r.PrincipalPaid.IsPositive() {
			firstPrincipal[r.Rank] = r.Period
		}
	}

	fundLoss := decimal.Zero
	for i, q := range ordered {
		k := summarizeClass(run, q, run.ClassResults(q.Name))
		k.Breach = breached(run.ClassResults(q.Name), q.Rank, firstPrincipal)
		if i == len(ordered)-1 && q.Face.IsPositive() {
			paid := k.TotalInterestPaid.Add(k.TotalPrincipalRecovered).Add(k.TotalResidualPaid)
			k.EquityMultiple = paid.Div(q.Face).InexactFloat64()
		}
		fundLoss = fundLoss.Add(k.PrincipalLoss)
		set.Classes = append(set.Classes, k)
	}
	if fundLoss.IsPositive() {
		for i := range set.Classes {
			set.Classes[i].LossAbsorption = set.Classes[i].PrincipalLoss.Div(fundLoss).InexactFloat64()
		}
	}

	set.Fund = summarizeFund(run)
	for _, c := range set.Classes {
		set.Fund.Breach = set.Fund.Breach || c.Breach
	}
	return set
}

// ────────────────────────────────────────────────────────────────────
// Per class
// ────────────────────────────────────────────────────────────────────

func summarizeClass(run *models.WaterfallRun, q models.QuotaClass, rows []models.PeriodResult) models.ClassKPI {
	k := models.ClassKPI{
		Class:                   q.Name,
		Rank:                    q.Rank,
		Face:                    q.Face,
		TotalInterestPaid:       decimal.Zero,
		TotalPrincipalRecovered: decimal.Zero,
		TotalResidualPaid:       decimal.Zero,
		TotalShortfallIncurred:  decimal.Zero,
		MaxShortfall:            decimal.Zero,
		FinalShortfall:          decimal.Zero,
		PrincipalLoss:           decimal.Zero,
	}
	start := run.Timeline.Start()
	flows := []CashFlow{{Date: start, Amount: -q.Face.InexactFloat64()}}
	promised := []CashFlow{{Date: start, Amount: -q.Face.InexactFloat64()}}

	var walNum, walDen float64
	prevShortfall, prevPrincipalDue := decimal.Zero, decimal.Zero
	minSub := math.Inf(1)
	for i, r := range rows {
		k.TotalInterestPaid = k.TotalInterestPaid.Add(r.InterestPaid)
		k.TotalPrincipalRecovered = k.TotalPrincipalRecovered.Add(r.PrincipalPaid)
		k.TotalResidualPaid = k.TotalResidualPaid.Add(r.ResidualPaid)

		sf := r.Shortfall()
		if sf.GreaterThan(prevShortfall) {
			k.TotalShortfallIncurred = k.TotalShortfallIncurred.Add(sf.Sub(prevShortfall))
		}
		prevShortfall = sf
		k.MaxShortfall = decimal.Max(k.MaxShortfall, sf)

		t := YearFraction(start, r.PaymentDate)
		if p := r.PrincipalPaid.InexactFloat64(); p > 0 {
			walNum += p * t
			walDen += p
		}
		if cash := r.CashPaid(); cash.IsPositive() {
			flows = append(flows, CashFlow{Date: r.PaymentDate, Amount: cash.InexactFloat64()})
		}
		// coupon accrued plus principal falling due; whatever is still
		// outstanding at the end is due on the last payment date
		owed := r.InterestAccrued.Add(r.PrincipalPaid).Add(r.PrincipalShortfall.Sub(prevPrincipalDue))
		if i == len(rows)-1 {
			owed = owed.Add(r.OutstandingPrincipal.Sub(r.PrincipalShortfall))
		}
		prevPrincipalDue = r.PrincipalShortfall
		if owed.IsPositive() {
			promised = append(promised, CashFlow{Date: r.PaymentDate, Amount: owed.InexactFloat64()})
		}
		if r.EndingBalance.IsPositive() && r.Subordination < minSub {
			minSub = r.Subordination
		}
	}
	if len(rows) > 0 {
		k.FinalShortfall = rows[len(rows)-1].Shortfall()
	}
	if walDen > 0 {
		k.WeightedAverageLife = walNum / walDen
	}
	if !math.IsInf(minSub, 1) {
		k.MinSubordination = minSub
	}
	k.PrincipalLoss = decimal.Max(q.Face.Sub(k.TotalPrincipalRecovered), decimal.Zero)

	k.EffectiveYield, k.YieldConverged = XIRR(flows)
	k.PromisedYield, k.PromisedConverged = XIRR(promised)
	y := 0.0
	if k.YieldConverged {
		y = k.EffectiveYield
	}
	k.Duration = macaulay(flows, y)
	return k
}

// macaulay is the PV-weighted average time of the positive flows.
func macaulay(flows []CashFlow, y float64) float64 {
	if len(flows) == 0 || y <= -1 {
		return 0
	}
	start := flows[0].Date
	var num, den float64
	for _, f := range flows {
		if f.Amount <= 0 {
			continue
		}
		t := YearFraction(start, f.Date)
		pv := f.Amount / math.Pow(1+y, t)
		num += t * pv
		den += pv
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// breached reports whether the class's principal was impaired after a more
// junior class had already received principal. Impairment is principal due
// and unpaid, or principal still outstanding when the run ends.
func breached(rows []models.PeriodResult, rank int, firstPrincipal map[int]int) bool {
	juniorPaidAt := math.MaxInt
	for r, p := range firstPrincipal {
		if r > rank && p < juniorPaidAt {
			juniorPaidAt = p
		}
	}
	if juniorPaidAt == math.MaxInt {
		return false
	}
	for i, r := range rows {
		impaired := r.PrincipalShortfall.IsPositive() ||
			(i == len(rows)-1 && r.OutstandingPrincipal.IsPositive())
		if impaired && r.Period >= juniorPaidAt {
			return true
		}
	}
	return false
}

// ────────────────────────────────────────────────────────────────────
// Fund level
// ────────────────────────────────────────────────────────────────────

func summarizeFund(run *models.WaterfallRun) models.FundKPI {
	f := models.FundKPI{
		PeriodsSimulated: run.PeriodsSimulated(),
		TotalInflow:      decimal.Zero,
		TotalDefaulted:   decimal.Zero,
		TotalRecovered:   decimal.Zero,
		TotalFees:        decimal.Zero,
		TotalResidual:    decimal.Zero,
	}
	for i, in := range run.Inflows {
		if i >= f.PeriodsSimulated {
			break
		}
		f.TotalDefaulted = f.TotalDefaulted.Add(in.Defaulted)
		f.TotalRecovered = f.TotalRecovered.Add(in.Recovered)
	}

	covered, sum := 0, 0.0
	f.MinCoverage = math.Inf(1)
	for _, c := range run.Cash {
		f.TotalInflow = f.TotalInflow.Add(c.Inflow)
		f.TotalFees = f.TotalFees.Add(c.FeesPaid)
		f.TotalResidual = f.TotalResidual.Add(c.Residual)
		if c.InterestDue.IsPositive() {
			covered++
			sum += c.Coverage
			f.MinCoverage = math.Min(f.MinCoverage, c.Coverage)
		}
	}
	if covered == 0 {
		f.MinCoverage = 0
	} else {
		f.AvgCoverage = sum / float64(covered)
	}
	return f
}
