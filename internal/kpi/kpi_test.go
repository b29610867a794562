package kpi

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/internal/waterfall"
	"github.com/seenimoa/fidcsim/pkg/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func unitTimeline(n int) models.Timeline {
	tl := models.Timeline{DayCount: models.DayCount30360}
	for i := 0; i < n; i++ {
		s, e := t0.AddDate(i, 0, 0), t0.AddDate(i+1, 0, 0)
		tl.Periods = append(tl.Periods, models.Period{Index: i, Start: s, End: e, PaymentDate: e, Fraction: 1})
	}
	return tl
}

func inflows(amounts ...string) []models.PeriodInflow {
	out := make([]models.PeriodInflow, len(amounts))
	for i, a := range amounts {
		v := decimal.RequireFromString(a)
		out[i] = models.PeriodInflow{Period: i, Base: v, Performing: v, Gross: v}
	}
	return out
}

func fixedClass(name string, rank int, face string, rate float64) models.QuotaClass {
	return models.QuotaClass{Name: name, Rank: rank, Face: decimal.RequireFromString(face), Spread: rate, FixedRate: true}
}

func run(t *testing.T, cfg waterfall.Config, in waterfall.Input) *models.WaterfallRun {
	t.Helper()
	e, err := waterfall.NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	in.Assumptions = models.DefaultAssumptions()
	r, err := e.Run(in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return r
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ════════════════════════════════════════════════════════════════════
// XIRR
// ════════════════════════════════════════════════════════════════════

func TestXIRRKnownYield(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	rate, ok := XIRR([]CashFlow{
		{Date: start, Amount: -1000},
		{Date: start.AddDate(1, 0, 0), Amount: 1100},
	})
	if !ok || math.Abs(rate-0.10) > 1e-9 {
		t.Errorf("XIRR = (%v, %v), want (0.10, true)", rate, ok)
	}
}

func TestXIRRMultipleFlows(t *testing.T) {
	flows := []CashFlow{
		{Date: t0, Amount: -100},
		{Date: t0.AddDate(0, 6, 0), Amount: 30},
		{Date: t0.AddDate(1, 0, 0), Amount: 30},
		{Date: t0.AddDate(2, 0, 0), Amount: 60},
	}
	rate, ok := XIRR(flows)
	if !ok {
		t.Fatal("XIRR did not converge")
	}
	if npv := NPV(rate, flows); math.Abs(npv) > 1e-6 {
		t.Errorf("NPV at XIRR %v = %v, want 0", rate, npv)
	}
}

func TestXIRRTotalLoss(t *testing.T) {
	rate, ok := XIRR([]CashFlow{{Date: t0, Amount: -100}})
	if ok || rate != 0 {
		t.Errorf("no receipts: got (%v, %v), want (0, false)", rate, ok)
	}
}

func TestXIRRDeepLoss(t *testing.T) {
	flows := []CashFlow{
		{Date: t0, Amount: -1000},
		{Date: t0.AddDate(3, 0, 0), Amount: 10},
	}
	rate, ok := XIRR(flows)
	if !ok || rate > -0.7 {
		t.Errorf("deep loss: got (%v, %v)", rate, ok)
	}
}

// ════════════════════════════════════════════════════════════════════
// Summarize
// ════════════════════════════════════════════════════════════════════

func TestSummarizeSingleClass(t *testing.T) {
	amounts := make([]string, 10)
	for k := range amounts {
		amounts[k] = decimal.NewFromInt(int64(110 - k)).String()
	}
	r := run(t, waterfall.DefaultConfig(), waterfall.Input{
		Timeline:  unitTimeline(10),
		Structure: models.CapitalStructure{Classes: []models.QuotaClass{fixedClass("senior", 1, "1000", 0.01)}},
		Inflows:   inflows(amounts...),
	})
	set := Summarize(r)
	k, ok := set.Class("senior")
	if !ok {
		t.Fatal("missing senior KPIs")
	}
	if math.Abs(k.WeightedAverageLife-5.5) > 0.02 {
		t.Errorf("WAL: got %v, want ~5.5", k.WeightedAverageLife)
	}
	if !k.YieldConverged || math.Abs(k.EffectiveYield-0.01) > 1e-4 {
		t.Errorf("yield: got (%v, %v), want ~0.01", k.EffectiveYield, k.YieldConverged)
	}
	if !k.PromisedConverged || math.Abs(k.PromisedYield-k.EffectiveYield) > 1e-9 {
		t.Errorf("fully paid class: promised %v, paid %v", k.PromisedYield, k.EffectiveYield)
	}
	if k.Duration <= 4 || k.Duration >= k.WeightedAverageLife {
		t.Errorf("duration %v outside (4, WAL %v)", k.Duration, k.WeightedAverageLife)
	}
	if !k.TotalPrincipalRecovered.Equal(dec("1000")) || !k.TotalInterestPaid.Equal(dec("55")) {
		t.Errorf("totals: principal %s interest %s", k.TotalPrincipalRecovered, k.TotalInterestPaid)
	}
	if !k.TotalShortfallIncurred.IsZero() || !k.PrincipalLoss.IsZero() || k.Breach {
		t.Errorf("clean run reported shortfall %s loss %s breach %v", k.TotalShortfallIncurred, k.PrincipalLoss, k.Breach)
	}
	// coverage is (110-k)/(10-k), lowest in the first period
	if set.Fund.PeriodsSimulated != 10 || math.Abs(set.Fund.MinCoverage-11) > 1e-9 {
		t.Errorf("fund: periods %d min coverage %v", set.Fund.PeriodsSimulated, set.Fund.MinCoverage)
	}
}

func TestSummarizeTwoClass(t *testing.T) {
	r := run(t, waterfall.DefaultConfig(), waterfall.Input{
		Timeline: unitTimeline(4),
		Structure: models.CapitalStructure{Classes: []models.QuotaClass{
			fixedClass("senior", 1, "800", 0.01),
			fixedClass("sub", 2, "200", 0.03),
		}},
		Inflows: inflows("14", "14", "10", "1100"),
	})
	set := Summarize(r)
	senior, _ := set.Class("senior")
	sub, _ := set.Class("sub")

	if senior.Breach || sub.Breach || set.Fund.Breach {
		t.Error("subordination absorbed the shortfall; no breach expected")
	}
	if !sub.TotalShortfallIncurred.Equal(dec("4")) || !sub.MaxShortfall.Equal(dec("4")) || !sub.FinalShortfall.IsZero() {
		t.Errorf("sub shortfall: incurred %s max %s final %s", sub.TotalShortfallIncurred, sub.MaxShortfall, sub.FinalShortfall)
	}
	if !senior.TotalShortfallIncurred.IsZero() {
		t.Errorf("senior shortfall: %s", senior.TotalShortfallIncurred)
	}
	if math.Abs(sub.EquityMultiple-1.53) > 1e-9 {
		t.Errorf("sub equity multiple: got %v, want 1.53", sub.EquityMultiple)
	}
	if senior.EquityMultiple != 0 {
		t.Errorf("equity multiple is only reported for the junior class, got %v", senior.EquityMultiple)
	}
	if math.Abs(set.Fund.MinCoverage-10.0/14.0) > 1e-9 {
		t.Errorf("min coverage: got %v, want %v", set.Fund.MinCoverage, 10.0/14.0)
	}
	if !set.Fund.TotalInflow.Equal(dec("1138")) || !set.Fund.TotalResidual.Equal(dec("81.88")) {
		t.Errorf("fund totals: inflow %s residual %s", set.Fund.TotalInflow, set.Fund.TotalResidual)
	}
	if senior.MinSubordination <= 0 {
		t.Errorf("senior min subordination: %v", senior.MinSubordination)
	}
}

func TestSummarizeBreach(t *testing.T) {
	senior := fixedClass("senior", 1, "900", 0)
	senior.Amortization = &models.AmortizationSchedule{GracePeriods: 2, Installments: 1}
	sub := fixedClass("sub", 2, "100", 0)
	sub.Amortization = &models.AmortizationSchedule{GracePeriods: 0, Installments: 1}

	r := run(t, waterfall.Config{Precision: 2, PrincipalMode: models.PrincipalScheduled}, waterfall.Input{
		Timeline:  unitTimeline(3),
		Structure: models.CapitalStructure{Classes: []models.QuotaClass{senior, sub}},
		Inflows:   inflows("100", "0", "0"),
	})
	set := Summarize(r)
	s, _ := set.Class("senior")
	j, _ := set.Class("sub")
	if !s.Breach || !set.Fund.Breach {
		t.Error("senior impaired after the junior class was repaid must be flagged")
	}
	if j.Breach {
		t.Error("the most junior class cannot breach")
	}
	if !s.PrincipalLoss.Equal(dec("900")) || math.Abs(s.LossAbsorption-1) > 1e-12 {
		t.Errorf("senior loss %s absorption %v", s.PrincipalLoss, s.LossAbsorption)
	}
	if s.YieldConverged {
		t.Errorf("senior received nothing; yield should not converge, got %v", s.EffectiveYield)
	}
	// 900 at zero coupon falls due in period 2
	if !s.PromisedConverged || math.Abs(s.PromisedYield) > 1e-6 {
		t.Errorf("senior promised yield: got (%v, %v), want 0", s.PromisedYield, s.PromisedConverged)
	}
}

func TestSummarizePromisedYield(t *testing.T) {
	r := run(t, waterfall.DefaultConfig(), waterfall.Input{
		Timeline:  unitTimeline(3),
		Structure: models.CapitalStructure{Classes: []models.QuotaClass{fixedClass("senior", 1, "1000", 0.10)}},
		Inflows:   inflows("100", "100", "100"),
	})
	k, _ := Summarize(r).Class("senior")
	if !k.PrincipalLoss.Equal(dec("1000")) {
		t.Fatalf("principal loss: got %s, want 1000", k.PrincipalLoss)
	}
	// annual coupons measured on ACT/365F across a leap year
	if !k.PromisedConverged || math.Abs(k.PromisedYield-0.10) > 1e-3 {
		t.Errorf("promised yield: got (%v, %v), want ~10%%", k.PromisedYield, k.PromisedConverged)
	}
	if k.YieldConverged && k.EffectiveYield >= k.PromisedYield {
		t.Errorf("paid yield %v must fall short of promised %v", k.EffectiveYield, k.PromisedYield)
	}
}

func TestSummarizeNil(t *testing.T) {
	if set := Summarize(nil); len(set.Classes) != 0 {
		t.Errorf("nil run: %+v", set)
	}
}
