package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAssumptionsValidate(t *testing.T) {
	if err := DefaultAssumptions().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	bad := DefaultAssumptions().
		WithDefaultRate(1).
		WithRecovery(1.5, -1).
		WithFees(-0.01, 0).
		WithDayCount("ACT/999")
	err := bad.Validate()
	var verr *InvalidInputError
	if !errors.As(err, &verr) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v, want *InvalidInputError", err)
	}
	joined := strings.Join(verr.Invalid, "\n")
	for _, field := range []string{"default_rate", "recovery_rate", "recovery_lag", "fee_rate", "day_count"} {
		if !strings.Contains(joined, "assumptions."+field) {
			t.Errorf("missing %s in %v", field, verr.Invalid)
		}
	}

	// recovery_rate is closed at 1, default_rate is not
	if err := DefaultAssumptions().WithRecovery(1, 0).Validate(); err != nil {
		t.Errorf("full recovery: %v", err)
	}
}

func TestCopyHelpersLeaveOriginal(t *testing.T) {
	base := DefaultAssumptions()
	edited := base.WithName("stress").WithDefaultRate(0.1).WithReserveRatio(0.05)
	if base.Name != "base" || base.DefaultRate != 0 || base.ReserveRatio != 0 {
		t.Errorf("base modified: %+v", base)
	}
	if edited.Name != "stress" || edited.DefaultRate != 0.1 || edited.ReserveRatio != 0.05 {
		t.Errorf("edited: %+v", edited)
	}
}

func TestInvalidInputError(t *testing.T) {
	verr := &InvalidInputError{}
	if verr.OrNil() != nil || !verr.Empty() {
		t.Fatal("empty error must be nil")
	}
	verr.AddMissing("timeline")
	verr.AddInvalid("assumptions.fee_rate", "-1 is negative")
	msg := verr.OrNil().Error()
	if !strings.Contains(msg, "missing fields: timeline") || !strings.Contains(msg, "assumptions.fee_rate: -1 is negative") {
		t.Errorf("message: %s", msg)
	}

	if err := DateRangeError("start %s after end", "2024-02-01"); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("DateRangeError: %v", err)
	}
	if err := CapitalStructureError("duplicate rank %d", 2); !errors.Is(err, ErrInvalidCapitalStructure) {
		t.Errorf("CapitalStructureError: %v", err)
	}
}

func TestCapitalStructureOrdered(t *testing.T) {
	cs := CapitalStructure{Classes: []QuotaClass{
		{Name: "sub", Rank: 3, Face: decimal.NewFromInt(100)},
		{Name: "senior", Rank: 1, Face: decimal.NewFromInt(700)},
		{Name: "mezz", Rank: 2, Face: decimal.NewFromInt(200)},
	}}
	ordered := cs.Ordered()
	for i, want := range []string{"senior", "mezz", "sub"} {
		if ordered[i].Name != want {
			t.Errorf("ordered[%d] = %s, want %s", i, ordered[i].Name, want)
		}
	}
	if cs.Classes[0].Name != "sub" {
		t.Error("Ordered sorted the original slice")
	}
	if j, ok := cs.Junior(); !ok || j.Name != "sub" {
		t.Errorf("Junior: %+v %v", j, ok)
	}
	if _, ok := (CapitalStructure{}).Junior(); ok {
		t.Error("empty structure has no junior")
	}
}

func TestRunAccessors(t *testing.T) {
	run := &WaterfallRun{
		Results: []PeriodResult{
			{Period: 1, Class: "senior"}, {Period: 1, Class: "sub"},
			{Period: 2, Class: "senior"}, {Period: 2, Class: "sub"},
		},
		Cash:        []PeriodCash{{Period: 1}, {Period: 2}},
		Diagnostics: []Diagnostic{{Code: "a"}, {Code: "b"}, {Code: "a"}},
	}
	if run.PeriodsSimulated() != 2 {
		t.Errorf("periods: %d", run.PeriodsSimulated())
	}
	if rows := run.ClassResults("sub"); len(rows) != 2 || rows[1].Period != 2 {
		t.Errorf("class rows: %+v", rows)
	}
	if rows := run.PeriodRows(2); len(rows) != 2 || rows[0].Class != "senior" {
		t.Errorf("period rows: %+v", rows)
	}
	if d := run.DiagnosticsByCode("a"); len(d) != 2 {
		t.Errorf("diagnostics: %+v", d)
	}

	r := PeriodResult{
		InterestPaid: decimal.NewFromInt(3), PrincipalPaid: decimal.NewFromInt(5), ResidualPaid: decimal.NewFromInt(1),
		InterestShortfall: decimal.NewFromInt(2), PrincipalShortfall: decimal.NewFromInt(4),
	}
	if !r.CashPaid().Equal(decimal.NewFromInt(9)) || !r.Shortfall().Equal(decimal.NewFromInt(6)) {
		t.Errorf("cash %s shortfall %s", r.CashPaid(), r.Shortfall())
	}

	set := KPISet{Classes: []ClassKPI{{Class: "senior"}}}
	if _, ok := set.Class("senior"); !ok {
		t.Error("senior KPIs not found")
	}
	if _, ok := set.Class("mezz"); ok {
		t.Error("unexpected mezz KPIs")
	}
}
