package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/seenimoa/fidcsim/internal/inputs"
	"github.com/seenimoa/fidcsim/internal/simulate"
	"github.com/seenimoa/fidcsim/internal/waterfall"
	"github.com/seenimoa/fidcsim/pkg/models"
)

const bundleJSON = `{
  "name": "scenario-test",
  "timeline": {"start": "2024-01-01", "maturity": "2025-01-01", "frequency": "quarterly", "day_count": "30/360"},
  "base_flow": [
    {"date": "2024-04-01", "amount": "260"},
    {"date": "2024-07-01", "amount": "260"},
    {"date": "2024-10-01", "amount": "260"},
    {"date": "2025-01-01", "amount": "260"}
  ],
  "structure": {"classes": [
    {"name": "senior", "rank": 1, "face": "700", "spread": 0.10, "fixed_rate": true},
    {"name": "sub", "rank": 2, "face": "300", "spread": 0.15, "fixed_rate": true}
  ]}
}`

func fixtures(t *testing.T, limit int) (*Runner, *inputs.Bundle) {
	t.Helper()
	sim, err := simulate.New(waterfall.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("simulate.New: %v", err)
	}
	b, err := inputs.Parse([]byte(bundleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return NewRunner(sim, limit, nil), b
}

func TestRunKeepsRequestOrder(t *testing.T) {
	r, b := fixtures(t, 2)
	variants := DefaultSweep(b.Assumptions, []float64{0.3, 0, 0.1, 0.2, 0.05})
	out, err := r.Run(context.Background(), b, variants)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != len(variants) {
		t.Fatalf("got %d outcomes, want %d", len(out), len(variants))
	}
	for i, o := range out {
		if o.Name != variants[i].Name {
			t.Errorf("outcome %d: got %q, want %q", i, o.Name, variants[i].Name)
		}
		if o.Report == nil || o.Error != "" {
			t.Fatalf("outcome %q failed: %s", o.Name, o.Error)
		}
		if o.Report.Run.Scenario != o.Name || o.Report.Run.Assumptions.DefaultRate != variants[i].Assumptions.DefaultRate {
			t.Errorf("outcome %q ran %q at cdr %v", o.Name, o.Report.Run.Scenario, o.Report.Run.Assumptions.DefaultRate)
		}
	}
	if b.Assumptions.DefaultRate != 0 {
		t.Error("scenarios must not modify the base bundle")
	}
}

func TestRunStressLowersJuniorMultiple(t *testing.T) {
	r, b := fixtures(t, 0)
	out, err := r.Run(context.Background(), b, DefaultSweep(b.Assumptions, []float64{0, 0.1}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	base, _ := out[0].Report.KPIs.Class("sub")
	stressed, _ := out[1].Report.KPIs.Class("sub")
	if stressed.EquityMultiple >= base.EquityMultiple {
		t.Errorf("junior multiple should fall under stress: base %v stressed %v", base.EquityMultiple, stressed.EquityMultiple)
	}

	rows := Compare(out)
	if len(rows) != 4 || rows[0].Scenario != "cdr-0" || rows[0].Class != "senior" || rows[3].Class != "sub" {
		t.Errorf("comparison rows: %+v", rows)
	}
}

func TestRunInvalidVariantDoesNotStopOthers(t *testing.T) {
	r, b := fixtures(t, 4)
	variants := []Variant{
		{Name: "ok", Assumptions: b.Assumptions},
		{Name: "broken", Assumptions: b.Assumptions.WithDefaultRate(1.2)},
	}
	out, err := r.Run(context.Background(), b, variants)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out[0].Report == nil {
		t.Errorf("valid variant failed: %s", out[0].Error)
	}
	if out[1].Report != nil || out[1].Error == "" {
		t.Errorf("invalid variant should carry its error: %+v", out[1])
	}
}

func TestRunErrors(t *testing.T) {
	r, b := fixtures(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx, b, DefaultSweep(b.Assumptions, []float64{0, 0.1})); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled: got %v", err)
	}

	tests := []struct {
		name     string
		variants []Variant
	}{
		{"none", nil},
		{"unnamed", []Variant{{Assumptions: b.Assumptions}}},
		{"duplicate", []Variant{{Name: "a", Assumptions: b.Assumptions}, {Name: "a", Assumptions: b.Assumptions}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Run(context.Background(), b, tt.variants); !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestFromOverrides(t *testing.T) {
	base := models.DefaultAssumptions()
	d, lag := 0.05, 2
	vs, err := FromOverrides(base, []string{"mild"}, []*inputs.AssumptionsDoc{{DefaultRate: &d, RecoveryLag: &lag}})
	if err != nil {
		t.Fatalf("FromOverrides: %v", err)
	}
	if vs[0].Name != "mild" || vs[0].Assumptions.DefaultRate != 0.05 || vs[0].Assumptions.RecoveryLag != 2 {
		t.Errorf("variant: %+v", vs[0])
	}
	if _, err := FromOverrides(base, []string{"a", "b"}, nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("length mismatch: got %v", err)
	}
}

func TestDayCountVariantChangesAccrual(t *testing.T) {
	r, _ := fixtures(t, 0)
	b, err := inputs.Parse([]byte(strings.Replace(bundleJSON, `, "day_count": "30/360"`, "", 1)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	act360 := "ACT/360"
	variants, err := FromOverrides(b.Assumptions, []string{"bus252", "act360"},
		[]*inputs.AssumptionsDoc{{}, {DayCount: &act360}})
	if err != nil {
		t.Fatalf("FromOverrides: %v", err)
	}
	out, err := r.Run(context.Background(), b, variants)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	bus, act := out[0].Report.Run, out[1].Report.Run
	if bus.Timeline.DayCount != models.DayCountBus252 || act.Timeline.DayCount != models.DayCountAct360 {
		t.Fatalf("timeline day counts: %s / %s", bus.Timeline.DayCount, act.Timeline.DayCount)
	}
	if bus.Timeline.Periods[0].Fraction == act.Timeline.Periods[0].Fraction {
		t.Errorf("period fraction unchanged: %v", act.Timeline.Periods[0].Fraction)
	}
	if bus.Results[0].InterestAccrued.Equal(act.Results[0].InterestAccrued) {
		t.Errorf("senior accrual unchanged: %s", act.Results[0].InterestAccrued)
	}

	// an explicit timeline day count wins over the assumptions
	_, pinned := fixtures(t, 0)
	out, err = r.Run(context.Background(), pinned, variants)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range out {
		if got := o.Report.Run.Timeline.Periods[0].Fraction; got != 0.25 {
			t.Errorf("%s: pinned 30/360 fraction %v, want 0.25", o.Name, got)
		}
	}
}

func TestSpreadSweep(t *testing.T) {
	vs := SpreadSweep(models.DefaultAssumptions(), []float64{0, 0.02})
	if len(vs) != 2 || vs[1].Name != "spread-0.02" || vs[1].Assumptions.AssetSpread != 0.02 || vs[0].Assumptions.AssetSpread != 0 {
		t.Errorf("variants: %+v", vs)
	}
}
