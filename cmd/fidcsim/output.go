package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/seenimoa/fidcsim/internal/config"
	"github.com/seenimoa/fidcsim/internal/scenario"
	"github.com/seenimoa/fidcsim/pkg/models"
	"github.com/seenimoa/fidcsim/pkg/utils"
)

const rule = "═══════════════════════════════════════"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

func yield(k models.ClassKPI) string {
	if !k.YieldConverged {
		return "n/a"
	}
	return pct(k.EffectiveYield)
}

func promisedYield(k models.ClassKPI) string {
	if !k.PromisedConverged {
		return "n/a"
	}
	return pct(k.PromisedYield)
}

func flag(b bool) string {
	if b {
		return "BREACH"
	}
	return "ok"
}

// printReport writes the fund summary and one KPI row per class.
func printReport(w io.Writer, rep *models.Report) {
	run, f := rep.Run, rep.KPIs.Fund
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %s  (run %s)\n", run.Scenario, run.ID)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Periods:       %d of %d\n", f.PeriodsSimulated, run.Timeline.Len())
	fmt.Fprintf(w, "  Inflow:        %s\n", f.TotalInflow.StringFixed(2))
	fmt.Fprintf(w, "  Defaulted:     %s (recovered %s)\n", f.TotalDefaulted.StringFixed(2), f.TotalRecovered.StringFixed(2))
	fmt.Fprintf(w, "  Fees:          %s\n", f.TotalFees.StringFixed(2))
	fmt.Fprintf(w, "  Coverage:      min %.2fx, avg %.2fx\n", f.MinCoverage, f.AvgCoverage)
	fmt.Fprintf(w, "  Status:        %s\n", flag(f.Breach))
	fmt.Fprintln(w)

	tw := newTable(w)
	fmt.Fprintln(tw, "class\trank\tface\tyield\tpromised\tWAL\tduration\tinterest\tprincipal\tresidual\tloss\tmax shortfall\tmin sub\tstatus\t")
	for _, k := range rep.KPIs.Classes {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			k.Class, k.Rank, k.Face.StringFixed(2), yield(k), promisedYield(k), k.WeightedAverageLife, k.Duration,
			k.TotalInterestPaid.StringFixed(2), k.TotalPrincipalRecovered.StringFixed(2),
			k.TotalResidualPaid.StringFixed(2), k.PrincipalLoss.StringFixed(2),
			k.MaxShortfall.StringFixed(2), pct(k.MinSubordination), flag(k.Breach))
	}
	tw.Flush()
	printDiagnostics(w, run.Diagnostics)
}

// printPeriods writes the per-period rows of every class.
func printPeriods(w io.Writer, run *models.WaterfallRun) {
	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "period\tdate\tclass\trate\tbegin\tinterest\tprincipal\tresidual\tend\tshortfall\t")
	for _, r := range run.Results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Period, utils.FormatDate(r.PaymentDate), r.Class, pct(r.Rate),
			r.BeginningBalance.StringFixed(2), r.InterestPaid.StringFixed(2), r.PrincipalPaid.StringFixed(2),
			r.ResidualPaid.StringFixed(2), r.EndingBalance.StringFixed(2), r.Shortfall().StringFixed(2))
	}
	tw.Flush()
}

func printDiagnostics(w io.Writer, diags []models.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(w, "\n  Diagnostics (%d):\n", len(diags))
	for _, d := range diags {
		where := fmt.Sprintf("period %d", d.Period)
		if d.Class != "" {
			where += ", " + d.Class
		}
		fmt.Fprintf(w, "    [%s] %s (%s): %s\n", d.Level, d.Code, where, d.Message)
	}
}

// printComparison writes one row per (scenario, class) and lists failed
// scenarios below the table.
func printComparison(w io.Writer, outcomes []scenario.Outcome) {
	tw := newTable(w)
	fmt.Fprintln(tw, "scenario\tclass\tyield\tWAL\tduration\tloss\tmax shortfall\tstatus\t")
	for _, r := range scenario.Compare(outcomes) {
		y := "n/a"
		if r.YieldConverged {
			y = pct(r.EffectiveYield)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\t%s\t\n",
			r.Scenario, r.Class, y, r.WAL, r.Duration, r.PrincipalLoss, r.MaxShortfall, flag(r.Breach))
	}
	tw.Flush()

	var failed []string
	for _, o := range outcomes {
		if o.Error != "" {
			failed = append(failed, fmt.Sprintf("    %s: %s", o.Name, o.Error))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(w, "\n  Failed scenarios:\n%s\n", strings.Join(failed, "\n"))
	}
}

func printStatus(w io.Writer, c *config.Config) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "  fidcsim: System Status")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Version:       %s (%s)\n", version, commit)
	fmt.Fprintf(w, "  Date:          %s\n", utils.FormatDate(utils.Today()))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Configuration:")
	fmt.Fprintf(w, "    Engine:        precision %d, %s accrual, %s shortfalls, %s principal\n",
		c.Engine.Precision, c.Engine.Accrual, c.Engine.ShortfallPolicy, c.Engine.PrincipalMode)
	fmt.Fprintf(w, "    Curve:         %s\n", c.Engine.Interpolation)
	fmt.Fprintf(w, "    Scenarios:     max parallel %d (0 = CPUs)\n", c.Scenarios.MaxParallel)
	fmt.Fprintf(w, "    API Server:    %s:%d\n", c.API.Host, c.API.Port)
	fmt.Fprintf(w, "    Store:         %s (ttl %ds)\n", c.Store.Backend, c.Store.TTLSeconds)
	fmt.Fprintf(w, "    Logging:       %s/%s\n", c.Logging.Level, c.Logging.Format)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Credentials:")
	for _, s := range config.CheckSecrets(c) {
		status := "not set"
		if s.IsSet {
			status = fmt.Sprintf("set (%s: %s)", s.Source, s.Masked)
		}
		fmt.Fprintf(w, "    %-25s %s\n", s.Name+":", status)
	}
	fmt.Fprintln(w, rule)
}
