// Package scenario runs one bundle under several assumption sets in
// parallel and lines the results up for comparison.
package scenario

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/fidcsim/internal/inputs"
	"github.com/seenimoa/fidcsim/internal/simulate"
	"github.com/seenimoa/fidcsim/pkg/models"
)

// Variant is a named assumption set.
type Variant struct {
	Name        string             `json:"name"`
	Assumptions models.Assumptions `json:"assumptions"`
}

// Outcome is the result of one variant. A variant that fails validation
// carries its error and does not stop the others.
type Outcome struct {
	Name   string         `json:"name"`
	Report *models.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Runner fans variants out over a bounded number of goroutines.
type Runner struct {
	sim    *simulate.Simulator
	limit  int
	logger *zap.Logger
}

// NewRunner creates a runner. A non-positive limit uses the CPU count.
func NewRunner(sim *simulate.Simulator, limit int, logger *zap.Logger) *Runner {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{sim: sim, limit: limit, logger: logger.Named("scenario")}
}

// Limit returns the parallelism bound.
func (r *Runner) Limit() int { return r.limit }

// Run simulates b under every variant. Outcomes come back in request
// order. Cancellation is checked between runs and aborts the whole batch.
func (r *Runner) Run(ctx context.Context, b *inputs.Bundle, variants []Variant) ([]Outcome, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", models.ErrInvalidInput)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: no scenarios", models.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(variants))
	for i, v := range variants {
		if v.Name == "" {
			return nil, fmt.Errorf("%w: scenario %d has no name", models.ErrInvalidInput, i)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("%w: duplicate scenario %q", models.ErrInvalidInput, v.Name)
		}
		seen[v.Name] = true
	}

	out := make([]Outcome, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, v := range variants {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = Outcome{Name: v.Name}
			vb, err := b.WithAssumptions(v.Assumptions.WithName(v.Name))
			if err != nil {
				out[i].Error = err.Error()
				return nil
			}
			rep, err := r.sim.Run(gctx, vb)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("scenario failed", zap.String("scenario", v.Name), zap.Error(err))
				out[i].Error = err.Error()
				return nil
			}
			out[i].Report = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.logger.Info("scenarios complete", zap.String("bundle", b.Name), zap.Int("count", len(variants)))
	return out, nil
}

// ────────────────────────────────────────────────────────────────────
// Variant builders
// ────────────────────────────────────────────────────────────────────

// DefaultSweep returns one variant per default rate, named "cdr-<rate>".
func DefaultSweep(base models.Assumptions, rates []float64) []Variant {
	out := make([]Variant, 0, len(rates))
	for _, d := range rates {
		name := fmt.Sprintf("cdr-%g", d)
		out = append(out, Variant{Name: name, Assumptions: base.WithDefaultRate(d)})
	}
	return out
}

// SpreadSweep returns one variant per asset spread, named "spread-<spread>".
// The spread only moves inflows of bundles priced off a receivables pool.
func SpreadSweep(base models.Assumptions, spreads []float64) []Variant {
	out := make([]Variant, 0, len(spreads))
	for _, sp := range spreads {
		name := fmt.Sprintf("spread-%g", sp)
		out = append(out, Variant{Name: name, Assumptions: base.WithAssetSpread(sp)})
	}
	return out
}

// FromOverrides applies named partial assumption documents on top of base.
func FromOverrides(base models.Assumptions, names []string, docs []*inputs.AssumptionsDoc) ([]Variant, error) {
	if len(names) != len(docs) {
		return nil, fmt.Errorf("%w: %d names for %d scenarios", models.ErrInvalidInput, len(names), len(docs))
	}
	out := make([]Variant, 0, len(docs))
	for i, d := range docs {
		a, err := inputs.Override(base, d)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", names[i], err)
		}
		out = append(out, Variant{Name: names[i], Assumptions: a})
	}
	return out, nil
}

// ────────────────────────────────────────────────────────────────────
// Comparison
// ────────────────────────────────────────────────────────────────────

// Row is one (scenario, class) line of a comparison table.
type Row struct {
	Scenario       string  `json:"scenario"`
	Class          string  `json:"class"`
	EffectiveYield float64 `json:"effective_yield"`
	YieldConverged bool    `json:"yield_converged"`
	WAL            float64 `json:"weighted_average_life"`
	Duration       float64 `json:"duration"`
	PrincipalLoss  string  `json:"principal_loss"`
	MaxShortfall   string  `json:"max_shortfall"`
	Breach         bool    `json:"breach"`
}

// Compare flattens successful outcomes into rows, scenario by scenario in
// seniority order.
func Compare(outcomes []Outcome) []Row {
	var rows []Row
	for _, o := range outcomes {
		if o.Report == nil {
			continue
		}
		for _, k := range o.Report.KPIs.Classes {
			rows = append(rows, Row{
				Scenario:       o.Name,
				Class:          k.Class,
				EffectiveYield: k.EffectiveYield,
				YieldConverged: k.YieldConverged,
				WAL:            k.WeightedAverageLife,
				Duration:       k.Duration,
				PrincipalLoss:  k.PrincipalLoss.StringFixed(2),
				MaxShortfall:   k.MaxShortfall.StringFixed(2),
				Breach:         k.Breach,
			})
		}
	}
	return rows
}
