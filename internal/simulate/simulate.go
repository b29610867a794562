// Package simulate wires the pipeline of one run: calendar, timeline,
// curve, projection, waterfall and KPIs.
package simulate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seenimoa/fidcsim/internal/calendar"
	"github.com/seenimoa/fidcsim/internal/curve"
	"github.com/seenimoa/fidcsim/internal/inputs"
	"github.com/seenimoa/fidcsim/internal/kpi"
	"github.com/seenimoa/fidcsim/internal/projector"
	"github.com/seenimoa/fidcsim/internal/schedule"
	"github.com/seenimoa/fidcsim/internal/waterfall"
	"github.com/seenimoa/fidcsim/pkg/models"
)

// Simulator runs bundles under one engine configuration. It holds no
// per-run state and is safe for concurrent use.
type Simulator struct {
	cfg    waterfall.Config
	interp models.Interpolation
	logger *zap.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithInterpolation sets the curve interpolation used when a bundle does
// not name one.
func WithInterpolation(m models.Interpolation) Option {
	return func(s *Simulator) {
		if m != "" {
			s.interp = m
		}
	}
}

// New validates the engine configuration and returns a simulator.
func New(cfg waterfall.Config, logger *zap.Logger, opts ...Option) (*Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e, err := waterfall.NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &Simulator{cfg: e.Config(), interp: models.FlatForward, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	switch s.interp {
	case models.FlatForward, models.Linear, models.CubicSpline:
	default:
		return nil, fmt.Errorf("%w: unknown interpolation %q", models.ErrInvalidInput, s.interp)
	}
	return s, nil
}

// Config returns the normalized engine configuration.
func (s *Simulator) Config() waterfall.Config { return s.cfg }

// Plan is a bundle resolved against its calendar, ready for the engine.
type Plan struct {
	Bundle     *inputs.Bundle
	Calendar   *calendar.Calendar
	Timeline   models.Timeline
	Curve      *curve.Curve // nil when every class is fixed-rate and no curve was given
	Projection models.Projection
	Engine     *waterfall.Engine
	Key        string
}

// Key identifies the result of running b under this simulator: the bundle
// fingerprint combined with the engine rules that apply to it. Engine
// defaults the bundle overrides do not enter the key.
func (s *Simulator) Key(b *inputs.Bundle) string {
	cfg := s.engineConfig(b.Rules)
	accrual := b.Assumptions.Accrual
	if accrual == "" {
		accrual = cfg.Accrual
	}
	interp := models.Interpolation("")
	if b.Curve != nil {
		interp = b.Curve.Interpolation
		if interp == "" {
			interp = s.interp
		}
	}
	raw := fmt.Sprintf("%s|%d|%s|%s|%s|%s", b.Fingerprint, cfg.Precision, accrual, cfg.ShortfallPolicy, cfg.PrincipalMode, interp)
	return strconv.FormatUint(xxhash.Sum64String(raw), 16)
}

func (s *Simulator) engineConfig(r inputs.Rules) waterfall.Config {
	cfg := s.cfg
	if r.ShortfallPolicy != "" {
		cfg.ShortfallPolicy = r.ShortfallPolicy
	}
	if r.PrincipalMode != "" {
		cfg.PrincipalMode = r.PrincipalMode
	}
	return cfg
}

// Prepare builds everything a run needs and checks the capital structure,
// without running the waterfall.
func (s *Simulator) Prepare(b *inputs.Bundle) (*Plan, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", models.ErrInvalidInput)
	}
	if err := waterfall.ValidateStructure(b.Structure); err != nil {
		return nil, err
	}
	p := &Plan{Bundle: b, Calendar: calendar.New(b.Holidays), Key: s.Key(b)}

	builder := schedule.NewBuilder(p.Calendar)
	var err error
	if len(b.Timeline.Dates) > 0 {
		p.Timeline, err = builder.FromDates(b.Timeline.Dates, b.Timeline.Convention, b.TimelineDayCount())
	} else {
		p.Timeline, err = builder.Generate(b.Timeline.Params(b.TimelineDayCount()))
	}
	if err != nil {
		return nil, fmt.Errorf("build timeline: %w", err)
	}

	if b.Curve != nil {
		pts := append([]models.CurvePoint(nil), b.Curve.Points...)
		if len(b.Curve.Offsets) > 0 {
			extra, err := curve.PointsFromOffsets(b.Curve.Base, b.Curve.Offsets, b.Curve.OffsetRates, p.Calendar)
			if err != nil {
				return nil, fmt.Errorf("build curve: %w", err)
			}
			pts = append(pts, extra...)
		}
		interp := b.Curve.Interpolation
		if interp == "" {
			interp = s.interp
		}
		p.Curve, err = curve.New(b.Curve.Base, pts, p.Calendar, curve.Options{
			Interpolation: interp,
			DayCount:      b.Curve.DayCount,
		})
		if err != nil {
			return nil, fmt.Errorf("build curve: %w", err)
		}
	}

	proj := projector.New(s.cfg.Precision)
	flow := b.BaseFlow
	if b.Pool != nil {
		flow, err = proj.SyntheticFlow(p.Timeline, *b.Pool, b.Assumptions.AssetSpread)
		if err != nil {
			return nil, fmt.Errorf("synthesize pool flow: %w", err)
		}
	}
	p.Projection, err = proj.Project(p.Timeline, b.Assumptions, flow)
	if err != nil {
		return nil, fmt.Errorf("project inflows: %w", err)
	}

	p.Engine, err = waterfall.NewEngine(s.engineConfig(b.Rules), s.logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Run simulates one bundle end to end. The context is checked before the
// run starts; an engine run is never interrupted.
func (s *Simulator) Run(ctx context.Context, b *inputs.Bundle) (*models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.Prepare(b)
	if err != nil {
		return nil, err
	}
	return s.Execute(p)
}

// Execute runs a prepared plan.
func (s *Simulator) Execute(p *Plan) (*models.Report, error) {
	started := time.Now()
	in := waterfall.Input{
		Scenario:    p.Bundle.Assumptions.Name,
		Timeline:    p.Timeline,
		Structure:   p.Bundle.Structure,
		Assumptions: p.Bundle.Assumptions,
		Inflows:     p.Projection.Inflows,
	}
	if p.Curve != nil {
		in.Rates = p.Curve
	}
	run, err := p.Engine.Run(in)
	if err != nil {
		return nil, fmt.Errorf("run waterfall: %w", err)
	}
	run.ID = uuid.NewString()
	run.Fingerprint = p.Key
	if len(p.Projection.Diagnostics) > 0 {
		run.Diagnostics = append(append([]models.Diagnostic(nil), p.Projection.Diagnostics...), run.Diagnostics...)
	}

	report := &models.Report{Run: run, KPIs: kpi.Summarize(run)}
	s.logger.Info("simulation complete",
		zap.String("run_id", run.ID),
		zap.String("bundle", p.Bundle.Name),
		zap.String("scenario", run.Scenario),
		zap.Int("periods", run.PeriodsSimulated()),
		zap.Int("diagnostics", len(run.Diagnostics)),
		zap.Bool("breach", report.KPIs.Fund.Breach),
		zap.Duration("elapsed", time.Since(started)))
	return report, nil
}
