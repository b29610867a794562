// Package waterfall applies the seniority-ordered disbursement rules of a
// receivables fund to a projected inflow, one period at a time.
//
// The engine is a strict fold over the timeline: period t starts from the
// ending state of period t-1. It performs no I/O and holds no state
// between runs.
package waterfall

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seenimoa/fidcsim/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Engine Configuration
// ════════════════════════════════════════════════════════════════════

// Config holds the rule choices of the engine.
type Config struct {
	Precision       int32                  // decimal places of money amounts (default: 2)
	Accrual         models.AccrualMethod   // used when the assumptions leave it empty (default: linear)
	ShortfallPolicy models.ShortfallPolicy // split of interest payments over arrears (default: oldest_first)
	PrincipalMode   models.PrincipalMode   // sweep or scheduled (default: sweep)
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Precision:       2,
		Accrual:         models.AccrualLinear,
		ShortfallPolicy: models.ShortfallOldestFirst,
		PrincipalMode:   models.PrincipalSweep,
	}
}

// RateSource supplies the floating index for an accrual interval: the flat
// annual rate equivalent over [start, end] and whether it was held past the
// last observed point.
type RateSource interface {
	PeriodRate(start, end time.Time) (rate float64, extrapolated bool, err error)
}

// Input is everything one run consumes. It is read, never modified.
type Input struct {
	Scenario    string
	Timeline    models.Timeline
	Structure   models.CapitalStructure
	Assumptions models.Assumptions
	Inflows     []models.PeriodInflow
	Rates       RateSource // may be nil when every class is fixed-rate
}

// ════════════════════════════════════════════════════════════════════
// Engine
// ════════════════════════════════════════════════════════════════════

// Engine runs waterfalls. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates an engine, filling config gaps with defaults.
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Precision < 0 || cfg.Precision > 12 {
		return nil, fmt.Errorf("%w: precision %d outside 0..12", models.ErrInvalidInput, cfg.Precision)
	}
	if cfg.Accrual == "" {
		cfg.Accrual = def.Accrual
	}
	if cfg.ShortfallPolicy == "" {
		cfg.ShortfallPolicy = def.ShortfallPolicy
	}
	if cfg.PrincipalMode == "" {
		cfg.PrincipalMode = def.PrincipalMode
	}
	switch cfg.ShortfallPolicy {
	case models.ShortfallOldestFirst, models.ShortfallProRata:
	default:
		return nil, fmt.Errorf("%w: unknown shortfall policy %q", models.ErrInvalidInput, cfg.ShortfallPolicy)
	}
	switch cfg.PrincipalMode {
	case models.PrincipalSweep, models.PrincipalScheduled:
	default:
		return nil, fmt.Errorf("%w: unknown principal mode %q", models.ErrInvalidInput, cfg.PrincipalMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger.Named("waterfall")}, nil
}

// Config returns the normalized engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// classState is the running claim of one class between periods.
type classState struct {
	q            models.QuotaClass
	principal    decimal.Decimal // outstanding principal
	interest     arrears         // capitalized unpaid interest
	principalDue decimal.Decimal // due but unpaid principal
	installment  decimal.Decimal // scheduled mode only
}

func (s *classState) balance() decimal.Decimal {
	return s.principal.Add(s.interest.total())
}

func (s *classState) terminal() bool {
	return s.balance().IsZero() && s.principalDue.IsZero()
}

// Run folds the waterfall over the timeline. Any invariant violation
// aborts with an error and no run.
func (e *Engine) Run(in Input) (*models.WaterfallRun, error) {
	if in.Timeline.Len() == 0 {
		return nil, fmt.Errorf("%w: empty timeline", models.ErrInvalidInput)
	}
	if len(in.Inflows) != in.Timeline.Len() {
		return nil, fmt.Errorf("%w: %d inflows for %d periods", models.ErrInvalidInput, len(in.Inflows), in.Timeline.Len())
	}
	if err := ValidateStructure(in.Structure); err != nil {
		return nil, err
	}
	if err := in.Assumptions.Validate(); err != nil {
		return nil, err
	}
	ordered := in.Structure.Ordered()
	if in.Rates == nil {
		for _, q := range ordered {
			if !q.FixedRate {
				return nil, fmt.Errorf("%w: class %s floats over the index but no curve was given", models.ErrInvalidInput, q.Name)
			}
		}
	}
	method := in.Assumptions.Accrual
	if method == "" {
		method = e.cfg.Accrual
		in.Assumptions.Accrual = method
	}

	prec := e.cfg.Precision
	states := make([]*classState, len(ordered))
	total := decimal.Zero
	for i, q := range ordered {
		st := &classState{q: q, principal: q.Face}
		if am := q.Amortization; am != nil {
			st.installment = q.Face.Div(decimal.NewFromInt(int64(am.Installments))).Round(prec)
		}
		states[i] = st
		total = total.Add(q.Face)
	}
	structure := in.Structure
	structure.TotalIssued = total

	run := &models.WaterfallRun{
		Scenario:            in.Scenario,
		Timeline:            in.Timeline,
		Structure:           structure,
		Assumptions:         in.Assumptions,
		Inflows:             in.Inflows,
		Results:             make([]models.PeriodResult, 0, len(ordered)*in.Timeline.Len()),
		Cash:                make([]models.PeriodCash, 0, in.Timeline.Len()),
		LastPeriod:          in.Timeline.Len() - 1,
		UndistributedInflow: decimal.Zero,
	}

	var (
		reserve     = decimal.Zero
		feeArrears  = decimal.Zero
		last        = in.Timeline.Len() - 1
		junior      = len(states) - 1
		feeRate     = decimal.NewFromFloat(in.Assumptions.FeeRate)
		minFee      = decimal.NewFromFloat(in.Assumptions.MinFee).Round(prec)
		reserveRate = decimal.NewFromFloat(in.Assumptions.ReserveRatio)
	)

	for t, per := range in.Timeline.Periods {
		final := t == last

		// ─── Index rate ─────────────────────────────────────────────
		index := 0.0
		if in.Rates != nil {
			r, extrapolated, err := in.Rates.PeriodRate(per.Start, per.End)
			if err != nil {
				return nil, fmt.Errorf("period %d index rate: %w", t, err)
			}
			if !finite(r) {
				return nil, fmt.Errorf("%w: period %d index rate %v is not finite", models.ErrInvalidInput, t, r)
			}
			index = r
			if extrapolated {
				run.Diagnostics = append(run.Diagnostics, models.Diagnostic{
					Level:   models.LevelWarning,
					Code:    models.CodeCurveExtrapolation,
					Period:  t,
					Message: fmt.Sprintf("index held flat past the last curve point for period ending %s", per.End.Format("2006-01-02")),
				})
				e.logger.Warn("curve extrapolated",
					zap.String("scenario", in.Scenario),
					zap.Int("period", t),
					zap.Time("period_end", per.End),
					zap.Float64("rate", r))
			}
		}

		// ─── Accrual ────────────────────────────────────────────────
		rows := make([]models.PeriodResult, len(states))
		outstanding := decimal.Zero
		interestDue := decimal.Zero
		for i, st := range states {
			beg := st.balance()
			annual, factor := classRate(index, st.q, per.Fraction, method)
			if !finite(factor) {
				return nil, fmt.Errorf("%w: period %d class %s accrual factor %v is not finite", models.ErrInvalidInput, t, st.q.Name, factor)
			}
			accrued := beg.Mul(decimal.NewFromFloat(factor)).Round(prec)
			if accrued.IsPositive() {
				st.interest = append(st.interest, vintage{period: t, amount: accrued})
			}
			rows[i] = models.PeriodResult{
				Period:           t,
				PaymentDate:      per.PaymentDate,
				Class:            st.q.Name,
				Rank:             st.q.Rank,
				Rate:             annual,
				BeginningBalance: beg,
				InterestAccrued:  decimal.Max(accrued, decimal.Zero),
			}
			outstanding = outstanding.Add(beg)
			interestDue = interestDue.Add(st.interest.total())
		}

		// ─── Fees and reserve ───────────────────────────────────────
		inflow := in.Inflows[t].Gross
		cash := models.PeriodCash{
			Period:      t,
			PaymentDate: per.PaymentDate,
			IndexRate:   index,
			Inflow:      inflow,
			InterestDue: interestDue,
		}

		target := outstanding.Mul(reserveRate).Round(prec)
		if final {
			target = decimal.Zero
		}
		if reserve.GreaterThan(target) {
			cash.ReserveReleased = reserve.Sub(target)
			reserve = target
		}
		avail := inflow.Add(cash.ReserveReleased)

		feeDue := feeArrears
		if feeRate.IsPositive() || minFee.IsPositive() {
			fee := outstanding.Mul(feeRate).Mul(decimal.NewFromFloat(per.Fraction)).Round(prec)
			feeDue = feeDue.Add(decimal.Max(fee, minFee))
		}
		cash.FeesDue = feeDue
		cash.FeesPaid = decimal.Min(avail, feeDue)
		avail = avail.Sub(cash.FeesPaid)
		feeArrears = feeDue.Sub(cash.FeesPaid)
		if feeArrears.IsPositive() {
			run.Diagnostics = append(run.Diagnostics, models.Diagnostic{
				Level:   models.LevelWarning,
				Code:    models.CodeFeeArrears,
				Period:  t,
				Message: fmt.Sprintf("fees of %s carried unpaid", feeArrears.StringFixed(prec)),
			})
		}

		if target.GreaterThan(reserve) {
			cash.ReserveTopUp = decimal.Min(target.Sub(reserve), avail)
			avail = avail.Sub(cash.ReserveTopUp)
			reserve = reserve.Add(cash.ReserveTopUp)
		}
		cash.Available = avail
		if interestDue.IsPositive() {
			cash.Coverage = avail.Div(interestDue).InexactFloat64()
		}

		// ─── Interest, senior first ─────────────────────────────────
		for i, st := range states {
			due := st.interest.total()
			pay := decimal.Min(avail, due)
			st.interest = st.interest.settle(pay, e.cfg.ShortfallPolicy, prec)
			rows[i].InterestPaid = pay
			avail = avail.Sub(pay)
			cash.InterestPaid = cash.InterestPaid.Add(pay)
		}

		// ─── Principal, senior first ────────────────────────────────
		for i, st := range states {
			due := e.principalDue(st, t, final)
			pay := decimal.Min(avail, due)
			st.principal = st.principal.Sub(pay)
			switch {
			case final || e.cfg.PrincipalMode == models.PrincipalScheduled:
				st.principalDue = due.Sub(pay)
			default:
				st.principalDue = decimal.Zero
			}
			rows[i].PrincipalPaid = pay
			avail = avail.Sub(pay)
			cash.PrincipalPaid = cash.PrincipalPaid.Add(pay)
		}

		// ─── Residual to the most junior class ──────────────────────
		if avail.IsPositive() {
			rows[junior].ResidualPaid = avail
			cash.Residual = avail
		}

		done := true
		for _, st := range states {
			if !st.terminal() {
				done = false
				break
			}
		}
		early := done && !final
		if early && reserve.IsPositive() {
			cash.ReserveReleased = cash.ReserveReleased.Add(reserve)
			rows[junior].ResidualPaid = rows[junior].ResidualPaid.Add(reserve)
			cash.Residual = cash.Residual.Add(reserve)
			reserve = decimal.Zero
		}
		cash.ReserveBalance = reserve

		// ─── Close the period ───────────────────────────────────────
		ending := decimal.Zero
		for _, st := range states {
			ending = ending.Add(st.balance())
		}
		below := ending
		for i, st := range states {
			r := &rows[i]
			r.EndingBalance = st.balance()
			r.OutstandingPrincipal = st.principal
			r.InterestShortfall = st.interest.total()
			r.PrincipalShortfall = st.principalDue
			r.ShortfallSince = st.interest.since()

			identity := r.BeginningBalance.Add(r.InterestAccrued).Sub(r.InterestPaid).Sub(r.PrincipalPaid)
			if !identity.Equal(r.EndingBalance) || r.EndingBalance.IsNegative() {
				return nil, fmt.Errorf("period %d class %s: balance identity broken (%s vs %s)", t, r.Class, identity, r.EndingBalance)
			}

			below = below.Sub(r.EndingBalance)
			if ending.IsPositive() {
				r.Subordination = below.Div(ending).InexactFloat64()
				share := r.EndingBalance.Div(ending).InexactFloat64()
				if floor := st.q.SubordinationFloor; floor > 0 && r.EndingBalance.IsPositive() && share < floor {
					run.Diagnostics = append(run.Diagnostics, models.Diagnostic{
						Level:   models.LevelWarning,
						Code:    models.CodeSubordinationFloor,
						Period:  t,
						Class:   st.q.Name,
						Message: fmt.Sprintf("class share %.4f below floor %.4f", share, floor),
					})
				}
			}
		}

		out := cash.FeesPaid.Add(cash.ReserveTopUp).Add(cash.InterestPaid).Add(cash.PrincipalPaid).Add(cash.Residual)
		if !out.Equal(inflow.Add(cash.ReserveReleased)) {
			return nil, fmt.Errorf("period %d: cash not conserved (%s out of %s)", t, out, inflow.Add(cash.ReserveReleased))
		}

		run.Results = append(run.Results, rows...)
		run.Cash = append(run.Cash, cash)

		if early {
			run.LastPeriod = t
			run.TerminatedEarly = true
			for _, rest := range in.Inflows[t+1:] {
				run.UndistributedInflow = run.UndistributedInflow.Add(rest.Gross)
			}
			run.Diagnostics = append(run.Diagnostics, models.Diagnostic{
				Level:  models.LevelInfo,
				Code:   models.CodeEarlyTermination,
				Period: t,
				Message: fmt.Sprintf("all classes settled in period %d of %d; %s of later inflow not distributed",
					t, last, run.UndistributedInflow.StringFixed(prec)),
			})
			break
		}
	}

	e.logger.Debug("waterfall run complete",
		zap.String("scenario", in.Scenario),
		zap.Int("periods", len(run.Cash)),
		zap.Bool("terminated_early", run.TerminatedEarly),
		zap.Int("diagnostics", len(run.Diagnostics)))
	return run, nil
}

// principalDue is the principal a class may receive this period, capped at
// its outstanding principal.
func (e *Engine) principalDue(st *classState, t int, final bool) decimal.Decimal {
	if final || e.cfg.PrincipalMode == models.PrincipalSweep {
		return st.principal
	}
	due := st.principalDue
	if am := st.q.Amortization; am != nil && t >= am.GracePeriods && t < am.GracePeriods+am.Installments {
		if t == am.GracePeriods+am.Installments-1 {
			return st.principal
		}
		due = due.Add(st.installment)
	}
	return decimal.Min(due, st.principal)
}

// classRate returns the annual rate of a class and the accrual factor over
// a period fraction. Negative factors are floored at zero.
func classRate(index float64, q models.QuotaClass, fraction float64, method models.AccrualMethod) (annual, factor float64) {
	if q.FixedRate {
		index = 0
	}
	switch method {
	case models.AccrualExponential:
		annual = (1+index)*(1+q.Spread) - 1
		factor = math.Pow(1+annual, fraction) - 1
	default:
		annual = index + q.Spread
		factor = annual * fraction
	}
	if factor < 0 {
		factor = 0
	}
	return annual, factor
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
