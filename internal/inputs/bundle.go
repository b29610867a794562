package inputs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/internal/calendar"
	"github.com/seenimoa/fidcsim/internal/schedule"
	"github.com/seenimoa/fidcsim/pkg/models"
	"github.com/seenimoa/fidcsim/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Typed bundle
// ════════════════════════════════════════════════════════════════════

// TimelineSpec describes how the timeline is built. Explicit Dates win
// over Start/Maturity/Frequency.
type TimelineSpec struct {
	Dates      []time.Time                  `json:"dates,omitempty"`
	Start      time.Time                    `json:"start"`
	Maturity   time.Time                    `json:"maturity"`
	Frequency  schedule.Frequency           `json:"frequency"`
	Convention models.BusinessDayConvention `json:"convention"`
	DayCount   models.DayCount              `json:"day_count,omitempty"` // empty: the assumptions' day count
}

// Params converts the timeline into generator parameters accruing under dc.
func (s TimelineSpec) Params(dc models.DayCount) schedule.Params {
	return schedule.Params{
		Start:      s.Start,
		Maturity:   s.Maturity,
		Frequency:  s.Frequency,
		Convention: s.Convention,
		DayCount:   dc,
	}
}

// CurveSpec holds the index curve. Offset points still need a calendar to
// be dated and are resolved by the simulator.
type CurveSpec struct {
	Base          time.Time            `json:"base"`
	Interpolation models.Interpolation `json:"interpolation,omitempty"` // empty: simulator default
	DayCount      models.DayCount      `json:"day_count"`
	Points        []models.CurvePoint  `json:"points,omitempty"`
	Offsets       []int                `json:"offsets,omitempty"`
	OffsetRates   []float64            `json:"offset_rates,omitempty"`
}

// Rules are per-bundle waterfall rule overrides.
type Rules struct {
	ShortfallPolicy models.ShortfallPolicy `json:"shortfall_policy,omitempty"`
	PrincipalMode   models.PrincipalMode   `json:"principal_mode,omitempty"`
}

// Bundle is a validated input bundle.
type Bundle struct {
	Name        string                  `json:"name"`
	Timeline    TimelineSpec            `json:"timeline"`
	Holidays    []time.Time             `json:"holidays"`
	Curve       *CurveSpec              `json:"curve,omitempty"`
	BaseFlow    []models.BaseFlowRow    `json:"base_flow,omitempty"`
	Pool        *models.ReceivablesPool `json:"pool,omitempty"`
	Structure   models.CapitalStructure `json:"structure"`
	Assumptions models.Assumptions      `json:"assumptions"`
	Rules       Rules                   `json:"rules"`

	// Fingerprint is the xxhash of the bundle content; identical bundles
	// share it.
	Fingerprint string `json:"-"`
}

// Parse decodes and validates a JSON bundle.
func Parse(data []byte) (*Bundle, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %v", models.ErrInvalidInput, err)
	}
	return Build(&doc)
}

// Build validates a decoded document. Every missing or invalid field is
// reported in one InvalidInputError.
func Build(doc *Document) (*Bundle, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil bundle", models.ErrInvalidInput)
	}
	verr := &models.InvalidInputError{}
	b := &Bundle{Name: strings.TrimSpace(doc.Name)}

	b.Assumptions = applyAssumptions(models.DefaultAssumptions(), doc.Assumptions, "assumptions", verr)
	if b.Name == "" {
		b.Name = b.Assumptions.Name
	}
	b.Holidays = parseDates(doc.Holidays, "holidays", verr)
	b.Timeline = buildTimeline(doc.Timeline, verr)
	b.Curve = buildCurve(doc.Curve, verr)
	b.BaseFlow, b.Pool = buildFlow(doc.BaseFlow, doc.Pool, verr)
	b.Structure = buildStructure(doc.Structure, verr)
	b.Rules = buildRules(doc.Rules, verr)

	if b.Curve == nil {
		for _, q := range b.Structure.Classes {
			if !q.FixedRate {
				verr.AddMissing("curve")
				break
			}
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	fp, err := fingerprint(b)
	if err != nil {
		return nil, err
	}
	b.Fingerprint = fp
	return b, nil
}

// TimelineDayCount is the convention the timeline accrues under: the
// timeline's own day_count when set, else the assumptions' one.
func (b *Bundle) TimelineDayCount() models.DayCount {
	if b.Timeline.DayCount != "" {
		return b.Timeline.DayCount
	}
	return b.Assumptions.DayCount
}

// WithAssumptions returns a copy of the bundle running under a, with its
// fingerprint recomputed.
func (b *Bundle) WithAssumptions(a models.Assumptions) (*Bundle, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	out := *b
	out.Assumptions = a
	fp, err := fingerprint(&out)
	if err != nil {
		return nil, err
	}
	out.Fingerprint = fp
	return &out, nil
}

// Override applies a partial assumptions document on top of base.
func Override(base models.Assumptions, doc *AssumptionsDoc) (models.Assumptions, error) {
	verr := &models.InvalidInputError{}
	a := applyAssumptions(base, doc, "override", verr)
	if err := verr.OrNil(); err != nil {
		return models.Assumptions{}, err
	}
	return a, nil
}

func fingerprint(b *Bundle) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("fingerprint bundle: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(raw), 16), nil
}

// ────────────────────────────────────────────────────────────────────
// Sections
// ────────────────────────────────────────────────────────────────────

func applyAssumptions(a models.Assumptions, doc *AssumptionsDoc, prefix string, verr *models.InvalidInputError) models.Assumptions {
	if doc == nil {
		return a
	}
	if doc.Name != nil {
		a.Name = *doc.Name
	}
	if doc.DefaultRate != nil {
		a.DefaultRate = *doc.DefaultRate
	}
	if doc.PrepaymentRate != nil {
		a.PrepaymentRate = *doc.PrepaymentRate
	}
	if doc.RecoveryRate != nil {
		a.RecoveryRate = *doc.RecoveryRate
	}
	if doc.RecoveryLag != nil {
		a.RecoveryLag = *doc.RecoveryLag
	}
	if doc.AssetSpread != nil {
		a.AssetSpread = *doc.AssetSpread
	}
	if doc.FeeRate != nil {
		a.FeeRate = *doc.FeeRate
	}
	if doc.MinFee != nil {
		a.MinFee = *doc.MinFee
	}
	if doc.ReserveRatio != nil {
		a.ReserveRatio = *doc.ReserveRatio
	}
	if doc.DayCount != nil {
		dc, err := calendar.ParseDayCount(*doc.DayCount)
		if err != nil {
			verr.AddInvalid(prefix+".day_count", err.Error())
		} else {
			a.DayCount = dc
		}
	}
	if doc.Accrual != nil {
		switch m := models.AccrualMethod(strings.ToLower(strings.TrimSpace(*doc.Accrual))); m {
		case models.AccrualLinear, models.AccrualExponential:
			a.Accrual = m
		default:
			verr.AddInvalid(prefix+".accrual", fmt.Sprintf("unknown method %q", *doc.Accrual))
		}
	}

	// Range checks report under the same prefix as the parse errors.
	var ierr *models.InvalidInputError
	if err := a.Validate(); errors.As(err, &ierr) {
		for _, inv := range ierr.Invalid {
			verr.Invalid = append(verr.Invalid, prefix+strings.TrimPrefix(inv, "assumptions"))
		}
	}
	return a
}

func buildTimeline(doc *TimelineDoc, verr *models.InvalidInputError) TimelineSpec {
	tl := TimelineSpec{
		Frequency:  schedule.Monthly,
		Convention: models.ModifiedFollowing,
	}
	if doc == nil {
		verr.AddMissing("timeline")
		return tl
	}
	if doc.Frequency != "" {
		f, err := schedule.ParseFrequency(doc.Frequency)
		if err != nil {
			verr.AddInvalid("timeline.frequency", err.Error())
		}
		tl.Frequency = f
	}
	if doc.Convention != "" {
		c, err := calendar.ParseConvention(doc.Convention)
		if err != nil {
			verr.AddInvalid("timeline.convention", err.Error())
		}
		tl.Convention = c
	}
	if doc.DayCount != "" {
		dc, err := calendar.ParseDayCount(doc.DayCount)
		if err != nil {
			verr.AddInvalid("timeline.day_count", err.Error())
		}
		tl.DayCount = dc
	}

	if len(doc.Dates) > 0 {
		if len(doc.Dates) < 2 {
			verr.AddInvalid("timeline.dates", "need at least two boundary dates")
		}
		tl.Dates = parseDates(doc.Dates, "timeline.dates", verr)
		if len(tl.Dates) > 0 {
			tl.Start, tl.Maturity = tl.Dates[0], tl.Dates[len(tl.Dates)-1]
		}
		return tl
	}
	tl.Start = requiredDate(doc.Start, "timeline.start", verr)
	tl.Maturity = requiredDate(doc.Maturity, "timeline.maturity", verr)
	if !tl.Start.IsZero() && !tl.Maturity.IsZero() && !tl.Maturity.After(tl.Start) {
		verr.AddInvalid("timeline.maturity", "must be after timeline.start")
	}
	return tl
}

func buildCurve(doc *CurveDoc, verr *models.InvalidInputError) *CurveSpec {
	if doc == nil {
		return nil
	}
	cs := &CurveSpec{DayCount: models.DayCountBus252}
	if doc.Interpolation != "" {
		switch m := models.Interpolation(strings.ToLower(strings.TrimSpace(doc.Interpolation))); m {
		case models.FlatForward, models.Linear, models.CubicSpline:
			cs.Interpolation = m
		default:
			verr.AddInvalid("curve.interpolation", fmt.Sprintf("unknown interpolation %q", doc.Interpolation))
		}
	}
	if doc.DayCount != "" {
		dc, err := calendar.ParseDayCount(doc.DayCount)
		if err != nil {
			verr.AddInvalid("curve.day_count", err.Error())
		}
		cs.DayCount = dc
	}
	if len(doc.Points) == 0 && len(doc.Offsets) == 0 {
		verr.AddMissing("curve.points")
	}
	for i, p := range doc.Points {
		d := requiredDate(p.Date, fmt.Sprintf("curve.points[%d].date", i), verr)
		cs.Points = append(cs.Points, models.CurvePoint{Date: d, Rate: p.Rate})
	}
	for _, o := range doc.Offsets {
		cs.Offsets = append(cs.Offsets, o.BusinessDays)
		cs.OffsetRates = append(cs.OffsetRates, o.Rate)
	}
	if doc.BaseDate != "" {
		cs.Base = requiredDate(doc.BaseDate, "curve.base_date", verr)
	} else if len(doc.Offsets) > 0 {
		verr.AddMissing("curve.base_date")
	}
	return cs
}

func buildFlow(rows []BaseFlowDoc, pool *PoolDoc, verr *models.InvalidInputError) ([]models.BaseFlowRow, *models.ReceivablesPool) {
	if len(rows) == 0 && pool == nil {
		verr.AddMissing("base_flow")
		return nil, nil
	}
	if len(rows) > 0 {
		out := make([]models.BaseFlowRow, 0, len(rows))
		for i, r := range rows {
			d := requiredDate(r.Date, fmt.Sprintf("base_flow[%d].date", i), verr)
			out = append(out, models.BaseFlowRow{Date: d, Amount: r.Amount})
		}
		return out, nil
	}
	if !pool.Volume.IsPositive() {
		verr.AddInvalid("pool.volume", "must be positive")
	}
	if pool.TermPeriods < 0 {
		verr.AddInvalid("pool.term_periods", "must not be negative")
	}
	return nil, &models.ReceivablesPool{Volume: pool.Volume, MonthlyRate: pool.MonthlyRate, TermPeriods: pool.TermPeriods}
}

func buildStructure(doc *StructureDoc, verr *models.InvalidInputError) models.CapitalStructure {
	cs := models.CapitalStructure{TotalIssued: decimal.Zero}
	if doc == nil {
		verr.AddMissing("structure")
		return cs
	}
	if len(doc.Classes) == 0 {
		verr.AddMissing("structure.classes")
		return cs
	}
	if doc.TotalIssued != nil {
		cs.TotalIssued = *doc.TotalIssued
	}
	for i, c := range doc.Classes {
		field := fmt.Sprintf("structure.classes[%d]", i)
		q := models.QuotaClass{
			Name:               strings.TrimSpace(c.Name),
			Rank:               c.Rank,
			Spread:             c.Spread,
			FixedRate:          c.FixedRate,
			SubordinationFloor: c.SubordinationFloor,
			Amortization:       c.Amortization,
		}
		if q.Name == "" {
			verr.AddMissing(field + ".name")
		}
		if q.Rank == 0 {
			verr.AddMissing(field + ".rank")
		}
		switch {
		case c.Face != nil:
			q.Face = *c.Face
		case c.Share != nil && doc.Volume != nil:
			q.Face = doc.Volume.Mul(decimal.NewFromFloat(*c.Share)).Round(2)
		case c.Share != nil:
			verr.AddMissing("structure.volume")
		default:
			verr.AddMissing(field + ".face")
		}
		cs.Classes = append(cs.Classes, q)
	}
	if doc.Volume != nil && cs.TotalIssued.IsZero() {
		cs.TotalIssued = *doc.Volume
	}
	return cs
}

func buildRules(doc *RulesDoc, verr *models.InvalidInputError) Rules {
	var r Rules
	if doc == nil {
		return r
	}
	switch p := models.ShortfallPolicy(doc.ShortfallPolicy); p {
	case "", models.ShortfallOldestFirst, models.ShortfallProRata:
		r.ShortfallPolicy = p
	default:
		verr.AddInvalid("rules.shortfall_policy", fmt.Sprintf("unknown policy %q", doc.ShortfallPolicy))
	}
	switch m := models.PrincipalMode(doc.PrincipalMode); m {
	case "", models.PrincipalSweep, models.PrincipalScheduled:
		r.PrincipalMode = m
	default:
		verr.AddInvalid("rules.principal_mode", fmt.Sprintf("unknown mode %q", doc.PrincipalMode))
	}
	return r
}

// ────────────────────────────────────────────────────────────────────
// Dates
// ────────────────────────────────────────────────────────────────────

func requiredDate(s, field string, verr *models.InvalidInputError) time.Time {
	if strings.TrimSpace(s) == "" {
		verr.AddMissing(field)
		return time.Time{}
	}
	d, err := utils.ParseDate(s)
	if err != nil {
		verr.AddInvalid(field, err.Error())
		return time.Time{}
	}
	return d
}

func parseDates(in []string, field string, verr *models.InvalidInputError) []time.Time {
	out := make([]time.Time, 0, len(in))
	for i, s := range in {
		d, err := utils.ParseDate(s)
		if err != nil {
			verr.AddInvalid(fmt.Sprintf("%s[%d]", field, i), err.Error())
			continue
		}
		out = append(out, d)
	}
	return out
}
