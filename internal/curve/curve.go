// Package curve interpolates the floating index (CDI) from observed
// (date, annual rate) points and compounds it over date intervals.
//
// Rates are annual and compounded exponentially over the curve's day-count
// fraction: one unit grows to (1+r)^τ. Outside the observed range the
// nearest rate is held flat; queries past the last point report
// extrapolation so the caller can surface it.
package curve

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/seenimoa/fidcsim/internal/calendar"
	"github.com/seenimoa/fidcsim/pkg/models"
	"github.com/seenimoa/fidcsim/pkg/utils"
)

// Options configure how a curve is read.
type Options struct {
	Interpolation models.Interpolation
	DayCount      models.DayCount
}

// Curve is an immutable rate curve.
type Curve struct {
	base   time.Time
	points []models.CurvePoint
	xs     []float64 // year fraction of each point from base
	interp models.Interpolation
	dc     models.DayCount
	cal    *calendar.Calendar
	spline *spline
}

// New builds a curve. The base date anchors the time axis: points dated
// before it are rejected, as are duplicate or unordered dates. A zero base
// uses the first point's date.
func New(base time.Time, points []models.CurvePoint, cal *calendar.Calendar, opts Options) (*Curve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: curve has no points", models.ErrInvalidInput)
	}
	if opts.Interpolation == "" {
		opts.Interpolation = models.FlatForward
	}
	if opts.DayCount == "" {
		opts.DayCount = models.DayCountBus252
	}
	switch opts.Interpolation {
	case models.FlatForward, models.Linear, models.CubicSpline:
	default:
		return nil, fmt.Errorf("%w: unknown interpolation %q", models.ErrInvalidInput, opts.Interpolation)
	}

	pts := make([]models.CurvePoint, len(points))
	for i, p := range points {
		pts[i] = models.CurvePoint{Date: calendar.Civil(p.Date), Rate: p.Rate}
	}
	if base.IsZero() {
		base = pts[0].Date
	}
	base = calendar.Civil(base)

	c := &Curve{base: base, points: pts, interp: opts.Interpolation, dc: opts.DayCount, cal: cal}
	c.xs = make([]float64, len(pts))
	for i, p := range pts {
		if p.Date.Before(base) {
			return nil, models.DateRangeError("negative curve date: point %s before base %s",
				utils.FormatDate(p.Date), utils.FormatDate(base))
		}
		if i > 0 && !p.Date.After(pts[i-1].Date) {
			return nil, models.DateRangeError("curve dates must be strictly increasing: %s after %s",
				utils.FormatDate(p.Date), utils.FormatDate(pts[i-1].Date))
		}
		if p.Rate <= -1 {
			return nil, fmt.Errorf("%w: curve rate %g at %s not above -100%%", models.ErrInvalidInput, p.Rate, utils.FormatDate(p.Date))
		}
		x, err := cal.DayCount(base, p.Date, c.dc)
		if err != nil {
			return nil, err
		}
		c.xs[i] = x
	}
	if c.interp == models.CubicSpline {
		// points sharing an abscissa (no business day between them) keep
		// the earliest rate
		var xs, ys []float64
		for i, p := range pts {
			if i > 0 && c.xs[i] == c.xs[i-1] {
				continue
			}
			xs, ys = append(xs, c.xs[i]), append(ys, p.Rate)
		}
		if len(xs) >= 3 {
			sp, err := newSpline(xs, ys)
			if err != nil {
				return nil, err
			}
			c.spline = sp
		}
	}
	return c, nil
}

// PointsFromOffsets places rates at business-day offsets (DU) from base.
func PointsFromOffsets(base time.Time, offsets []int, rates []float64, cal *calendar.Calendar) ([]models.CurvePoint, error) {
	if len(offsets) != len(rates) {
		return nil, fmt.Errorf("%w: %d offsets for %d rates", models.ErrInvalidInput, len(offsets), len(rates))
	}
	out := make([]models.CurvePoint, len(offsets))
	for i, du := range offsets {
		if du < 0 {
			return nil, models.DateRangeError("negative curve offset %d", du)
		}
		out[i] = models.CurvePoint{Date: cal.AddBusinessDays(base, du), Rate: rates[i]}
	}
	return out, nil
}

// Base returns the anchor date of the time axis.
func (c *Curve) Base() time.Time { return c.base }

// Points returns a copy of the observed points.
func (c *Curve) Points() []models.CurvePoint {
	out := make([]models.CurvePoint, len(c.points))
	copy(out, c.points)
	return out
}

// LastDate returns the date of the last observed point.
func (c *Curve) LastDate() time.Time { return c.points[len(c.points)-1].Date }

// RateAt returns the interpolated annual rate at date. extrapolated is true
// when date lies after the last point; the last rate is then held.
func (c *Curve) RateAt(date time.Time) (rate float64, extrapolated bool) {
	date = calendar.Civil(date)
	n := len(c.points)
	if date.After(c.points[n-1].Date) {
		return c.points[n-1].Rate, true
	}
	if !date.After(c.points[0].Date) {
		return c.points[0].Rate, false
	}
	// first index with point date > date; the left bracket is i-1
	i := sort.Search(n, func(i int) bool { return c.points[i].Date.After(date) })
	if i == n {
		return c.points[n-1].Rate, false
	}
	left := c.points[i-1]
	switch c.interp {
	case models.Linear:
		return c.lerp(i, date), false
	case models.CubicSpline:
		if c.spline == nil {
			return c.lerp(i, date), false
		}
		return c.spline.eval(c.x(date)), false
	default:
		return left.Rate, false
	}
}

// lerp interpolates linearly between points i-1 and i. Points with the same
// abscissa hold the left rate.
func (c *Curve) lerp(i int, date time.Time) float64 {
	left, right := c.points[i-1], c.points[i]
	span := c.xs[i] - c.xs[i-1]
	if span <= 0 {
		return left.Rate
	}
	w := (c.x(date) - c.xs[i-1]) / span
	return left.Rate + w*(right.Rate-left.Rate)
}

func (c *Curve) x(date time.Time) float64 {
	x, err := c.cal.DayCount(c.base, date, c.dc)
	if err != nil {
		return 0
	}
	return x
}

// DiscountFactor compounds the curve from a to b piecewise between curve
// points: Π (1+r_i)^(−τ_i). extrapolated is true when any part of the
// interval lies after the last point.
func (c *Curve) DiscountFactor(a, b time.Time) (float64, bool, error) {
	a, b = calendar.Civil(a), calendar.Civil(b)
	if b.Before(a) {
		return 0, false, models.DateRangeError("discount factor end %s before start %s",
			utils.FormatDate(b), utils.FormatDate(a))
	}
	logDF := 0.0
	cur := a
	for cur.Before(b) {
		next := b
		for _, p := range c.points {
			if p.Date.After(cur) {
				if p.Date.Before(b) {
					next = p.Date
				}
				break
			}
		}
		tau, err := c.cal.DayCount(cur, next, c.dc)
		if err != nil {
			return 0, false, err
		}
		logDF -= tau * math.Log1p(c.segmentRate(cur, next))
		cur = next
	}
	return math.Exp(logDF), b.After(c.LastDate()), nil
}

// segmentRate is the rate applied over [s, e], an interval containing no
// curve point in its interior.
func (c *Curve) segmentRate(s, e time.Time) float64 {
	rs, _ := c.RateAt(s)
	if c.interp == models.FlatForward {
		return rs
	}
	re, _ := c.RateAt(e)
	return (rs + re) / 2
}

// CompoundFactor is the inverse of DiscountFactor: the growth of one unit
// invested at the index from a to b.
func (c *Curve) CompoundFactor(a, b time.Time) (float64, bool, error) {
	df, ext, err := c.DiscountFactor(a, b)
	if err != nil {
		return 0, false, err
	}
	return 1 / df, ext, nil
}

// PeriodRate returns the flat annual rate equivalent to compounding the
// curve over [a, b]. A zero-length interval returns the spot rate at a.
func (c *Curve) PeriodRate(a, b time.Time) (float64, bool, error) {
	f, ext, err := c.CompoundFactor(a, b)
	if err != nil {
		return 0, false, err
	}
	tau, err := c.cal.DayCount(a, b, c.dc)
	if err != nil {
		return 0, false, err
	}
	if tau == 0 {
		r, e := c.RateAt(a)
		return r, e || ext, nil
	}
	return math.Pow(f, 1/tau) - 1, ext, nil
}
