package curve

import (
	"fmt"
	"sort"

	"github.com/seenimoa/fidcsim/pkg/models"
)

// spline is a natural cubic spline: S_i(x) = a + b·dx + c·dx² + d·dx³ on
// [x_i, x_i+1], with zero curvature at both ends.
type spline struct {
	xs, a, b, c, d []float64
}

func newSpline(xs, ys []float64) (*spline, error) {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return nil, fmt.Errorf("%w: spline needs at least two matching points", models.ErrInvalidInput)
	}
	h := make([]float64, n-1)
	for i := range h {
		h[i] = xs[i+1] - xs[i]
		if h[i] <= 0 {
			return nil, fmt.Errorf("%w: spline abscissae must be strictly increasing", models.ErrInvalidInput)
		}
	}

	a := append([]float64(nil), ys...)
	alpha := make([]float64, n)
	for i := 1; i < n-1; i++ {
		alpha[i] = 3/h[i]*(a[i+1]-a[i]) - 3/h[i-1]*(a[i]-a[i-1])
	}

	// tridiagonal solve for c
	c := make([]float64, n)
	l := make([]float64, n)
	mu := make([]float64, n)
	z := make([]float64, n)
	l[0] = 1
	for i := 1; i < n-1; i++ {
		l[i] = 2*(xs[i+1]-xs[i-1]) - h[i-1]*mu[i-1]
		mu[i] = h[i] / l[i]
		z[i] = (alpha[i] - h[i-1]*z[i-1]) / l[i]
	}
	b := make([]float64, n-1)
	d := make([]float64, n-1)
	for j := n - 2; j >= 0; j-- {
		c[j] = z[j] - mu[j]*c[j+1]
		b[j] = (a[j+1]-a[j])/h[j] - h[j]*(c[j+1]+2*c[j])/3
		d[j] = (c[j+1] - c[j]) / (3 * h[j])
	}
	return &spline{xs: append([]float64(nil), xs...), a: a, b: b, c: c[:n-1], d: d}, nil
}

// eval assumes xs[0] <= x <= xs[n-1]; the curve handles the outside.
func (s *spline) eval(x float64) float64 {
	i := sort.SearchFloat64s(s.xs, x) - 1
	if i < 0 {
		i = 0
	}
	if i > len(s.b)-1 {
		i = len(s.b) - 1
	}
	dx := x - s.xs[i]
	return s.a[i] + s.b[i]*dx + s.c[i]*dx*dx + s.d[i]*dx*dx*dx
}
