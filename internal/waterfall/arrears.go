package waterfall

import (
	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/pkg/models"
)

// vintage is unpaid interest accrued in one period.
type vintage struct {
	period int
	amount decimal.Decimal
}

// arrears is the interest shortfall of a class, oldest vintage first.
type arrears []vintage

func (a arrears) total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range a {
		sum = sum.Add(v.amount)
	}
	return sum
}

// since returns the period of the oldest unpaid vintage.
func (a arrears) since() int {
	if len(a) == 0 {
		return models.NoPeriod
	}
	return a[0].period
}

// settle applies pay to the vintages and drops the cleared ones. pay must
// not exceed total().
func (a arrears) settle(pay decimal.Decimal, policy models.ShortfallPolicy, precision int32) arrears {
	if !pay.IsPositive() {
		return a
	}
	if policy == models.ShortfallProRata {
		total := a.total()
		left := pay
		for i := range a {
			share := a[i].amount.Mul(pay).Div(total).Round(precision)
			share = decimal.Min(share, a[i].amount, left)
			a[i].amount = a[i].amount.Sub(share)
			left = left.Sub(share)
		}
		// rounding remainder goes to the oldest vintages
		pay = left
	}
	for i := range a {
		if !pay.IsPositive() {
			break
		}
		take := decimal.Min(pay, a[i].amount)
		a[i].amount = a[i].amount.Sub(take)
		pay = pay.Sub(take)
	}
	out := a[:0]
	for _, v := range a {
		if v.amount.IsPositive() {
			out = append(out, v)
		}
	}
	return out
}
