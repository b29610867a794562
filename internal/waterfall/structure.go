package waterfall

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/pkg/models"
)

// ValidateStructure checks the capital structure invariants: at least one
// class, unique names, unique ranks forming 1..N, positive faces summing to
// the total issued amount, and initial shares honoring each class's
// subordination floor. Duplicate ranks are never tie-broken.
func ValidateStructure(cs models.CapitalStructure) error {
	if len(cs.Classes) == 0 {
		return fmt.Errorf("%w: capital structure has no quota classes", models.ErrInvalidInput)
	}

	names := make(map[string]bool, len(cs.Classes))
	ranks := make(map[int]string, len(cs.Classes))
	sum := decimal.Zero
	for _, q := range cs.Classes {
		if q.Name == "" {
			return models.CapitalStructureError("class with rank %d has no name", q.Rank)
		}
		if names[q.Name] {
			return models.CapitalStructureError("duplicate class name %q", q.Name)
		}
		names[q.Name] = true
		if other, dup := ranks[q.Rank]; dup {
			return models.CapitalStructureError("duplicate seniority rank %d (%s, %s)", q.Rank, other, q.Name)
		}
		ranks[q.Rank] = q.Name
		if !q.Face.IsPositive() {
			return models.CapitalStructureError("class %s face %s must be positive", q.Name, q.Face)
		}
		if q.Spread <= -1 {
			return models.CapitalStructureError("class %s spread %g not above -100%%", q.Name, q.Spread)
		}
		if q.SubordinationFloor < 0 || q.SubordinationFloor >= 1 {
			return models.CapitalStructureError("class %s subordination floor %g outside [0,1)", q.Name, q.SubordinationFloor)
		}
		if am := q.Amortization; am != nil && (am.GracePeriods < 0 || am.Installments < 1) {
			return models.CapitalStructureError("class %s amortization needs grace >= 0 and installments >= 1", q.Name)
		}
		sum = sum.Add(q.Face)
	}

	sorted := make([]int, 0, len(ranks))
	for r := range ranks {
		sorted = append(sorted, r)
	}
	sort.Ints(sorted)
	for i, r := range sorted {
		if r != i+1 {
			return models.CapitalStructureError("ranks must be a contiguous 1..%d sequence, found %v", len(sorted), sorted)
		}
	}

	if !cs.TotalIssued.IsZero() && !cs.TotalIssued.Equal(sum) {
		return models.CapitalStructureError("class faces sum to %s, total issued is %s", sum, cs.TotalIssued)
	}
	for _, q := range cs.Classes {
		share := q.Face.Div(sum).InexactFloat64()
		if q.SubordinationFloor > 0 && share < q.SubordinationFloor {
			return models.CapitalStructureError("class %s initial share %.4f below its floor %.4f", q.Name, share, q.SubordinationFloor)
		}
	}
	return nil
}
