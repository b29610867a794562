// Package inputs decodes and validates the JSON input bundle of a
// simulation: timeline parameters, holidays, index curve, base flow or
// receivables pool, capital structure and assumptions.
package inputs

import (
	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/pkg/models"
)

// Document is the wire form of an input bundle. Dates are "YYYY-MM-DD"
// strings; optional sections are pointers so absence can be told apart from
// a zero value.
type Document struct {
	Name        string          `json:"name"`
	Timeline    *TimelineDoc    `json:"timeline"`
	Holidays    []string        `json:"holidays"`
	Curve       *CurveDoc       `json:"curve"`
	BaseFlow    []BaseFlowDoc   `json:"base_flow"`
	Pool        *PoolDoc        `json:"pool"`
	Structure   *StructureDoc   `json:"structure"`
	Assumptions *AssumptionsDoc `json:"assumptions"`
	Rules       *RulesDoc       `json:"rules"`
}

// TimelineDoc gives either explicit boundary dates or start, maturity and
// frequency.
type TimelineDoc struct {
	Start      string   `json:"start"`
	Maturity   string   `json:"maturity"`
	Frequency  string   `json:"frequency"`  // default: monthly
	Convention string   `json:"convention"` // default: modified_following
	DayCount   string   `json:"day_count"`  // default: assumptions.day_count
	Dates      []string `json:"dates"`
}

// CurveDoc holds index points by date or by business-day offset from the
// base date.
type CurveDoc struct {
	BaseDate      string           `json:"base_date"`
	Interpolation string           `json:"interpolation"` // default: engine setting
	DayCount      string           `json:"day_count"`     // default: BUS/252
	Points        []CurvePointDoc  `json:"points"`
	Offsets       []CurveOffsetDoc `json:"offsets"`
}

type CurvePointDoc struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

type CurveOffsetDoc struct {
	BusinessDays int     `json:"business_days"`
	Rate         float64 `json:"rate"`
}

type BaseFlowDoc struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type PoolDoc struct {
	Volume      decimal.Decimal `json:"volume"`
	MonthlyRate float64         `json:"monthly_rate"`
	TermPeriods int             `json:"term_periods"`
}

// StructureDoc lists the quota classes. A class gives its face directly or
// as a share of Volume.
type StructureDoc struct {
	Volume      *decimal.Decimal `json:"volume"`
	TotalIssued *decimal.Decimal `json:"total_issued"`
	Classes     []ClassDoc       `json:"classes"`
}

type ClassDoc struct {
	Name               string                       `json:"name"`
	Rank               int                          `json:"rank"`
	Face               *decimal.Decimal             `json:"face"`
	Share              *float64                     `json:"share"`
	Spread             float64                      `json:"spread"`
	FixedRate          bool                         `json:"fixed_rate"`
	SubordinationFloor float64                      `json:"subordination_floor"`
	Amortization       *models.AmortizationSchedule `json:"amortization"`
}

// AssumptionsDoc overrides the default assumptions field by field.
type AssumptionsDoc struct {
	Name           *string  `json:"name"`
	DefaultRate    *float64 `json:"default_rate"`
	PrepaymentRate *float64 `json:"prepayment_rate"`
	RecoveryRate   *float64 `json:"recovery_rate"`
	RecoveryLag    *int     `json:"recovery_lag"`
	AssetSpread    *float64 `json:"asset_spread"`
	FeeRate        *float64 `json:"fee_rate"`
	MinFee         *float64 `json:"min_fee"`
	ReserveRatio   *float64 `json:"reserve_ratio"`
	DayCount       *string  `json:"day_count"`
	Accrual        *string  `json:"accrual"`
}

// RulesDoc selects waterfall rules per bundle; empty fields keep the engine
// configuration.
type RulesDoc struct {
	ShortfallPolicy string `json:"shortfall_policy"`
	PrincipalMode   string `json:"principal_mode"`
}
