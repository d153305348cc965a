/*
Package scheme provides the typed model of a trade-promotion scheme.

PURPOSE:
  A scheme offers rebates to dealers who hit sales targets. This package holds
  the immutable, fully typed configuration every calculation reads: date
  windows, product filters, slab tables, phasing periods and bonus schemes,
  plus the sentinel errors and the datastore contract shared by every layer.

KEY CONCEPTS IN THIS FILE (types.go):
  - Mode: which measure (volume or value) drives slab matching and payouts
  - BasePeriod: a historical window anchoring the target
  - Slab: a base-sales range with its rebate parameters
  - PhasingPeriod: a sub-window of the scheme period with its own target/rebate
  - BonusScheme: an independent bonus target over its own windows
  - Config: the whole thing, with zero-or-more additional schemes

DESIGN PRINCIPLES:
  1. Immutability: nothing mutates a Config after the factory builds it
  2. Precision: every rate and amount is a decimal.Decimal
  3. Presence over nil: absent sections are zero values (IsZero / Present)

RATES:
  Fields named *Rate are fractions (0.85 means 85%). The exceptions are the
  phasing RebatePercent fields and the BonusScheme *Rate fields, which stay in
  whole-number percent because the payout formulas divide them by 100.

SEE ALSO:
  - factory/scheme.go: builds a Config from the stored document
  - costing/engine.go: consumes a Config
*/
package scheme

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MODE & AGGREGATION
// =============================================================================

// Mode selects the active measure of a scheme.
type Mode string

const (
	ModeVolume Mode = "volume"
	ModeValue  Mode = "value"
)

func (m Mode) Valid() bool { return m == ModeVolume || m == ModeValue }

// Other returns the non-active measure.
func (m Mode) Other() Mode {
	if m == ModeValue {
		return ModeVolume
	}
	return ModeValue
}

func (m Mode) Label() string {
	if m == ModeValue {
		return "Value"
	}
	return "Volume"
}

// Aggregation is how a base period collapses into one metric.
type Aggregation string

const (
	AggregateSum     Aggregation = "sum"
	AggregateAverage Aggregation = "average"
)

// =============================================================================
// BASE PERIOD
// =============================================================================

// BasePeriod is a historical window whose sales anchor the target.
// A scheme has two slots; an unused slot is the zero BasePeriod.
type BasePeriod struct {
	Window      Window      `json:"window"`
	Aggregation Aggregation `json:"aggregation"`
	MonthsCount int         `json:"months_count"`
}

func (b BasePeriod) Present() bool { return !b.Window.IsZero() }

// Averaged reports whether the period metric divides by MonthsCount.
func (b BasePeriod) Averaged() bool {
	return b.Aggregation == AggregateAverage && b.MonthsCount > 0
}

// =============================================================================
// SLAB
// =============================================================================

// Slab is a contiguous range of base sales with its rebate parameters.
// OpenEnded marks the last slab when its upper bound was left blank.
type Slab struct {
	Start     decimal.Decimal `json:"start"`
	End       decimal.Decimal `json:"end"`
	OpenEnded bool            `json:"open_ended,omitempty"`

	GrowthRate               decimal.Decimal `json:"growth_rate"`
	QualificationRate        decimal.Decimal `json:"qualification_rate"`
	RebatePerUnit            decimal.Decimal `json:"rebate_per_unit"`
	RebatePercent            decimal.Decimal `json:"rebate_percent"`
	AdditionalRebateOnGrowth decimal.Decimal `json:"additional_rebate_on_growth"`
	FixedRebate              decimal.Decimal `json:"fixed_rebate"`

	MandatoryProductTarget             decimal.Decimal `json:"mandatory_product_target"`
	MandatoryProductGrowthRate         decimal.Decimal `json:"mandatory_product_growth_rate"`
	MandatoryProductTargetToActualRate decimal.Decimal `json:"mandatory_product_target_to_actual_rate"`
	MandatoryProductRebate             decimal.Decimal `json:"mandatory_product_rebate"`
	MandatoryProductRebatePercent      decimal.Decimal `json:"mandatory_product_rebate_percent"`
	MandatoryMinShadesPPI              decimal.Decimal `json:"mandatory_min_shades_ppi"`
}

// Contains reports start <= m <= end.
func (s Slab) Contains(m decimal.Decimal) bool {
	if m.LessThan(s.Start) {
		return false
	}
	return s.OpenEnded || m.LessThanOrEqual(s.End)
}

// MandatoryRebateFor picks the mandatory-product rate for the mode:
// percent in value mode, per-unit in volume mode.
func (s Slab) MandatoryRebateFor(m Mode) decimal.Decimal {
	if m == ModeValue {
		return s.MandatoryProductRebatePercent
	}
	return s.MandatoryProductRebate
}

// =============================================================================
// PHASING
// =============================================================================

// PhasingPeriod sub-divides the scheme period. RebatePercent and
// BonusRebatePercent are whole-number percent; the target rates are fractions.
type PhasingPeriod struct {
	ID                int             `json:"id"`
	PhasingWindow     Window          `json:"phasing_window"`
	PayoutWindow      Window          `json:"payout_window"`
	PhasingTargetRate decimal.Decimal `json:"phasing_target_rate"`
	RebateValue       decimal.Decimal `json:"rebate_value"`
	RebatePercent     decimal.Decimal `json:"rebate_percent"`

	IsBonus                bool            `json:"is_bonus"`
	BonusPhasingWindow     Window          `json:"bonus_phasing_window"`
	BonusPayoutWindow      Window          `json:"bonus_payout_window"`
	BonusPhasingTargetRate decimal.Decimal `json:"bonus_phasing_target_rate"`
	BonusRebateValue       decimal.Decimal `json:"bonus_rebate_value"`
	BonusRebatePercent     decimal.Decimal `json:"bonus_rebate_percent"`
}

// RebateFor returns the regular-tier multiplier for the mode.
func (p PhasingPeriod) RebateFor(m Mode) decimal.Decimal {
	if m == ModeValue {
		return p.RebatePercent.Div(hundred)
	}
	return p.RebateValue
}

// BonusRebateFor returns the bonus-tier multiplier for the mode.
func (p PhasingPeriod) BonusRebateFor(m Mode) decimal.Decimal {
	if m == ModeValue {
		return p.BonusRebatePercent.Div(hundred)
	}
	return p.BonusRebateValue
}

// =============================================================================
// BONUS SCHEME
// =============================================================================

// BonusScheme is an extra target over its own windows, independent of phasing.
// All *Rate fields are whole-number percent.
type BonusScheme struct {
	ID                            int             `json:"id"`
	MainSchemeTargetRate          decimal.Decimal `json:"main_scheme_target_rate"`
	MinimumTarget                 decimal.Decimal `json:"minimum_target"`
	MandatoryProductTargetRate    decimal.Decimal `json:"mandatory_product_target_rate"`
	MinimumMandatoryProductTarget decimal.Decimal `json:"minimum_mandatory_product_target"`
	RewardOnTotalRate             decimal.Decimal `json:"reward_on_total_rate"`
	RewardOnMandatoryProductRate  decimal.Decimal `json:"reward_on_mandatory_product_rate"`
	BonusPeriodWindow             Window          `json:"bonus_period_window"`
	BonusPayoutWindow             Window          `json:"bonus_payout_window"`
}

// =============================================================================
// CONFIG
// =============================================================================

const (
	MaxBasePeriods    = 2
	MaxPhasingPeriods = 3
	MaxBonusSchemes   = 4
)

var hundred = decimal.NewFromInt(100)

// Config is one scheme (main or additional). Additional schemes share the
// main scheme's ApplicableFilters and sales frame.
type Config struct {
	SchemeID string `json:"scheme_id"`
	// Index is -1 for the main scheme and the position for additional schemes.
	Index int  `json:"index"`
	Mode  Mode `json:"mode"`

	BasePeriods  [MaxBasePeriods]BasePeriod `json:"base_periods"`
	SchemePeriod Window                     `json:"scheme_period"`
	Slabs        []Slab                     `json:"slabs"`

	Applicable        ApplicableFilters `json:"applicable"`
	Products          ProductFilter     `json:"products"`
	MandatoryProducts ProductFilter     `json:"mandatory_products"`
	PayoutProducts    ProductFilter     `json:"payout_products"`
	// DisablePayoutProducts switches the payout-product base off even when
	// payout products are configured.
	DisablePayoutProducts bool `json:"disable_payout_products,omitempty"`

	PhasingPeriods     []PhasingPeriod `json:"phasing_periods,omitempty"`
	BonusSchemes       []BonusScheme   `json:"bonus_schemes,omitempty"`
	EnableStrataGrowth bool            `json:"enable_strata_growth"`

	Additional []Config `json:"additional,omitempty"`
}

// IsMain reports whether this is the main scheme.
func (c *Config) IsMain() bool { return c.Index < 0 }

// FirstSlab is the slab with the smallest start. Slabs are kept sorted.
func (c *Config) FirstSlab() Slab {
	if len(c.Slabs) == 0 {
		return Slab{}
	}
	return c.Slabs[0]
}

// SelectSlab returns the index of the lowest-start slab containing m, or 0
// (the first slab) when none does.
func (c *Config) SelectSlab(m decimal.Decimal) int {
	for i, s := range c.Slabs {
		if s.Contains(m) {
			return i
		}
	}
	return 0
}

// MandatoryEnabled is true when any mandatory-product axis is set.
func (c *Config) MandatoryEnabled() bool { return !c.MandatoryProducts.IsEmpty() }

// PayoutProductsEnabled is true when any payout-product axis is set and the
// section has not been switched off.
func (c *Config) PayoutProductsEnabled() bool {
	return !c.DisablePayoutProducts && !c.PayoutProducts.IsEmpty()
}

// BasePeriodCount returns how many base slots are present.
func (c *Config) BasePeriodCount() int {
	n := 0
	for _, b := range c.BasePeriods {
		if b.Present() {
			n++
		}
	}
	return n
}

// Windows returns every present window of this scheme (not of its additionals).
func (c *Config) Windows() []Window {
	ws := []Window{c.SchemePeriod}
	for _, b := range c.BasePeriods {
		ws = append(ws, b.Window)
	}
	for _, p := range c.PhasingPeriods {
		ws = append(ws, p.PhasingWindow, p.PayoutWindow)
		if p.IsBonus {
			ws = append(ws, p.BonusPhasingWindow, p.BonusPayoutWindow)
		}
	}
	for _, b := range c.BonusSchemes {
		ws = append(ws, b.BonusPeriodWindow, b.BonusPayoutWindow)
	}
	return ws
}

// DateRange spans every window of the main scheme and all additional schemes.
// This is the range the data loader fetches.
func (c *Config) DateRange() Window {
	span := Window{}.Span(c.Windows()...)
	for i := range c.Additional {
		span = span.Span(c.Additional[i].Windows()...)
	}
	return span
}

// AdditionalScheme returns the i-th additional scheme.
func (c *Config) AdditionalScheme(i int) (*Config, bool) {
	if i < 0 || i >= len(c.Additional) {
		return nil, false
	}
	return &c.Additional[i], true
}

// WithMode returns a shallow copy computing in mode m. The original is untouched.
func (c *Config) WithMode(m Mode) *Config {
	cp := *c
	if m.Valid() {
		cp.Mode = m
	}
	return &cp
}
