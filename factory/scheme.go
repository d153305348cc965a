/*
Package factory provides stored-document to typed scheme conversion.

PURPOSE:
  Scheme configurations are stored as loosely typed JSON documents written
  by several generations of tooling. The factory lifts one into an immutable
  scheme.Config, normalising every quirk on the way so no calculation ever
  looks at a raw key again.

JSON SCHEMA:
  {
    "scheme_id": "SCH-2025-Q2",
    "applicable": {"states": ["Kerala"], "dealer_types": ["Retail"]},
    "main": {
      "scheme_base": "volume",
      "base_periods": [
        {"from": "2024-03-31", "to": "2024-06-29", "sum_avg": "average", "months_count": 3}
      ],
      "scheme_period": {"from": "2025-03-31", "to": "2025-06-29"},
      "slabs": [
        {"slab_start": 0, "slab_end": 999, "growth_pct": "10%", "rebate_per_litre": 2}
      ],
      "products": {"categories": ["Emulsion"]},
      "mandatory_products": {"groups": ["Premium"]},
      "phasing_periods": [...],
      "bonus_schemes": [...]
    },
    "additional": [ {...same block shape...} ]
  }

NORMALISATION RULES:
  - Every stored date moves forward scheme.StoredDateOffsetDays
  - "", null and missing keys become defaults (0, empty set, "sum")
  - Rates accept "85%", "0.85" or 85 and become fractions
  - Phasing rebate_pct and bonus-scheme *_pct stay whole-number percent
  - A slab missing rebate_pct copies rebate_per_litre and vice versa
  - Additional blocks without base_periods / scheme_period inherit the main's
  - A blank slab_end marks the last slab open-ended

FAILURES:
  ConfigMalformed (wrapped in *scheme.MalformedError) for a missing main
  block, missing scheme period, no slabs, overlapping slabs, an unparseable
  date, or a non-numeric number.

SEE ALSO:
  - scheme/types.go: the Config this produces
  - serialize.go: the inverse direction
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SchemeDocument is the stored representation of a scheme.
type SchemeDocument struct {
	SchemeID   string         `json:"scheme_id"`
	Applicable ApplicableJSON `json:"applicable"`
	Main       *BlockJSON     `json:"main"`
	Additional []BlockJSON    `json:"additional,omitempty"`
}

// ApplicableJSON represents the applicability filters.
type ApplicableJSON struct {
	States       StringList `json:"states,omitempty"`
	Regions      StringList `json:"regions,omitempty"`
	AreaHeads    StringList `json:"area_heads,omitempty"`
	Divisions    StringList `json:"divisions,omitempty"`
	DealerTypes  StringList `json:"dealer_types,omitempty"`
	Distributors StringList `json:"distributors,omitempty"`
}

// ProductsJSON represents one product filter.
type ProductsJSON struct {
	Materials     StringList `json:"materials,omitempty"`
	Categories    StringList `json:"categories,omitempty"`
	Groups        StringList `json:"groups,omitempty"`
	WandaGroups   StringList `json:"wanda_groups,omitempty"`
	ThinnerGroups StringList `json:"thinner_groups,omitempty"`
}

// WindowJSON represents a stored date range.
type WindowJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// BasePeriodJSON represents one base period.
type BasePeriodJSON struct {
	From        string `json:"from"`
	To          string `json:"to"`
	SumAvg      string `json:"sum_avg,omitempty"`
	MonthsCount Number `json:"months_count"`
}

// SlabJSON represents one slab row.
type SlabJSON struct {
	SlabStart                          Number `json:"slab_start"`
	SlabEnd                            Number `json:"slab_end"`
	GrowthPct                          Number `json:"growth_pct"`
	QualificationPct                   Number `json:"qualification_pct"`
	RebatePerLitre                     Number `json:"rebate_per_litre"`
	RebatePct                          Number `json:"rebate_pct"`
	AdditionalRebateOnGrowthPct        Number `json:"additional_rebate_on_growth_pct"`
	FixedRebate                        Number `json:"fixed_rebate"`
	MandatoryProductTarget             Number `json:"mandatory_product_target"`
	MandatoryProductGrowthPct          Number `json:"mandatory_product_growth_pct"`
	MandatoryProductTargetToActualPct  Number `json:"mandatory_product_target_to_actual_pct"`
	MandatoryProductRebate             Number `json:"mandatory_product_rebate"`
	MandatoryProductRebatePct          Number `json:"mandatory_product_rebate_pct"`
	MandatoryMinShadesPPI              Number `json:"mandatory_min_shades_ppi"`
}

// PhasingJSON represents one phasing period.
type PhasingJSON struct {
	ID                    Number   `json:"id"`
	PhasingFrom           string   `json:"phasing_from"`
	PhasingTo             string   `json:"phasing_to"`
	PayoutFrom            string   `json:"payout_from,omitempty"`
	PayoutTo              string   `json:"payout_to,omitempty"`
	PhasingTargetPct      Number   `json:"phasing_target_pct"`
	RebateValue           Number   `json:"rebate_value"`
	RebatePct             Number   `json:"rebate_pct"`
	IsBonus               FlexBool `json:"is_bonus"`
	BonusPhasingFrom      string   `json:"bonus_phasing_from,omitempty"`
	BonusPhasingTo        string   `json:"bonus_phasing_to,omitempty"`
	BonusPayoutFrom       string   `json:"bonus_payout_from,omitempty"`
	BonusPayoutTo         string   `json:"bonus_payout_to,omitempty"`
	BonusPhasingTargetPct Number   `json:"bonus_phasing_target_pct"`
	BonusRebateValue      Number   `json:"bonus_rebate_value"`
	BonusRebatePct        Number   `json:"bonus_rebate_pct"`
}

// BonusSchemeJSON represents one bonus scheme.
type BonusSchemeJSON struct {
	ID                            Number `json:"id"`
	MainSchemeTargetPct           Number `json:"main_scheme_target_pct"`
	MinimumTarget                 Number `json:"minimum_target"`
	MandatoryProductTargetPct     Number `json:"mandatory_product_target_pct"`
	MinimumMandatoryProductTarget Number `json:"minimum_mandatory_product_target"`
	RewardOnTotalPct              Number `json:"reward_on_total_pct"`
	RewardOnMandatoryProductPct   Number `json:"reward_on_mandatory_product_pct"`
	BonusPeriodFrom               string `json:"bonus_period_from"`
	BonusPeriodTo                 string `json:"bonus_period_to"`
	BonusPayoutFrom               string `json:"bonus_payout_from"`
	BonusPayoutTo                 string `json:"bonus_payout_to"`
}

// BlockJSON represents the main scheme or one additional scheme.
type BlockJSON struct {
	SchemeBase            string            `json:"scheme_base"`
	BasePeriods           []BasePeriodJSON  `json:"base_periods,omitempty"`
	SchemePeriod          *WindowJSON       `json:"scheme_period,omitempty"`
	Slabs                 []SlabJSON        `json:"slabs"`
	Products              ProductsJSON      `json:"products"`
	MandatoryProducts     ProductsJSON      `json:"mandatory_products"`
	PayoutProducts        ProductsJSON      `json:"payout_products"`
	PayoutProductsEnabled *bool             `json:"payout_products_enabled,omitempty"`
	PhasingPeriods        []PhasingJSON     `json:"phasing_periods,omitempty"`
	BonusSchemes          []BonusSchemeJSON `json:"bonus_schemes,omitempty"`
	EnableStrataGrowth    FlexBool          `json:"enable_strata_growth"`
}

// =============================================================================
// SCHEME FACTORY
// =============================================================================

// SchemeFactory converts stored documents to scheme.Config values.
type SchemeFactory struct{}

// NewSchemeFactory creates a new scheme factory.
func NewSchemeFactory() *SchemeFactory {
	return &SchemeFactory{}
}

// Parse decodes a stored document. schemeID wins over the document's own id.
func (f *SchemeFactory) Parse(schemeID string, doc []byte) (*scheme.Config, error) {
	var sd SchemeDocument
	if err := json.Unmarshal(doc, &sd); err != nil {
		return nil, &scheme.MalformedError{SchemeID: schemeID, Field: "document", Reason: err.Error()}
	}
	return f.FromDocument(schemeID, sd)
}

// FromDocument converts a decoded document.
func (f *SchemeFactory) FromDocument(schemeID string, sd SchemeDocument) (*scheme.Config, error) {
	if schemeID == "" {
		schemeID = sd.SchemeID
	}
	p := &parser{schemeID: schemeID}

	if sd.Main == nil {
		return nil, p.fail("main", "section missing")
	}
	applicable := scheme.ApplicableFilters{
		States:       scheme.NewSet(sd.Applicable.States...),
		Regions:      scheme.NewSet(sd.Applicable.Regions...),
		AreaHeads:    scheme.NewSet(sd.Applicable.AreaHeads...),
		Divisions:    scheme.NewSet(sd.Applicable.Divisions...),
		DealerTypes:  scheme.NewSet(sd.Applicable.DealerTypes...),
		Distributors: scheme.NewSet(sd.Applicable.Distributors...),
	}

	main, err := p.block("main", *sd.Main, nil)
	if err != nil {
		return nil, err
	}
	main.SchemeID = schemeID
	main.Index = -1
	main.Applicable = applicable

	for i, bj := range sd.Additional {
		add, err := p.block(fmt.Sprintf("additional[%d]", i), bj, main)
		if err != nil {
			return nil, err
		}
		add.SchemeID = schemeID
		add.Index = i
		add.Applicable = applicable
		main.Additional = append(main.Additional, *add)
	}
	return main, nil
}

// =============================================================================
// BLOCK PARSING
// =============================================================================

type parser struct {
	schemeID string
}

func (p *parser) fail(field, reason string) error {
	return &scheme.MalformedError{SchemeID: p.schemeID, Field: field, Reason: reason}
}

func (p *parser) number(field string, n Number) error {
	if n.invalid {
		return p.fail(field, fmt.Sprintf("not a number: %s", n.raw))
	}
	return nil
}

// date lifts a stored date, applying the normalisation offset.
func (p *parser) date(field, s string) (scheme.Date, error) {
	d, err := scheme.ParseDate(s)
	if err != nil {
		return scheme.Date{}, p.fail(field, err.Error())
	}
	if d.IsZero() {
		return d, nil
	}
	return d.AddDays(scheme.StoredDateOffsetDays), nil
}

func (p *parser) window(field, from, to string) (scheme.Window, error) {
	f, err := p.date(field+".from", from)
	if err != nil {
		return scheme.Window{}, err
	}
	t, err := p.date(field+".to", to)
	if err != nil {
		return scheme.Window{}, err
	}
	w := scheme.NewWindow(f, t)
	if w.IsZero() {
		return scheme.Window{}, nil
	}
	if !w.Valid() {
		return scheme.Window{}, p.fail(field, "ends before it starts: "+w.String())
	}
	return w, nil
}

func (p *parser) block(path string, bj BlockJSON, inherit *scheme.Config) (*scheme.Config, error) {
	cfg := &scheme.Config{}

	switch mode := scheme.Mode(strings.ToLower(strings.TrimSpace(bj.SchemeBase))); {
	case mode == "" && inherit != nil:
		cfg.Mode = inherit.Mode
	case mode == "":
		cfg.Mode = scheme.ModeVolume
	case mode.Valid():
		cfg.Mode = mode
	default:
		return nil, p.fail(path+".scheme_base", fmt.Sprintf("unknown mode %q", bj.SchemeBase))
	}

	// Base periods
	if len(bj.BasePeriods) > scheme.MaxBasePeriods {
		return nil, p.fail(path+".base_periods", fmt.Sprintf("at most %d allowed", scheme.MaxBasePeriods))
	}
	if len(bj.BasePeriods) == 0 && inherit != nil {
		cfg.BasePeriods = inherit.BasePeriods
	}
	for i, bp := range bj.BasePeriods {
		field := fmt.Sprintf("%s.base_periods[%d]", path, i)
		b, err := p.basePeriod(field, bp)
		if err != nil {
			return nil, err
		}
		cfg.BasePeriods[i] = b
	}

	// Scheme period
	switch {
	case bj.SchemePeriod != nil:
		w, err := p.window(path+".scheme_period", bj.SchemePeriod.From, bj.SchemePeriod.To)
		if err != nil {
			return nil, err
		}
		cfg.SchemePeriod = w
	case inherit != nil:
		cfg.SchemePeriod = inherit.SchemePeriod
	}
	if cfg.SchemePeriod.IsZero() {
		return nil, p.fail(path+".scheme_period", "section missing")
	}

	// Slabs
	slabs, err := p.slabs(path+".slabs", bj.Slabs)
	if err != nil {
		return nil, err
	}
	cfg.Slabs = slabs

	// Product filters
	cfg.Products = productFilter(bj.Products)
	cfg.MandatoryProducts = productFilter(bj.MandatoryProducts)
	cfg.PayoutProducts = productFilter(bj.PayoutProducts)
	if bj.PayoutProductsEnabled != nil && !*bj.PayoutProductsEnabled {
		cfg.DisablePayoutProducts = true
	}

	// Phasing
	if len(bj.PhasingPeriods) > scheme.MaxPhasingPeriods {
		return nil, p.fail(path+".phasing_periods", fmt.Sprintf("at most %d allowed", scheme.MaxPhasingPeriods))
	}
	for i, pj := range bj.PhasingPeriods {
		pp, err := p.phasing(fmt.Sprintf("%s.phasing_periods[%d]", path, i), i, pj)
		if err != nil {
			return nil, err
		}
		cfg.PhasingPeriods = append(cfg.PhasingPeriods, pp)
	}

	// Bonus schemes
	if len(bj.BonusSchemes) > scheme.MaxBonusSchemes {
		return nil, p.fail(path+".bonus_schemes", fmt.Sprintf("at most %d allowed", scheme.MaxBonusSchemes))
	}
	for i, bs := range bj.BonusSchemes {
		b, err := p.bonusScheme(fmt.Sprintf("%s.bonus_schemes[%d]", path, i), i, bs)
		if err != nil {
			return nil, err
		}
		cfg.BonusSchemes = append(cfg.BonusSchemes, b)
	}

	cfg.EnableStrataGrowth = bool(bj.EnableStrataGrowth)
	return cfg, nil
}

func (p *parser) basePeriod(field string, bp BasePeriodJSON) (scheme.BasePeriod, error) {
	w, err := p.window(field, bp.From, bp.To)
	if err != nil {
		return scheme.BasePeriod{}, err
	}
	if w.IsZero() {
		return scheme.BasePeriod{}, nil
	}
	if err := p.number(field+".months_count", bp.MonthsCount); err != nil {
		return scheme.BasePeriod{}, err
	}

	agg := scheme.AggregateSum
	switch strings.ToLower(strings.TrimSpace(bp.SumAvg)) {
	case "", "sum":
	case "avg", "average", "mean":
		agg = scheme.AggregateAverage
	default:
		return scheme.BasePeriod{}, p.fail(field+".sum_avg", fmt.Sprintf("unknown aggregation %q", bp.SumAvg))
	}

	return scheme.BasePeriod{Window: w, Aggregation: agg, MonthsCount: bp.MonthsCount.Int()}, nil
}

func (p *parser) slabs(field string, in []SlabJSON) ([]scheme.Slab, error) {
	if len(in) == 0 {
		return nil, p.fail(field, "at least one slab required")
	}
	out := make([]scheme.Slab, 0, len(in))
	for i, sj := range in {
		s, err := p.slab(fmt.Sprintf("%s[%d]", field, i), sj)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.LessThan(out[j].Start) })

	for i := 0; i+1 < len(out); i++ {
		if out[i].OpenEnded {
			return nil, p.fail(field, "only the last slab may leave slab_end blank")
		}
		if !out[i].End.LessThan(out[i+1].Start) {
			return nil, p.fail(field, fmt.Sprintf("slab ending %s overlaps slab starting %s", out[i].End, out[i+1].Start))
		}
	}
	return out, nil
}

func (p *parser) slab(field string, sj SlabJSON) (scheme.Slab, error) {
	checks := map[string]Number{
		"slab_start":                             sj.SlabStart,
		"slab_end":                               sj.SlabEnd,
		"growth_pct":                             sj.GrowthPct,
		"qualification_pct":                      sj.QualificationPct,
		"rebate_per_litre":                       sj.RebatePerLitre,
		"rebate_pct":                             sj.RebatePct,
		"additional_rebate_on_growth_pct":        sj.AdditionalRebateOnGrowthPct,
		"fixed_rebate":                           sj.FixedRebate,
		"mandatory_product_target":               sj.MandatoryProductTarget,
		"mandatory_product_growth_pct":           sj.MandatoryProductGrowthPct,
		"mandatory_product_target_to_actual_pct": sj.MandatoryProductTargetToActualPct,
		"mandatory_product_rebate":               sj.MandatoryProductRebate,
		"mandatory_product_rebate_pct":           sj.MandatoryProductRebatePct,
		"mandatory_min_shades_ppi":               sj.MandatoryMinShadesPPI,
	}
	for name, n := range checks {
		if err := p.number(field+"."+name, n); err != nil {
			return scheme.Slab{}, err
		}
	}

	s := scheme.Slab{
		Start:                              sj.SlabStart.Amount(),
		End:                                sj.SlabEnd.Amount(),
		OpenEnded:                          !sj.SlabEnd.IsSet(),
		GrowthRate:                         sj.GrowthPct.Rate(),
		QualificationRate:                  sj.QualificationPct.Rate(),
		RebatePerUnit:                      sj.RebatePerLitre.Amount(),
		RebatePercent:                      sj.RebatePct.Rate(),
		AdditionalRebateOnGrowth:           sj.AdditionalRebateOnGrowthPct.Rate(),
		FixedRebate:                        sj.FixedRebate.Amount(),
		MandatoryProductTarget:             sj.MandatoryProductTarget.Amount(),
		MandatoryProductGrowthRate:         sj.MandatoryProductGrowthPct.Rate(),
		MandatoryProductTargetToActualRate: sj.MandatoryProductTargetToActualPct.Rate(),
		MandatoryProductRebate:             sj.MandatoryProductRebate.Amount(),
		MandatoryProductRebatePercent:      sj.MandatoryProductRebatePct.Rate(),
		MandatoryMinShadesPPI:              sj.MandatoryMinShadesPPI.Amount(),
	}
	if s.OpenEnded {
		s.End = decimal.Zero
	} else if s.End.LessThan(s.Start) {
		return scheme.Slab{}, p.fail(field, fmt.Sprintf("slab_end %s below slab_start %s", s.End, s.Start))
	}

	// One stored rebate column stands in for the other when missing.
	switch {
	case !sj.RebatePct.IsSet() && sj.RebatePerLitre.IsSet():
		s.RebatePercent = s.RebatePerUnit
	case !sj.RebatePerLitre.IsSet() && sj.RebatePct.IsSet():
		s.RebatePerUnit = s.RebatePercent
	}
	switch {
	case !sj.MandatoryProductRebatePct.IsSet() && sj.MandatoryProductRebate.IsSet():
		s.MandatoryProductRebatePercent = s.MandatoryProductRebate
	case !sj.MandatoryProductRebate.IsSet() && sj.MandatoryProductRebatePct.IsSet():
		s.MandatoryProductRebate = s.MandatoryProductRebatePercent
	}
	return s, nil
}

func (p *parser) phasing(field string, i int, pj PhasingJSON) (scheme.PhasingPeriod, error) {
	for name, n := range map[string]Number{
		"id":                       pj.ID,
		"phasing_target_pct":       pj.PhasingTargetPct,
		"rebate_value":             pj.RebateValue,
		"rebate_pct":               pj.RebatePct,
		"bonus_phasing_target_pct": pj.BonusPhasingTargetPct,
		"bonus_rebate_value":       pj.BonusRebateValue,
		"bonus_rebate_pct":         pj.BonusRebatePct,
	} {
		if err := p.number(field+"."+name, n); err != nil {
			return scheme.PhasingPeriod{}, err
		}
	}

	phasing, err := p.window(field+".phasing", pj.PhasingFrom, pj.PhasingTo)
	if err != nil {
		return scheme.PhasingPeriod{}, err
	}
	if phasing.IsZero() {
		return scheme.PhasingPeriod{}, p.fail(field+".phasing", "window missing")
	}
	payout, err := p.window(field+".payout", pj.PayoutFrom, pj.PayoutTo)
	if err != nil {
		return scheme.PhasingPeriod{}, err
	}
	if payout.IsZero() {
		payout = phasing
	}

	pp := scheme.PhasingPeriod{
		ID:                     i + 1,
		PhasingWindow:          phasing,
		PayoutWindow:           payout,
		PhasingTargetRate:      pj.PhasingTargetPct.Rate(),
		RebateValue:            pj.RebateValue.Amount(),
		RebatePercent:          pj.RebatePct.Amount(),
		IsBonus:                bool(pj.IsBonus),
		BonusPhasingTargetRate: pj.BonusPhasingTargetPct.Rate(),
		BonusRebateValue:       pj.BonusRebateValue.Amount(),
		BonusRebatePercent:     pj.BonusRebatePct.Amount(),
	}
	if pj.ID.IsSet() {
		pp.ID = pj.ID.Int()
	}

	bonusPhasing, err := p.window(field+".bonus_phasing", pj.BonusPhasingFrom, pj.BonusPhasingTo)
	if err != nil {
		return scheme.PhasingPeriod{}, err
	}
	bonusPayout, err := p.window(field+".bonus_payout", pj.BonusPayoutFrom, pj.BonusPayoutTo)
	if err != nil {
		return scheme.PhasingPeriod{}, err
	}
	if bonusPayout.IsZero() {
		bonusPayout = bonusPhasing
	}
	if pp.IsBonus && bonusPhasing.IsZero() {
		return scheme.PhasingPeriod{}, p.fail(field+".bonus_phasing", "window missing on a bonus period")
	}
	pp.BonusPhasingWindow = bonusPhasing
	pp.BonusPayoutWindow = bonusPayout
	return pp, nil
}

func (p *parser) bonusScheme(field string, i int, bj BonusSchemeJSON) (scheme.BonusScheme, error) {
	for name, n := range map[string]Number{
		"id":                               bj.ID,
		"main_scheme_target_pct":           bj.MainSchemeTargetPct,
		"minimum_target":                   bj.MinimumTarget,
		"mandatory_product_target_pct":     bj.MandatoryProductTargetPct,
		"minimum_mandatory_product_target": bj.MinimumMandatoryProductTarget,
		"reward_on_total_pct":              bj.RewardOnTotalPct,
		"reward_on_mandatory_product_pct":  bj.RewardOnMandatoryProductPct,
	} {
		if err := p.number(field+"."+name, n); err != nil {
			return scheme.BonusScheme{}, err
		}
	}
	period, err := p.window(field+".bonus_period", bj.BonusPeriodFrom, bj.BonusPeriodTo)
	if err != nil {
		return scheme.BonusScheme{}, err
	}
	if period.IsZero() {
		return scheme.BonusScheme{}, p.fail(field+".bonus_period", "window missing")
	}
	payout, err := p.window(field+".bonus_payout", bj.BonusPayoutFrom, bj.BonusPayoutTo)
	if err != nil {
		return scheme.BonusScheme{}, err
	}
	if payout.IsZero() {
		payout = period
	}

	b := scheme.BonusScheme{
		ID:                            i + 1,
		MainSchemeTargetRate:          bj.MainSchemeTargetPct.Amount(),
		MinimumTarget:                 bj.MinimumTarget.Amount(),
		MandatoryProductTargetRate:    bj.MandatoryProductTargetPct.Amount(),
		MinimumMandatoryProductTarget: bj.MinimumMandatoryProductTarget.Amount(),
		RewardOnTotalRate:             bj.RewardOnTotalPct.Amount(),
		RewardOnMandatoryProductRate:  bj.RewardOnMandatoryProductPct.Amount(),
		BonusPeriodWindow:             period,
		BonusPayoutWindow:             payout,
	}
	if bj.ID.IsSet() {
		b.ID = bj.ID.Int()
	}
	return b, nil
}

func productFilter(pj ProductsJSON) scheme.ProductFilter {
	return scheme.ProductFilter{
		Materials:     scheme.NewSet(pj.Materials...),
		Categories:    scheme.NewSet(pj.Categories...),
		Groups:        scheme.NewSet(pj.Groups...),
		WandaGroups:   scheme.NewSet(pj.WandaGroups...),
		ThinnerGroups: scheme.NewSet(pj.ThinnerGroups...),
	}
}
