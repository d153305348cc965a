package factory

import (
	"encoding/json"

	"github.com/warp/scheme-engine/scheme"
)

// Serialize writes cfg back as a stored document. Parsing the result yields a
// Config equal to cfg: dates move back by the normalisation offset, fractions
// are written as "N%" and every defaulted field is written explicitly.
func Serialize(cfg *scheme.Config) ([]byte, error) {
	return json.Marshal(ToDocument(cfg))
}

// ToDocument is Serialize without the final encoding.
func ToDocument(cfg *scheme.Config) SchemeDocument {
	doc := SchemeDocument{
		SchemeID: cfg.SchemeID,
		Applicable: ApplicableJSON{
			States:       StringList(cfg.Applicable.States),
			Regions:      StringList(cfg.Applicable.Regions),
			AreaHeads:    StringList(cfg.Applicable.AreaHeads),
			Divisions:    StringList(cfg.Applicable.Divisions),
			DealerTypes:  StringList(cfg.Applicable.DealerTypes),
			Distributors: StringList(cfg.Applicable.Distributors),
		},
	}
	main := blockOf(cfg)
	doc.Main = &main
	for i := range cfg.Additional {
		doc.Additional = append(doc.Additional, blockOf(&cfg.Additional[i]))
	}
	return doc
}

func blockOf(cfg *scheme.Config) BlockJSON {
	sp := windowOf(cfg.SchemePeriod)
	b := BlockJSON{
		SchemeBase:         string(cfg.Mode),
		SchemePeriod:       &sp,
		Products:           productsOf(cfg.Products),
		MandatoryProducts:  productsOf(cfg.MandatoryProducts),
		PayoutProducts:     productsOf(cfg.PayoutProducts),
		EnableStrataGrowth: FlexBool(cfg.EnableStrataGrowth),
	}
	if cfg.DisablePayoutProducts {
		off := false
		b.PayoutProductsEnabled = &off
	}

	last := -1
	for i, bp := range cfg.BasePeriods {
		if bp.Present() {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		bp := cfg.BasePeriods[i]
		w := windowOf(bp.Window)
		bj := BasePeriodJSON{From: w.From, To: w.To}
		if bp.Present() {
			bj.SumAvg = string(bp.Aggregation)
			bj.MonthsCount = IntOf(bp.MonthsCount)
		}
		b.BasePeriods = append(b.BasePeriods, bj)
	}

	for _, s := range cfg.Slabs {
		sj := SlabJSON{
			SlabStart:                         NumberOf(s.Start),
			GrowthPct:                         PercentOf(s.GrowthRate),
			QualificationPct:                  PercentOf(s.QualificationRate),
			RebatePerLitre:                    NumberOf(s.RebatePerUnit),
			RebatePct:                         PercentOf(s.RebatePercent),
			AdditionalRebateOnGrowthPct:       PercentOf(s.AdditionalRebateOnGrowth),
			FixedRebate:                       NumberOf(s.FixedRebate),
			MandatoryProductTarget:            NumberOf(s.MandatoryProductTarget),
			MandatoryProductGrowthPct:         PercentOf(s.MandatoryProductGrowthRate),
			MandatoryProductTargetToActualPct: PercentOf(s.MandatoryProductTargetToActualRate),
			MandatoryProductRebate:            NumberOf(s.MandatoryProductRebate),
			MandatoryProductRebatePct:         PercentOf(s.MandatoryProductRebatePercent),
			MandatoryMinShadesPPI:             NumberOf(s.MandatoryMinShadesPPI),
		}
		if !s.OpenEnded {
			sj.SlabEnd = NumberOf(s.End)
		}
		b.Slabs = append(b.Slabs, sj)
	}

	for _, p := range cfg.PhasingPeriods {
		ph, pay := windowOf(p.PhasingWindow), windowOf(p.PayoutWindow)
		bph, bpay := windowOf(p.BonusPhasingWindow), windowOf(p.BonusPayoutWindow)
		b.PhasingPeriods = append(b.PhasingPeriods, PhasingJSON{
			ID:                    IntOf(p.ID),
			PhasingFrom:           ph.From,
			PhasingTo:             ph.To,
			PayoutFrom:            pay.From,
			PayoutTo:              pay.To,
			PhasingTargetPct:      PercentOf(p.PhasingTargetRate),
			RebateValue:           NumberOf(p.RebateValue),
			RebatePct:             NumberOf(p.RebatePercent),
			IsBonus:               FlexBool(p.IsBonus),
			BonusPhasingFrom:      bph.From,
			BonusPhasingTo:        bph.To,
			BonusPayoutFrom:       bpay.From,
			BonusPayoutTo:         bpay.To,
			BonusPhasingTargetPct: PercentOf(p.BonusPhasingTargetRate),
			BonusRebateValue:      NumberOf(p.BonusRebateValue),
			BonusRebatePct:        NumberOf(p.BonusRebatePercent),
		})
	}

	for _, bs := range cfg.BonusSchemes {
		period, payout := windowOf(bs.BonusPeriodWindow), windowOf(bs.BonusPayoutWindow)
		b.BonusSchemes = append(b.BonusSchemes, BonusSchemeJSON{
			ID:                            IntOf(bs.ID),
			MainSchemeTargetPct:           NumberOf(bs.MainSchemeTargetRate),
			MinimumTarget:                 NumberOf(bs.MinimumTarget),
			MandatoryProductTargetPct:     NumberOf(bs.MandatoryProductTargetRate),
			MinimumMandatoryProductTarget: NumberOf(bs.MinimumMandatoryProductTarget),
			RewardOnTotalPct:              NumberOf(bs.RewardOnTotalRate),
			RewardOnMandatoryProductPct:   NumberOf(bs.RewardOnMandatoryProductRate),
			BonusPeriodFrom:               period.From,
			BonusPeriodTo:                 period.To,
			BonusPayoutFrom:               payout.From,
			BonusPayoutTo:                 payout.To,
		})
	}
	return b
}

// windowOf undoes the read-side date offset.
func windowOf(w scheme.Window) WindowJSON {
	if w.IsZero() {
		return WindowJSON{}
	}
	return WindowJSON{
		From: w.From.AddDays(-scheme.StoredDateOffsetDays).String(),
		To:   w.To.AddDays(-scheme.StoredDateOffsetDays).String(),
	}
}

func productsOf(f scheme.ProductFilter) ProductsJSON {
	return ProductsJSON{
		Materials:     StringList(f.Materials),
		Categories:    StringList(f.Categories),
		Groups:        StringList(f.Groups),
		WandaGroups:   StringList(f.WandaGroups),
		ThinnerGroups: StringList(f.ThinnerGroups),
	}
}
