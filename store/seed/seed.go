/*
Package seed loads a small demo data set into any scheme.Writer.

CONTENTS:
  DemoSchemeID  volume scheme over Q2 2025 against Q2 2024, two slabs,
                Emulsion products, one additional Thinner scheme
  Materials     M1 (Emulsion), M2 (Emulsion, Premium), T1 (Thinner)
  Sales         two dealers, A100 below the 1000 slab and B200 above it

Expected main-scheme payouts (volume, per-unit rebate, no gates hit):

	A100  base 100  actual 150   slab 0..999  rate 2  -> 300
	B200  base 1200 actual 1300  slab 1000..  rate 3  -> 3900
*/
package seed

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/scheme"
)

const DemoSchemeID = "DEMO-2025-Q2"

// DemoDocument is stored with the one-day-back date convention.
const DemoDocument = `{
  "scheme_id": "DEMO-2025-Q2",
  "applicable": {"states": ["Kerala"]},
  "main": {
    "scheme_base": "volume",
    "base_periods": [{"from": "2024-03-31", "to": "2024-06-29", "sum_avg": "sum"}],
    "scheme_period": {"from": "2025-03-31", "to": "2025-06-29"},
    "slabs": [
      {"slab_start": 0, "slab_end": 999, "growth_pct": 10, "rebate_per_litre": 2},
      {"slab_start": 1000, "growth_pct": 5, "rebate_per_litre": 3}
    ],
    "products": {"categories": ["Emulsion"]}
  },
  "additional": [
    {"slabs": [{"slab_start": 0, "rebate_per_litre": 1}], "products": {"groups": ["Thinner"]}}
  ]
}`

var Materials = []scheme.MaterialRow{
	{MaterialID: "M1", Category: "Emulsion", Group: "Standard"},
	{MaterialID: "M2", Category: "Emulsion", Group: "Premium"},
	{MaterialID: "T1", Category: "Thinner", Group: "Thinner", ThinnerGroup: "TH"},
}

func dealer(account, name string) scheme.AccountAttrs {
	return scheme.AccountAttrs{
		CreditAccount: account,
		CustomerName:  name,
		SOName:        "R. Menon",
		State:         "Kerala",
		Region:        "South",
		AreaHead:      "K. Nair",
		Division:      "Deco",
		DealerType:    "Retail",
		Distributor:   "Coastal Paints",
	}
}

func row(attrs scheme.AccountAttrs, material, on string, volume, value int64) scheme.SalesRow {
	return scheme.SalesRow{
		AccountAttrs: attrs,
		MaterialID:   material,
		Date:         scheme.MustParseDate(on),
		Volume:       decimal.NewFromInt(volume),
		Value:        decimal.NewFromInt(value),
	}
}

// Sales returns the demo invoice lines.
func Sales() []scheme.SalesRow {
	a := dealer("A100", "Anand Traders")
	b := dealer("B200", "Bharat Hardware")
	other := dealer("C300", "Chennai Colours")
	other.State = "Tamil Nadu"
	return []scheme.SalesRow{
		row(a, "M1", "2024-05-10", 100, 1000),
		row(a, "M1", "2025-05-10", 150, 1500),
		row(a, "T1", "2025-05-15", 20, 100),
		row(b, "M1", "2024-05-12", 1200, 12000),
		row(b, "M1", "2025-05-12", 1300, 13000),
		row(other, "M1", "2025-05-20", 500, 5000),
	}
}

// Demo writes the demo scheme, materials and sales.
func Demo(ctx context.Context, w scheme.Writer) error {
	if err := w.SaveScheme(ctx, DemoSchemeID, []byte(DemoDocument)); err != nil {
		return err
	}
	if err := w.UpsertMaterials(ctx, Materials); err != nil {
		return err
	}
	return w.InsertSales(ctx, Sales())
}
