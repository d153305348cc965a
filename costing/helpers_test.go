package costing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheme-engine/costing"
	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func num(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(year int, month time.Month, day int) scheme.Date {
	return scheme.NewDate(year, month, day)
}

// Q2 2025 is the scheme period of every fixture; Q2 2024 the base period.
var (
	schemePeriod = scheme.NewWindow(date(2025, time.April, 1), date(2025, time.June, 30))
	basePeriod   = scheme.NewWindow(date(2024, time.April, 1), date(2024, time.June, 30))
	april        = scheme.NewWindow(date(2025, time.April, 1), date(2025, time.April, 30))
	may          = scheme.NewWindow(date(2025, time.May, 1), date(2025, time.May, 31))
	june         = scheme.NewWindow(date(2025, time.June, 1), date(2025, time.June, 30))
)

func baseConfig(mode scheme.Mode, slabs ...scheme.Slab) *scheme.Config {
	return &scheme.Config{
		SchemeID:     "SCH-TEST",
		Index:        -1,
		Mode:         mode,
		SchemePeriod: schemePeriod,
		Slabs:        slabs,
	}
}

func withBase(cfg *scheme.Config) *scheme.Config {
	cfg.BasePeriods[0] = scheme.BasePeriod{Window: basePeriod, Aggregation: scheme.AggregateSum, MonthsCount: 3}
	return cfg
}

type sale struct {
	account  string
	material string
	group    string
	on       scheme.Date
	volume   string
	value    string
}

func buildFrame(sales ...sale) *frame.Frame {
	b := frame.NewBuilder(basePeriod.Span(schemePeriod))
	for _, s := range sales {
		group := s.group
		if group == "" {
			group = "Standard"
		}
		_ = b.Add(scheme.SalesRecord{
			AccountAttrs: scheme.AccountAttrs{CreditAccount: s.account, CustomerName: "Dealer " + s.account, State: "Kerala"},
			Product:      scheme.ProductAttrs{MaterialID: s.material, Category: "Emulsion", Group: group},
			Date:         s.on,
			Volume:       num(s.volume),
			Value:        num(s.value),
		})
	}
	return b.Build()
}

func compute(t *testing.T, cfg *scheme.Config, fr *frame.Frame) *costing.Table {
	t.Helper()
	tbl, err := costing.NewEngine(nil, nil).Compute(context.Background(), cfg, fr, costing.Options{})
	require.NoError(t, err)
	return tbl
}

func value(t *testing.T, tbl *costing.Table, row int, label string) decimal.Decimal {
	t.Helper()
	v, ok := tbl.Value(row, label)
	require.True(t, ok, "no value for %q in row %d", label, row)
	return v
}

func assertValue(t *testing.T, tbl *costing.Table, row int, label, want string) {
	t.Helper()
	got := value(t, tbl, row, label)
	assert.True(t, num(want).Equal(got), "%s: want %s, got %s", label, want, got)
}

// rowOf finds the row of an account.
func rowOf(t *testing.T, tbl *costing.Table, account string) int {
	t.Helper()
	for i := 0; i < tbl.Len(); i++ {
		if tbl.Text(i, costing.LabelCreditAccount) == account {
			return i
		}
	}
	t.Fatalf("account %s not in table", account)
	return -1
}

type fixedStrata map[string]decimal.Decimal

func (f fixedStrata) Growth(_ context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, a := range accounts {
		if g, ok := f[a]; ok {
			out[a] = g
		}
	}
	return out, nil
}
