package sqlite_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/memory"
	"github.com/warp/scheme-engine/store/seed"
	"github.com/warp/scheme-engine/store/sqlite"
	"github.com/warp/scheme-engine/store/sqlstore"
)

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, seed.Demo(context.Background(), s))
	return s
}

func collect(t *testing.T, ds scheme.Datastore, q scheme.SalesQuery) []scheme.SalesRecord {
	t.Helper()
	var out []scheme.SalesRecord
	require.NoError(t, ds.GetSales(context.Background(), q, func(r scheme.SalesRecord) error {
		out = append(out, r)
		return nil
	}))
	return out
}

var everything = scheme.NewWindow(scheme.MustParseDate("2024-01-01"), scheme.MustParseDate("2025-12-31"))

func TestGetScheme(t *testing.T) {
	s := newStore(t)

	doc, err := s.GetScheme(context.Background(), seed.DemoSchemeID)
	require.NoError(t, err)
	assert.JSONEq(t, seed.DemoDocument, string(doc))

	_, err = s.GetScheme(context.Background(), "NOPE")
	assert.ErrorIs(t, err, scheme.ErrConfigNotFound)
}

func TestSaveScheme_Overwrites(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SaveScheme(context.Background(), seed.DemoSchemeID, []byte(`{"v":2}`)))

	doc, err := s.GetScheme(context.Background(), seed.DemoSchemeID)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(doc))
}

func TestGetSales_MatchesMemoryStore(t *testing.T) {
	// GIVEN: The demo data in both sqlite and the in-memory store
	// WHEN: Fetching with and without an applicable filter
	// THEN: Both stores stream the same joined records in the same order

	s := newStore(t)
	mem := memory.New()
	require.NoError(t, seed.Demo(context.Background(), mem))

	queries := []scheme.SalesQuery{
		{Window: everything},
		{Window: everything, Applicable: scheme.ApplicableFilters{States: scheme.NewSet("Kerala")}},
		{Window: scheme.NewWindow(scheme.MustParseDate("2025-04-01"), scheme.MustParseDate("2025-06-30"))},
	}
	for _, q := range queries {
		got := collect(t, s, q)
		want := collect(t, mem, q)
		require.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i].AccountAttrs, got[i].AccountAttrs)
			assert.Equal(t, want[i].Product, got[i].Product)
			assert.Equal(t, want[i].Date.String(), got[i].Date.String())
			assert.True(t, want[i].Volume.Equal(got[i].Volume))
			assert.True(t, want[i].Value.Equal(got[i].Value))
		}
	}
}

func TestGetSales_FiltersAndJoin(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.InsertSales(context.Background(), []scheme.SalesRow{{
		AccountAttrs: scheme.AccountAttrs{CreditAccount: "A100", State: "Kerala"},
		MaterialID:   "UNKNOWN",
		Date:         scheme.MustParseDate("2025-05-01"),
		Volume:       decimal.NewFromInt(1),
		Value:        decimal.NewFromInt(1),
	}}))

	recs := collect(t, s, scheme.SalesQuery{
		Window:     everything,
		Applicable: scheme.ApplicableFilters{States: scheme.NewSet("Tamil Nadu", "Goa")},
	})

	require.Len(t, recs, 1)
	assert.Equal(t, "C300", recs[0].CreditAccount)
	assert.Equal(t, "Emulsion", recs[0].Product.Category)

	// Rows without a material-master entry never come back.
	for _, r := range collect(t, s, scheme.SalesQuery{Window: everything}) {
		assert.NotEqual(t, "UNKNOWN", r.Product.MaterialID)
	}
}

func TestGetSales_NonFiniteMeasuresReadAsZero(t *testing.T) {
	// GIVEN: Sales rows whose volume or value is NaN, infinite, NULL or text
	s := newStore(t)
	_, err := s.DB().ExecContext(context.Background(), `
		INSERT INTO sales (credit_account, state, material_id, sale_date, volume, value) VALUES
			('Z900', 'Kerala', 'M1', '2025-05-01', 'NaN', '5'),
			('Z900', 'Kerala', 'M1', '2025-05-02', 1e999, 'Infinity'),
			('Z900', 'Kerala', 'M1', '2025-05-03', NULL, NULL),
			('Z900', 'Kerala', 'M1', '2025-05-04', '-Inf', 'n/a'),
			('Z900', 'Kerala', 'M1', '2025-05-05', '7', -1e999)`)
	require.NoError(t, err)

	// WHEN: Streaming the sales
	var got []scheme.SalesRecord
	for _, r := range collect(t, s, scheme.SalesQuery{Window: everything}) {
		if r.CreditAccount == "Z900" {
			got = append(got, r)
		}
	}

	// THEN: Every row loads and the non-finite cells are 0
	want := [][2]int64{{0, 5}, {0, 0}, {0, 0}, {0, 0}, {7, 0}}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.True(t, decimal.NewFromInt(w[0]).Equal(got[i].Volume), "row %d volume %s", i, got[i].Volume)
		assert.True(t, decimal.NewFromInt(w[1]).Equal(got[i].Value), "row %d value %s", i, got[i].Value)
	}
}

func TestStrataGrowth(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertStrataGrowth(ctx, map[string]decimal.Decimal{"A100": decimal.NewFromInt(5)}))
	require.NoError(t, s.UpsertStrataGrowth(ctx, map[string]decimal.Decimal{"A100": decimal.NewFromInt(12)}))

	growth, err := s.GetStrataGrowth(ctx, []string{"A100", "B200"})

	require.NoError(t, err)
	assert.Len(t, growth, 1)
	assert.True(t, decimal.NewFromInt(12).Equal(growth["A100"]))
}

func TestUpsertMaterials_Overwrites(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.UpsertMaterials(context.Background(), []scheme.MaterialRow{
		{MaterialID: "M1", Category: "Enamel", Group: "Standard"},
	}))

	recs := collect(t, s, scheme.SalesQuery{Window: everything})

	for _, r := range recs {
		if r.Product.MaterialID == "M1" {
			assert.Equal(t, "Enamel", r.Product.Category)
		}
	}
}
