package batch_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheme-engine/batch"
	"github.com/warp/scheme-engine/cache"
	"github.com/warp/scheme-engine/costing"
	"github.com/warp/scheme-engine/loader"
	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/memory"
	"github.com/warp/scheme-engine/store/seed"
)

const goaScheme = `{
  "applicable": {"states": ["Goa"]},
  "main": {
    "scheme_period": {"from": "2025-03-31", "to": "2025-06-29"},
    "slabs": [{"slab_start": 0, "rebate_per_litre": 1}]
  }
}`

func newRunner(t *testing.T) (*batch.Runner, *memory.Store) {
	t.Helper()
	st := memory.New()
	require.NoError(t, seed.Demo(context.Background(), st))
	require.NoError(t, st.SaveScheme(context.Background(), "GOA", []byte(goaScheme)))
	c := cache.New(loader.New(st, nil), cache.Options{})
	return batch.NewRunner(c, st, batch.Options{Workers: 2}), st
}

func intPtr(i int) *int { return &i }

func assertPayout(t *testing.T, tbl *costing.Table, row int, want int64) {
	t.Helper()
	got, ok := tbl.Value(row, costing.LabelTotalPayout)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

// =============================================================================
// CALCULATION TYPES
// =============================================================================

func TestRun_MainVolume(t *testing.T) {
	r, _ := newRunner(t)

	resp := r.Run(context.Background(), batch.Request{SchemeID: seed.DemoSchemeID, CalculationType: batch.MainVolume})

	require.True(t, resp.Success, resp.Detail)
	require.NotNil(t, resp.Table)
	assert.Equal(t, 2, resp.RecordCount, "account rows, not the GRAND TOTAL")
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "A100", resp.Table.Text(0, costing.LabelCreditAccount))
	assertPayout(t, resp.Table, 0, 300)
	assertPayout(t, resp.Table, 1, 3900)
	assertPayout(t, resp.Table, 2, 4200)
}

func TestRun_SummaryReturnsGrandTotalOnly(t *testing.T) {
	r, _ := newRunner(t)

	resp := r.Run(context.Background(), batch.Request{SchemeID: seed.DemoSchemeID, CalculationType: batch.SummaryMainVolume})

	require.True(t, resp.Success, resp.Detail)
	assert.Equal(t, 0, resp.RecordCount)
	assert.Equal(t, 1, resp.Table.Len())
	assert.Equal(t, costing.GrandTotalLabel, resp.Table.Text(0, costing.LabelCreditAccount))
	assertPayout(t, resp.Table, 0, 4200)
}

func TestRun_AdditionalScheme(t *testing.T) {
	// GIVEN: The demo's additional scheme over Thinner products
	// WHEN: Costing additional_volume at index 0
	// THEN: Only A100 (the one Thinner buyer) appears, paid 1 per unit

	r, _ := newRunner(t)

	resp := r.Run(context.Background(), batch.Request{
		SchemeID: seed.DemoSchemeID, SchemeIndex: intPtr(0), CalculationType: batch.AdditionalVolume,
	})

	require.True(t, resp.Success, resp.Detail)
	require.Equal(t, 2, resp.Table.Len())
	assert.Equal(t, 1, resp.RecordCount)
	assert.Equal(t, "A100", resp.Table.Text(0, costing.LabelCreditAccount))
	assertPayout(t, resp.Table, 0, 20)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name string
		req  batch.Request
		kind scheme.ErrorKind
	}{
		{
			name: "unknown scheme",
			req:  batch.Request{SchemeID: "NOPE", CalculationType: batch.MainValue},
			kind: scheme.KindConfigNotFound,
		},
		{
			name: "unknown calculation type",
			req:  batch.Request{SchemeID: seed.DemoSchemeID, CalculationType: "main_weight"},
			kind: scheme.KindInvalidRequest,
		},
		{
			name: "missing scheme id",
			req:  batch.Request{CalculationType: batch.MainValue},
			kind: scheme.KindInvalidRequest,
		},
		{
			name: "additional index out of range",
			req:  batch.Request{SchemeID: seed.DemoSchemeID, SchemeIndex: intPtr(3), CalculationType: batch.AdditionalValue},
			kind: scheme.KindInvalidRequest,
		},
		{
			name: "negative index",
			req:  batch.Request{SchemeID: seed.DemoSchemeID, SchemeIndex: intPtr(-1), CalculationType: batch.AdditionalValue},
			kind: scheme.KindInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRunner(t)

			resp := r.Run(context.Background(), tt.req)

			assert.False(t, resp.Success)
			assert.Equal(t, tt.kind, resp.ErrorKind)
			assert.NotEmpty(t, resp.Detail)
			assert.Equal(t, tt.req, resp.Request)
			assert.Nil(t, resp.Table)
		})
	}
}

func TestRun_EmptySchemeIsSuccessWithNoData(t *testing.T) {
	r, _ := newRunner(t)

	resp := r.Run(context.Background(), batch.Request{SchemeID: "GOA", CalculationType: batch.MainVolume})

	assert.True(t, resp.Success)
	assert.Equal(t, scheme.KindNone, resp.ErrorKind)
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":[]`)
}

func TestRun_CancelledContextIsTimeout(t *testing.T) {
	r, _ := newRunner(t)
	warm := r.Run(context.Background(), batch.Request{SchemeID: seed.DemoSchemeID, CalculationType: batch.MainVolume})
	require.True(t, warm.Success)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := r.Run(ctx, batch.Request{SchemeID: seed.DemoSchemeID, CalculationType: batch.MainVolume})

	assert.False(t, resp.Success)
	assert.Equal(t, scheme.KindTimeout, resp.ErrorKind)
}

// =============================================================================
// BATCHES
// =============================================================================

func TestRunBatch_PreservesOrderAndIsolatesFailures(t *testing.T) {
	// GIVEN: Interleaved requests over two schemes, one of them failing
	// WHEN: Running them as one batch
	// THEN: Responses line up with requests and the demo frame loads once

	r, st := newRunner(t)
	reqs := []batch.Request{
		{SchemeID: seed.DemoSchemeID, CalculationType: batch.MainVolume},
		{SchemeID: "NOPE", CalculationType: batch.MainVolume},
		{SchemeID: seed.DemoSchemeID, CalculationType: batch.SummaryMainValue},
		{SchemeID: "GOA", CalculationType: batch.MainValue},
		{SchemeID: seed.DemoSchemeID, SchemeIndex: intPtr(0), CalculationType: batch.SummaryAdditionalVolume},
	}

	resps := r.RunBatch(context.Background(), reqs)

	require.Len(t, resps, len(reqs))
	for i, resp := range resps {
		assert.Equal(t, reqs[i], resp.Request, "response %d", i)
	}
	assert.True(t, resps[0].Success)
	assert.Equal(t, scheme.KindConfigNotFound, resps[1].ErrorKind)
	assert.True(t, resps[2].Success)
	assert.True(t, resps[3].Success)
	assert.True(t, resps[4].Success)
	assertPayout(t, resps[4].Table, 0, 20)

	// One fetch for the demo scheme, one for GOA.
	assert.Equal(t, 2, st.SalesCalls())
}

const keralaStrataScheme = `{
  "applicable": {"states": ["Kerala"]},
  "main": {
    "scheme_period": {"from": "2025-03-31", "to": "2025-06-29"},
    "slabs": [{"slab_start": 0, "rebate_per_litre": 1}],
    "enable_strata_growth": true
  }
}`

// slowStrata answers strata lookups late and fails them if the fetch context
// has ended by then.
type slowStrata struct {
	*memory.Store
	delay time.Duration
}

func (s slowStrata) GetStrataGrowth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	time.Sleep(s.delay)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.GetStrataGrowth(ctx, accounts)
}

func TestRunBatch_TimeoutStaysWithItsRequest(t *testing.T) {
	// GIVEN: A strata scheme whose frame is cached and a slow strata table
	mem := memory.New()
	require.NoError(t, seed.Demo(context.Background(), mem))
	require.NoError(t, mem.SaveScheme(context.Background(), "KERALA-STRATA", []byte(keralaStrataScheme)))
	require.NoError(t, mem.UpsertStrataGrowth(context.Background(), map[string]decimal.Decimal{"A100": decimal.NewFromInt(10)}))
	st := slowStrata{Store: mem, delay: 300 * time.Millisecond}

	c := cache.New(loader.New(st, nil), cache.Options{})
	_, err := c.GetOrLoad(context.Background(), "KERALA-STRATA")
	require.NoError(t, err)
	r := batch.NewRunner(c, st, batch.Options{Workers: 2})

	// WHEN: The first request allows 50ms and the second uses the default
	resps := r.RunBatch(context.Background(), []batch.Request{
		{SchemeID: "KERALA-STRATA", CalculationType: batch.MainVolume, TimeoutS: 0.05},
		{SchemeID: "KERALA-STRATA", CalculationType: batch.MainVolume},
	})

	// THEN: Only the first times out; the second gets the strata it shared
	require.Len(t, resps, 2)
	assert.False(t, resps[0].Success)
	assert.Equal(t, scheme.KindTimeout, resps[0].ErrorKind)
	require.True(t, resps[1].Success, resps[1].Detail)
	assert.Equal(t, "A100", resps[1].Table.Text(0, costing.LabelCreditAccount))
	got, ok := resps[1].Table.Value(0, costing.LabelStrataGrowth)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(10).Equal(got), "got %s", got)
}

func TestRunBatch_Empty(t *testing.T) {
	r, _ := newRunner(t)

	assert.Empty(t, r.RunBatch(context.Background(), nil))
}

func TestCalculationType(t *testing.T) {
	assert.Len(t, batch.CalculationTypes(), 8)
	assert.True(t, batch.SummaryAdditionalValue.IsSummary())
	assert.True(t, batch.SummaryAdditionalValue.IsAdditional())
	assert.Equal(t, scheme.ModeValue, batch.SummaryAdditionalValue.Mode())
	assert.False(t, batch.MainVolume.IsSummary())
	assert.False(t, batch.MainVolume.IsAdditional())
	assert.Equal(t, scheme.ModeVolume, batch.MainVolume.Mode())
	assert.False(t, batch.CalculationType("main").Valid())
}
