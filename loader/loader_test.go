package loader_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheme-engine/loader"
	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/memory"
	"github.com/warp/scheme-engine/store/seed"
)

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, seed.Demo(context.Background(), s))
	return s
}

// flakyStore fails GetSales a fixed number of times before delegating.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	err      error
}

func (f *flakyStore) GetSales(ctx context.Context, q scheme.SalesQuery, fn func(scheme.SalesRecord) error) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return f.err
	}
	f.mu.Unlock()
	return f.Store.GetSales(ctx, q, fn)
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoad_DemoScheme(t *testing.T) {
	l := loader.New(seeded(t), nil)

	cfg, fr, err := l.Load(context.Background(), seed.DemoSchemeID)

	require.NoError(t, err)
	assert.Equal(t, seed.DemoSchemeID, cfg.SchemeID)
	require.Len(t, cfg.Additional, 1)
	// C300 is outside the applicable states.
	assert.Equal(t, []string{"A100", "B200"}, fr.Accounts())
	assert.Equal(t, 5, fr.Rows())
}

func TestLoad_UnknownScheme(t *testing.T) {
	l := loader.New(seeded(t), nil)

	_, _, err := l.Load(context.Background(), "NOPE")

	require.Error(t, err)
	assert.Equal(t, scheme.KindConfigNotFound, scheme.KindOf(err))
}

func TestLoad_MalformedDocument(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.SaveScheme(context.Background(), "BROKEN", []byte(`{"main": {"slabs": []}}`)))

	_, _, err := loader.New(s, nil).Load(context.Background(), "BROKEN")

	require.Error(t, err)
	assert.Equal(t, scheme.KindConfigMalformed, scheme.KindOf(err))
}

func TestLoadFrame_RetriesTransientFailureOnce(t *testing.T) {
	// GIVEN: A store whose first sales fetch fails with a bad connection
	// WHEN: Loading
	// THEN: The second attempt succeeds

	s := &flakyStore{Store: seeded(t), failures: 1, err: driver.ErrBadConn}

	_, fr, err := loader.New(s, nil).Load(context.Background(), seed.DemoSchemeID)

	require.NoError(t, err)
	assert.Equal(t, 2, fr.NumAccounts())
}

func TestLoadFrame_GivesUpAfterSecondTransientFailure(t *testing.T) {
	s := &flakyStore{Store: seeded(t), failures: 2, err: driver.ErrBadConn}

	_, _, err := loader.New(s, nil).Load(context.Background(), seed.DemoSchemeID)

	require.Error(t, err)
	assert.Equal(t, scheme.KindLoadError, scheme.KindOf(err))
	assert.True(t, errors.Is(err, driver.ErrBadConn))
}

func TestLoadFrame_PermanentFailureIsNotRetried(t *testing.T) {
	s := &flakyStore{Store: seeded(t), failures: 1, err: errors.New("syntax error")}

	_, _, err := loader.New(s, nil).Load(context.Background(), seed.DemoSchemeID)

	require.Error(t, err)
	assert.Equal(t, scheme.KindLoadError, scheme.KindOf(err))
	assert.Equal(t, 0, s.SalesCalls())
}

// =============================================================================
// STRATA TESTS
// =============================================================================

func TestStrataLoader_Growth(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.UpsertStrataGrowth(context.Background(), map[string]decimal.Decimal{
		"A100": decimal.NewFromInt(12),
		"B200": decimal.Zero,
	}))

	growth, err := loader.NewStrataLoader(s).Growth(context.Background(), []string{"A100", "B200", "Z999"})

	require.NoError(t, err)
	require.Len(t, growth, 1)
	assert.True(t, decimal.NewFromInt(12).Equal(growth["A100"]))
}

type countingStrata struct {
	*memory.Store
	mu      sync.Mutex
	batches [][]string
}

func (c *countingStrata) GetStrataGrowth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	c.batches = append(c.batches, append([]string(nil), accounts...))
	c.mu.Unlock()
	return c.Store.GetStrataGrowth(ctx, accounts)
}

func TestStrataLoader_ReusesFetchedAccounts(t *testing.T) {
	s := &countingStrata{Store: seeded(t)}
	sl := loader.NewStrataLoader(s)

	_, err := sl.Growth(context.Background(), []string{"A100", "B200"})
	require.NoError(t, err)
	_, err = sl.Growth(context.Background(), []string{"A100", "B200"})
	require.NoError(t, err)

	assert.Len(t, s.batches, 1)
}

type failingStrata struct{ *memory.Store }

func (failingStrata) GetStrataGrowth(context.Context, []string) (map[string]decimal.Decimal, error) {
	return nil, errors.New("strata table missing")
}

func TestStrataLoader_ErrorIsLoadError(t *testing.T) {
	_, err := loader.NewStrataLoader(failingStrata{seeded(t)}).Growth(context.Background(), []string{"A100"})

	require.Error(t, err)
	assert.Equal(t, scheme.KindLoadError, scheme.KindOf(err))
}

// onceFailingStrata fails the first strata fetch and then delegates.
type onceFailingStrata struct {
	*memory.Store
	mu    sync.Mutex
	calls int
}

func (o *onceFailingStrata) GetStrataGrowth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	o.mu.Lock()
	o.calls++
	first := o.calls == 1
	o.mu.Unlock()
	if first {
		return nil, errors.New("connection reset")
	}
	return o.Store.GetStrataGrowth(ctx, accounts)
}

func TestStrataLoader_FailedKeysAreRefetched(t *testing.T) {
	// GIVEN: A store whose first strata fetch fails
	s := &onceFailingStrata{Store: seeded(t)}
	require.NoError(t, s.UpsertStrataGrowth(context.Background(), map[string]decimal.Decimal{"A100": decimal.NewFromInt(7)}))
	sl := loader.NewStrataLoader(s)

	// WHEN: The same accounts are asked for twice
	_, err := sl.Growth(context.Background(), []string{"A100"})
	require.Error(t, err)
	growth, err := sl.Growth(context.Background(), []string{"A100"})

	// THEN: The second call fetches again instead of replaying the failure
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(7).Equal(growth["A100"]))
	assert.Equal(t, 2, s.calls)
}

// slowStrata answers after a fixed delay regardless of the caller's context.
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

func TestStrataLoader_CallerDeadlineDoesNotLeak(t *testing.T) {
	// GIVEN: A slow store shared by a short-deadline caller and a patient one
	st := seeded(t)
	require.NoError(t, st.UpsertStrataGrowth(context.Background(), map[string]decimal.Decimal{"A100": decimal.NewFromInt(9)}))
	sl := loader.NewStrataLoader(slowStrata{Store: st, delay: 300 * time.Millisecond})

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// WHEN: Both ask for the same account in the same batch window
	var wg sync.WaitGroup
	var shortErr, longErr error
	var growth map[string]decimal.Decimal
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, shortErr = sl.Growth(short, []string{"A100"})
	}()
	go func() {
		defer wg.Done()
		growth, longErr = sl.Growth(context.Background(), []string{"A100"})
	}()
	wg.Wait()

	// THEN: Only the short caller times out
	require.Error(t, shortErr)
	assert.Equal(t, scheme.KindTimeout, scheme.KindOf(shortErr))
	require.NoError(t, longErr)
	assert.True(t, decimal.NewFromInt(9).Equal(growth["A100"]))
}
