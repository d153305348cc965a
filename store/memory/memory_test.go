package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/memory"
	"github.com/warp/scheme-engine/store/seed"
)

var everything = scheme.NewWindow(scheme.MustParseDate("2024-01-01"), scheme.MustParseDate("2025-12-31"))

func TestGetSales_ConcurrentReadsAreCounted(t *testing.T) {
	// GIVEN: The demo data set
	s := memory.New()
	require.NoError(t, seed.Demo(context.Background(), s))

	// WHEN: Many readers stream sales at once
	const readers = 16
	var wg sync.WaitGroup
	counts := make([]int, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.GetSales(context.Background(), scheme.SalesQuery{Window: everything}, func(scheme.SalesRecord) error {
				counts[i]++
				return nil
			})
		}(i)
	}
	wg.Wait()

	// THEN: Every call is counted and every reader sees the same rows
	assert.Equal(t, readers, s.SalesCalls())
	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, counts[0], counts[i])
	}
	assert.NotZero(t, counts[0])
}
