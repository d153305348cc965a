package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/scheme"
)

// StrataLoader batches strata-growth lookups. Concurrent requests costing
// schemes over overlapping accounts share one datastore round trip, and each
// account is fetched at most once per loader. Create one per batch run.
//
// A shared fetch never runs under one caller's deadline, and a failed key is
// dropped from the loader cache so the next caller fetches it again.
type StrataLoader struct {
	loader *dataloader.Loader[string, decimal.Decimal]
}

type strataReader struct {
	store scheme.Datastore
}

func (r *strataReader) getGrowth(ctx context.Context, accounts []string) []*dataloader.Result[decimal.Decimal] {
	growth, err := r.store.GetStrataGrowth(ctx, accounts)
	if err != nil {
		return handleError[decimal.Decimal](len(accounts), scheme.NewLoadError("get strata growth", err))
	}
	results := make([]*dataloader.Result[decimal.Decimal], len(accounts))
	for i, a := range accounts {
		g, ok := growth[a]
		if !ok {
			g = decimal.Zero
		}
		results[i] = &dataloader.Result[decimal.Decimal]{Data: g}
	}
	return results
}

func handleError[T any](n int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], n)
	for i := 0; i < n; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// NewStrataLoader creates a loader over store.
func NewStrataLoader(store scheme.Datastore) *StrataLoader {
	reader := &strataReader{store: store}
	return &StrataLoader{
		loader: dataloader.NewBatchedLoader(reader.getGrowth,
			dataloader.WithWait[string, decimal.Decimal](time.Millisecond),
			dataloader.WithBatchCapacity[string, decimal.Decimal](1000),
		),
	}
}

type growthResult struct {
	values []decimal.Decimal
	errs   []error
}

// Growth returns whole-number growth percentages for accounts that have a
// non-zero entry. It returns a timeout when ctx ends first.
func (s *StrataLoader) Growth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	thunk := s.loader.LoadMany(context.WithoutCancel(ctx), accounts)

	done := make(chan growthResult, 1)
	go func() {
		values, errs := thunk()
		for i, err := range errs {
			if err != nil {
				s.loader.Clear(context.Background(), accounts[i])
			}
		}
		done <- growthResult{values: values, errs: errs}
	}()

	var res growthResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: strata growth: %w", scheme.ErrTimeout, ctx.Err())
	case res = <-done:
	}

	for _, err := range res.errs {
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]decimal.Decimal, len(accounts))
	for i, a := range accounts {
		if i < len(res.values) && !res.values[i].IsZero() {
			out[a] = res.values[i]
		}
	}
	return out, nil
}
