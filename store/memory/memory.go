// Package memory provides an in-memory scheme.ReadWriter for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu        sync.RWMutex
	schemes   map[string][]byte
	materials map[string]scheme.MaterialRow
	sales     []scheme.SalesRow // kept sorted by date
	strata    map[string]decimal.Decimal

	// calls counts GetSales invocations so tests can assert cache behaviour.
	calls atomic.Int64
}

var _ scheme.ReadWriter = (*Store)(nil)

func New() *Store {
	return &Store{
		schemes:   make(map[string][]byte),
		materials: make(map[string]scheme.MaterialRow),
		strata:    make(map[string]decimal.Decimal),
	}
}

// SaveScheme stores a copy of doc under schemeID.
func (m *Store) SaveScheme(_ context.Context, schemeID string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemes[schemeID] = append([]byte(nil), doc...)
	return nil
}

func (m *Store) UpsertMaterials(_ context.Context, materials []scheme.MaterialRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mat := range materials {
		m.materials[mat.MaterialID] = mat
	}
	return nil
}

// InsertSales appends rows. Append-only.
func (m *Store) InsertSales(_ context.Context, rows []scheme.SalesRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.insertLocked(r)
	}
	return nil
}

func (m *Store) insertLocked(r scheme.SalesRow) {
	// Binary search keeps rows in date order; equal dates keep insertion order.
	i := sort.Search(len(m.sales), func(i int) bool {
		return m.sales[i].Date.After(r.Date)
	})
	m.sales = append(m.sales, scheme.SalesRow{})
	copy(m.sales[i+1:], m.sales[i:])
	m.sales[i] = r
}

func (m *Store) UpsertStrataGrowth(_ context.Context, growth map[string]decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range growth {
		m.strata[k] = v
	}
	return nil
}

func (m *Store) GetScheme(_ context.Context, schemeID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.schemes[schemeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", scheme.ErrConfigNotFound, schemeID)
	}
	return append([]byte(nil), doc...), nil
}

// GetSales streams joined rows in q.Window passing q.Applicable. Rows whose
// material is missing from the master are skipped.
func (m *Store) GetSales(ctx context.Context, q scheme.SalesQuery, fn func(scheme.SalesRecord) error) error {
	m.calls.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	start := sort.Search(len(m.sales), func(i int) bool {
		return !m.sales[i].Date.Before(q.Window.From)
	})
	for _, r := range m.sales[start:] {
		if r.Date.After(q.Window.To) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !q.Applicable.Match(r.AccountAttrs) {
			continue
		}
		mat, ok := m.materials[r.MaterialID]
		if !ok {
			continue
		}
		if err := fn(scheme.Join(r, mat)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Store) GetStrataGrowth(_ context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]decimal.Decimal)
	for _, a := range accounts {
		if g, ok := m.strata[a]; ok {
			out[a] = g
		}
	}
	return out, nil
}

// SalesCalls returns how many times GetSales ran.
func (m *Store) SalesCalls() int {
	return int(m.calls.Load())
}
