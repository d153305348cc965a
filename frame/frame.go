/*
Package frame provides the columnar sales frame every calculation reads.

PURPOSE:
  A scheme is costed from one broad fetch of joined sales rows. The frame
  holds those rows column-wise (account index, date, product attributes,
  volume, value) so period sums, product masks and distinct counts run as
  single passes over flat arrays instead of per-account queries.

KEY CONCEPTS:
  - Row axis: one entry per sales row, in load order
  - Account axis: one entry per distinct credit account, sorted ascending
  - Column / Mask: decimal and boolean vectors over either axis
  - SumSpec: (product mask, window, measure) triple summed per account

IMMUTABILITY:
  A Frame never changes after Build. Cached frames are shared between
  concurrent requests without locking.

SEE ALSO:
  - loader/loader.go: builds frames from a Datastore
  - costing/aggregator.go: the period sums a scheme needs
*/
package frame

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// FRAME
// =============================================================================

// Frame is an immutable columnar view of joined sales rows.
type Frame struct {
	window   scheme.Window
	accounts []string
	attrs    []scheme.AccountAttrs

	acct     []int
	dates    []scheme.Date
	products []scheme.ProductAttrs
	volume   Column
	value    Column
}

// Window is the date range the frame was loaded for.
func (f *Frame) Window() scheme.Window { return f.window }

// Rows returns the number of sales rows.
func (f *Frame) Rows() int { return len(f.acct) }

// Accounts returns the sorted distinct credit accounts.
func (f *Frame) Accounts() []string { return f.accounts }

// NumAccounts returns the length of the account axis.
func (f *Frame) NumAccounts() int { return len(f.accounts) }

// Attrs returns each account's attributes, taken from its latest row.
func (f *Frame) Attrs() []scheme.AccountAttrs { return f.attrs }

// Measure returns the per-row column for mode.
func (f *Frame) Measure(m scheme.Mode) Column {
	if m == scheme.ModeValue {
		return f.value
	}
	return f.volume
}

// Record rebuilds row i.
func (f *Frame) Record(i int) scheme.SalesRecord {
	attrs := f.attrs[f.acct[i]]
	return scheme.SalesRecord{
		AccountAttrs: attrs,
		Product:      f.products[i],
		Date:         f.dates[i],
		Volume:       f.volume[i],
		Value:        f.value[i],
	}
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder accumulates records into a Frame.
type Builder struct {
	window  scheme.Window
	records []scheme.SalesRecord
}

func NewBuilder(w scheme.Window) *Builder {
	return &Builder{window: w}
}

// Add appends one record.
func (b *Builder) Add(r scheme.SalesRecord) error {
	b.records = append(b.records, r)
	return nil
}

// Len returns the number of records added so far.
func (b *Builder) Len() int { return len(b.records) }

// Build freezes the builder. Accounts are sorted; each account's text
// attributes come from its latest row, later rows winning ties.
func (b *Builder) Build() *Frame {
	index := make(map[string]int)
	var accounts []string
	for _, r := range b.records {
		if _, ok := index[r.CreditAccount]; !ok {
			index[r.CreditAccount] = 0
			accounts = append(accounts, r.CreditAccount)
		}
	}
	sort.Strings(accounts)
	for i, a := range accounts {
		index[a] = i
	}

	n := len(b.records)
	f := &Frame{
		window:   b.window,
		accounts: accounts,
		attrs:    make([]scheme.AccountAttrs, len(accounts)),
		acct:     make([]int, n),
		dates:    make([]scheme.Date, n),
		products: make([]scheme.ProductAttrs, n),
		volume:   make(Column, n),
		value:    make(Column, n),
	}
	latest := make([]scheme.Date, len(accounts))
	for i, r := range b.records {
		a := index[r.CreditAccount]
		f.acct[i] = a
		f.dates[i] = r.Date
		f.products[i] = r.Product
		f.volume[i] = r.Volume
		f.value[i] = r.Value
		if f.attrs[a].CreditAccount == "" || r.Date.AfterOrEqual(latest[a]) {
			f.attrs[a] = r.AccountAttrs
			latest[a] = r.Date
		}
	}
	return f
}

// FromRecords builds a frame in one call.
func FromRecords(w scheme.Window, records []scheme.SalesRecord) *Frame {
	b := NewBuilder(w)
	for _, r := range records {
		_ = b.Add(r)
	}
	return b.Build()
}

// =============================================================================
// SNAPSHOT - JSON form for the shared cache tier
// =============================================================================

type snapshot struct {
	Window  scheme.Window        `json:"window"`
	Records []scheme.SalesRecord `json:"records"`
}

func (f *Frame) MarshalJSON() ([]byte, error) {
	s := snapshot{Window: f.window, Records: make([]scheme.SalesRecord, f.Rows())}
	for i := range s.Records {
		s.Records[i] = f.Record(i)
	}
	return json.Marshal(s)
}

func (f *Frame) UnmarshalJSON(b []byte) error {
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = *FromRecords(s.Window, s.Records)
	return nil
}

// =============================================================================
// MASKS
// =============================================================================

// ProductsAny marks rows matching at least one non-empty axis of pf.
// An empty filter marks every row.
func (f *Frame) ProductsAny(pf scheme.ProductFilter) Mask {
	m := make(Mask, f.Rows())
	for i, p := range f.products {
		m[i] = pf.MatchAny(p)
	}
	return m
}

// ProductsAll marks rows matching every non-empty axis of pf.
func (f *Frame) ProductsAll(pf scheme.ProductFilter) Mask {
	m := make(Mask, f.Rows())
	for i, p := range f.products {
		m[i] = pf.MatchAll(p)
	}
	return m
}

// InWindow marks rows dated within w.
func (f *Frame) InWindow(w scheme.Window) Mask {
	m := make(Mask, f.Rows())
	for i, d := range f.dates {
		m[i] = w.Contains(d)
	}
	return m
}

// AccountsWith marks accounts owning at least one row under rows.
func (f *Frame) AccountsWith(rows Mask) Mask {
	m := make(Mask, f.NumAccounts())
	for i, a := range f.acct {
		if rows[i] {
			m[a] = true
		}
	}
	return m
}

// =============================================================================
// AGGREGATION
// =============================================================================

// SumSpec is one per-account sum: rows under Rows, dated within Window,
// adding the Measure column.
type SumSpec struct {
	Rows    Mask
	Window  scheme.Window
	Measure scheme.Mode
}

// Sums evaluates every spec in one pass over the rows. An absent window
// yields a zero column.
func (f *Frame) Sums(specs []SumSpec) []Column {
	out := make([]Column, len(specs))
	for k := range specs {
		out[k] = Zeros(f.NumAccounts())
	}
	for i, a := range f.acct {
		d := f.dates[i]
		for k, s := range specs {
			if !s.Rows[i] || !s.Window.Contains(d) {
				continue
			}
			out[k][a] = out[k][a].Add(f.Measure(s.Measure)[i])
		}
	}
	return out
}

// Sum is Sums for a single spec.
func (f *Frame) Sum(s SumSpec) Column { return f.Sums([]SumSpec{s})[0] }

// DistinctMaterials counts distinct material ids per account among rows
// under rows and dated within w.
func (f *Frame) DistinctMaterials(rows Mask, w scheme.Window) Column {
	seen := make([]map[string]struct{}, f.NumAccounts())
	for i, a := range f.acct {
		if !rows[i] || !w.Contains(f.dates[i]) {
			continue
		}
		if seen[a] == nil {
			seen[a] = make(map[string]struct{})
		}
		seen[a][f.products[i].MaterialID] = struct{}{}
	}
	out := make(Column, f.NumAccounts())
	for a := range out {
		out[a] = decimal.NewFromInt(int64(len(seen[a])))
	}
	return out
}
