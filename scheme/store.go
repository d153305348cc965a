/*
store.go - Datastore contract for scheme costing

PURPOSE:
  Defines the interface between the costing core and wherever schemes and
  sales live. The core only reads; the Writer side exists for seeding and
  for the tools that maintain the tables.

KEY INTERFACES:
  Datastore: scheme documents, joined sales rows, strata growth
  Writer:    inserts/upserts for the same tables

STREAMING:
  GetSales hands rows to a callback instead of returning a slice, so a
  loader can build its frame without holding the driver's rows twice.

IMPLEMENTATIONS:
  - store/memory: in-memory, for tests and demos
  - store/sqlite, store/postgres: database/sql via store/sqlstore
  - store/mysql: gorm with templated SQL

SEE ALSO:
  - loader/loader.go: the only caller of GetSales
*/
package scheme

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROWS
// =============================================================================

// SalesRow is one invoice line. Negative volume/value rows are returns.
type SalesRow struct {
	AccountAttrs
	MaterialID string          `json:"material_id"`
	Date       Date            `json:"date"`
	Volume     decimal.Decimal `json:"volume"`
	Value      decimal.Decimal `json:"value"`
}

// MaterialRow is one material-master entry.
type MaterialRow = ProductAttrs

// SalesRecord is a sales row joined with its material. Rows whose material is
// missing from the master never become records.
type SalesRecord struct {
	AccountAttrs
	Product ProductAttrs    `json:"product"`
	Date    Date            `json:"date"`
	Volume  decimal.Decimal `json:"volume"`
	Value   decimal.Decimal `json:"value"`
}

// Join attaches material attributes to a sales row.
func Join(s SalesRow, m MaterialRow) SalesRecord {
	return SalesRecord{
		AccountAttrs: s.AccountAttrs,
		Product:      m,
		Date:         s.Date,
		Volume:       s.Volume,
		Value:        s.Value,
	}
}

// SalesQuery is the one broad fetch a scheme needs.
type SalesQuery struct {
	Window     Window
	Applicable ApplicableFilters
}

// =============================================================================
// INTERFACES
// =============================================================================

// Datastore is the read side the core depends on.
type Datastore interface {
	// GetScheme returns the stored document. Missing ids wrap ErrConfigNotFound.
	GetScheme(ctx context.Context, schemeID string) ([]byte, error)

	// GetSales streams joined rows in q.Window that pass q.Applicable.
	GetSales(ctx context.Context, q SalesQuery, fn func(SalesRecord) error) error

	// GetStrataGrowth returns whole-number growth percentages by account.
	// Accounts without an entry are omitted.
	GetStrataGrowth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error)
}

// Writer maintains the tables behind a Datastore.
type Writer interface {
	SaveScheme(ctx context.Context, schemeID string, doc []byte) error
	UpsertMaterials(ctx context.Context, materials []MaterialRow) error
	InsertSales(ctx context.Context, rows []SalesRow) error
	UpsertStrataGrowth(ctx context.Context, growth map[string]decimal.Decimal) error
}

// ReadWriter is both sides.
type ReadWriter interface {
	Datastore
	Writer
}
