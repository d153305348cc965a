/*
Package sqlite provides a SQLite-backed scheme.ReadWriter.

PURPOSE:
  The embedded datastore for schemes, the material master, sales and strata
  growth. Statements are shared with PostgreSQL through store/sqlstore; this
  package only supplies the DDL and opens the file.

INDEXES:
  - idx_sales_date: the date-range scan every sales fetch starts with
  - idx_sales_state: the most common applicable filter

WAL MODE:
  Opened with WAL so readers never block on the single writer. One open
  connection keeps ":memory:" databases coherent across calls.

USAGE:
  store, err := sqlite.New(ctx, "./data/schemes.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - scheme/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/scheme-engine/store/sqlstore"
)

const schema = `
	CREATE TABLE IF NOT EXISTS schemes (
		scheme_id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS materials (
		material_id TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		material_group TEXT NOT NULL DEFAULT '',
		wanda_group TEXT,
		thinner_group TEXT
	);

	-- Invoice lines; negative volume/value rows are returns
	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		credit_account TEXT NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		so_name TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		area_head TEXT NOT NULL DEFAULT '',
		division TEXT NOT NULL DEFAULT '',
		dealer_type TEXT NOT NULL DEFAULT '',
		distributor TEXT NOT NULL DEFAULT '',
		material_id TEXT NOT NULL,
		sale_date TEXT NOT NULL,
		volume TEXT,
		value TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date);
	CREATE INDEX IF NOT EXISTS idx_sales_state ON sales(state, sale_date);

	CREATE TABLE IF NOT EXISTS strata_growth (
		credit_account TEXT PRIMARY KEY,
		growth_pct TEXT NOT NULL
	);
`

// Dialect is the SQLite flavour of the shared statements.
var Dialect = sqlstore.Dialect{Name: "sqlite", Schema: schema}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := sqlstore.New(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
