// Package postgres opens a PostgreSQL-backed scheme.ReadWriter through the
// pgx database/sql driver. Statements live in store/sqlstore.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

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

	CREATE TABLE IF NOT EXISTS sales (
		id BIGSERIAL PRIMARY KEY,
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
		sale_date DATE NOT NULL,
		volume NUMERIC(18, 4),
		value NUMERIC(18, 4)
	);

	CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date);
	CREATE INDEX IF NOT EXISTS idx_sales_state ON sales(state, sale_date);

	CREATE TABLE IF NOT EXISTS strata_growth (
		credit_account TEXT PRIMARY KEY,
		growth_pct NUMERIC(9, 4) NOT NULL
	);
`

var Dialect = sqlstore.Dialect{Name: "postgres", Schema: schema, Dollar: true}

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store, err := sqlstore.New(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
