/*
Package sqlstore implements scheme.ReadWriter over database/sql.

PURPOSE:
  SQLite and PostgreSQL share every statement; a Dialect supplies the DDL and
  the placeholder style. Queries are written with "?" and rebound for
  drivers that want "$n".

KEY TABLES:
  schemes:        stored scheme documents (JSON text)
  materials:      material master, joined onto sales on read
  sales:          invoice lines, negative rows are returns
  strata_growth:  per-account growth override, whole-number percent

STREAMING:
  GetSales scans row by row into the caller's callback; nothing is buffered
  beyond the driver's own cursor.

SEE ALSO:
  - store/sqlite, store/postgres: dialects and openers
  - store/mysql: the gorm implementation sharing query.go's sales template
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/scheme"
)

// strataChunk bounds IN lists on strata lookups.
const strataChunk = 500

// Dialect is what differs between databases.
type Dialect struct {
	Name   string
	Schema string
	// Dollar placeholders ($1, $2) instead of "?".
	Dollar bool
}

// Store implements scheme.ReadWriter.
type Store struct {
	db *sql.DB
	d  Dialect
}

var _ scheme.ReadWriter = (*Store)(nil)

// New wraps db and creates the schema.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	s := &Store{db: db, d: d}
	if _, err := db.ExecContext(ctx, d.Schema); err != nil {
		return nil, fmt.Errorf("failed to migrate %s database: %w", d.Name, err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for maintenance tools.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) bind(query string) string {
	if s.d.Dollar {
		return Rebind(query)
	}
	return query
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// READ SIDE (scheme.Datastore)
// =============================================================================

func (s *Store) GetScheme(ctx context.Context, schemeID string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT document FROM schemes WHERE scheme_id = ?`), schemeID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", scheme.ErrConfigNotFound, schemeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheme: %w", err)
	}
	return []byte(doc), nil
}

func (s *Store) GetSales(ctx context.Context, q scheme.SalesQuery, fn func(scheme.SalesRecord) error) error {
	query, args, err := SalesQuery(q, false)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, s.bind(query), args.Positional...)
	if err != nil {
		return fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := ScanSalesRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ScanSalesRecord reads one row of the sales template's column list.
func ScanSalesRecord(rows interface{ Scan(dest ...any) error }) (scheme.SalesRecord, error) {
	var (
		rec       scheme.SalesRecord
		on        any
		a         = &rec.AccountAttrs
		p         = &rec.Product
		wanda, th sql.NullString
		vol, val  any
	)
	err := rows.Scan(
		&a.CreditAccount, &a.CustomerName, &a.SOName, &a.State, &a.Region,
		&a.AreaHead, &a.Division, &a.DealerType, &a.Distributor,
		&p.MaterialID, &p.Category, &p.Group, &wanda, &th,
		&on, &vol, &val,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan sales row: %w", err)
	}
	p.WandaGroup, p.ThinnerGroup = wanda.String, th.String
	rec.Volume, rec.Value = finite(vol), finite(val)
	if rec.Date, err = scanDate(on); err != nil {
		return rec, err
	}
	return rec, nil
}

// finite reads a measure cell. NULL, NaN, infinities and unparsable text
// read as 0.
func finite(v any) decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return decimal.Zero
	case int64:
		return decimal.NewFromInt(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(t)
	case []byte:
		return finiteText(string(t))
	case string:
		return finiteText(t)
	default:
		return finiteText(fmt.Sprint(t))
	}
}

func finiteText(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func scanDate(v any) (scheme.Date, error) {
	switch t := v.(type) {
	case time.Time:
		return scheme.DateOf(t), nil
	case string:
		return scheme.ParseDate(t)
	case []byte:
		return scheme.ParseDate(string(t))
	default:
		return scheme.Date{}, fmt.Errorf("unexpected sale_date type %T", v)
	}
}

func (s *Store) GetStrataGrowth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for start := 0; start < len(accounts); start += strataChunk {
		end := min(start+strataChunk, len(accounts))
		chunk := accounts[start:end]

		args := make([]any, len(chunk))
		for i, a := range chunk {
			args[i] = a
		}
		query := `SELECT credit_account, growth_pct FROM strata_growth WHERE credit_account IN (` + inList(len(chunk)) + `)`
		if err := s.scanStrata(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scanStrata(ctx context.Context, query string, args []any, out map[string]decimal.Decimal) error {
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to query strata growth: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			account string
			growth  decimal.Decimal
		)
		if err := rows.Scan(&account, &growth); err != nil {
			return fmt.Errorf("failed to scan strata growth: %w", err)
		}
		out[account] = growth
	}
	return rows.Err()
}

// =============================================================================
// WRITE SIDE (scheme.Writer)
// =============================================================================

func (s *Store) SaveScheme(ctx context.Context, schemeID string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO schemes (scheme_id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (scheme_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`),
		schemeID, string(doc), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save scheme: %w", err)
	}
	return nil
}

func (s *Store) UpsertMaterials(ctx context.Context, materials []scheme.MaterialRow) error {
	return s.inTx(ctx, func(tx execer) error {
		for _, m := range materials {
			_, err := tx.ExecContext(ctx, s.bind(`
				INSERT INTO materials (material_id, category, material_group, wanda_group, thinner_group)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (material_id) DO UPDATE SET
					category = excluded.category, material_group = excluded.material_group,
					wanda_group = excluded.wanda_group, thinner_group = excluded.thinner_group`),
				m.MaterialID, m.Category, m.Group, m.WandaGroup, m.ThinnerGroup)
			if err != nil {
				return fmt.Errorf("failed to upsert material %s: %w", m.MaterialID, err)
			}
		}
		return nil
	})
}

func (s *Store) InsertSales(ctx context.Context, rows []scheme.SalesRow) error {
	return s.inTx(ctx, func(tx execer) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, s.bind(`
				INSERT INTO sales (credit_account, customer_name, so_name, state, region, area_head,
					division, dealer_type, distributor, material_id, sale_date, volume, value)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				r.CreditAccount, r.CustomerName, r.SOName, r.State, r.Region, r.AreaHead,
				r.Division, r.DealerType, r.Distributor, r.MaterialID, r.Date.String(), r.Volume, r.Value)
			if err != nil {
				return fmt.Errorf("failed to insert sales row: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) UpsertStrataGrowth(ctx context.Context, growth map[string]decimal.Decimal) error {
	return s.inTx(ctx, func(tx execer) error {
		for account, g := range growth {
			_, err := tx.ExecContext(ctx, s.bind(`
				INSERT INTO strata_growth (credit_account, growth_pct) VALUES (?, ?)
				ON CONFLICT (credit_account) DO UPDATE SET growth_pct = excluded.growth_pct`),
				account, g)
			if err != nil {
				return fmt.Errorf("failed to upsert strata growth: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx execer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
