/*
Package mysql provides a MySQL-backed scheme.ReadWriter on gorm.

PURPOSE:
  For deployments whose sales tables already live in MySQL. Tables are gorm
  models migrated with AutoMigrate; the sales fetch is the shared template
  from store/sqlstore rendered with named parameters and run through Raw.

SEE ALSO:
  - store/sqlstore/query.go: the sales template
*/
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/warp/scheme-engine/scheme"
	"github.com/warp/scheme-engine/store/sqlstore"
)

const batchSize = 500

// =============================================================================
// MODELS
// =============================================================================

type SchemeModel struct {
	SchemeID  string `gorm:"primaryKey;size:128"`
	Document  string `gorm:"type:longtext;not null"`
	UpdatedAt time.Time
}

func (SchemeModel) TableName() string { return "schemes" }

type MaterialModel struct {
	MaterialID    string `gorm:"primaryKey;size:64"`
	Category      string `gorm:"size:128;not null;default:''"`
	MaterialGroup string `gorm:"size:128;not null;default:''"`
	WandaGroup    string `gorm:"size:128"`
	ThinnerGroup  string `gorm:"size:128"`
}

func (MaterialModel) TableName() string { return "materials" }

type SalesModel struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	CreditAccount string          `gorm:"size:64;not null"`
	CustomerName  string          `gorm:"size:255"`
	SOName        string          `gorm:"column:so_name;size:255"`
	State         string          `gorm:"size:64;index:idx_sales_state,priority:1"`
	Region        string          `gorm:"size:64"`
	AreaHead      string          `gorm:"size:128"`
	Division      string          `gorm:"size:64"`
	DealerType    string          `gorm:"size:64"`
	Distributor   string          `gorm:"size:255"`
	MaterialID    string          `gorm:"size:64;not null"`
	SaleDate      time.Time       `gorm:"type:date;not null;index:idx_sales_date;index:idx_sales_state,priority:2"`
	Volume        decimal.Decimal `gorm:"type:decimal(18,4)"`
	Value         decimal.Decimal `gorm:"type:decimal(18,4)"`
}

func (SalesModel) TableName() string { return "sales" }

type StrataGrowthModel struct {
	CreditAccount string          `gorm:"primaryKey;size:64"`
	GrowthPct     decimal.Decimal `gorm:"type:decimal(9,4);not null"`
}

func (StrataGrowthModel) TableName() string { return "strata_growth" }

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	db *gorm.DB
}

var _ scheme.ReadWriter = (*Store)(nil)

// Open connects with dsn and migrates the tables. The DSN needs parseTime=true.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&SchemeModel{}, &MaterialModel{}, &SalesModel{}, &StrataGrowthModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetScheme(ctx context.Context, schemeID string) ([]byte, error) {
	var m SchemeModel
	err := s.db.WithContext(ctx).Where("scheme_id = ?", schemeID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", scheme.ErrConfigNotFound, schemeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheme: %w", err)
	}
	return []byte(m.Document), nil
}

func (s *Store) GetSales(ctx context.Context, q scheme.SalesQuery, fn func(scheme.SalesRecord) error) error {
	query, args, err := sqlstore.SalesQuery(q, true)
	if err != nil {
		return err
	}
	rows, err := s.db.WithContext(ctx).Raw(query, args.Values()).Rows()
	if err != nil {
		return fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := sqlstore.ScanSalesRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) GetStrataGrowth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if len(accounts) == 0 {
		return out, nil
	}
	var found []StrataGrowthModel
	err := s.db.WithContext(ctx).
		Where("credit_account IN ?", accounts).
		FindInBatches(&found, batchSize, func(tx *gorm.DB, _ int) error {
			for _, g := range found {
				out[g.CreditAccount] = g.GrowthPct
			}
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query strata growth: %w", err)
	}
	return out, nil
}

func (s *Store) SaveScheme(ctx context.Context, schemeID string, doc []byte) error {
	m := SchemeModel{SchemeID: schemeID, Document: string(doc), UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

func (s *Store) UpsertMaterials(ctx context.Context, materials []scheme.MaterialRow) error {
	if len(materials) == 0 {
		return nil
	}
	models := make([]MaterialModel, len(materials))
	for i, m := range materials {
		models[i] = MaterialModel{
			MaterialID:    m.MaterialID,
			Category:      m.Category,
			MaterialGroup: m.Group,
			WandaGroup:    m.WandaGroup,
			ThinnerGroup:  m.ThinnerGroup,
		}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(models, batchSize).Error
}

func (s *Store) InsertSales(ctx context.Context, rows []scheme.SalesRow) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]SalesModel, len(rows))
	for i, r := range rows {
		models[i] = SalesModel{
			CreditAccount: r.CreditAccount,
			CustomerName:  r.CustomerName,
			SOName:        r.SOName,
			State:         r.State,
			Region:        r.Region,
			AreaHead:      r.AreaHead,
			Division:      r.Division,
			DealerType:    r.DealerType,
			Distributor:   r.Distributor,
			MaterialID:    r.MaterialID,
			SaleDate:      r.Date.Time,
			Volume:        r.Volume,
			Value:         r.Value,
		}
	}
	return s.db.WithContext(ctx).CreateInBatches(models, batchSize).Error
}

func (s *Store) UpsertStrataGrowth(ctx context.Context, growth map[string]decimal.Decimal) error {
	if len(growth) == 0 {
		return nil
	}
	models := make([]StrataGrowthModel, 0, len(growth))
	for account, g := range growth {
		models = append(models, StrataGrowthModel{CreditAccount: account, GrowthPct: g})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(models, batchSize).Error
}
