package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/JR-coderli/EFsafari/internal/observability"
)

// Warehouse tables.
const (
	FactTable   = "dwd_marketing_report_daily"
	LedgerTable = "dwd_daily_report"
	HourlyTable = "hourly_report"
	LanderTable = "dim_lander_urls"
)

// ErrUnavailable is returned when the warehouse is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Warehouse wraps the ClickHouse connection shared by the report
// readers, the ETL writers and the spend ledger.
type Warehouse struct {
	DB       *sql.DB
	Database string
	Metrics  observability.MetricsRegistry
}

// PoolConfig sizes the ClickHouse connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// InitClickHouse connects to ClickHouse and ensures the warehouse tables exist.
func InitClickHouse(ctx context.Context, dsn, database string, pool PoolConfig, metrics observability.MetricsRegistry) (*Warehouse, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	w := &Warehouse{DB: db, Database: database, Metrics: metrics}
	if err := w.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	zap.L().Info("Connected to ClickHouse", zap.String("database", database))
	return w, nil
}

// Table returns name qualified with the warehouse database.
func (w *Warehouse) Table(name string) string {
	if w == nil || w.Database == "" {
		return name
	}
	return w.Database + "." + name
}

// EnsureSchema creates the warehouse tables when they are missing.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	if w == nil || w.DB == nil {
		return ErrUnavailable
	}
	for _, ddl := range w.schema() {
		if _, err := w.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("clickhouse create table: %w", err)
		}
	}
	return nil
}

func (w *Warehouse) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + w.Table(FactTable) + ` (
       reportDate   Date,
       dataSource   LowCardinality(String),
       Media        String,
       MediaID      String,
       offer        String,
       offerID      String,
       advertiser   String,
       advertiserID String,
       lander       String,
       landerID     String,
       Campaign     String,
       CampaignID   String,
       Adset        String,
       AdsetID      String,
       Ads          String,
       AdsID        String,
       impressions  UInt64,
       clicks       UInt64,
       conversions  UInt64,
       spend        Float64,
       revenue      Float64,
       m_imp        UInt64,
       m_clicks     UInt64,
       m_conv       UInt64
   ) ENGINE=MergeTree() PARTITION BY toYYYYMM(reportDate) ORDER BY (reportDate, Media, offer, Campaign, Adset)`,
		`CREATE TABLE IF NOT EXISTS ` + w.Table(LedgerTable) + ` (
       reportDate       Date,
       Media            String,
       impressions      UInt64,
       clicks           UInt64,
       conversions      UInt64,
       revenue          Float64,
       m_imp            UInt64,
       m_clicks         UInt64,
       m_conv           UInt64,
       spend_original   Decimal64(4),
       spend_manual     Decimal64(4),
       spend_final      Decimal64(4),
       is_locked        UInt8,
       last_modified_by String,
       updated_at       DateTime
   ) ENGINE=MergeTree() ORDER BY (reportDate, Media)`,
		`CREATE TABLE IF NOT EXISTS ` + w.Table(HourlyTable) + ` (
       reportDate   Date,
       reportHour   UInt8,
       timezone     LowCardinality(String),
       Media        String,
       MediaID      String,
       offer        String,
       offerID      String,
       advertiser   String,
       advertiserID String,
       Campaign     String,
       CampaignID   String,
       Adset        String,
       AdsetID      String,
       impressions  UInt64,
       clicks       UInt64,
       conversions  UInt64,
       spend        Float64,
       revenue      Float64
   ) ENGINE=MergeTree() PARTITION BY reportDate ORDER BY (reportDate, reportHour, Media)`,
		`CREATE TABLE IF NOT EXISTS ` + w.Table(LanderTable) + ` (
       landerID   String,
       landerName String,
       url        String,
       updated_at DateTime
   ) ENGINE=ReplacingMergeTree(updated_at) ORDER BY landerID`,
	}
}

// Close terminates the ClickHouse connection.
func (w *Warehouse) Close() {
	if w != nil && w.DB != nil {
		if err := w.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
