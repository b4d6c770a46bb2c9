package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/JR-coderli/EFsafari/internal/models"
)

var factColumns = []string{
	"reportDate", "dataSource", "Media", "MediaID", "offer", "offerID", "advertiser", "advertiserID",
	"lander", "landerID", "Campaign", "CampaignID", "Adset", "AdsetID", "Ads", "AdsID",
	"impressions", "clicks", "conversions", "spend", "revenue", "m_imp", "m_clicks", "m_conv",
}

var hourlyColumns = []string{
	"reportDate", "reportHour", "timezone", "Media", "MediaID", "offer", "offerID",
	"advertiser", "advertiserID", "Campaign", "CampaignID", "Adset", "AdsetID",
	"impressions", "clicks", "conversions", "spend", "revenue",
}

func insertStatement(table string, cols []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ")"
}

// insertBatch sends rows through one prepared statement inside a
// transaction, which the ClickHouse driver flushes as a single block.
func (w *Warehouse) insertBatch(ctx context.Context, stmt string, n int, args func(i int) []any) error {
	if w == nil || w.DB == nil {
		return ErrUnavailable
	}
	if n == 0 {
		return nil
	}
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	ps, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer func(ps *sql.Stmt) { _ = ps.Close() }(ps)
	for i := 0; i < n; i++ {
		if _, err := ps.ExecContext(ctx, args(i)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// InsertFacts appends rows to the main fact table.
func (w *Warehouse) InsertFacts(ctx context.Context, rows []models.FactRow) error {
	stmt := insertStatement(w.Table(FactTable), factColumns)
	return w.insertBatch(ctx, stmt, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			r.ReportDate, r.DataSource, r.Media, r.MediaID, r.Offer, r.OfferID, r.Advertiser, r.AdvertiserID,
			r.Lander, r.LanderID, r.Campaign, r.CampaignID, r.Adset, r.AdsetID, r.Ads, r.AdsID,
			r.Impressions, r.Clicks, r.Conversions, r.Spend, r.Revenue,
			r.MobileImpressions, r.MobileClicks, r.MobileConversions,
		}
	})
}

// DeleteFacts removes every fact row of date and waits for the mutation.
func (w *Warehouse) DeleteFacts(ctx context.Context, date time.Time) error {
	if w == nil || w.DB == nil {
		return ErrUnavailable
	}
	q := "ALTER TABLE " + w.Table(FactTable) + " DELETE WHERE reportDate = ? SETTINGS mutations_sync = 2"
	if _, err := w.DB.ExecContext(ctx, q, date.Format(models.DateLayout)); err != nil {
		return fmt.Errorf("delete facts %s: %w", date.Format(models.DateLayout), err)
	}
	return nil
}

// InsertHourly appends rows to the hourly table.
func (w *Warehouse) InsertHourly(ctx context.Context, rows []models.HourlyRow) error {
	stmt := insertStatement(w.Table(HourlyTable), hourlyColumns)
	return w.insertBatch(ctx, stmt, len(rows), func(i int) []any {
		r := rows[i]
		return []any{
			r.ReportDate, r.ReportHour, r.Timezone, r.Media, r.MediaID, r.Offer, r.OfferID,
			r.Advertiser, r.AdvertiserID, r.Campaign, r.CampaignID, r.Adset, r.AdsetID,
			r.Impressions, r.Clicks, r.Conversions, r.Spend, r.Revenue,
		}
	})
}

// DeleteHourlyRange removes hourly rows whose UTC bucket start falls in
// [start, end). The comparison is on the full timestamp so a range that
// crosses midnight never touches hours outside it.
func (w *Warehouse) DeleteHourlyRange(ctx context.Context, start, end time.Time) error {
	if w == nil || w.DB == nil {
		return ErrUnavailable
	}
	q := "ALTER TABLE " + w.Table(HourlyTable) + " DELETE WHERE " +
		"toUnixTimestamp(toDateTime(reportDate, 'UTC')) + reportHour * 3600 >= ? AND " +
		"toUnixTimestamp(toDateTime(reportDate, 'UTC')) + reportHour * 3600 < ? " +
		"SETTINGS mutations_sync = 2"
	if _, err := w.DB.ExecContext(ctx, q, start.UTC().Unix(), end.UTC().Unix()); err != nil {
		return fmt.Errorf("delete hourly range: %w", err)
	}
	return nil
}

// LanderURL is a lander's display URL from the lander dimension table.
type LanderURL struct {
	ID   string
	Name string
	URL  string
}

// LanderURLs returns the URL of each lander id present in the table.
func (w *Warehouse) LanderURLs(ctx context.Context) (map[string]string, error) {
	if w == nil || w.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := w.DB.QueryContext(ctx, "SELECT landerID, argMax(url, updated_at) FROM "+w.Table(LanderTable)+" GROUP BY landerID")
	if err != nil {
		return nil, fmt.Errorf("query lander urls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var id, url string
		if err := rows.Scan(&id, &url); err != nil {
			return nil, fmt.Errorf("scan lander url: %w", err)
		}
		out[id] = url
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// UpsertLanderURLs records lander URLs. Newer rows replace older ones on merge.
func (w *Warehouse) UpsertLanderURLs(ctx context.Context, landers []LanderURL) error {
	now := time.Now().UTC()
	stmt := insertStatement(w.Table(LanderTable), []string{"landerID", "landerName", "url", "updated_at"})
	return w.insertBatch(ctx, stmt, len(landers), func(i int) []any {
		l := landers[i]
		return []any{l.ID, l.Name, l.URL, now}
	})
}
