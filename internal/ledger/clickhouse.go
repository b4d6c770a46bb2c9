package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JR-coderli/EFsafari/internal/analytics"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

const recordColumns = `reportDate, Media, impressions, clicks, conversions, revenue, m_imp, m_clicks, m_conv,
       spend_original, spend_manual, spend_final, is_locked, last_modified_by, updated_at`

var _ Store = (*ClickHouseStore)(nil)

// ClickHouseStore keeps the ledger in the dwd_daily_report table.
// Mutations wait for completion so reads observe them.
type ClickHouseStore struct {
	DB        *sql.DB
	Table     string
	FactTable string
}

// NewClickHouseStore returns a store over the warehouse's ledger table.
func NewClickHouseStore(w *analytics.Warehouse) *ClickHouseStore {
	return &ClickHouseStore{
		DB:        w.DB,
		Table:     w.Table(analytics.LedgerTable),
		FactTable: w.Table(analytics.FactTable),
	}
}

func day(t time.Time) string { return t.Format(models.DateLayout) }

func (s *ClickHouseStore) DeleteUnlocked(ctx context.Context, start, end time.Time) error {
	q := "ALTER TABLE " + s.Table + " DELETE WHERE reportDate BETWEEN ? AND ? AND is_locked = 0" +
		" AND reportDate NOT IN (SELECT DISTINCT reportDate FROM " + s.Table +
		" WHERE reportDate BETWEEN ? AND ? AND is_locked = 1) SETTINGS mutations_sync = 2"
	_, err := s.DB.ExecContext(ctx, q, day(start), day(end), day(start), day(end))
	return err
}

func (s *ClickHouseStore) InsertFromFacts(ctx context.Context, start, end time.Time, actor string) error {
	q := `INSERT INTO ` + s.Table + ` (` + recordColumns + `)
SELECT reportDate, Media,
       sum(impressions), sum(clicks), sum(conversions), sum(revenue),
       sum(m_imp), sum(m_clicks), sum(m_conv),
       toDecimal64(sum(spend), 4), toDecimal64(0, 4), toDecimal64(sum(spend), 4),
       0, ?, now()
FROM ` + s.FactTable + `
WHERE reportDate BETWEEN ? AND ?
  AND reportDate NOT IN (
      SELECT DISTINCT reportDate FROM ` + s.Table + `
      WHERE reportDate BETWEEN ? AND ? AND is_locked = 1)
GROUP BY reportDate, Media`
	_, err := s.DB.ExecContext(ctx, q, actor, day(start), day(end), day(start), day(end))
	return err
}

func (s *ClickHouseStore) Count(ctx context.Context, start, end time.Time) (int, error) {
	var n uint64
	err := s.DB.QueryRowContext(ctx, "SELECT count() FROM "+s.Table+" WHERE reportDate BETWEEN ? AND ?", day(start), day(end)).Scan(&n)
	return int(n), err
}

func scanRecord(rows interface{ Scan(...any) error }) (models.SpendRecord, error) {
	var (
		r      models.SpendRecord
		locked uint8
	)
	err := rows.Scan(&r.Date, &r.Media, &r.Impressions, &r.Clicks, &r.Conversions, &r.Revenue,
		&r.MobileImpressions, &r.MobileClicks, &r.MobileConversions,
		&r.SpendOriginal, &r.SpendManual, &r.SpendFinal, &locked, &r.LastModifiedBy, &r.UpdatedAt)
	r.Locked = locked == 1
	return r, err
}

func (s *ClickHouseStore) Find(ctx context.Context, date time.Time, media string) (models.SpendRecord, bool, error) {
	q := "SELECT " + recordColumns + " FROM " + s.Table + " WHERE reportDate = ? AND Media = ? LIMIT 1"
	rec, err := scanRecord(s.DB.QueryRowContext(ctx, q, day(date), media))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SpendRecord{}, false, nil
	}
	if err != nil {
		return models.SpendRecord{}, false, err
	}
	return rec, true, nil
}

func (s *ClickHouseStore) Insert(ctx context.Context, r models.SpendRecord) error {
	var locked uint8
	if r.Locked {
		locked = 1
	}
	q := "INSERT INTO " + s.Table + " (" + recordColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := s.DB.ExecContext(ctx, q, r.Date, r.Media, r.Impressions, r.Clicks, r.Conversions, r.Revenue,
		r.MobileImpressions, r.MobileClicks, r.MobileConversions,
		r.SpendOriginal, r.SpendManual, r.SpendFinal, locked, r.LastModifiedBy, r.UpdatedAt)
	return err
}

func (s *ClickHouseStore) UpdateSpend(ctx context.Context, date time.Time, media string, manual, final decimal.Decimal, actor string) error {
	q := "ALTER TABLE " + s.Table + " UPDATE spend_manual = toDecimal64(?, 4), spend_final = toDecimal64(?, 4), " +
		"last_modified_by = ?, updated_at = now() WHERE reportDate = ? AND Media = ? SETTINGS mutations_sync = 2"
	_, err := s.DB.ExecContext(ctx, q, manual.StringFixed(spendPlaces), final.StringFixed(spendPlaces), actor, day(date), media)
	return err
}

func (s *ClickHouseStore) SetLocked(ctx context.Context, date time.Time, locked bool, actor string) error {
	var flag uint8
	if locked {
		flag = 1
	}
	q := "ALTER TABLE " + s.Table + " UPDATE is_locked = ?, last_modified_by = ?, updated_at = now() " +
		"WHERE reportDate = ? SETTINGS mutations_sync = 2"
	_, err := s.DB.ExecContext(ctx, q, flag, actor, day(date))
	return err
}

func (s *ClickHouseStore) where(q ListQuery) (string, []any) {
	conds := []string{"reportDate BETWEEN ? AND ?"}
	args := []any{day(q.Start), day(q.End)}
	if len(q.Media) > 0 {
		conds = append(conds, "Media IN (?"+strings.Repeat(", ?", len(q.Media)-1)+")")
		for _, m := range q.Media {
			args = append(args, m)
		}
	}
	if frag, fargs := q.Predicate.SQL(reporting.Daily); frag != "" {
		conds = append(conds, frag)
		args = append(args, fargs...)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *ClickHouseStore) List(ctx context.Context, q ListQuery) ([]models.SpendRecord, error) {
	where, args := s.where(q)
	rows, err := s.DB.QueryContext(ctx, "SELECT "+recordColumns+" FROM "+s.Table+where+" ORDER BY reportDate DESC, spend_final DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.SpendRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (s *ClickHouseStore) MediaList(ctx context.Context, q ListQuery) ([]string, error) {
	where, args := s.where(q)
	rows, err := s.DB.QueryContext(ctx, "SELECT DISTINCT Media FROM "+s.Table+where+" ORDER BY Media", args...)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) LockedDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	q := "SELECT DISTINCT reportDate FROM " + s.Table + " WHERE is_locked = 1 AND reportDate BETWEEN ? AND ? ORDER BY reportDate"
	rows, err := s.DB.QueryContext(ctx, q, day(start), day(end))
	if err != nil {
		return nil, fmt.Errorf("query locked dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan locked date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
