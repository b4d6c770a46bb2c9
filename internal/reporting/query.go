package reporting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JR-coderli/EFsafari/internal/analytics"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/timezone"
)

// ErrInvalidRequest is returned for malformed query parameters.
var ErrInvalidRequest = errors.New("invalid request")

// QuerySettings caps the resources of every warehouse read.
type QuerySettings struct {
	MaxMemoryBytes int64
	MaxExecution   time.Duration
}

func (s QuerySettings) clause() string {
	var parts []string
	if s.MaxMemoryBytes > 0 {
		parts = append(parts, fmt.Sprintf("max_memory_usage = %d", s.MaxMemoryBytes))
	}
	if secs := int(s.MaxExecution / time.Second); secs > 0 {
		parts = append(parts, fmt.Sprintf("max_execution_time = %d", secs))
	}
	if len(parts) == 0 {
		return ""
	}
	return " SETTINGS " + strings.Join(parts, ", ")
}

// Query selects grouped rows of the main fact table. Start and End are
// inclusive report dates.
type Query struct {
	Dimensions []string
	Start      time.Time
	End        time.Time
	Filters    []FilterPathEntry
	Predicate  Predicate
}

// HourlyQuery selects grouped hourly rows whose UTC bucket lies in Window,
// labelled in the timezone at Offset.
type HourlyQuery struct {
	Timezone   string
	Dimensions []string
	Window     timezone.Window
	Offset     int
	Filters    []FilterPathEntry
	Predicate  Predicate
}

// Repository runs the dashboard's GROUP BY queries against ClickHouse.
type Repository struct {
	DB          *sql.DB
	FactTable   string
	HourlyTable string
	Settings    QuerySettings
	Metrics     observability.MetricsRegistry
}

// NewRepository returns a Repository over the warehouse tables.
func NewRepository(w *analytics.Warehouse, settings QuerySettings) *Repository {
	metrics := w.Metrics
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Repository{
		DB:          w.DB,
		FactTable:   w.Table(analytics.FactTable),
		HourlyTable: w.Table(analytics.HourlyTable),
		Settings:    settings,
		Metrics:     metrics,
	}
}

var mainMetricSQL = []string{
	"toUInt64(sum(impressions)) AS s_impressions",
	"toUInt64(sum(clicks)) AS s_clicks",
	"toUInt64(sum(conversions)) AS s_conversions",
	"toFloat64(sum(spend)) AS s_spend",
	"toFloat64(sum(revenue)) AS s_revenue",
	"toUInt64(sum(m_imp)) AS s_m_imp",
	"toUInt64(sum(m_clicks)) AS s_m_clicks",
	"toUInt64(sum(m_conv)) AS s_m_conv",
}

var hourlyMetricSQL = []string{
	"toUInt64(sum(impressions)) AS s_impressions",
	"toUInt64(sum(clicks)) AS s_clicks",
	"toUInt64(sum(conversions)) AS s_conversions",
	"toFloat64(sum(spend)) AS s_spend",
	"toFloat64(sum(revenue)) AS s_revenue",
}

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) predicate(p Predicate, f Family) {
	if frag, args := p.SQL(f); frag != "" {
		w.add(frag, args...)
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// filterValue maps the placeholder shown for blank values back to blank.
func filterValue(v string) string {
	if v == UnknownValue {
		return ""
	}
	return v
}

func (r *Repository) timed(name string, start time.Time) {
	r.Metrics.RecordQueryLatency(name, time.Since(start))
}

// Rows returns one FlatRow per distinct combination of q.Dimensions.
// Rows grouped by lander or offer carry that entity's id.
// An empty dimension list yields a single totals row.
func (r *Repository) Rows(ctx context.Context, q Query) ([]FlatRow, error) {
	if r == nil || r.DB == nil {
		return nil, analytics.ErrUnavailable
	}
	defer r.timed("main_rows", time.Now())

	var selects, groups []string
	for i, dim := range q.Dimensions {
		col, err := SafeColumn(Main, dim)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf("toString(%s) AS d%d", col, i))
		groups = append(groups, fmt.Sprintf("d%d", i))
	}
	lander, offer := contains(q.Dimensions, "lander"), contains(q.Dimensions, "offer")
	if lander {
		selects = append(selects, "any(landerID) AS lander_id")
	}
	if offer {
		selects = append(selects, "any(offerID) AS offer_id")
	}
	selects = append(selects, mainMetricSQL...)

	w := &where{}
	w.add("reportDate BETWEEN ? AND ?", q.Start.Format(models.DateLayout), q.End.Format(models.DateLayout))
	for _, f := range q.Filters {
		col, err := SafeColumn(Main, f.Dimension)
		if err != nil {
			return nil, err
		}
		w.add("toString("+col+") = ?", filterValue(f.Value))
	}
	w.predicate(q.Predicate, Main)

	stmt := "SELECT " + strings.Join(selects, ", ") + " FROM " + r.FactTable + w.String()
	if len(groups) > 0 {
		stmt += " GROUP BY " + strings.Join(groups, ", ")
	}
	stmt += r.Settings.clause()

	rows, err := r.DB.QueryContext(ctx, stmt, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query report rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FlatRow
	for rows.Next() {
		values := make([]string, len(q.Dimensions))
		dest := make([]any, 0, len(values)+10)
		for i := range values {
			dest = append(dest, &values[i])
		}
		var fr FlatRow
		if lander {
			dest = append(dest, &fr.LanderID)
		}
		if offer {
			dest = append(dest, &fr.OfferID)
		}
		m := &fr.Metrics
		dest = append(dest, &m.Impressions, &m.Clicks, &m.Conversions, &m.Spend, &m.Revenue,
			&m.MobileImpressions, &m.MobileClicks, &m.MobileConversions)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		fr.Values = make(map[string]string, len(values))
		for i, dim := range q.Dimensions {
			fr.Values[dim] = values[i]
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// HourlyRows returns rows grouped by UTC (date, hour) and the non-time
// dimensions, relabelled into the query's timezone. The date and hour
// dimensions and filters are resolved after relabelling, so a local day
// spanning two UTC dates is reported as one day.
func (r *Repository) HourlyRows(ctx context.Context, q HourlyQuery) ([]FlatRow, error) {
	if r == nil || r.DB == nil {
		return nil, analytics.ErrUnavailable
	}
	defer r.timed("hourly_rows", time.Now())

	var dims []string
	var localFilters []FilterPathEntry
	selects := []string{"reportDate", "reportHour"}
	groups := []string{"reportDate", "reportHour"}
	for _, dim := range q.Dimensions {
		if isTimeDimension(dim) {
			continue
		}
		col, err := SafeColumn(Hourly, dim)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf("toString(%s) AS d%d", col, len(dims)))
		groups = append(groups, fmt.Sprintf("d%d", len(dims)))
		dims = append(dims, dim)
	}
	selects = append(selects, hourlyMetricSQL...)

	first, last := q.Window.Dates()
	w := &where{}
	w.add("reportDate BETWEEN ? AND ?", first.Format(models.DateLayout), last.Format(models.DateLayout))
	w.add("toUnixTimestamp(toDateTime(reportDate, 'UTC')) + reportHour * 3600 >= ?", q.Window.Start.Unix())
	w.add("toUnixTimestamp(toDateTime(reportDate, 'UTC')) + reportHour * 3600 < ?", q.Window.End.Unix())
	for _, f := range q.Filters {
		if isTimeDimension(f.Dimension) {
			localFilters = append(localFilters, f)
			continue
		}
		col, err := SafeColumn(Hourly, f.Dimension)
		if err != nil {
			return nil, err
		}
		w.add("toString("+col+") = ?", filterValue(f.Value))
	}
	w.predicate(q.Predicate, Hourly)

	stmt := "SELECT " + strings.Join(selects, ", ") + " FROM " + r.HourlyTable + w.String() +
		" GROUP BY " + strings.Join(groups, ", ") + r.Settings.clause()

	rows, err := r.DB.QueryContext(ctx, stmt, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query hourly rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FlatRow
	for rows.Next() {
		var date time.Time
		var hour uint8
		var fr FlatRow
		values := make([]string, len(dims))
		dest := []any{&date, &hour}
		for i := range values {
			dest = append(dest, &values[i])
		}
		m := &fr.Metrics
		dest = append(dest, &m.Impressions, &m.Clicks, &m.Conversions, &m.Spend, &m.Revenue)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan hourly row: %w", err)
		}

		localDate, localHour := timezone.ToLocal(date, int(hour), q.Offset)
		fr.Values = map[string]string{
			"date": localDate.Format(models.DateLayout),
			"hour": HourLabel(localHour),
		}
		for i, dim := range dims {
			fr.Values[dim] = values[i]
		}
		if !matchesAll(fr.Values, localFilters) {
			continue
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Platforms returns the distinct media of [start, end] admitted by p.
func (r *Repository) Platforms(ctx context.Context, start, end time.Time, p Predicate) ([]string, error) {
	if r == nil || r.DB == nil {
		return nil, analytics.ErrUnavailable
	}
	defer r.timed("platforms", time.Now())

	w := &where{}
	w.add("reportDate BETWEEN ? AND ?", start.Format(models.DateLayout), end.Format(models.DateLayout))
	w.add("Media != ''")
	w.predicate(p, Main)
	rows, err := r.DB.QueryContext(ctx, "SELECT DISTINCT Media FROM "+r.FactTable+w.String()+" ORDER BY Media"+r.Settings.clause(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("query platforms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// HourLabel formats an hour of day as shown in the hourly report.
func HourLabel(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

func isTimeDimension(dim string) bool {
	return dim == "date" || dim == "hour"
}

func matchesAll(values map[string]string, filters []FilterPathEntry) bool {
	for _, f := range filters {
		if values[f.Dimension] != f.Value {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
