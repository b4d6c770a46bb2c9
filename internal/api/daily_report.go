package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/ratelimit"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

// lockedDatesLookback bounds locked-dates when no range is given.
const lockedDatesLookback = 365

var dailyReportDims = []string{"date", "media"}

type spendUpdate struct {
	Date       string           `json:"date"`
	Media      string           `json:"media"`
	SpendValue *decimal.Decimal `json:"spend_value"`
	Delta      *decimal.Decimal `json:"delta"`
}

func (b spendUpdate) parse() (time.Time, error) {
	if b.Media == "" {
		return time.Time{}, fmt.Errorf("%w: media is required", errBadRequest)
	}
	d, err := models.ParseDate(b.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", errBadRequest, b.Date)
	}
	return d, nil
}

func mediaFilter(r *http.Request) []string {
	return splitList(r.URL.Query().Get("media"))
}

// DailyReportDataHandler lists ledger records for a date range.
func (s *Server) DailyReportDataHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_data"
	const method = "GET"

	from, to, err := dateRange(r, defaultRangeDays)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	recs, err := s.Ledger.List(r.Context(), currentUser(r), from, to, mediaFilter(r))
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"rows": recs, "total": len(recs)})
}

// DailyReportSummaryHandler totals the ledger records of a range.
func (s *Server) DailyReportSummaryHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_summary"
	const method = "GET"

	from, to, err := dateRange(r, defaultRangeDays)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	sum, err := s.Ledger.Summary(r.Context(), currentUser(r), from, to, mediaFilter(r))
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, sum)
}

// DailyReportHierarchyHandler serves the ledger as a date > media tree.
func (s *Server) DailyReportHierarchyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_hierarchy"
	const method = "GET"

	from, to, err := dateRange(r, defaultRangeDays)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	recs, err := s.Ledger.List(r.Context(), currentUser(r), from, to, mediaFilter(r))
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	rows := lo.Map(recs, func(rec models.SpendRecord, _ int) reporting.FlatRow {
		return reporting.FlatRow{
			Values:  map[string]string{"date": rec.Date.Format(models.DateLayout), "media": rec.Media},
			Metrics: rec.Metrics(),
		}
	})
	tree := reporting.Build(rows, dailyReportDims)
	s.ok(w, endpoint, method, start, http.StatusOK, reporting.HierarchyResponse{
		Dimensions: dailyReportDims,
		Hierarchy:  tree.Roots,
		StartDate:  from.Format(models.DateLayout),
		EndDate:    to.Format(models.DateLayout),
	})
}

// MediaListHandler lists the media present in the ledger for a range.
func (s *Server) MediaListHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_media_list"
	const method = "GET"

	from, to, err := dateRange(r, defaultRangeDays)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	media, err := s.Ledger.MediaList(r.Context(), currentUser(r), from, to)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"media": media})
}

// UpdateSpendHandler sets the final spend of one (date, media) record.
func (s *Server) UpdateSpendHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_update_spend"
	const method = "POST"

	var body spendUpdate
	err := decodeBody(r, &body)
	var date time.Time
	if err == nil {
		date, err = body.parse()
	}
	if err == nil && body.SpendValue == nil {
		err = fmt.Errorf("%w: spend_value is required", errBadRequest)
	}
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	rec, err := s.Ledger.SetFinalSpend(r.Context(), currentUser(r), date, body.Media, *body.SpendValue)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, rec)
}

// CorrectSpendHandler adds a delta to the final spend of one record.
func (s *Server) CorrectSpendHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_correct_spend"
	const method = "POST"

	var body spendUpdate
	err := decodeBody(r, &body)
	var date time.Time
	if err == nil {
		date, err = body.parse()
	}
	if err == nil && body.Delta == nil {
		err = fmt.Errorf("%w: delta is required", errBadRequest)
	}
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	rec, err := s.Ledger.ApplyCorrection(r.Context(), currentUser(r), date, body.Media, *body.Delta)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, rec)
}

type syncRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// SyncHandler rebuilds the unlocked ledger rows of a range from the fact
// table. Defaults to yesterday.
func (s *Server) SyncHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_sync"
	const method = "POST"

	u := currentUser(r)
	if !s.Limiter.Allow(ratelimit.Key("ledger_sync", u.ID)) {
		s.fail(w, r, endpoint, method, start, errRateLimited)
		return
	}

	var body syncRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			s.fail(w, r, endpoint, method, start, err)
			return
		}
	}
	if body.StartDate == "" && body.EndDate == "" {
		y := time.Now().UTC().AddDate(0, 0, -1).Format(models.DateLayout)
		body.StartDate, body.EndDate = y, y
	}
	if body.EndDate == "" {
		body.EndDate = body.StartDate
	}
	from, to, err := ledger.ParseRange(body.StartDate, body.EndDate)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	n, err := s.Ledger.Sync(r.Context(), u, from, to)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{
		"status":     "success",
		"start_date": body.StartDate,
		"end_date":   body.EndDate,
		"rows":       n,
	})
}

type lockRequest struct {
	Date string `json:"date"`
	Lock *bool  `json:"lock"`
}

// LockDateHandler locks or unlocks every record of a date.
func (s *Server) LockDateHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_lock_date"
	const method = "POST"

	var body lockRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	date, err := models.ParseDate(body.Date)
	if err != nil {
		s.fail(w, r, endpoint, method, start, fmt.Errorf("%w: date %q", errBadRequest, body.Date))
		return
	}
	lock := body.Lock == nil || *body.Lock
	if err := s.Ledger.Lock(r.Context(), currentUser(r), date, lock); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"date": body.Date, "locked": lock})
}

// LockedDatesHandler lists locked dates, by default over the last year.
func (s *Server) LockedDatesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "daily_report_locked_dates"
	const method = "GET"

	from, to, err := dateRange(r, lockedDatesLookback)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	dates, err := s.Ledger.LockedDates(r.Context(), from, to)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	out := lo.Map(dates, func(d time.Time, _ int) string { return d.Format(models.DateLayout) })
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"dates": out})
}
