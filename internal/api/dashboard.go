package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

// defaultRangeDays is the lookback used when a request names no dates.
const defaultRangeDays = 7

func withDefaultDates(req reporting.Request) reporting.Request {
	if req.StartDate == "" && req.EndDate == "" {
		today := time.Now().UTC()
		req.StartDate = today.AddDate(0, 0, -defaultRangeDays).Format(models.DateLayout)
		req.EndDate = today.Format(models.DateLayout)
	}
	return req
}

// DashboardHierarchyHandler serves the full metric tree of the main report.
func (s *Server) DashboardHierarchyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "dashboard_hierarchy"
	const method = "GET"

	req, err := reportRequest(r, "dimensions")
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	resp, err := s.Reports.Hierarchy(r.Context(), currentUser(r), req)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, resp)
}

// DashboardDataHandler serves one drill-down level of the main report.
func (s *Server) DashboardDataHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "dashboard_data"
	const method = "GET"

	req, err := reportRequest(r, "group_by")
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	rows, err := s.Reports.Data(r.Context(), currentUser(r), req)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"rows": rows, "total": len(rows)})
}

// DashboardDailyHandler serves the per-date breakdown of one drill-down row.
// The row is selected by the filters parameter, which is required.
func (s *Server) DashboardDailyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "dashboard_daily"
	const method = "GET"

	req, err := reportRequest(r, "")
	if err == nil && len(req.Path) == 0 {
		err = fmt.Errorf("%w: filters are required", errBadRequest)
	}
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	points, err := s.Reports.Daily(r.Context(), currentUser(r), req)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"rows": points})
}

// DashboardAggregateHandler serves range totals.
func (s *Server) DashboardAggregateHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "dashboard_aggregate"
	const method = "GET"

	req, err := reportRequest(r, "")
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	totals, err := s.Reports.Aggregate(r.Context(), currentUser(r), req)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, totals)
}

// PlatformsHandler lists the media visible to the caller.
func (s *Server) PlatformsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "dashboard_platforms"
	const method = "GET"

	req, err := reportRequest(r, "")
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	platforms, err := s.Reports.Platforms(r.Context(), currentUser(r), withDefaultDates(req))
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"platforms": platforms})
}

// DimensionsHandler lists the selectable dimensions of the main report.
func (s *Server) DimensionsHandler(w http.ResponseWriter, r *http.Request) {
	s.ok(w, "dashboard_dimensions", "GET", time.Now(), http.StatusOK, reporting.Dimensions())
}

// MetricsCatalogHandler lists the metric columns and their formats.
func (s *Server) MetricsCatalogHandler(w http.ResponseWriter, r *http.Request) {
	s.ok(w, "dashboard_metrics", "GET", time.Now(), http.StatusOK, reporting.Metrics())
}

// ETLStatusHandler reports the last daily ETL run.
func (s *Server) ETLStatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "dashboard_etl_status"
	const method = "GET"

	if s.Status == nil {
		s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"available": false})
		return
	}
	st, ok, err := s.Status.GetETLStatus(r.Context(), db.ETLStatusKey)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"available": ok, "status": st})
}
