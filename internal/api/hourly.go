package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/analytics"
	"github.com/JR-coderli/EFsafari/internal/etl"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/ratelimit"
	"github.com/JR-coderli/EFsafari/internal/reporting"
	"github.com/JR-coderli/EFsafari/internal/timezone"
)

// HourlyDataHandler serves one drill-down level of the hourly report.
func (s *Server) HourlyDataHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "hourly_data"
	const method = "GET"

	req, err := reportRequest(r, "group_by")
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	rows, err := s.Reports.HourlyData(r.Context(), currentUser(r), req)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"rows": rows, "total": len(rows)})
}

// HourlyHierarchyHandler serves the hourly metric tree in the requested
// reporting timezone.
func (s *Server) HourlyHierarchyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "hourly_hierarchy"
	const method = "GET"

	req, err := reportRequest(r, "dimensions")
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	resp, err := s.Reports.HourlyHierarchy(r.Context(), currentUser(r), req)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, resp)
}

// HourlyDimensionsHandler lists the dimensions of the hourly report.
func (s *Server) HourlyDimensionsHandler(w http.ResponseWriter, r *http.Request) {
	s.ok(w, "hourly_dimensions", "GET", time.Now(), http.StatusOK, reporting.HourlyDimensions())
}

// TimezonesHandler lists the supported reporting timezones.
func (s *Server) TimezonesHandler(w http.ResponseWriter, r *http.Request) {
	s.ok(w, "hourly_timezones", "GET", time.Now(), http.StatusOK, map[string]any{"timezones": timezone.Known})
}

// HourlyStatusHandler reports the last hourly ETL run for a timezone.
func (s *Server) HourlyStatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "hourly_status"
	const method = "GET"

	tz := r.URL.Query().Get("timezone")
	if tz == "" {
		tz = "UTC"
	}
	if s.Status == nil {
		s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"available": false, "timezone": tz})
		return
	}
	st, ok, err := s.Status.HourlyStatus(r.Context(), tz)
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{"available": ok, "timezone": tz, "status": st})
}

// HourlyRefreshHandler triggers an hourly ETL run in the background. Only
// admins may trigger it. The optional hours parameter limits the window to
// the last hours hours.
func (s *Server) HourlyRefreshHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "hourly_refresh"
	const method = "POST"

	u := currentUser(r)
	if u.Role != models.RoleAdmin {
		s.fail(w, r, endpoint, method, start, errAdminOnly)
		return
	}
	hours := 0
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, endpoint, method, start, fmt.Errorf("%w: hours %q", errBadRequest, v))
			return
		}
		hours = n
	}
	if s.Hourly == nil {
		s.fail(w, r, endpoint, method, start, fmt.Errorf("hourly job not configured: %w", analytics.ErrUnavailable))
		return
	}
	if !s.Limiter.Allow(ratelimit.Key("hourly_refresh", u.ID)) {
		s.fail(w, r, endpoint, method, start, errRateLimited)
		return
	}

	window := s.Hourly.DefaultWindow(hours)
	logger := s.Logger.With(zap.String("triggered_by", u.Username))
	go s.runRefresh(context.WithoutCancel(r.Context()), window, logger)

	s.ok(w, endpoint, method, start, http.StatusAccepted, map[string]any{
		"status": "triggered",
		"start":  window.Start,
		"end":    window.End,
	})
}

func (s *Server) runRefresh(ctx context.Context, window timezone.Window, logger *zap.Logger) {
	timeout := s.refreshTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.Hourly.Refresh(ctx, window)
	switch {
	case err == nil:
		logger.Info("manual hourly refresh finished", zap.Int("rows", res.Rows), zap.Duration("duration", res.Duration))
	case errors.Is(err, etl.ErrJobBusy):
		logger.Info("manual hourly refresh skipped, job already running")
	default:
		logger.Error("manual hourly refresh failed", zap.Error(err))
	}
}
