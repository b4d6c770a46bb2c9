package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/analytics"
	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/etl"
	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/middleware"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

var (
	errBadRequest  = errors.New("bad request")
	errAdminOnly   = fmt.Errorf("%w: admin only", ledger.ErrForbidden)
	errRateLimited = errors.New("too many requests")
)

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errBadRequest),
		errors.Is(err, ledger.ErrInvalidDate),
		errors.Is(err, ledger.ErrInvalidSpend),
		errors.Is(err, reporting.ErrInvalidDimension),
		errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, etl.ErrJobBusy):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, analytics.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) record(endpoint, method string, start time.Time, status int) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func (s *Server) ok(w http.ResponseWriter, endpoint, method string, start time.Time, status int, v any) {
	writeJSON(w, status, v)
	s.record(endpoint, method, start, status)
}

// fail writes err as an error response. Server-side failures are logged and
// their detail withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, endpoint, method string, start time.Time, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		middleware.LoggerFromRequest(r, s.Logger).Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		msg = http.StatusText(code)
	}
	http.Error(w, msg, code)
	s.record(endpoint, method, start, code)
}

// currentUser returns the authenticated user. Routes are registered behind
// RequireUser, so a missing user is a wiring error.
func currentUser(r *http.Request) models.User {
	u, _ := middleware.UserFromContext(r.Context())
	return u
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// reportRequest reads the common report query parameters. dimsParam names
// the parameter carrying the comma separated dimension list.
func reportRequest(r *http.Request, dimsParam string) (reporting.Request, error) {
	q := r.URL.Query()
	req := reporting.Request{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Timezone:  q.Get("timezone"),
	}
	if dimsParam != "" {
		req.Dimensions = splitList(q.Get(dimsParam))
	}
	if f := q.Get("filters"); f != "" {
		if err := json.Unmarshal([]byte(f), &req.Path); err != nil {
			return req, fmt.Errorf("%w: invalid filters json", errBadRequest)
		}
	}
	return req, nil
}

// dateRange reads start_date and end_date, defaulting to the last days
// days ending today.
func dateRange(r *http.Request, days int) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, end := q.Get("start_date"), q.Get("end_date")
	if start == "" && end == "" {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		return today.AddDate(0, 0, -days), today, nil
	}
	return ledger.ParseRange(start, end)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json", errBadRequest)
	}
	return nil
}
