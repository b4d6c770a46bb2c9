package api

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler responds with a simple status check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// AreaHealthHandler reports the health of one API area. Redis being down
// degrades caching and status reporting but never fails the check.
func (s *Server) AreaHealthHandler(area string) http.HandlerFunc {
	endpoint := area + "_health"
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		redisStatus := "disabled"
		if s.Status != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			redisStatus = "ok"
			if err := s.Status.Client.Ping(ctx).Err(); err != nil {
				redisStatus = "unreachable"
			}
			cancel()
		}
		s.ok(w, endpoint, "GET", start, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": area,
			"redis":   redisStatus,
		})
	}
}
