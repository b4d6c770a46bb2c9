package api

import (
	"net/http"
	"time"
)

// ReloadHandler re-reads the user directory so role and keyword changes
// made directly in Postgres apply without a restart.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "reload"
	const method = "POST"

	if err := s.Reload(r.Context()); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.ok(w, endpoint, method, start, http.StatusOK, map[string]any{
		"status": "reloaded",
		"users":  len(s.Users.Users()),
	})
}
