package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/token"
)

type users map[string]models.User

func (u users) FindByID(id string) (models.User, bool) {
	user, ok := u[id]
	return user, ok
}

func TestRequireUser(t *testing.T) {
	secret := []byte("s3cret")
	dir := users{"u1": {ID: "u1", Username: "alice", Role: models.RoleOps, Active: true}}

	var seen models.User
	h := RequireUser(dir, secret, time.Hour, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	good, err := token.Generate("u1", "alice", models.RoleOps, secret)
	require.NoError(t, err)
	stranger, err := token.Generate("u9", "mallory", models.RoleAdmin, secret)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + good, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"tampered", "Bearer " + good + "x", http.StatusUnauthorized},
		{"unknown user", "Bearer " + stranger, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard/platforms", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
	assert.Equal(t, "alice", seen.Username)
}

func TestLoggerFromContextFallback(t *testing.T) {
	fallback := zap.NewNop()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Same(t, fallback, LoggerFromRequest(req, fallback))
}
