package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/middleware"
	"github.com/JR-coderli/EFsafari/internal/models"
)

var validRoles = map[string]bool{
	models.RoleAdmin:    true,
	models.RoleOps:      true,
	models.RoleOps02:    true,
	models.RoleBusiness: true,
}

type userPayload struct {
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Role        string   `json:"role"`
	Keywords    []string `json:"keywords"`
	Active      *bool    `json:"active"`
}

func (p userPayload) user() (models.User, error) {
	u := models.User{
		Username:    strings.TrimSpace(p.Username),
		DisplayName: p.DisplayName,
		Role:        strings.ToLower(strings.TrimSpace(p.Role)),
		Keywords:    p.Keywords,
		Active:      p.Active == nil || *p.Active,
	}
	if u.Username == "" {
		return u, fmt.Errorf("%w: username is required", errBadRequest)
	}
	if !validRoles[u.Role] {
		return u, fmt.Errorf("%w: unknown role %q", errBadRequest, p.Role)
	}
	return u, nil
}

// requireAdmin wraps h so only admins reach it.
func (s *Server) requireAdmin(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r).Role != models.RoleAdmin {
			s.fail(w, r, endpoint, r.Method, time.Now(), errAdminOnly)
			return
		}
		h(w, r)
	}
}

// afterUserChange reloads the directory so changes apply to the next
// request. A failed reload is picked up by the periodic reload.
func (s *Server) afterUserChange(r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("user directory reload failed", zap.Error(err))
	}
}

// MeHandler returns the authenticated user.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	s.ok(w, "auth_me", "GET", time.Now(), http.StatusOK, currentUser(r))
}

// ListUsersHandler lists every user, including deactivated ones.
func (s *Server) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users := s.Users.Users()
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	s.ok(w, "users_list", "GET", time.Now(), http.StatusOK, map[string]any{"users": users})
}

// CreateUserHandler adds a user.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "users_create"
	const method = "POST"

	var body userPayload
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	u, err := body.user()
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	if _, exists := s.Users.FindByUsername(u.Username); exists {
		s.fail(w, r, endpoint, method, start, fmt.Errorf("%w: username %q taken", errBadRequest, u.Username))
		return
	}
	if err := s.UserStore.InsertUser(r.Context(), &u); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.afterUserChange(r)
	s.ok(w, endpoint, method, start, http.StatusCreated, u)
}

// UpdateUserHandler replaces a user's profile.
func (s *Server) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "users_update"
	const method = "PUT"

	var body userPayload
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	u, err := body.user()
	if err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	u.ID = mux.Vars(r)["id"]
	if err := s.UserStore.UpdateUser(r.Context(), u); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.afterUserChange(r)
	s.ok(w, endpoint, method, start, http.StatusOK, u)
}

// DeleteUserHandler removes a user. Admins cannot delete themselves.
func (s *Server) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "users_delete"
	const method = "DELETE"

	id := mux.Vars(r)["id"]
	if id == currentUser(r).ID {
		s.fail(w, r, endpoint, method, start, fmt.Errorf("%w: cannot delete yourself", errBadRequest))
		return
	}
	if err := s.UserStore.DeleteUser(r.Context(), id); err != nil {
		s.fail(w, r, endpoint, method, start, err)
		return
	}
	s.afterUserChange(r)
	w.WriteHeader(http.StatusNoContent)
	s.record(endpoint, method, start, http.StatusNoContent)
}
