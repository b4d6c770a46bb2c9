package models

// Roles understood by the permission and ledger layers.
const (
	RoleAdmin    = "admin"
	RoleOps      = "ops"
	RoleOps02    = "ops02"
	RoleBusiness = "business"
)

// User is an authenticated dashboard user. Keywords narrow the rows the
// user may see according to their role.
type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Role        string   `json:"role"`
	Keywords    []string `json:"keywords"`
	Active      bool     `json:"active"`
}

// CanEditSpend reports whether the user may mutate the spend ledger.
func (u User) CanEditSpend() bool {
	return u.Role == RoleAdmin || u.Role == RoleOps
}

// SystemUser is the identity scheduled jobs act as.
func SystemUser() User {
	return User{ID: "system", Username: "system", Role: RoleAdmin, Active: true}
}
