package reporting

import (
	"strings"

	"github.com/JR-coderli/EFsafari/internal/models"
)

// Target is the logical column a restricted role is matched against.
type Target int

const (
	TargetAdset Target = iota + 1
	TargetMedia
	TargetOffer
)

// Policies for users whose role is not recognised.
const (
	UnknownRoleDeny  = "deny"
	UnknownRoleAllow = "allow"
)

var permissionColumns = map[Family]map[Target]string{
	Main:   {TargetAdset: "Adset", TargetMedia: "Media", TargetOffer: "offer"},
	Hourly: {TargetAdset: "Adset", TargetMedia: "Media", TargetOffer: "offer"},
	// The ledger table is keyed by media only.
	Daily: {TargetAdset: "Media", TargetMedia: "Media"},
}

// Predicate restricts the rows a user may read. The zero value is
// unrestricted.
type Predicate struct {
	Target   Target
	Keywords []string
	DenyAll  bool
}

// Unrestricted reports whether the predicate admits every row.
func (p Predicate) Unrestricted() bool {
	return !p.DenyAll && p.Target == 0
}

// BuildPredicate derives the row restriction for a role and keyword list.
// Admins and users without keywords are unrestricted. unknownRole decides
// the outcome for roles outside the known set.
func BuildPredicate(role string, keywords []string, unknownRole string) Predicate {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	if role == models.RoleAdmin || len(kws) == 0 {
		return Predicate{}
	}
	switch role {
	case models.RoleOps:
		return Predicate{Target: TargetAdset, Keywords: kws}
	case models.RoleOps02:
		return Predicate{Target: TargetMedia, Keywords: kws}
	case models.RoleBusiness:
		return Predicate{Target: TargetOffer, Keywords: kws}
	}
	if unknownRole == UnknownRoleAllow {
		return Predicate{}
	}
	return Predicate{DenyAll: true}
}

// PredicateFor is BuildPredicate applied to a user.
func PredicateFor(u models.User, unknownRole string) Predicate {
	return BuildPredicate(u.Role, u.Keywords, unknownRole)
}

// SQL renders the predicate as a parenthesised WHERE fragment for family f
// with positional arguments. An unrestricted predicate renders as "".
func (p Predicate) SQL(f Family) (string, []any) {
	if p.Unrestricted() {
		return "", nil
	}
	col, ok := permissionColumns[f][p.Target]
	if p.DenyAll || !ok {
		return "(1 = 0)", nil
	}
	parts := make([]string, len(p.Keywords))
	args := make([]any, len(p.Keywords))
	for i, k := range p.Keywords {
		parts[i] = "positionCaseInsensitiveUTF8(" + col + ", ?) > 0"
		args[i] = k
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// Match evaluates the predicate against the value of its target column.
func (p Predicate) Match(value string) bool {
	if p.Unrestricted() {
		return true
	}
	if p.DenyAll {
		return false
	}
	v := strings.ToLower(value)
	for _, k := range p.Keywords {
		if strings.Contains(v, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// MatchRow evaluates the predicate against a row of family f given as
// column values. Targets without a column in f admit nothing.
func (p Predicate) MatchRow(f Family, columns map[string]string) bool {
	if p.Unrestricted() {
		return true
	}
	col, ok := permissionColumns[f][p.Target]
	if p.DenyAll || !ok {
		return false
	}
	return p.Match(columns[col])
}
