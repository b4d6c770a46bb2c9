package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPredicateTotality(t *testing.T) {
	for _, role := range []string{"admin", "ops", "ops02", "business"} {
		for _, kws := range [][]string{nil, {"x"}} {
			p := BuildPredicate(role, kws, UnknownRoleDeny)
			want := role == "admin" || len(kws) == 0
			assert.Equal(t, want, p.Unrestricted(), "role=%s keywords=%v", role, kws)
		}
	}
}

func TestBuildPredicateTargets(t *testing.T) {
	assert.Equal(t, TargetAdset, BuildPredicate("ops", []string{"a"}, UnknownRoleDeny).Target)
	assert.Equal(t, TargetMedia, BuildPredicate("ops02", []string{"a"}, UnknownRoleDeny).Target)
	assert.Equal(t, TargetOffer, BuildPredicate("business", []string{"a"}, UnknownRoleDeny).Target)
}

func TestBuildPredicateBlankKeywordsAreIgnored(t *testing.T) {
	assert.True(t, BuildPredicate("ops", []string{"", "  "}, UnknownRoleDeny).Unrestricted())
}

func TestBuildPredicateUnknownRole(t *testing.T) {
	deny := BuildPredicate("intern", []string{"x"}, UnknownRoleDeny)
	assert.True(t, deny.DenyAll)
	assert.False(t, deny.Match("x"))

	allow := BuildPredicate("intern", []string{"x"}, UnknownRoleAllow)
	assert.True(t, allow.Unrestricted())

	assert.True(t, BuildPredicate("intern", nil, UnknownRoleDeny).Unrestricted())
}

func TestPredicateSQL(t *testing.T) {
	p := BuildPredicate("ops", []string{"US", "tier1"}, UnknownRoleDeny)

	frag, args := p.SQL(Main)
	assert.Equal(t, "(positionCaseInsensitiveUTF8(Adset, ?) > 0 OR positionCaseInsensitiveUTF8(Adset, ?) > 0)", frag)
	assert.Equal(t, []any{"US", "tier1"}, args)

	frag, _ = p.SQL(Daily)
	assert.Contains(t, frag, "Media")

	frag, args = BuildPredicate("business", []string{"o"}, UnknownRoleDeny).SQL(Daily)
	assert.Equal(t, "(1 = 0)", frag)
	assert.Empty(t, args)

	frag, args = Predicate{}.SQL(Hourly)
	assert.Empty(t, frag)
	assert.Nil(t, args)
}

func TestPredicateMatchIsCaseInsensitiveSubstring(t *testing.T) {
	p := BuildPredicate("ops02", []string{"Mintegral"}, UnknownRoleDeny)
	assert.True(t, p.Match("mintegral-ios"))
	assert.True(t, p.Match("MINTEGRAL"))
	assert.False(t, p.Match("Google"))
}

func TestColumnCatalog(t *testing.T) {
	assert.Equal(t, "Media", Column(Main, "platform"))
	assert.Equal(t, "Adset", Column(Main, "sub_campaign_name"))
	assert.Equal(t, "reportHour", Column(Hourly, "hour"))
	assert.Equal(t, "Media", Column(Daily, "media"))
	assert.Equal(t, "custom_col", Column(Main, "custom_col"))

	_, err := SafeColumn(Main, "x; DROP TABLE y")
	assert.ErrorIs(t, err, ErrInvalidDimension)
	col, err := SafeColumn(Hourly, "adset")
	assert.NoError(t, err)
	assert.Equal(t, "Adset", col)
}

func TestPredicateMatchRow(t *testing.T) {
	row := map[string]string{"Media": "Mintegral", "Adset": "US-tier1", "offer": "Shop"}

	assert.True(t, BuildPredicate("ops", []string{"tier1"}, UnknownRoleDeny).MatchRow(Main, row))
	assert.False(t, BuildPredicate("ops", []string{"tier1"}, UnknownRoleDeny).MatchRow(Daily, row))
	assert.True(t, BuildPredicate("ops", []string{"minteg"}, UnknownRoleDeny).MatchRow(Daily, row))
	assert.False(t, BuildPredicate("business", []string{"shop"}, UnknownRoleDeny).MatchRow(Daily, row))
	assert.True(t, BuildPredicate("business", []string{"shop"}, UnknownRoleDeny).MatchRow(Main, row))
	assert.True(t, Predicate{}.MatchRow(Daily, nil))
}
