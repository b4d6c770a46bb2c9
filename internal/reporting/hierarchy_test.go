package reporting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JR-coderli/EFsafari/internal/models"
)

func row(values map[string]string, m models.MetricTuple) FlatRow {
	return FlatRow{Values: values, Metrics: m}
}

func TestBuildSingleLevel(t *testing.T) {
	tree := Build([]FlatRow{
		row(map[string]string{"media": "Google"}, models.MetricTuple{Impressions: 100, Clicks: 10, Conversions: 1, Spend: 50, Revenue: 80}),
	}, []string{"media"})

	g, ok := tree.Roots["Google"]
	require.True(t, ok)
	assert.True(t, g.IsLeaf())
	assert.Nil(t, g.Children())
	assert.Equal(t, "media", g.Dimension)
	assert.Equal(t, uint64(100), g.Metrics.Impressions)
	assert.InDelta(t, 0.1, g.Derived.CTR, 1e-9)
	assert.InDelta(t, 0.1, g.Derived.CVR, 1e-9)
	assert.InDelta(t, 0.6, g.Derived.ROI, 1e-9)
	assert.InDelta(t, 50, g.Derived.CPA, 1e-9)
	assert.InDelta(t, 80, g.Derived.RPA, 1e-9)
	assert.InDelta(t, 8, g.Derived.EPC, 1e-9)
	assert.InDelta(t, 0.8, g.Derived.EPV, 1e-9)
}

func TestBuildAccumulatesAlongPath(t *testing.T) {
	dims := []string{"media", "offer"}
	rows := []FlatRow{
		row(map[string]string{"media": "A", "offer": "X"}, models.MetricTuple{Impressions: 10, Clicks: 1, Spend: 2}),
		row(map[string]string{"media": "A", "offer": "Y"}, models.MetricTuple{Impressions: 5, Clicks: 4, Spend: 1}),
		row(map[string]string{"media": "B", "offer": "X"}, models.MetricTuple{Impressions: 7}),
	}
	tree := Build(rows, dims)

	a := tree.Roots["A"]
	require.NotNil(t, a)
	assert.Equal(t, Branch, a.Kind())
	assert.Equal(t, uint64(15), a.Metrics.Impressions)
	assert.Len(t, a.Children(), 2)

	// derived ratios come from sums, not from averaging children
	assert.InDelta(t, 5.0/15.0, a.Derived.CTR, 1e-9)

	x, ok := a.Child("X")
	require.True(t, ok)
	assert.True(t, x.IsLeaf())
	assert.Equal(t, "offer", x.Dimension)

	var total uint64
	for _, n := range tree.Roots {
		for _, leaf := range n.Children() {
			total += leaf.Metrics.Impressions
		}
	}
	assert.Equal(t, uint64(22), total)
	assert.Equal(t, uint64(22), tree.Totals().Impressions)
}

func TestBuildMergesDuplicatePaths(t *testing.T) {
	tree := Build([]FlatRow{
		row(map[string]string{"media": "A"}, models.MetricTuple{Revenue: 1.5}),
		row(map[string]string{"media": "A"}, models.MetricTuple{Revenue: 2.5}),
	}, []string{"media"})

	require.Len(t, tree.Roots, 1)
	assert.Equal(t, 4.0, tree.Roots["A"].Metrics.Revenue)
}

func TestBuildSubstitutesUnknown(t *testing.T) {
	tree := Build([]FlatRow{
		row(map[string]string{"media": "", "offer": "  "}, models.MetricTuple{Clicks: 3}),
	}, []string{"media", "offer"})

	u, ok := tree.Roots[UnknownValue]
	require.True(t, ok)
	_, ok = u.Child(UnknownValue)
	assert.True(t, ok)
}

func TestBuildSkipsMalformedRows(t *testing.T) {
	tree := Build([]FlatRow{
		row(map[string]string{"media": "A"}, models.MetricTuple{Clicks: 3}),
		row(map[string]string{"media": "A", "offer": "X"}, models.MetricTuple{Clicks: 1}),
	}, []string{"media", "offer"})

	assert.Equal(t, 1, tree.Skipped)
	assert.Equal(t, uint64(1), tree.Roots["A"].Metrics.Clicks)
}

func TestBuildSideChannelAttributes(t *testing.T) {
	rows := []FlatRow{
		{Values: map[string]string{"offer": "O1", "lander": "L1"}, OfferID: "", LanderURL: "", Metrics: models.MetricTuple{Clicks: 1}},
		{Values: map[string]string{"offer": "O1", "lander": "L1"}, OfferID: "77", LanderURL: "https://l1.example", Metrics: models.MetricTuple{Clicks: 1}},
		{Values: map[string]string{"offer": "O1", "lander": "L1"}, OfferID: "88", LanderURL: "https://other.example", Metrics: models.MetricTuple{Clicks: 1}},
	}
	tree := Build(rows, []string{"offer", "lander"})

	o := tree.Roots["O1"]
	assert.Equal(t, "77", o.OfferID)
	assert.Empty(t, o.LanderURL)
	l, _ := o.Child("L1")
	assert.Equal(t, "https://l1.example", l.LanderURL)
	assert.Equal(t, uint64(3), l.Metrics.Clicks)
}

func TestBuildNoDimensions(t *testing.T) {
	tree := Build([]FlatRow{row(map[string]string{}, models.MetricTuple{Clicks: 1})}, nil)
	assert.Empty(t, tree.Roots)
}

func TestLevelDrillDown(t *testing.T) {
	tree := Build([]FlatRow{
		row(map[string]string{"platform": "A", "offer": "X"}, models.MetricTuple{Revenue: 1}),
		row(map[string]string{"platform": "A", "offer": "Y"}, models.MetricTuple{Revenue: 9}),
		row(map[string]string{"platform": "B", "offer": "X"}, models.MetricTuple{Revenue: 20}),
	}, []string{"platform", "offer"})

	top := tree.Level(nil)
	require.Len(t, top, 2)
	assert.Equal(t, "B", top[0].Name)
	assert.Equal(t, "B", top[0].ID)
	assert.True(t, top[0].HasChild)
	assert.Equal(t, 1, top[0].Level)

	next := tree.Level([]FilterPathEntry{{Dimension: "platform", Value: "A"}})
	require.Len(t, next, 2)
	assert.Equal(t, "Y", next[0].Name)
	assert.Equal(t, "A|Y", next[0].ID)
	assert.False(t, next[0].HasChild)
	assert.Equal(t, []FilterPathEntry{{Dimension: "platform", Value: "A"}, {Dimension: "offer", Value: "Y"}}, next[0].FilterPath)

	assert.Empty(t, tree.Level([]FilterPathEntry{{Dimension: "platform", Value: "missing"}}))
}

func TestNodeJSONShape(t *testing.T) {
	tree := Build([]FlatRow{
		row(map[string]string{"media": "Google", "offer": "X"}, models.MetricTuple{Impressions: 100, Clicks: 10, Spend: 50, Revenue: 80}),
	}, []string{"media", "offer"})

	raw, err := json.Marshal(HierarchyResponse{Dimensions: tree.Dimensions, Hierarchy: tree.Roots, StartDate: "2026-01-01", EndDate: "2026-01-01"})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	h := body["hierarchy"].(map[string]any)
	g := h["Google"].(map[string]any)
	assert.Equal(t, "media", g["_dimension"])
	leaf := g["_children"].(map[string]any)["X"].(map[string]any)
	assert.Nil(t, leaf["_children"])
	metrics := leaf["_metrics"].(map[string]any)
	assert.InDelta(t, 0.1, metrics["ctr"], 1e-9)

	var back HierarchyResponse
	require.NoError(t, json.Unmarshal(raw, &back))
	bg := back.Hierarchy["Google"]
	require.NotNil(t, bg)
	assert.Equal(t, Branch, bg.Kind())
	bx, ok := bg.Child("X")
	require.True(t, ok)
	assert.True(t, bx.IsLeaf())
	assert.Equal(t, "X", bx.Value)
	assert.Equal(t, uint64(100), bx.Metrics.Impressions)
}
