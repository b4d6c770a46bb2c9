package reporting

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/JR-coderli/EFsafari/internal/models"
)

// UnknownValue replaces empty dimension values in a hierarchy.
const UnknownValue = "Unknown"

// NodeKind distinguishes interior nodes from the deepest level.
type NodeKind uint8

const (
	Leaf NodeKind = iota + 1
	Branch
)

// Node is one value of one dimension in a hierarchy. Only Branch nodes have
// children; Leaf nodes sit at the last requested dimension.
type Node struct {
	kind      NodeKind
	Dimension string
	Value     string
	Metrics   models.MetricTuple
	Derived   models.DerivedMetrics
	LanderURL string
	OfferID   string
	children  map[string]*Node
}

func newNode(kind NodeKind, dim, value string) *Node {
	n := &Node{kind: kind, Dimension: dim, Value: value}
	if kind == Branch {
		n.children = make(map[string]*Node)
	}
	return n
}

// Kind returns whether n is a Branch or a Leaf.
func (n *Node) Kind() NodeKind { return n.kind }

// IsLeaf reports whether n is at the deepest dimension.
func (n *Node) IsLeaf() bool { return n.kind == Leaf }

// Children returns the child nodes keyed by value, or nil for a leaf.
func (n *Node) Children() map[string]*Node { return n.children }

// Child returns the child with the given value.
func (n *Node) Child(value string) (*Node, bool) {
	c, ok := n.children[value]
	return c, ok
}

func (n *Node) MarshalJSON() ([]byte, error) {
	out := struct {
		Dimension string             `json:"_dimension"`
		Metrics   models.MetricsView `json:"_metrics"`
		Children  map[string]*Node   `json:"_children"`
		LanderURL string             `json:"landerUrl,omitempty"`
		OfferID   string             `json:"offerID,omitempty"`
	}{
		Dimension: n.Dimension,
		Metrics:   models.MetricsView{MetricTuple: n.Metrics, DerivedMetrics: n.Derived},
		Children:  n.children,
		LanderURL: n.LanderURL,
		OfferID:   n.OfferID,
	}
	return json.Marshal(out)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var in struct {
		Dimension string             `json:"_dimension"`
		Metrics   models.MetricsView `json:"_metrics"`
		Children  map[string]*Node   `json:"_children"`
		LanderURL string             `json:"landerUrl"`
		OfferID   string             `json:"offerID"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{
		kind:      Leaf,
		Dimension: in.Dimension,
		Metrics:   in.Metrics.MetricTuple,
		Derived:   in.Metrics.DerivedMetrics,
		LanderURL: in.LanderURL,
		OfferID:   in.OfferID,
	}
	if in.Children != nil {
		n.kind = Branch
		n.children = in.Children
		for v, c := range n.children {
			c.Value = v
		}
	}
	return nil
}

// FlatRow is one pre-aggregated warehouse row: a value per grouped
// dimension plus summed metrics. A dimension absent from Values marks the
// row as malformed for that grouping.
type FlatRow struct {
	Values    map[string]string
	Metrics   models.MetricTuple
	LanderID  string
	LanderURL string
	OfferID   string
}

// Tree is a built hierarchy.
type Tree struct {
	Dimensions []string
	Roots      map[string]*Node
	// Skipped counts rows dropped for missing a requested dimension.
	Skipped int
}

// Build folds rows into a hierarchy over dims. Every node on a row's path
// accumulates the row's metrics; derived ratios are computed afterwards from
// the final sums.
func Build(rows []FlatRow, dims []string) *Tree {
	t := &Tree{Dimensions: dims, Roots: make(map[string]*Node)}
	if len(dims) == 0 {
		return t
	}

	for _, row := range rows {
		values, ok := pathValues(row, dims)
		if !ok {
			t.Skipped++
			continue
		}
		level := t.Roots
		for i, dim := range dims {
			kind := Branch
			if i == len(dims)-1 {
				kind = Leaf
			}
			n, exists := level[values[i]]
			if !exists {
				n = newNode(kind, dim, values[i])
				level[values[i]] = n
			}
			n.Metrics = n.Metrics.Add(row.Metrics)
			switch dim {
			case "lander":
				if n.LanderURL == "" {
					n.LanderURL = row.LanderURL
				}
			case "offer":
				if n.OfferID == "" {
					n.OfferID = row.OfferID
				}
			}
			level = n.children
		}
	}

	derive(t.Roots)
	return t
}

func pathValues(row FlatRow, dims []string) ([]string, bool) {
	values := make([]string, len(dims))
	for i, dim := range dims {
		v, ok := row.Values[dim]
		if !ok {
			return nil, false
		}
		if strings.TrimSpace(v) == "" {
			v = UnknownValue
		}
		values[i] = v
	}
	return values, true
}

func derive(level map[string]*Node) {
	for _, n := range level {
		n.Derived = models.Derive(n.Metrics)
		derive(n.children)
	}
}

// Totals returns the sum of the root nodes' metrics.
func (t *Tree) Totals() models.MetricTuple {
	var sum models.MetricTuple
	for _, n := range t.Roots {
		sum = sum.Add(n.Metrics)
	}
	return sum
}

// FilterPathEntry is one step of a drill-down path.
type FilterPathEntry struct {
	Dimension string `json:"dimension"`
	Value     string `json:"value"`
}

// DrillRow is one row of a single drill-down level.
type DrillRow struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Level         int               `json:"level"`
	DimensionType string            `json:"dimensionType"`
	FilterPath    []FilterPathEntry `json:"filterPath"`
	HasChild      bool              `json:"hasChild"`
	LanderURL     string            `json:"landerUrl,omitempty"`
	OfferID       string            `json:"offerID,omitempty"`
	models.MetricsView
}

// Level returns the rows directly under path, sorted by revenue descending.
// A path that does not exist in the tree yields no rows.
func (t *Tree) Level(path []FilterPathEntry) []DrillRow {
	if len(path) >= len(t.Dimensions) {
		return nil
	}
	level := t.Roots
	for _, step := range path {
		n, ok := level[step.Value]
		if !ok {
			return nil
		}
		level = n.children
	}

	prefix := make([]string, 0, len(path)+1)
	for _, step := range path {
		prefix = append(prefix, step.Value)
	}
	depth := len(path)
	out := make([]DrillRow, 0, len(level))
	for value, n := range level {
		fp := make([]FilterPathEntry, len(path), len(path)+1)
		copy(fp, path)
		fp = append(fp, FilterPathEntry{Dimension: n.Dimension, Value: value})
		out = append(out, DrillRow{
			ID:            strings.Join(append(prefix[:depth:depth], value), "|"),
			Name:          value,
			Level:         depth + 1,
			DimensionType: n.Dimension,
			FilterPath:    fp,
			HasChild:      depth+1 < len(t.Dimensions),
			LanderURL:     n.LanderURL,
			OfferID:       n.OfferID,
			MetricsView:   models.MetricsView{MetricTuple: n.Metrics, DerivedMetrics: n.Derived},
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HierarchyResponse is the JSON body served for hierarchy queries.
type HierarchyResponse struct {
	Dimensions []string         `json:"dimensions"`
	Hierarchy  map[string]*Node `json:"hierarchy"`
	StartDate  string           `json:"startDate"`
	EndDate    string           `json:"endDate"`
	Timezone   string           `json:"timezone,omitempty"`
}
