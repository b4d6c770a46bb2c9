// Package reporting turns warehouse rows into the dashboard's drill-down
// hierarchies. It owns the dimension catalogs, the per-user permission
// predicate, the hierarchy builder and the ClickHouse queries behind them.
package reporting

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidDimension is returned when a requested dimension cannot be used
// as a warehouse column.
var ErrInvalidDimension = errors.New("invalid dimension")

// Family selects the table and column vocabulary a query runs against.
type Family int

const (
	// Main is the daily marketing fact table.
	Main Family = iota
	// Daily is the daily spend ledger table.
	Daily
	// Hourly is the UTC hourly fact table.
	Hourly
)

func (f Family) String() string {
	switch f {
	case Daily:
		return "daily"
	case Hourly:
		return "hourly"
	default:
		return "main"
	}
}

var catalogs = map[Family]map[string]string{
	Main: {
		"platform":          "Media",
		"media":             "Media",
		"advertiser":        "advertiser",
		"offer":             "offer",
		"lander":            "lander",
		"campaign_name":     "Campaign",
		"campaign":          "Campaign",
		"sub_campaign_name": "Adset",
		"adset":             "Adset",
		"creative_name":     "Ads",
		"date":              "reportDate",
	},
	Daily: {
		"date":     "reportDate",
		"media":    "Media",
		"platform": "Media",
	},
	Hourly: {
		"platform":   "Media",
		"media":      "Media",
		"adset":      "Adset",
		"hour":       "reportHour",
		"offer":      "offer",
		"advertiser": "advertiser",
		"campaign":   "Campaign",
		"date":       "reportDate",
	},
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column maps a logical dimension to its warehouse column. Unknown names map
// to themselves.
func Column(f Family, dim string) string {
	if col, ok := catalogs[f][dim]; ok {
		return col
	}
	return dim
}

// SafeColumn is Column restricted to names that are valid SQL identifiers.
func SafeColumn(f Family, dim string) (string, error) {
	col := Column(f, dim)
	if !identifier.MatchString(col) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}
	return col, nil
}

// DimensionOption describes a dimension offered to clients.
type DimensionOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// MetricOption describes a metric column offered to clients.
type MetricOption struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Format string `json:"format"`
	Group  string `json:"group"`
}

// Dimensions lists the dimensions selectable for the main dashboard.
func Dimensions() []DimensionOption {
	return []DimensionOption{
		{Value: "platform", Label: "Media"},
		{Value: "advertiser", Label: "Advertiser"},
		{Value: "offer", Label: "Offer"},
		{Value: "lander", Label: "Lander"},
		{Value: "campaign_name", Label: "Campaign"},
		{Value: "sub_campaign_name", Label: "Adset"},
		{Value: "creative_name", Label: "Ads"},
		{Value: "date", Label: "Date"},
	}
}

// HourlyDimensions lists the dimensions selectable for the hourly report.
func HourlyDimensions() []DimensionOption {
	return []DimensionOption{
		{Value: "hour", Label: "Hour"},
		{Value: "platform", Label: "Media"},
		{Value: "offer", Label: "Offer"},
		{Value: "advertiser", Label: "Advertiser"},
		{Value: "campaign", Label: "Campaign"},
		{Value: "adset", Label: "Adset"},
		{Value: "date", Label: "Date"},
	}
}

// Metrics lists the metric columns the dashboard renders.
func Metrics() []MetricOption {
	return []MetricOption{
		{Key: "impressions", Label: "Impressions", Format: "number", Group: "basic"},
		{Key: "clicks", Label: "Clicks", Format: "number", Group: "basic"},
		{Key: "conversions", Label: "Conversions", Format: "number", Group: "basic"},
		{Key: "spend", Label: "Spend", Format: "currency", Group: "financial"},
		{Key: "revenue", Label: "Revenue", Format: "currency", Group: "financial"},
		{Key: "profit", Label: "Profit", Format: "currency", Group: "financial"},
		{Key: "ctr", Label: "CTR", Format: "percent", Group: "calculated"},
		{Key: "cvr", Label: "CVR", Format: "percent", Group: "calculated"},
		{Key: "roi", Label: "ROI", Format: "percent", Group: "calculated"},
		{Key: "cpa", Label: "CPA", Format: "currency", Group: "calculated"},
		{Key: "rpa", Label: "RPA", Format: "currency", Group: "calculated"},
		{Key: "epc", Label: "EPC", Format: "currency", Group: "calculated"},
		{Key: "epv", Label: "EPV", Format: "currency", Group: "calculated"},
		{Key: "m_imp", Label: "M Impressions", Format: "number", Group: "media"},
		{Key: "m_clicks", Label: "M Clicks", Format: "number", Group: "media"},
		{Key: "m_conv", Label: "M Conversions", Format: "number", Group: "media"},
		{Key: "m_epc", Label: "M EPC", Format: "currency", Group: "media"},
		{Key: "m_epv", Label: "M EPV", Format: "currency", Group: "media"},
		{Key: "m_cpc", Label: "M CPC", Format: "currency", Group: "media"},
		{Key: "m_cpv", Label: "M CPV", Format: "currency", Group: "media"},
	}
}
