package models

import "time"

// Data sources recorded on fact rows.
const (
	SourceClickflare = "Clickflare"
	SourceMTG        = "MTG"
)

// FactRow is one row of the main daily fact table (dwd_marketing_report_daily).
type FactRow struct {
	ReportDate   time.Time `json:"reportDate"`
	DataSource   string    `json:"dataSource"`
	Media        string    `json:"Media"`
	MediaID      string    `json:"MediaID"`
	Offer        string    `json:"offer"`
	OfferID      string    `json:"offerID"`
	Advertiser   string    `json:"advertiser"`
	AdvertiserID string    `json:"advertiserID"`
	Lander       string    `json:"lander"`
	LanderID     string    `json:"landerID"`
	Campaign     string    `json:"Campaign"`
	CampaignID   string    `json:"CampaignID"`
	Adset        string    `json:"Adset"`
	AdsetID      string    `json:"AdsetID"`
	Ads          string    `json:"Ads"`
	AdsID        string    `json:"AdsID"`
	MetricTuple
}

// CostRow is a secondary cost-source row keyed by the adset id it bills.
// It carries spend and media-side counters but no revenue.
type CostRow struct {
	ReportDate        time.Time
	Key               string
	CampaignID        string
	Adset             string
	AdsID             string
	Ads               string
	Spend             float64
	MobileImpressions uint64
	MobileClicks      uint64
	MobileConversions uint64
}

// HourlyRow is one row of the hourly_report table. ReportDate and ReportHour
// are always UTC; other timezones are derived at query time.
type HourlyRow struct {
	ReportDate   time.Time `json:"reportDate"`
	ReportHour   uint8     `json:"reportHour"`
	Timezone     string    `json:"timezone"`
	Media        string    `json:"Media"`
	MediaID      string    `json:"MediaID"`
	Offer        string    `json:"offer"`
	OfferID      string    `json:"offerID"`
	Advertiser   string    `json:"advertiser"`
	AdvertiserID string    `json:"advertiserID"`
	Campaign     string    `json:"Campaign"`
	CampaignID   string    `json:"CampaignID"`
	Adset        string    `json:"Adset"`
	AdsetID      string    `json:"AdsetID"`
	Impressions  uint64    `json:"impressions"`
	Clicks       uint64    `json:"clicks"`
	Conversions  uint64    `json:"conversions"`
	Spend        float64   `json:"spend"`
	Revenue      float64   `json:"revenue"`
}

// DateLayout is the calendar date format used by every API and table.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string as a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
