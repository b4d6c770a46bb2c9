package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpendRecord is one (date, media) row of the daily spend ledger.
// SpendFinal always equals SpendOriginal plus SpendManual.
type SpendRecord struct {
	Date              time.Time       `json:"date"`
	Media             string          `json:"media"`
	Impressions       uint64          `json:"impressions"`
	Clicks            uint64          `json:"clicks"`
	Conversions       uint64          `json:"conversions"`
	Revenue           float64         `json:"revenue"`
	MobileImpressions uint64          `json:"m_imp"`
	MobileClicks      uint64          `json:"m_clicks"`
	MobileConversions uint64          `json:"m_conv"`
	SpendOriginal     decimal.Decimal `json:"spend_original"`
	SpendManual       decimal.Decimal `json:"spend_manual"`
	SpendFinal        decimal.Decimal `json:"spend_final"`
	Locked            bool            `json:"is_locked"`
	LastModifiedBy    string          `json:"last_modified_by"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Metrics returns the record as a MetricTuple using the final spend.
func (r SpendRecord) Metrics() MetricTuple {
	return MetricTuple{
		Impressions:       r.Impressions,
		Clicks:            r.Clicks,
		Conversions:       r.Conversions,
		Spend:             r.SpendFinal.InexactFloat64(),
		Revenue:           r.Revenue,
		MobileImpressions: r.MobileImpressions,
		MobileClicks:      r.MobileClicks,
		MobileConversions: r.MobileConversions,
	}
}
