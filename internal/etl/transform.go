package etl

import (
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/timezone"
	"github.com/JR-coderli/EFsafari/internal/upstream/clickflare"
)

// ToFactRows maps daily report items onto fact rows. Items without a traffic
// source are attributed to fallbackMedia. Items whose media contains one of
// the excludeSpend keywords, ignoring case, report spend equal to revenue.
// Items with an unparsable date are dropped and counted.
func ToFactRows(items []clickflare.Item, excludeSpend []string, fallbackMedia string) ([]models.FactRow, int) {
	skipped := 0
	rows := make([]models.FactRow, 0, len(items))
	for _, it := range items {
		date, err := models.ParseDate(dateOnly(string(it.Date)))
		if err != nil {
			skipped++
			continue
		}
		media := string(it.TrafficSourceName)
		if media == "" {
			media = fallbackMedia
		}
		spend := float64(it.Cost)
		if spendIsRevenue(media, excludeSpend) {
			spend = float64(it.Revenue)
		}
		rows = append(rows, models.FactRow{
			ReportDate:   date,
			DataSource:   models.SourceClickflare,
			Media:        media,
			MediaID:      string(it.TrafficSourceID),
			Offer:        string(it.OfferName),
			OfferID:      string(it.OfferID),
			Advertiser:   string(it.AffiliateNetworkName),
			AdvertiserID: string(it.AffiliateNetworkID),
			Lander:       string(it.LandingName),
			LanderID:     string(it.LandingID),
			Campaign:     string(it.TrackingField4),
			CampaignID:   string(it.TrackingField3),
			Adset:        string(it.TrackingField6),
			AdsetID:      string(it.TrackingField5),
			Ads:          string(it.TrackingField2),
			AdsID:        string(it.TrackingField1),
			MetricTuple: models.MetricTuple{
				Impressions:       it.UniqueVisits.Count(),
				Clicks:            it.UniqueClicks.Count(),
				Conversions:       it.Conversions.Count(),
				Spend:             spend,
				Revenue:           float64(it.Revenue),
				MobileImpressions: it.UniqueVisits.Count(),
				MobileClicks:      it.UniqueClicks.Count(),
				MobileConversions: it.Conversions.Count(),
			},
		})
	}
	return rows, skipped
}

func spendIsRevenue(media string, keywords []string) bool {
	media = strings.ToLower(media)
	return lo.SomeBy(keywords, func(k string) bool {
		return k != "" && strings.Contains(media, strings.ToLower(k))
	})
}

// ToHourlyRows maps hourly report items, timestamped in the source's
// timezone at sourceOffset, onto UTC hourly rows. Items without a usable
// timestamp are dropped and counted.
func ToHourlyRows(items []clickflare.Item, sourceOffset int) ([]models.HourlyRow, int) {
	skipped := 0
	rows := make([]models.HourlyRow, 0, len(items))
	for _, it := range items {
		date, hour, ok := sourceBucket(it)
		if !ok {
			skipped++
			continue
		}
		utcDate, utcHour := timezone.ToUTC(date, hour, sourceOffset)
		rows = append(rows, models.HourlyRow{
			ReportDate:   utcDate,
			ReportHour:   uint8(utcHour),
			Timezone:     "UTC",
			Media:        string(it.TrafficSourceName),
			MediaID:      string(it.TrafficSourceID),
			Offer:        string(it.OfferName),
			OfferID:      string(it.OfferID),
			Advertiser:   string(it.AffiliateNetworkName),
			AdvertiserID: string(it.AffiliateNetworkID),
			Campaign:     string(it.TrackingField2),
			CampaignID:   string(it.TrackingField2),
			Adset:        string(it.TrackingField6),
			AdsetID:      string(it.TrackingField5),
			Impressions:  it.UniqueVisits.Count(),
			Clicks:       it.UniqueClicks.Count(),
			Conversions:  it.Conversions.Count(),
			Spend:        float64(it.Cost),
			Revenue:      float64(it.Revenue),
		})
	}
	return rows, skipped
}

// sourceBucket reads the local (date, hour) of an item from dateTime, or
// from date plus hourOfDay when dateTime is absent.
func sourceBucket(it clickflare.Item) (time.Time, int, bool) {
	if dt := strings.TrimSpace(string(it.DateTime)); dt != "" {
		ts, err := time.ParseInLocation(clickflare.TimeLayout, dt, time.UTC)
		if err == nil {
			return timezone.Bucket(ts, 0), ts.Hour(), true
		}
	}
	date, err := models.ParseDate(dateOnly(string(it.Date)))
	if err != nil {
		return time.Time{}, 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(string(it.HourOfDay)))
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, 0, false
	}
	return date, hour, true
}

func dateOnly(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(models.DateLayout) {
		return s[:len(models.DateLayout)]
	}
	return s
}
