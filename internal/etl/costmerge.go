package etl

import (
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/JR-coderli/EFsafari/internal/models"
)

// CostMerger overwrites the spend of eligible primary rows with the
// secondary cost source's numbers, allocated across rows sharing a key.
// Keys with no primary rows at all are synthesized as secondary-sourced
// rows so no billed spend is dropped.
type CostMerger struct {
	// EligibleKeywords select primary rows by media name (case-insensitive substring).
	EligibleKeywords []string
	// FallbackMedia names the media of synthesized rows.
	FallbackMedia string
}

// MergeResult reports what a merge did.
type MergeResult struct {
	Rows        []models.FactRow
	Matched     int
	Synthesized int
	Skipped     int
}

type costAggregate struct {
	first models.CostRow
	spend float64
	imp   uint64
	click uint64
	conv  uint64
}

// Eligible reports whether a media name takes secondary cost.
func (m CostMerger) Eligible(media string) bool {
	media = strings.ToLower(media)
	return lo.SomeBy(m.EligibleKeywords, func(k string) bool {
		return k != "" && strings.Contains(media, strings.ToLower(k))
	})
}

// Merge applies secondary to a copy of primary and returns it, extended by
// any synthesized rows. Spend of eligible rows sharing a key is split by
// impression share. primary is left untouched.
func (m CostMerger) Merge(primary []models.FactRow, secondary []models.CostRow) MergeResult {
	if len(secondary) == 0 {
		return MergeResult{Rows: primary}
	}
	res := MergeResult{Rows: slices.Clone(primary)}

	keyed := lo.Filter(secondary, func(r models.CostRow, _ int) bool {
		return r.Key != "" && r.Key != "0"
	})
	order := lo.Uniq(lo.Map(keyed, func(r models.CostRow, _ int) string { return r.Key }))
	aggs := make(map[string]*costAggregate, len(order))
	for _, r := range keyed {
		a, ok := aggs[r.Key]
		if !ok {
			a = &costAggregate{first: r}
			aggs[r.Key] = a
		}
		a.spend += r.Spend
		a.imp += r.MobileImpressions
		a.click += r.MobileClicks
		a.conv += r.MobileConversions
	}

	byKey := make(map[string][]int)
	for i := range primary {
		byKey[primary[i].AdsetID] = append(byKey[primary[i].AdsetID], i)
	}

	for _, key := range order {
		agg := aggs[key]
		idxs, ok := byKey[key]
		if !ok {
			res.Rows = append(res.Rows, m.synthesize(key, agg, primary))
			res.Synthesized++
			continue
		}
		eligible := lo.Filter(idxs, func(i int, _ int) bool { return m.Eligible(primary[i].Media) })
		if len(eligible) == 0 {
			res.Skipped++
			continue
		}
		total := lo.SumBy(eligible, func(i int) uint64 { return primary[i].Impressions })
		for _, i := range eligible {
			share := 1 / float64(len(eligible))
			if total > 0 {
				share = float64(primary[i].Impressions) / float64(total)
			}
			res.Rows[i].Spend = agg.spend * share
			res.Rows[i].MobileImpressions = allocate(agg.imp, share)
			res.Rows[i].MobileClicks = allocate(agg.click, share)
			res.Rows[i].MobileConversions = allocate(agg.conv, share)
		}
		res.Matched++
	}
	return res
}

func allocate(total uint64, share float64) uint64 {
	return uint64(math.Round(float64(total) * share))
}

func (m CostMerger) synthesize(key string, agg *costAggregate, primary []models.FactRow) models.FactRow {
	date := agg.first.ReportDate
	if date.IsZero() && len(primary) > 0 {
		date = primary[0].ReportDate
	}
	media := m.FallbackMedia
	if media == "" {
		media = "Mintegral"
	}
	return models.FactRow{
		ReportDate: date,
		DataSource: models.SourceMTG,
		Media:      media,
		CampaignID: agg.first.CampaignID,
		Adset:      agg.first.Adset,
		AdsetID:    key,
		Ads:        agg.first.Ads,
		AdsID:      agg.first.AdsID,
		MetricTuple: models.MetricTuple{
			Spend:             agg.spend,
			MobileImpressions: agg.imp,
			MobileClicks:      agg.click,
			MobileConversions: agg.conv,
		},
	}
}
