package mtg

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JR-coderli/EFsafari/internal/models"
)

// ParseReport parses a tab-separated report into cost rows. Rows whose date
// column is missing or unparsable take fallbackDate.
func ParseReport(data []byte, fallbackDate time.Time) ([]models.CostRow, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimSpace(data)))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []models.CostRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report row: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		date, err := time.ParseInLocation("20060102", field(rec, "Date"), time.UTC)
		if err != nil {
			date = fallbackDate
		}
		rows = append(rows, models.CostRow{
			ReportDate:        date,
			Key:               orZero(field(rec, "Offer Id")),
			CampaignID:        orZero(field(rec, "Campaign Id")),
			AdsID:             orZero(field(rec, "Creative Id")),
			Adset:             field(rec, "Offer Name"),
			Ads:               field(rec, "Creative Name"),
			Spend:             parseFloat(field(rec, "Spend")),
			MobileImpressions: parseCount(field(rec, "Impression")),
			MobileClicks:      parseCount(field(rec, "Click")),
			MobileConversions: parseCount(field(rec, "Conversion")),
		})
	}
	return rows, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseCount(s string) uint64 {
	f := parseFloat(s)
	if f <= 0 {
		return 0
	}
	return uint64(f + 0.5)
}
