package clickflare

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Text decodes a JSON string, number or null into a string. Clickflare
// returns ids as either depending on the field.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

// Number decodes a JSON number, numeric string or null into a float64.
// Unparsable strings decode as zero.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			f = 0
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Count returns n as a non-negative integer counter.
func (n Number) Count() uint64 {
	if n <= 0 {
		return 0
	}
	return uint64(n + 0.5)
}

// Item is one row of a Clickflare report.
type Item struct {
	Date                 Text   `json:"date"`
	DateTime             Text   `json:"dateTime"`
	HourOfDay            Text   `json:"hourOfDay"`
	TrafficSourceID      Text   `json:"trafficSourceID"`
	TrafficSourceName    Text   `json:"trafficSourceName"`
	OfferID              Text   `json:"offerID"`
	OfferName            Text   `json:"offerName"`
	AffiliateNetworkID   Text   `json:"affiliateNetworkID"`
	AffiliateNetworkName Text   `json:"affiliateNetworkName"`
	LandingID            Text   `json:"landingID"`
	LandingName          Text   `json:"landingName"`
	TrackingField1       Text   `json:"trackingField1"`
	TrackingField2       Text   `json:"trackingField2"`
	TrackingField3       Text   `json:"trackingField3"`
	TrackingField4       Text   `json:"trackingField4"`
	TrackingField5       Text   `json:"trackingField5"`
	TrackingField6       Text   `json:"trackingField6"`
	UniqueVisits         Number `json:"uniqueVisits"`
	UniqueClicks         Number `json:"uniqueClicks"`
	Conversions          Number `json:"conversions"`
	Revenue              Number `json:"revenue"`
	Cost                 Number `json:"cost"`
}

// TrackingFields returns trackingField1..6 in order.
func (it Item) TrackingFields() [6]string {
	return [6]string{
		string(it.TrackingField1), string(it.TrackingField2), string(it.TrackingField3),
		string(it.TrackingField4), string(it.TrackingField5), string(it.TrackingField6),
	}
}

// ReportRequest is the body of a report query.
type ReportRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	GroupBy    []string `json:"groupBy"`
	Metrics    []string `json:"metrics"`
	Timezone   string   `json:"timezone"`
	SortBy     string   `json:"sortBy"`
	OrderType  string   `json:"orderType"`
	IncludeAll bool     `json:"includeAll"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
}

// ReportPage is one page of report results.
type ReportPage struct {
	Items  []Item          `json:"items"`
	Totals json.RawMessage `json:"totals,omitempty"`
}
