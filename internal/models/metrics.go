package models

// MetricTuple holds the summable counters reported for any slice of traffic.
// The mobile counters are the media-side numbers reported by the traffic source.
type MetricTuple struct {
	Impressions       uint64  `json:"impressions"`
	Clicks            uint64  `json:"clicks"`
	Conversions       uint64  `json:"conversions"`
	Spend             float64 `json:"spend"`
	Revenue           float64 `json:"revenue"`
	MobileImpressions uint64  `json:"m_imp"`
	MobileClicks      uint64  `json:"m_clicks"`
	MobileConversions uint64  `json:"m_conv"`
}

// Add returns the elementwise sum of m and o.
func (m MetricTuple) Add(o MetricTuple) MetricTuple {
	return MetricTuple{
		Impressions:       m.Impressions + o.Impressions,
		Clicks:            m.Clicks + o.Clicks,
		Conversions:       m.Conversions + o.Conversions,
		Spend:             m.Spend + o.Spend,
		Revenue:           m.Revenue + o.Revenue,
		MobileImpressions: m.MobileImpressions + o.MobileImpressions,
		MobileClicks:      m.MobileClicks + o.MobileClicks,
		MobileConversions: m.MobileConversions + o.MobileConversions,
	}
}

// DerivedMetrics are ratios computed from a MetricTuple. They are never
// stored or summed; callers recompute them from accumulated tuples.
type DerivedMetrics struct {
	CTR       float64 `json:"ctr"`
	CVR       float64 `json:"cvr"`
	ROI       float64 `json:"roi"`
	CPA       float64 `json:"cpa"`
	RPA       float64 `json:"rpa"`
	EPC       float64 `json:"epc"`
	EPV       float64 `json:"epv"`
	MobileEPC float64 `json:"m_epc"`
	MobileEPV float64 `json:"m_epv"`
	MobileCPC float64 `json:"m_cpc"`
	MobileCPV float64 `json:"m_cpv"`
	Profit    float64 `json:"profit"`
}

// Derive computes the derived ratios for m. Every denominator is floored at
// one, so an empty tuple yields the numerator (zero) rather than NaN.
// ROI at zero spend therefore equals profit.
func Derive(m MetricTuple) DerivedMetrics {
	profit := m.Revenue - m.Spend
	return DerivedMetrics{
		CTR:       float64(m.Clicks) / floorCount(m.Impressions),
		CVR:       float64(m.Conversions) / floorCount(m.Clicks),
		ROI:       profit / floorAmount(m.Spend),
		CPA:       m.Spend / floorCount(m.Conversions),
		RPA:       m.Revenue / floorCount(m.Conversions),
		EPC:       m.Revenue / floorCount(m.Clicks),
		EPV:       m.Revenue / floorCount(m.Impressions),
		MobileEPC: m.Revenue / floorCount(m.MobileClicks),
		MobileEPV: m.Revenue / floorCount(m.MobileImpressions),
		MobileCPC: m.Spend / floorCount(m.MobileClicks),
		MobileCPV: m.Spend / floorCount(m.MobileImpressions),
		Profit:    profit,
	}
}

func floorCount(v uint64) float64 {
	if v < 1 {
		return 1
	}
	return float64(v)
}

func floorAmount(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

// MetricsView is the flattened JSON form of a tuple together with its
// derived ratios, as served to dashboard clients.
type MetricsView struct {
	MetricTuple
	DerivedMetrics
}

// NewMetricsView derives m and pairs it with its ratios.
func NewMetricsView(m MetricTuple) MetricsView {
	return MetricsView{MetricTuple: m, DerivedMetrics: Derive(m)}
}
