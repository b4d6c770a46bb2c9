package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSingleRow(t *testing.T) {
	d := Derive(MetricTuple{Impressions: 100, Clicks: 10, Conversions: 1, Spend: 50, Revenue: 80})

	assert.InDelta(t, 0.1, d.CTR, 1e-9)
	assert.InDelta(t, 0.1, d.CVR, 1e-9)
	assert.InDelta(t, 0.6, d.ROI, 1e-9)
	assert.InDelta(t, 50, d.CPA, 1e-9)
	assert.InDelta(t, 80, d.RPA, 1e-9)
	assert.InDelta(t, 8, d.EPC, 1e-9)
	assert.InDelta(t, 0.8, d.EPV, 1e-9)
	assert.InDelta(t, 30, d.Profit, 1e-9)
}

func TestDeriveZeroDenominators(t *testing.T) {
	d := Derive(MetricTuple{Revenue: 12.5})

	assert.Zero(t, d.CTR)
	assert.Zero(t, d.CVR)
	assert.Equal(t, 12.5, d.ROI, "roi at zero spend equals profit")
	assert.Equal(t, 12.5, d.RPA)
	assert.Equal(t, 12.5, d.EPC)
	assert.Equal(t, 12.5, d.MobileEPV)
	assert.Zero(t, d.MobileCPC)
}

func TestDeriveSubUnitSpendFloorsToOne(t *testing.T) {
	d := Derive(MetricTuple{Spend: 0.5, Revenue: 1.5})
	assert.InDelta(t, 1.0, d.ROI, 1e-9)
}

func TestDeriveIsDeterministic(t *testing.T) {
	m := MetricTuple{Impressions: 7, Clicks: 3, Conversions: 2, Spend: 4.2, Revenue: 9.1, MobileClicks: 5, MobileImpressions: 11}
	assert.Equal(t, Derive(m), Derive(m))
}

func TestMetricTupleAdd(t *testing.T) {
	a := MetricTuple{Impressions: 10, Spend: 1.5, MobileConversions: 2}
	b := MetricTuple{Impressions: 5, Clicks: 1, Spend: 2, MobileConversions: 1}

	sum := a.Add(b)
	assert.Equal(t, uint64(15), sum.Impressions)
	assert.Equal(t, uint64(1), sum.Clicks)
	assert.Equal(t, 3.5, sum.Spend)
	assert.Equal(t, uint64(3), sum.MobileConversions)
	assert.Equal(t, MetricTuple{}.Add(a), a)
}

func TestMetricsViewFlattensJSON(t *testing.T) {
	raw, err := json.Marshal(NewMetricsView(MetricTuple{Impressions: 100, Clicks: 10, Spend: 50, Revenue: 80}))
	require.NoError(t, err)

	var out map[string]float64
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 100.0, out["impressions"])
	assert.InDelta(t, 0.1, out["ctr"], 1e-9)
	assert.InDelta(t, 30, out["profit"], 1e-9)
	assert.Contains(t, out, "m_imp")
}
