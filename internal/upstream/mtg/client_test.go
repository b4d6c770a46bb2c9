package mtg

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTSV = "Date\tCampaign Id\tOffer Id\tCreative Id\tOffer Name\tCreative Name\tImpression\tClick\tConversion\tSpend\n" +
	"20260101\t11\t555\t9\tAdset A\tAd 1\t1,200\t30\t2\t1,234.50\n" +
	"bad\t\t\t\t\t\t\t\t\t\n"

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestToken(t *testing.T) {
	assert.Equal(t, md5hex("secret"+md5hex("1700000000")), Token("secret", "1700000000"))
}

func TestParseReport(t *testing.T) {
	fallback := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	rows, err := ParseReport([]byte(sampleTSV), fallback)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	r := rows[0]
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), r.ReportDate)
	assert.Equal(t, "555", r.Key)
	assert.Equal(t, "11", r.CampaignID)
	assert.Equal(t, "Adset A", r.Adset)
	assert.Equal(t, 1234.5, r.Spend)
	assert.Equal(t, uint64(1200), r.MobileImpressions)
	assert.Equal(t, uint64(30), r.MobileClicks)
	assert.Equal(t, uint64(2), r.MobileConversions)

	assert.Equal(t, fallback, rows[1].ReportDate)
	assert.Equal(t, "0", rows[1].Key)
	assert.Zero(t, rows[1].Spend)
}

func TestParseReportEmpty(t *testing.T) {
	rows, err := ParseReport([]byte("  \n"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFetchCostRowsPollsUntilReady(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ak", r.Header.Get("access-key"))
		assert.Equal(t, Token("k", r.Header.Get("Timestamp")), r.Header.Get("Token"))
		assert.Equal(t, "2026-01-01", r.URL.Query().Get("start_time"))

		switch r.URL.Query().Get("type") {
		case "1":
			if atomic.AddInt32(&polls, 1) < 3 {
				_, _ = w.Write([]byte(`{"code":202,"msg":"generating"}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":200,"msg":"ok"}`))
		case "2":
			_, _ = w.Write([]byte(sampleTSV))
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Endpoint: "/api/v2/reports/data", AccessKey: "ak", APIKey: "k", PollAttempts: 5})
	rows, err := c.FetchCostRows(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.EqualValues(t, 3, atomic.LoadInt32(&polls))
}

func TestFetchReportPollExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":204,"msg":"not ready"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, PollAttempts: 2})
	_, err := c.FetchReport(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestFetchReportAPIErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":10000,"msg":"invalid token"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.FetchReport(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}
