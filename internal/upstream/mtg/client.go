// Package mtg is a client for the Mintegral (MTG) advertiser report API,
// the secondary cost source merged into the daily fact table.
package mtg

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/pkg/httpretry"
)

// Report API status codes.
const (
	codeSuccess = 200
	codeError   = 10000
)

// ErrPollTimeout is returned when the report is not ready in time.
var ErrPollTimeout = errors.New("mtg report not ready before poll timeout")

// Config configures a Client for one MTG account.
type Config struct {
	Account         string
	BaseURL         string
	Endpoint        string
	AccessKey       string
	APIKey          string
	Timezone        string
	DimensionOption string
	TimeGranularity string
	PollAttempts    int
	PollInterval    time.Duration
	PollTimeout     time.Duration
	Retry           httpretry.Options
	Logger          *zap.Logger
}

// Client fetches daily cost reports through the initiate, poll and
// download workflow of the report API.
type Client struct {
	cfg        Config
	httpClient httpretry.HTTPDoer
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a new MTG API client.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = cfg.Logger
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 30
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: 120 * time.Second}, cfg.Retry),
		logger:     cfg.Logger.With(zap.String("mtg_account", cfg.Account)),
		now:        time.Now,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// Token computes the request signature md5(apiKey + md5(timestamp)).
func Token(apiKey, timestamp string) string {
	ts := md5.Sum([]byte(timestamp))
	sum := md5.Sum([]byte(apiKey + hex.EncodeToString(ts[:])))
	return hex.EncodeToString(sum[:])
}

type statusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) get(ctx context.Context, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("access-key", c.cfg.AccessKey)
	req.Header.Set("Token", Token(c.cfg.APIKey, ts))
	req.Header.Set("Timestamp", ts)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (c *Client) status(ctx context.Context, params url.Values) (statusResponse, error) {
	var st statusResponse
	resp, err := c.get(ctx, params)
	if err != nil {
		return st, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode report status: %w", err)
	}
	if st.Code >= codeError {
		return st, fmt.Errorf("report API code %d: %s", st.Code, st.Msg)
	}
	return st, nil
}

// FetchReport runs the report workflow for one day and returns the raw TSV.
func (c *Client) FetchReport(ctx context.Context, date time.Time) ([]byte, error) {
	day := date.Format(models.DateLayout)
	params := url.Values{}
	params.Set("start_time", day)
	params.Set("end_time", day)
	params.Set("type", "1")
	params.Set("timezone", c.cfg.Timezone)
	params.Set("dimension_option", c.cfg.DimensionOption)
	params.Set("time_granularity", c.cfg.TimeGranularity)

	st, err := c.status(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("initiate report: %w", err)
	}
	c.logger.Info("mtg report requested", zap.String("date", day), zap.Int("code", st.Code), zap.String("msg", st.Msg))

	if st.Code != codeSuccess {
		if err := c.poll(ctx, params); err != nil {
			return nil, err
		}
	}

	params.Set("type", "2")
	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("download report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	c.logger.Info("mtg report downloaded", zap.String("date", day), zap.Int("bytes", len(body)))
	return body, nil
}

func (c *Client) poll(ctx context.Context, params url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()
	for attempt := 1; attempt <= c.cfg.PollAttempts; attempt++ {
		if c.cfg.PollInterval > 0 {
			timer := time.NewTimer(c.cfg.PollInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ErrPollTimeout
			}
		}
		st, err := c.status(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return ErrPollTimeout
			}
			return fmt.Errorf("poll report: %w", err)
		}
		if st.Code == codeSuccess {
			return nil
		}
		c.logger.Debug("mtg report not ready", zap.Int("attempt", attempt), zap.Int("code", st.Code))
	}
	return ErrPollTimeout
}

// FetchCostRows fetches and parses the report for date.
func (c *Client) FetchCostRows(ctx context.Context, date time.Time) ([]models.CostRow, error) {
	body, err := c.FetchReport(ctx, date)
	if err != nil {
		return nil, err
	}
	return ParseReport(body, date)
}
