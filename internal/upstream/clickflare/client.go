// Package clickflare is a client for the Clickflare reporting API.
package clickflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/pkg/httpretry"
)

// TimeLayout is the timestamp format the report API expects.
const TimeLayout = "2006-01-02 15:04:05"

// Config configures a Client.
type Config struct {
	BaseURL  string
	Endpoint string
	APIKey   string
	Timezone string
	Retry    httpretry.Options
	Logger   *zap.Logger
}

// Client is the Clickflare report API client.
type Client struct {
	baseURL    string
	endpoint   string
	apiKey     string
	timezone   string
	httpClient httpretry.HTTPDoer
	logger     *zap.Logger
}

// NewClient creates a new Clickflare API client.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = cfg.Logger
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		timezone:   cfg.Timezone,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: 60 * time.Second}, cfg.Retry),
		logger:     cfg.Logger,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

func (c *Client) doRequest(ctx context.Context, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// FetchReport fetches one page of a report.
func (c *Client) FetchReport(ctx context.Context, r ReportRequest) (*ReportPage, error) {
	if r.Timezone == "" {
		r.Timezone = c.timezone
	}
	if r.SortBy == "" && len(r.Metrics) > 0 {
		r.SortBy = r.Metrics[0]
	}
	if r.OrderType == "" {
		r.OrderType = "desc"
	}
	body, err := c.doRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	var page ReportPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse report page: %w", err)
	}
	return &page, nil
}

// FetchAllPages fetches pages until a short or empty page, or maxPages.
// start and end are both inclusive.
// Any page failure aborts the fetch; partial results are never returned.
func (c *Client) FetchAllPages(ctx context.Context, start, end time.Time, groupBy, metrics []string, pageSize, maxPages int) ([]Item, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	if maxPages <= 0 {
		maxPages = 100
	}
	var all []Item
	for page := 1; page <= maxPages; page++ {
		p, err := c.FetchReport(ctx, ReportRequest{
			StartDate: start.Format(TimeLayout),
			EndDate:   end.Format(TimeLayout),
			GroupBy:   groupBy,
			Metrics:   metrics,
			Page:      page,
			PageSize:  pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, p.Items...)
		c.logger.Debug("fetched report page", zap.Int("page", page), zap.Int("items", len(p.Items)))
		if len(p.Items) < pageSize {
			break
		}
	}
	return all, nil
}
