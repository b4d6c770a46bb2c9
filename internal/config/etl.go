package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ETL holds the upstream report settings read from the ETL YAML file.
type ETL struct {
	Clickflare ClickflareAPI  `yaml:"clickflare"`
	Retry      RetryPolicy    `yaml:"retry"`
	Daily      DailyJob       `yaml:"daily"`
	Hourly     HourlyJob      `yaml:"hourly"`
	MTG        MTGIntegration `yaml:"mtg_integration"`
}

type ClickflareAPI struct {
	BaseURL  string `yaml:"base_url"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timezone string `yaml:"timezone"`
}

type RetryPolicy struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	StatusCodes   []int   `yaml:"retry_status_codes"`
}

type DailyJob struct {
	DateOffsetDays    int           `yaml:"date_offset_days"`
	PageSize          int           `yaml:"page_size"`
	MaxPages          int           `yaml:"max_pages"`
	BatchSize         int           `yaml:"batch_size"`
	GroupBy           []string      `yaml:"group_by"`
	Metrics           []string      `yaml:"metrics"`
	GroupByPass2      []string      `yaml:"group_by_pass2"`
	MetricsPass2      []string      `yaml:"metrics_pass2"`
	ExcludeSpendMedia []string      `yaml:"exclude_spend_media"`
	// MediaSource names the media of items that carry no traffic source.
	MediaSource       string        `yaml:"media_source"`
	Timeout           time.Duration `yaml:"timeout"`
}

type HourlyJob struct {
	// SourceOffset is the upstream report timezone as hours east of UTC.
	SourceOffset int           `yaml:"source_offset"`
	PageSize     int           `yaml:"page_size"`
	MaxPages     int           `yaml:"max_pages"`
	BatchSize    int           `yaml:"batch_size"`
	BatchRetries int           `yaml:"batch_retries"`
	GroupBy      []string      `yaml:"group_by"`
	Metrics      []string      `yaml:"metrics"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"`
	Timezones    []string      `yaml:"status_timezones"`
}

type MTGIntegration struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"api_base_url"`
	Endpoint        string        `yaml:"api_endpoint"`
	Timezone        string        `yaml:"api_timezone"`
	DimensionOption string        `yaml:"dimension_option"`
	TimeGranularity string        `yaml:"time_granularity"`
	MediaKeywords   []string      `yaml:"mtg_media_keywords"`
	FallbackMedia   string        `yaml:"fallback_media"`
	PollAttempts    int           `yaml:"poll_max_attempts"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	Accounts        []MTGAccount  `yaml:"accounts"`
}

type MTGAccount struct {
	Name      string `yaml:"name"`
	AccessKey string `yaml:"access_key"`
	APIKey    string `yaml:"api_key"`
}

// DefaultETL returns the settings used when the YAML file omits a value.
func DefaultETL() ETL {
	return ETL{
		Clickflare: ClickflareAPI{
			BaseURL:  "https://public-api.clickflare.io",
			Endpoint: "/api/report",
			Timezone: "UTC",
		},
		Retry: RetryPolicy{
			MaxAttempts:   3,
			BackoffFactor: 2,
			StatusCodes:   []int{429, 500, 502, 503, 504},
		},
		Daily: DailyJob{
			DateOffsetDays: 1,
			PageSize:       1000,
			MaxPages:       100,
			BatchSize:      1000,
			GroupBy: []string{"date", "trafficSourceID", "offerID", "affiliateNetworkID",
				"trackingField1", "trackingField2", "trackingField3", "trackingField4",
				"trackingField5", "trackingField6"},
			Metrics: []string{"trafficSourceName", "offerName", "affiliateNetworkName",
				"uniqueVisits", "uniqueClicks", "conversions", "revenue", "cost"},
			GroupByPass2: []string{"date", "trafficSourceID", "offerID", "landingID",
				"trackingField1", "trackingField2", "trackingField3", "trackingField4",
				"trackingField5", "trackingField6"},
			MetricsPass2: []string{"landingName", "uniqueVisits"},
			Timeout:      30 * time.Minute,
		},
		Hourly: HourlyJob{
			SourceOffset: 8,
			PageSize:     5000,
			MaxPages:     100,
			BatchSize:    500,
			BatchRetries: 3,
			GroupBy: []string{"dateTime", "trafficSourceID", "offerID", "affiliateNetworkID",
				"trackingField1", "trackingField2", "trackingField5", "trackingField6"},
			Metrics: []string{"trafficSourceName", "offerName", "affiliateNetworkName",
				"uniqueVisits", "uniqueClicks", "conversions", "revenue", "cost"},
			LeaseTTL:  15 * time.Minute,
			Timezones: []string{"UTC", "Asia/Shanghai", "EST", "PST"},
		},
		MTG: MTGIntegration{
			BaseURL:         "https://ss-api.mintegral.com",
			Endpoint:        "/api/v2/reports/data",
			Timezone:        "0",
			DimensionOption: "Offer,Campaign,Creative",
			TimeGranularity: "daily",
			MediaKeywords:   []string{"Mintegral", "Hastraffic"},
			FallbackMedia:   "Mintegral",
			PollAttempts:    30,
			PollInterval:    10 * time.Second,
			PollTimeout:     10 * time.Minute,
		},
	}
}

// LoadETL reads the ETL YAML file at path over DefaultETL. The Clickflare
// API key can be supplied through CLICKFLARE_API_KEY instead of the file.
func LoadETL(path string) (ETL, error) {
	cfg := DefaultETL()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read etl config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse etl config: %w", err)
	}
	if key := os.Getenv("CLICKFLARE_API_KEY"); key != "" {
		cfg.Clickflare.APIKey = key
	}
	if cfg.Clickflare.APIKey == "" {
		return cfg, fmt.Errorf("etl config: clickflare api_key is required")
	}
	return cfg, nil
}
