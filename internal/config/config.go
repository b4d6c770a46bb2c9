package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RedisAddr      string
	ClickHouseDSN  string
	ClickHouseDB   string
	PostgresDSN    string
	ReloadInterval time.Duration
	TokenSecret    string
	TokenTTL       time.Duration
	ServiceName    string
	AllowedOrigins []string
	ETLConfigPath  string

	// UnknownRolePolicy decides what a user with an unrecognised role and
	// non-empty keywords may see: "deny" (nothing) or "allow" (everything).
	UnknownRolePolicy string

	// Response cache
	CacheEnabled       bool
	CacheTTL           time.Duration
	CacheRefreshBefore time.Duration

	// Query guard rails applied to every warehouse read
	QueryMaxMemoryBytes int64
	QueryMaxExecution   time.Duration
	QueryRowLimit       int

	// Rate limit for expensive operator endpoints (refresh, sync)
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int

	// Scheduler
	SchedulerEnabled  bool
	LedgerSyncSpec    string
	HourlyETLSpec     string
	DailyETLSpec      string
	SchedulerLeaseTTL time.Duration
	JobTimeout        time.Duration

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8000")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 10*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 60*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/ad_platform")
	cfg.ClickHouseDB = getenv("CLICKHOUSE_DATABASE", "ad_platform")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.ReloadInterval = envDuration("RELOAD_INTERVAL", 60*time.Second)
	cfg.TokenSecret = getenv("TOKEN_SECRET", "")
	cfg.TokenTTL = envDuration("TOKEN_TTL", 24*time.Hour)
	cfg.ServiceName = getenv("SERVICE_NAME", "efsafari")
	cfg.AllowedOrigins = envList("ALLOWED_ORIGINS", []string{"*"})
	cfg.ETLConfigPath = getenv("ETL_CONFIG", "config/etl.yaml")
	cfg.UnknownRolePolicy = strings.ToLower(getenv("PERMISSION_UNKNOWN_ROLE", "deny"))

	cfg.CacheEnabled = envBool("CACHE_ENABLED", true)
	cfg.CacheTTL = envDuration("CACHE_TTL", 10*time.Minute)
	cfg.CacheRefreshBefore = envDuration("CACHE_REFRESH_BEFORE", 2*time.Minute)

	cfg.QueryMaxMemoryBytes = int64(envInt("QUERY_MAX_MEMORY_BYTES", 10_000_000_000))
	cfg.QueryMaxExecution = envDuration("QUERY_MAX_EXECUTION", 60*time.Second)
	cfg.QueryRowLimit = envInt("QUERY_ROW_LIMIT", 1000)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 3)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 1)

	cfg.SchedulerEnabled = envBool("SCHEDULER_ENABLED", true)
	cfg.LedgerSyncSpec = getenv("LEDGER_SYNC_SPEC", "0 12 * * *")
	cfg.HourlyETLSpec = getenv("HOURLY_ETL_SPEC", "*/10 * * * *")
	cfg.DailyETLSpec = getenv("DAILY_ETL_SPEC", "30 */4 * * *")
	cfg.SchedulerLeaseTTL = envDuration("SCHEDULER_LEASE_TTL", 2*time.Minute)
	cfg.JobTimeout = envDuration("JOB_TIMEOUT", 30*time.Minute)

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 2)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// ClickHouse connection pooling configuration
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 20)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 5)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envList splits a comma separated variable, dropping empty entries.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
