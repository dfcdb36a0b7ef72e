package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	HostawayBase      string
	HostawayAccountID string
	HostawaySecret    string
	HostawayRPS       int
	PageSize          int

	Workers      int
	WindowDays   int
	SyncSchedule string
	SyncLockTTL  time.Duration
	SyncLogKeep  int

	CacheTTL        time.Duration
	AdminToken      string
	DefaultCurrency string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/hostaway?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),

		HostawayBase:      env("HOSTAWAY_BASE_URL", "https://api.hostaway.com/v1"),
		HostawayAccountID: env("HOSTAWAY_ACCOUNT_ID", ""),
		HostawaySecret:    env("HOSTAWAY_API_SECRET", ""),
		HostawayRPS:       atoi("HOSTAWAY_RPS", 5),
		PageSize:          atoi("HOSTAWAY_PAGE_SIZE", 100),

		Workers:      atoi("SYNC_WORKERS", 4),
		WindowDays:   atoi("SYNC_WINDOW_DAYS", 365),
		SyncSchedule: env("SYNC_SCHEDULE", "@every 1h"),
		SyncLockTTL:  time.Duration(atoi("SYNC_LOCK_TTL_SECONDS", 1800)) * time.Second,
		SyncLogKeep:  atoi("SYNC_LOG_KEEP", 1000),

		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		AdminToken:      env("ADMIN_TOKEN", ""),
		DefaultCurrency: env("DEFAULT_CURRENCY", "USD"),
	}
	if c.HostawayAccountID == "" || c.HostawaySecret == "" {
		log.Warn().Msg("HOSTAWAY_ACCOUNT_ID or HOSTAWAY_API_SECRET is empty")
	}
	if c.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is empty; admin endpoints are disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
