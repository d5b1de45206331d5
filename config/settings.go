package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Settings is the typed view of the configuration used to wire the process.
type Settings struct {
	TelegramToken string
	Debug         bool
	LogLevel      string
	Lang          string
	MetricsPort   int

	DatabaseDriver string
	DatabaseDSN    string

	FeedURL              string
	FeedClientName       string
	FeedSymbols          []string
	FeedHandshakeTimeout time.Duration
	FeedHeartbeatTimeout time.Duration
	FeedBackoffMin       time.Duration
	FeedBackoffMax       time.Duration

	CatalogURL      string
	SnapshotURL     string
	ExchangeQuote   string
	ExchangeTimeout time.Duration
	CatalogRefresh  time.Duration

	PriceFreshness  time.Duration
	PriceHistory    int
	FallbackTimeout time.Duration
	FallbackRate    float64

	AlertInterval    time.Duration
	AlertFirstDelay  time.Duration
	AlertConcurrency int
	NotifyTimeout    time.Duration
	PriceUnit        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTTL      time.Duration

	APIProKey string
}

// Load reads every key into Settings and validates the result.
func Load() (Settings, error) {
	s := Settings{
		TelegramToken: GetString("telegram_bot_token"),
		Debug:         GetBool("debug"),
		LogLevel:      GetString("log_level"),
		Lang:          GetString("lang"),
		MetricsPort:   GetInt("metrics_port"),

		DatabaseDriver: strings.ToLower(GetString("database_driver")),
		DatabaseDSN:    GetString("database_dsn"),

		FeedURL:              GetString("feed_url"),
		FeedClientName:       GetString("feed_client_name"),
		FeedSymbols:          GetStringSlice("feed_symbols"),
		FeedHandshakeTimeout: GetDuration("feed_handshake_timeout"),
		FeedHeartbeatTimeout: GetDuration("feed_heartbeat_timeout"),
		FeedBackoffMin:       GetDuration("feed_backoff_min"),
		FeedBackoffMax:       GetDuration("feed_backoff_max"),

		CatalogURL:      GetString("catalog_url"),
		SnapshotURL:     GetString("snapshot_url"),
		ExchangeQuote:   GetString("exchange_quote"),
		ExchangeTimeout: GetDuration("exchange_timeout"),
		CatalogRefresh:  GetDuration("catalog_refresh"),

		PriceFreshness:  GetDuration("price_freshness"),
		PriceHistory:    GetInt("price_history"),
		FallbackTimeout: GetDuration("fallback_timeout"),
		FallbackRate:    GetFloat64("fallback_rate"),

		AlertInterval:    GetDuration("alert_interval"),
		AlertFirstDelay:  GetDuration("alert_first_delay"),
		AlertConcurrency: GetInt("alert_concurrency"),
		NotifyTimeout:    GetDuration("notify_timeout"),
		PriceUnit:        GetString("price_unit"),

		RedisAddr:     GetString("redis_addr"),
		RedisPassword: GetString("redis_password"),
		RedisDB:       GetInt("redis_db"),
		RedisPrefix:   GetString("redis_prefix"),
		RedisTTL:      GetDuration("redis_ttl"),

		APIProKey: GetString("api_pro_key"),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the process cannot run with and clamps the
// reconnect backoff to its floor.
func (s *Settings) Validate() error {
	switch {
	case strings.TrimSpace(s.FeedURL) == "":
		return errors.New("feed_url is empty")
	case strings.TrimSpace(s.CatalogURL) == "":
		return errors.New("catalog_url is empty")
	case strings.TrimSpace(s.SnapshotURL) == "":
		return errors.New("snapshot_url is empty")
	case s.AlertInterval <= 0:
		return errors.Errorf("alert_interval must be positive, got %s", s.AlertInterval)
	case s.PriceFreshness <= 0:
		return errors.Errorf("price_freshness must be positive, got %s", s.PriceFreshness)
	case s.FallbackTimeout <= 0:
		return errors.Errorf("fallback_timeout must be positive, got %s", s.FallbackTimeout)
	case s.AlertConcurrency < 1:
		return errors.Errorf("alert_concurrency must be at least 1, got %d", s.AlertConcurrency)
	}

	switch s.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		return errors.Errorf("unsupported database_driver %q", s.DatabaseDriver)
	}

	if s.FeedBackoffMin < minBackoff {
		log.Warnf("feed_backoff_min %s is below %s, using %s", s.FeedBackoffMin, minBackoff, minBackoff)
		s.FeedBackoffMin = minBackoff
	}
	if s.FeedBackoffMax < s.FeedBackoffMin {
		s.FeedBackoffMax = s.FeedBackoffMin
	}
	if s.FallbackRate <= 0 {
		s.FallbackRate = 1
	}
	if s.PriceHistory < 2 {
		s.PriceHistory = 2
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
