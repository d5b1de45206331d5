package config

import (
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// minBackoff is the tightest reconnect delay the feed is allowed to use.
const minBackoff = 3 * time.Second

var once sync.Once

var bindings = map[string]string{
	"telegram_bot_token":     "TELEGRAM_BOT_TOKEN",
	"debug":                  "DEBUG",
	"log_level":              "LOG_LEVEL",
	"lang":                   "LANG",
	"metrics_port":           "METRICS_PORT",
	"database_driver":        "DATABASE_DRIVER",
	"database_dsn":           "DATABASE_DSN",
	"feed_url":               "FEED_URL",
	"feed_client_name":       "FEED_CLIENT_NAME",
	"feed_symbols":           "FEED_SYMBOLS",
	"feed_handshake_timeout": "FEED_HANDSHAKE_TIMEOUT",
	"feed_heartbeat_timeout": "FEED_HEARTBEAT_TIMEOUT",
	"feed_backoff_min":       "FEED_BACKOFF_MIN",
	"feed_backoff_max":       "FEED_BACKOFF_MAX",
	"catalog_url":            "CATALOG_URL",
	"snapshot_url":           "SNAPSHOT_URL",
	"exchange_quote":         "EXCHANGE_QUOTE",
	"exchange_timeout":       "EXCHANGE_TIMEOUT",
	"catalog_refresh":        "CATALOG_REFRESH",
	"price_freshness":        "PRICE_FRESHNESS",
	"price_history":          "PRICE_HISTORY",
	"fallback_timeout":       "FALLBACK_TIMEOUT",
	"fallback_rate":          "FALLBACK_RATE",
	"alert_interval":         "ALERT_INTERVAL",
	"alert_first_delay":      "ALERT_FIRST_DELAY",
	"alert_concurrency":      "ALERT_CONCURRENCY",
	"notify_timeout":         "NOTIFY_TIMEOUT",
	"price_unit":             "PRICE_UNIT",
	"redis_addr":             "REDIS_ADDR",
	"redis_password":         "REDIS_PASSWORD",
	"redis_db":               "REDIS_DB",
	"redis_prefix":           "REDIS_PREFIX",
	"redis_ttl":              "REDIS_TTL",
	"api_pro_key":            "API_PRO_KEY",
}

func InitConfig() {
	once.Do(func() {
		// .env is optional; real environment variables take precedence.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Warnf("could not load .env file: %v", err)
		}

		viper.AutomaticEnv()

		for key, env := range bindings {
			viper.BindEnv(key, env)
		}

		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("log_level", "error")
		viper.SetDefault("lang", "en")
		viper.SetDefault("database_driver", "sqlite")
		viper.SetDefault("database_dsn", "/app/data/bot.db")
		viper.SetDefault("feed_url", "wss://websocket.ramzinex.com/websocket")
		viper.SetDefault("feed_handshake_timeout", 10*time.Second)
		viper.SetDefault("feed_heartbeat_timeout", 60*time.Second)
		viper.SetDefault("feed_backoff_min", 3*time.Second)
		viper.SetDefault("feed_backoff_max", 60*time.Second)
		viper.SetDefault("catalog_url", "https://publicapi.ramzinex.com/exchange/api/v1.0/exchange/market")
		viper.SetDefault("snapshot_url", "https://publicapi.ramzinex.com/exchange/api/v1.0/exchange/market")
		viper.SetDefault("exchange_timeout", 10*time.Second)
		viper.SetDefault("catalog_refresh", time.Hour)
		viper.SetDefault("price_freshness", 30*time.Second)
		viper.SetDefault("price_history", 240)
		viper.SetDefault("fallback_timeout", 5*time.Second)
		viper.SetDefault("fallback_rate", 2.0)
		viper.SetDefault("alert_interval", 30*time.Second)
		viper.SetDefault("alert_first_delay", 10*time.Second)
		viper.SetDefault("alert_concurrency", 8)
		viper.SetDefault("notify_timeout", 10*time.Second)
		viper.SetDefault("price_unit", "Toman")
		viper.SetDefault("redis_db", 0)
		viper.SetDefault("redis_prefix", "ramzinex")
		viper.SetDefault("redis_ttl", 10*time.Minute)

		if file := os.Getenv("CONFIG_FILE"); file != "" {
			viper.SetConfigFile(file)
			if err := viper.ReadInConfig(); err != nil {
				log.Warnf("could not read config file %s: %v", file, err)
			}
		}
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetFloat64(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

// GetStringSlice accepts both list values from a config file and
// comma or space separated env values.
func GetStringSlice(key string) []string {
	InitConfig()
	return splitList(viper.GetStringSlice(key))
}
