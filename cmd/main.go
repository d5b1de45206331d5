package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/config"
	"ramzinex-alert-bot/internal/alert"
	"ramzinex-alert-bot/internal/commands"
	"ramzinex-alert-bot/internal/database"
	"ramzinex-alert-bot/internal/exchange"
	"ramzinex-alert-bot/internal/feed"
	"ramzinex-alert-bot/internal/metrics"
	"ramzinex-alert-bot/internal/mirror"
	"ramzinex-alert-bot/internal/price"
	"ramzinex-alert-bot/internal/telegram"
	"ramzinex-alert-bot/internal/types"
	"ramzinex-alert-bot/lib/translation"
)

const metricsSaveInterval = 5 * time.Minute

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	translation.Setup("locales", settings.Lang)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, settings.DatabaseDriver, settings.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metrics.LoadFromDB(ctx, store)

	client := exchange.NewClient(settings.CatalogURL, settings.SnapshotURL, settings.ExchangeQuote, settings.ExchangeTimeout)
	catalog := exchange.NewCatalog(client)
	if _, err := catalog.Refresh(ctx); err != nil {
		if errors.Is(err, types.ErrSchema) {
			log.Fatalf("Failed to load the market catalog: %v", err)
		}
		log.Warnf("Market catalog not loaded yet, the feed will retry: %v", err)
	}

	cache := price.NewCache(settings.PriceHistory)
	resolver := price.NewResolver(
		price.NewCacheSource(cache, settings.PriceFreshness),
		price.NewFallbackSource(client, settings.FallbackTimeout, settings.FallbackRate),
	)

	sinks := []feed.Sink{cache}
	if settings.RedisAddr != "" {
		rdb, err := mirror.Connect(ctx, settings.RedisAddr, settings.RedisPassword, settings.RedisDB)
		if err != nil {
			log.Warnf("Price mirror disabled: %v", err)
		} else {
			defer rdb.Close()
			m := mirror.New(rdb, settings.RedisPrefix, settings.RedisTTL)
			sinks = append(sinks, m)
			go m.Run(ctx)
		}
	}

	feedClient := feed.NewClient(feed.Config{
		URL:              settings.FeedURL,
		ClientName:       settings.FeedClientName,
		Symbols:          settings.FeedSymbols,
		HandshakeTimeout: settings.FeedHandshakeTimeout,
		HeartbeatTimeout: settings.FeedHeartbeatTimeout,
		BackoffMin:       settings.FeedBackoffMin,
		BackoffMax:       settings.FeedBackoffMax,
		CatalogRefresh:   settings.CatalogRefresh,
	}, catalog, sinks...)
	go feedClient.Run(ctx)

	rules := alert.NewRules(store, catalog, resolver, settings.FallbackTimeout)
	handler := commands.NewHandler(rules, cache, commands.NewPaprika(settings.APIProKey, settings.ExchangeTimeout), settings.PriceUnit)

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          settings.TelegramToken,
		Debug:          settings.Debug,
		UpdatesTimeout: 60,
		NotifyTimeout:  settings.NotifyTimeout,
	}, handler)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	evaluator := alert.NewEvaluator(store, resolver, bot, alert.Config{
		Interval:       settings.AlertInterval,
		FirstDelay:     settings.AlertFirstDelay,
		Concurrency:    settings.AlertConcurrency,
		ResolveTimeout: settings.FallbackTimeout,
		PriceUnit:      settings.PriceUnit,
	})
	go evaluator.Run(ctx)
	go bot.Run(ctx)

	go func() {
		ticker := time.NewTicker(metricsSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SaveToDB(ctx, store)
			}
		}
	}()

	server := newMetricsAndHealthServer(settings.MetricsPort, feedClient)
	go func() {
		log.Infof("Launching metrics and health endpoint on :%d", settings.MetricsPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start metrics and health server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	metrics.SaveToDB(shutdownCtx, store)
	log.Info("Metrics saved, shutting down...")
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if level, err := log.ParseLevel(config.GetString("log_level")); err == nil {
		log.SetLevel(level)
	}
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting alert bot...")
}

type feedState interface {
	State() feed.State
}

func newMetricsAndHealthServer(port int, f feedState) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK feed=%s", f.State())
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
