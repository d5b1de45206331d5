package alert

import (
	"bytes"
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"ramzinex-alert-bot/internal/metrics"
	"ramzinex-alert-bot/internal/types"
)

var hundred = decimal.NewFromInt(100)

// Store is the part of the alert store the evaluator needs.
type Store interface {
	GetAllAlerts(ctx context.Context) ([]types.AlertRule, error)
	UpdateBaseline(ctx context.Context, rule types.AlertRule, price decimal.Decimal, at time.Time) (bool, error)
}

type PriceResolver interface {
	GetPrice(ctx context.Context, inst types.Instrument) (types.PricePoint, bool)
}

// Notifier delivers a formatted message to a user. Errors are not fatal to
// the caller.
type Notifier interface {
	Notify(userID int64, text string) error
}

type Config struct {
	Interval   time.Duration
	FirstDelay time.Duration
	// Concurrency bounds the number of rules evaluated at once.
	Concurrency    int
	ResolveTimeout time.Duration
	PriceUnit      string
}

// Evaluator periodically checks every rule against the current price.
type Evaluator struct {
	store    Store
	prices   PriceResolver
	notifier Notifier
	cfg      Config

	// held for the duration of a tick
	running sync.Mutex
	now     func() time.Time
}

func NewEvaluator(store Store, prices PriceResolver, notifier Notifier, cfg Config) *Evaluator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 5 * time.Second
	}
	return &Evaluator{
		store:    store,
		prices:   prices,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// TickStats summarises one tick.
type TickStats struct {
	Skipped     bool
	Rules       int
	Primed      int
	Notified    int
	Unchanged   int
	Unavailable int
	Failed      int
	Replaced    int
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomePrimed
	outcomeNotified
	outcomeUnavailable
	outcomeFailed
	outcomeReplaced
)

func (s *TickStats) add(o outcome) {
	switch o {
	case outcomePrimed:
		s.Primed++
	case outcomeNotified:
		s.Notified++
	case outcomeUnavailable:
		s.Unavailable++
	case outcomeFailed:
		s.Failed++
	case outcomeReplaced:
		s.Replaced++
	default:
		s.Unchanged++
	}
}

// Run ticks after the first delay and then on every interval until ctx is
// cancelled. A tick that is still running when the next one is due causes
// that one to be dropped.
func (e *Evaluator) Run(ctx context.Context) {
	log.WithFields(log.Fields{
		"first_delay": e.cfg.FirstDelay,
		"interval":    e.cfg.Interval,
	}).Info("Alert service started")

	timer := time.NewTimer(e.cfg.FirstDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	e.Tick(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Alert service stopped")
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every rule once. It never runs concurrently with itself;
// an overlapping call returns immediately with Skipped set.
func (e *Evaluator) Tick(ctx context.Context) TickStats {
	if !e.running.TryLock() {
		metrics.TicksSkipped.Inc()
		log.Warn("Previous alert check still running, skipping tick")
		return TickStats{Skipped: true}
	}
	defer e.running.Unlock()

	start := time.Now()
	var stats TickStats

	rules, err := e.store.GetAllAlerts(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to fetch alerts from the database")
		return stats
	}
	stats.Rules = len(rules)

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(e.cfg.Concurrency)
	for _, rule := range rules {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			o := e.evaluateSafe(ctx, rule)
			mu.Lock()
			stats.add(o)
			mu.Unlock()
		})
	}
	p.Wait()

	metrics.Ticks.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	log.WithFields(log.Fields{
		"rules":       stats.Rules,
		"primed":      stats.Primed,
		"notified":    stats.Notified,
		"unavailable": stats.Unavailable,
		"failed":      stats.Failed,
		"duration":    time.Since(start),
	}).Info("Alert check completed")
	return stats
}

func (e *Evaluator) evaluateSafe(ctx context.Context, rule types.AlertRule) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			log.Errorf("Recovered from panic evaluating alert for user %d %s: %v\nStack trace: %s",
				rule.UserID, rule.Instrument.Symbol, r, bytes.TrimRight(stackBuf[:stackSize], "\x00"))
			o = outcomeFailed
		}
	}()
	return e.evaluate(ctx, rule)
}

func (e *Evaluator) evaluate(ctx context.Context, rule types.AlertRule) outcome {
	logger := log.WithFields(log.Fields{"user": rule.UserID, "symbol": rule.Instrument.Symbol})

	rctx, cancel := context.WithTimeout(ctx, e.cfg.ResolveTimeout)
	point, ok := e.prices.GetPrice(rctx, rule.Instrument)
	cancel()
	if !ok {
		logger.Debug("Price unavailable, rule skipped this tick")
		return outcomeUnavailable
	}

	now := e.now()

	if !rule.Primed() {
		updated, err := e.store.UpdateBaseline(ctx, rule, point.Price, now)
		if err != nil {
			logger.WithError(err).Error("Failed to prime alert baseline")
			return outcomeFailed
		}
		if !updated {
			return outcomeReplaced
		}
		metrics.RulesPrimed.Inc()
		logger.WithField("baseline", point.Price).Debug("Alert baseline primed")
		return outcomePrimed
	}

	n, fire := Check(rule, point.Price, now)
	logger.WithFields(log.Fields{
		"baseline":  rule.LastNotifiedPrice.Decimal,
		"current":   point.Price,
		"source":    point.Source,
		"threshold": rule.ThresholdPercent,
	}).Debug("Checking alert")
	if !fire {
		return outcomeUnchanged
	}

	if err := e.notifier.Notify(rule.UserID, FormatNotification(n, e.cfg.PriceUnit)); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Failed to send alert notification")
		return outcomeFailed
	}
	metrics.Notifications.WithLabelValues("sent").Inc()

	// the message is out; the new baseline must land even if shutdown has begun
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ResolveTimeout)
	defer wcancel()
	updated, err := e.store.UpdateBaseline(wctx, rule, point.Price, now)
	if err != nil {
		logger.WithError(err).Error("Notification sent but baseline not saved")
		return outcomeFailed
	}
	if !updated {
		return outcomeReplaced
	}

	logger.WithFields(log.Fields{
		"change":   n.ChangePercent.StringFixed(2),
		"baseline": point.Price,
	}).Info("Alert notification sent")
	return outcomeNotified
}

// Check decides whether a primed rule fires at price. The move is measured
// from the last notified price and fires when it reaches the threshold in
// either direction.
func Check(rule types.AlertRule, price decimal.Decimal, at time.Time) (types.Notification, bool) {
	if !rule.Primed() || !price.IsPositive() {
		return types.Notification{}, false
	}

	baseline := rule.LastNotifiedPrice.Decimal
	change := price.Sub(baseline).Div(baseline).Mul(hundred)
	if change.Abs().LessThan(rule.ThresholdPercent) {
		return types.Notification{}, false
	}

	direction := types.Up
	if change.IsNegative() {
		direction = types.Down
	}
	return types.Notification{
		UserID:        rule.UserID,
		Instrument:    rule.Instrument,
		Direction:     direction,
		ChangePercent: change,
		PreviousPrice: baseline,
		CurrentPrice:  price,
		Threshold:     rule.ThresholdPercent,
		At:            at,
	}, true
}
