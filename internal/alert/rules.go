package alert

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/types"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,15}$`)

// RuleStore is the part of the alert store used by user commands.
type RuleStore interface {
	UpsertAlert(ctx context.Context, rule types.AlertRule) error
	DeleteAlert(ctx context.Context, userID int64, symbol string) (bool, error)
	GetAlertsByUser(ctx context.Context, userID int64) ([]types.AlertRule, error)
}

type InstrumentCatalog interface {
	Lookup(symbol string) (types.Instrument, bool)
	Symbols() []string
	Loaded() bool
}

// Rules implements the user-facing rule operations.
type Rules struct {
	store          RuleStore
	catalog        InstrumentCatalog
	prices         PriceResolver
	resolveTimeout time.Duration
	now            func() time.Time
}

func NewRules(store RuleStore, catalog InstrumentCatalog, prices PriceResolver, resolveTimeout time.Duration) *Rules {
	if resolveTimeout <= 0 {
		resolveTimeout = 5 * time.Second
	}
	return &Rules{
		store:          store,
		catalog:        catalog,
		prices:         prices,
		resolveTimeout: resolveTimeout,
		now:            time.Now,
	}
}

// NormalizeSymbol upper-cases and trims a user supplied symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParseThreshold accepts "5", "2.5" or "5%".
func ParseThreshold(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return decimal.Zero, types.Validationf("threshold is missing")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, types.Validationf("threshold %q is not a number", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, types.Validationf("threshold must be greater than zero")
	}
	return d, nil
}

// instrument validates a symbol and resolves it through the catalog. Until
// the catalog is loaded any well-formed symbol is accepted.
func (r *Rules) instrument(symbol string) (types.Instrument, error) {
	symbol = NormalizeSymbol(symbol)
	if !symbolPattern.MatchString(symbol) {
		return types.Instrument{}, types.Validationf("%q is not a valid symbol", symbol)
	}
	if inst, ok := r.catalog.Lookup(symbol); ok {
		return inst, nil
	}
	if r.catalog.Loaded() {
		return types.Instrument{}, types.Validationf("%s is not listed on the exchange", symbol)
	}
	return types.Instrument{Symbol: symbol}, nil
}

// SetAlert creates or replaces the user's rule for symbol. When a price is
// available it becomes the baseline; otherwise the rule is primed by the
// evaluator.
func (r *Rules) SetAlert(ctx context.Context, userID int64, symbol, threshold string) (types.AlertRule, error) {
	inst, err := r.instrument(symbol)
	if err != nil {
		return types.AlertRule{}, err
	}
	pct, err := ParseThreshold(threshold)
	if err != nil {
		return types.AlertRule{}, err
	}

	now := r.now()
	rule := types.AlertRule{
		UserID:           userID,
		Instrument:       inst,
		ThresholdPercent: pct,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	rctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	point, ok := r.prices.GetPrice(rctx, inst)
	cancel()
	if ok {
		rule.LastNotifiedPrice = decimal.NewNullDecimal(point.Price)
	} else {
		log.WithFields(log.Fields{"user": userID, "symbol": inst.Symbol}).Info("No price yet, alert stored unprimed")
	}

	if err := r.store.UpsertAlert(ctx, rule); err != nil {
		return types.AlertRule{}, errors.Wrap(err, "save alert")
	}
	return rule, nil
}

// RemoveAlert deletes the user's rule for symbol and reports whether it existed.
func (r *Rules) RemoveAlert(ctx context.Context, userID int64, symbol string) (bool, error) {
	symbol = NormalizeSymbol(symbol)
	if !symbolPattern.MatchString(symbol) {
		return false, types.Validationf("%q is not a valid symbol", symbol)
	}
	return r.store.DeleteAlert(ctx, userID, symbol)
}

func (r *Rules) ListAlerts(ctx context.Context, userID int64) ([]types.AlertRule, error) {
	return r.store.GetAlertsByUser(ctx, userID)
}

func (r *Rules) ListInstruments() []string {
	return r.catalog.Symbols()
}

// TestPrice resolves the current price of symbol the same way the
// evaluator does.
func (r *Rules) TestPrice(ctx context.Context, symbol string) (types.PricePoint, error) {
	inst, err := r.instrument(symbol)
	if err != nil {
		return types.PricePoint{}, err
	}

	rctx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
	defer cancel()
	point, ok := r.prices.GetPrice(rctx, inst)
	if !ok {
		return types.PricePoint{}, errors.Wrapf(types.ErrPriceUnavailable, "%s", inst.Symbol)
	}
	return point, nil
}
