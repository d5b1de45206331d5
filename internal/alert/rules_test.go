package alert

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ramzinex-alert-bot/internal/types"
)

type fakeCatalog struct {
	loaded      bool
	instruments map[string]types.Instrument
}

func (f *fakeCatalog) Lookup(symbol string) (types.Instrument, bool) {
	inst, ok := f.instruments[symbol]
	return inst, ok
}

func (f *fakeCatalog) Symbols() []string {
	out := make([]string, 0, len(f.instruments))
	for s := range f.instruments {
		out = append(out, s)
	}
	return out
}

func (f *fakeCatalog) Loaded() bool { return f.loaded }

func newTestRules() (*Rules, *memStore, *fakePrices) {
	store := newMemStore()
	prices := newFakePrices()
	catalog := &fakeCatalog{loaded: true, instruments: map[string]types.Instrument{
		"BTC": {Symbol: "BTC", MarketID: 11},
		"ETH": {Symbol: "ETH", MarketID: 12},
	}}
	return NewRules(store, catalog, prices, 0), store, prices
}

func TestSetAlertPrimesWithCurrentPrice(t *testing.T) {
	rules, store, prices := newTestRules()
	prices.set("BTC", "50000")

	rule, err := rules.SetAlert(context.Background(), 1, " btc ", "5%")
	if err != nil {
		t.Fatalf("SetAlert failed: %v", err)
	}
	if rule.Instrument.MarketID != 11 || !rule.ThresholdPercent.Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected rule %+v", rule)
	}
	if got := store.get(1, "BTC"); !got.LastNotifiedPrice.Decimal.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("expected baseline 50000, got %v", got.LastNotifiedPrice)
	}
}

func TestSetAlertWithoutPriceIsStoredUnprimed(t *testing.T) {
	rules, store, _ := newTestRules()

	if _, err := rules.SetAlert(context.Background(), 1, "ETH", "2.5"); err != nil {
		t.Fatalf("SetAlert failed: %v", err)
	}
	if got := store.get(1, "ETH"); got.Primed() {
		t.Errorf("expected an unprimed rule, got %v", got.LastNotifiedPrice)
	}
}

func TestSetAlertReplacesExistingRule(t *testing.T) {
	rules, store, prices := newTestRules()
	prices.set("BTC", "100")
	rules.SetAlert(context.Background(), 1, "BTC", "5")
	prices.set("BTC", "120")
	rules.SetAlert(context.Background(), 1, "BTC", "3")

	list, _ := store.GetAlertsByUser(context.Background(), 1)
	if len(list) != 1 {
		t.Fatalf("expected one rule, got %d", len(list))
	}
	if !list[0].ThresholdPercent.Equal(decimal.NewFromInt(3)) || !list[0].LastNotifiedPrice.Decimal.Equal(decimal.NewFromInt(120)) {
		t.Errorf("rule was not replaced: %+v", list[0])
	}
}

func TestSetAlertValidation(t *testing.T) {
	rules, store, _ := newTestRules()
	tests := []struct {
		symbol, threshold string
	}{
		{"BTC", "0"},
		{"BTC", "-3"},
		{"BTC", "abc"},
		{"BTC", ""},
		{"B", "5"},
		{"BTC-USDT", "5"},
		{"DOGE", "5"},
	}
	for _, tt := range tests {
		_, err := rules.SetAlert(context.Background(), 1, tt.symbol, tt.threshold)
		if !errors.Is(err, types.ErrValidation) {
			t.Errorf("SetAlert(%q, %q): expected validation error, got %v", tt.symbol, tt.threshold, err)
		}
	}
	if list, _ := store.GetAlertsByUser(context.Background(), 1); len(list) != 0 {
		t.Errorf("invalid rules must not be persisted, got %d", len(list))
	}
}

func TestSymbolsAcceptedBeforeCatalogLoads(t *testing.T) {
	store := newMemStore()
	rules := NewRules(store, &fakeCatalog{}, newFakePrices(), 0)

	rule, err := rules.SetAlert(context.Background(), 1, "DOGE", "5")
	if err != nil {
		t.Fatalf("expected any well-formed symbol before the catalog loads, got %v", err)
	}
	if rule.Instrument.MarketID != 0 {
		t.Errorf("expected unresolved market id, got %d", rule.Instrument.MarketID)
	}
}

func TestRemoveAlert(t *testing.T) {
	rules, _, _ := newTestRules()
	rules.SetAlert(context.Background(), 1, "BTC", "5")

	removed, err := rules.RemoveAlert(context.Background(), 1, "btc")
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	removed, _ = rules.RemoveAlert(context.Background(), 1, "BTC")
	if removed {
		t.Error("expected second removal to report a missing rule")
	}
}

func TestTestPrice(t *testing.T) {
	rules, _, prices := newTestRules()
	prices.set("BTC", "42")

	p, err := rules.TestPrice(context.Background(), "btc")
	if err != nil || !p.Price.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("expected 42, got %v %v", p.Price, err)
	}
	if _, err := rules.TestPrice(context.Background(), "ETH"); !errors.Is(err, types.ErrPriceUnavailable) {
		t.Errorf("expected price unavailable, got %v", err)
	}
}
