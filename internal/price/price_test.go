package price

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ramzinex-alert-bot/internal/exchange"
	"ramzinex-alert-bot/internal/types"
)

var btc = types.Instrument{Symbol: "BTC", MarketID: 11}

func point(symbol string, price string, at time.Time) types.PricePoint {
	return types.PricePoint{
		Instrument: types.Instrument{Symbol: symbol},
		Price:      decimal.RequireFromString(price),
		ObservedAt: at,
		Source:     types.SourcePush,
	}
}

type fakeSnapshot struct {
	quotes []exchange.Quote
	err    error
	calls  atomic.Int32
	delay  time.Duration
}

func (f *fakeSnapshot) Snapshot(ctx context.Context) ([]exchange.Quote, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.quotes, f.err
}

func TestCachePutReplacesAndIgnoresNonPositive(t *testing.T) {
	cache := NewCache(3)
	now := time.Now()

	cache.Put(point("BTC", "100", now))
	cache.Put(point("BTC", "101", now))
	cache.Put(point("BTC", "0", now))
	cache.Put(point("BTC", "-5", now))

	p, ok := cache.Get("BTC")
	if !ok || !p.Price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("expected latest price 101, got %v %v", p.Price, ok)
	}
	if _, ok := cache.Get("ETH"); ok {
		t.Error("expected no ETH entry")
	}
}

func TestCacheHistoryIsBounded(t *testing.T) {
	cache := NewCache(3)
	now := time.Now()
	for i, v := range []string{"1", "2", "3", "4", "5"} {
		cache.Put(point("BTC", v, now.Add(time.Duration(i)*time.Second)))
	}

	h := cache.History("BTC")
	if len(h) != 3 {
		t.Fatalf("expected 3 history points, got %d", len(h))
	}
	if h[0].Price.String() != "3" || h[2].Price.String() != "5" {
		t.Errorf("unexpected history %v %v", h[0].Price, h[2].Price)
	}

	h[0] = point("BTC", "999", now)
	if cache.History("BTC")[0].Price.String() != "3" {
		t.Error("History must return a copy")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 1; j <= 100; j++ {
				cache.Put(point("BTC", "100", time.Now()))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if p, ok := cache.Get("BTC"); ok && !p.Price.IsPositive() {
					t.Error("read a partial price point")
				}
				_ = cache.History("BTC")
			}
		}()
	}
	wg.Wait()
}

func TestCacheSourceFreshness(t *testing.T) {
	cache := NewCache(10)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	source := NewCacheSource(cache, 30*time.Second)
	source.now = func() time.Time { return now }

	cache.Put(point("BTC", "100", now.Add(-29*time.Second)))
	if _, ok := source.Price(context.Background(), btc); !ok {
		t.Error("expected fresh entry to be served")
	}

	cache.Put(point("BTC", "100", now.Add(-30*time.Second)))
	if _, ok := source.Price(context.Background(), btc); ok {
		t.Error("expected entry at the freshness boundary to be stale")
	}
}

func TestResolverFallsBackWhenCacheIsStale(t *testing.T) {
	cache := NewCache(10)
	now := time.Now()
	cache.Put(point("BTC", "100", now.Add(-2*time.Minute)))

	fetcher := &fakeSnapshot{quotes: []exchange.Quote{
		{Instrument: types.Instrument{Symbol: "BTC", MarketID: 11}, LastPrice: decimal.NewFromInt(105)},
	}}
	resolver := NewResolver(
		NewCacheSource(cache, 30*time.Second),
		NewFallbackSource(fetcher, time.Second, 100),
	)

	p, ok := resolver.GetPrice(context.Background(), btc)
	if !ok {
		t.Fatal("expected fallback price")
	}
	if p.Source != types.SourcePull || !p.Price.Equal(decimal.NewFromInt(105)) {
		t.Errorf("expected pulled 105, got %s %v", p.Source, p.Price)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("expected one snapshot call, got %d", fetcher.calls.Load())
	}

	cached, _ := cache.Get("BTC")
	if !cached.Price.Equal(decimal.NewFromInt(100)) {
		t.Error("fallback result must not be written to the cache")
	}
}

func TestResolverPrefersFreshCache(t *testing.T) {
	cache := NewCache(10)
	cache.Put(point("BTC", "100", time.Now()))
	fetcher := &fakeSnapshot{}
	resolver := NewResolver(NewCacheSource(cache, 30*time.Second), NewFallbackSource(fetcher, time.Second, 100))

	p, ok := resolver.GetPrice(context.Background(), btc)
	if !ok || p.Source != types.SourcePush {
		t.Fatalf("expected push price, got %v %v", p, ok)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("fallback must not be consulted for fresh data")
	}
}

func TestResolverBothSourcesFail(t *testing.T) {
	fetcher := &fakeSnapshot{err: errors.Wrap(types.ErrTransport, "boom")}
	resolver := NewResolver(NewCacheSource(NewCache(10), 30*time.Second), NewFallbackSource(fetcher, time.Second, 100))

	if _, ok := resolver.GetPrice(context.Background(), btc); ok {
		t.Error("expected price to be unavailable")
	}
}

func TestFallbackMatchesByMarketIDThenSymbol(t *testing.T) {
	fetcher := &fakeSnapshot{quotes: []exchange.Quote{
		{Instrument: types.Instrument{Symbol: "BTC", MarketID: 11}, LastPrice: decimal.NewFromInt(1)},
		{Instrument: types.Instrument{Symbol: "BTC", MarketID: 12}, LastPrice: decimal.NewFromInt(2)},
	}}
	source := NewFallbackSource(fetcher, time.Second, 100)

	p, ok := source.Price(context.Background(), types.Instrument{Symbol: "BTC", MarketID: 12})
	if !ok || p.Price.IntPart() != 2 {
		t.Errorf("expected market 12 price, got %v", p.Price)
	}

	p, ok = source.Price(context.Background(), types.Instrument{Symbol: "BTC"})
	if !ok || p.Price.IntPart() != 1 {
		t.Errorf("expected first BTC market, got %v", p.Price)
	}

	if _, ok := source.Price(context.Background(), types.Instrument{Symbol: "DOGE"}); ok {
		t.Error("expected no price for unknown symbol")
	}
}

func TestFallbackIgnoresReassignedMarketID(t *testing.T) {
	fetcher := &fakeSnapshot{quotes: []exchange.Quote{
		{Instrument: types.Instrument{Symbol: "ETH", MarketID: 11}, LastPrice: decimal.NewFromInt(3000)},
		{Instrument: types.Instrument{Symbol: "BTC", MarketID: 12}, LastPrice: decimal.NewFromInt(50000)},
	}}
	source := NewFallbackSource(fetcher, time.Second, 100)

	// rule stored while BTC was market 11
	p, ok := source.Price(context.Background(), types.Instrument{Symbol: "BTC", MarketID: 11})
	if !ok {
		t.Fatal("expected a BTC price")
	}
	if p.Instrument.Symbol != "BTC" || p.Price.IntPart() != 50000 {
		t.Errorf("expected BTC at 50000, got %s at %v", p.Instrument.Symbol, p.Price)
	}
}

func TestFallbackDefaultsTimeout(t *testing.T) {
	fetcher := &fakeSnapshot{quotes: []exchange.Quote{
		{Instrument: types.Instrument{Symbol: "BTC", MarketID: 11}, LastPrice: decimal.NewFromInt(1)},
	}}
	source := NewFallbackSource(fetcher, 0, 100)

	if _, ok := source.Price(context.Background(), btc); !ok {
		t.Error("expected a price with the default timeout")
	}
}

func TestFallbackCoalescesConcurrentLookups(t *testing.T) {
	fetcher := &fakeSnapshot{
		delay: 100 * time.Millisecond,
		quotes: []exchange.Quote{
			{Instrument: types.Instrument{Symbol: "BTC", MarketID: 11}, LastPrice: decimal.NewFromInt(1)},
		},
	}
	source := NewFallbackSource(fetcher, time.Second, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source.Price(context.Background(), btc)
		}()
	}
	wg.Wait()

	if calls := fetcher.calls.Load(); calls >= 10 {
		t.Errorf("expected concurrent lookups to share requests, got %d calls", calls)
	}
}

func TestFallbackHonoursCallerContext(t *testing.T) {
	fetcher := &fakeSnapshot{delay: 500 * time.Millisecond}
	source := NewFallbackSource(fetcher, time.Second, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, ok := source.Price(ctx, btc); ok {
		t.Error("expected no price")
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Error("lookup should return when the caller's context ends")
	}
}
