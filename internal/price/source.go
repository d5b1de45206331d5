package price

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ramzinex-alert-bot/internal/exchange"
	"ramzinex-alert-bot/internal/types"
)

// Source answers the current price of an instrument.
type Source interface {
	Price(ctx context.Context, inst types.Instrument) (types.PricePoint, bool)
}

// CacheSource serves push data that is younger than the freshness window.
type CacheSource struct {
	cache     *Cache
	freshness time.Duration
	now       func() time.Time
}

func NewCacheSource(cache *Cache, freshness time.Duration) *CacheSource {
	return &CacheSource{cache: cache, freshness: freshness, now: time.Now}
}

func (s *CacheSource) Price(_ context.Context, inst types.Instrument) (types.PricePoint, bool) {
	p, ok := s.cache.Get(inst.Symbol)
	if !ok {
		return types.PricePoint{}, false
	}
	if s.now().Sub(p.ObservedAt) >= s.freshness {
		return types.PricePoint{}, false
	}
	return p, true
}

// SnapshotFetcher performs the pull-based market snapshot request.
type SnapshotFetcher interface {
	Snapshot(ctx context.Context) ([]exchange.Quote, error)
}

// FallbackSource reads the exchange snapshot endpoint. Concurrent lookups
// share one request and requests are rate limited. Results are never
// written to the Cache.
type FallbackSource struct {
	fetcher SnapshotFetcher
	timeout time.Duration
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time
}

func NewFallbackSource(fetcher SnapshotFetcher, timeout time.Duration, perSecond float64) *FallbackSource {
	if perSecond <= 0 {
		perSecond = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FallbackSource{
		fetcher: fetcher,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		now:     time.Now,
	}
}

func (s *FallbackSource) Price(ctx context.Context, inst types.Instrument) (types.PricePoint, bool) {
	ch := s.group.DoChan("snapshot", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.limiter.Wait(fctx); err != nil {
			return nil, err
		}
		return s.fetcher.Snapshot(fctx)
	})

	var quotes []exchange.Quote
	select {
	case <-ctx.Done():
		return types.PricePoint{}, false
	case res := <-ch:
		if res.Err != nil {
			log.WithError(res.Err).WithField("symbol", inst.Symbol).Warn("fallback price fetch failed")
			return types.PricePoint{}, false
		}
		quotes = res.Val.([]exchange.Quote)
	}

	quote, ok := match(quotes, inst)
	if !ok {
		return types.PricePoint{}, false
	}
	return types.PricePoint{
		Instrument: quote.Instrument,
		Price:      quote.LastPrice,
		ObservedAt: s.now(),
		Source:     types.SourcePull,
	}, true
}

// match prefers the market id and falls back to the first market with the
// same base symbol. Ids can be reassigned by the exchange, so an id match
// only counts when the symbol agrees.
func match(quotes []exchange.Quote, inst types.Instrument) (exchange.Quote, bool) {
	if inst.MarketID != 0 {
		for _, q := range quotes {
			if q.Instrument.MarketID == inst.MarketID && q.Instrument.Symbol == inst.Symbol {
				return q, true
			}
		}
	}
	for _, q := range quotes {
		if q.Instrument.Symbol == inst.Symbol {
			return q, true
		}
	}
	return exchange.Quote{}, false
}
