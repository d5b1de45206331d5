package price

import (
	"context"

	"ramzinex-alert-bot/internal/metrics"
	"ramzinex-alert-bot/internal/types"
)

// Resolver answers "what is the current price of X" by asking each source
// in order. With a CacheSource first and a FallbackSource second the pull
// endpoint is only used when push data is stale or absent.
type Resolver struct {
	sources []Source
}

func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// GetPrice returns ok=false when no source has a price; callers treat that
// as "temporarily unknown".
func (r *Resolver) GetPrice(ctx context.Context, inst types.Instrument) (types.PricePoint, bool) {
	for _, source := range r.sources {
		if p, ok := source.Price(ctx, inst); ok {
			metrics.PriceLookups.WithLabelValues(string(p.Source)).Inc()
			return p, true
		}
	}
	metrics.PriceLookups.WithLabelValues("miss").Inc()
	return types.PricePoint{}, false
}
