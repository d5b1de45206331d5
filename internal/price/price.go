package price

import (
	"sync"

	"ramzinex-alert-bot/internal/types"
)

// Cache holds the most recent push-sourced PricePoint per symbol and a short
// history used for charts. The feed is its only writer.
type Cache struct {
	mu          sync.RWMutex
	latest      map[string]types.PricePoint
	history     map[string][]types.PricePoint
	historySize int
}

func NewCache(historySize int) *Cache {
	if historySize < 2 {
		historySize = 2
	}
	return &Cache{
		latest:      make(map[string]types.PricePoint),
		history:     make(map[string][]types.PricePoint),
		historySize: historySize,
	}
}

// Put replaces the entry for the point's symbol. Non-positive prices are ignored.
func (c *Cache) Put(p types.PricePoint) {
	if !p.Price.IsPositive() || p.Instrument.Symbol == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	symbol := p.Instrument.Symbol
	c.latest[symbol] = p

	h := c.history[symbol]
	if len(h) < c.historySize {
		c.history[symbol] = append(h, p)
		return
	}
	copy(h, h[1:])
	h[len(h)-1] = p
}

// Get returns the latest point for a symbol regardless of its age.
func (c *Cache) Get(symbol string) (types.PricePoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.latest[symbol]
	return p, ok
}

// History returns a copy of the recent points for a symbol, oldest first.
func (c *Cache) History(symbol string) []types.PricePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := c.history[symbol]
	out := make([]types.PricePoint, len(h))
	copy(out, h)
	return out
}
