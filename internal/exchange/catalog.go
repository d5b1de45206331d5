package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"

	"ramzinex-alert-bot/internal/types"
)

// DefaultSymbols is shown to users before the catalog has been loaded.
var DefaultSymbols = []string{"BTC", "ETH", "USDT", "ADA", "DOT", "LTC", "BCH", "XRP", "EOS", "TRX"}

// CatalogFetcher performs the one-shot instrument list request.
type CatalogFetcher interface {
	Catalog(ctx context.Context) ([]types.Instrument, error)
}

// Catalog holds the current symbol to market id resolution. Identifiers can
// be reassigned by the exchange, so the mapping is replaced on every refresh.
type Catalog struct {
	fetcher CatalogFetcher

	mu       sync.RWMutex
	bySymbol map[string]types.Instrument
	loaded   bool
}

func NewCatalog(fetcher CatalogFetcher) *Catalog {
	return &Catalog{
		fetcher:  fetcher,
		bySymbol: make(map[string]types.Instrument),
	}
}

// Refresh fetches the instrument list and replaces the mapping. On error
// the previous mapping is kept.
func (c *Catalog) Refresh(ctx context.Context) ([]types.Instrument, error) {
	instruments, err := c.fetcher.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]types.Instrument, len(instruments))
	for _, inst := range instruments {
		bySymbol[inst.Symbol] = inst
	}

	c.mu.Lock()
	c.bySymbol = bySymbol
	c.loaded = true
	c.mu.Unlock()

	return instruments, nil
}

// Lookup resolves a symbol, case-insensitively.
func (c *Catalog) Lookup(symbol string) (types.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inst, ok := c.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return inst, ok
}

// Symbols returns the sorted list of known symbols.
func (c *Catalog) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded || len(c.bySymbol) == 0 {
		out := make([]string, len(DefaultSymbols))
		copy(out, DefaultSymbols)
		return out
	}

	out := make([]string, 0, len(c.bySymbol))
	for symbol := range c.bySymbol {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}
