package exchange

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/types"
)

// Client talks to the exchange's public REST endpoints.
type Client struct {
	catalogURL  string
	snapshotURL string
	quote       string
	http        *http.Client
}

// NewClient creates a REST client. When quote is not empty only markets
// quoted in that asset are considered.
func NewClient(catalogURL, snapshotURL, quote string, timeout time.Duration) *Client {
	return &Client{
		catalogURL:  strings.TrimSpace(catalogURL),
		snapshotURL: strings.TrimSpace(snapshotURL),
		quote:       strings.ToUpper(strings.TrimSpace(quote)),
		http:        &http.Client{Timeout: timeout},
	}
}

// Catalog returns one instrument per base symbol. The first market listed
// for a symbol wins.
func (c *Client) Catalog(ctx context.Context) ([]types.Instrument, error) {
	markets, err := c.fetch(ctx, c.catalogURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetch catalog")
	}

	seen := make(map[string]struct{}, len(markets))
	instruments := make([]types.Instrument, 0, len(markets))
	for _, m := range markets {
		inst, ok := c.accept(m)
		if !ok {
			continue
		}
		if _, dup := seen[inst.Symbol]; dup {
			continue
		}
		seen[inst.Symbol] = struct{}{}
		instruments = append(instruments, inst)
	}
	return instruments, nil
}

// Snapshot returns the last price of every market that has one.
func (c *Client) Snapshot(ctx context.Context) ([]Quote, error) {
	markets, err := c.fetch(ctx, c.snapshotURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetch snapshot")
	}

	quotes := make([]Quote, 0, len(markets))
	for _, m := range markets {
		inst, ok := c.accept(m)
		if !ok {
			continue
		}
		price, ok := m.LastPrice.Positive()
		if !ok {
			continue
		}
		quotes = append(quotes, Quote{Instrument: inst, LastPrice: price})
	}
	return quotes, nil
}

func (c *Client) accept(m market) (types.Instrument, bool) {
	inst, ok := m.instrument()
	if !ok {
		return inst, false
	}
	if c.quote != "" && m.QuoteAsset.Symbol != "" && strings.ToUpper(m.QuoteAsset.Symbol) != c.quote {
		return inst, false
	}
	return inst, true
}

func (c *Client) fetch(ctx context.Context, url string) (marketList, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.http.Do(request)
	if err != nil {
		return nil, errors.Wrapf(types.ErrTransport, "GET %s: %v", url, err)
	}
	defer response.Body.Close()

	log.WithFields(log.Fields{
		"url":      url,
		"status":   response.StatusCode,
		"duration": time.Since(start),
	}).Debug("exchange request complete")

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, errors.Wrapf(types.ErrTransport, "GET %s: status %d", url, response.StatusCode)
	}

	var markets marketList
	if err := json.NewDecoder(response.Body).Decode(&markets); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(types.ErrTransport, "GET %s: %v", url, ctx.Err())
		}
		return nil, errors.Wrapf(types.ErrSchema, "decode %s: %v", url, err)
	}
	return markets, nil
}
