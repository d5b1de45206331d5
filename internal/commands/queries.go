package commands

import (
	"net/http"
	"strings"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/types"
)

// Paprika looks up global market data on CoinPaprika. Results are cached
// per symbol for five minutes.
type Paprika struct {
	client *coinpaprika.Client
	cache  *ttlCache[*coinpaprika.Ticker]
}

func NewPaprika(apiProKey string, timeout time.Duration) *Paprika {
	httpClient := &http.Client{Timeout: timeout}

	var client *coinpaprika.Client
	if apiProKey != "" {
		client = coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiProKey))
	} else {
		client = coinpaprika.NewClient(httpClient)
	}

	return &Paprika{
		client: client,
		cache:  newTTLCache[*coinpaprika.Ticker](5 * time.Minute),
	}
}

// Ticker fetches the USD ticker of the best match for symbol.
func (p *Paprika) Ticker(symbol string) (*coinpaprika.Ticker, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if cached, found := p.cache.get(symbol); found {
		log.Debugf("returning cached ticker for %s", symbol)
		return cached, nil
	}

	currency, err := p.searchCoin(symbol)
	if err != nil {
		return nil, errors.Wrap(err, "unable to find coin by query")
	}
	log.Debugf("Best match for query '%s' is: %s", symbol, *currency.ID)

	ticker, err := p.client.Tickers.GetByID(*currency.ID, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch ticker %s", *currency.ID)
	}

	p.cache.set(symbol, ticker)
	return ticker, nil
}

// searchCoin searches by symbol first and falls back to a name search.
func (p *Paprika) searchCoin(query string) (*coinpaprika.Coin, error) {
	searchOpts := &coinpaprika.SearchOptions{
		Query:      query,
		Categories: "currencies",
		Modifier:   "symbol_search",
	}
	result, err := p.client.Search.Search(searchOpts)
	if err != nil || len(result.Currencies) == 0 {
		log.Debugf("No results for symbol search, trying name search for '%s'", query)
		searchOpts = &coinpaprika.SearchOptions{Query: query, Categories: "currencies"}
		result, err = p.client.Search.Search(searchOpts)
		if err != nil || len(result.Currencies) == 0 {
			return nil, errors.Wrapf(types.ErrNotFound, "coin %s", query)
		}
	}

	return result.Currencies[0], nil
}
