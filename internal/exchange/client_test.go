package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"

	"ramzinex-alert-bot/internal/types"
)

const wrappedMarkets = `{"status":0,"data":[
	{"id":11,"base_asset":{"symbol":"btc"},"quote_asset":{"symbol":"irr"},"last_price":"52600"},
	{"id":12,"base_asset":{"symbol":"btc"},"quote_asset":{"symbol":"usdt"},"last_price":61000.5},
	{"id":"13","base_asset":{"symbol":"eth"},"quote_asset":{"symbol":"irr"},"last_price":0},
	{"id":14,"base_asset":{"symbol":""},"last_price":"1"},
	{"id":15,"base_asset":{"symbol":"ada"},"quote_asset":{"symbol":"irr"},"last_price":null}
]}`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalogFirstMarketPerSymbolWins(t *testing.T) {
	srv := serve(t, http.StatusOK, wrappedMarkets)
	client := NewClient(srv.URL, srv.URL, "", time.Second)

	instruments, err := client.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}

	want := map[string]int64{"BTC": 11, "ETH": 13, "ADA": 15}
	if len(instruments) != len(want) {
		t.Fatalf("expected %d instruments, got %d: %v", len(want), len(instruments), instruments)
	}
	for _, inst := range instruments {
		if want[inst.Symbol] != inst.MarketID {
			t.Errorf("%s: expected market %d, got %d", inst.Symbol, want[inst.Symbol], inst.MarketID)
		}
	}
}

func TestCatalogQuoteFilter(t *testing.T) {
	srv := serve(t, http.StatusOK, wrappedMarkets)
	client := NewClient(srv.URL, srv.URL, "usdt", time.Second)

	instruments, err := client.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if len(instruments) != 1 || instruments[0].MarketID != 12 {
		t.Fatalf("expected only the USDT market, got %v", instruments)
	}
}

func TestSnapshotSkipsMissingAndZeroPrices(t *testing.T) {
	srv := serve(t, http.StatusOK, `[
		{"id":11,"base_asset":{"symbol":"btc"},"last_price":"52600"},
		{"id":13,"base_asset":{"symbol":"eth"},"last_price":"0"},
		{"id":15,"base_asset":{"symbol":"ada"}}
	]`)
	client := NewClient(srv.URL, srv.URL, "", time.Second)

	quotes, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	if quotes[0].Instrument.Symbol != "BTC" || quotes[0].LastPrice.String() != "52600" {
		t.Errorf("unexpected quote %+v", quotes[0])
	}
}

func TestFetchErrorsAreClassified(t *testing.T) {
	bad := serve(t, http.StatusBadGateway, "oops")
	garbage := serve(t, http.StatusOK, `"not a list"`)

	_, err := NewClient(bad.URL, bad.URL, "", time.Second).Catalog(context.Background())
	if !errors.Is(err, types.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}

	_, err = NewClient(garbage.URL, garbage.URL, "", time.Second).Catalog(context.Background())
	if !errors.Is(err, types.ErrSchema) {
		t.Errorf("expected schema error, got %v", err)
	}
}

func TestCatalogRefreshAndLookup(t *testing.T) {
	srv := serve(t, http.StatusOK, wrappedMarkets)
	catalog := NewCatalog(NewClient(srv.URL, srv.URL, "", time.Second))

	if catalog.Loaded() {
		t.Fatal("catalog should not be loaded before refresh")
	}
	if got := catalog.Symbols(); len(got) != len(DefaultSymbols) {
		t.Errorf("expected default symbols before refresh, got %v", got)
	}

	if _, err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	inst, ok := catalog.Lookup(" btc ")
	if !ok || inst.MarketID != 11 {
		t.Errorf("expected BTC -> 11, got %+v %v", inst, ok)
	}
	if got := catalog.Symbols(); len(got) != 3 || got[0] != "ADA" {
		t.Errorf("unexpected symbols %v", got)
	}
}

func TestMarketListAcceptsBareArray(t *testing.T) {
	var markets marketList
	body := `[{"id":"21","base_asset":{"symbol":"doge"},"last_price":"0.12"}]`
	if err := json.Unmarshal([]byte(body), &markets); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("expected one market, got %d", len(markets))
	}
	inst, ok := markets[0].instrument()
	if !ok || inst.Symbol != "DOGE" || inst.MarketID != 21 {
		t.Errorf("unexpected instrument %+v", inst)
	}

	if err := json.Unmarshal([]byte(`"nope"`), &markets); err == nil {
		t.Error("expected an error for a non-list payload")
	}
}
