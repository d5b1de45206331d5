package exchange

import (
	"bytes"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ramzinex-alert-bot/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Quote is the last traded price of a market taken from the snapshot endpoint.
type Quote struct {
	Instrument types.Instrument
	LastPrice  decimal.Decimal
}

type asset struct {
	Symbol string `json:"symbol"`
}

type market struct {
	ID         marketID           `json:"id"`
	BaseAsset  asset              `json:"base_asset"`
	QuoteAsset asset              `json:"quote_asset"`
	LastPrice  types.LooseDecimal `json:"last_price"`
}

func (m market) instrument() (types.Instrument, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(m.BaseAsset.Symbol))
	if m.ID <= 0 || symbol == "" {
		return types.Instrument{}, false
	}
	return types.Instrument{Symbol: symbol, MarketID: int64(m.ID)}, true
}

// marketID accepts both numeric and quoted ids.
type marketID int64

func (id *marketID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "market id %q", s)
	}
	*id = marketID(v)
	return nil
}

// marketList is either a bare array or an object wrapping it under "data".
type marketList []market

func (l *marketList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	switch b[0] {
	case '[':
		var arr []market
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*l = arr
		return nil
	case '{':
		var wrapped struct {
			Data []market `json:"data"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		*l = wrapped.Data
		return nil
	default:
		return errors.Errorf("unexpected market list json: %.40s", string(b))
	}
}
