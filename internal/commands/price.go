package commands

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/types"
	"ramzinex-alert-bot/lib/helpers"
	"ramzinex-alert-bot/lib/translation"
)

func sourceName(s types.Source) string {
	if s == types.SourcePull {
		return translation.Translate("market snapshot")
	}
	return translation.Translate("live feed")
}

// CommandTest handles "/test <symbol>": the price the evaluator would see
// right now, and where it came from.
func (h *Handler) CommandTest(ctx context.Context, args string) string {
	log.Debugf("processing command /test with argument :%s", args)

	symbol, _ := ParseArguments(args)
	if symbol == "" {
		return helpers.EscapeMarkdownV2(translation.Translate("Usage: /test <symbol>, e.g. /test BTC"))
	}

	point, err := h.rules.TestPrice(ctx, symbol)
	switch {
	case errors.Is(err, types.ErrValidation):
		return "⚠️ " + helpers.EscapeMarkdownV2(err.Error())
	case errors.Is(err, types.ErrPriceUnavailable):
		return helpers.EscapeMarkdownV2(translation.Translate("The price of %s is temporarily unavailable.", strings.ToUpper(symbol)))
	case err != nil:
		log.WithError(err).Error("command /test")
		return helpers.EscapeMarkdownV2(translation.Translate("Something went wrong. Please try again later."))
	}

	return translation.Translate("*%s price:* %s\nSource: %s\nObserved: %s",
		helpers.EscapeMarkdownV2(point.Instrument.Symbol),
		h.price(point.Price),
		helpers.EscapeMarkdownV2(sourceName(point.Source)),
		helpers.EscapeMarkdownV2(helpers.FormatAge(point.ObservedAt, h.now())),
	)
}

// CommandInfo handles "/info <symbol>": the exchange price next to the
// global CoinPaprika ticker.
func (h *Handler) CommandInfo(ctx context.Context, args string) string {
	log.Debugf("processing command /info with argument :%s", args)

	symbol, _ := ParseArguments(args)
	if symbol == "" {
		return helpers.EscapeMarkdownV2(translation.Translate("Usage: /info <symbol>, e.g. /info BTC"))
	}
	symbol = strings.ToUpper(symbol)

	var b strings.Builder
	if point, err := h.rules.TestPrice(ctx, symbol); err == nil {
		b.WriteString(translation.Translate("*%s on the exchange:* %s", helpers.EscapeMarkdownV2(symbol), h.price(point.Price)))
	} else if errors.Is(err, types.ErrValidation) {
		return "⚠️ " + helpers.EscapeMarkdownV2(err.Error())
	} else {
		b.WriteString(translation.Translate("*%s on the exchange:* %s", helpers.EscapeMarkdownV2(symbol), helpers.EscapeMarkdownV2("n/a")))
	}

	ticker, err := h.market.Ticker(symbol)
	if errors.Is(err, types.ErrNotFound) {
		log.WithField("symbol", symbol).Debug("command /info: no global market data")
		return b.String()
	}
	if err != nil {
		log.WithError(err).WithField("symbol", symbol).Warn("command /info")
		return b.String()
	}
	b.WriteString("\n\n")
	b.WriteString(formatTicker(ticker))
	return b.String()
}

func formatPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return helpers.EscapeMarkdownV2(fmt.Sprintf("%.2f", *v)) + "%"
}

func formatUSD(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return "$" + helpers.FormatPriceUS(math.Round(*v), true)
}

func formatTicker(t *coinpaprika.Ticker) string {
	if t.Name == nil || t.ID == nil || t.Symbol == nil {
		return helpers.EscapeMarkdownV2(translation.Translate("This coin is not actively traded and doesn't have current price"))
	}

	usd, ok := t.Quotes["USD"]
	if !ok || usd.Price == nil {
		return fmt.Sprintf(translation.Translate("This coin is not actively traded and doesn't have current price \n"+
			"For more details visit [CoinPaprika](https://coinpaprika.com/coin/%s) 🌶"), *t.ID)
	}

	supply := "N/A"
	if t.CirculatingSupply != nil {
		supply = helpers.FormatSupplyUS(*t.CirculatingSupply)
	}

	return fmt.Sprintf(
		"[%s](https://coinpaprika.com/coin/%s) \\(%s\\)\n"+
			"Price:  *$%s*\n"+
			"24h price change: *%s*\n"+
			"7d price change: *%s*\n"+
			"Vol:  *%s*\n"+
			"MCap:  *%s*\n"+
			"Circ\\. Supply:  *%s %s*\n\n"+
			"[%s on CoinPaprika](https://coinpaprika.com/coin/%s) 🌶",
		helpers.EscapeMarkdownV2(*t.Name),
		*t.ID,
		helpers.EscapeMarkdownV2(*t.Symbol),
		helpers.FormatPriceUS(*usd.Price, true),
		formatPct(usd.PercentChange24h),
		formatPct(usd.PercentChange7d),
		formatUSD(usd.Volume24h),
		formatUSD(usd.MarketCap),
		supply,
		helpers.EscapeMarkdownV2(*t.Symbol),
		helpers.EscapeMarkdownV2(*t.Name),
		*t.ID,
	)
}
