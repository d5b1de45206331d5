package commands

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/shopspring/decimal"

	"ramzinex-alert-bot/internal/types"
	"ramzinex-alert-bot/lib/helpers"
	"ramzinex-alert-bot/lib/translation"
)

// RuleService is what the alert commands need from the rule layer.
type RuleService interface {
	SetAlert(ctx context.Context, userID int64, symbol, threshold string) (types.AlertRule, error)
	RemoveAlert(ctx context.Context, userID int64, symbol string) (bool, error)
	ListAlerts(ctx context.Context, userID int64) ([]types.AlertRule, error)
	ListInstruments() []string
	TestPrice(ctx context.Context, symbol string) (types.PricePoint, error)
}

type PriceHistory interface {
	History(symbol string) []types.PricePoint
}

type MarketData interface {
	Ticker(symbol string) (*coinpaprika.Ticker, error)
}

// Handler turns command arguments into MarkdownV2 replies.
type Handler struct {
	rules   RuleService
	history PriceHistory
	market  MarketData
	unit    string
	now     func() time.Time
}

func NewHandler(rules RuleService, history PriceHistory, market MarketData, priceUnit string) *Handler {
	return &Handler{
		rules:   rules,
		history: history,
		market:  market,
		unit:    priceUnit,
		now:     time.Now,
	}
}

var argumentsPattern = regexp.MustCompile(`^(\S+)\s*(.+)?$`)

// ParseArguments splits "BTC 5%" into its first word and the rest.
func ParseArguments(args string) (string, string) {
	matches := argumentsPattern.FindStringSubmatch(strings.TrimSpace(args))

	if len(matches) >= 2 {
		first := matches[1]
		rest := ""
		if len(matches) == 3 {
			rest = strings.TrimSpace(matches[2])
		}
		return first, rest
	}
	return "", ""
}

func CommandHelp() string {
	return translation.Translate("Command help message")
}

func (h *Handler) CommandCurrencies() string {
	symbols := h.rules.ListInstruments()
	return translation.Translate("*Available symbols:*\n\n%s", helpers.EscapeMarkdownV2(strings.Join(symbols, ", ")))
}

func (h *Handler) price(p decimal.Decimal) string {
	s := "*" + helpers.FormatPrice(p, true) + "*"
	if h.unit != "" {
		s += " " + helpers.EscapeMarkdownV2(h.unit)
	}
	return s
}
