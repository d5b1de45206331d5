package commands

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/types"
	"ramzinex-alert-bot/lib/helpers"
	"ramzinex-alert-bot/lib/translation"
)

// CommandSet handles "/set <symbol> <percent>".
func (h *Handler) CommandSet(ctx context.Context, userID int64, args string) string {
	log.Debugf("processing command /set with argument :%s", args)

	symbol, threshold := ParseArguments(args)
	if symbol == "" || threshold == "" {
		return helpers.EscapeMarkdownV2(translation.Translate("Usage: /set <symbol> <percent>, e.g. /set BTC 5"))
	}

	rule, err := h.rules.SetAlert(ctx, userID, symbol, threshold)
	if errors.Is(err, types.ErrValidation) {
		return "⚠️ " + helpers.EscapeMarkdownV2(err.Error())
	}
	if err != nil {
		log.WithError(err).WithField("user", userID).Error("Failed to save alert")
		return helpers.EscapeMarkdownV2(translation.Translate("Failed to save alert. Please try again later."))
	}

	text := translation.Translate("✅ Alert set for *%s*: you will be notified on a move of %s",
		helpers.EscapeMarkdownV2(rule.Instrument.Symbol),
		helpers.FormatPercentage(rule.ThresholdPercent),
	)
	if rule.Primed() {
		return text + "\n" + translation.Translate("Baseline price: %s", h.price(rule.LastNotifiedPrice.Decimal))
	}
	return text + "\n" + helpers.EscapeMarkdownV2(translation.Translate("No price is available yet, the baseline will be set on the next check."))
}

// CommandList handles "/list".
func (h *Handler) CommandList(ctx context.Context, userID int64) string {
	rules, err := h.rules.ListAlerts(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user", userID).Error("Error fetching alerts")
		return helpers.EscapeMarkdownV2(translation.Translate("Failed to fetch alerts. Please try again later."))
	}
	if len(rules) == 0 {
		return helpers.EscapeMarkdownV2(translation.Translate("You have no active alerts."))
	}

	now := h.now()
	var list strings.Builder
	list.WriteString(translation.Translate("*Your active alerts:*"))
	list.WriteString("\n\n")
	for _, rule := range rules {
		baseline := helpers.EscapeMarkdownV2(translation.Translate("not set yet"))
		if rule.Primed() {
			baseline = h.price(rule.LastNotifiedPrice.Decimal)
		}
		list.WriteString(translation.Translate("▫️ *%s* %s from %s, set %s",
			helpers.EscapeMarkdownV2(rule.Instrument.Symbol),
			helpers.FormatPercentage(rule.ThresholdPercent),
			baseline,
			helpers.EscapeMarkdownV2(helpers.FormatAge(rule.CreatedAt, now)),
		))
		list.WriteString("\n")
	}
	return list.String()
}

// CommandRemove handles "/remove <symbol>".
func (h *Handler) CommandRemove(ctx context.Context, userID int64, args string) string {
	symbol, _ := ParseArguments(args)
	if symbol == "" {
		return helpers.EscapeMarkdownV2(translation.Translate("Usage: /remove <symbol>, e.g. /remove BTC"))
	}

	removed, err := h.rules.RemoveAlert(ctx, userID, symbol)
	if errors.Is(err, types.ErrValidation) {
		return "⚠️ " + helpers.EscapeMarkdownV2(err.Error())
	}
	if err != nil {
		log.WithError(err).WithField("user", userID).Error("Failed to remove alert")
		return helpers.EscapeMarkdownV2(translation.Translate("Failed to remove alert. Please try again later."))
	}

	symbol = helpers.EscapeMarkdownV2(strings.ToUpper(symbol))
	if !removed {
		return translation.Translate("You have no alert for *%s*", symbol)
	}
	return translation.Translate("🗑 Alert for *%s* removed", symbol)
}
