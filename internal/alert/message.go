package alert

import (
	"strings"

	"ramzinex-alert-bot/internal/types"
	"ramzinex-alert-bot/lib/helpers"
	"ramzinex-alert-bot/lib/translation"
)

// FormatNotification renders a fired alert as a MarkdownV2 message.
func FormatNotification(n types.Notification, unit string) string {
	arrow, verb := "📈", translation.Translate("up")
	if n.Direction == types.Down {
		arrow, verb = "📉", translation.Translate("down")
	}

	suffix := ""
	if unit != "" {
		suffix = " " + helpers.EscapeMarkdownV2(unit)
	}

	var b strings.Builder
	b.WriteString(translation.Translate("🚨 *Price Alert Triggered*"))
	b.WriteString("\n\n")
	b.WriteString(translation.Translate("%s *%s* is %s *%s%%*",
		arrow,
		helpers.EscapeMarkdownV2(n.Instrument.Symbol),
		verb,
		helpers.EscapeMarkdownV2(helpers.FormatPercent(n.ChangePercent)),
	))
	b.WriteString("\n")
	b.WriteString(translation.Translate("Previous price: *%s*%s", helpers.FormatPrice(n.PreviousPrice, true), suffix))
	b.WriteString("\n")
	b.WriteString(translation.Translate("Current price: *%s*%s", helpers.FormatPrice(n.CurrentPrice, true), suffix))
	b.WriteString("\n")
	b.WriteString(translation.Translate("Threshold: %s", helpers.FormatPercentage(n.Threshold)))
	b.WriteString("\n")
	b.WriteString("🕒 " + helpers.EscapeMarkdownV2(helpers.FormatDate(n.At)))
	return b.String()
}
