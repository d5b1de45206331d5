package helpers

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var markdownV2Replacer = strings.NewReplacer(
	"\\", "\\\\",
	".", "\\.", "-", "\\-", "_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
	"+", "\\+", "=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", "!", "\\!",
)

func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

func FormatPriceUS(price float64, escapeMarkdown bool) string {
	decimals := 6

	if price >= 1000 {
		decimals = 0
	} else if price > 1.2 {
		decimals = 2
	} else if price < 0.00001 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.*f", decimals, price)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatPrice formats an exchange price with thousand separators. Trailing
// zeros of the fractional part are dropped.
func FormatPrice(price decimal.Decimal, escapeMarkdown bool) string {
	places := int32(8)
	abs := price.Abs()
	if abs.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		places = 0
	} else if abs.GreaterThan(decimal.NewFromFloat(1.2)) {
		places = 2
	}

	rounded := price.Round(places)
	intPart := rounded.Truncate(0)
	frac := strings.TrimPrefix(rounded.Sub(intPart).Abs().String(), "0")

	formatted := humanize.BigComma(intPart.BigInt())
	if rounded.IsNegative() && intPart.IsZero() {
		formatted = "-" + formatted
	}
	if frac != "" && frac != "0" {
		formatted += frac
	}

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatPercent renders a signed percentage with two decimals, e.g. +5.20.
func FormatPercent(pct decimal.Decimal) string {
	s := pct.StringFixed(2)
	if pct.Round(2).IsPositive() {
		return "+" + s
	}
	return s
}

func FormatPercentage(pct decimal.Decimal) string {
	return EscapeMarkdownV2(pct.String() + "%")
}

func FormatSupplyUS(supply int64) string {
	p := message.NewPrinter(language.English)
	return EscapeMarkdownV2(p.Sprintf("%d", supply))
}

func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatAge describes how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if now.Sub(t) < time.Second {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
