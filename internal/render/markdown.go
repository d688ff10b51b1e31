// Package render builds the MarkdownV2 messages the bot sends.
package render

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	backslash    = strings.NewReplacer(`\`, `\\`)
	codeReplacer = strings.NewReplacer(`\`, `\\`, "`", "\\`")
	urlReplacer  = strings.NewReplacer(`\`, `\\`, ")", `\)`)
)

// Escape makes arbitrary text safe to embed in a MarkdownV2 message.
func Escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, backslash.Replace(s))
}

// Bold renders s in bold.
func Bold(s string) string {
	return "*" + Escape(s) + "*"
}

// Italic renders s in italics.
func Italic(s string) string {
	return "_" + Escape(s) + "_"
}

// Code renders s as an inline code span.
func Code(s string) string {
	return "`" + codeReplacer.Replace(s) + "`"
}

// Link renders an inline link.
func Link(text, url string) string {
	return "[" + Escape(text) + "](" + urlReplacer.Replace(url) + ")"
}

// Int formats an integer.
func Int[T ~int | ~int64](n T) string {
	return strconv.FormatInt(int64(n), 10)
}

// Amount formats a price with its currency, e.g. "ARS 1500.5", escaped.
func Amount(currency string, value float64) string {
	return Escape(strings.TrimSpace(currency + " " + strconv.FormatFloat(value, 'f', -1, 64)))
}
