// Package telegram adapts the Telegram Bot API to the bot's messaging interfaces.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/mlbot/internal/telemetry"
	"github.com/user/mlbot/internal/types"
)

const maxTelegramMessage = 4096

// DefaultTimeout bounds each Bot API request when no HTTPClient is given.
const DefaultTimeout = 30 * time.Second

// Config configures the adapter.
type Config struct {
	Token string
	// APIEndpoint overrides the Bot API URL format, e.g. for tests.
	APIEndpoint string
	// Timeout applies to the default HTTP client; ignored with HTTPClient.
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *telemetry.Metrics
}

// Adapter sends messages through the Bot API.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	metrics *telemetry.Metrics
}

// New creates an adapter. It calls getMe to validate the token.
func New(cfg Config) (*Adapter, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot, metrics: cfg.Metrics}, nil
}

// Username returns the bot's username as reported by getMe.
func (a *Adapter) Username() string {
	return a.bot.Self.UserName
}

// Send delivers a MarkdownV2 message, splitting it when it exceeds the
// Bot API length limit. Buttons are attached to the last part.
func (a *Adapter) Send(ctx context.Context, chatID types.ChatID, msg types.OutboundMessage) error {
	parts := splitMessage(msg.Text)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return &types.DeliveryError{ChatID: chatID, Err: err}
		}

		out := tgbotapi.NewMessage(int64(chatID), part)
		out.ParseMode = tgbotapi.ModeMarkdownV2
		out.DisableWebPagePreview = true
		if i == len(parts)-1 && len(msg.Buttons) > 0 {
			out.ReplyMarkup = inlineKeyboard(msg.Buttons)
		}

		if err := a.request(ctx, out); err != nil {
			a.metrics.RecordMessage(ctx, "error")
			slog.Error("telegram send failed", "chat_id", chatID, "part", i+1, "parts", len(parts), "error", err)
			return &types.DeliveryError{ChatID: chatID, Err: err}
		}
		a.metrics.RecordMessage(ctx, "ok")
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := a.request(ctx, tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// SetWebhook registers url as the update webhook. A non-empty secret is
// echoed by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (a *Adapter) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["message","callback_query"]`

	resp, err := a.bot.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	return nil
}

// WebhookInfo returns the current webhook registration.
func (a *Adapter) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	info, err := a.bot.GetWebhookInfo()
	if err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("get webhook info: %w", err)
	}
	return info, nil
}

// request performs c and gives up when ctx is done. tgbotapi takes no
// context, so an abandoned call finishes in the background, bounded by the
// HTTP client timeout.
func (a *Adapter) request(ctx context.Context, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Request(c)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func inlineKeyboard(buttons []types.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitMessage breaks text into parts of at most maxTelegramMessage bytes,
// preferring blank lines, then line breaks, so formatting entities stay intact.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		window := text[:maxTelegramMessage]
		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, "\n")
		}
		if cut <= 0 {
			cut = safeCut(text, maxTelegramMessage)
		}
		if cut <= 0 {
			cut = maxTelegramMessage
		}
		parts = append(parts, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// safeCut returns a cut point at or below limit that does not split a UTF-8
// sequence or separate an escape backslash from the character it escapes.
func safeCut(text string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	backslashes := 0
	for i := cut - 1; i >= 0 && text[i] == '\\'; i-- {
		backslashes++
	}
	if backslashes%2 == 1 {
		cut--
	}
	return cut
}
