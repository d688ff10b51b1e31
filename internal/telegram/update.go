package telegram

import (
	"encoding/json"
	"fmt"
	"io"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/mlbot/internal/types"
)

// SecretHeader carries the webhook secret configured with SetWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// ParseUpdate decodes a webhook body. It returns a nil event for updates
// the bot does not act on, such as edits or stickers.
func ParseUpdate(r io.Reader) (types.InboundChatEvent, error) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r).Decode(&update); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	return EventFromUpdate(update), nil
}

// EventFromUpdate maps an update to a text message or button press.
func EventFromUpdate(update tgbotapi.Update) types.InboundChatEvent {
	if msg := update.Message; msg != nil && msg.Chat != nil && msg.Text != "" {
		return types.TextMessage{ChatID: types.ChatID(msg.Chat.ID), Text: msg.Text}
	}
	if cb := update.CallbackQuery; cb != nil && cb.Data != "" && cb.Message != nil && cb.Message.Chat != nil {
		return types.ButtonPress{
			ChatID:     types.ChatID(cb.Message.Chat.ID),
			CallbackID: cb.ID,
			Data:       cb.Data,
		}
	}
	return nil
}
