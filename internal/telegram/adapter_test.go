package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/mlbot/internal/types"
)

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSplitMessagePrefersParagraphs(t *testing.T) {
	block := strings.Repeat("x", 1000)
	text := strings.Join([]string{block, block, block, block, block}, "\n\n")

	parts := splitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	for i, p := range parts {
		if len(p) > maxTelegramMessage {
			t.Errorf("part %d too long: %d", i, len(p))
		}
		if strings.HasPrefix(p, "\n") || strings.HasSuffix(p, "\n") {
			t.Errorf("part %d has dangling newlines", i)
		}
	}
	if strings.Join(parts, "\n\n") != text {
		t.Error("expected split on paragraph boundary to preserve content")
	}
}

func TestSafeCutKeepsEscapes(t *testing.T) {
	text := strings.Repeat("a", maxTelegramMessage-1) + `\.` + "tail"
	parts := splitMessage(text)
	if strings.HasSuffix(parts[0], `\`) {
		t.Error("expected escape backslash to stay with its character")
	}
	if strings.Join(parts, "") != text {
		t.Error("expected content preserved")
	}

	runes := strings.Repeat("ñ", 3000)
	for _, p := range splitMessage(runes) {
		if !strings.HasPrefix(p, "ñ") || !strings.HasSuffix(p, "ñ") {
			t.Error("expected parts to break on rune boundaries")
		}
	}
}

// fakeBotAPI emulates the Bot API endpoints the adapter uses.
type fakeBotAPI struct {
	mu       sync.Mutex
	calls    []string
	forms    []url.Values
	failSend bool
	// hang, when set, stalls sendMessage and answerCallbackQuery until closed.
	hang chan struct{}
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
			return
		}
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		f.mu.Lock()
		f.calls = append(f.calls, method)
		f.forms = append(f.forms, r.PostForm)
		f.mu.Unlock()

		if f.hang != nil && (method == "sendMessage" || method == "answerCallbackQuery") {
			select {
			case <-f.hang:
			case <-r.Context().Done():
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"ML","username":"mlbot_test"}}`))
		case "sendMessage":
			if f.failSend {
				w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`))
				return
			}
			w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":42,"type":"private"}}}`))
		case "answerCallbackQuery", "setWebhook":
			w.Write([]byte(`{"ok":true,"result":true}`))
		case "getWebhookInfo":
			w.Write([]byte(`{"ok":true,"result":{"url":"https://bot.example/telegram-webhook","has_custom_certificate":false,"pending_update_count":2}}`))
		default:
			t.Errorf("unexpected method %s", method)
		}
	}
}

func (f *fakeBotAPI) formsFor(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []url.Values
	for i, c := range f.calls {
		if c == method {
			out = append(out, f.forms[i])
		}
	}
	return out
}

func newTestAdapter(t *testing.T, fake *fakeBotAPI) *Adapter {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	a, err := New(Config{
		Token:       "TEST",
		APIEndpoint: server.URL + "/bot%s/%s",
		HTTPClient:  server.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAdapterSendWithButton(t *testing.T) {
	fake := &fakeBotAPI{}
	a := newTestAdapter(t, fake)
	if a.Username() != "mlbot_test" {
		t.Errorf("expected username from getMe, got %q", a.Username())
	}

	msg := types.OutboundMessage{
		Text:    "*Nueva pregunta*",
		Buttons: []types.Button{{Text: "Responder pregunta", Data: "answer_555"}},
	}
	if err := a.Send(context.Background(), 42, msg); err != nil {
		t.Fatal(err)
	}

	sends := fake.formsFor("sendMessage")
	if len(sends) != 1 {
		t.Fatalf("expected 1 sendMessage, got %d", len(sends))
	}
	form := sends[0]
	if form.Get("chat_id") != "42" || form.Get("parse_mode") != "MarkdownV2" || form.Get("text") != "*Nueva pregunta*" {
		t.Errorf("unexpected form %v", form)
	}

	var markup struct {
		InlineKeyboard [][]struct {
			Text         string `json:"text"`
			CallbackData string `json:"callback_data"`
		} `json:"inline_keyboard"`
	}
	if err := json.Unmarshal([]byte(form.Get("reply_markup")), &markup); err != nil {
		t.Fatalf("decode reply_markup: %v", err)
	}
	if len(markup.InlineKeyboard) != 1 || markup.InlineKeyboard[0][0].CallbackData != "answer_555" {
		t.Errorf("unexpected keyboard %+v", markup)
	}
}

func TestAdapterSendFailureIsDeliveryError(t *testing.T) {
	fake := &fakeBotAPI{failSend: true}
	a := newTestAdapter(t, fake)

	err := a.Send(context.Background(), 42, types.OutboundMessage{Text: "bad *markdown"})
	var de *types.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.ChatID != 42 {
		t.Errorf("expected chat 42, got %s", de.ChatID)
	}
	if n := len(fake.formsFor("sendMessage")); n != 1 {
		t.Errorf("expected a single attempt without plain-text fallback, got %d", n)
	}
}

func TestAdapterSendGivesUpAtDeadline(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeBotAPI{hang: release}
	a := newTestAdapter(t, fake)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := a.Send(ctx, 42, types.OutboundMessage{Text: "hola"})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Send blocked %v past a 200ms deadline", elapsed)
	}
	var de *types.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestAdapterDefaultClientTimeout(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeBotAPI{hang: release}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	a, err := New(Config{
		Token:       "TEST",
		APIEndpoint: server.URL + "/bot%s/%s",
		Timeout:     100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := a.AnswerCallback(context.Background(), "cb-1"); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("AnswerCallback blocked %v with a 100ms client timeout", elapsed)
	}
}

func TestAdapterAnswerCallback(t *testing.T) {
	fake := &fakeBotAPI{}
	a := newTestAdapter(t, fake)

	if err := a.AnswerCallback(context.Background(), "cb-1"); err != nil {
		t.Fatal(err)
	}
	acks := fake.formsFor("answerCallbackQuery")
	if len(acks) != 1 || acks[0].Get("callback_query_id") != "cb-1" {
		t.Errorf("unexpected acks %v", acks)
	}
}

func TestAdapterWebhookRegistration(t *testing.T) {
	fake := &fakeBotAPI{}
	a := newTestAdapter(t, fake)

	if err := a.SetWebhook("https://bot.example/telegram-webhook", "s3cret"); err != nil {
		t.Fatal(err)
	}
	forms := fake.formsFor("setWebhook")
	if len(forms) != 1 {
		t.Fatalf("expected 1 setWebhook, got %d", len(forms))
	}
	if forms[0].Get("url") != "https://bot.example/telegram-webhook" || forms[0].Get("secret_token") != "s3cret" {
		t.Errorf("unexpected setWebhook form %v", forms[0])
	}

	info, err := a.WebhookInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.URL != "https://bot.example/telegram-webhook" || info.PendingUpdateCount != 2 {
		t.Errorf("unexpected webhook info %+v", info)
	}
}
