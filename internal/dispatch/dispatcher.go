// Package dispatch routes operator chat events to marketplace operations.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/mlbot/internal/command"
	"github.com/user/mlbot/internal/render"
	"github.com/user/mlbot/internal/state"
	"github.com/user/mlbot/internal/telemetry"
	"github.com/user/mlbot/internal/types"
	"github.com/user/mlbot/pkg/mercadolibre"
)

// Defaults for Config fields left at zero.
const (
	DefaultProductPageSize = 50
	DefaultRecentLimit     = 5
	DefaultRequestTimeout  = 30 * time.Second
)

// Credentials is the part of the token manager the dispatcher needs.
type Credentials interface {
	types.TokenSource
	Current(ctx context.Context) (*types.Credential, error)
}

// Config tunes a Dispatcher.
type Config struct {
	// OperatorChat restricts commands to one chat. Zero accepts any chat.
	OperatorChat    types.ChatID
	ProductPageSize int
	RecentLimit     int
	RequestTimeout  time.Duration
	// AuthURL is linked from the re-authorization reply.
	AuthURL string
	Metrics *telemetry.Metrics
}

// Dispatcher runs the per-chat conversation state machine.
type Dispatcher struct {
	sessions  types.ChatSessionStore
	creds     Credentials
	market    types.Marketplace
	messenger types.Messenger
	locks     *state.KeyedMutex[types.ChatID]
	cfg       Config
	now       func() time.Time
}

// New creates a Dispatcher.
func New(sessions types.ChatSessionStore, creds Credentials, market types.Marketplace, messenger types.Messenger, cfg Config) *Dispatcher {
	if cfg.ProductPageSize <= 0 {
		cfg.ProductPageSize = DefaultProductPageSize
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Dispatcher{
		sessions:  sessions,
		creds:     creds,
		market:    market,
		messenger: messenger,
		locks:     state.NewKeyedMutex[types.ChatID](),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Handle processes one inbound chat event to completion, including the reply.
// Events for the same chat are handled one at a time.
func (d *Dispatcher) Handle(ctx context.Context, ev types.InboundChatEvent) error {
	if ev == nil {
		return nil
	}
	chatID := ev.Chat()

	if press, ok := ev.(types.ButtonPress); ok {
		if err := d.messenger.AnswerCallback(ctx, press.CallbackID); err != nil {
			slog.Warn("failed to acknowledge button", "chat_id", chatID, "error", err)
		}
	}

	if d.cfg.OperatorChat != 0 && chatID != d.cfg.OperatorChat {
		slog.Warn("ignoring event from non-operator chat", "chat_id", chatID)
		return nil
	}

	unlock := d.locks.Lock(chatID)
	defer unlock()

	switch ev := ev.(type) {
	case types.ButtonPress:
		return d.handleButton(ctx, ev)
	case types.TextMessage:
		return d.handleText(ctx, ev)
	default:
		return fmt.Errorf("unsupported chat event %T", ev)
	}
}

func (d *Dispatcher) handleButton(ctx context.Context, press types.ButtonPress) error {
	slog.Info("button pressed", "chat_id", press.ChatID, "data", press.Data)

	questionID, ok := types.ParseAnswerCallbackData(press.Data)
	if !ok {
		return d.reply(ctx, press.ChatID, render.UnrecognizedButton())
	}
	return d.startAnswer(ctx, press.ChatID, questionID)
}

func (d *Dispatcher) handleText(ctx context.Context, msg types.TextMessage) error {
	session, err := d.sessions.Get(ctx, msg.ChatID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if !session.IsIdle() && !command.IsCommand(msg.Text) {
		return d.submitAnswer(ctx, msg.ChatID, session.PendingQuestionID, msg.Text)
	}

	slog.Info("command received", "chat_id", msg.ChatID, "text", msg.Text)
	cmd, err := command.Parse(msg.Text)
	if err != nil {
		var ue *command.UsageError
		if errors.As(err, &ue) {
			d.cfg.Metrics.RecordCommand(ctx, ue.Command)
			return d.reply(ctx, msg.ChatID, render.Usage(ue.Usage))
		}
		return err
	}
	d.cfg.Metrics.RecordCommand(ctx, cmd.Name())

	if cmd.Public() {
		return d.runPublic(ctx, msg.ChatID, cmd)
	}

	opCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	cred, err := d.creds.EnsureValid(opCtx)
	if err != nil {
		if types.IsAuthError(err) {
			slog.Warn("command needs authorization", "chat_id", msg.ChatID, "command", cmd.Name(), "error", err)
			return d.reply(ctx, msg.ChatID, render.AuthRequired(d.cfg.AuthURL))
		}
		logUpstream("ensure credential", msg.ChatID, err)
		return d.reply(ctx, msg.ChatID, render.Failure())
	}

	return d.runPrivate(ctx, opCtx, msg.ChatID, cred, cmd)
}

func (d *Dispatcher) runPublic(ctx context.Context, chatID types.ChatID, cmd command.Command) error {
	switch cmd.(type) {
	case command.Start, command.Menu, command.Help:
		return d.reply(ctx, chatID, render.Menu())
	case command.Status:
		cred, err := d.creds.Current(ctx)
		if err != nil && !errors.Is(err, types.ErrAuthRequired) {
			slog.Warn("failed to read credential for status", "error", err)
		}
		return d.reply(ctx, chatID, render.Status(cred, d.now()))
	default:
		return d.reply(ctx, chatID, render.Unrecognized())
	}
}

func (d *Dispatcher) runPrivate(ctx, opCtx context.Context, chatID types.ChatID, cred *types.Credential, cmd command.Command) error {
	token := cred.AccessToken

	switch c := cmd.(type) {
	case command.ProductInfo:
		items, total, err := d.activeItems(opCtx, token, cred.AccountID)
		if err != nil {
			logUpstream("list products", chatID, err)
			return d.reply(ctx, chatID, render.Failure())
		}
		return d.reply(ctx, chatID, render.Products(items, total))

	case command.CheckSales:
		orders, err := d.market.SearchOrders(opCtx, token, cred.AccountID, d.cfg.RecentLimit)
		if err != nil {
			logUpstream("search orders", chatID, err)
			return d.reply(ctx, chatID, render.Failure())
		}
		return d.reply(ctx, chatID, render.Sales(orders))

	case command.CheckQuestions:
		questions, err := d.market.SearchQuestions(opCtx, token, cred.AccountID, d.cfg.RecentLimit)
		if err != nil {
			logUpstream("search questions", chatID, err)
			return d.reply(ctx, chatID, render.Failure())
		}
		return d.reply(ctx, chatID, render.Questions(questions))

	case command.Respond:
		return d.startAnswer(ctx, chatID, c.QuestionID)

	case command.SetStock:
		if err := d.market.UpdateStock(opCtx, token, c.ItemID, c.Quantity); err != nil {
			logUpstream("update stock", chatID, err)
			return d.reply(ctx, chatID, render.StockFailed(c.ItemID))
		}
		slog.Info("stock updated", "chat_id", chatID, "item_id", c.ItemID, "quantity", c.Quantity)
		return d.reply(ctx, chatID, render.StockUpdated(c.ItemID, c.Quantity))

	case command.CheckShipment:
		shipment, err := d.market.GetShipment(opCtx, token, c.ShipmentID)
		if err != nil {
			logUpstream("get shipment", chatID, err)
			return d.reply(ctx, chatID, render.ShipmentFailed(c.ShipmentID))
		}
		return d.reply(ctx, chatID, render.Shipment(shipment))

	default:
		return d.reply(ctx, chatID, render.Unrecognized())
	}
}

// activeItems pages through the seller's active item ids and fetches their details.
func (d *Dispatcher) activeItems(ctx context.Context, token, accountID string) ([]mercadolibre.Item, int, error) {
	var ids []string
	total := 0
	for offset := 0; ; {
		page, err := d.market.SearchItems(ctx, token, accountID, offset, d.cfg.ProductPageSize)
		if err != nil {
			return nil, 0, err
		}
		total = page.Paging.Total
		ids = append(ids, page.Results...)
		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= total {
			break
		}
	}
	if len(ids) == 0 {
		return nil, total, nil
	}
	items, err := d.market.GetItems(ctx, token, ids)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// startAnswer puts the chat in AwaitingAnswer, replacing any pending question.
func (d *Dispatcher) startAnswer(ctx context.Context, chatID types.ChatID, questionID string) error {
	if err := d.sessions.Set(ctx, chatID, types.AwaitingAnswer(questionID)); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	slog.Info("awaiting answer", "chat_id", chatID, "question_id", questionID)
	return d.reply(ctx, chatID, render.AnswerPrompt(questionID))
}

// submitAnswer posts text as the answer to questionID. The session is
// cleared whatever the outcome.
func (d *Dispatcher) submitAnswer(ctx context.Context, chatID types.ChatID, questionID, text string) error {
	d.cfg.Metrics.RecordCommand(ctx, "answer")

	opCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	err := d.answer(opCtx, questionID, text)
	if clearErr := d.sessions.Clear(ctx, chatID); clearErr != nil {
		slog.Error("failed to clear session", "chat_id", chatID, "error", clearErr)
	}

	switch {
	case err == nil:
		slog.Info("answer sent", "chat_id", chatID, "question_id", questionID)
		return d.reply(ctx, chatID, render.AnswerSent())
	case types.IsAuthError(err):
		slog.Warn("answer needs authorization", "chat_id", chatID, "question_id", questionID, "error", err)
		return d.reply(ctx, chatID, render.AuthRequired(d.cfg.AuthURL))
	default:
		logUpstream("answer question", chatID, err)
		return d.reply(ctx, chatID, render.AnswerFailed(failureReason(err)))
	}
}

func (d *Dispatcher) answer(ctx context.Context, questionID, text string) error {
	cred, err := d.creds.EnsureValid(ctx)
	if err != nil {
		return err
	}
	return d.market.AnswerQuestion(ctx, cred.AccessToken, questionID, text)
}

// reply sends msg on a context detached from the caller so an expired
// operation deadline still lets the failure reply through.
func (d *Dispatcher) reply(ctx context.Context, chatID types.ChatID, msg types.OutboundMessage) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.RequestTimeout)
	defer cancel()

	if err := d.messenger.Send(sendCtx, chatID, msg); err != nil {
		slog.Error("failed to send reply", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}

func failureReason(err error) string {
	var apiErr *mercadolibre.APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Mercado Libre respondió %d", apiErr.Status)
	case errors.Is(err, context.DeadlineExceeded):
		return "tiempo de espera agotado"
	default:
		return ""
	}
}

func logUpstream(op string, chatID types.ChatID, err error) {
	var apiErr *mercadolibre.APIError
	if errors.As(err, &apiErr) {
		slog.Error("marketplace request failed", "op", op, "chat_id", chatID,
			"status", apiErr.Status, "method", apiErr.Method, "path", apiErr.Path, "body", apiErr.Body)
		return
	}
	slog.Error("marketplace request failed", "op", op, "chat_id", chatID, "error", err)
}
