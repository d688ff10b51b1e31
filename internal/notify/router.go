// Package notify turns marketplace webhook notifications into operator
// chat messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/mlbot/internal/render"
	"github.com/user/mlbot/internal/telemetry"
	"github.com/user/mlbot/internal/types"
	"github.com/user/mlbot/pkg/mercadolibre"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxConcurrent  = 4
	DefaultRequestTimeout = 30 * time.Second
)

// Config tunes a Router.
type Config struct {
	// OperatorChat receives every notification. Zero drops them.
	OperatorChat   types.ChatID
	MaxConcurrent  int64
	RequestTimeout time.Duration
	Retry          *RetryPolicy
	Metrics        *telemetry.Metrics
}

// Router resolves notifications against the marketplace and relays them to
// the operator chat. Handle only enqueues; work happens on the queue.
type Router struct {
	creds     types.TokenSource
	market    types.Marketplace
	messenger types.Messenger
	queue     *Queue
	cfg       Config
}

// NewRouter creates a Router. Call Start before Handle.
func NewRouter(creds types.TokenSource, market types.Marketplace, messenger types.Messenger, cfg Config) *Router {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	r := &Router{
		creds:     creds,
		market:    market,
		messenger: messenger,
		queue:     NewQueue(cfg.MaxConcurrent),
		cfg:       cfg,
	}
	r.queue.SetProcessor(r.process)
	return r
}

// Start begins processing. ctx bounds the lifetime of every run.
func (r *Router) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop cancels in-flight runs and waits for the lanes to exit.
func (r *Router) Stop() {
	r.queue.Stop()
}

// WaitIdle blocks until every accepted notification has been processed.
func (r *Router) WaitIdle(timeout time.Duration) bool {
	return r.queue.WaitIdle(timeout)
}

// Handle accepts a notification for asynchronous processing.
func (r *Router) Handle(_ context.Context, n types.Notification) error {
	run := NewRun(n)
	if err := r.queue.Enqueue(run); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	slog.Debug("notification queued", "run_id", run.ID, "topic", n.Topic, "resource", n.Resource)
	return nil
}

func (r *Router) process(ctx context.Context, run *Run) error {
	n := run.Notification
	log := slog.With("run_id", run.ID, "topic", n.Topic, "resource", n.Resource)

	if r.cfg.OperatorChat == 0 {
		log.Warn("no operator chat configured, dropping notification")
		r.cfg.Metrics.RecordNotification(ctx, n.Topic, "dropped")
		return nil
	}

	credCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	cred, err := r.creds.EnsureValid(credCtx)
	cancel()
	if err != nil {
		log.Warn("no usable credential, dropping notification", "error", err)
		r.cfg.Metrics.RecordNotification(ctx, n.Topic, "dropped")
		return nil
	}

	var msg types.OutboundMessage
	err = r.cfg.Retry.Execute(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
		var err error
		msg, err = r.build(attemptCtx, cred.AccessToken, n)
		return err
	})
	if err != nil {
		r.cfg.Metrics.RecordNotification(ctx, n.Topic, "error")
		logFetchFailure(log, err)
		return fmt.Errorf("resolve %s: %w", n.Topic, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()
	if err := r.messenger.Send(sendCtx, r.cfg.OperatorChat, msg); err != nil {
		r.cfg.Metrics.RecordNotification(ctx, n.Topic, "error")
		return fmt.Errorf("send notification: %w", err)
	}

	r.cfg.Metrics.RecordNotification(ctx, n.Topic, "ok")
	log.Info("notification relayed", "chat_id", r.cfg.OperatorChat)
	return nil
}

// build fetches the resource a notification points to and renders it.
func (r *Router) build(ctx context.Context, token string, n types.Notification) (types.OutboundMessage, error) {
	id := types.LastPathSegment(n.Resource)

	switch n.Topic {
	case types.TopicQuestions:
		q, err := r.market.GetQuestion(ctx, token, id)
		if err != nil {
			return types.OutboundMessage{}, fmt.Errorf("get question %s: %w", id, err)
		}
		return render.QuestionNotification(q, r.itemTitle(ctx, token, q.ItemID)), nil

	case types.TopicOrders:
		o, err := r.market.GetOrder(ctx, token, id)
		if err != nil {
			return types.OutboundMessage{}, fmt.Errorf("get order %s: %w", id, err)
		}
		return render.OrderNotification(o), nil

	default:
		return render.GenericNotification(n.Topic, n.Resource), nil
	}
}

// itemTitle looks up an item's title, falling back to its id.
func (r *Router) itemTitle(ctx context.Context, token, itemID string) string {
	if itemID == "" {
		return ""
	}
	item, err := r.market.GetItem(ctx, token, itemID)
	if err != nil || item.Title == "" {
		if err != nil {
			slog.Warn("item title lookup failed", "item_id", itemID, "error", err)
		}
		return itemID
	}
	return item.Title
}

func logFetchFailure(log *slog.Logger, err error) {
	var apiErr *mercadolibre.APIError
	if errors.As(err, &apiErr) {
		log.Error("marketplace fetch failed", "status", apiErr.Status, "method", apiErr.Method, "path", apiErr.Path, "body", apiErr.Body)
		return
	}
	log.Error("marketplace fetch failed", "error", err)
}
