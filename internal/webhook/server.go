// Package webhook exposes the HTTP endpoints the marketplace, the messenger
// and the operator's browser call.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/mlbot/internal/render"
	"github.com/user/mlbot/internal/telegram"
	"github.com/user/mlbot/internal/types"
)

// DefaultChatTimeout bounds the handling of one messenger update.
const DefaultChatTimeout = 60 * time.Second

// Authorizer completes the OAuth authorization-code flow.
type Authorizer interface {
	AuthCodeURL() string
	Authorize(ctx context.Context, code string) (*types.Credential, error)
}

// NotificationHandler accepts marketplace notifications.
type NotificationHandler interface {
	Handle(ctx context.Context, n types.Notification) error
}

// ChatHandler processes messenger events to completion.
type ChatHandler interface {
	Handle(ctx context.Context, ev types.InboundChatEvent) error
}

// Config tunes a Server.
type Config struct {
	OperatorChat types.ChatID
	// WebhookSecret, when set, must match the messenger's secret token header.
	WebhookSecret string
	ChatTimeout   time.Duration
}

// Server routes webhook traffic to the bot components.
type Server struct {
	auth          Authorizer
	notifications NotificationHandler
	chat          ChatHandler
	messenger     types.Messenger
	cfg           Config
	router        chi.Router
}

// NewServer creates a Server with all routes registered.
func NewServer(auth Authorizer, notifications NotificationHandler, chat ChatHandler, messenger types.Messenger, cfg Config) *Server {
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = DefaultChatTimeout
	}
	s := &Server{
		auth:          auth,
		notifications: notifications,
		chat:          chat,
		messenger:     messenger,
		cfg:           cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Get("/", s.handleIndex)
	r.Get("/callback", s.handleCallback)
	r.Post("/webhook", s.handleNotification)
	r.Post("/telegram-webhook", s.handleTelegram)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	link := html.EscapeString(s.auth.AuthCodeURL())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<h2>Vincular Bot con Mercado Libre</h2><p><a href="` + link + `">Hacé clic acá para autorizar la conexión</a></p>`))
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Error: Falta el código de autorización.", http.StatusBadRequest)
		return
	}

	if _, err := s.auth.Authorize(r.Context(), code); err != nil {
		slog.Error("authorization code exchange failed", "error", err)
		http.Error(w, "Error al obtener el token de Mercado Libre.", http.StatusInternalServerError)
		return
	}

	if s.cfg.OperatorChat != 0 {
		if err := s.messenger.Send(r.Context(), s.cfg.OperatorChat, render.Linked()); err != nil {
			slog.Warn("failed to confirm authorization to operator", "chat_id", s.cfg.OperatorChat, "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<h3>¡Cuenta vinculada con éxito!</h3><p>Ya podés cerrar esta ventana y usar el bot en Telegram.</p>"))
}

// handleNotification always answers 200 so the marketplace does not
// redeliver; failures are logged.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusOK)

	var n types.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		slog.Warn("invalid marketplace notification", "error", err)
		return
	}
	slog.Info("marketplace notification received", "topic", n.Topic, "resource", n.Resource, "attempts", n.Attempts)

	if err := s.notifications.Handle(r.Context(), n); err != nil {
		slog.Error("failed to accept notification", "topic", n.Topic, "resource", n.Resource, "error", err)
	}
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret != "" {
		got := r.Header.Get(telegram.SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
			slog.Warn("rejected messenger update with bad secret", "remote", r.RemoteAddr)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	defer w.WriteHeader(http.StatusOK)

	ev, err := telegram.ParseUpdate(r.Body)
	if err != nil {
		slog.Warn("invalid messenger update", "error", err)
		return
	}
	if ev == nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	if err := s.chat.Handle(ctx, ev); err != nil {
		slog.Error("chat event failed", "chat_id", ev.Chat(), "error", err)
	}
}

// requestLogger logs each request through slog once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
