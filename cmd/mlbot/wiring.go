package main

import (
	"fmt"

	"github.com/user/mlbot/internal/auth"
	"github.com/user/mlbot/internal/config"
	"github.com/user/mlbot/internal/state"
	"github.com/user/mlbot/internal/telegram"
	"github.com/user/mlbot/internal/telemetry"
	"github.com/user/mlbot/internal/types"
)

// openAuth opens the configured credential store and wraps it in a token
// manager. The caller closes the store.
func openAuth(cfg *config.Config, metrics *telemetry.Metrics) (*auth.Manager, types.CredentialStore, error) {
	store, err := state.OpenCredentialStore(cfg.Credentials.DSN, cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open credential store: %w", err)
	}
	client := auth.NewOAuthClient(auth.OAuthConfig{
		ClientID:     cfg.MercadoLibre.ClientID,
		ClientSecret: cfg.MercadoLibre.ClientSecret,
		RedirectURL:  cfg.MercadoLibre.RedirectURI,
		AuthURL:      cfg.MercadoLibre.AuthURL,
		TokenURL:     cfg.MercadoLibre.TokenURL,
	})
	manager := auth.NewManager(store, client, auth.ManagerConfig{
		Skew:           cfg.RefreshSkew(),
		RequestTimeout: cfg.RequestTimeout(),
		Metrics:        metrics,
	})
	return manager, store, nil
}

func newMessenger(cfg *config.Config, metrics *telemetry.Metrics) (*telegram.Adapter, error) {
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram.token is not set (or set TELEGRAM_BOT_TOKEN)")
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		Timeout:     cfg.RequestTimeout(),
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram adapter: %w", err)
	}
	return adapter, nil
}
