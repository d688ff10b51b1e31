// Package auth manages the marketplace OAuth credential lifecycle.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Default Mercado Libre endpoints.
const (
	DefaultAuthURL  = "https://auth.mercadolibre.com.ar/authorization"
	DefaultTokenURL = "https://api.mercadolibre.com/oauth/token"
)

// TokenResponse is the useful part of a token endpoint response.
// Empty fields mean the upstream omitted them.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UserID       string
}

// TokenClient talks to the OAuth authorization server.
type TokenClient interface {
	AuthCodeURL() string
	Exchange(ctx context.Context, code string) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// OAuthConfig describes the registered application.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client
}

// OAuthClient implements TokenClient with golang.org/x/oauth2.
type OAuthClient struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuthClient builds a client. Empty URLs fall back to the Mercado Libre defaults.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
	}
}

// AuthCodeURL returns the link the operator opens to grant access.
func (c *OAuthClient) AuthCodeURL() string {
	return c.config.AuthCodeURL("")
}

// Exchange trades an authorization code for a token.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	tok, err := c.config.Exchange(c.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return toResponse(tok), nil
}

// Refresh obtains a new access token from refreshToken.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	src := c.config.TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	resp := toResponse(tok)
	// oauth2 copies the old refresh token forward when the server omits one.
	if resp.RefreshToken == refreshToken {
		resp.RefreshToken = ""
	}
	return resp, nil
}

func (c *OAuthClient) withClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toResponse(tok *oauth2.Token) *TokenResponse {
	return &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		UserID:       extraString(tok.Extra("user_id")),
	}
}

func extraString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}
