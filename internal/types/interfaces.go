// internal/types/interfaces.go
package types

import (
	"context"

	"github.com/user/mlbot/pkg/mercadolibre"
)

// CredentialStore persists the single OAuth credential record.
// Load returns (nil, nil) when nothing has been stored yet.
type CredentialStore interface {
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	Close() error
}

// ChatSessionStore maps chat ids to conversation state. A missing record is Idle.
type ChatSessionStore interface {
	Get(ctx context.Context, chatID ChatID) (ChatSession, error)
	Set(ctx context.Context, chatID ChatID, session ChatSession) error
	Clear(ctx context.Context, chatID ChatID) error
}

// Messenger delivers formatted messages to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID ChatID, msg OutboundMessage) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// TokenSource hands out a credential that is valid for immediate use.
type TokenSource interface {
	EnsureValid(ctx context.Context) (*Credential, error)
}

// Marketplace is the subset of the Mercado Libre API the bot uses.
type Marketplace interface {
	SearchItems(ctx context.Context, token, userID string, offset, limit int) (*mercadolibre.ItemSearch, error)
	GetItems(ctx context.Context, token string, ids []string) ([]mercadolibre.Item, error)
	GetItem(ctx context.Context, token, itemID string) (*mercadolibre.Item, error)
	SearchOrders(ctx context.Context, token, sellerID string, limit int) ([]mercadolibre.Order, error)
	GetOrder(ctx context.Context, token, orderID string) (*mercadolibre.Order, error)
	SearchQuestions(ctx context.Context, token, sellerID string, limit int) ([]mercadolibre.Question, error)
	GetQuestion(ctx context.Context, token, questionID string) (*mercadolibre.Question, error)
	AnswerQuestion(ctx context.Context, token, questionID, text string) error
	UpdateStock(ctx context.Context, token, itemID string, quantity int) error
	GetShipment(ctx context.Context, token, shipmentID string) (*mercadolibre.Shipment, error)
}
