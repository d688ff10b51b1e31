package notify

import (
	"context"
	"sync"

	"github.com/user/mlbot/internal/types"
	"github.com/user/mlbot/pkg/mercadolibre"
)

type fakeCreds struct {
	mu    sync.Mutex
	cred  *types.Credential
	calls int
}

func (f *fakeCreds) EnsureValid(context.Context) (*types.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.cred == nil {
		return nil, types.ErrAuthRequired
	}
	c := *f.cred
	return &c, nil
}

// fakeMarket serves questions and orders. questionErrs are returned, in
// order, by successive GetQuestion calls before it succeeds.
type fakeMarket struct {
	mu sync.Mutex

	question     *mercadolibre.Question
	questionErrs []error
	questionHits int
	item         *mercadolibre.Item
	itemErr      error
	order        *mercadolibre.Order
	orderErr     error
	tokens       []string
}

func (f *fakeMarket) SearchItems(context.Context, string, string, int, int) (*mercadolibre.ItemSearch, error) {
	return &mercadolibre.ItemSearch{}, nil
}

func (f *fakeMarket) GetItems(context.Context, string, []string) ([]mercadolibre.Item, error) {
	return nil, nil
}

func (f *fakeMarket) GetItem(_ context.Context, _, _ string) (*mercadolibre.Item, error) {
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	return f.item, nil
}

func (f *fakeMarket) SearchOrders(context.Context, string, string, int) ([]mercadolibre.Order, error) {
	return nil, nil
}

func (f *fakeMarket) GetOrder(_ context.Context, token, _ string) (*mercadolibre.Order, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return f.order, nil
}

func (f *fakeMarket) SearchQuestions(context.Context, string, string, int) ([]mercadolibre.Question, error) {
	return nil, nil
}

func (f *fakeMarket) GetQuestion(_ context.Context, token, _ string) (*mercadolibre.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.questionHits++
	if len(f.questionErrs) > 0 {
		err := f.questionErrs[0]
		f.questionErrs = f.questionErrs[1:]
		return nil, err
	}
	return f.question, nil
}

func (f *fakeMarket) AnswerQuestion(context.Context, string, string, string) error { return nil }

func (f *fakeMarket) UpdateStock(context.Context, string, string, int) error { return nil }

func (f *fakeMarket) GetShipment(context.Context, string, string) (*mercadolibre.Shipment, error) {
	return nil, nil
}

func (f *fakeMarket) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questionHits
}

type sentMessage struct {
	ChatID types.ChatID
	Msg    types.OutboundMessage
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeMessenger) Send(_ context.Context, chatID types.ChatID, msg types.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Msg: msg})
	return nil
}

func (f *fakeMessenger) AnswerCallback(context.Context, string) error { return nil }

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}
