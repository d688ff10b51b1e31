package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/user/mlbot/internal/types"
	"github.com/user/mlbot/pkg/mercadolibre"
)

type fakeCreds struct {
	cred *types.Credential
	err  error
}

func (f *fakeCreds) EnsureValid(context.Context) (*types.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.cred == nil {
		return nil, types.ErrAuthRequired
	}
	c := *f.cred
	return &c, nil
}

func (f *fakeCreds) Current(context.Context) (*types.Credential, error) {
	if f.cred == nil {
		return nil, types.ErrAuthRequired
	}
	c := *f.cred
	return &c, nil
}

type answerCall struct {
	Token      string
	QuestionID string
	Text       string
}

type stockCall struct {
	ItemID   string
	Quantity int
}

type fakeMarket struct {
	mu sync.Mutex

	calls   []string
	answers []answerCall
	stocks  []stockCall

	itemIDs   []string
	orders    []mercadolibre.Order
	questions []mercadolibre.Question
	shipment  *mercadolibre.Shipment
	err       error
	answerErr error
	// block, when set, is waited on inside AnswerQuestion.
	block chan struct{}
	// stall makes AnswerQuestion and SearchOrders wait for ctx to end.
	stall bool
}

func (f *fakeMarket) wait(ctx context.Context) error {
	if !f.stall {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeMarket) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeMarket) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeMarket) SearchItems(_ context.Context, _, _ string, offset, limit int) (*mercadolibre.ItemSearch, error) {
	f.record(fmt.Sprintf("SearchItems(%d,%d)", offset, limit))
	if f.err != nil {
		return nil, f.err
	}
	end := min(offset+limit, len(f.itemIDs))
	var results []string
	if offset < end {
		results = f.itemIDs[offset:end]
	}
	return &mercadolibre.ItemSearch{
		Results: results,
		Paging:  mercadolibre.Paging{Total: len(f.itemIDs), Offset: offset, Limit: limit},
	}, nil
}

func (f *fakeMarket) GetItems(_ context.Context, _ string, ids []string) ([]mercadolibre.Item, error) {
	f.record(fmt.Sprintf("GetItems(%d)", len(ids)))
	if f.err != nil {
		return nil, f.err
	}
	items := make([]mercadolibre.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, mercadolibre.Item{ID: id, Title: "Producto " + id, CurrencyID: "ARS", Price: 100})
	}
	return items, nil
}

func (f *fakeMarket) GetItem(_ context.Context, _, itemID string) (*mercadolibre.Item, error) {
	f.record("GetItem(" + itemID + ")")
	return &mercadolibre.Item{ID: itemID}, f.err
}

func (f *fakeMarket) SearchOrders(ctx context.Context, _, _ string, limit int) ([]mercadolibre.Order, error) {
	f.record("SearchOrders(" + strconv.Itoa(limit) + ")")
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.orders, f.err
}

func (f *fakeMarket) GetOrder(_ context.Context, _, orderID string) (*mercadolibre.Order, error) {
	f.record("GetOrder(" + orderID + ")")
	return &mercadolibre.Order{}, f.err
}

func (f *fakeMarket) SearchQuestions(_ context.Context, _, _ string, limit int) ([]mercadolibre.Question, error) {
	f.record("SearchQuestions(" + strconv.Itoa(limit) + ")")
	return f.questions, f.err
}

func (f *fakeMarket) GetQuestion(_ context.Context, _, questionID string) (*mercadolibre.Question, error) {
	f.record("GetQuestion(" + questionID + ")")
	return &mercadolibre.Question{}, f.err
}

func (f *fakeMarket) AnswerQuestion(ctx context.Context, token, questionID, text string) error {
	if f.block != nil {
		<-f.block
	}
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.record("AnswerQuestion(" + questionID + ")")
	f.mu.Lock()
	f.answers = append(f.answers, answerCall{Token: token, QuestionID: questionID, Text: text})
	f.mu.Unlock()
	return f.answerErr
}

func (f *fakeMarket) UpdateStock(_ context.Context, _, itemID string, quantity int) error {
	f.record("UpdateStock(" + itemID + ")")
	f.mu.Lock()
	f.stocks = append(f.stocks, stockCall{ItemID: itemID, Quantity: quantity})
	f.mu.Unlock()
	return f.err
}

func (f *fakeMarket) GetShipment(_ context.Context, _, shipmentID string) (*mercadolibre.Shipment, error) {
	f.record("GetShipment(" + shipmentID + ")")
	if f.err != nil {
		return nil, f.err
	}
	return f.shipment, nil
}

type sentMessage struct {
	ChatID types.ChatID
	Msg    types.OutboundMessage
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	acks    []string
	sendErr error
}

func (f *fakeMessenger) Send(_ context.Context, chatID types.ChatID, msg types.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Msg: msg})
	if f.sendErr != nil {
		return &types.DeliveryError{ChatID: chatID, Err: f.sendErr}
	}
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, callbackID)
	return nil
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeMessenger) last() types.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return types.OutboundMessage{}
	}
	return f.sent[len(f.sent)-1].Msg
}
