package mercadolibre

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.mercadolibre.com"

// MaxMultiGet is the largest number of ids /items accepts in one call.
const MaxMultiGet = 20

const itemAttributes = "id,title,price,currency_id,available_quantity,sold_quantity,permalink,status"

// Client is a minimal typed client for the Mercado Libre REST API.
// Every call takes the bearer access token explicitly.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. A zero config talks to DefaultBaseURL with a 30s timeout.
func New(config Config) *Client {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SearchItems returns one page of the seller's active item ids.
func (c *Client) SearchItems(ctx context.Context, token, userID string, offset, limit int) (*ItemSearch, error) {
	q := url.Values{}
	q.Set("status", "active")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var out ItemSearch
	path := "/users/" + url.PathEscape(userID) + "/items/search"
	if err := c.do(ctx, http.MethodGet, path, token, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetItems fetches item details, splitting ids into MaxMultiGet-sized calls.
// Entries the API reports as failed are skipped.
func (c *Client) GetItems(ctx context.Context, token string, ids []string) ([]Item, error) {
	items := make([]Item, 0, len(ids))
	for start := 0; start < len(ids); start += MaxMultiGet {
		end := min(start+MaxMultiGet, len(ids))

		q := url.Values{}
		q.Set("ids", strings.Join(ids[start:end], ","))
		q.Set("attributes", itemAttributes)

		var entries []multiGetEntry
		if err := c.do(ctx, http.MethodGet, "/items", token, q, nil, &entries); err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Code != 0 && e.Code != http.StatusOK {
				continue
			}
			items = append(items, e.Body)
		}
	}
	return items, nil
}

// GetItem fetches a single item.
func (c *Client) GetItem(ctx context.Context, token, itemID string) (*Item, error) {
	var out Item
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchOrders returns the seller's most recent orders, newest first.
func (c *Client) SearchOrders(ctx context.Context, token, sellerID string, limit int) ([]Order, error) {
	q := url.Values{}
	q.Set("seller", sellerID)
	q.Set("sort", "date_desc")
	q.Set("limit", strconv.Itoa(limit))

	var out orderSearch
	if err := c.do(ctx, http.MethodGet, "/orders/search", token, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetOrder fetches an order by id.
func (c *Client) GetOrder(ctx context.Context, token, orderID string) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchQuestions returns unanswered questions on the seller's listings.
func (c *Client) SearchQuestions(ctx context.Context, token, sellerID string, limit int) ([]Question, error) {
	q := url.Values{}
	q.Set("seller_id", sellerID)
	q.Set("status", "UNANSWERED")
	q.Set("limit", strconv.Itoa(limit))

	var out questionSearch
	if err := c.do(ctx, http.MethodGet, "/questions/search", token, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// GetQuestion fetches a question by id.
func (c *Client) GetQuestion(ctx context.Context, token, questionID string) (*Question, error) {
	var out Question
	if err := c.do(ctx, http.MethodGet, "/questions/"+url.PathEscape(questionID), token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnswerQuestion posts the seller's answer to a question.
func (c *Client) AnswerQuestion(ctx context.Context, token, questionID, text string) error {
	id, err := strconv.ParseInt(questionID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid question id %q: %w", questionID, err)
	}
	return c.do(ctx, http.MethodPost, "/answers", token, nil, answerRequest{QuestionID: id, Text: text}, nil)
}

// UpdateStock sets the available quantity of an item.
func (c *Client) UpdateStock(ctx context.Context, token, itemID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("invalid quantity %d", quantity)
	}
	return c.do(ctx, http.MethodPut, "/items/"+url.PathEscape(itemID), token, nil, stockRequest{AvailableQuantity: quantity}, nil)
}

// GetShipment fetches a shipment by id.
func (c *Client) GetShipment(ctx context.Context, token, shipmentID string) (*Shipment, error) {
	var out Shipment
	if err := c.do(ctx, http.MethodGet, "/shipments/"+url.PathEscape(shipmentID), token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one authenticated request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Status: resp.StatusCode,
			Body:   string(respBody),
			Method: method,
			Path:   path,
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
