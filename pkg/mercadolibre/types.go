package mercadolibre

import (
	"fmt"
	"time"
)

// Config holds the API endpoint settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// APIError is returned for any non-2xx response from the API.
type APIError struct {
	Status int
	Body   string
	Method string
	Path   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d) %s %s: %s", e.Status, e.Method, e.Path, e.Body)
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

// Paging is the pagination block of search responses.
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ItemSearch is one page of a seller's item ids.
type ItemSearch struct {
	Results []string `json:"results"`
	Paging  Paging   `json:"paging"`
}

// Item is a listing.
type Item struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Price             float64 `json:"price"`
	CurrencyID        string  `json:"currency_id"`
	AvailableQuantity int     `json:"available_quantity"`
	SoldQuantity      int     `json:"sold_quantity"`
	Permalink         string  `json:"permalink"`
	Status            string  `json:"status,omitempty"`
}

// multiGetEntry is one element of the /items?ids= response.
type multiGetEntry struct {
	Code int  `json:"code"`
	Body Item `json:"body"`
}

// Buyer is the purchasing user on an order.
type Buyer struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// OrderShipping references the shipment of an order.
type OrderShipping struct {
	ID int64 `json:"id"`
}

// Order is a sale.
type Order struct {
	ID          int64          `json:"id"`
	Status      string         `json:"status"`
	DateCreated string         `json:"date_created"`
	TotalAmount float64        `json:"total_amount"`
	CurrencyID  string         `json:"currency_id"`
	Buyer       Buyer          `json:"buyer"`
	Shipping    *OrderShipping `json:"shipping,omitempty"`
}

// ShipmentID returns the shipment id, or 0 when the order has none.
func (o *Order) ShipmentID() int64 {
	if o.Shipping == nil {
		return 0
	}
	return o.Shipping.ID
}

// CreatedAt parses DateCreated. The zero time is returned when it is unparseable.
func (o *Order) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339, o.DateCreated)
	if err != nil {
		return time.Time{}
	}
	return t
}

type orderSearch struct {
	Results []Order `json:"results"`
	Paging  Paging  `json:"paging"`
}

// Question is a buyer question on a listing.
type Question struct {
	ID          int64  `json:"id"`
	ItemID      string `json:"item_id"`
	Text        string `json:"text"`
	Status      string `json:"status"`
	DateCreated string `json:"date_created,omitempty"`
}

type questionSearch struct {
	Questions []Question `json:"questions"`
	Total     int        `json:"total"`
}

// Shipment is the logistics record of an order.
type Shipment struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	Substatus      string `json:"substatus"`
	TrackingNumber string `json:"tracking_number"`
	TrackingMethod string `json:"tracking_method,omitempty"`
	TrackingURL    string `json:"tracking_url,omitempty"`
}

type answerRequest struct {
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
}

type stockRequest struct {
	AvailableQuantity int `json:"available_quantity"`
}
