package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ID is an identifier the remote service sends either as a JSON string or a
// JSON number. It is always handled as a string on this side.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// CartLine is one line of a remote cart.
type CartLine struct {
	ID        ID              `json:"id"`
	ProductID ID              `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
	Note      string          `json:"note"`
	IsKot     int             `json:"isKot"` // non-zero once sent to the kitchen
	Image     string          `json:"image"`
}

// CartResponse is the body of the get-cart-details call.
type CartResponse struct {
	CartDetails []CartLine      `json:"cartDetails"`
	SubTotal    decimal.Decimal `json:"subTotal"`
	Tax         decimal.Decimal `json:"tax"`
	Service     decimal.Decimal `json:"service"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// AddToCartRequest carries the add-to-cart query parameters. ProductID is
// empty for custom "other service" charges.
type AddToCartRequest struct {
	OrderID        string
	ProductID      string
	Qty            int
	CustomerID     string
	Name           string
	Price          decimal.Decimal
	OrderTypeCode  int
	OrganizationID string
}

// InvoiceItem is one line of an invoice submission.
type InvoiceItem struct {
	ProductID string          `json:"productId"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
}

// InvoiceRequest is the create-invoice payload.
type InvoiceRequest struct {
	InvoiceNumber   string          `json:"invoiceNumber"`
	OrderID         string          `json:"guid"`
	OrderType       int             `json:"orderType"`
	PaymentType     int             `json:"paymentType"`
	CardType        string          `json:"cardType,omitempty"`
	SubTotal        decimal.Decimal `json:"subTotal"`
	Tax             decimal.Decimal `json:"tax"`
	ServiceCharge   decimal.Decimal `json:"service"`
	DiscountPercent decimal.Decimal `json:"discountPercentage"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	Balance         decimal.Decimal `json:"balance"`
	CustomerID      string          `json:"customerId,omitempty"`
	OrganizationID  string          `json:"organizationsId"`
	Items           []InvoiceItem   `json:"invoiceDetails"`
}

// InvoiceResponse is the create-invoice response. Status is kept raw because
// the service has sent both strings and numbers for it.
type InvoiceResponse struct {
	Status        json.RawMessage `json:"status"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Message       string          `json:"message"`
}

// Failed reports whether the body carries a failure status string.
func (r *InvoiceResponse) Failed() bool {
	if len(r.Status) == 0 || r.Status[0] != '"' {
		return false
	}
	var s string
	if err := json.Unmarshal(r.Status, &s); err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "failed", "error":
		return true
	}
	return false
}

// TableStatusProcess marks a table with an order in progress.
const TableStatusProcess = 99

// Table is a dine-in table as listed by the remote service.
type Table struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Count    int    `json:"count"`
	Status   int    `json:"status"`
}

// Timestamp accepts RFC 3339 as well as the zone-less layouts the remote
// service emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
			t.Time = time.Time{}
			return nil
		}
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// InvoiceSummary is one row of the invoice list.
type InvoiceSummary struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	CustomerName  string          `json:"customerName"`
	CreateUtc     Timestamp       `json:"createUtc"`
	DueDate       Timestamp       `json:"dueDate"`
	Total         decimal.Decimal `json:"total"`
	Status        int             `json:"status"` // 0 = unpaid
	PaymentType   string          `json:"paymentType"`
	NoOfItems     int             `json:"noOfItems"`
}
