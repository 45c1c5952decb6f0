package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 512

// Errors returned by the remote client.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidBaseURL    = errors.New("invalid remote base url")
	ErrBadResponse       = errors.New("malformed response")
)

// StatusError is a non-2xx response from the remote service.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: remote returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTransport reports whether err came from talking to the remote service
// (network failure, non-success or malformed response) rather than from a
// local precondition.
func IsTransport(err error) bool {
	if err == nil || errors.Is(err, ErrMissingCredential) {
		return false
	}
	if errors.Is(err, ErrBadResponse) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded)
}

type credentialKey struct{}

// WithCredential attaches the bearer token forwarded on every remote call.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey{}, token)
}

// HasCredential reports whether ctx carries a bearer token.
func HasCredential(ctx context.Context) bool {
	return credentialFrom(ctx) != ""
}

func credentialFrom(ctx context.Context) string {
	token, _ := ctx.Value(credentialKey{}).(string)
	return token
}

// Client talks to the remote order service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New creates a Client rooted at baseURL. Relative endpoint paths such as
// "Cart/get-cart-details" are resolved against it.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &Client{baseURL: u, http: &http.Client{Timeout: timeout}}, nil
}

// --- Cart ---

// GetCart fetches the cart for an order (table id or ticket id).
func (c *Client) GetCart(ctx context.Context, orderID, organizationID string) (*CartResponse, error) {
	q := url.Values{}
	q.Set("Guid", orderID)
	q.Set("OrganizationsId", organizationID)

	var resp CartResponse
	if err := c.do(ctx, "get cart", http.MethodGet, "Cart/get-cart-details", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddToCart adds Qty units of a product (or a custom charge) to an order.
func (c *Client) AddToCart(ctx context.Context, req AddToCartRequest) error {
	q := url.Values{}
	q.Set("Guid", req.OrderID)
	if req.ProductID != "" {
		q.Set("ProductId", req.ProductID)
	}
	q.Set("Qty", strconv.Itoa(req.Qty))
	if req.CustomerID != "" {
		q.Set("cusId", req.CustomerID)
	}
	q.Set("name", req.Name)
	q.Set("value", req.Price.String())
	q.Set("ordertype", strconv.Itoa(req.OrderTypeCode))
	q.Set("OrganizationsId", req.OrganizationID)

	return c.do(ctx, "add to cart", http.MethodPost, "Cart/add-to-cart", q, nil, nil)
}

// AddNote stores the note of a single cart line.
func (c *Client) AddNote(ctx context.Context, cartLineID, note string) error {
	q := url.Values{}
	q.Set("CartId", cartLineID)
	q.Set("Note", note)
	return c.do(ctx, "add note", http.MethodPost, "Cart/add-note", q, nil, nil)
}

// DeleteCartItem removes a product from an order's cart.
func (c *Client) DeleteCartItem(ctx context.Context, orderID, productID, organizationID string) error {
	q := url.Values{}
	q.Set("Guid", orderID)
	q.Set("ProductId", productID)
	q.Set("OrganizationsId", organizationID)
	return c.do(ctx, "delete cart item", http.MethodDelete, "Cart/delete-cart-item", q, nil, nil)
}

// DeleteCart removes the whole cart of an order.
func (c *Client) DeleteCart(ctx context.Context, orderID string) error {
	q := url.Values{}
	q.Set("Guid", orderID)
	return c.do(ctx, "delete cart", http.MethodDelete, "Cart/delete-cart", q, nil, nil)
}

// --- Orders / invoices ---

// PlaceOrder sends the order's pending lines to the kitchen.
func (c *Client) PlaceOrder(ctx context.Context, orderID string) error {
	q := url.Values{}
	q.Set("Guid", orderID)
	return c.do(ctx, "place order", http.MethodPost, "Order/place-order", q, nil, nil)
}

// CreateInvoice submits a finished order. A 2xx response whose body reports a
// failure status is returned as a StatusError.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResponse, error) {
	var resp InvoiceResponse
	if err := c.do(ctx, "create invoice", http.MethodPost, "Invoice/create-invoice", nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.Failed() {
		return nil, &StatusError{Op: "create invoice", StatusCode: http.StatusOK, Body: resp.Message}
	}
	return &resp, nil
}

// ListInvoices returns every invoice visible to the credential.
func (c *Client) ListInvoices(ctx context.Context) ([]InvoiceSummary, error) {
	var resp []InvoiceSummary
	if err := c.do(ctx, "list invoices", http.MethodGet, "Invoice/get-invoice-list", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListTables returns the dine-in tables of an organization.
func (c *Client) ListTables(ctx context.Context, organizationID string) ([]Table, error) {
	q := url.Values{}
	q.Set("guid", organizationID)

	var resp []Table
	if err := c.do(ctx, "list tables", http.MethodGet, "Table", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// --- Transport ---

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	token := credentialFrom(ctx)
	if token == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingCredential)
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: %w: %v", op, ErrBadResponse, err)
	}
	return nil
}
