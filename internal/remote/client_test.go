package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testToken = "token-abc"

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", 2*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func authed() context.Context {
	return WithCredential(context.Background(), testToken)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	if _, err := New("not a url", time.Second); !errors.Is(err, ErrInvalidBaseURL) {
		t.Fatalf("expected ErrInvalidBaseURL, got %v", err)
	}
}

func TestGetCart(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method: got %s", r.Method)
		}
		if r.URL.Path != "/api/Cart/get-cart-details" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("Guid"); got != "table-1" {
			t.Errorf("Guid: got %q", got)
		}
		if got := r.URL.Query().Get("OrganizationsId"); got != "org-1" {
			t.Errorf("OrganizationsId: got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
			t.Errorf("authorization: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"cartDetails": [
				{"id": 17, "productId": "p-1", "name": "Nasi Lemak", "price": 10.5, "qty": 2, "note": "no egg", "isKot": 0, "image": "a.png"},
				{"id": "18", "productId": "p-2", "name": "Teh Tarik", "price": 3, "qty": 1, "note": null, "isKot": 1}
			],
			"subTotal": 24, "tax": 1.2, "service": 0.5, "discount": 0, "total": 25.7
		}`)
	})

	cart, err := c.GetCart(authed(), "table-1", "org-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.CartDetails) != 2 {
		t.Fatalf("lines: got %d, want 2", len(cart.CartDetails))
	}
	first := cart.CartDetails[0]
	if first.ID != "17" {
		t.Errorf("numeric id: got %q, want %q", first.ID, "17")
	}
	if !first.Price.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("price: got %s", first.Price)
	}
	if cart.CartDetails[1].ID != "18" || cart.CartDetails[1].IsKot != 1 {
		t.Errorf("second line: got %+v", cart.CartDetails[1])
	}
	if !cart.Tax.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("tax: got %s", cart.Tax)
	}
}

func TestMissingCredential_NoNetworkCall(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := c.GetCart(context.Background(), "table-1", "org-1")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if err := c.DeleteCart(context.Background(), "t"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("remote called %d times, want 0", n)
	}
}

func TestStatusError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cart not found", http.StatusNotFound)
	})

	_, err := c.GetCart(authed(), "table-1", "org-1")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d", se.StatusCode)
	}
	if se.Body != "cart not found" {
		t.Errorf("body: got %q", se.Body)
	}
}

func TestAddToCart_QueryParams(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/Cart/add-to-cart" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{
			"Guid":            "ticket-1",
			"ProductId":       "p-9",
			"Qty":             "1",
			"cusId":           "c-1",
			"name":            "Roti",
			"value":           "2.5",
			"ordertype":       "1",
			"OrganizationsId": "org-1",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("%s: got %q, want %q", k, got, v)
			}
		}
	})

	err := c.AddToCart(authed(), AddToCartRequest{
		OrderID:        "ticket-1",
		ProductID:      "p-9",
		Qty:            1,
		CustomerID:     "c-1",
		Name:           "Roti",
		Price:          decimal.RequireFromString("2.50"),
		OrderTypeCode:  1,
		OrganizationID: "org-1",
	})
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
}

func TestAddToCart_CustomChargeOmitsProduct(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("ProductId") {
			t.Error("custom charge must not send ProductId")
		}
	})
	if err := c.AddToCart(authed(), AddToCartRequest{OrderID: "t", Qty: 1, Name: "Corkage", Price: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
}

func TestCreateInvoice(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/Invoice/create-invoice" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if body["guid"] != "ticket-1" {
			t.Errorf("guid: got %v", body["guid"])
		}
		if body["total"] != "24" {
			t.Errorf("total: got %v", body["total"])
		}
		items, _ := body["invoiceDetails"].([]any)
		if len(items) != 1 {
			t.Errorf("items: got %d", len(items))
		}
		io.WriteString(w, `{"status": 1, "invoiceNumber": "INV-1"}`)
	})

	resp, err := c.CreateInvoice(authed(), InvoiceRequest{
		InvoiceNumber: "INV-1",
		OrderID:       "ticket-1",
		Total:         decimal.NewFromInt(24),
		Items:         []InvoiceItem{{ProductID: "p-1", Qty: 1, Price: decimal.NewFromInt(24), Amount: decimal.NewFromInt(24)}},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if resp.InvoiceNumber != "INV-1" {
		t.Errorf("invoice number: got %q", resp.InvoiceNumber)
	}
}

func TestCreateInvoice_FailureStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status": "Failed", "message": "duplicate invoice"}`)
	})

	_, err := c.CreateInvoice(authed(), InvoiceRequest{OrderID: "t"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Body != "duplicate invoice" {
		t.Errorf("body: got %q", se.Body)
	}
}

func TestDeleteAndPlace(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
	})

	ctx := authed()
	if err := c.DeleteCartItem(ctx, "o-1", "p-1", "org-1"); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if err := c.DeleteCart(ctx, "o-1"); err != nil {
		t.Fatalf("delete cart: %v", err)
	}
	if err := c.PlaceOrder(ctx, "o-1"); err != nil {
		t.Fatalf("place order: %v", err)
	}
	if err := c.AddNote(ctx, "17", "less spicy"); err != nil {
		t.Fatalf("add note: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"DELETE /api/Cart/delete-cart-item?Guid=o-1&OrganizationsId=org-1&ProductId=p-1",
		"DELETE /api/Cart/delete-cart?Guid=o-1",
		"POST /api/Order/place-order?Guid=o-1",
		"POST /api/Cart/add-note?CartId=17&Note=less+spicy",
	}
	if len(seen) != len(want) {
		t.Fatalf("calls: got %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestListTablesAndInvoices(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/Table":
			if r.URL.Query().Get("guid") != "org-1" {
				t.Errorf("guid: got %q", r.URL.Query().Get("guid"))
			}
			io.WriteString(w, `[{"id":"t-2","name":"T2","fullName":"Table 2","count":3,"status":99}]`)
		case "/api/Invoice/get-invoice-list":
			io.WriteString(w, `[{"invoiceNumber":"INV-7","customerName":null,"createUtc":"2024-05-01T10:00:00","dueDate":"2024-05-02T00:00:00Z","total":12.5,"status":0,"paymentType":"Cash","noOfItems":2}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	tables, err := c.ListTables(authed(), "org-1")
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) != 1 || tables[0].Status != TableStatusProcess {
		t.Errorf("tables: got %+v", tables)
	}

	invoices, err := c.ListInvoices(authed())
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("invoices: got %d", len(invoices))
	}
	inv := invoices[0]
	if inv.CreateUtc.Year() != 2024 || inv.CreateUtc.Hour() != 10 {
		t.Errorf("createUtc: got %v", inv.CreateUtc)
	}
	if inv.CustomerName != "" {
		t.Errorf("customer name: got %q", inv.CustomerName)
	}
}

func TestInvoiceResponseFailed(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`{"status":"failed"}`, true},
		{`{"status":" ERROR "}`, true},
		{`{"status":"success"}`, false},
		{`{"status":0}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		var r InvoiceResponse
		if err := json.Unmarshal([]byte(tt.raw), &r); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if got := r.Failed(); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestIsTransport(t *testing.T) {
	if IsTransport(nil) {
		t.Error("nil is not a transport error")
	}
	if IsTransport(fmt.Errorf("get cart: %w", ErrMissingCredential)) {
		t.Error("missing credential is a precondition error")
	}
	if !IsTransport(fmt.Errorf("wrapped: %w", &StatusError{Op: "get cart", StatusCode: 500})) {
		t.Error("status error should be transport")
	}

	c, err := New("http://127.0.0.1:1/api", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.GetCart(WithCredential(context.Background(), "tok"), "T1", "org")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !IsTransport(err) {
		t.Errorf("dial error not classified as transport: %v", err)
	}
}

func TestMalformedResponseIsTransport(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `<html>gateway</html>`)
	})

	_, err := c.GetCart(authed(), "T1", "org-1")
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("err = %v, want ErrBadResponse", err)
	}
	if !IsTransport(err) {
		t.Errorf("malformed body not classified as transport: %v", err)
	}
}
