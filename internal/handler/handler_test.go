package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/auth"
	"github.com/kiwari-pos/terminal/internal/handler"
	"github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/kiwari-pos/terminal/internal/terminal"
)

const testJWTSecret = "test-secret-for-terminal"

// --- Fake remote service ---

// fakeRemote is an in-memory order service. Set the Fn fields to inject
// failures.
type fakeRemote struct {
	mu       sync.Mutex
	carts    map[string][]remote.CartLine
	invoices []remote.InvoiceRequest
	summary  []remote.InvoiceSummary
	tables   []remote.Table

	getCartFn       func(ctx context.Context, orderID string) error
	createInvoiceFn func(ctx context.Context, req remote.InvoiceRequest) error
	lastTablesOrg   string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{carts: make(map[string][]remote.CartLine)}
}

func (f *fakeRemote) seed(orderID string, lines ...remote.CartLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[orderID] = lines
}

func (f *fakeRemote) GetCart(ctx context.Context, orderID, _ string) (*remote.CartResponse, error) {
	if f.getCartFn != nil {
		if err := f.getCartFn(ctx, orderID); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.CartLine, len(f.carts[orderID]))
	copy(out, f.carts[orderID])
	return &remote.CartResponse{CartDetails: out}, nil
}

func (f *fakeRemote) AddToCart(_ context.Context, req remote.AddToCartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.carts[req.OrderID] {
		if req.ProductID != "" && string(l.ProductID) == req.ProductID {
			f.carts[req.OrderID][i].Qty += req.Qty
			return nil
		}
	}
	f.carts[req.OrderID] = append(f.carts[req.OrderID], remote.CartLine{
		ID: remote.ID(uuid.NewString()), ProductID: remote.ID(req.ProductID),
		Name: req.Name, Price: req.Price, Qty: req.Qty,
	})
	return nil
}

func (f *fakeRemote) AddNote(_ context.Context, cartLineID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lines := range f.carts {
		for i := range lines {
			if string(lines[i].ID) == cartLineID {
				lines[i].Note = note
			}
		}
	}
	return nil
}

func (f *fakeRemote) DeleteCartItem(_ context.Context, orderID, productID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.carts[orderID][:0]
	for _, l := range f.carts[orderID] {
		if string(l.ProductID) != productID {
			lines = append(lines, l)
		}
	}
	f.carts[orderID] = lines
	return nil
}

func (f *fakeRemote) PlaceOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.carts[orderID] {
		f.carts[orderID][i].IsKot = 1
	}
	return nil
}

func (f *fakeRemote) CreateInvoice(ctx context.Context, req remote.InvoiceRequest) (*remote.InvoiceResponse, error) {
	if f.createInvoiceFn != nil {
		if err := f.createInvoiceFn(ctx, req); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, req)
	return &remote.InvoiceResponse{InvoiceNumber: req.InvoiceNumber}, nil
}

func (f *fakeRemote) DeleteCart(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, orderID)
	return nil
}

func (f *fakeRemote) ListTables(ctx context.Context, organizationID string) ([]remote.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTablesOrg = organizationID
	return f.tables, nil
}

func (f *fakeRemote) ListInvoices(ctx context.Context) ([]remote.InvoiceSummary, error) {
	return f.summary, nil
}

// --- Test helpers ---

type testEnv struct {
	router  *chi.Mux
	remote  *fakeRemote
	manager *terminal.Manager
	userID  uuid.UUID
	orgID   uuid.UUID
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		remote: newFakeRemote(),
		userID: uuid.New(),
		orgID:  uuid.New(),
	}
	env.manager = terminal.NewManager(env.remote, terminal.Options{SafetyTimeout: time.Second})

	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/terminal", func(r chi.Router) {
		handler.NewTerminalHandler(env.manager).RegisterRoutes(r)
		r.Route("/payment", handler.NewPaymentHandler(env.manager).RegisterRoutes)
	})
	handler.NewListHandler(env.remote).RegisterRoutes(r)
	env.router = r

	token, err := auth.GenerateToken(testJWTSecret, env.userID, env.orgID, "CASHIER", time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	env.token = token
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

func decodeInto(rr *httptest.ResponseRecorder, v interface{}) error {
	return json.NewDecoder(rr.Body).Decode(v)
}
