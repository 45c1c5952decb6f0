package terminal

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/payment"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/ws"
	"github.com/shopspring/decimal"
)

// --- Fakes ---

// fakeService is an in-memory remote order service.
type fakeService struct {
	mu       sync.Mutex
	carts    map[string][]remote.CartLine
	invoices []remote.InvoiceRequest
	deleted  []string
}

func newFakeService() *fakeService {
	return &fakeService{carts: make(map[string][]remote.CartLine)}
}

func (f *fakeService) GetCart(_ context.Context, orderID, _ string) (*remote.CartResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.CartLine, len(f.carts[orderID]))
	copy(out, f.carts[orderID])
	return &remote.CartResponse{CartDetails: out}, nil
}

func (f *fakeService) AddToCart(_ context.Context, req remote.AddToCartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[req.OrderID] = append(f.carts[req.OrderID], remote.CartLine{
		ID: remote.ID(uuid.NewString()), ProductID: remote.ID(req.ProductID),
		Name: req.Name, Price: req.Price, Qty: req.Qty,
	})
	return nil
}

func (f *fakeService) AddNote(context.Context, string, string) error { return nil }

func (f *fakeService) DeleteCartItem(context.Context, string, string, string) error { return nil }

func (f *fakeService) PlaceOrder(context.Context, string) error { return nil }

func (f *fakeService) CreateInvoice(_ context.Context, req remote.InvoiceRequest) (*remote.InvoiceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, req)
	return &remote.InvoiceResponse{InvoiceNumber: req.InvoiceNumber}, nil
}

func (f *fakeService) DeleteCart(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, orderID)
	delete(f.carts, orderID)
	return nil
}

type sent struct {
	terminal  uuid.UUID
	eventType string
	payload   any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sent
}

func (b *recordingBroadcaster) Broadcast(id uuid.UUID, eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sent{id, eventType, payload})
}

func (b *recordingBroadcaster) ofType(eventType string) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, e := range b.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingJournal struct {
	mu       sync.Mutex
	attempts []payment.Attempt
}

func (r *recordingJournal) Record(_ context.Context, a payment.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func authed() context.Context {
	return remote.WithCredential(context.Background(), "tok")
}

// --- Tests ---

func TestGetCreatesOnce(t *testing.T) {
	m := NewManager(newFakeService(), Options{})
	user := uuid.New()

	a := m.Get(user, "org-1")
	b := m.Get(user, "org-1")

	if a != b {
		t.Fatal("Get should return the same terminal for the same user")
	}
	if a.ID != user || a.Session.ID() != user {
		t.Errorf("terminal id = %s, session id = %s", a.ID, a.Session.ID())
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestGetReplacesOnOrganizationChange(t *testing.T) {
	m := NewManager(newFakeService(), Options{})
	user := uuid.New()

	a := m.Get(user, "org-1")
	if err := a.Session.SelectTable(authed(), "T1", "Table 1"); err != nil {
		t.Fatalf("SelectTable: %v", err)
	}
	b := m.Get(user, "org-2")

	if a == b {
		t.Fatal("terminal should be replaced for a different organization")
	}
	if b.Session.OrganizationID() != "org-2" {
		t.Errorf("organization = %s", b.Session.OrganizationID())
	}
	if b.Session.View().OrderID != "" {
		t.Error("new terminal should start without a table")
	}
}

func TestLookupAndDrop(t *testing.T) {
	m := NewManager(newFakeService(), Options{})
	user := uuid.New()

	if _, ok := m.Lookup(user); ok {
		t.Fatal("Lookup before Get should miss")
	}
	m.Get(user, "org-1")
	if _, ok := m.Lookup(user); !ok {
		t.Fatal("Lookup after Get should hit")
	}
	m.Drop(user)
	if _, ok := m.Lookup(user); ok {
		t.Fatal("Lookup after Drop should miss")
	}
}

func TestSessionChangesAreBroadcast(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewManager(newFakeService(), Options{Broadcaster: b})
	user := uuid.New()
	term := m.Get(user, "org-1")

	if err := term.Session.SelectTable(authed(), "T1", "Table 1"); err != nil {
		t.Fatalf("SelectTable: %v", err)
	}

	states := b.ofType(ws.EventCartState)
	if len(states) == 0 {
		t.Fatal("no cart.state events broadcast")
	}
	last := states[len(states)-1]
	if last.terminal != user {
		t.Errorf("broadcast to %s, want %s", last.terminal, user)
	}
	v, ok := last.payload.(session.View)
	if !ok || v.OrderID != "T1" {
		t.Errorf("payload = %#v", last.payload)
	}
	if len(b.ofType(ws.EventPaymentState)) == 0 {
		t.Error("payment totals should follow cart changes")
	}
}

func TestSettlementFlow(t *testing.T) {
	svc := newFakeService()
	b := &recordingBroadcaster{}
	journal := &recordingJournal{}
	m := NewManager(svc, Options{Broadcaster: b, Recorder: journal})
	ctx := authed()
	term := m.Get(uuid.New(), "org-1")

	if err := term.Session.SetActiveMode(ctx, enum.ServiceModeTakeaway); err != nil {
		t.Fatalf("SetActiveMode: %v", err)
	}
	ticket, err := term.Session.NewTicket()
	if err != nil {
		t.Fatalf("NewTicket: %v", err)
	}
	if err := term.Session.AddProduct(ctx, "p1", "Nasi Goreng", decimal.RequireFromString("12.50")); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	if err := term.Payment.SelectMethod(enum.PaymentMethodCash, ""); err != nil {
		t.Fatalf("SelectMethod: %v", err)
	}
	if err := term.Payment.SetTendered("20"); err != nil {
		t.Fatalf("SetTendered: %v", err)
	}
	if _, err := term.Payment.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	receipt, err := term.Payment.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if receipt.OrderID != ticket.ID || receipt.Totals.Balance != "7.50" {
		t.Errorf("receipt = %+v", receipt)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != ticket.ID {
		t.Errorf("deleted carts = %v", svc.deleted)
	}
	if len(term.Session.Tickets()) != 0 {
		t.Error("settled ticket should be removed")
	}
	if len(journal.attempts) != 1 || journal.attempts[0].Outcome != enum.JournalOutcomeSettled {
		t.Errorf("journal = %+v", journal.attempts)
	}
	settled := b.ofType(ws.EventPaymentSettled)
	if len(settled) != 1 {
		t.Fatalf("payment.settled events = %d", len(settled))
	}
	if r, ok := settled[0].payload.(payment.Receipt); !ok || r.InvoiceNumber != receipt.InvoiceNumber {
		t.Errorf("settled payload = %#v", settled[0].payload)
	}
	if v := term.Payment.View(); v.State != enum.PaymentStateIdle {
		t.Errorf("payment state = %s", v.State)
	}
}
