// Package session runs the cart engine of one cashier terminal: it keeps the
// active order context, fetches and caches its cart, and applies line edits
// against the remote order service.
//
// A Session is a single logical actor. Its mutex is held while engine state is
// read or written and released across every remote call; after a call returns
// the result is only applied if the context generation it captured is still
// current.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/remote"
)

// DefaultSafetyTimeout bounds how long a fetch can keep the terminal loading.
const DefaultSafetyTimeout = 5 * time.Second

// Errors returned by session operations.
var (
	ErrNoActiveOrder  = errors.New("no active order")
	ErrMissingOrderID = errors.New("order id is required")
	ErrCartNotLoaded  = errors.New("cart not loaded")
	ErrLineIndex      = errors.New("line index out of range")
	ErrUnknownTicket  = errors.New("unknown ticket")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrInvalidProduct = errors.New("product id is required")
	ErrInvalidCharge  = errors.New("charge needs a name and a positive amount")
)

// CartService is the part of the remote order service the session needs.
type CartService interface {
	GetCart(ctx context.Context, orderID, organizationID string) (*remote.CartResponse, error)
	AddToCart(ctx context.Context, req remote.AddToCartRequest) error
	AddNote(ctx context.Context, cartLineID, note string) error
	DeleteCartItem(ctx context.Context, orderID, productID, organizationID string) error
	PlaceOrder(ctx context.Context, orderID string) error
}

// Customer is the customer reference sent with cart and invoice calls.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Options tune a Session.
type Options struct {
	SafetyTimeout time.Duration
	Verbose       bool
	// OnChange receives a view after every state change. It is called
	// without the session lock held.
	OnChange func(View)
}

// View is a read-only copy of the session state.
type View struct {
	TerminalID  uuid.UUID        `json:"terminal_id"`
	Mode        enum.ServiceMode `json:"mode"`
	OrderID     string           `json:"order_id,omitempty"`
	DisplayName string           `json:"display_name,omitempty"`
	State       string           `json:"state"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
	Cart        *cart.Snapshot   `json:"cart,omitempty"`
	Customer    Customer         `json:"customer"`
	Tickets     []cart.Ticket    `json:"tickets,omitempty"`
	Generation  uint64           `json:"generation"`
}

// Session is the cart engine of one terminal.
type Session struct {
	id             uuid.UUID
	organizationID string
	svc            CartService
	safetyTimeout  time.Duration
	verbose        bool
	onChange       func(View)

	mu        sync.Mutex
	reg       *cart.Registry
	cache     *cart.Cache
	customer  Customer
	fetchSeq  uint64
	loading   bool
	loadToken uint64
	loadGen   uint64
	safety    *time.Timer
}

// New creates a session for terminal id working in organizationID.
func New(id uuid.UUID, organizationID string, svc CartService, opts Options) *Session {
	if opts.SafetyTimeout <= 0 {
		opts.SafetyTimeout = DefaultSafetyTimeout
	}
	reg := cart.NewRegistry()
	return &Session{
		id:             id,
		organizationID: organizationID,
		svc:            svc,
		safetyTimeout:  opts.SafetyTimeout,
		verbose:        opts.Verbose,
		onChange:       opts.OnChange,
		reg:            reg,
		cache:          cart.NewCache(reg),
	}
}

// ID is the terminal id.
func (s *Session) ID() uuid.UUID { return s.id }

// OrganizationID is the organization the session works in.
func (s *Session) OrganizationID() string { return s.organizationID }

// --- Views ---

// View returns the current state without triggering any fetch.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Current returns the state, first loading the active cart if it is selected
// but not cached and no fetch for it is already in flight. Fetch failures are
// reported through the view's error state.
func (s *Session) Current(ctx context.Context) View {
	s.mu.Lock()
	a := s.reg.Active()
	need := false
	if a.OrderID != "" {
		_, cached := s.cache.Get(a.Mode, a.OrderID)
		inFlight := s.loading && s.loadGen == s.reg.Generation()
		need = !cached && !inFlight
	} else if a.Mode.UsesTickets() {
		if _, ok := s.cache.Get(a.Mode, ""); !ok {
			s.cache.Put(cart.EmptySnapshot(a.Mode, ""), s.nextSeqLocked())
		}
	}
	if !need {
		v := s.viewLocked()
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	if err := s.FetchActiveCart(ctx); err != nil && !remote.IsTransport(err) {
		log.Printf("ERROR: terminal %s: load cart: %v", s.id, err)
	}
	return s.View()
}

func (s *Session) viewLocked() View {
	a := s.reg.Active()
	v := View{
		TerminalID:  s.id,
		Mode:        a.Mode,
		OrderID:     a.OrderID,
		DisplayName: a.DisplayName,
		Loading:     s.loading,
		Customer:    s.customer,
		Generation:  s.reg.Generation(),
	}
	if a.Mode.UsesTickets() {
		v.Tickets = s.reg.Tickets(a.Mode)
	}

	if a.OrderID == "" && !a.Mode.UsesTickets() {
		v.State = enum.CartStateNoSelection
		return v
	}
	e, ok := s.cache.Get(a.Mode, a.OrderID)
	if !ok {
		v.State = enum.CartStateEmpty
		return v
	}
	v.State = e.State()
	v.Error = e.Err
	v.Cart = e.Snapshot.Clone()
	return v
}

func (s *Session) unlockAndNotify() {
	v := s.viewLocked()
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(v)
	}
}

// --- Context selection ---

// SetActiveMode switches the service mode and loads the new mode's cart.
// Switching to the active mode does nothing.
func (s *Session) SetActiveMode(ctx context.Context, mode enum.ServiceMode) error {
	s.mu.Lock()
	prev, changed, err := s.reg.SetActiveMode(mode)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !changed {
		s.mu.Unlock()
		return nil
	}
	s.cache.Invalidate(prev)
	s.mu.Unlock()

	return s.FetchActiveCart(ctx)
}

// SelectTable sets the dine-in table.
func (s *Session) SelectTable(ctx context.Context, tableID, name string) error {
	if tableID == "" {
		return ErrMissingOrderID
	}
	return s.selectOrder(ctx, enum.ServiceModeDineIn, tableID, name)
}

// ClearTable clears the dine-in table and discards its cart.
func (s *Session) ClearTable(ctx context.Context) error {
	return s.clearOrder(ctx, enum.ServiceModeDineIn)
}

// NewTicket opens a ticket in the active take-away or delivery mode. A new
// ticket has no remote cart yet, so it starts with the empty cart shape.
func (s *Session) NewTicket() (cart.Ticket, error) {
	s.mu.Lock()
	mode := s.reg.Active().Mode
	t, err := s.reg.NewTicket(mode)
	if err != nil {
		s.mu.Unlock()
		return cart.Ticket{}, err
	}
	s.cache.Invalidate(mode)
	s.cache.Put(cart.EmptySnapshot(mode, t.ID), s.nextSeqLocked())
	s.unlockAndNotify()
	return t, nil
}

// Tickets lists the open tickets of the active mode.
func (s *Session) Tickets() []cart.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Tickets(s.reg.Active().Mode)
}

// SelectTicket makes an open ticket of the active mode current.
func (s *Session) SelectTicket(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	mode := s.reg.Active().Mode
	if !mode.UsesTickets() {
		s.mu.Unlock()
		return cart.ErrTicketMode
	}
	t, ok := s.reg.Ticket(mode, ticketID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTicket, ticketID)
	}
	return s.selectOrder(ctx, mode, t.ID, t.Name)
}

// ClearTicket clears the active ticket; it stays in the open list.
func (s *Session) ClearTicket(ctx context.Context) error {
	s.mu.Lock()
	mode := s.reg.Active().Mode
	s.mu.Unlock()
	if !mode.UsesTickets() {
		return cart.ErrTicketMode
	}
	return s.clearOrder(ctx, mode)
}

func (s *Session) selectOrder(ctx context.Context, mode enum.ServiceMode, id, name string) error {
	s.mu.Lock()
	changed, err := s.reg.SetActiveOrderID(mode, id, name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !changed {
		s.unlockAndNotify()
		return nil
	}
	s.cache.Invalidate(mode)
	active := s.reg.Active().Mode == mode
	if !active {
		s.unlockAndNotify()
		return nil
	}
	s.mu.Unlock()
	return s.FetchActiveCart(ctx)
}

func (s *Session) clearOrder(ctx context.Context, mode enum.ServiceMode) error {
	s.mu.Lock()
	s.reg.ClearOrder(mode)
	s.cache.Invalidate(mode)
	active := s.reg.Active().Mode == mode
	if !active {
		s.unlockAndNotify()
		return nil
	}
	s.mu.Unlock()
	return s.FetchActiveCart(ctx)
}

// SetCustomer sets the customer reference for later cart and invoice calls.
func (s *Session) SetCustomer(c Customer) {
	s.mu.Lock()
	s.customer = c
	s.unlockAndNotify()
}

// Customer returns the selected customer reference.
func (s *Session) Customer() Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customer
}

// --- Checkout hand-off ---

// Checkout returns a copy of the active cart for payment. The cart must be
// selected, loaded and non-empty.
func (s *Session) Checkout() (*cart.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.reg.Active()
	if a.OrderID == "" {
		return nil, ErrNoActiveOrder
	}
	e, ok := s.cache.Get(a.Mode, a.OrderID)
	if !ok || e.Snapshot == nil {
		return nil, ErrCartNotLoaded
	}
	if e.Snapshot.IsEmpty() {
		return nil, ErrEmptyCart
	}
	return e.Snapshot.Clone(), nil
}

// Settle finishes the order (mode, orderID) after its invoice was created. A
// ticket is cleared and dropped from the open list; a dine-in table stays
// selected with an empty cart.
func (s *Session) Settle(mode enum.ServiceMode, orderID string) {
	s.mu.Lock()
	if s.reg.Context(mode).OrderID == orderID {
		if mode.UsesTickets() {
			s.reg.ClearOrder(mode)
		}
		s.cache.Invalidate(mode)
		if a := s.reg.Active(); a.Mode == mode && (a.OrderID != "" || mode.UsesTickets()) {
			s.cache.Put(cart.EmptySnapshot(mode, a.OrderID), s.nextSeqLocked())
		}
	} else {
		s.cache.Drop(mode, orderID)
	}
	if mode.UsesTickets() {
		s.reg.RemoveTicket(mode, orderID)
	}
	s.unlockAndNotify()
}

func (s *Session) nextSeqLocked() uint64 {
	s.fetchSeq++
	return s.fetchSeq
}
