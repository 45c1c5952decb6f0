// Package payment drives the finish-order flow of a terminal: choosing a
// payment method, confirming the amount and turning the cart into an invoice.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/checkout"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/shopspring/decimal"
)

// Errors returned by the finalizer.
var (
	ErrInvalidState       = errors.New("operation not allowed in the current payment state")
	ErrNoPaymentMethod    = errors.New("no payment method selected")
	ErrInvalidMethod      = errors.New("invalid payment method")
	ErrCardTypeRequired   = errors.New("card payments need a card type")
	ErrInvalidCardType    = errors.New("invalid card type")
	ErrInsufficientTender = errors.New("amount tendered is less than the total")
	ErrContextChanged     = errors.New("order changed since confirmation")
)

// Cart is the terminal session as seen by the finalizer.
type Cart interface {
	Checkout() (*cart.Snapshot, error)
	Customer() session.Customer
	OrganizationID() string
	Settle(mode enum.ServiceMode, orderID string)
}

// InvoiceService is the part of the remote order service used to settle.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req remote.InvoiceRequest) (*remote.InvoiceResponse, error)
	DeleteCart(ctx context.Context, orderID string) error
}

// Recorder stores submission attempts.
type Recorder interface {
	Record(ctx context.Context, a Attempt) error
}

// Publisher announces settled invoices.
type Publisher interface {
	PublishSettled(ctx context.Context, r Receipt) error
}

// Attempt is one invoice submission, settled or failed.
type Attempt struct {
	InvoiceNumber  string
	TerminalID     uuid.UUID
	OrganizationID string
	Mode           enum.ServiceMode
	OrderID        string
	Method         enum.PaymentMethod
	CardType       string
	Totals         checkout.Totals
	Outcome        string
	Error          string
	At             time.Time
}

// Receipt describes a settled invoice.
type Receipt struct {
	InvoiceNumber  string               `json:"invoice_number"`
	TerminalID     uuid.UUID            `json:"terminal_id"`
	OrganizationID string               `json:"organization_id"`
	Mode           enum.ServiceMode     `json:"mode"`
	OrderID        string               `json:"order_id"`
	Method         enum.PaymentMethod   `json:"method"`
	CardType       string               `json:"card_type,omitempty"`
	CustomerID     string               `json:"customer_id,omitempty"`
	Totals         checkout.Display     `json:"totals"`
	Items          []remote.InvoiceItem `json:"items"`
	CartDeleted    bool                 `json:"cart_deleted"`
	SettledAt      time.Time            `json:"settled_at"`
}

// Options wire optional collaborators.
type Options struct {
	Recorder  Recorder
	Publisher Publisher
	// OnChange and OnSettled are called without the finalizer lock held.
	OnChange  func(View)
	OnSettled func(Receipt)
	Now       func() time.Time
}

// View is the payment state shown to the cashier.
type View struct {
	State         string             `json:"state"`
	Method        enum.PaymentMethod `json:"method,omitempty"`
	CardType      string             `json:"card_type,omitempty"`
	DiscountInput string             `json:"discount_input"`
	TenderedInput string             `json:"tendered_input"`
	Totals        *checkout.Display  `json:"totals,omitempty"`
	Covered       bool               `json:"covered"`
	Error         string             `json:"error,omitempty"`
	LastInvoice   string             `json:"last_invoice,omitempty"`
}

type confirmation struct {
	mode    enum.ServiceMode
	orderID string
}

// Finalizer is the payment state machine of one terminal:
// IDLE → METHOD_SELECTED → AWAITING_CONFIRMATION → SUBMITTING → SETTLED | FAILED.
// SETTLED resets to IDLE; FAILED returns to AWAITING_CONFIRMATION.
type Finalizer struct {
	terminalID uuid.UUID
	cart       Cart
	svc        InvoiceService
	opts       Options

	mu            sync.Mutex
	state         string
	method        enum.PaymentMethod
	cardType      string
	discountInput string
	discount      decimal.Decimal
	tenderedInput string
	tendered      decimal.Decimal
	lastError     string
	lastInvoice   string
	confirmed     *confirmation
}

// NewFinalizer creates an idle finalizer for the terminal's cart.
func NewFinalizer(terminalID uuid.UUID, c Cart, svc InvoiceService, opts Options) *Finalizer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Finalizer{
		terminalID: terminalID,
		cart:       c,
		svc:        svc,
		opts:       opts,
		state:      enum.PaymentStateIdle,
		discount:   decimal.Zero,
		tendered:   decimal.Zero,
	}
}

// View returns the payment state with totals for the current cart, if any.
func (f *Finalizer) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Finalizer) viewLocked() View {
	v := View{
		State:         f.state,
		Method:        f.method,
		CardType:      f.cardType,
		DiscountInput: f.discountInput,
		TenderedInput: f.tenderedInput,
		Error:         f.lastError,
		LastInvoice:   f.lastInvoice,
	}
	if snap, err := f.cart.Checkout(); err == nil {
		t := f.totalsLocked(snap)
		d := t.Rounded().Display()
		v.Totals = &d
		v.Covered = f.method == enum.PaymentMethodCard || t.Covers()
	}
	return v
}

func (f *Finalizer) unlockAndNotify() {
	v := f.viewLocked()
	f.mu.Unlock()
	if f.opts.OnChange != nil {
		f.opts.OnChange(v)
	}
}

// totalsLocked computes the totals for snap. Card payments charge the exact
// total unless an amount was entered.
func (f *Finalizer) totalsLocked(snap *cart.Snapshot) checkout.Totals {
	t := checkout.Calculate(snap, f.discount, f.tendered)
	if f.method == enum.PaymentMethodCard && f.tendered.IsZero() {
		t = checkout.Calculate(snap, f.discount, t.Total.Round(2))
	}
	return t
}

// --- Inputs ---

// SelectMethod picks the payment method; cardType is only kept for cards.
func (f *Finalizer) SelectMethod(method enum.PaymentMethod, cardType string) error {
	if !method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if cardType != "" && !enum.IsValidCardType(cardType) {
		return fmt.Errorf("%w: %q", ErrInvalidCardType, cardType)
	}
	f.mu.Lock()
	if f.state == enum.PaymentStateSubmitting {
		f.mu.Unlock()
		return ErrInvalidState
	}
	if method != enum.PaymentMethodCard {
		cardType = ""
	}
	f.method = method
	f.cardType = cardType
	f.state = enum.PaymentStateMethodSelected
	f.confirmed = nil
	f.lastError = ""
	f.unlockAndNotify()
	return nil
}

// SetDiscount sets the discount percentage from keypad input.
func (f *Finalizer) SetDiscount(input string) error {
	d, err := checkout.ParseDiscount(input)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if f.state == enum.PaymentStateSubmitting {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.discountInput = input
	f.discount = d
	f.inputsChangedLocked()
	f.unlockAndNotify()
	return nil
}

// SetTendered sets the amount handed over by the customer.
func (f *Finalizer) SetTendered(input string) error {
	amount, err := checkout.ParseAmount(input)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if f.state == enum.PaymentStateSubmitting {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.tenderedInput = input
	f.tendered = amount
	f.inputsChangedLocked()
	f.unlockAndNotify()
	return nil
}

// inputsChangedLocked drops a confirmation made with the old inputs.
func (f *Finalizer) inputsChangedLocked() {
	if f.state == enum.PaymentStateAwaitingConfirmation || f.state == enum.PaymentStateFailed {
		f.state = enum.PaymentStateMethodSelected
		f.confirmed = nil
	}
}

// Cancel discards the attempt and its inputs.
func (f *Finalizer) Cancel() error {
	f.mu.Lock()
	if f.state == enum.PaymentStateSubmitting {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.resetLocked()
	f.unlockAndNotify()
	return nil
}

func (f *Finalizer) resetLocked() {
	f.state = enum.PaymentStateIdle
	f.method = ""
	f.cardType = ""
	f.discountInput = ""
	f.discount = decimal.Zero
	f.tenderedInput = ""
	f.tendered = decimal.Zero
	f.lastError = ""
	f.confirmed = nil
}

// --- Confirmation and submission ---

// Confirm checks the attempt can be submitted and moves to
// AWAITING_CONFIRMATION. No remote call is made.
func (f *Finalizer) Confirm() (checkout.Totals, error) {
	f.mu.Lock()
	switch f.state {
	case enum.PaymentStateIdle:
		f.mu.Unlock()
		return checkout.Totals{}, ErrNoPaymentMethod
	case enum.PaymentStateMethodSelected, enum.PaymentStateAwaitingConfirmation, enum.PaymentStateFailed:
	default:
		f.mu.Unlock()
		return checkout.Totals{}, ErrInvalidState
	}
	snap, totals, err := f.checkLocked()
	if err != nil {
		f.mu.Unlock()
		return checkout.Totals{}, err
	}
	f.confirmed = &confirmation{mode: snap.Mode, orderID: snap.OrderID}
	f.state = enum.PaymentStateAwaitingConfirmation
	f.lastError = ""
	f.unlockAndNotify()
	return totals.Rounded(), nil
}

func (f *Finalizer) checkLocked() (*cart.Snapshot, checkout.Totals, error) {
	if !f.method.Valid() {
		return nil, checkout.Totals{}, ErrNoPaymentMethod
	}
	if f.method == enum.PaymentMethodCard && f.cardType == "" {
		return nil, checkout.Totals{}, ErrCardTypeRequired
	}
	snap, err := f.cart.Checkout()
	if err != nil {
		return nil, checkout.Totals{}, err
	}
	totals := f.totalsLocked(snap)
	if f.method != enum.PaymentMethodCard && !totals.Covers() {
		return nil, checkout.Totals{}, fmt.Errorf("%w: tendered %s, total %s",
			ErrInsufficientTender, totals.Tendered.StringFixed(2), totals.Total.StringFixed(2))
	}
	return snap, totals, nil
}

// Submit creates the invoice for the confirmed cart. On success the remote
// cart is deleted (best effort), the session settles the order and the
// finalizer resets to IDLE. On failure nothing in the session changes and the
// finalizer returns to AWAITING_CONFIRMATION.
func (f *Finalizer) Submit(ctx context.Context) (*Receipt, error) {
	if !remote.HasCredential(ctx) {
		return nil, fmt.Errorf("submit payment: %w", remote.ErrMissingCredential)
	}

	f.mu.Lock()
	if f.state != enum.PaymentStateAwaitingConfirmation && f.state != enum.PaymentStateFailed {
		f.mu.Unlock()
		return nil, ErrInvalidState
	}
	snap, totals, err := f.checkLocked()
	if err != nil {
		f.state = enum.PaymentStateMethodSelected
		f.confirmed = nil
		f.unlockAndNotify()
		return nil, err
	}
	if f.confirmed == nil || f.confirmed.mode != snap.Mode || f.confirmed.orderID != snap.OrderID {
		f.state = enum.PaymentStateMethodSelected
		f.confirmed = nil
		f.unlockAndNotify()
		return nil, ErrContextChanged
	}

	now := f.opts.Now()
	customer := f.cart.Customer()
	req := BuildInvoice(InvoiceInput{
		InvoiceNumber:  NewInvoiceNumber(now),
		Snapshot:       snap,
		Totals:         totals,
		Method:         f.method,
		CardType:       f.cardType,
		CustomerID:     customer.ID,
		OrganizationID: f.cart.OrganizationID(),
	})
	attempt := Attempt{
		InvoiceNumber:  req.InvoiceNumber,
		TerminalID:     f.terminalID,
		OrganizationID: req.OrganizationID,
		Mode:           snap.Mode,
		OrderID:        snap.OrderID,
		Method:         f.method,
		CardType:       req.CardType,
		Totals:         totals.Rounded(),
		At:             now,
	}
	f.state = enum.PaymentStateSubmitting
	f.lastError = ""
	f.unlockAndNotify()

	// The invoice outlives the request: once the create call is sent the
	// remote may commit it, so neither it nor the follow-up calls are cut
	// short by a client disconnect. The client timeout still bounds them.
	bg := context.WithoutCancel(ctx)

	resp, err := f.svc.CreateInvoice(bg, req)
	if err != nil {
		log.Printf("ERROR: terminal %s: create invoice %s: %v", f.terminalID, req.InvoiceNumber, err)
		attempt.Outcome = enum.JournalOutcomeFailed
		attempt.Error = err.Error()
		f.record(bg, attempt)

		f.mu.Lock()
		f.state = enum.PaymentStateFailed
		f.lastError = err.Error()
		f.unlockAndNotify()

		f.mu.Lock()
		if f.state == enum.PaymentStateFailed {
			f.state = enum.PaymentStateAwaitingConfirmation
		}
		f.unlockAndNotify()
		return nil, fmt.Errorf("submit payment: %w", err)
	}

	if resp != nil && resp.InvoiceNumber != "" {
		attempt.InvoiceNumber = resp.InvoiceNumber
	}
	receipt := &Receipt{
		InvoiceNumber:  attempt.InvoiceNumber,
		TerminalID:     f.terminalID,
		OrganizationID: req.OrganizationID,
		Mode:           snap.Mode,
		OrderID:        snap.OrderID,
		Method:         attempt.Method,
		CardType:       req.CardType,
		CustomerID:     customer.ID,
		Totals:         attempt.Totals.Display(),
		Items:          req.Items,
		CartDeleted:    true,
		SettledAt:      now,
	}
	if err := f.svc.DeleteCart(bg, snap.OrderID); err != nil {
		log.Printf("WARN: terminal %s: invoice %s settled but remote cart %s not deleted: %v",
			f.terminalID, receipt.InvoiceNumber, snap.OrderID, err)
		receipt.CartDeleted = false
	}
	f.cart.Settle(snap.Mode, snap.OrderID)

	attempt.Outcome = enum.JournalOutcomeSettled
	f.record(bg, attempt)
	if f.opts.Publisher != nil {
		if err := f.opts.Publisher.PublishSettled(bg, *receipt); err != nil {
			log.Printf("WARN: terminal %s: publish invoice %s: %v", f.terminalID, receipt.InvoiceNumber, err)
		}
	}

	f.mu.Lock()
	f.state = enum.PaymentStateSettled
	f.lastInvoice = receipt.InvoiceNumber
	f.unlockAndNotify()

	f.mu.Lock()
	f.resetLocked()
	f.unlockAndNotify()
	if f.opts.OnSettled != nil {
		f.opts.OnSettled(*receipt)
	}
	return receipt, nil
}

func (f *Finalizer) record(ctx context.Context, a Attempt) {
	if f.opts.Recorder == nil {
		return
	}
	if err := f.opts.Recorder.Record(ctx, a); err != nil {
		log.Printf("WARN: terminal %s: journal invoice %s: %v", f.terminalID, a.InvoiceNumber, err)
	}
}
