// Package terminal keeps one cart session and one payment finalizer per
// signed-in cashier and pushes their state changes to the cashier's screens.
package terminal

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/payment"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/ws"
)

// Service is the remote order service. Satisfied by *remote.Client.
type Service interface {
	session.CartService
	payment.InvoiceService
}

// Broadcaster pushes an event to every screen of a terminal.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(terminalID uuid.UUID, eventType string, payload any)
}

// Options configure every terminal the manager creates.
type Options struct {
	Recorder      payment.Recorder
	Publisher     payment.Publisher
	Broadcaster   Broadcaster
	SafetyTimeout time.Duration
	Verbose       bool
}

// Terminal is the state of one cashier.
type Terminal struct {
	ID      uuid.UUID
	Session *session.Session
	Payment *payment.Finalizer
}

// Manager owns the terminals of the process.
type Manager struct {
	svc  Service
	opts Options

	mu        sync.Mutex
	terminals map[uuid.UUID]*Terminal
}

// NewManager creates a Manager whose terminals talk to svc and share opts.
func NewManager(svc Service, opts Options) *Manager {
	return &Manager{
		svc:       svc,
		opts:      opts,
		terminals: make(map[uuid.UUID]*Terminal),
	}
}

// Get returns the terminal of userID, creating it on first use. A terminal
// created for another organization is replaced: carts never cross tenants.
func (m *Manager) Get(userID uuid.UUID, organizationID string) *Terminal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.terminals[userID]; ok {
		if t.Session.OrganizationID() == organizationID {
			return t
		}
		log.Printf("WARN: terminal %s switched organization %s -> %s, discarding its state",
			userID, t.Session.OrganizationID(), organizationID)
	}
	t := m.newTerminal(userID, organizationID)
	m.terminals[userID] = t
	return t
}

// Lookup returns an existing terminal.
func (m *Manager) Lookup(userID uuid.UUID) (*Terminal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.terminals[userID]
	return t, ok
}

// Drop forgets a terminal, e.g. on sign-out.
func (m *Manager) Drop(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.terminals, userID)
}

// Len is the number of live terminals.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.terminals)
}

func (m *Manager) newTerminal(id uuid.UUID, organizationID string) *Terminal {
	t := &Terminal{ID: id}

	t.Session = session.New(id, organizationID, m.svc, session.Options{
		SafetyTimeout: m.opts.SafetyTimeout,
		Verbose:       m.opts.Verbose,
		OnChange: func(v session.View) {
			m.broadcast(id, ws.EventCartState, v)
			// Payment totals follow the cart.
			if t.Payment != nil {
				m.broadcast(id, ws.EventPaymentState, t.Payment.View())
			}
		},
	})

	t.Payment = payment.NewFinalizer(id, t.Session, m.svc, payment.Options{
		Recorder:  m.opts.Recorder,
		Publisher: m.opts.Publisher,
		OnChange: func(v payment.View) {
			m.broadcast(id, ws.EventPaymentState, v)
		},
		OnSettled: func(r payment.Receipt) {
			m.broadcast(id, ws.EventPaymentSettled, r)
		},
	})
	return t
}

func (m *Manager) broadcast(id uuid.UUID, eventType string, payload any) {
	if m.opts.Broadcaster == nil {
		return
	}
	m.opts.Broadcaster.Broadcast(id, eventType, payload)
}
