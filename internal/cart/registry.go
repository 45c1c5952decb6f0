package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/enum"
)

// Errors returned by the registry.
var (
	ErrInvalidMode = errors.New("invalid service mode")
	ErrTicketMode  = errors.New("tickets are only used for take-away and delivery")
)

// OrderContext is the active order of one service mode.
type OrderContext struct {
	OrderID     string `json:"order_id"`
	DisplayName string `json:"display_name"`
}

// Active is the terminal's current (mode, order) pair.
type Active struct {
	Mode        enum.ServiceMode
	OrderID     string
	DisplayName string
}

// Ticket is a client-generated take-away or delivery order.
type Ticket struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Mode      enum.ServiceMode `json:"mode"`
	CreatedAt time.Time        `json:"created_at"`
}

// Registry holds the active service mode and, per mode, the active order and
// the open tickets. The generation counter moves forward every time the active
// context changes or its cached data is discarded; fetches compare it before
// writing results.
//
// Registry is not safe for concurrent use. The owning session serialises access.
type Registry struct {
	active   enum.ServiceMode
	contexts map[enum.ServiceMode]OrderContext
	tickets  map[enum.ServiceMode][]Ticket
	counters map[enum.ServiceMode]int
	gen      uint64
	now      func() time.Time
}

// NewRegistry starts in dine-in with nothing selected.
func NewRegistry() *Registry {
	return &Registry{
		active:   enum.ServiceModeDineIn,
		contexts: make(map[enum.ServiceMode]OrderContext),
		tickets:  make(map[enum.ServiceMode][]Ticket),
		counters: make(map[enum.ServiceMode]int),
		now:      time.Now,
	}
}

// Active returns the current mode and its order.
func (r *Registry) Active() Active {
	oc := r.contexts[r.active]
	return Active{Mode: r.active, OrderID: oc.OrderID, DisplayName: oc.DisplayName}
}

// Context returns the order context of any mode.
func (r *Registry) Context(mode enum.ServiceMode) OrderContext {
	return r.contexts[mode]
}

// Generation is the current context generation.
func (r *Registry) Generation() uint64 {
	return r.gen
}

// Touch advances the generation without changing the context.
func (r *Registry) Touch() {
	r.gen++
}

// SetActiveMode switches the active mode. Switching to the already-active mode
// is a no-op and reports changed=false. Leaving a ticket mode clears its
// active ticket.
func (r *Registry) SetActiveMode(mode enum.ServiceMode) (prev enum.ServiceMode, changed bool, err error) {
	if !mode.Valid() {
		return r.active, false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	prev = r.active
	if mode == prev {
		return prev, false, nil
	}
	if prev.UsesTickets() {
		delete(r.contexts, prev)
	}
	r.active = mode
	r.gen++
	return prev, true, nil
}

// SetActiveOrderID sets (or with id == "" clears) the order of a mode. It
// reports whether anything changed.
func (r *Registry) SetActiveOrderID(mode enum.ServiceMode, id, displayName string) (bool, error) {
	if !mode.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	cur := r.contexts[mode]
	if cur.OrderID == id {
		if id != "" && displayName != "" && displayName != cur.DisplayName {
			cur.DisplayName = displayName
			r.contexts[mode] = cur
		}
		return false, nil
	}
	if id == "" {
		delete(r.contexts, mode)
	} else {
		r.contexts[mode] = OrderContext{OrderID: id, DisplayName: displayName}
	}
	if mode == r.active {
		r.gen++
	}
	return true, nil
}

// ClearOrder clears the active order of a mode.
func (r *Registry) ClearOrder(mode enum.ServiceMode) bool {
	changed, _ := r.SetActiveOrderID(mode, "", "")
	return changed
}

// NewTicket opens a ticket with a fresh UUID and a TA-n / DL-n display name
// and makes it the mode's active order.
func (r *Registry) NewTicket(mode enum.ServiceMode) (Ticket, error) {
	if !mode.UsesTickets() {
		return Ticket{}, ErrTicketMode
	}
	r.counters[mode]++
	t := Ticket{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("%s-%d", mode.TicketPrefix(), r.counters[mode]),
		Mode:      mode,
		CreatedAt: r.now(),
	}
	r.tickets[mode] = append(r.tickets[mode], t)
	if _, err := r.SetActiveOrderID(mode, t.ID, t.Name); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Tickets lists the open tickets of a mode, oldest first.
func (r *Registry) Tickets(mode enum.ServiceMode) []Ticket {
	out := make([]Ticket, len(r.tickets[mode]))
	copy(out, r.tickets[mode])
	return out
}

// Ticket looks up an open ticket.
func (r *Registry) Ticket(mode enum.ServiceMode, id string) (Ticket, bool) {
	for _, t := range r.tickets[mode] {
		if t.ID == id {
			return t, true
		}
	}
	return Ticket{}, false
}

// RemoveTicket drops a finished ticket from the open list.
func (r *Registry) RemoveTicket(mode enum.ServiceMode, id string) {
	list := r.tickets[mode]
	for i, t := range list {
		if t.ID == id {
			r.tickets[mode] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}
