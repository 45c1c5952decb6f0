package session

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/shopspring/decimal"
)

// Line edits report applied=false, with no error, when the target line is
// locked or the edit has nothing to do. Remote failures keep the optimistic
// edit, mark the cart entry as errored and are returned wrapped.

// Increase adds one unit locally and on the remote cart, then refetches.
func (s *Session) Increase(ctx context.Context, index int) (bool, error) {
	if !remote.HasCredential(ctx) {
		return false, fmt.Errorf("increase: %w", remote.ErrMissingCredential)
	}
	s.mu.Lock()
	a, snap, line, err := s.lineLocked(index)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if line.Locked {
		s.mu.Unlock()
		return false, nil
	}
	line.Qty++
	snap.Recalculate()
	req := s.addRequestLocked(a, line.ProductID, line.Name, line.Price)
	s.unlockAndNotify()

	if err := s.svc.AddToCart(ctx, req); err != nil {
		return true, s.remoteFailed(a, "increase", err)
	}
	return true, s.FetchActiveCart(ctx)
}

// Decrease removes one unit locally. It never goes below one and is not sent
// to the remote service; the next refetch replaces it.
func (s *Session) Decrease(index int) (bool, error) {
	s.mu.Lock()
	_, snap, line, err := s.lineLocked(index)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if line.Locked || line.Qty <= 1 {
		s.mu.Unlock()
		return false, nil
	}
	line.Qty--
	snap.Recalculate()
	s.unlockAndNotify()
	return true, nil
}

// SetNote edits a line's note locally.
func (s *Session) SetNote(index int, note string) (bool, error) {
	s.mu.Lock()
	_, _, line, err := s.lineLocked(index)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if line.Locked {
		s.mu.Unlock()
		return false, nil
	}
	line.Note = note
	s.unlockAndNotify()
	return true, nil
}

// CommitNote persists a line's current note, then refetches.
func (s *Session) CommitNote(ctx context.Context, index int) (bool, error) {
	if !remote.HasCredential(ctx) {
		return false, fmt.Errorf("commit note: %w", remote.ErrMissingCredential)
	}
	s.mu.Lock()
	a, _, line, err := s.lineLocked(index)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if line.Locked {
		s.mu.Unlock()
		return false, nil
	}
	lineID, note := line.ID, line.Note
	s.mu.Unlock()

	if err := s.svc.AddNote(ctx, lineID, note); err != nil {
		return true, s.remoteFailed(a, "commit note", err)
	}
	return true, s.FetchActiveCart(ctx)
}

// DeleteLine removes a line locally and on the remote cart, then refetches.
func (s *Session) DeleteLine(ctx context.Context, index int) (bool, error) {
	if !remote.HasCredential(ctx) {
		return false, fmt.Errorf("delete line: %w", remote.ErrMissingCredential)
	}
	s.mu.Lock()
	a, snap, line, err := s.lineLocked(index)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if line.Locked {
		s.mu.Unlock()
		return false, nil
	}
	productID := line.ProductID
	snap.Lines = append(snap.Lines[:index:index], snap.Lines[index+1:]...)
	snap.Recalculate()
	org := s.organizationID
	s.unlockAndNotify()

	if err := s.svc.DeleteCartItem(ctx, a.OrderID, productID, org); err != nil {
		return true, s.remoteFailed(a, "delete line", err)
	}
	return true, s.FetchActiveCart(ctx)
}

// --- Cart additions ---

// AddProduct adds one unit of a catalog product to the active order.
func (s *Session) AddProduct(ctx context.Context, productID, name string, price decimal.Decimal) error {
	if strings.TrimSpace(productID) == "" {
		return ErrInvalidProduct
	}
	return s.add(ctx, "add product", productID, name, price)
}

// AddCharge adds a custom "other service" charge to the active order.
func (s *Session) AddCharge(ctx context.Context, name string, amount decimal.Decimal) error {
	if strings.TrimSpace(name) == "" || !amount.IsPositive() {
		return ErrInvalidCharge
	}
	return s.add(ctx, "add charge", "", name, amount)
}

func (s *Session) add(ctx context.Context, op, productID, name string, price decimal.Decimal) error {
	if !remote.HasCredential(ctx) {
		return fmt.Errorf("%s: %w", op, remote.ErrMissingCredential)
	}
	s.mu.Lock()
	a := s.reg.Active()
	if a.OrderID == "" {
		s.mu.Unlock()
		return ErrNoActiveOrder
	}
	req := s.addRequestLocked(a, productID, name, price)
	s.mu.Unlock()

	if err := s.svc.AddToCart(ctx, req); err != nil {
		return s.remoteFailed(a, op, err)
	}
	return s.FetchActiveCart(ctx)
}

// PlaceOrder sends the active order's pending lines to the kitchen, then
// refetches so they come back locked.
func (s *Session) PlaceOrder(ctx context.Context) error {
	if !remote.HasCredential(ctx) {
		return fmt.Errorf("place order: %w", remote.ErrMissingCredential)
	}
	s.mu.Lock()
	a := s.reg.Active()
	if a.OrderID == "" {
		s.mu.Unlock()
		return ErrNoActiveOrder
	}
	if e, ok := s.cache.Get(a.Mode, a.OrderID); !ok || e.Snapshot.IsEmpty() {
		s.mu.Unlock()
		return ErrEmptyCart
	}
	s.mu.Unlock()

	if err := s.svc.PlaceOrder(ctx, a.OrderID); err != nil {
		return s.remoteFailed(a, "place order", err)
	}
	return s.FetchActiveCart(ctx)
}

// --- Helpers ---

func (s *Session) lineLocked(index int) (cart.Active, *cart.Snapshot, *cart.Line, error) {
	a := s.reg.Active()
	if a.OrderID == "" {
		return a, nil, nil, ErrNoActiveOrder
	}
	e, ok := s.cache.Get(a.Mode, a.OrderID)
	if !ok || e.Snapshot == nil {
		return a, nil, nil, ErrCartNotLoaded
	}
	if index < 0 || index >= len(e.Snapshot.Lines) {
		return a, nil, nil, fmt.Errorf("%w: %d", ErrLineIndex, index)
	}
	return a, e.Snapshot, &e.Snapshot.Lines[index], nil
}

func (s *Session) addRequestLocked(a cart.Active, productID, name string, price decimal.Decimal) remote.AddToCartRequest {
	return remote.AddToCartRequest{
		OrderID:        a.OrderID,
		ProductID:      productID,
		Qty:            1,
		CustomerID:     s.customer.ID,
		Name:           name,
		Price:          price,
		OrderTypeCode:  a.Mode.OrderTypeCode(),
		OrganizationID: s.organizationID,
	}
}

// remoteFailed records a failed remote write on the entry it was made for,
// if that entry is still the active one.
func (s *Session) remoteFailed(a cart.Active, op string, err error) error {
	s.mu.Lock()
	s.cache.SetError(a.Mode, a.OrderID, fmt.Sprintf("%s: %v", op, err), s.nextSeqLocked())
	log.Printf("ERROR: terminal %s: %s %s/%s: %v", s.id, op, a.Mode, a.OrderID, err)
	s.unlockAndNotify()
	return fmt.Errorf("%s: %w", op, err)
}
