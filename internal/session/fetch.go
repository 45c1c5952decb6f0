package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/remote"
)

// FetchActiveCart loads the cart of the active context into the cache.
//
// Dine-in without a table is left uncached. A take-away or delivery mode
// without a ticket gets the empty cart shape. Neither makes a remote call.
// Otherwise the remote cart is fetched and only stored if the context did not
// change while the call was in flight. A failed fetch keeps the last good
// snapshot and marks the entry as errored.
func (s *Session) FetchActiveCart(ctx context.Context) error {
	s.mu.Lock()
	a := s.reg.Active()
	if a.OrderID == "" {
		if a.Mode.UsesTickets() {
			s.cache.Put(cart.EmptySnapshot(a.Mode, ""), s.nextSeqLocked())
		}
		s.unlockAndNotify()
		return nil
	}
	if !remote.HasCredential(ctx) {
		s.mu.Unlock()
		return fmt.Errorf("fetch cart: %w", remote.ErrMissingCredential)
	}

	gen := s.reg.Generation()
	seq := s.nextSeqLocked()
	token := s.beginLoadingLocked(gen, a)
	org := s.organizationID
	s.unlockAndNotify()

	resp, err := s.svc.GetCart(ctx, a.OrderID, org)

	s.mu.Lock()
	s.endLoadingLocked(token)
	if s.reg.Generation() != gen {
		if s.verbose {
			log.Printf("DEBUG: terminal %s: discarded stale cart for %s/%s (gen %d, now %d)",
				s.id, a.Mode, a.OrderID, gen, s.reg.Generation())
		}
		s.unlockAndNotify()
		return nil
	}
	if err != nil {
		s.cache.SetError(a.Mode, a.OrderID, err.Error(), seq)
		log.Printf("ERROR: terminal %s: fetch cart %s/%s: %v", s.id, a.Mode, a.OrderID, err)
		s.unlockAndNotify()
		return fmt.Errorf("fetch cart: %w", err)
	}
	if !s.cache.Put(cart.FromRemote(a.Mode, a.OrderID, resp), seq) && s.verbose {
		log.Printf("DEBUG: terminal %s: cache refused cart for %s/%s (seq %d)", s.id, a.Mode, a.OrderID, seq)
	}
	s.unlockAndNotify()
	return nil
}

// --- Loading flag and safety timeout ---

// beginLoadingLocked marks the terminal as loading and arms the safety timer.
// Each call supersedes the previous one; only the newest token can settle.
func (s *Session) beginLoadingLocked(gen uint64, a cart.Active) uint64 {
	s.loadToken++
	token := s.loadToken
	s.loading = true
	s.loadGen = gen
	if s.safety != nil {
		s.safety.Stop()
	}
	s.safety = time.AfterFunc(s.safetyTimeout, func() { s.forceSettle(token, a) })
	return token
}

func (s *Session) endLoadingLocked(token uint64) {
	if token != s.loadToken {
		return
	}
	s.loading = false
	if s.safety != nil {
		s.safety.Stop()
		s.safety = nil
	}
}

// forceSettle clears a loading flag that outlived the safety timeout. The
// request itself keeps running; its result is still gated on the generation.
func (s *Session) forceSettle(token uint64, a cart.Active) {
	s.mu.Lock()
	if !s.loading || token != s.loadToken {
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.safety = nil
	log.Printf("WARN: terminal %s: cart load for %s/%s still pending after %s, forcing settled",
		s.id, a.Mode, a.OrderID, s.safetyTimeout)
	s.unlockAndNotify()
}
