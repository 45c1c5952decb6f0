package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/checkout"
	"github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/payment"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/terminal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps engine and remote errors to a status code.
func writeError(w http.ResponseWriter, err error) {
	writeMessage(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var statusErr *remote.StatusError
	switch {
	case errors.Is(err, remote.ErrMissingCredential):
		return http.StatusUnauthorized

	case errors.Is(err, cart.ErrInvalidMode),
		errors.Is(err, session.ErrMissingOrderID),
		errors.Is(err, session.ErrLineIndex),
		errors.Is(err, session.ErrInvalidProduct),
		errors.Is(err, session.ErrInvalidCharge),
		errors.Is(err, checkout.ErrInvalidDiscount),
		errors.Is(err, checkout.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidMethod),
		errors.Is(err, payment.ErrInvalidCardType),
		errors.Is(err, payment.ErrCardTypeRequired):
		return http.StatusBadRequest

	case errors.Is(err, session.ErrUnknownTicket):
		return http.StatusNotFound

	case errors.Is(err, cart.ErrTicketMode),
		errors.Is(err, session.ErrNoActiveOrder),
		errors.Is(err, session.ErrCartNotLoaded),
		errors.Is(err, session.ErrEmptyCart),
		errors.Is(err, payment.ErrInvalidState),
		errors.Is(err, payment.ErrContextChanged):
		return http.StatusConflict

	case errors.Is(err, payment.ErrNoPaymentMethod),
		errors.Is(err, payment.ErrInsufficientTender):
		return http.StatusPreconditionFailed

	case errors.As(err, &statusErr), remote.IsTransport(err):
		return http.StatusBadGateway
	}
	log.Printf("ERROR: unhandled error: %v", err)
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func lineIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 {
		writeMessage(w, http.StatusBadRequest, "invalid line index")
		return 0, false
	}
	return idx, true
}

// terminalFor returns the caller's terminal and a request whose context
// carries the caller's credential for remote calls.
func terminalFor(m *terminal.Manager, w http.ResponseWriter, r *http.Request) (*terminal.Terminal, *http.Request, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return nil, nil, false
	}
	t := m.Get(claims.UserID, claims.OrganizationID.String())
	ctx := remote.WithCredential(r.Context(), middleware.CredentialFromContext(r.Context()))
	return t, r.WithContext(ctx), true
}
