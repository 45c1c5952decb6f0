package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/terminal/internal/checkout"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/payment"
	"github.com/kiwari-pos/terminal/internal/terminal"
)

// PaymentHandler exposes the finish-order flow of the calling cashier.
type PaymentHandler struct {
	terminals *terminal.Manager
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(terminals *terminal.Manager) *PaymentHandler {
	return &PaymentHandler{terminals: terminals}
}

// RegisterRoutes registers payment endpoints.
// Expected to be mounted at /terminal/payment
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.State)
	r.Put("/method", h.SelectMethod)
	r.Put("/discount", h.SetDiscount)
	r.Put("/tendered", h.SetTendered)
	r.Post("/confirm", h.Confirm)
	r.Post("/submit", h.Submit)
	r.Post("/cancel", h.Cancel)
}

// --- Request / Response types ---

type selectMethodRequest struct {
	Method   string `json:"method"`
	CardType string `json:"card_type"`
}

type discountRequest struct {
	Percent string `json:"percent"`
}

type tenderedRequest struct {
	Amount string `json:"amount"`
}

type confirmResponse struct {
	Totals checkout.Display `json:"totals"`
	State  payment.View     `json:"state"`
}

// --- Handlers ---

// State handles GET /terminal/payment.
func (h *PaymentHandler) State(w http.ResponseWriter, r *http.Request) {
	t, _, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.Payment.View())
}

// SelectMethod handles PUT /terminal/payment/method.
func (h *PaymentHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req selectMethodRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, t, t.Payment.SelectMethod(enum.PaymentMethod(req.Method), req.CardType))
}

// SetDiscount handles PUT /terminal/payment/discount.
func (h *PaymentHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req discountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, t, t.Payment.SetDiscount(req.Percent))
}

// SetTendered handles PUT /terminal/payment/tendered.
func (h *PaymentHandler) SetTendered(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req tenderedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, t, t.Payment.SetTendered(req.Amount))
}

// Confirm handles POST /terminal/payment/confirm. Nothing is sent to the
// order service yet.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	t, _, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	totals, err := t.Payment.Confirm()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Totals: totals.Display(), State: t.Payment.View()})
}

// Submit handles POST /terminal/payment/submit.
func (h *PaymentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	receipt, err := t.Payment.Submit(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// Cancel handles POST /terminal/payment/cancel.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, _, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	h.respond(w, t, t.Payment.Cancel())
}

func (h *PaymentHandler) respond(w http.ResponseWriter, t *terminal.Terminal, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Payment.View())
}
