package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/checkout"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/terminal"
	"github.com/shopspring/decimal"
)

// TerminalHandler exposes the cart session of the calling cashier.
type TerminalHandler struct {
	terminals *terminal.Manager
}

// NewTerminalHandler creates a new TerminalHandler.
func NewTerminalHandler(terminals *terminal.Manager) *TerminalHandler {
	return &TerminalHandler{terminals: terminals}
}

// RegisterRoutes registers session endpoints.
// Expected to be mounted at /terminal
func (h *TerminalHandler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.State)
	r.Put("/mode", h.SetMode)

	r.Put("/tables/{tableID}", h.SelectTable)
	r.Delete("/tables", h.ClearTable)

	r.Post("/tickets", h.NewTicket)
	r.Get("/tickets", h.ListTickets)
	r.Put("/tickets/{ticketID}", h.SelectTicket)
	r.Delete("/tickets", h.ClearTicket)

	r.Put("/customer", h.SetCustomer)

	r.Route("/cart", func(r chi.Router) {
		r.Post("/refresh", h.Refresh)
		r.Post("/items", h.AddProduct)
		r.Post("/charges", h.AddCharge)
		r.Post("/place", h.PlaceOrder)

		r.Post("/lines/{index}/increase", h.Increase)
		r.Post("/lines/{index}/decrease", h.Decrease)
		r.Put("/lines/{index}/note", h.SetNote)
		r.Post("/lines/{index}/note", h.CommitNote)
		r.Delete("/lines/{index}", h.DeleteLine)
	})
}

// --- Request / Response types ---

type stateResponse struct {
	session.View
	Totals *checkout.Display `json:"totals,omitempty"`
}

type mutationResponse struct {
	Applied bool          `json:"applied"`
	State   stateResponse `json:"state"`
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

type selectTableRequest struct {
	Name string `json:"name"`
}

type addProductRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
}

type addChargeRequest struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type customerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newStateResponse(v session.View) stateResponse {
	resp := stateResponse{View: v}
	if v.Cart != nil {
		d := checkout.Calculate(v.Cart, decimal.Zero, decimal.Zero).Rounded().Display()
		resp.Totals = &d
	}
	return resp
}

// --- Handlers ---

// State handles GET /terminal/state. A selected but uncached cart is loaded
// first; a failed load shows up as the ERROR state, not as a failed request.
func (h *TerminalHandler) State(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(t.Session.Current(r.Context())))
}

// SetMode handles PUT /terminal/mode.
func (h *TerminalHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req setModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, valid := enum.ParseServiceMode(req.Mode)
	if !valid {
		writeError(w, cart.ErrInvalidMode)
		return
	}
	h.respond(w, t, t.Session.SetActiveMode(r.Context(), mode))
}

// SelectTable handles PUT /terminal/tables/{tableID}.
func (h *TerminalHandler) SelectTable(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req selectTableRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, t, t.Session.SelectTable(r.Context(), chi.URLParam(r, "tableID"), req.Name))
}

// ClearTable handles DELETE /terminal/tables.
func (h *TerminalHandler) ClearTable(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	h.respond(w, t, t.Session.ClearTable(r.Context()))
}

// NewTicket handles POST /terminal/tickets.
func (h *TerminalHandler) NewTicket(w http.ResponseWriter, r *http.Request) {
	t, _, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	ticket, err := t.Session.NewTicket()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// ListTickets handles GET /terminal/tickets.
func (h *TerminalHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	t, _, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.Session.Tickets())
}

// SelectTicket handles PUT /terminal/tickets/{ticketID}.
func (h *TerminalHandler) SelectTicket(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	h.respond(w, t, t.Session.SelectTicket(r.Context(), chi.URLParam(r, "ticketID")))
}

// ClearTicket handles DELETE /terminal/tickets.
func (h *TerminalHandler) ClearTicket(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	h.respond(w, t, t.Session.ClearTicket(r.Context()))
}

// SetCustomer handles PUT /terminal/customer.
func (h *TerminalHandler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req customerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t.Session.SetCustomer(session.Customer{ID: req.ID, Name: req.Name})
	h.respond(w, t, nil)
}

// Refresh handles POST /terminal/cart/refresh, the explicit retry.
func (h *TerminalHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	h.respond(w, t, t.Session.FetchActiveCart(r.Context()))
}

// AddProduct handles POST /terminal/cart/items.
func (h *TerminalHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req addProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeMessage(w, http.StatusBadRequest, "invalid price")
		return
	}
	h.respond(w, t, t.Session.AddProduct(r.Context(), req.ProductID, req.Name, price))
}

// AddCharge handles POST /terminal/cart/charges.
func (h *TerminalHandler) AddCharge(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	var req addChargeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, session.ErrInvalidCharge)
		return
	}
	h.respond(w, t, t.Session.AddCharge(r.Context(), req.Name, amount))
}

// PlaceOrder handles POST /terminal/cart/place.
func (h *TerminalHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	h.respond(w, t, t.Session.PlaceOrder(r.Context()))
}

// Increase handles POST /terminal/cart/lines/{index}/increase.
func (h *TerminalHandler) Increase(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	idx, ok := lineIndex(w, r)
	if !ok {
		return
	}
	applied, err := t.Session.Increase(r.Context(), idx)
	h.respondMutation(w, t, applied, err)
}

// Decrease handles POST /terminal/cart/lines/{index}/decrease.
func (h *TerminalHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	t, _, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	idx, ok := lineIndex(w, r)
	if !ok {
		return
	}
	applied, err := t.Session.Decrease(idx)
	h.respondMutation(w, t, applied, err)
}

// SetNote handles PUT /terminal/cart/lines/{index}/note.
func (h *TerminalHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	idx, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	applied, err := t.Session.SetNote(idx, req.Note)
	h.respondMutation(w, t, applied, err)
}

// CommitNote handles POST /terminal/cart/lines/{index}/note.
func (h *TerminalHandler) CommitNote(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	idx, ok := lineIndex(w, r)
	if !ok {
		return
	}
	applied, err := t.Session.CommitNote(r.Context(), idx)
	h.respondMutation(w, t, applied, err)
}

// DeleteLine handles DELETE /terminal/cart/lines/{index}.
func (h *TerminalHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	t, r, ok := terminalFor(h.terminals, w, r)
	if !ok {
		return
	}
	idx, ok := lineIndex(w, r)
	if !ok {
		return
	}
	applied, err := t.Session.DeleteLine(r.Context(), idx)
	h.respondMutation(w, t, applied, err)
}

// --- Helpers ---

func (h *TerminalHandler) respond(w http.ResponseWriter, t *terminal.Terminal, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(t.Session.View()))
}

func (h *TerminalHandler) respondMutation(w http.ResponseWriter, t *terminal.Terminal, applied bool, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Applied: applied,
		State:   newStateResponse(t.Session.View()),
	})
}
