package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/remote"
)

// InvoicePageSize is the number of invoices per page of the invoice list.
const InvoicePageSize = 10

const dateLayout = "2006-01-02"

// ListService is the read side of the remote order service.
// Satisfied by *remote.Client.
type ListService interface {
	ListTables(ctx context.Context, organizationID string) ([]remote.Table, error)
	ListInvoices(ctx context.Context) ([]remote.InvoiceSummary, error)
}

// ListHandler proxies the table bar and the invoice page.
type ListHandler struct {
	svc ListService
}

// NewListHandler creates a new ListHandler.
func NewListHandler(svc ListService) *ListHandler {
	return &ListHandler{svc: svc}
}

// RegisterRoutes registers list endpoints at the router root.
func (h *ListHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tables", h.Tables)
	r.Get("/invoices", h.Invoices)
}

// --- Response types ---

type tableResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	Count     int    `json:"count"`
	InProcess bool   `json:"in_process"`
}

type invoiceResponse struct {
	InvoiceNumber string `json:"invoice_number"`
	CustomerName  string `json:"customer_name"`
	IssueDate     string `json:"issue_date"`
	DueDate       string `json:"due_date"`
	Total         string `json:"total"`
	Status        string `json:"status"`
	PaymentType   string `json:"payment_type"`
	Items         int    `json:"items"`
}

type invoicePage struct {
	Invoices   []invoiceResponse `json:"invoices"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

// InvoiceFilter narrows the invoice list. Zero fields match everything.
type InvoiceFilter struct {
	Search string
	Status string // "Paid" or "Unpaid"
	From   time.Time
	To     time.Time
}

// --- Handlers ---

// Tables handles GET /tables.
func (h *ListHandler) Tables(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	ctx := remote.WithCredential(r.Context(), middleware.CredentialFromContext(r.Context()))

	tables, err := h.svc.ListTables(ctx, claims.OrganizationID.String())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		resp = append(resp, tableResponse{
			ID:        string(t.ID),
			Name:      t.Name,
			FullName:  t.FullName,
			Count:     t.Count,
			InProcess: t.Status == remote.TableStatusProcess,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Invoices handles GET /invoices?search=&status=&from=&to=&page=.
func (h *ListHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := InvoiceFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
	}
	if filter.Status != "" && filter.Status != "Paid" && filter.Status != "Unpaid" {
		writeMessage(w, http.StatusBadRequest, "status must be Paid or Unpaid")
		return
	}
	var err error
	if v := q.Get("from"); v != "" {
		if filter.From, err = time.Parse(dateLayout, v); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = time.Parse(dateLayout, v); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
	}
	page := 1
	if v := q.Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			writeMessage(w, http.StatusBadRequest, "invalid page")
			return
		}
	}

	ctx := remote.WithCredential(r.Context(), middleware.CredentialFromContext(r.Context()))
	all, err := h.svc.ListInvoices(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(FilterInvoices(all, filter), page))
}

// --- Filtering ---

// InvoiceStatus is "Unpaid" for status 0 and "Paid" otherwise.
func InvoiceStatus(inv remote.InvoiceSummary) string {
	if inv.Status == 0 {
		return "Unpaid"
	}
	return "Paid"
}

// FilterInvoices keeps the invoices whose number or customer name contains
// the search text (case-insensitive), whose status matches, whose issue day
// is on or after From and whose due day is on or before To.
func FilterInvoices(in []remote.InvoiceSummary, f InvoiceFilter) []remote.InvoiceSummary {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []remote.InvoiceSummary{}
	for _, inv := range in {
		if search != "" &&
			!strings.Contains(strings.ToLower(inv.InvoiceNumber), search) &&
			!strings.Contains(strings.ToLower(inv.CustomerName), search) {
			continue
		}
		if f.Status != "" && InvoiceStatus(inv) != f.Status {
			continue
		}
		if !f.From.IsZero() && day(inv.CreateUtc.Time).Before(day(f.From)) {
			continue
		}
		if !f.To.IsZero() && day(inv.DueDate.Time).After(day(f.To)) {
			continue
		}
		out = append(out, inv)
	}
	return out
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func paginate(in []remote.InvoiceSummary, page int) invoicePage {
	p := invoicePage{
		Invoices: []invoiceResponse{},
		Page:     page,
		PageSize: InvoicePageSize,
		Total:    len(in),
	}
	p.TotalPages = (len(in) + InvoicePageSize - 1) / InvoicePageSize

	start := (page - 1) * InvoicePageSize
	if start >= len(in) {
		return p
	}
	end := min(start+InvoicePageSize, len(in))
	for _, inv := range in[start:end] {
		p.Invoices = append(p.Invoices, invoiceResponse{
			InvoiceNumber: inv.InvoiceNumber,
			CustomerName:  inv.CustomerName,
			IssueDate:     formatDay(inv.CreateUtc.Time),
			DueDate:       formatDay(inv.DueDate.Time),
			Total:         inv.Total.Round(2).StringFixed(2),
			Status:        InvoiceStatus(inv),
			PaymentType:   inv.PaymentType,
			Items:         inv.NoOfItems,
		})
	}
	return p
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
