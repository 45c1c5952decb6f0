package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/terminal/internal/journal"
	"github.com/kiwari-pos/terminal/internal/middleware"
)

// JournalStore defines the journal methods needed by JournalHandler.
// Satisfied by *journal.Store.
type JournalStore interface {
	List(ctx context.Context, organizationID string, limit int) ([]journal.Entry, error)
}

// JournalHandler lists recent invoice submissions of the caller's organization.
type JournalHandler struct {
	store JournalStore
}

// NewJournalHandler creates a new JournalHandler.
func NewJournalHandler(store JournalStore) *JournalHandler {
	return &JournalHandler{store: store}
}

// RegisterRoutes registers journal endpoints.
// Expected to be mounted at /journal
func (h *JournalHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

// List handles GET /journal?limit=.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	limit := journal.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.store.List(r.Context(), claims.OrganizationID.String(), limit)
	if err != nil {
		log.Printf("ERROR: list journal: %v", err)
		writeMessage(w, http.StatusInternalServerError, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
