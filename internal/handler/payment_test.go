package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/kiwari-pos/terminal/internal/remote"
)

func readyTable(t *testing.T, env *testEnv) {
	t.Helper()
	env.remote.seed("T1", cartLine("l1", "p1", "10", 2, 0), cartLine("l2", "p2", "5", 1, 0))
	expectStatus(t, env.do(t, http.MethodPut, "/terminal/tables/T1", nil), http.StatusOK)
}

func TestPayment_IdleState(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/terminal/payment", nil)
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeResponse(t, rr); resp["state"] != "IDLE" {
		t.Errorf("state = %v", resp)
	}
}

func TestPayment_ConfirmWithoutMethod(t *testing.T) {
	env := newTestEnv(t)
	readyTable(t, env)

	rr := env.do(t, http.MethodPost, "/terminal/payment/confirm", nil)
	expectStatus(t, rr, http.StatusPreconditionFailed)
}

func TestPayment_ShortTender(t *testing.T) {
	env := newTestEnv(t)
	readyTable(t, env)

	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/method", map[string]string{"method": "CASH"}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/tendered", map[string]string{"amount": "20"}), http.StatusOK)

	rr := env.do(t, http.MethodPost, "/terminal/payment/confirm", nil)
	expectStatus(t, rr, http.StatusPreconditionFailed)
	if len(env.remote.invoices) != 0 {
		t.Error("no invoice may be created for a short tender")
	}
}

func TestPayment_InvalidInputs(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body map[string]string
	}{
		{"unknown method", "/terminal/payment/method", map[string]string{"method": "CHEQUE"}},
		{"unknown card", "/terminal/payment/method", map[string]string{"method": "CARD", "card_type": "Amex"}},
		{"discount over 100", "/terminal/payment/discount", map[string]string{"percent": "150"}},
		{"discount not digits", "/terminal/payment/discount", map[string]string{"percent": "1.5"}},
		{"negative tender", "/terminal/payment/tendered", map[string]string{"amount": "-1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPut, tc.path, tc.body)
			expectStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestPayment_CardNeedsType(t *testing.T) {
	env := newTestEnv(t)
	readyTable(t, env)

	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/method", map[string]string{"method": "CARD"}), http.StatusOK)
	rr := env.do(t, http.MethodPost, "/terminal/payment/confirm", nil)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestPayment_SettleFlow(t *testing.T) {
	env := newTestEnv(t)
	readyTable(t, env)

	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/method", map[string]string{"method": "CASH"}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/discount", map[string]string{"percent": "10"}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/tendered", map[string]string{"amount": "30"}), http.StatusOK)

	rr := env.do(t, http.MethodPost, "/terminal/payment/confirm", nil)
	expectStatus(t, rr, http.StatusOK)
	resp := decodeResponse(t, rr)
	totals, _ := resp["totals"].(map[string]interface{})
	if totals["total"] != "22.50" || totals["balance"] != "7.50" {
		t.Errorf("totals = %v", totals)
	}
	state, _ := resp["state"].(map[string]interface{})
	if state["state"] != "AWAITING_CONFIRMATION" {
		t.Errorf("state = %v", state)
	}

	rr = env.do(t, http.MethodPost, "/terminal/payment/submit", nil)
	expectStatus(t, rr, http.StatusCreated)
	receipt := decodeResponse(t, rr)
	if receipt["order_id"] != "T1" || receipt["cart_deleted"] != true {
		t.Errorf("receipt = %v", receipt)
	}
	if len(env.remote.invoices) != 1 {
		t.Fatalf("invoices = %d", len(env.remote.invoices))
	}

	// The table stays selected with an empty cart.
	rr = env.do(t, http.MethodGet, "/terminal/state", nil)
	resp = decodeResponse(t, rr)
	if resp["order_id"] != "T1" || resp["state"] != "EMPTY" {
		t.Errorf("state after settle = %v", resp)
	}

	rr = env.do(t, http.MethodGet, "/terminal/payment", nil)
	if resp := decodeResponse(t, rr); resp["state"] != "IDLE" {
		t.Errorf("payment state after settle = %v", resp)
	}
}

func TestPayment_SubmitFailureKeepsCart(t *testing.T) {
	env := newTestEnv(t)
	readyTable(t, env)
	env.remote.createInvoiceFn = func(context.Context, remote.InvoiceRequest) error {
		return &remote.StatusError{Op: "create invoice", StatusCode: http.StatusInternalServerError}
	}

	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/method", map[string]string{"method": "QR"}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/tendered", map[string]string{"amount": "25"}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/terminal/payment/confirm", nil), http.StatusOK)

	rr := env.do(t, http.MethodPost, "/terminal/payment/submit", nil)
	expectStatus(t, rr, http.StatusBadGateway)

	rr = env.do(t, http.MethodGet, "/terminal/payment", nil)
	resp := decodeResponse(t, rr)
	if resp["state"] != "AWAITING_CONFIRMATION" || resp["error"] == nil {
		t.Errorf("payment state = %v", resp)
	}
	rr = env.do(t, http.MethodGet, "/terminal/state", nil)
	if resp := decodeResponse(t, rr); resp["state"] != "LOADED" {
		t.Errorf("cart should be untouched: %v", resp)
	}

	// Retry once the service recovers.
	env.remote.createInvoiceFn = nil
	rr = env.do(t, http.MethodPost, "/terminal/payment/submit", nil)
	expectStatus(t, rr, http.StatusCreated)
}

func TestPayment_SubmitWithoutConfirm(t *testing.T) {
	env := newTestEnv(t)
	readyTable(t, env)

	rr := env.do(t, http.MethodPost, "/terminal/payment/submit", nil)
	expectStatus(t, rr, http.StatusConflict)
}

func TestPayment_Cancel(t *testing.T) {
	env := newTestEnv(t)
	readyTable(t, env)
	expectStatus(t, env.do(t, http.MethodPut, "/terminal/payment/method", map[string]string{"method": "CASH"}), http.StatusOK)

	rr := env.do(t, http.MethodPost, "/terminal/payment/cancel", nil)
	expectStatus(t, rr, http.StatusOK)
	if resp := decodeResponse(t, rr); resp["state"] != "IDLE" || resp["method"] != nil {
		t.Errorf("state = %v", resp)
	}
}
