package enum

import "strings"

// ── Service modes (exactly one active per terminal) ──

// ServiceMode is the order context a terminal is working in.
type ServiceMode string

const (
	ServiceModeDineIn   ServiceMode = "DINE_IN"
	ServiceModeTakeaway ServiceMode = "TAKEAWAY"
	ServiceModeDelivery ServiceMode = "DELIVERY"
)

// ServiceModes lists every mode in display order.
var ServiceModes = []ServiceMode{ServiceModeDineIn, ServiceModeTakeaway, ServiceModeDelivery}

// Valid reports whether m is a known service mode.
func (m ServiceMode) Valid() bool {
	switch m {
	case ServiceModeDineIn, ServiceModeTakeaway, ServiceModeDelivery:
		return true
	}
	return false
}

// UsesTickets reports whether orders in this mode are client-generated tickets
// rather than tables.
func (m ServiceMode) UsesTickets() bool {
	return m == ServiceModeTakeaway || m == ServiceModeDelivery
}

// OrderTypeCode is the numeric order type the remote service expects in both
// add-to-cart and invoice submissions.
func (m ServiceMode) OrderTypeCode() int {
	switch m {
	case ServiceModeTakeaway:
		return OrderTypeCodeTakeaway
	case ServiceModeDelivery:
		return OrderTypeCodeDelivery
	}
	return OrderTypeCodeDineIn
}

// TicketPrefix is the display-name prefix for tickets opened in this mode.
func (m ServiceMode) TicketPrefix() string {
	switch m {
	case ServiceModeTakeaway:
		return "TA"
	case ServiceModeDelivery:
		return "DL"
	}
	return ""
}

// ParseServiceMode accepts the canonical names plus the labels the POS front
// end shows ("Dine in", "Take Away", "Delivery").
func ParseServiceMode(s string) (ServiceMode, bool) {
	norm := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(s)))
	switch norm {
	case "DINE_IN", "DINEIN":
		return ServiceModeDineIn, true
	case "TAKEAWAY", "TAKE_AWAY":
		return ServiceModeTakeaway, true
	case "DELIVERY":
		return ServiceModeDelivery, true
	}
	return "", false
}

const (
	OrderTypeCodeDineIn   = 0
	OrderTypeCodeTakeaway = 1
	OrderTypeCodeDelivery = 2
)

// ── Cart cache entry states ──

const (
	CartStateEmpty       = "EMPTY"        // nothing cached, not fetched
	CartStateNoSelection = "NO_SELECTION" // dine-in without a table
	CartStateLoaded      = "LOADED"
	CartStateError       = "ERROR"
)

// ── Payment ──

// PaymentMethod is how the customer settles an order.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodQR   PaymentMethod = "QR"
)

// Valid reports whether p is a known payment method.
func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodQR:
		return true
	}
	return false
}

// Code is the payment type code sent with invoice submissions.
func (p PaymentMethod) Code() int {
	switch p {
	case PaymentMethodCard:
		return PaymentCodeCard
	case PaymentMethodQR:
		return PaymentCodeQR
	}
	return PaymentCodeCash
}

const (
	PaymentCodeCash = 0
	PaymentCodeCard = 1
	PaymentCodeQR   = 2
)

const (
	CardTypeVisa       = "Visa"
	CardTypeMasterCard = "MasterCard"
	CardTypeGCash      = "GCash"
)

// IsValidCardType reports whether s is one of the accepted card brands.
func IsValidCardType(s string) bool {
	switch s {
	case CardTypeVisa, CardTypeMasterCard, CardTypeGCash:
		return true
	}
	return false
}

// ── Payment finalizer states ──

const (
	PaymentStateIdle                 = "IDLE"
	PaymentStateMethodSelected       = "METHOD_SELECTED"
	PaymentStateAwaitingConfirmation = "AWAITING_CONFIRMATION"
	PaymentStateSubmitting           = "SUBMITTING"
	PaymentStateSettled              = "SETTLED"
	PaymentStateFailed               = "FAILED"
)

// ── Journal outcomes ──

const (
	JournalOutcomeSettled = "SETTLED"
	JournalOutcomeFailed  = "FAILED"
)
