package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/kiwari-pos/terminal/internal/checkout"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/remote"
)

// NewInvoiceNumber returns INV-<yyyymmdd>-<8 hex chars>.
func NewInvoiceNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "INV-" + t.Format("20060102") + "-" + suffix
}

// InvoiceInput is everything BuildInvoice needs.
type InvoiceInput struct {
	InvoiceNumber  string
	Snapshot       *cart.Snapshot
	Totals         checkout.Totals
	Method         enum.PaymentMethod
	CardType       string
	CustomerID     string
	OrganizationID string
}

// BuildInvoice maps a cart and its totals into a create-invoice payload.
// Lines with a zero quantity or price are left out. Money is rounded to two
// places.
func BuildInvoice(in InvoiceInput) remote.InvoiceRequest {
	t := in.Totals.Rounded()
	req := remote.InvoiceRequest{
		InvoiceNumber:   in.InvoiceNumber,
		OrderID:         in.Snapshot.OrderID,
		OrderType:       in.Snapshot.Mode.OrderTypeCode(),
		PaymentType:     in.Method.Code(),
		SubTotal:        t.SubTotal,
		Tax:             t.Tax,
		ServiceCharge:   t.ServiceCharge,
		DiscountPercent: t.DiscountPercent,
		Discount:        t.DiscountAmount,
		Total:           t.Total,
		PaidAmount:      t.Tendered,
		Balance:         t.Balance,
		CustomerID:      in.CustomerID,
		OrganizationID:  in.OrganizationID,
		Items:           []remote.InvoiceItem{},
	}
	if in.Method == enum.PaymentMethodCard {
		req.CardType = in.CardType
	}
	for _, l := range in.Snapshot.Lines {
		if l.Qty <= 0 || !l.Price.IsPositive() {
			continue
		}
		req.Items = append(req.Items, remote.InvoiceItem{
			ProductID: l.ProductID,
			Qty:       l.Qty,
			Price:     l.Price,
			Amount:    l.Amount().Round(2),
			Note:      l.Note,
		})
	}
	return req
}
