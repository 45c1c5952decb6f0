// Package checkout derives the payable totals of a cart snapshot.
package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kiwari-pos/terminal/internal/cart"
	"github.com/shopspring/decimal"
)

// Errors returned by input parsing.
var (
	ErrInvalidDiscount = errors.New("discount must be a whole number from 0 to 100")
	ErrInvalidAmount   = errors.New("amount must be a non-negative number")
)

var hundred = decimal.NewFromInt(100)

// Totals is the derived money view of a cart. Values are exact; use Display
// for the 2-decimal presentation.
type Totals struct {
	SubTotal        decimal.Decimal `json:"sub_total"`
	Tax             decimal.Decimal `json:"tax"`
	ServiceCharge   decimal.Decimal `json:"service_charge"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Total           decimal.Decimal `json:"total"`
	Tendered        decimal.Decimal `json:"tendered"`
	Balance         decimal.Decimal `json:"balance"`
}

// Calculate computes the totals of snap with a percentage discount and the
// amount tendered. The subtotal is recomputed from the lines, so it does not
// depend on their order. A nil snapshot yields zero totals.
func Calculate(snap *cart.Snapshot, discountPercent, tendered decimal.Decimal) Totals {
	t := Totals{
		SubTotal:        snap.LinesTotal(),
		Tax:             decimal.Zero,
		ServiceCharge:   decimal.Zero,
		DiscountPercent: discountPercent,
		Tendered:        tendered,
	}
	if snap != nil {
		t.Tax = snap.Tax
		t.ServiceCharge = snap.ServiceCharge
	}
	t.DiscountAmount = t.SubTotal.Mul(discountPercent).Div(hundred)
	t.Total = t.SubTotal.Add(t.Tax).Add(t.ServiceCharge).Sub(t.DiscountAmount)
	t.Balance = tendered.Sub(t.Total)
	return t
}

// Covers reports whether the tendered amount pays the (rounded) total.
func (t Totals) Covers() bool {
	return t.Tendered.Round(2).GreaterThanOrEqual(t.Total.Round(2))
}

// Rounded returns the totals rounded half-away-from-zero to two places.
func (t Totals) Rounded() Totals {
	return Totals{
		SubTotal:        t.SubTotal.Round(2),
		Tax:             t.Tax.Round(2),
		ServiceCharge:   t.ServiceCharge.Round(2),
		DiscountPercent: t.DiscountPercent,
		DiscountAmount:  t.DiscountAmount.Round(2),
		Total:           t.Total.Round(2),
		Tendered:        t.Tendered.Round(2),
		Balance:         t.Balance.Round(2),
	}
}

// Display is Totals formatted for presentation.
type Display struct {
	SubTotal        string `json:"sub_total" yaml:"sub_total"`
	Tax             string `json:"tax" yaml:"tax"`
	ServiceCharge   string `json:"service_charge" yaml:"service_charge"`
	DiscountPercent string `json:"discount_percent" yaml:"discount_percent"`
	DiscountAmount  string `json:"discount_amount" yaml:"discount_amount"`
	Total           string `json:"total" yaml:"total"`
	Tendered        string `json:"tendered" yaml:"tendered"`
	Balance         string `json:"balance" yaml:"balance"`
}

// Display formats every amount with exactly two decimals.
func (t Totals) Display() Display {
	return Display{
		SubTotal:        t.SubTotal.StringFixed(2),
		Tax:             t.Tax.StringFixed(2),
		ServiceCharge:   t.ServiceCharge.StringFixed(2),
		DiscountPercent: t.DiscountPercent.String(),
		DiscountAmount:  t.DiscountAmount.StringFixed(2),
		Total:           t.Total.StringFixed(2),
		Tendered:        t.Tendered.StringFixed(2),
		Balance:         t.Balance.StringFixed(2),
	}
}

// ParseDiscount accepts an empty string (no discount) or a whole number of
// percent in [0, 100].
func ParseDiscount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDiscount, s)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDiscount, s)
	}
	return d, nil
}

// ParseAmount accepts an empty string (zero) or a non-negative decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
