package cart

import (
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/shopspring/decimal"
)

// Line is one item of a cart. Locked lines were already sent to the kitchen
// and cannot be edited locally.
type Line struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
	Note      string          `json:"note"`
	Locked    bool            `json:"locked"`
	Image     string          `json:"image,omitempty"`
}

// Amount is price × qty.
func (l Line) Amount() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// Snapshot is the cached cart of one order context. Mode always records the
// service mode whose fetch produced it.
type Snapshot struct {
	Mode          enum.ServiceMode `json:"mode"`
	OrderID       string           `json:"order_id"`
	Lines         []Line           `json:"lines"`
	SubTotal      decimal.Decimal  `json:"sub_total"`
	Tax           decimal.Decimal  `json:"tax"`
	ServiceCharge decimal.Decimal  `json:"service_charge"`
	Discount      decimal.Decimal  `json:"discount"`
}

// EmptySnapshot is the zero-item, zero-total cart shape.
func EmptySnapshot(mode enum.ServiceMode, orderID string) *Snapshot {
	return &Snapshot{
		Mode:          mode,
		OrderID:       orderID,
		Lines:         []Line{},
		SubTotal:      decimal.Zero,
		Tax:           decimal.Zero,
		ServiceCharge: decimal.Zero,
		Discount:      decimal.Zero,
	}
}

// FromRemote maps a get-cart response into a snapshot tagged with the mode
// that requested it.
func FromRemote(mode enum.ServiceMode, orderID string, resp *remote.CartResponse) *Snapshot {
	snap := EmptySnapshot(mode, orderID)
	if resp == nil {
		return snap
	}
	for _, rl := range resp.CartDetails {
		snap.Lines = append(snap.Lines, Line{
			ID:        string(rl.ID),
			ProductID: string(rl.ProductID),
			Name:      rl.Name,
			Price:     rl.Price,
			Qty:       rl.Qty,
			Note:      rl.Note,
			Locked:    rl.IsKot != 0,
			Image:     rl.Image,
		})
	}
	snap.SubTotal = resp.SubTotal
	snap.Tax = resp.Tax
	snap.ServiceCharge = resp.Service
	snap.Discount = resp.Discount
	return snap
}

// Clone returns a deep copy safe to hand outside the owning cache.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Lines = make([]Line, len(s.Lines))
	copy(c.Lines, s.Lines)
	return &c
}

// IsEmpty reports whether the snapshot has no lines.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Lines) == 0
}

// LinesTotal is Σ price × qty over all lines.
func (s *Snapshot) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	if s == nil {
		return total
	}
	for _, l := range s.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Recalculate refreshes SubTotal from the lines after a local edit.
func (s *Snapshot) Recalculate() {
	s.SubTotal = s.LinesTotal()
}
