// Package journal keeps a Postgres record of every invoice submission made
// by the terminals, settled or failed.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/terminal/internal/checkout"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/kiwari-pos/terminal/internal/payment"
	"github.com/shopspring/decimal"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Entry is one journal row.
type Entry struct {
	ID             uuid.UUID          `json:"id"`
	InvoiceNumber  string             `json:"invoice_number"`
	TerminalID     uuid.UUID          `json:"terminal_id"`
	OrganizationID string             `json:"organization_id"`
	Mode           enum.ServiceMode   `json:"mode"`
	OrderID        string             `json:"order_id"`
	Method         enum.PaymentMethod `json:"method"`
	CardType       string             `json:"card_type,omitempty"`
	Totals         checkout.Display   `json:"totals"`
	Outcome        string             `json:"outcome"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Store writes and reads the payment_journal table.
type Store struct {
	db DB
}

// New creates a Store on db.
func New(db DB) *Store {
	return &Store{db: db}
}

const insertAttempt = `INSERT INTO payment_journal (
    invoice_number, terminal_id, organization_id, service_mode, order_id,
    payment_method, card_type, sub_total, tax, service_charge,
    discount_percent, discount_amount, total, tendered, balance,
    outcome, error_text, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

// Record appends a submission attempt. It implements payment.Recorder.
func (s *Store) Record(ctx context.Context, a payment.Attempt) error {
	t := a.Totals.Rounded()
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(ctx, insertAttempt,
		a.InvoiceNumber,
		a.TerminalID,
		a.OrganizationID,
		string(a.Mode),
		a.OrderID,
		string(a.Method),
		optionalText(a.CardType),
		toNumeric(t.SubTotal),
		toNumeric(t.Tax),
		toNumeric(t.ServiceCharge),
		toNumeric(t.DiscountPercent),
		toNumeric(t.DiscountAmount),
		toNumeric(t.Total),
		toNumeric(t.Tendered),
		toNumeric(t.Balance),
		a.Outcome,
		optionalText(a.Error),
		pgtype.Timestamptz{Time: at, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", a.InvoiceNumber, err)
	}
	return nil
}

const listByOrganization = `SELECT
    id, invoice_number, terminal_id, organization_id, service_mode, order_id,
    payment_method, card_type, sub_total, tax, service_charge,
    discount_percent, discount_amount, total, tendered, balance,
    outcome, error_text, created_at
FROM payment_journal
WHERE organization_id = $1
ORDER BY created_at DESC
LIMIT $2`

// List returns the newest entries of an organization.
func (s *Store) List(ctx context.Context, organizationID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.Query(ctx, listByOrganization, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var mode, method string
		var cardType, errText pgtype.Text
		var subTotal, tax, service, discPct, discAmt pgtype.Numeric
		var total, tendered, balance pgtype.Numeric
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(
			&e.ID, &e.InvoiceNumber, &e.TerminalID, &e.OrganizationID, &mode, &e.OrderID,
			&method, &cardType, &subTotal, &tax, &service,
			&discPct, &discAmt, &total, &tendered, &balance,
			&e.Outcome, &errText, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.Mode = enum.ServiceMode(mode)
		e.Method = enum.PaymentMethod(method)
		e.CardType = cardType.String
		e.Error = errText.String
		e.CreatedAt = createdAt.Time
		e.Totals = checkout.Totals{
			SubTotal:        fromNumeric(subTotal),
			Tax:             fromNumeric(tax),
			ServiceCharge:   fromNumeric(service),
			DiscountPercent: fromNumeric(discPct),
			DiscountAmount:  fromNumeric(discAmt),
			Total:           fromNumeric(total),
			Tendered:        fromNumeric(tendered),
			Balance:         fromNumeric(balance),
		}.Display()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

// --- Helpers ---

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
