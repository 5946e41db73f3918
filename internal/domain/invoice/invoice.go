// Package invoice manages sales invoices numbered FV####/YY.
package invoice

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/pricing"
)

var (
	ErrNotFound          = errors.New("invoice not found")
	ErrClientRequired    = errors.New("client required")
	ErrEmptyItems        = errors.New("at least one valid item required")
	ErrDuplicateNumber   = errors.New("invoice number already used")
	ErrNotEditable       = errors.New("only draft invoices can be edited")
	ErrInvalidStatus     = errors.New("invalid invoice status")
	ErrInvalidPayment    = errors.New("invalid payment method")
	ErrNumberingExceeded = errors.New("could not allocate an invoice number")
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusSent, StatusPaid},
	StatusSent:    {StatusPaid, StatusOverdue},
	StatusOverdue: {StatusPaid},
}

// CanTransition reports whether an invoice may move between statuses.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentMethod is printed on the invoice.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "Espèce"
	PaymentTransfer PaymentMethod = "Virement bancaire"
	PaymentDeposit  PaymentMethod = "Versement bancaire"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentDeposit:
		return true
	}
	return false
}

// Invoice is a billed set of line items for a client.
type Invoice struct {
	ID            string
	ClientID      string
	ClientName    string
	Items         []pricing.Line
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
	DueDate       time.Time
}

// SetItems replaces the items and recomputes the rounded totals.
func (inv *Invoice) SetItems(items []pricing.Line) {
	inv.Items = items
	t := pricing.AggregateTotals(items).Round()
	inv.Subtotal = t.Subtotal
	inv.Tax = t.Tax
	inv.Total = t.Total
}

// Breakdown returns the per-VAT-rate totals of the invoice.
func (inv *Invoice) Breakdown() []pricing.VATGroup {
	return pricing.AggregateByVATRate(inv.Items)
}

var numberRe = regexp.MustCompile(`^FV(\d{4})/(\d{2})$`)

// FormatNumber renders sequence n of the given year as FV####/YY.
func FormatNumber(n, year int) string {
	return fmt.Sprintf("FV%04d/%02d", n, year%100)
}

// ParseNumber extracts the sequence and two-digit year of an invoice number.
func ParseNumber(id string) (seq, yy int, ok bool) {
	m := numberRe.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, false
	}
	seq, _ = strconv.Atoi(m[1])
	yy, _ = strconv.Atoi(m[2])
	return seq, yy, true
}

// Filter narrows invoice listings.
type Filter struct {
	ClientID string
	Status   Status
	From     time.Time
	To       time.Time
}

// Repository defines persistence operations for invoices.
type Repository interface {
	// Create returns ErrDuplicateNumber when the ID is already used.
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, f Filter) ([]Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	// Delete removes an invoice. Deleting a missing invoice is not an error.
	Delete(ctx context.Context, id string) error
	// MaxSequence returns the highest sequence used in the two-digit year,
	// or zero when the year has no invoice yet.
	MaxSequence(ctx context.Context, yy int) (int, error)
}
