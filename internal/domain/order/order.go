package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/pricing"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPrepared  Status = "prepared"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPrepared, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusPrepared, StatusCancelled},
	StatusPrepared: {StatusCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Order is a client order with its line items and rounded totals.
type Order struct {
	ID              string
	ClientVATNumber string
	ClientName      string
	Items           []pricing.Line
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PreparedAt      *time.Time
}

// Editable reports whether the order items may still change: the order is
// pending and no batch preparation has touched it.
func (o *Order) Editable() bool {
	return o.Status == StatusPending && o.PreparedAt == nil
}

// SetItems replaces the items and recomputes the totals.
func (o *Order) SetItems(items []pricing.Line) {
	o.Items = items
	t := pricing.AggregateTotals(items).Round()
	o.Subtotal = t.Subtotal
	o.Tax = t.Tax
	o.Total = t.Total
}

// OrderItem is a requested product quantity.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Filter narrows order listings. Zero values match everything.
type Filter struct {
	IDs []string
	// From and To bound CreatedAt as [From, To).
	From   time.Time
	To     time.Time
	Status Status
	// ClientVATNumber restricts to a single owner.
	ClientVATNumber string
	// Client matches a case-insensitive substring of the client name or VAT number.
	Client string
	Limit  int
}

// Day returns a filter covering the calendar day of t in t's location.
func Day(t time.Time) Filter {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Filter{From: start, To: start.AddDate(0, 0, 1)}
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Get returns ErrNotFound when the order does not exist.
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// UpdateItems stores items and totals only if the order is still
	// pending and not prepared, and returns ErrConflict otherwise.
	UpdateItems(ctx context.Context, o *Order) error
	// MarkPrepared moves every listed order from pending to prepared in one
	// transaction. If any of them is no longer pending nothing is written
	// and ErrConflict is returned.
	MarkPrepared(ctx context.Context, ids []string, at time.Time) error
	// Transition moves an order from one status to another and returns
	// ErrConflict if its current status is not from.
	Transition(ctx context.Context, id string, from, to Status) error
	CountByStatus(ctx context.Context, status Status) (int, error)
}
