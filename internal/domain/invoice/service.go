package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/cart"
	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/product"
)

const (
	// DefaultStartNumber is the first sequence of a year without invoices.
	DefaultStartNumber = 158
	// DefaultDueDays is the payment term.
	DefaultDueDays = 30

	maxNumberAttempts = 3
)

// ClientLookup resolves the billed client.
type ClientLookup interface {
	GetByID(ctx context.Context, id string) (*client.Client, error)
}

// ProductLookup resolves invoiced products.
type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// ItemInput is a requested invoice line. PriceHT overrides the catalog price.
type ItemInput struct {
	ProductID string
	Quantity  int
	PriceHT   *decimal.Decimal
}

// CreateRequest holds the input for a new invoice.
type CreateRequest struct {
	ClientID      string
	Items         []ItemInput
	PaymentMethod PaymentMethod
}

// Option configures a Service.
type Option func(*Service)

// WithStartNumber sets the sequence used for the first invoice of a year.
func WithStartNumber(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.startNumber = n
		}
	}
}

// WithDueDays sets the payment term in days.
func WithDueDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.dueDays = days
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service encapsulates invoicing.
type Service struct {
	invoices    Repository
	clients     ClientLookup
	products    ProductLookup
	startNumber int
	dueDays     int
	now         func() time.Time
}

// NewService creates an invoice Service.
func NewService(invoices Repository, clients ClientLookup, products ProductLookup, opts ...Option) *Service {
	s := &Service{
		invoices:    invoices,
		clients:     clients,
		products:    products,
		startNumber: DefaultStartNumber,
		dueDays:     DefaultDueDays,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextNumber returns the number the next invoice of the current year gets.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	year := s.now().Year()
	last, err := s.invoices.MaxSequence(ctx, year%100)
	if err != nil {
		return "", fmt.Errorf("read last invoice number: %w", err)
	}
	next := s.startNumber
	if last > 0 {
		next = last + 1
	}
	return FormatNumber(next, year), nil
}

// Create builds the lines from the catalog and stores a draft invoice.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Invoice, error) {
	c, err := s.BuildCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	return s.CreateFromCart(ctx, req.ClientID, req.PaymentMethod, c)
}

// CreateFromCart stores the valid lines of c as a draft invoice. If another
// writer takes the number first, the next one is tried.
func (s *Service) CreateFromCart(ctx context.Context, clientID string, method PaymentMethod, c *cart.Cart) (*Invoice, error) {
	inv, err := s.prepare(ctx, clientID, method, c)
	if err != nil {
		return nil, err
	}
	inv.Status = StatusDraft
	inv.CreatedAt = s.now()
	inv.DueDate = inv.CreatedAt.AddDate(0, 0, s.dueDays)

	for range maxNumberAttempts {
		id, err := s.NextNumber(ctx)
		if err != nil {
			return nil, err
		}
		inv.ID = id

		err = s.invoices.Create(ctx, inv)
		if err == nil {
			c.Reset()
			return inv, nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
	}
	return nil, ErrNumberingExceeded
}

// Update replaces client, lines and payment method of a draft invoice.
func (s *Service) Update(ctx context.Context, id string, req CreateRequest) (*Invoice, error) {
	current, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusDraft {
		return nil, ErrNotEditable
	}

	c, err := s.BuildCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	inv, err := s.prepare(ctx, req.ClientID, req.PaymentMethod, c)
	if err != nil {
		return nil, err
	}
	inv.ID = current.ID
	inv.Status = current.Status
	inv.CreatedAt = current.CreatedAt
	inv.DueDate = s.now().AddDate(0, 0, s.dueDays)

	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}

func (s *Service) prepare(ctx context.Context, clientID string, method PaymentMethod, c *cart.Cart) (*Invoice, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrClientRequired
	}
	if method == "" {
		method = PaymentCash
	}
	if !method.Valid() {
		return nil, ErrInvalidPayment
	}
	items := c.ValidLines()
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	cl, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, ErrClientRequired
		}
		return nil, fmt.Errorf("get client: %w", err)
	}

	inv := &Invoice{
		ClientID:      cl.ID,
		ClientName:    cl.Name,
		PaymentMethod: method,
	}
	inv.SetItems(items)
	return inv, nil
}

// BuildCart prices the requested lines from the catalog.
func (s *Service) BuildCart(ctx context.Context, items []ItemInput) (*cart.Cart, error) {
	c := cart.New()
	if len(items) == 0 {
		return c, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "product %s", it.ProductID)
		}
		lineID, err := c.AddLine(p, it.Quantity)
		if err != nil {
			return nil, err
		}
		if it.PriceHT != nil {
			if err := c.SetUnitPrice(lineID, *it.PriceHT); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// SetStatus moves an invoice to another payment state.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(inv.Status, status) {
		return nil, errors.Wrapf(ErrInvalidStatus, "%s to %s", inv.Status, status)
	}
	if err := s.invoices.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update invoice status: %w", err)
	}
	inv.Status = status
	return inv, nil
}

// Get returns a single invoice.
func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	return s.invoices.Get(ctx, id)
}

// List returns invoices matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Invoice, error) {
	invoices, err := s.invoices.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// Delete removes an invoice; a missing invoice is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.invoices.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return nil
}
