package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/liafood/backoffice/internal/domain/cart"
	"github.com/liafood/backoffice/internal/domain/product"
)

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	ClientVATNumber string
	ClientName      string
	Items           []OrderItem
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMeterProvider records order counters on the given provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.meterProvider = mp
	}
}

// Service encapsulates the order lifecycle.
type Service struct {
	products product.Repository
	orders   Repository
	now      func() time.Time

	meterProvider metric.MeterProvider
	placed        metric.Int64Counter
	conflicts     metric.Int64Counter
	prepared      metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products product.Repository, orders Repository, opts ...Option) *Service {
	s := &Service{
		products:      products,
		orders:        orders,
		now:           time.Now,
		meterProvider: noop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := s.meterProvider.Meter("github.com/liafood/backoffice/internal/domain/order")
	s.placed, _ = meter.Int64Counter("backoffice.orders.placed",
		metric.WithDescription("Orders submitted"))
	s.conflicts, _ = meter.Int64Counter("backoffice.orders.edit_conflicts",
		metric.WithDescription("Order edits rejected because the order left the pending state"))
	s.prepared, _ = meter.Int64Counter("backoffice.orders.prepared",
		metric.WithDescription("Orders moved to prepared by batch actions"))
	return s
}

// PlaceOrder validates items, fetches products in a single batch, prices the
// lines and persists a pending order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if strings.TrimSpace(req.ClientVATNumber) == "" {
		return nil, ErrClientRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	products, err := s.fetchProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	c := cart.New()
	for i, item := range req.Items {
		if _, err := c.AddLine(products[i], item.Quantity); err != nil {
			return nil, errors.Wrap(err, "add line")
		}
	}

	o, err := s.Submit(ctx, req.ClientVATNumber, req.ClientName, c)
	if err != nil {
		return nil, err
	}
	return &PlaceOrderResult{Order: o, Products: products}, nil
}

// Submit persists the cart as a pending order for the client and resets the
// cart, whose ownership passes to the stored order.
func (s *Service) Submit(ctx context.Context, clientVAT, clientName string, c *cart.Cart) (*Order, error) {
	if strings.TrimSpace(clientVAT) == "" {
		return nil, ErrClientRequired
	}
	items := c.ValidLines()
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		ClientVATNumber: clientVAT,
		ClientName:      clientName,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.SetItems(items)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	c.Reset()
	s.placed.Add(ctx, 1)
	return o, nil
}

// fetchProducts validates quantities and returns the products in request order.
func (s *Service) fetchProducts(ctx context.Context, items []OrderItem) ([]product.Product, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	products := make([]product.Product, 0, len(items))
	for _, item := range items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
	}
	return products, nil
}

// Get returns an order. When owner is not empty, orders of other clients
// are reported as not found.
func (s *Service) Get(ctx context.Context, id, owner string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && o.ClientVATNumber != owner {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns the orders matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// PendingCount returns the number of orders waiting for preparation.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	n, err := s.orders.CountByStatus(ctx, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("count pending orders: %w", err)
	}
	return n, nil
}

// MarkPrepared moves every pending order matching f to prepared. The batch
// is all-or-nothing: if one order changed status concurrently, none is
// updated and ErrConflict is returned. It returns the number of orders
// prepared.
func (s *Service) MarkPrepared(ctx context.Context, f Filter) (int, error) {
	f.Status = StatusPending
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}
	if len(f.IDs) > 0 && len(orders) != len(f.IDs) {
		return 0, errors.Wrap(ErrConflict, "some orders are no longer pending")
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	if err := s.orders.MarkPrepared(ctx, ids, s.now()); err != nil {
		return 0, fmt.Errorf("mark prepared: %w", err)
	}
	s.prepared.Add(ctx, int64(len(ids)))
	return len(ids), nil
}

// Cancel moves a pending order to cancelled. The action is irreversible and
// must be confirmed by the caller.
func (s *Service) Cancel(ctx context.Context, id, owner string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	o, err := s.Get(ctx, id, owner)
	if err != nil {
		return err
	}
	if !o.Editable() {
		return &TransitionError{OrderID: id, From: o.Status, To: StatusCancelled}
	}
	return s.transition(ctx, id, StatusPending, StatusCancelled)
}

// Complete moves a prepared order to completed.
func (s *Service) Complete(ctx context.Context, id string) error {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return &TransitionError{OrderID: id, From: o.Status, To: StatusCompleted}
	}
	return s.transition(ctx, id, o.Status, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id string, from, to Status) error {
	if err := s.orders.Transition(ctx, id, from, to); err != nil {
		if errors.Is(err, ErrConflict) {
			return &TransitionError{OrderID: id, From: from, To: to}
		}
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (s *Service) recordConflict(ctx context.Context, o *Order) {
	s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Status))))
}

// ProductSummary is the quantity of one product across a set of orders.
type ProductSummary struct {
	ProductID   string
	ProductCode string
	ProductName string
	Quantity    int
	Orders      int
}

// SummarizeProducts totals quantities per product, sorted by product name.
func SummarizeProducts(orders []Order) []ProductSummary {
	byID := make(map[string]*ProductSummary)
	for _, o := range orders {
		seen := make(map[string]bool)
		for _, item := range o.Items {
			ps, ok := byID[item.ProductID]
			if !ok {
				ps = &ProductSummary{
					ProductID:   item.ProductID,
					ProductCode: item.ProductCode,
					ProductName: item.ProductName,
				}
				byID[item.ProductID] = ps
			}
			ps.Quantity += item.Quantity
			if !seen[item.ProductID] {
				seen[item.ProductID] = true
				ps.Orders++
			}
		}
	}

	out := make([]ProductSummary, 0, len(byID))
	for _, ps := range byID {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
