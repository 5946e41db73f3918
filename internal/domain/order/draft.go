package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/liafood/backoffice/internal/domain/cart"
	"github.com/liafood/backoffice/internal/domain/product"
)

// Draft is an editing session over a pending order. The cart is owned by the
// session until SaveDraft succeeds.
type Draft struct {
	Order *Order
	Cart  *cart.Cart
}

// OpenDraft loads an order for editing. Orders that are no longer editable
// are rejected with a *ConflictError.
func (s *Service) OpenDraft(ctx context.Context, id, owner string) (*Draft, error) {
	o, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if !o.Editable() {
		return nil, &ConflictError{OrderID: o.ID, Status: o.Status, Prepared: o.PreparedAt != nil}
	}
	return &Draft{Order: o, Cart: cart.FromLines(o.Items)}, nil
}

// SaveDraft commits the draft items. The authoritative order is re-read
// right before writing and the write itself only applies to a pending,
// unprepared order; in both cases a concurrent preparation or cancellation
// yields a *ConflictError and nothing is written.
func (s *Service) SaveDraft(ctx context.Context, d *Draft) (*Order, error) {
	items := d.Cart.ValidLines()
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	current, err := s.orders.Get(ctx, d.Order.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh order: %w", err)
	}
	if !current.Editable() {
		s.recordConflict(ctx, current)
		return nil, &ConflictError{OrderID: current.ID, Status: current.Status, Prepared: current.PreparedAt != nil}
	}

	updated := *current
	updated.SetItems(items)
	updated.UpdatedAt = s.now()

	if err := s.orders.UpdateItems(ctx, &updated); err != nil {
		if errors.Is(err, ErrConflict) {
			s.recordConflict(ctx, current)
			return nil, &ConflictError{OrderID: current.ID, Status: StatusPrepared, Prepared: true}
		}
		return nil, fmt.Errorf("update order: %w", err)
	}

	d.Order = &updated
	return &updated, nil
}

// EditOrder replaces the quantities of an order with items. Products absent
// from items are removed; new products are added at their current price;
// existing lines keep their price snapshot.
func (s *Service) EditOrder(ctx context.Context, id, owner string, items []OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	d, err := s.OpenDraft(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]int, len(items))
	var missing []OrderItem
	existing := d.Cart.Quantities()
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		wanted[item.ProductID] += item.Quantity
		if _, ok := existing[item.ProductID]; !ok {
			missing = append(missing, item)
		}
	}

	var added []product.Product
	if len(missing) > 0 {
		added, err = s.fetchProducts(ctx, missing)
		if err != nil {
			return nil, err
		}
	}

	for _, l := range d.Cart.Lines() {
		q, ok := wanted[l.ProductID]
		if !ok {
			d.Cart.RemoveLine(l.ID)
			continue
		}
		if err := d.Cart.UpdateQuantity(l.ID, q); err != nil {
			return nil, errors.Wrap(err, "update quantity")
		}
		delete(wanted, l.ProductID)
	}
	for _, p := range added {
		q, ok := wanted[p.ID]
		if !ok {
			continue
		}
		if _, err := d.Cart.AddLine(p, q); err != nil {
			return nil, errors.Wrap(err, "add line")
		}
		delete(wanted, p.ID)
	}

	return s.SaveDraft(ctx, d)
}
