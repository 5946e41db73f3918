package order

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liafood/backoffice/internal/domain/cart"
	"github.com/liafood/backoffice/internal/domain/pricing"
	"github.com/liafood/backoffice/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context, _ product.Filter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Create(context.Context, *product.Product) error { return nil }
func (m *mockProductRepo) Update(context.Context, *product.Product) error { return nil }
func (m *mockProductRepo) Delete(context.Context, string) error           { return nil }

// mockOrderRepo is an in-memory repository honoring the conditional update
// contracts. beforeUpdate runs between the service re-check and the write.
type mockOrderRepo struct {
	mu           sync.Mutex
	byID         map[string]*Order
	createErr    error
	beforeUpdate func()
}

func newOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{byID: make(map[string]*Order)}
	for _, o := range orders {
		m.byID[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *o
	m.byID[o.ID] = &c
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *o
	return &c, nil
}

func (m *mockOrderRepo) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.byID {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, o.ID) {
			continue
		}
		if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, *o)
	}
	slices.SortFunc(out, func(a, b Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *mockOrderRepo) UpdateItems(_ context.Context, o *Order) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[o.ID]
	if !ok || !cur.Editable() {
		return ErrConflict
	}
	c := *o
	m.byID[o.ID] = &c
	return nil
}

func (m *mockOrderRepo) MarkPrepared(_ context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if o, ok := m.byID[id]; !ok || o.Status != StatusPending {
			return ErrConflict
		}
	}
	for _, id := range ids {
		m.byID[id].Status = StatusPrepared
		m.byID[id].PreparedAt = &at
	}
	return nil
}

func (m *mockOrderRepo) Transition(_ context.Context, id string, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok || o.Status != from {
		return ErrConflict
	}
	o.Status = to
	return nil
}

func (m *mockOrderRepo) CountByStatus(_ context.Context, status Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.byID {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *mockOrderRepo) prepare(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.byID[id].Status = StatusPrepared
	m.byID[id].PreparedAt = &now
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var fixedNow = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

func newTestProduct(id, category string, price decimal.Decimal) product.Product {
	return product.Product{
		ID:          id,
		Code:        "C" + id,
		Name:        "Product " + id,
		Category:    category,
		SalePriceHT: price,
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func newService(products *mockProductRepo, orders *mockOrderRepo) *Service {
	return NewService(products, orders, WithClock(func() time.Time { return fixedNow }))
}

func pendingOrder(id string, items ...pricing.Line) *Order {
	o := &Order{
		ID:              id,
		ClientVATNumber: "BE 0123456789",
		ClientName:      "Shop",
		Status:          StatusPending,
		CreatedAt:       fixedNow,
	}
	for i := range items {
		items[i].Recompute()
	}
	o.SetItems(items)
	return o
}

func snackLine(id, productID string, qty int, price string) pricing.Line {
	return pricing.Line{ID: id, ProductID: productID, ProductName: "Product " + productID,
		Quantity: qty, PriceHT: d(price), VATRate: d("6")}
}

// --- PlaceOrder ---

func TestPlaceOrder_ClientRequired(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []OrderItem{{ProductID: "p1", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrClientRequired)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{ClientVATNumber: "BE 1"})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	p1 := newTestProduct("p1", "SNACK", d("10"))
	svc := newService(newProductRepo(p1), newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientVATNumber: "BE 1",
		Items:           []OrderItem{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientVATNumber: "BE 1",
		Items:           []OrderItem{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestPlaceOrder_MultiRate(t *testing.T) {
	p1 := newTestProduct("p1", "EMBALLAGE", d("100"))
	p2 := newTestProduct("p2", "SNACK", d("25"))
	orders := newOrderRepo()
	svc := newService(newProductRepo(p1, p2), orders)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientVATNumber: "BE 0123456789",
		ClientName:      "Shop",
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
		},
	})
	require.NoError(t, err)

	o := result.Order
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, fixedNow, o.CreatedAt)
	assert.Nil(t, o.PreparedAt)
	require.Len(t, o.Items, 2)
	assert.True(t, d("150").Equal(o.Subtotal))
	assert.True(t, d("24").Equal(o.Tax))
	assert.True(t, d("174").Equal(o.Total))
	assert.Len(t, result.Products, 2)

	stored, err := orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, d("174").Equal(stored.Total))
}

func TestPlaceOrder_DuplicateProductsMerge(t *testing.T) {
	p1 := newTestProduct("p1", "SNACK", d("10"))
	svc := newService(newProductRepo(p1), newOrderRepo())

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientVATNumber: "BE 1",
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p1", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, 2, result.Order.Items[0].Quantity)
	assert.True(t, d("21.2").Equal(result.Order.Total))
}

func TestPlaceOrder_RepoErrors(t *testing.T) {
	p1 := newTestProduct("p1", "SNACK", d("10"))

	t.Run("product fetch", func(t *testing.T) {
		products := newProductRepo(p1)
		products.getErr = errors.New("connection refused")
		svc := newService(products, newOrderRepo())

		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			ClientVATNumber: "BE 1",
			Items:           []OrderItem{{ProductID: "p1", Quantity: 1}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("create", func(t *testing.T) {
		orders := newOrderRepo()
		orders.createErr = errors.New("db down")
		svc := newService(newProductRepo(p1), orders)

		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			ClientVATNumber: "BE 1",
			Items:           []OrderItem{{ProductID: "p1", Quantity: 1}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create order")
	})
}

func TestSubmit_ResetsCart(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo())
	c := cart.New()
	_, err := c.AddLine(newTestProduct("p1", "SNACK", d("2")), 3)
	require.NoError(t, err)

	o, err := svc.Submit(context.Background(), "BE 1", "Shop", c)
	require.NoError(t, err)
	assert.True(t, d("6.36").Equal(o.Total))
	assert.True(t, c.IsEmpty())
}

func TestSubmit_KeepsCartOnFailure(t *testing.T) {
	orders := newOrderRepo()
	orders.createErr = errors.New("timeout")
	svc := newService(newProductRepo(), orders)
	c := cart.New()
	_, _ = c.AddLine(newTestProduct("p1", "SNACK", d("2")), 1)

	_, err := svc.Submit(context.Background(), "BE 1", "Shop", c)
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestSubmit_BlankLinesOnly(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo())
	c := cart.New()
	c.AddBlankLine()

	_, err := svc.Submit(context.Background(), "BE 1", "Shop", c)
	require.ErrorIs(t, err, ErrEmptyItems)
}

// --- Draft editing ---

func TestSaveDraft_RejectedAfterPreparation(t *testing.T) {
	o := pendingOrder("o1", snackLine("l1", "p1", 2, "10"))
	orders := newOrderRepo(o)
	svc := newService(newProductRepo(), orders)
	ctx := context.Background()

	draft, err := svc.OpenDraft(ctx, "o1", "")
	require.NoError(t, err)
	require.NoError(t, draft.Cart.UpdateQuantity("l1", 5))

	// A batch preparation lands between open and save.
	orders.prepare("o1")

	_, err = svc.SaveDraft(ctx, draft)
	require.ErrorIs(t, err, ErrConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusPrepared, conflict.Status)

	stored, err := orders.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.True(t, d("21.2").Equal(stored.Total))
}

func TestSaveDraft_PreparedFlagWhilePending(t *testing.T) {
	o := pendingOrder("o1", snackLine("l1", "p1", 1, "10"))
	orders := newOrderRepo(o)
	svc := newService(newProductRepo(), orders)
	ctx := context.Background()

	draft, err := svc.OpenDraft(ctx, "o1", "")
	require.NoError(t, err)

	orders.mu.Lock()
	at := fixedNow
	orders.byID["o1"].PreparedAt = &at
	orders.mu.Unlock()

	_, err = svc.SaveDraft(ctx, draft)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Prepared)
	assert.Equal(t, StatusPending, conflict.Status)
}

func TestSaveDraft_RaceAfterRecheck(t *testing.T) {
	o := pendingOrder("o1", snackLine("l1", "p1", 1, "10"))
	orders := newOrderRepo(o)
	svc := newService(newProductRepo(), orders)
	ctx := context.Background()

	draft, err := svc.OpenDraft(ctx, "o1", "")
	require.NoError(t, err)
	require.NoError(t, draft.Cart.UpdateQuantity("l1", 9))

	orders.beforeUpdate = func() { orders.prepare("o1") }

	_, err = svc.SaveDraft(ctx, draft)
	require.ErrorIs(t, err, ErrConflict)

	stored, _ := orders.Get(ctx, "o1")
	assert.Equal(t, 1, stored.Items[0].Quantity)
}

func TestSaveDraft_Success(t *testing.T) {
	o := pendingOrder("o1", snackLine("l1", "p1", 1, "10"))
	orders := newOrderRepo(o)
	svc := newService(newProductRepo(), orders)
	ctx := context.Background()

	draft, err := svc.OpenDraft(ctx, "o1", "BE 0123456789")
	require.NoError(t, err)
	require.NoError(t, draft.Cart.UpdateQuantity("l1", 3))

	saved, err := svc.SaveDraft(ctx, draft)
	require.NoError(t, err)
	assert.True(t, d("31.8").Equal(saved.Total))
	assert.Equal(t, fixedNow, saved.UpdatedAt)

	stored, _ := orders.Get(ctx, "o1")
	assert.Equal(t, 3, stored.Items[0].Quantity)
}

func TestSaveDraft_EmptyItems(t *testing.T) {
	o := pendingOrder("o1", snackLine("l1", "p1", 1, "10"))
	svc := newService(newProductRepo(), newOrderRepo(o))

	draft, err := svc.OpenDraft(context.Background(), "o1", "")
	require.NoError(t, err)
	draft.Cart.RemoveLine("l1")

	_, err = svc.SaveDraft(context.Background(), draft)
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestOpenDraft_NotEditable(t *testing.T) {
	o := pendingOrder("o1")
	o.Status = StatusCompleted
	svc := newService(newProductRepo(), newOrderRepo(o))

	_, err := svc.OpenDraft(context.Background(), "o1", "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestOpenDraft_OtherOwner(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo(pendingOrder("o1")))

	_, err := svc.OpenDraft(context.Background(), "o1", "BE 9999999999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEditOrder(t *testing.T) {
	o := pendingOrder("o1",
		snackLine("l1", "p1", 1, "10"),
		snackLine("l2", "p2", 4, "1"),
	)
	p3 := newTestProduct("p3", "EMBALLAGE", d("100"))
	orders := newOrderRepo(o)
	svc := newService(newProductRepo(p3), orders)

	saved, err := svc.EditOrder(context.Background(), "o1", "", []OrderItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p3", Quantity: 1},
	})
	require.NoError(t, err)

	require.Len(t, saved.Items, 2)
	assert.Equal(t, "p1", saved.Items[0].ProductID)
	assert.Equal(t, 2, saved.Items[0].Quantity)
	assert.Equal(t, "p3", saved.Items[1].ProductID)
	assert.True(t, d("120").Equal(saved.Subtotal))
	assert.True(t, d("22.2").Equal(saved.Tax))
	assert.True(t, d("142.2").Equal(saved.Total))
}

func TestEditOrder_InvalidQuantity(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo(pendingOrder("o1", snackLine("l1", "p1", 1, "1"))))

	_, err := svc.EditOrder(context.Background(), "o1", "", []OrderItem{{ProductID: "p1", Quantity: -1}})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

// --- Lifecycle ---

func TestMarkPrepared_FilteredDay(t *testing.T) {
	today1 := pendingOrder("a", snackLine("l", "p1", 1, "1"))
	today2 := pendingOrder("b", snackLine("l", "p1", 1, "1"))
	yesterday := pendingOrder("c", snackLine("l", "p1", 1, "1"))
	yesterday.CreatedAt = fixedNow.AddDate(0, 0, -1)
	done := pendingOrder("d", snackLine("l", "p1", 1, "1"))
	done.Status = StatusCompleted

	orders := newOrderRepo(today1, today2, yesterday, done)
	svc := newService(newProductRepo(), orders)
	ctx := context.Background()

	n, err := svc.MarkPrepared(ctx, Day(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]Status{"a": StatusPrepared, "b": StatusPrepared, "c": StatusPending, "d": StatusCompleted} {
		o, _ := orders.Get(ctx, id)
		assert.Equal(t, want, o.Status, id)
	}
	a, _ := orders.Get(ctx, "a")
	require.NotNil(t, a.PreparedAt)
	assert.Equal(t, fixedNow, *a.PreparedAt)

	count, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkPrepared_AllOrNothing(t *testing.T) {
	a := pendingOrder("a", snackLine("l", "p1", 1, "1"))
	b := pendingOrder("b", snackLine("l", "p1", 1, "1"))
	b.Status = StatusCancelled
	orders := newOrderRepo(a, b)
	svc := newService(newProductRepo(), orders)
	ctx := context.Background()

	_, err := svc.MarkPrepared(ctx, Filter{IDs: []string{"a", "b"}})
	require.ErrorIs(t, err, ErrConflict)

	stored, _ := orders.Get(ctx, "a")
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.PreparedAt)
}

func TestMarkPrepared_NothingPending(t *testing.T) {
	svc := newService(newProductRepo(), newOrderRepo())
	n, err := svc.MarkPrepared(context.Background(), Day(fixedNow))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("requires confirmation", func(t *testing.T) {
		svc := newService(newProductRepo(), newOrderRepo(pendingOrder("o1")))
		require.ErrorIs(t, svc.Cancel(ctx, "o1", "", false), ErrConfirmationRequired)
	})

	t.Run("pending", func(t *testing.T) {
		orders := newOrderRepo(pendingOrder("o1"))
		svc := newService(newProductRepo(), orders)
		require.NoError(t, svc.Cancel(ctx, "o1", "BE 0123456789", true))
		o, _ := orders.Get(ctx, "o1")
		assert.Equal(t, StatusCancelled, o.Status)

		// Irreversible.
		var trErr *TransitionError
		require.ErrorAs(t, svc.Cancel(ctx, "o1", "", true), &trErr)
		assert.Equal(t, StatusCancelled, trErr.From)
	})

	t.Run("prepared", func(t *testing.T) {
		o := pendingOrder("o1")
		o.Status = StatusPrepared
		svc := newService(newProductRepo(), newOrderRepo(o))
		require.ErrorIs(t, svc.Cancel(ctx, "o1", "", true), ErrConflict)
	})

	t.Run("missing", func(t *testing.T) {
		svc := newService(newProductRepo(), newOrderRepo())
		require.ErrorIs(t, svc.Cancel(ctx, "nope", "", true), ErrNotFound)
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	o := pendingOrder("o1")
	orders := newOrderRepo(o)
	svc := newService(newProductRepo(), orders)

	require.ErrorIs(t, svc.Complete(ctx, "o1"), ErrConflict)

	orders.prepare("o1")
	require.NoError(t, svc.Complete(ctx, "o1"))
	stored, _ := orders.Get(ctx, "o1")
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPrepared))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusPrepared, StatusCompleted))
	assert.False(t, CanTransition(StatusPrepared, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
	assert.False(t, CanTransition(StatusCompleted, StatusPrepared))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
}

func TestSummarizeProducts(t *testing.T) {
	orders := []Order{
		*pendingOrder("a", snackLine("1", "p1", 2, "1"), snackLine("2", "p2", 1, "1")),
		*pendingOrder("b", snackLine("1", "p1", 3, "1")),
	}

	sum := SummarizeProducts(orders)
	require.Len(t, sum, 2)
	assert.Equal(t, "p1", sum[0].ProductID)
	assert.Equal(t, 5, sum[0].Quantity)
	assert.Equal(t, 2, sum[0].Orders)
	assert.Equal(t, 1, sum[1].Quantity)
	assert.Equal(t, 1, sum[1].Orders)
}
