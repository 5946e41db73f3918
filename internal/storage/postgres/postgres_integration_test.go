//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liafood/backoffice/internal/changefeed"
	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/pricing"
	"github.com/liafood/backoffice/internal/domain/product"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "backoffice",
				"POSTGRES_PASSWORD": "backoffice",
				"POSTGRES_DB":       "backoffice",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting postgres: %v\n", err)
		return 1
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "container host: %v\n", err)
		return 1
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "container port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://backoffice:backoffice@%s:%s/backoffice?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		return 1
	}
	return m.Run()
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seedProduct(t *testing.T, code, category, price string) product.Product {
	t.Helper()
	p := product.Product{Code: code, Name: "Produit " + code, Category: category, SalePriceHT: d(price), Stock: 10}
	p.Normalize()
	require.NoError(t, NewProductRepository(testPool).Create(context.Background(), &p))
	return p
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(testPool)

	p := seedProduct(t, "PRD-LIST", "Emballage", "2.00")

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.VATRate.Equal(d("21")))
	assert.True(t, got.SalePriceTTC.Equal(d("2.42")))

	list, err := repo.List(ctx, product.Filter{Query: "prd-list"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)

	up := product.Product{Code: "PRD-LIST", Name: "Renamed", Category: "Snack", SalePriceHT: d("1")}
	up.Normalize()
	require.NoError(t, repo.UpsertByCode(ctx, &up))
	assert.Equal(t, p.ID, up.ID)

	require.NoError(t, repo.Delete(ctx, p.ID))
	require.NoError(t, repo.Delete(ctx, p.ID))
}

func TestClientRepository_DuplicateVAT(t *testing.T) {
	ctx := context.Background()
	repo := NewClientRepository(testPool)

	c := client.Client{Code: "DUP0001", Name: "Dup", VATNumber: "BE 0000000001"}
	require.NoError(t, repo.Create(ctx, &c))

	other := client.Client{Code: "DUP0002", Name: "Dup 2", VATNumber: "BE 0000000001"}
	require.ErrorIs(t, repo.Create(ctx, &other), client.ErrDuplicateVAT)

	got, err := repo.GetByVATNumber(ctx, "BE 0000000001")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func newPendingOrder(t *testing.T, id string, at time.Time) *order.Order {
	t.Helper()
	p := seedProduct(t, "ORD-"+id, "Boisson", "1.00")
	line := pricing.Line{ID: "l1", ProductID: p.ID, ProductCode: p.Code, ProductName: p.Name, Quantity: 2, PriceHT: p.SalePriceHT, VATRate: p.VATRate}
	line.Recompute()

	o := &order.Order{ID: id, ClientVATNumber: "BE 0123456789", ClientName: "Snack", Status: order.StatusPending, CreatedAt: at, UpdatedAt: at}
	o.SetItems([]pricing.Line{line})
	require.NoError(t, NewOrderRepository(testPool).Create(context.Background(), o))
	return o
}

func TestOrderRepository_ConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	o := newPendingOrder(t, "ord-cond", at)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Total.Equal(d("2.12")))

	require.NoError(t, repo.MarkPrepared(ctx, []string{o.ID}, at.Add(time.Hour)))

	o.UpdatedAt = at.Add(2 * time.Hour)
	require.ErrorIs(t, repo.UpdateItems(ctx, o), order.ErrConflict)
	require.ErrorIs(t, repo.Transition(ctx, o.ID, order.StatusPending, order.StatusCancelled), order.ErrConflict)
	require.NoError(t, repo.Transition(ctx, o.ID, order.StatusPrepared, order.StatusCompleted))
	require.ErrorIs(t, repo.Transition(ctx, "missing", order.StatusPending, order.StatusCancelled), order.ErrNotFound)
}

func TestOrderRepository_MarkPreparedAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	at := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

	a := newPendingOrder(t, "ord-batch-a", at)
	b := newPendingOrder(t, "ord-batch-b", at)
	require.NoError(t, repo.Transition(ctx, b.ID, order.StatusPending, order.StatusCancelled))

	err := repo.MarkPrepared(ctx, []string{a.ID, b.ID}, at)
	require.ErrorIs(t, err, order.ErrConflict)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Nil(t, got.PreparedAt)

	day, err := repo.List(ctx, order.Day(at))
	require.NoError(t, err)
	assert.Len(t, day, 2)
}

func TestInvoiceRepository_Numbering(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(testPool)
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	inv := &invoice.Invoice{
		ID: invoice.FormatNumber(158, 2025), ClientID: "c1", ClientName: "Snack",
		Status: invoice.StatusDraft, PaymentMethod: invoice.PaymentCash,
		CreatedAt: now, DueDate: now.AddDate(0, 0, 30),
	}
	inv.SetItems(nil)
	require.NoError(t, repo.Create(ctx, inv))
	require.ErrorIs(t, repo.Create(ctx, inv), invoice.ErrDuplicateNumber)

	n, err := repo.MaxSequence(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, 158, n)

	n, err = repo.MaxSequence(ctx, 26)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChangefeed_DeliversProductEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	feed := NewChangefeed(testPool)
	events := make(chan changefeed.Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev, err := range feed.Subscribe(ctx, changefeed.TableProducts) {
			if err != nil {
				return
			}
			events <- ev
			return
		}
	}()

	// LISTEN is issued asynchronously; keep writing until an event arrives.
	var p product.Product
	require.Eventually(t, func() bool {
		p = seedProduct(t, fmt.Sprintf("FEED-%d", time.Now().UnixNano()), "Snack", "1")
		select {
		case ev := <-events:
			return ev.Table == changefeed.TableProducts && ev.Op == changefeed.OpInsert
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 20*time.Second, 10*time.Millisecond)

	<-done
	assert.NotEmpty(t, p.ID)
}
