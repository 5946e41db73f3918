package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/domain/pricing"
)

const orderColumns = `id, client_vat_number, client_name, items, subtotal, tax, total,
	status, created_at, updated_at, prepared_at`

const (
	createOrderSQL = `INSERT INTO orders (id, client_vat_number, client_name, items, subtotal, tax, total,
		status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	// NULL parameters disable their condition; LIMIT NULL means no limit.
	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text[] IS NULL OR id = ANY($1))
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		  AND ($4 = '' OR status = $4)
		  AND ($5 = '' OR client_vat_number = $5)
		  AND ($6 = '' OR strpos(LOWER(client_name), LOWER($6)) > 0
			OR strpos(LOWER(client_vat_number), LOWER($6)) > 0)
		ORDER BY created_at DESC, id
		LIMIT $7`

	updateOrderItemsSQL = `UPDATE orders SET items = $2, subtotal = $3, tax = $4, total = $5, updated_at = $6
		WHERE id = $1 AND status = 'pending' AND prepared_at IS NULL`

	markPreparedSQL = `UPDATE orders SET status = 'prepared', prepared_at = $2, updated_at = $2
		WHERE id = ANY($1) AND status = 'pending'`

	transitionOrderSQL = `UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	countOrdersByStatusSQL = `SELECT COUNT(*) FROM orders WHERE status = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.ClientVATNumber, o.ClientName, itemsJSON, o.Subtotal, o.Tax, o.Total,
		string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns the orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	var (
		ids      []string
		from, to *time.Time
		limit    *int
	)
	if len(f.IDs) > 0 {
		ids = f.IDs
	}
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	if f.Limit > 0 {
		limit = &f.Limit
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL,
		ids, from, to, string(f.Status), f.ClientVATNumber, f.Client, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateItems stores the items and totals of a pending, unprepared order.
func (r *OrderRepository) UpdateItems(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tag, err := r.pool.Exec(ctx, updateOrderItemsSQL,
		o.ID, itemsJSON, o.Subtotal, o.Tax, o.Total, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, o.ID)
	}
	return nil
}

// MarkPrepared prepares all ids in one transaction or none of them.
func (r *OrderRepository) MarkPrepared(ctx context.Context, ids []string, at time.Time) error {
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	if len(ids) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, markPreparedSQL, ids, at)
		if err != nil {
			return fmt.Errorf("marking orders prepared: %w", err)
		}
		if n := tag.RowsAffected(); n != int64(len(ids)) {
			return errors.Wrapf(order.ErrConflict, "%d of %d orders still pending", n, len(ids))
		}
		return nil
	})
}

// Transition moves an order from one status to another.
func (r *OrderRepository) Transition(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, transitionOrderSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// CountByStatus returns the number of orders in status.
func (r *OrderRepository) CountByStatus(ctx context.Context, status order.Status) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countOrdersByStatusSQL, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s orders: %w", status, err)
	}
	return n, nil
}

func (r *OrderRepository) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		status    string
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.ClientVATNumber, &o.ClientName, &itemsJSON, &o.Subtotal, &o.Tax, &o.Total,
		&status, &o.CreatedAt, &o.UpdatedAt, &o.PreparedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)

	var items []pricing.Line
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	o.Items = items
	return o, nil
}
