package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/pricing"
)

const invoiceColumns = `id, client_id, client_name, items, subtotal, tax, total,
	status, payment_method, created_at, due_date`

const (
	createInvoiceSQL = `INSERT INTO invoices (id, client_id, client_name, items, subtotal, tax, total,
		status, payment_method, created_at, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getInvoiceSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	listInvoicesSQL = `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE ($1 = '' OR client_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, id DESC`

	updateInvoiceSQL = `UPDATE invoices SET client_id = $2, client_name = $3, items = $4,
		subtotal = $5, tax = $6, total = $7, payment_method = $8, due_date = $9
		WHERE id = $1`

	updateInvoiceStatusSQL = `UPDATE invoices SET status = $2 WHERE id = $1`

	deleteInvoiceSQL = `DELETE FROM invoices WHERE id = $1`

	// Invoice numbers are FV####/YY; the sequence is characters 3 to 6.
	maxInvoiceSequenceSQL = `SELECT COALESCE(MAX(SUBSTRING(id FROM 3 FOR 4)::int), 0) FROM invoices
		WHERE id ~ '^FV[0-9]{4}/[0-9]{2}$' AND RIGHT(id, 2) = $1`

	invoicesPKey = "invoices_pkey"
)

var _ invoice.Repository = (*InvoiceRepository)(nil)

// InvoiceRepository implements invoice.Repository backed by PostgreSQL.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository that uses the given pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// Create inserts an invoice. A number already in use yields
// invoice.ErrDuplicateNumber.
func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("marshaling invoice items: %w", err)
	}
	_, err = r.pool.Exec(ctx, createInvoiceSQL,
		inv.ID, inv.ClientID, inv.ClientName, itemsJSON, inv.Subtotal, inv.Tax, inv.Total,
		string(inv.Status), string(inv.PaymentMethod), inv.CreatedAt, inv.DueDate,
	)
	if err != nil {
		if uniqueViolationOn(err, invoicesPKey) {
			return invoice.ErrDuplicateNumber
		}
		return fmt.Errorf("creating invoice %q: %w", inv.ID, err)
	}
	return nil
}

// Get returns an invoice by number.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	rows, err := r.pool.Query(ctx, getInvoiceSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice %q: %w", id, err)
	}
	inv, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}
		return nil, fmt.Errorf("getting invoice %q: %w", id, err)
	}
	return &inv, nil
}

// List returns the invoices matching f, newest first.
func (r *InvoiceRepository) List(ctx context.Context, f invoice.Filter) ([]invoice.Invoice, error) {
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	rows, err := r.pool.Query(ctx, listInvoicesSQL, f.ClientID, string(f.Status), from, to)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return pgx.CollectRows(rows, scanInvoice)
}

// Update overwrites the content of an invoice. Status is left untouched.
func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("marshaling invoice items: %w", err)
	}
	tag, err := r.pool.Exec(ctx, updateInvoiceSQL,
		inv.ID, inv.ClientID, inv.ClientName, itemsJSON, inv.Subtotal, inv.Tax, inv.Total,
		string(inv.PaymentMethod), inv.DueDate,
	)
	if err != nil {
		return fmt.Errorf("updating invoice %q: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

// UpdateStatus changes the payment state of an invoice.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status invoice.Status) error {
	tag, err := r.pool.Exec(ctx, updateInvoiceStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating invoice %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

// Delete removes an invoice.
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteInvoiceSQL, id); err != nil {
		return fmt.Errorf("deleting invoice %q: %w", id, err)
	}
	return nil
}

// MaxSequence returns the highest sequence number used in year yy.
func (r *InvoiceRepository) MaxSequence(ctx context.Context, yy int) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, maxInvoiceSequenceSQL, fmt.Sprintf("%02d", yy%100)).Scan(&n); err != nil {
		return 0, fmt.Errorf("reading last invoice number: %w", err)
	}
	return n, nil
}

func scanInvoice(row pgx.CollectableRow) (invoice.Invoice, error) {
	var (
		inv       invoice.Invoice
		status    string
		method    string
		itemsJSON []byte
	)
	err := row.Scan(
		&inv.ID, &inv.ClientID, &inv.ClientName, &itemsJSON, &inv.Subtotal, &inv.Tax, &inv.Total,
		&status, &method, &inv.CreatedAt, &inv.DueDate,
	)
	if err != nil {
		return inv, err
	}
	inv.Status = invoice.Status(status)
	inv.PaymentMethod = invoice.PaymentMethod(method)

	var items []pricing.Line
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return inv, fmt.Errorf("unmarshaling items of invoice %q: %w", inv.ID, err)
	}
	inv.Items = items
	return inv, nil
}
