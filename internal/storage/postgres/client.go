package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liafood/backoffice/internal/domain/client"
)

const clientColumns = `id, code, name, address, postal_code, city, country,
	mobile, email, vat_number, created_at, updated_at`

const (
	listClientsSQL = `SELECT ` + clientColumns + ` FROM clients
		WHERE ($1 = '' OR strpos(LOWER(name), LOWER($1)) > 0
			OR strpos(LOWER(code), LOWER($1)) > 0
			OR strpos(LOWER(vat_number), LOWER($1)) > 0)
		ORDER BY name, id`

	getClientByIDSQL  = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	getClientByVATSQL = `SELECT ` + clientColumns + ` FROM clients WHERE vat_number = $1`

	createClientSQL = `INSERT INTO clients (id, code, name, address, postal_code, city, country,
		mobile, email, vat_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	updateClientSQL = `UPDATE clients SET code = $2, name = $3, address = $4, postal_code = $5,
		city = $6, country = $7, mobile = $8, email = $9, vat_number = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	upsertClientByVATSQL = `INSERT INTO clients (id, code, name, address, postal_code, city, country,
		mobile, email, vat_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (vat_number) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code, city = EXCLUDED.city, country = EXCLUDED.country,
			mobile = EXCLUDED.mobile, email = EXCLUDED.email, updated_at = NOW()
		RETURNING id, code, created_at, updated_at`

	deleteClientSQL = `DELETE FROM clients WHERE id = $1`

	clientsVATConstraint = "clients_vat_number_key"
)

var _ client.Repository = (*ClientRepository)(nil)

// ClientRepository implements client.Repository backed by PostgreSQL.
type ClientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository returns a ClientRepository that uses the given pool.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

// List returns clients whose name, code or VAT number contains query.
func (r *ClientRepository) List(ctx context.Context, query string) ([]client.Client, error) {
	rows, err := r.pool.Query(ctx, listClientsSQL, query)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	return pgx.CollectRows(rows, scanClient)
}

// GetByID returns a client by its identifier.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*client.Client, error) {
	return r.getOne(ctx, getClientByIDSQL, id)
}

// GetByVATNumber returns the client holding a normalized VAT number.
func (r *ClientRepository) GetByVATNumber(ctx context.Context, vat string) (*client.Client, error) {
	return r.getOne(ctx, getClientByVATSQL, vat)
}

func (r *ClientRepository) getOne(ctx context.Context, sql, arg string) (*client.Client, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting client %q: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanClient)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		return nil, fmt.Errorf("getting client %q: %w", arg, err)
	}
	return &c, nil
}

// Create inserts c. A VAT number already in use yields client.ErrDuplicateVAT.
func (r *ClientRepository) Create(ctx context.Context, c *client.Client) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, createClientSQL, clientArgs(c)...).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if uniqueViolationOn(err, clientsVATConstraint) {
			return client.ErrDuplicateVAT
		}
		return fmt.Errorf("creating client %q: %w", c.Name, err)
	}
	return nil
}

// Update overwrites every column of c.
func (r *ClientRepository) Update(ctx context.Context, c *client.Client) error {
	err := r.pool.QueryRow(ctx, updateClientSQL, clientArgs(c)...).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return client.ErrNotFound
		case uniqueViolationOn(err, clientsVATConstraint):
			return client.ErrDuplicateVAT
		}
		return fmt.Errorf("updating client %q: %w", c.ID, err)
	}
	return nil
}

// UpsertByVAT inserts c or refreshes the contact details of the client with
// the same VAT number. The stored ID and code are written back to c.
func (r *ClientRepository) UpsertByVAT(ctx context.Context, c *client.Client) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, upsertClientByVATSQL, clientArgs(c)...).
		Scan(&c.ID, &c.Code, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting client %q: %w", c.VATNumber, err)
	}
	return nil
}

// Delete removes a client.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteClientSQL, id); err != nil {
		return fmt.Errorf("deleting client %q: %w", id, err)
	}
	return nil
}

func clientArgs(c *client.Client) []any {
	return []any{
		c.ID, c.Code, c.Name, c.Address, c.PostalCode, c.City, c.Country,
		c.Mobile, c.Email, c.VATNumber,
	}
}

func scanClient(row pgx.CollectableRow) (client.Client, error) {
	var c client.Client
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Address, &c.PostalCode, &c.City, &c.Country,
		&c.Mobile, &c.Email, &c.VATNumber, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
