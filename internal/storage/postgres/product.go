package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liafood/backoffice/internal/domain/product"
)

const productColumns = `id, code, name, description, category, brand, unit,
	purchase_price_ht, sale_price_ht, vat_rate, sale_price_ttc,
	stock, alert_quantity, weight_kg, created_at, updated_at`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ($1 = '' OR strpos(LOWER(name), LOWER($1)) > 0 OR strpos(LOWER(code), LOWER($1)) > 0)
		  AND ($2 = '' OR LOWER(category) = LOWER($2))
		ORDER BY name, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (id, code, name, description, category, brand, unit,
		purchase_price_ht, sale_price_ht, vat_rate, sale_price_ttc, stock, alert_quantity, weight_kg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	updateProductSQL = `UPDATE products SET code = $2, name = $3, description = $4, category = $5,
		brand = $6, unit = $7, purchase_price_ht = $8, sale_price_ht = $9, vat_rate = $10,
		sale_price_ttc = $11, stock = $12, alert_quantity = $13, weight_kg = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	upsertProductByCodeSQL = `INSERT INTO products (id, code, name, description, category, brand, unit,
		purchase_price_ht, sale_price_ht, vat_rate, sale_price_ttc, stock, alert_quantity, weight_kg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			category = EXCLUDED.category, brand = EXCLUDED.brand, unit = EXCLUDED.unit,
			purchase_price_ht = EXCLUDED.purchase_price_ht, sale_price_ht = EXCLUDED.sale_price_ht,
			vat_rate = EXCLUDED.vat_rate, sale_price_ttc = EXCLUDED.sale_price_ttc,
			stock = EXCLUDED.stock, alert_quantity = EXCLUDED.alert_quantity,
			weight_kg = EXCLUDED.weight_kg, updated_at = NOW()
		RETURNING id, created_at, updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the products matching f ordered by name.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, f.Query, f.Category)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts p, assigning an ID when it has none.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, createProductSQL, productArgs(p)...).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Code, err)
	}
	return nil
}

// Update overwrites every column of p.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL, productArgs(p)...).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertByCode inserts p or updates the product with the same code. The ID
// of the stored row is written back to p.
func (r *ProductRepository) UpsertByCode(ctx context.Context, p *product.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, upsertProductByCodeSQL, productArgs(p)...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Code, err)
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteProductSQL, id); err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	return nil
}

func productArgs(p *product.Product) []any {
	return []any{
		p.ID, p.Code, p.Name, p.Description, p.Category, p.Brand, p.Unit,
		p.PurchasePriceHT, p.SalePriceHT, p.VATRate, p.SalePriceTTC,
		p.Stock, p.AlertQuantity, p.WeightKg,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.Description, &p.Category, &p.Brand, &p.Unit,
		&p.PurchasePriceHT, &p.SalePriceHT, &p.VATRate, &p.SalePriceTTC,
		&p.Stock, &p.AlertQuantity, &p.WeightKg, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
