package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liafood/backoffice/internal/domain/product"
)

const (
	listCategoriesSQL = `SELECT id, name, description, color FROM categories ORDER BY name`
	createCategorySQL = `INSERT INTO categories (id, name, description, color) VALUES ($1, $2, $3, $4)`
	updateCategorySQL = `UPDATE categories SET name = $2, description = $3, color = $4 WHERE id = $1`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
	ensureCategorySQL = `INSERT INTO categories (id, name, description, color) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`
)

var _ product.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository implements product.CategoryRepository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// ListCategories returns all categories ordered by name.
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Color)
		return c, err
	})
}

// CreateCategory inserts c, assigning an ID when it has none.
func (r *CategoryRepository) CreateCategory(ctx context.Context, c *product.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, err := r.pool.Exec(ctx, createCategorySQL, c.ID, c.Name, c.Description, c.Color); err != nil {
		return fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return nil
}

// UpdateCategory overwrites a category.
func (r *CategoryRepository) UpdateCategory(ctx context.Context, c *product.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL, c.ID, c.Name, c.Description, c.Color)
	if err != nil {
		return fmt.Errorf("updating category %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory removes a category.
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteCategorySQL, id); err != nil {
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	return nil
}

// EnsureDefaults inserts the default categories that do not exist yet.
func (r *CategoryRepository) EnsureDefaults(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, c := range product.DefaultCategories {
		batch.Queue(ensureCategorySQL, uuid.NewString(), c.Name, c.Description, c.Color)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("ensuring default categories: %w", err)
	}
	return nil
}
