package product

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrCategoryNotFound is returned when a category does not exist.
var ErrCategoryNotFound = errors.New("category not found")

// Category groups products and decides their VAT rate by name.
type Category struct {
	ID          string
	Name        string
	Description string
	Color       string
}

// DefaultCategories are created on an empty database.
var DefaultCategories = []Category{
	{Name: "Boisson", Description: "Boissons et rafraîchissements", Color: "#3B82F6"},
	{Name: "Emballage", Description: "Emballages et contenants", Color: "#10B981"},
	{Name: "Snack", Description: "Snacks et collations", Color: "#F59E0B"},
}

// CategoryRepository persists categories.
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id string) error
}
