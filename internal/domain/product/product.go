package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Validation errors.
var (
	ErrNameRequired  = errors.New("product name required")
	ErrCodeRequired  = errors.New("product code required")
	ErrNegativePrice = errors.New("price must not be negative")
	ErrNegativeStock = errors.New("stock must not be negative")
)

// DefaultCategory is assigned to products imported without a family.
const DefaultCategory = "Divers"

// Product is a catalog item. VATRate and SalePriceTTC are derived from
// Category and SalePriceHT and must only change through the setters.
type Product struct {
	ID              string
	Code            string
	Name            string
	Description     string
	Category        string
	Brand           string
	Unit            string
	PurchasePriceHT decimal.Decimal
	SalePriceHT     decimal.Decimal
	VATRate         decimal.Decimal
	SalePriceTTC    decimal.Decimal
	Stock           int
	AlertQuantity   int
	WeightKg        decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Normalize trims text fields and re-derives VAT rate and TTC price.
func (p *Product) Normalize() {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	p.derive()
}

// SetCategory changes the category and overwrites the VAT rate.
func (p *Product) SetCategory(category string) {
	p.Category = strings.TrimSpace(category)
	p.derive()
}

// SetSalePriceHT changes the HT sale price and recomputes the TTC price.
func (p *Product) SetSalePriceHT(price decimal.Decimal) {
	p.SalePriceHT = price
	p.derive()
}

func (p *Product) derive() {
	p.VATRate = pricing.VATRateForCategory(p.Category)
	p.SalePriceTTC = pricing.PriceTTC(p.SalePriceHT, p.VATRate)
}

// Validate checks the fields required to persist a product.
func (p *Product) Validate() error {
	switch {
	case p.Code == "":
		return ErrCodeRequired
	case p.Name == "":
		return ErrNameRequired
	case p.SalePriceHT.IsNegative(), p.PurchasePriceHT.IsNegative():
		return ErrNegativePrice
	case p.Stock < 0:
		return ErrNegativeStock
	}
	return nil
}

// Filter narrows product listings. Zero values match everything.
type Filter struct {
	// Query matches a case-insensitive substring of the name or code.
	Query    string
	Category string
}

// Match reports whether p satisfies the filter.
func (f Filter) Match(p Product) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Code), q)
	}
	return true
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	// Delete removes a product. Deleting a missing product is not an error.
	Delete(ctx context.Context, id string) error
}
