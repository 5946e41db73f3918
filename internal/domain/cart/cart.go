// Package cart keeps the in-progress line items of an order or invoice
// consistent with their totals.
//
// A Cart has a single owner (one request or editing session) and is not safe
// for concurrent use. Every mutation recomputes the touched line and then
// the aggregate from the full collection, so readers never observe totals
// that disagree with the lines.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/pricing"
	"github.com/liafood/backoffice/internal/domain/product"
)

var (
	// ErrInvalidQuantity is returned when adding a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrLineNotFound is returned by targeted updates of a missing line.
	ErrLineNotFound = errors.New("line not found")
	// ErrNegativePrice is returned when overriding a unit price below zero.
	ErrNegativePrice = errors.New("unit price must not be negative")
)

// Option configures a Cart.
type Option func(*Cart)

// WithIDGenerator overrides line identifier generation.
func WithIDGenerator(gen func() string) Option {
	return func(c *Cart) {
		c.newID = gen
	}
}

// Cart is an ordered collection of line items with derived totals.
type Cart struct {
	lines  []pricing.Line
	totals pricing.Totals
	newID  func() string
}

// New returns an empty cart.
func New(opts ...Option) *Cart {
	c := &Cart{newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	c.recalc()
	return c
}

// FromLines re-opens persisted line items. Derived fields are recomputed and
// missing line identifiers are assigned.
func FromLines(lines []pricing.Line, opts ...Option) *Cart {
	c := New(opts...)
	c.lines = make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		if l.ID == "" {
			l.ID = c.newID()
		}
		l.Recompute()
		c.lines = append(c.lines, l)
	}
	c.recalc()
	return c
}

// AddLine adds quantity units of p. An existing line for the same product is
// incremented; otherwise a new line is appended with the category VAT rate.
// It returns the identifier of the affected line.
func (c *Cart) AddLine(p product.Product, quantity int) (string, error) {
	if quantity <= 0 {
		return "", ErrInvalidQuantity
	}

	if i := c.indexOfProduct(p.ID); i >= 0 {
		l := &c.lines[i]
		l.Quantity += quantity
		l.Recompute()
		c.recalc()
		return l.ID, nil
	}

	l := pricing.Line{ID: c.newID(), Quantity: quantity}
	applyProduct(&l, p)
	c.lines = append(c.lines, l)
	c.recalc()
	return l.ID, nil
}

// AddBlankLine appends an empty line to be completed with SelectProduct.
func (c *Cart) AddBlankLine() string {
	l := pricing.Line{
		ID:       c.newID(),
		Quantity: 1,
		PriceHT:  decimal.Zero,
		VATRate:  pricing.DefaultVATRate,
	}
	l.Recompute()
	c.lines = append(c.lines, l)
	c.recalc()
	return l.ID
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes the line.
func (c *Cart) UpdateQuantity(lineID string, quantity int) error {
	i := c.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	if quantity <= 0 {
		c.RemoveLine(lineID)
		return nil
	}

	c.lines[i].Quantity = quantity
	c.lines[i].Recompute()
	c.recalc()
	return nil
}

// RemoveLine deletes a line. Removing an unknown line is a no-op.
func (c *Cart) RemoveLine(lineID string) {
	i := c.indexOf(lineID)
	if i < 0 {
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	c.recalc()
}

// SelectProduct replaces the product of a line, keeping its quantity. VAT
// rate and unit price are re-derived from the new product.
func (c *Cart) SelectProduct(lineID string, p product.Product) error {
	i := c.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	applyProduct(&c.lines[i], p)
	c.recalc()
	return nil
}

// SetUnitPrice overrides the HT unit price of a line.
func (c *Cart) SetUnitPrice(lineID string, priceHT decimal.Decimal) error {
	if priceHT.IsNegative() {
		return ErrNegativePrice
	}
	i := c.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.lines[i].PriceHT = priceHT
	c.lines[i].Recompute()
	c.recalc()
	return nil
}

// Lines returns a copy of the line items in insertion order.
func (c *Cart) Lines() []pricing.Line {
	out := make([]pricing.Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// ValidLines returns the lines that reference a product with a positive
// price. Blank editor rows are skipped.
func (c *Cart) ValidLines() []pricing.Line {
	var out []pricing.Line
	for _, l := range c.lines {
		if l.Valid() {
			out = append(out, l)
		}
	}
	return out
}

// Line returns a copy of a single line.
func (c *Cart) Line(lineID string) (pricing.Line, bool) {
	i := c.indexOf(lineID)
	if i < 0 {
		return pricing.Line{}, false
	}
	return c.lines[i], true
}

// Quantities maps product identifiers to their quantity in the cart.
func (c *Cart) Quantities() map[string]int {
	out := make(map[string]int, len(c.lines))
	for _, l := range c.lines {
		if l.ProductID != "" {
			out[l.ProductID] += l.Quantity
		}
	}
	return out
}

// Totals returns the unrounded aggregate of all lines.
func (c *Cart) Totals() pricing.Totals {
	return c.totals
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Reset discards every line.
func (c *Cart) Reset() {
	c.lines = nil
	c.recalc()
}

func (c *Cart) recalc() {
	c.totals = pricing.AggregateTotals(c.lines)
}

func (c *Cart) indexOf(lineID string) int {
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) indexOfProduct(productID string) int {
	if productID == "" {
		return -1
	}
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func applyProduct(l *pricing.Line, p product.Product) {
	l.ProductID = p.ID
	l.ProductCode = p.Code
	l.ProductName = p.Name
	l.PriceHT = p.SalePriceHT
	l.VATRate = pricing.VATRateForCategory(p.Category)
	l.Recompute()
}
