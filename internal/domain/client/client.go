// Package client holds the client directory: professional customers keyed
// by their Belgian VAT number.
package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a client does not exist.
	ErrNotFound = errors.New("client not found")
	// ErrDuplicateVAT is returned when another client holds the VAT number.
	ErrDuplicateVAT = errors.New("a client with this VAT number already exists")
	// ErrNameRequired is returned when a client has no name.
	ErrNameRequired = errors.New("client name required")
	// ErrVATRequired is returned when a client has no VAT number.
	ErrVATRequired = errors.New("client VAT number required")
)

// Client is a customer of the shop.
type Client struct {
	ID         string
	Code       string
	Name       string
	Address    string
	PostalCode string
	City       string
	Country    string
	Mobile     string
	Email      string
	VATNumber  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Normalize trims fields and rewrites the VAT number in canonical form.
func (c *Client) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Code = strings.TrimSpace(c.Code)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	if c.VATNumber != "" {
		c.VATNumber = NormalizeVAT(c.VATNumber)
	}
}

// Validate checks the fields required to persist a client.
func (c *Client) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.VATNumber == "" {
		return ErrVATRequired
	}
	return nil
}

// NormalizeVAT formats a Belgian VAT number as "BE 0123456789": non
// alphanumeric characters and a leading BE are dropped, then the remaining
// characters are padded with zeros or truncated to ten.
func NormalizeVAT(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "BE")
	if len(digits) > 10 {
		digits = digits[:10]
	}
	return "BE " + strings.Repeat("0", 10-len(digits)) + digits
}

// GenerateCode builds a short client code from the first three letters of
// the name followed by four random digits.
func GenerateCode(name string, rnd *rand.Rand) string {
	var prefix []rune
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) {
			prefix = append(prefix, r)
			if len(prefix) == 3 {
				break
			}
		}
	}
	for len(prefix) < 3 {
		prefix = append(prefix, 'X')
	}

	var n int
	if rnd != nil {
		n = rnd.IntN(10000)
	} else {
		n = rand.IntN(10000)
	}
	return fmt.Sprintf("%s%04d", string(prefix), n)
}

// Repository defines persistence operations for clients.
type Repository interface {
	List(ctx context.Context, query string) ([]Client, error)
	GetByID(ctx context.Context, id string) (*Client, error)
	GetByVATNumber(ctx context.Context, vat string) (*Client, error)
	// Create returns ErrDuplicateVAT when the VAT number is taken.
	Create(ctx context.Context, c *Client) error
	Update(ctx context.Context, c *Client) error
	// Delete removes a client. Deleting a missing client is not an error.
	Delete(ctx context.Context, id string) error
}
