// Package company holds the seller details printed on invoices and reports.
package company

import "context"

// Settings describes the selling company.
type Settings struct {
	Name       string
	Address    string
	PostalCode string
	City       string
	Country    string
	VATNumber  string
	IBAN       string
	BIC        string
	Phone      string
	Email      string
}

// Defaults is used until settings are saved.
var Defaults = Settings{
	Name:       "LIA FOOD SRL",
	Address:    "RUE DE FIERLANT 120",
	PostalCode: "1190",
	City:       "FOREST",
	Country:    "Belgique",
	VATNumber:  "BE10 1540 8965",
	IBAN:       "BE31 0689 5398 8155",
}

// Repository persists the single settings record.
type Repository interface {
	// Get returns Defaults when nothing is stored.
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}
