package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liafood/backoffice/internal/domain/company"
)

const (
	getCompanySQL = `SELECT name, address, postal_code, city, country, vat_number, iban, bic, phone, email
		FROM company_settings WHERE id = 1`

	saveCompanySQL = `INSERT INTO company_settings (id, name, address, postal_code, city, country,
		vat_number, iban, bic, phone, email)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code, city = EXCLUDED.city, country = EXCLUDED.country,
			vat_number = EXCLUDED.vat_number, iban = EXCLUDED.iban, bic = EXCLUDED.bic,
			phone = EXCLUDED.phone, email = EXCLUDED.email`
)

var _ company.Repository = (*CompanyRepository)(nil)

// CompanyRepository stores the single company settings row.
type CompanyRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository returns a CompanyRepository that uses the given pool.
func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

// Get returns the stored settings or company.Defaults.
func (r *CompanyRepository) Get(ctx context.Context) (*company.Settings, error) {
	var s company.Settings
	err := r.pool.QueryRow(ctx, getCompanySQL).Scan(
		&s.Name, &s.Address, &s.PostalCode, &s.City, &s.Country,
		&s.VATNumber, &s.IBAN, &s.BIC, &s.Phone, &s.Email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			d := company.Defaults
			return &d, nil
		}
		return nil, fmt.Errorf("getting company settings: %w", err)
	}
	return &s, nil
}

// Save writes the settings.
func (r *CompanyRepository) Save(ctx context.Context, s *company.Settings) error {
	_, err := r.pool.Exec(ctx, saveCompanySQL,
		s.Name, s.Address, s.PostalCode, s.City, s.Country,
		s.VATNumber, s.IBAN, s.BIC, s.Phone, s.Email,
	)
	if err != nil {
		return fmt.Errorf("saving company settings: %w", err)
	}
	return nil
}
