package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liafood/backoffice/internal/domain/auth"
)

const (
	findUserByEmailSQL = `SELECT id, email, password_hash, role FROM users WHERE email = $1`

	upsertUserSQL = `INSERT INTO users (id, email, password_hash, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role
		RETURNING id`
)

var _ auth.UserRepository = (*UserRepository)(nil)

// UserRepository provides operator lookups backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByEmail looks up an operator by lower-case email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := r.pool.QueryRow(ctx, findUserByEmailSQL, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user by email: %w", err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// Upsert creates the user or replaces its password and role.
func (r *UserRepository) Upsert(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, upsertUserSQL, u.ID, u.Email, u.PasswordHash, string(u.Role)).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return nil
}
