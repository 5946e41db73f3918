package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/liafood/backoffice/internal/domain/client"
)

// Session lifetimes.
const (
	DefaultAdminTTL  = 12 * time.Hour
	DefaultClientTTL = 2 * time.Hour
)

// dummyHash keeps login timing similar for unknown and known emails.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z6/dGJZ3bHjDsv6Zp1p6Y5Vq"

// ClientLookup resolves a client by normalized VAT number.
type ClientLookup interface {
	GetByVATNumber(ctx context.Context, vat string) (*client.Client, error)
}

// Config holds token settings.
type Config struct {
	Secret    []byte
	AdminTTL  time.Duration
	ClientTTL time.Duration
	Issuer    string
}

// Session is an issued token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Claims    *Claims
}

// Service authenticates admins and clients.
type Service struct {
	users   UserRepository
	clients ClientLookup
	cfg     Config
	now     func() time.Time
}

// NewService validates cfg and returns an auth Service.
func NewService(users UserRepository, clients ClientLookup, cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	if cfg.AdminTTL <= 0 {
		cfg.AdminTTL = DefaultAdminTTL
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = DefaultClientTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "backoffice"
	}
	return &Service{users: users, clients: clients, cfg: cfg, now: time.Now}, nil
}

// LoginAdmin checks an operator password.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(&Claims{
		Role: u.Role,
		Name: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: u.ID,
		},
	}, s.cfg.AdminTTL)
}

// LoginClient identifies a client by VAT number. This is a lookup rather
// than a credential check, so client sessions are short-lived.
func (s *Service) LoginClient(ctx context.Context, vatNumber string) (*Session, error) {
	if strings.TrimSpace(vatNumber) == "" {
		return nil, ErrUnknownClient
	}
	c, err := s.clients.GetByVATNumber(ctx, client.NormalizeVAT(vatNumber))
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, ErrUnknownClient
		}
		return nil, errors.Wrap(err, "find client")
	}

	return s.issue(&Claims{
		Role:      RoleClient,
		Name:      c.Name,
		VATNumber: c.VATNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: c.ID,
		},
	}, s.cfg.ClientTTL)
}

func (s *Service) issue(claims *Claims, ttl time.Duration) (*Session, error) {
	now := s.now()
	expires := now.Add(ttl)
	claims.Issuer = s.cfg.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expires)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}
	return &Session{Token: token, ExpiresAt: expires, Claims: claims}, nil
}

// Verify parses a token and returns its claims. Expired or tampered tokens
// yield ErrInvalidToken.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleAdmin && claims.Role != RoleClient {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}
