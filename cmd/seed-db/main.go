package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/liafood/backoffice/internal/domain/auth"
	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/product"
	"github.com/liafood/backoffice/internal/storage/postgres"
)

type productJSON struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Unit            string          `json:"unit"`
	PurchasePriceHT decimal.Decimal `json:"purchase_price_ht"`
	SalePriceHT     decimal.Decimal `json:"sale_price_ht"`
	Stock           int             `json:"stock"`
	AlertQuantity   int             `json:"alert_quantity"`
}

type clientJSON struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
	VATNumber  string `json:"vat_number"`
}

type catalogJSON struct {
	Products []productJSON `json:"products"`
	Clients  []clientJSON  `json:"clients"`
}

func main() {
	var (
		databaseURL   string
		catalogFile   string
		adminEmail    string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "sample products and clients; empty to skip")
	flag.StringVar(&adminEmail, "admin-email", "", "admin login (or BACKOFFICE_SEED_ADMIN_EMAIL env)")
	flag.StringVar(&adminPassword, "admin-password", "", "admin password (or BACKOFFICE_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	_ = godotenv.Load()
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminEmail == "" {
		adminEmail = os.Getenv("BACKOFFICE_SEED_ADMIN_EMAIL")
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("BACKOFFICE_SEED_ADMIN_PASSWORD")
	}
	if adminEmail == "" || adminPassword == "" {
		slog.Error("admin credentials are required: set --admin-email and --admin-password")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, adminEmail, adminPassword); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, adminEmail, adminPassword string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := postgres.NewCategoryRepository(pool).EnsureDefaults(ctx); err != nil {
		return errors.Wrap(err, "seed categories")
	}

	if err := seedAdmin(ctx, postgres.NewUserRepository(pool), adminEmail, adminPassword); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	// Persist the built-in company settings so they can be edited.
	companyRepo := postgres.NewCompanyRepository(pool)
	settings, err := companyRepo.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "read company settings")
	}
	if err := companyRepo.Save(ctx, settings); err != nil {
		return errors.Wrap(err, "seed company settings")
	}

	if catalogFile == "" {
		return nil
	}
	return seedCatalog(ctx, postgres.NewProductRepository(pool), postgres.NewClientRepository(pool), catalogFile)
}

func seedAdmin(ctx context.Context, users *postgres.UserRepository, email, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := &auth.User{Email: email, PasswordHash: hash, Role: auth.RoleAdmin}
	if err := users.Upsert(ctx, u); err != nil {
		return err
	}

	slog.Info("upserted admin", slog.String("email", email))

	return nil
}

func seedCatalog(ctx context.Context, products *postgres.ProductRepository, clients *postgres.ClientRepository, path string) error {
	slog.Info("reading catalog file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(catalog.Products)))

	for _, in := range catalog.Products {
		p := &product.Product{
			Code:            in.Code,
			Name:            in.Name,
			Category:        in.Category,
			Unit:            in.Unit,
			PurchasePriceHT: in.PurchasePriceHT,
			SalePriceHT:     in.SalePriceHT,
			Stock:           in.Stock,
			AlertQuantity:   in.AlertQuantity,
		}
		p.Normalize()
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %s", in.Code)
		}
		if err := products.UpsertByCode(ctx, p); err != nil {
			return err
		}

		slog.Info("upserted product", slog.String("code", p.Code), slog.String("name", p.Name))
	}

	slog.Info("upserting clients", slog.Int("count", len(catalog.Clients)))

	for _, in := range catalog.Clients {
		c := &client.Client{
			Code:       in.Code,
			Name:       in.Name,
			Address:    in.Address,
			PostalCode: in.PostalCode,
			City:       in.City,
			Country:    in.Country,
			VATNumber:  in.VATNumber,
		}
		c.Normalize()
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "client %s", in.Code)
		}
		if err := clients.UpsertByVAT(ctx, c); err != nil {
			return err
		}

		slog.Info("upserted client", slog.String("code", c.Code), slog.String("vat_number", c.VATNumber))
	}

	return nil
}
