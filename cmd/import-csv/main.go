package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/liafood/backoffice/internal/domain/client"
	"github.com/liafood/backoffice/internal/domain/product"
	"github.com/liafood/backoffice/internal/importer"
	"github.com/liafood/backoffice/internal/storage/postgres"
)

func main() {
	var (
		productsPath string
		clientsPath  string
		databaseURL  string
		dryRun       bool
	)

	flag.StringVar(&productsPath, "products", "", "product export (.csv or .csv.gz)")
	flag.StringVar(&clientsPath, "clients", "", "client export (.csv or .csv.gz)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report without writing")
	flag.Parse()

	_ = godotenv.Load()
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if productsPath == "" && clientsPath == "" {
		slog.Error("nothing to import: set --products and/or --clients")
		os.Exit(2)
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, productsPath, clientsPath, databaseURL, dryRun); err != nil {
		slog.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("import completed successfully")
}

func run(ctx context.Context, productsPath, clientsPath, databaseURL string, dryRun bool) error {
	var (
		products []product.Product
		clients  []client.Client
	)

	// Both files are parsed concurrently; writes happen afterwards.
	g, gctx := errgroup.WithContext(ctx)
	if productsPath != "" {
		g.Go(func() error {
			var err error
			if products, err = parseFile(gctx, productsPath, importer.ParseProducts); err != nil {
				return errors.Wrap(err, "parse products")
			}
			return nil
		})
	}
	if clientsPath != "" {
		g.Go(func() error {
			var err error
			if clients, err = parseFile(gctx, clientsPath, importer.ParseClients); err != nil {
				return errors.Wrap(err, "parse clients")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if dryRun {
		slog.Info("dry run, nothing written",
			slog.Int("products", len(products)),
			slog.Int("clients", len(clients)),
		)
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if len(products) > 0 {
		n, err := importer.WriteProducts(ctx, postgres.NewProductRepository(pool), products)
		slog.Info("products written", slog.Int("count", n))
		if err != nil {
			return err
		}
	}
	if len(clients) > 0 {
		n, err := importer.WriteClients(ctx, postgres.NewClientRepository(pool), clients)
		slog.Info("clients written", slog.Int("count", n))
		if err != nil {
			return err
		}
	}
	return nil
}

// parseFile opens path and parses it, logging every skipped row.
func parseFile[T any](ctx context.Context, path string, parse func(r io.Reader) ([]T, []importer.RowError, error)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := importer.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	records, skipped, err := parse(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	for _, s := range skipped {
		slog.Warn("row skipped",
			slog.String("file", path),
			slog.Int("line", s.Line),
			slog.String("reason", s.Err.Error()),
		)
	}
	slog.Info("file parsed",
		slog.String("file", path),
		slog.Int("records", len(records)),
		slog.Int("skipped", len(skipped)),
	)
	return records, nil
}
