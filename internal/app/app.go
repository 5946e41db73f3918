package app

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liafood/backoffice/internal/catalog"
	"github.com/liafood/backoffice/internal/changefeed"
	"github.com/liafood/backoffice/internal/domain/auth"
	"github.com/liafood/backoffice/internal/domain/invoice"
	"github.com/liafood/backoffice/internal/domain/order"
	"github.com/liafood/backoffice/internal/handler"
	"github.com/liafood/backoffice/internal/storage/postgres"
	"github.com/liafood/backoffice/pkg/health"
	"github.com/liafood/backoffice/pkg/httpmiddleware"
)

const (
	relayRetryDelay  = 5 * time.Second
	changefeedGrace  = 30 * time.Second
	healthInterval   = 10 * time.Second
	eventHubCapacity = 64
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	clientRepo := postgres.NewClientRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	companyRepo := postgres.NewCompanyRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	if err := categoryRepo.EnsureDefaults(ctx); err != nil {
		return errors.Wrap(err, "default categories")
	}

	// Catalog cache, kept fresh by the changefeed relay.
	store := catalog.New(productRepo, categoryRepo, clientRepo)
	if err := store.Load(ctx); err != nil {
		return errors.Wrap(err, "load catalog")
	}
	hub := changefeed.NewHub(eventHubCapacity)

	// Domain services.
	authService, err := auth.NewService(userRepo, clientRepo, auth.Config{
		Secret:    []byte(cfg.Auth.Secret),
		AdminTTL:  cfg.Auth.AdminTTL,
		ClientTTL: cfg.Auth.ClientTTL,
		Issuer:    "backoffice",
	})
	if err != nil {
		return errors.Wrap(err, "create auth service")
	}
	orderService := order.NewService(productRepo, orderRepo,
		order.WithMeterProvider(m.MeterProvider()),
	)
	invoiceService := invoice.NewService(invoiceRepo, clientRepo, productRepo,
		invoice.WithStartNumber(cfg.Invoice.StartNumber),
		invoice.WithDueDays(cfg.Invoice.DueDays),
	)

	// HTTP handlers.
	h := handler.New(
		handler.Config{Location: cfg.Location()},
		authService,
		store,
		orderService,
		invoiceService,
		companyRepo,
		hub,
	)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("changefeed", time.Second,
		health.ConnectedCheck(hub.Connected, changefeedGrace),
		health.WithFailureThreshold(3),
	)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, healthInterval)
	healthSvc.SetReady(true)

	// Mux: health endpoints share the API router.
	mux := h.Mux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MuxRoutes(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   skipRateLimit,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("backoffice-api", routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	// Changefeed relay: database notifications to the hub, the catalog and
	// the event stream.
	g.Go(func() error {
		relay(gctx, lg, hub, postgres.NewChangefeed(pool))
		return nil
	})
	g.Go(func() error {
		err := store.Watch(gctx, hub.Subscribe(gctx, changefeed.TableProducts, changefeed.TableClients))
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "watch catalog")
		}
		return nil
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// relay keeps a changefeed subscription open until ctx ends, reconnecting
// after failures.
func relay(ctx context.Context, lg *zap.Logger, hub *changefeed.Hub, src changefeed.Subscriber) {
	for {
		err := hub.Relay(ctx, src)
		if ctx.Err() != nil {
			return
		}
		lg.Warn("Changefeed interrupted, reconnecting", zap.Error(err), zap.Duration("delay", relayRetryDelay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(relayRetryDelay):
		}
	}
}

// skipRateLimit exempts probes and the long-lived event stream.
func skipRateLimit(r *http.Request) bool {
	switch r.URL.Path {
	case "/livez", "/readyz":
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/events")
}
