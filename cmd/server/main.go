package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/dukerupert/vanir/internal"
	"github.com/dukerupert/vanir/internal/billing"
	"github.com/dukerupert/vanir/internal/events"
	"github.com/dukerupert/vanir/internal/handler/api"
	"github.com/dukerupert/vanir/internal/handler/webhook"
	"github.com/dukerupert/vanir/internal/middleware"
	"github.com/dukerupert/vanir/internal/postgres"
	"github.com/dukerupert/vanir/internal/router"
	"github.com/dukerupert/vanir/internal/routes"
	"github.com/dukerupert/vanir/internal/service"
	"github.com/dukerupert/vanir/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(ctx, sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize business metrics
	if cfg.Metrics.Enabled {
		telemetry.InitBusiness(cfg.Metrics.Namespace)
	}

	// Initialize Stripe billing provider
	logger.Info("Initializing Stripe billing provider...")
	stripeConfig := billing.StripeConfig{
		APIKey:        cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		MaxRetries:    cfg.Stripe.MaxRetries,
	}
	billingProvider, err := billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())

	// Initialize the order event publisher
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Nats.Enabled {
		logger.Info("Connecting to NATS...", "url", cfg.Nats.URL)
		natsPublisher, err := events.NewNatsPublisher(cfg.Nats.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info("NATS connection established")
	}

	// Initialize stores and services
	orderService := postgres.NewOrderService(pool)
	paymentStore := postgres.NewPaymentStore(pool)
	cartService := postgres.NewCartService(pool, cfg.Currency)
	paymentService := service.NewPaymentService(orderService, paymentStore, billingProvider, publisher, logger)

	// Build route dependencies
	apiDeps := routes.APIDeps{
		OrderHandler:   api.NewOrderHandler(orderService, cartService, logger),
		PaymentHandler: api.NewPaymentHandler(paymentService, logger),
		CartHandler:    api.NewCartHandler(cartService, logger),
	}

	stripeWebhookHandler := webhook.NewStripeHandler(billingProvider, paymentService, webhook.StripeWebhookConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, logger)
	webhookDeps := routes.WebhookDeps{
		StripeHandler: stripeWebhookHandler.HandleWebhook,
	}

	// Initialize middleware
	metrics := middleware.NewMetrics(cfg.Metrics.Namespace)

	// Create router and register routes
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		router.Logger(logger),
		middleware.WithRequestLogger(logger),
		router.CORS([]string{cfg.BaseURL}),
	)

	// Metrics endpoint (no auth required, but should be protected in production via firewall)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	routes.RegisterAPIRoutes(r, apiDeps)
	routes.RegisterWebhookRoutes(r, webhookDeps)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting server", "address", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
