package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/config"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/logging"
	"github.com/congo-pay/p2p_wallet/internal/metrics"
	"github.com/congo-pay/p2p_wallet/internal/middleware"
	"github.com/congo-pay/p2p_wallet/internal/notification"
	"github.com/congo-pay/p2p_wallet/internal/payments"
	"github.com/congo-pay/p2p_wallet/internal/requests"
	"github.com/congo-pay/p2p_wallet/internal/reversal"
	"github.com/congo-pay/p2p_wallet/internal/social"
)

const (
	// devJWTSecret signs tokens in development when JWT_SECRET is unset.
	devJWTSecret = "p2p-wallet-dev-secret"

	conflictBackoff = 20 * time.Millisecond
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Optional overrides. Nil values are derived from DB and Cfg.
	Registry *prometheus.Registry
	Store    ledger.Store
	Graph    social.Graph
	Notifier notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	registry := d.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := metrics.New(registry)

	// Health and scrape endpoints stay unauthenticated.
	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, registry)

	// Services and handlers
	store := d.Store
	var requestRepo requests.Repository
	graph := d.Graph
	if d.DB != nil {
		if store == nil {
			store = ledger.NewPostgresStore(d.DB, d.Cfg.LockTimeout)
		}
		requestRepo = requests.NewPostgresRepository(d.DB)
		if graph == nil {
			graph = social.NewPostgresGraph(d.DB)
		}
	} else {
		if store == nil {
			store = ledger.NewInMemory()
		}
		requestRepo = requests.NewMemoryRepository()
		if graph == nil {
			d.Logger.Warn("no database configured; requests may address any account")
			graph = social.AllowAll{}
		}
	}

	engine := ledger.NewEngine(store,
		ledger.WithObserver(m),
		ledger.WithLogger(d.Logger),
		ledger.WithTimeout(d.Cfg.MoveTimeout),
		ledger.WithRetries(d.Cfg.ConflictRetries, conflictBackoff),
	)
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	accountSvc := accounts.NewService(store, engine, d.Logger)
	paymentSvc := payments.NewService(accountSvc, engine, notifier, d.Logger)
	requestSvc := requests.NewService(requests.Deps{
		Repo:     requestRepo,
		Accounts: accountSvc,
		Engine:   engine,
		Graph:    graph,
		Notifier: notifier,
		Observer: m,
		Logger:   d.Logger,
	})
	reversalMgr := reversal.NewManager(engine, notifier, m, d.Logger)

	secret := d.Cfg.JWTSecret
	if secret == "" {
		d.Logger.Warn("JWT_SECRET not set; using the development signing key")
		secret = devJWTSecret
	}
	verifier := middleware.NewTokenVerifier(secret)

	if d.DB == nil && d.Store == nil {
		if err := bootstrapDevAdmin(accountSvc, verifier, d.Logger); err != nil {
			return err
		}
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Protected routes; the idempotency scope is the authenticated account.
	protected := api.Group("", middleware.Auth(verifier, store))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	accountHandler := accounts.NewHandler(accountSvc)
	RegisterAccountRoutes(protected, accountHandler)
	RegisterPaymentRoutes(protected, payments.NewHandler(paymentSvc))
	RegisterRequestRoutes(protected, requests.NewHandler(requestSvc))

	admin := protected.Group("/admin", middleware.RequireAdmin())
	RegisterAdminRoutes(admin, accountHandler, reversal.NewHandler(reversalMgr))

	return nil
}

// bootstrapDevAdmin seeds an administrator in the in-memory store so a fresh
// development server is usable, and logs a token for it.
func bootstrapDevAdmin(svc *accounts.Service, verifier *middleware.TokenVerifier, log *slog.Logger) error {
	acc, err := svc.Create(context.Background(), accounts.CreateInput{Username: "admin", Admin: true})
	if err != nil {
		return fmt.Errorf("seed dev admin: %w", err)
	}
	token, err := verifier.Issue(acc.ID, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("issue dev admin token: %w", err)
	}
	log.Info("development admin seeded", slog.String("account_id", acc.ID), slog.String("token", token))
	return nil
}
