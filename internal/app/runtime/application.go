package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/axomx/reward-ledger/internal/app"
	"github.com/axomx/reward-ledger/internal/app/httpapi"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/services/payment"
	"github.com/axomx/reward-ledger/internal/app/services/reconcile"
	"github.com/axomx/reward-ledger/internal/app/storage"
	"github.com/axomx/reward-ledger/internal/app/storage/memory"
	"github.com/axomx/reward-ledger/internal/app/storage/postgres"
	"github.com/axomx/reward-ledger/internal/config"
	"github.com/axomx/reward-ledger/internal/middleware"
	"github.com/axomx/reward-ledger/internal/platform/migrations"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	handler    http.Handler
	httpServer *http.Server
	db         *sql.DB
	redis      *redis.Client
	audit      *httpapi.FileAuditSink
	limiter    *middleware.RateLimiter
}

const limiterIdle = 5 * time.Minute

// NewApplication constructs the application described by cfg.
func NewApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(cfg.Logging)
	}

	table, err := rates.LoadOrDefault(cfg.RatesFile)
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}

	store, db, err := buildStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}
	a := &Application{cfg: cfg, log: log, db: db}

	journal, client, err := OpenJournal(cfg)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("configure journal: %w", err)
	}
	a.redis = client

	gateway := payment.NewHTTPGateway(cfg.Payment)
	if cfg.Payment.BaseURL == "" {
		log.Warn("payment gateway not configured; pay-through endpoints will fail")
	}

	a.app, err = app.New(app.Stores{Ledger: store, Journal: journal}, app.Options{
		Rates:             table,
		Gateway:           gateway,
		RequireTxHash:     cfg.Ledger.RequireTxHash,
		Scheduler:         cfg.Scheduler,
		ReconcileEnabled:  cfg.Reconcile.Enabled,
		ReconcileInterval: cfg.Reconcile.Interval,
	}, log)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	apiCfg := httpapi.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimit:      cfg.HTTP.RateLimit,
		RateBurst:      cfg.HTTP.RateBurst,
	}
	if cfg.HTTP.RateLimit > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, log)
		apiCfg.Limiter = a.limiter
	}
	if cfg.Auth.JWTSecret != "" {
		apiCfg.Admin = middleware.NewAdminAuth(cfg.Auth.JWTSecret, cfg.Auth.Issuer, log)
	} else {
		log.Warn("LEDGER_JWT_SECRET not set; admin routes disabled")
	}
	if cfg.HTTP.AuditFile != "" {
		sink, err := httpapi.NewFileAuditSink(cfg.HTTP.AuditFile)
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		a.audit = sink
		apiCfg.AuditSink = sink
	}

	a.handler = httpapi.NewHandler(a.app, apiCfg, log)
	a.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

// App exposes the composed services.
func (a *Application) App() *app.Application { return a.app }

// Handler is the full HTTP handler, for tests and embedding.
func (a *Application) Handler() http.Handler { return a.handler }

// Run starts background services and the HTTP server, and blocks until ctx
// is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	if a.limiter != nil {
		a.limiter.StartCleanup(ctx, limiterIdle)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, then background services, then closes
// connections.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	a.closeResources()
	return errors.Join(errs...)
}

func (a *Application) closeResources() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

func buildStore(cfg *config.Config, log *logger.Logger) (storage.Store, *sql.DB, error) {
	if !cfg.PostgresEnabled() {
		log.Warn("DATABASE_URL not set; using in-memory store")
		return memory.New(), nil, nil
	}

	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return postgres.New(db), db, nil
}

// OpenDatabase opens and pings a postgres pool.
func OpenDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenJournal returns the redis journal when redis is configured, otherwise
// an in-memory one. The client is nil for the in-memory journal.
func OpenJournal(cfg *config.Config) (reconcile.Journal, *redis.Client, error) {
	if !cfg.RedisEnabled() {
		return reconcile.NewMemoryJournal(), nil, nil
	}
	client, err := reconcile.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return reconcile.NewRedisJournal(client, cfg.Redis.Key), client, nil
}
