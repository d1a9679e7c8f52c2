package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/BatiOli9/IDDO/internal/adapter/handler"
	"github.com/BatiOli9/IDDO/internal/adapter/middleware"
	"github.com/BatiOli9/IDDO/internal/adapter/storage"
	"github.com/BatiOli9/IDDO/internal/adapter/storage/memory"
	"github.com/BatiOli9/IDDO/internal/core/config"
	"github.com/BatiOli9/IDDO/internal/core/limits"
	"github.com/BatiOli9/IDDO/internal/core/logger"
	"github.com/BatiOli9/IDDO/internal/core/notifications"
	"github.com/BatiOli9/IDDO/internal/core/telemetry"
	"github.com/BatiOli9/IDDO/internal/core/transfer"
	"github.com/BatiOli9/IDDO/internal/core/voucher"
	"github.com/BatiOli9/IDDO/internal/core/worker"
)

// ledger is what both store implementations provide.
type ledger interface {
	transfer.Store
	handler.Store
	voucher.Blobs
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// 2. Setup logger
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if !cfg.DotEnvLoaded {
		log.Debug("No .env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	// 4. Ledger store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 5. Guardian notifier
	notifier, closeNotifier, err := newNotifier(cfg, loc, log)
	if err != nil {
		closeStore()
		return err
	}

	// 6. Side-effect workers
	dispatcher := worker.NewDispatcher(log, worker.Options{
		Workers:   cfg.SideEffectWorkers,
		QueueSize: cfg.SideEffectQueue,
	})
	dispatcher.Start(ctx)

	// 7. Transfer engine
	engine := transfer.NewEngine(
		store,
		limits.NewPolicy(store, loc),
		voucher.NewGenerator(store, cfg.PublicBaseURL, loc),
		notifier,
		dispatcher,
		log,
		transfer.Options{
			MaxAttempts: cfg.TransferMaxAttempts,
			VoucherWait: cfg.VoucherWait,
			SideEffectRetry: worker.RetryPolicy{
				Attempts: 3,
				Initial:  200 * time.Millisecond,
				Max:      2 * time.Second,
			},
		},
	)

	// 8. Setup Fiber
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          handler.ErrorHandler,
	})
	app.Use(fiberrecover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New())

	handler.Register(app, handler.Deps{
		Engine:     engine,
		Store:      store,
		AdminToken: cfg.AdminToken,
		Log:        log,
	})
	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is not set, admin routes are disabled")
	}

	// 9. Serve until a stop signal
	serveErr := make(chan error, 1)
	go func() {
		log.Info("🚀 Server starting", zap.String("env", cfg.Env), zap.String("port", cfg.Port))
		serveErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
	}
	log.Info("🛑 Shutting down server...")

	// Stop taking requests, then let queued vouchers and notices finish.
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		log.Error("Side-effect queue not drained", zap.Error(err))
	}

	closeNotifier()
	closeStore()
	if err := shutdownTracing(drainCtx); err != nil {
		log.Error("Tracer shutdown failed", zap.Error(err))
	}

	log.Info("👋 Server exited successfully")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (ledger, func(), error) {
	if cfg.DatabaseURL == "" {
		store := memory.New()
		demo, err := memory.SeedDemo(ctx, store)
		if err != nil {
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
		log.Warn("DATABASE_URL is not set, using the in-memory ledger with demo data")
		for _, u := range demo.Users {
			log.Info("Demo user",
				zap.String("name", u.Name),
				zap.String("cvu", u.CVU),
				zap.String("alias", u.Alias),
				zap.Bool("minor", u.IsMinor),
				zap.String("api_key", demo.Keys[u.Name]),
			)
		}
		return store, func() {}, nil
	}

	if cfg.MigrateOnStart {
		if err := storage.Migrate(cfg.DatabaseURL, log); err != nil {
			return nil, nil, err
		}
	}
	pool, err := storage.ConnectDB(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return storage.NewStore(pool), func() {
		pool.Close()
		log.Info("✅ Database connection closed")
	}, nil
}

func newNotifier(cfg *config.Config, loc *time.Location, log *zap.Logger) (notifications.Notifier, func(), error) {
	switch cfg.Notifier {
	case "webhook":
		log.Info("Guardian notices go to webhook", zap.String("url", cfg.WebhookURL))
		return notifications.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, loc, log), func() {}, nil
	case "amqp":
		n, err := notifications.NewAMQPNotifier(cfg.RabbitURL, cfg.RabbitExchange, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("connect notifier: %w", err)
		}
		log.Info("Guardian notices go to RabbitMQ", zap.String("exchange", cfg.RabbitExchange))
		return n, func() {
			if err := n.Close(); err != nil {
				log.Warn("Closing RabbitMQ connection failed", zap.Error(err))
			}
		}, nil
	default:
		return notifications.NewLogNotifier(log, loc), func() {}, nil
	}
}
