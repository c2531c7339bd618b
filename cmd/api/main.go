package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/event-checkin/internal/api/http"
	"github.com/spec-kit/event-checkin/internal/api/http/handlers"
	"github.com/spec-kit/event-checkin/internal/auth"
	"github.com/spec-kit/event-checkin/internal/config"
	"github.com/spec-kit/event-checkin/internal/credential"
	"github.com/spec-kit/event-checkin/internal/events"
	"github.com/spec-kit/event-checkin/internal/observability"
	"github.com/spec-kit/event-checkin/internal/persistence"
	"github.com/spec-kit/event-checkin/internal/phone"
	"github.com/spec-kit/event-checkin/internal/repository"
	"github.com/spec-kit/event-checkin/internal/service"
	"github.com/spec-kit/event-checkin/internal/storage"
	"github.com/spec-kit/event-checkin/internal/whatsapp"
	"github.com/spec-kit/event-checkin/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run owns every resource so that deferred cleanup, the messaging session in
// particular, also happens when startup fails halfway.
func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		userRepo  repository.UserRepository
		adminRepo repository.AdminRepository
	)
	if pg.Configured() {
		userRepo = repository.NewUserRepository(pg.PoolHandle())
		adminRepo = repository.NewAdminRepository(pg.PoolHandle())
	} else {
		userRepo = repository.NewMemoryUserRepository()
		adminRepo = repository.NewMemoryAdminRepository()
	}

	var loginAttempts repository.LoginAttemptRepository
	if redis.Client != nil {
		loginAttempts = repository.NewLoginAttemptRepository(redis.Client, cfg.Auth.LockoutWindow())
	}

	store, mediaRoot, err := newObjectStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	var session worker.Session
	if cfg.WhatsApp.Enabled {
		session = whatsapp.NewSession(whatsapp.Config{
			BaseURL:         cfg.WhatsApp.BaseURL,
			SessionFile:     cfg.WhatsApp.SessionFile,
			ComposeSelector: cfg.WhatsApp.ComposeSelector,
			Headless:        cfg.WhatsApp.Headless,
			PairingTimeout:  cfg.WhatsApp.PairingTimeout(),
			ComposeTimeout:  cfg.WhatsApp.ComposeTimeout(),
		}, logger.Named("whatsapp"))
	} else {
		session = whatsapp.NewStubSession(logger.Named("whatsapp"))
	}

	channel := worker.NewNotificationWorker(session, worker.Options{
		MinDelay:         cfg.Notification.MinDelay(),
		RetryInterval:    cfg.Notification.RetryInterval(),
		RetryCapacity:    cfg.Notification.RetryCapacity,
		RetryMaxAttempts: cfg.Notification.RetryMaxAttempts,
	}, logger.Named("notifications"), metrics)
	defer func() {
		if err := channel.Stop(); err != nil {
			logger.Warn("stop notification channel", zap.Error(err))
		}
	}()
	if err := channel.Start(ctx); err != nil {
		return fmt.Errorf("start notification channel: %w", err)
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	events.SubscribeAll(dispatcher, events.NewAuditHandler(logger.Named("audit")))
	if len(cfg.Kafka.Brokers) > 0 {
		forwarder := events.NewKafkaForwarder(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger), logger)
		defer forwarder.Close() //nolint:errcheck
		events.SubscribeAll(dispatcher, forwarder.Handle)
		logger.Info("forwarding lifecycle events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	normalizer := phone.NewNormalizer(cfg.Phone.CountryCode)
	notifier := service.NewNotificationService(channel, normalizer, cfg.Event.Name, cfg.Notification.SubmitTimeout(), logger)
	attendees := service.NewAttendeeService(service.AttendeeDependencies{
		Users:      userRepo,
		Renderer:   credential.NewQRRenderer(),
		Store:      store,
		Bucket:     cfg.Storage.QRBucket,
		Normalizer: normalizer,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	messaging := service.NewMessagingService(channel, normalizer, logger)

	if cfg.App.Env == "production" && cfg.Auth.JWTSecret == "dev-secret" {
		logger.Warn("AUTH_JWT_SECRET is the development default")
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.App.Name)
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		AdminRepo:     adminRepo,
		LoginAttempts: loginAttempts,
		TokenManager:  tokens,
		Metrics:       metrics,
		Logger:        logger,
	})
	created, err := authService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info("bootstrap admin created", zap.String("email", cfg.Auth.BootstrapAdminEmail))
	}

	app := httptransport.NewApp(cfg.App, logger, metrics)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, channel),
		Users:           handlers.NewUsersHandler(attendees),
		QRCodes:         handlers.NewQRCodesHandler(attendees),
		WhatsApp:        handlers.NewWhatsAppHandler(messaging),
		Auth:            handlers.NewAuthHandler(authService),
		AuthMiddleware:  auth.NewAuthMiddleware(tokens, adminRepo),
		MetricsRegistry: metrics.Registry,
		MediaRoot:       mediaRoot,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	return g.Wait()
}

// newObjectStore picks S3 when an endpoint is configured and local disk
// otherwise. The returned root is non-empty only for the local store.
func newObjectStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.ObjectStore, string, error) {
	if cfg.Endpoint != "" {
		store, err := storage.NewS3Store(ctx, cfg, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}
	store, err := storage.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("local object store: %w", err)
	}
	logger.Warn("STORAGE_ENDPOINT not provided; storing credentials on local disk", zap.String("dir", store.Root()))
	return store, store.Root(), nil
}
