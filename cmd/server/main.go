package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Laju-Ride/service-booking/internal/application"
	"github.com/Laju-Ride/service-booking/internal/common/auth"
	"github.com/Laju-Ride/service-booking/internal/common/database"
	"github.com/Laju-Ride/service-booking/internal/common/health"
	"github.com/Laju-Ride/service-booking/internal/common/kafka"
	"github.com/Laju-Ride/service-booking/internal/common/logger"
	"github.com/Laju-Ride/service-booking/internal/common/middleware"
	"github.com/Laju-Ride/service-booking/internal/config"
	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
	rideDomain "github.com/Laju-Ride/service-booking/internal/domain/ride"
	bookingEvents "github.com/Laju-Ride/service-booking/internal/events"
	"github.com/Laju-Ride/service-booking/internal/handler"
	"github.com/Laju-Ride/service-booking/internal/inventory"
	"github.com/Laju-Ride/service-booking/internal/payment"
	"github.com/Laju-Ride/service-booking/internal/repository"
	"github.com/Laju-Ride/service-booking/internal/repository/memstore"
	"github.com/Laju-Ride/service-booking/migrations"
)

// storage bundles the persistence ports chosen by the storage driver.
type storage struct {
	rides    rideDomain.RideRepository
	bookings bookingDomain.BookingRepository
	uow      bookingDomain.UnitOfWork
	outbox   bookingDomain.OutboxRepository
	checks   map[string]health.Pinger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, "service-booking")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
		zap.String("payment", cfg.PaymentConfig.Driver),
		zap.String("notify", cfg.NotifyConfig.Transport),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("service-booking stopped with error", zap.Error(err))
	}
	log.Info("service-booking stopped")
}

func run(cfg *config.ServiceConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(cfg, log)
	if err != nil {
		return err
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.AccessExpiry, 7*24*time.Hour)

	gate := newPaymentGate(cfg, log)

	dispatcher, err := newDispatcher(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = dispatcher.Close() }()

	// Initialize application services
	bookingCfg := application.BookingConfig{
		RequireAuthorization: cfg.PaymentConfig.RequireAuthorization,
		PaymentTimeout:       cfg.PaymentConfig.Timeout,
		ConflictAttempts:     cfg.EngineConfig.ConflictAttempts,
	}
	engine := inventory.NewEngine(store.rides, store.bookings, log)
	bookingService := application.NewBookingService(
		store.rides,
		store.bookings,
		store.uow,
		engine,
		gate,
		bookingDomain.NewPerSeatPricingStrategy(),
		bookingCfg,
		log,
	)
	rideService := application.NewRideService(store.rides, store.uow, engine, gate, bookingCfg, log)

	relay := bookingEvents.NewOutboxRelay(
		store.outbox,
		dispatcher,
		cfg.NotifyConfig.RelayInterval,
		cfg.NotifyConfig.RelayBatchSize,
		cfg.NotifyConfig.Timeout,
		log,
	)
	reconciler := application.NewReconciler(
		bookingService,
		cfg.EngineConfig.ReconcileInterval,
		cfg.EngineConfig.ReconcileAfter,
		log,
	)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	health.NewHandler("service-booking", store.checks).RegisterRoutes(router)

	handler.NewRideHandler(rideService, bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down service-booking...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced shutdown", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })

	if cfg.KafkaConfig.ConsumePaymentTopic && len(cfg.KafkaConfig.Brokers) > 0 {
		dedup, err := newDeduplicator(gctx, cfg, log)
		if err != nil {
			return err
		}
		if c, ok := dedup.(io.Closer); ok {
			defer func() { _ = c.Close() }()
		}
		paymentConsumer := bookingEvents.NewPaymentEventConsumer(
			cfg.KafkaConfig.Brokers,
			cfg.KafkaConfig.GroupPrefix+"booking-service",
			cfg.KafkaConfig.PaymentEventsTopic,
			bookingService,
			dedup,
			log,
		)
		defer func() { _ = paymentConsumer.Close() }()

		g.Go(func() error {
			log.Info("starting payment event consumer")
			if err := paymentConsumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("payment event consumer: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func openStorage(cfg *config.ServiceConfig, log *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == "memory" {
		log.Warn("using in-memory storage; data is lost on restart")
		s := memstore.New()
		return &storage{
			rides:    s.Rides(),
			bookings: s.Bookings(),
			uow:      s.UnitOfWork(),
			outbox:   s.Outbox(),
			checks:   map[string]health.Pinger{},
		}, nil
	}

	db, err := database.Connect(cfg.DBConfig, log)
	if err != nil {
		return nil, err
	}

	// Run database migrations
	if err := migrateSchema(cfg, db, log); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return &storage{
		rides:    repository.NewGormRideRepository(db),
		bookings: repository.NewGormBookingRepository(db),
		uow:      repository.NewGormUnitOfWork(db),
		outbox:   repository.NewGormOutboxRepository(db),
		checks:   map[string]health.Pinger{"postgres": sqlDB},
	}, nil
}

// migrateSchema applies the SQL migrations. Development additionally lets gorm
// reconcile column changes that have no migration yet.
func migrateSchema(cfg *config.ServiceConfig, db *gorm.DB, log *zap.Logger) error {
	if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), migrations.FS, ".", log); err != nil {
		return err
	}
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.RideModel{}, &repository.BookingModel{}, &repository.OutboxEventModel{}); err != nil {
			return fmt.Errorf("failed to run auto-migration: %w", err)
		}
		log.Info("database migration completed (dev auto-migrate)")
	}
	return nil
}

func newPaymentGate(cfg *config.ServiceConfig, log *zap.Logger) payment.Gate {
	if cfg.PaymentConfig.Driver == "http" {
		return payment.NewHTTPGate(cfg.PaymentConfig.BaseURL, cfg.PaymentConfig.APIKey, cfg.PaymentConfig.Timeout, log)
	}
	log.Warn("payment gate approves every request")
	return payment.NewApproveGate(log)
}

func newDispatcher(cfg *config.ServiceConfig, log *zap.Logger) (bookingEvents.Dispatcher, error) {
	switch cfg.NotifyConfig.Transport {
	case "kafka":
		producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		return bookingEvents.NewKafkaDispatcher(producer, cfg.KafkaConfig.BookingEventsTopic), nil
	case "rabbitmq":
		return bookingEvents.NewRabbitMQDispatcher(cfg.RabbitConfig.URL, cfg.RabbitConfig.Exchange, log)
	default:
		return bookingEvents.NewLogDispatcher(log), nil
	}
}

// newDeduplicator returns nil when Redis is not configured.
func newDeduplicator(ctx context.Context, cfg *config.ServiceConfig, log *zap.Logger) (bookingEvents.Deduplicator, error) {
	if cfg.RedisConfig.URL == "" {
		log.Info("redis not configured, payment events are not de-duplicated")
		return nil, nil
	}
	dedup, err := bookingEvents.NewRedisDeduplicator(ctx, cfg.RedisConfig.URL, cfg.RedisConfig.DedupTTL)
	if err != nil {
		return nil, err
	}
	return dedup, nil
}
