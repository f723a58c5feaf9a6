package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/app"
	"github.com/Freeeeeet/tutor_booking/internal/config"
	"github.com/Freeeeeet/tutor_booking/internal/lock"
	"github.com/Freeeeeet/tutor_booking/internal/notification"
	"github.com/Freeeeeet/tutor_booking/internal/payment"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/Freeeeeet/tutor_booking/internal/settings"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const settingsScope = "booking"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting booking service",
		zap.String("environment", cfg.Environment),
		zap.Bool("redis", cfg.RedisEnabled()),
		zap.Bool("telegram", cfg.TelegramToken != ""),
		zap.Bool("stripe", cfg.StripeSecretKey != ""))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	// Репозитории
	availabilityRepo := repository.NewAvailabilityRepository(pool, logger)
	sessionRepo := repository.NewSessionRepository(pool, logger)
	courseRepo := repository.NewCourseRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	bookingSettings, err := settings.Load(ctx, settingsRepo, settingsScope)
	if err != nil {
		logger.Fatal("Failed to load settings", zap.Error(err))
	}
	bookingSettings.SetDefault(settings.KeyHorizonDays, strconv.Itoa(cfg.SlotHorizonDays))
	bookingSettings.SetDefault(settings.KeyRequestTTL, cfg.RequestTTL.String())
	bookingSettings.SetDefault(settings.KeyDefaultTimezone, cfg.DefaultTimezone)
	bookingSettings.SetDefault(settings.KeyCurrency, cfg.Currency)

	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
	}

	locker := newLocker(cfg, redisClient, logger)
	payments := newPaymentGateway(cfg, logger)

	notifier, worker, cleanup, err := newNotifier(cfg, userRepo, logger)
	if err != nil {
		logger.Fatal("Failed to create notifier", zap.Error(err))
	}
	defer cleanup()

	// Сервисы
	clock := service.Clock(time.Now)
	availabilityService := service.NewAvailabilityService(availabilityRepo, bookingSettings, logger)
	slotService := service.NewSlotService(availabilityService, sessionRepo, bookingSettings, clock, logger)
	bookingService := service.NewBookingService(sessionRepo, courseRepo, slotService, locker, clock, logger)
	orchestrator := service.NewOrchestrator(
		availabilityService,
		slotService,
		bookingService,
		courseRepo,
		userRepo,
		payments,
		notifier,
		bookingSettings,
		clock,
		logger,
	)

	if worker != nil {
		if err := worker.Start(); err != nil {
			logger.Fatal("Failed to start notification worker", zap.Error(err))
		}
		defer worker.Shutdown()
	}

	scheduler := app.NewScheduler(logger)
	if err := scheduler.Register(orchestrator); err != nil {
		logger.Fatal("Failed to register background jobs", zap.Error(err))
	}
	scheduler.Start(ctx)

	logger.Info("Booking service started")
	<-ctx.Done()

	logger.Info("Shutting down")
	scheduler.Stop()

	if err := bookingSettings.Save(context.Background()); err != nil {
		logger.Error("Failed to save settings", zap.Error(err))
	}
}

func newLocker(cfg *config.Config, client *redis.Client, logger *zap.Logger) lock.Locker {
	if client != nil {
		return lock.NewRedisLocker(client, cfg.LockTTL, logger)
	}
	return lock.NewKeyedMutex()
}

func newPaymentGateway(cfg *config.Config, logger *zap.Logger) payment.Gateway {
	if cfg.StripeSecretKey != "" {
		return payment.NewStripeGateway(cfg.StripeSecretKey, logger)
	}
	if cfg.IsProduction() {
		logger.Warn("STRIPE_SECRET_KEY is not set, using simulated payments")
	}
	return payment.NewSimulatedGateway(logger)
}

// newNotifier с Redis уведомления идут через очередь и воркер,
// без Redis отправляются сразу, без токена только пишутся в лог.
func newNotifier(cfg *config.Config, users *repository.UserRepository, logger *zap.Logger) (notification.Notifier, *notification.Worker, func(), error) {
	noop := func() {}

	if cfg.TelegramToken == "" {
		return notification.NewLogNotifier(logger), nil, noop, nil
	}

	b, err := notification.NewBot(cfg.TelegramToken)
	if err != nil {
		return nil, nil, noop, err
	}
	telegram := notification.NewTelegramNotifier(b, users, cfg.NotifyRatePerSec, logger)

	if !cfg.RedisEnabled() {
		return telegram, nil, noop, nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	client := asynq.NewClient(redisOpt)
	worker := notification.NewWorker(redisOpt, telegram, logger)

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close queue client", zap.Error(err))
		}
	}
	return notification.NewQueueNotifier(client, logger), worker, cleanup, nil
}
