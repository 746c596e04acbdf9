package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storytrain/internal/config"
	"storytrain/internal/generation"
	"storytrain/internal/handler"
	"storytrain/internal/locking"
	"storytrain/internal/logger"
	"storytrain/internal/messaging"
	"storytrain/internal/middleware"
	"storytrain/internal/repository"
	"storytrain/internal/repository/migrations"
	"storytrain/internal/service"
	"storytrain/pkg/migration"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Story Train...")

	// Конфиг загружаем до логгера
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- Хранилище ---
	var store repository.StoryStore
	switch cfg.StorageBackend {
	case config.StorageBackendPostgres:
		dbPool, err := setupDatabase(cfg)
		if err != nil {
			zapLogger.Fatal("Не удалось подключиться к БД", zap.Error(err))
		}
		defer dbPool.Close()
		zapLogger.Info("Успешное подключение к PostgreSQL", zap.String("dsn", cfg.MaskedDSN()))

		if cfg.DBRunMigrations {
			migrator := migration.NewMigrator(migration.Config{MigrationsFS: migrations.FS}, dbPool, zapLogger)
			if err := migrator.Up(); err != nil {
				zapLogger.Fatal("Не удалось применить миграции", zap.Error(err))
			}
		}
		store = repository.NewPgStoryStore(dbPool, zapLogger)
	case config.StorageBackendMemory:
		zapLogger.Warn("Используется in-memory хранилище, данные не переживут рестарт")
		store = repository.NewMemoryStore(zapLogger)
	}

	// --- Блокировки сессий ---
	var locker locking.SessionLocker
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		redisClient, err := setupRedis(cfg)
		if err != nil {
			zapLogger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
		}
		defer redisClient.Close()
		zapLogger.Info("Успешное подключение к Redis", zap.String("addr", cfg.RedisAddr))
		locker = locking.NewRedisLocker(redisClient, locking.RedisLockerConfig{
			TTL:           cfg.LockTTL,
			RetryInterval: cfg.LockRetryInterval,
			Wait:          cfg.LockWait,
		}, zapLogger)
	case config.LockBackendMemory:
		locker = locking.NewLocalLocker(cfg.LockWait)
	}

	// --- Генерация ---
	textGenerator, err := generation.NewTextGenerator(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать клиент генерации", zap.Error(err))
	}
	adapter := generation.NewAdapter(textGenerator, generation.ParamsFromConfig(cfg), zapLogger)

	// --- События ходов ---
	var publisher messaging.TurnEventPublisher = messaging.NoopPublisher{}
	if cfg.EventsEnabled() {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		zapLogger.Info("Успешное подключение к RabbitMQ")

		rabbitPublisher, err := messaging.NewRabbitMQTurnEventPublisher(rabbitConn, cfg.TurnEventsQueue, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось создать TurnEventPublisher", zap.Error(err))
		}
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
	}

	engine := service.NewNarrativeEngine(store, adapter, locker, publisher, cfg.AITimeout, zapLogger)
	storyHandler := handler.NewStoryHandler(engine, zapLogger)

	// Настройка Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.EchoZapLogger(zapLogger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	storyHandler.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	log.Printf("Story Train слушает на порту %s", cfg.Port)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		zapLogger.Error("Ошибка при graceful shutdown Echo", zap.Error(err))
	}

	log.Println("Story Train успешно остановлен")
}

// setupDatabase инициализирует и возвращает пул соединений с БД
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул соединений: %w", err)
	}
	if err = dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД (ping failed): %w", err)
	}
	return dbPool, nil
}

// setupRedis создает клиент Redis и проверяет соединение
func setupRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
