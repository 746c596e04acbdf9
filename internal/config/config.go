package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"

	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"

	AIClientOpenAI = "openai"
	AIClientOllama = "ollama"
)

// Config содержит конфигурацию сервиса историй
type Config struct {
	// Сервер
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding     string        `envconfig:"LOG_ENCODING" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	SecretsDir      string        `envconfig:"SECRETS_DIR" default:"/run/secrets"`

	// Хранилище
	StorageBackend  string        `envconfig:"STORAGE_BACKEND" default:"postgres"`
	DBHost          string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort          string        `envconfig:"DB_PORT" default:"5432"`
	DBUser          string        `envconfig:"DB_USER" default:"postgres"`
	DBName          string        `envconfig:"DB_NAME" default:"storytrain"`
	DBSSLMode       string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns      int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout   time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBRunMigrations bool          `envconfig:"DB_RUN_MIGRATIONS" default:"true"`
	DBPassword      string        `ignored:"true"` // секрет db_password

	// Генерация
	AIClientType        string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL           string        `envconfig:"AI_BASE_URL" default:"http://localhost:8000/v1"`
	AIModel             string        `envconfig:"AI_MODEL" default:"gpt2"`
	AITimeout           time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	AITokenizerEncoding string        `envconfig:"AI_TOKENIZER_ENCODING" default:"cl100k_base"`
	AIAPIKey            string        `ignored:"true"` // секрет ai_api_key, необязательный

	GenerationMaxNewTokens int     `envconfig:"GENERATION_MAX_NEW_TOKENS" default:"150"`
	GenerationTemperature  float64 `envconfig:"GENERATION_TEMPERATURE" default:"0.9"`
	GenerationNumSamples   int     `envconfig:"GENERATION_NUM_SAMPLES" default:"1"`

	// Блокировки сессий
	LockBackend       string        `envconfig:"LOCK_BACKEND" default:"memory"`
	RedisAddr         string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL           time.Duration `envconfig:"SESSION_LOCK_TTL" default:"2m"`
	LockRetryInterval time.Duration `envconfig:"SESSION_LOCK_RETRY_INTERVAL" default:"100ms"`
	LockWait          time.Duration `envconfig:"SESSION_LOCK_WAIT" default:"90s"`
	RedisPassword     string        `ignored:"true"` // секрет redis_password, необязательный

	// События ходов
	RabbitMQURL     string `envconfig:"RABBITMQ_URL"`
	TurnEventsQueue string `envconfig:"TURN_EVENTS_QUEUE" default:"story_turn_events"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// MaskedDSN is GetDSN with the password hidden.
func (c *Config) MaskedDSN() string {
	return fmt.Sprintf("postgres://%s:***@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// EventsEnabled reports whether turn events should be published.
func (c *Config) EventsEnabled() bool {
	return c.RabbitMQURL != ""
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	cfg.LockBackend = strings.ToLower(cfg.LockBackend)
	cfg.AIClientType = strings.ToLower(cfg.AIClientType)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var err error
	if cfg.StorageBackend == StorageBackendPostgres {
		if cfg.DBPassword, err = ReadSecret(cfg.SecretsDir, "db_password"); err != nil {
			return nil, err
		}
	}
	if cfg.AIAPIKey, err = ReadOptionalSecret(cfg.SecretsDir, "ai_api_key"); err != nil {
		return nil, err
	}
	if cfg.LockBackend == LockBackendRedis {
		if cfg.RedisPassword, err = ReadOptionalSecret(cfg.SecretsDir, "redis_password"); err != nil {
			return nil, err
		}
	}

	cfg.print()
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageBackendPostgres, StorageBackendMemory:
	default:
		return fmt.Errorf("неизвестный STORAGE_BACKEND: '%s'", c.StorageBackend)
	}
	switch c.LockBackend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("неизвестный LOCK_BACKEND: '%s'", c.LockBackend)
	}
	switch c.AIClientType {
	case AIClientOpenAI, AIClientOllama:
	default:
		return fmt.Errorf("неизвестный AI_CLIENT_TYPE: '%s'", c.AIClientType)
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT должен быть положительным, получено %v", c.AITimeout)
	}
	// Нули здесь не означают "по умолчанию": неуказанные переменные уже получили default
	if c.GenerationMaxNewTokens <= 0 || c.GenerationNumSamples <= 0 {
		return errors.New("GENERATION_MAX_NEW_TOKENS и GENERATION_NUM_SAMPLES должны быть положительными")
	}
	if c.GenerationTemperature <= 0 {
		return fmt.Errorf("GENERATION_TEMPERATURE должна быть положительной, получено %v", c.GenerationTemperature)
	}
	if c.LockWait <= 0 || c.LockRetryInterval <= 0 || c.LockTTL <= 0 {
		return errors.New("SESSION_LOCK_TTL, SESSION_LOCK_RETRY_INTERVAL и SESSION_LOCK_WAIT должны быть положительными")
	}
	return nil
}

func (c *Config) print() {
	log.Printf("Конфигурация StoryTrain загружена:")
	log.Printf("  Port: %s", c.Port)
	log.Printf("  LogLevel: %s", c.LogLevel)
	log.Printf("  Storage Backend: %s", c.StorageBackend)
	if c.StorageBackend == StorageBackendPostgres {
		log.Printf("  DB DSN: %s", c.MaskedDSN())
		log.Printf("  DB Max Conns: %d", c.DBMaxConns)
		log.Printf("  DB Idle Timeout: %v", c.DBIdleTimeout)
		log.Printf("  DB Run Migrations: %t", c.DBRunMigrations)
	}
	log.Printf("  AI Client: %s, Model: %s, BaseURL: %s, Timeout: %v", c.AIClientType, c.AIModel, c.AIBaseURL, c.AITimeout)
	log.Printf("  Generation: max_new_tokens=%d temperature=%.2f samples=%d",
		c.GenerationMaxNewTokens, c.GenerationTemperature, c.GenerationNumSamples)
	if c.AIAPIKey != "" {
		log.Println("  AI API Key: [ЗАГРУЖЕН]")
	}
	log.Printf("  Lock Backend: %s (wait %v, ttl %v)", c.LockBackend, c.LockWait, c.LockTTL)
	if c.LockBackend == LockBackendRedis {
		log.Printf("  Redis Addr: %s, DB: %d", c.RedisAddr, c.RedisDB)
	}
	if c.EventsEnabled() {
		log.Printf("  Turn Events Queue: %s", c.TurnEventsQueue)
	} else {
		log.Println("  Turn Events: отключены (RABBITMQ_URL пуст)")
	}
}

// ReadSecret читает секрет из файла в каталоге Docker Secrets.
func ReadSecret(dir, name string) (string, error) {
	filePath := filepath.Join(dir, name)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadOptionalSecret is ReadSecret that returns "" when the file does not exist.
func ReadOptionalSecret(dir, name string) (string, error) {
	secret, err := ReadSecret(dir, name)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return secret, err
}
