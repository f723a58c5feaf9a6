package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DBDSN       string `mapstructure:"DB_DSN"`

	TelegramToken    string  `mapstructure:"TELEGRAM_TOKEN"`
	NotifyRatePerSec float64 `mapstructure:"NOTIFY_RATE_PER_SEC"`

	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY"`
	Currency        string `mapstructure:"CURRENCY"`

	// Redis нужен для распределённой блокировки и очереди уведомлений.
	// Если адрес пуст, работаем в одном процессе без очереди.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	DefaultTimezone string        `mapstructure:"DEFAULT_TIMEZONE"`
	SlotHorizonDays int           `mapstructure:"SLOT_HORIZON_DAYS"`
	RequestTTL      time.Duration `mapstructure:"REQUEST_TTL"`
	LockTTL         time.Duration `mapstructure:"LOCK_TTL"`
}

var envKeys = []string{
	"ENV", "LOG_LEVEL", "DB_DSN",
	"TELEGRAM_TOKEN", "NOTIFY_RATE_PER_SEC",
	"STRIPE_SECRET_KEY", "CURRENCY",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"DEFAULT_TIMEZONE", "SLOT_HORIZON_DAYS", "REQUEST_TTL", "LOCK_TTL",
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	// Unmarshal видит только известные ключи, поэтому привязываем их явно
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NOTIFY_RATE_PER_SEC", 25)
	v.SetDefault("CURRENCY", "rub")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_TIMEZONE", "Europe/Moscow")
	v.SetDefault("SLOT_HORIZON_DAYS", 28)
	v.SetDefault("REQUEST_TTL", "0s")
	v.SetDefault("LOCK_TTL", "30s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.SlotHorizonDays <= 0 {
		return nil, fmt.Errorf("SLOT_HORIZON_DAYS must be positive, got %d", cfg.SlotHorizonDays)
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
