package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	ReminderModeWebhook = "webhook"
	ReminderModeCron    = "cron"
)

type Config struct {
	TelegramToken string
	WebAppURL     string
	HTTPAddr      string

	StorageDriver    string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	ReminderMode          string
	ReminderWebhookURL    string
	ReminderWebhookKind   string
	ReminderWebhookToken  string
	ReminderHorizonDays   int
	ReminderDispatchDelay time.Duration

	Timezone       string
	Location       *time.Location
	InitDataMaxAge time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.S().Debug("load .env file", zap.Error(err))
	}

	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if value := getenv(key); value != "" {
			return value
		}
		return fallback
	}

	cfg := &Config{
		TelegramToken: getenv("TELEGRAM_BOT_TOKEN"),
		WebAppURL:     getenv("WEBAPP_URL"),
		HTTPAddr:      env("HTTP_ADDR", ":8080"),

		StorageDriver:    env("STORAGE_DRIVER", StorageDriverPostgres),
		PostgresHost:     getenv("POSTGRES_HOST"),
		PostgresPort:     env("POSTGRES_PORT", "5432"),
		PostgresUser:     getenv("POSTGRES_USER"),
		PostgresPassword: getenv("POSTGRES_PASSWORD"),
		PostgresDB:       getenv("POSTGRES_DB"),

		ReminderMode:         env("REMINDER_MODE", ReminderModeWebhook),
		ReminderWebhookURL:   getenv("REMINDER_WEBHOOK_URL"),
		ReminderWebhookKind:  env("REMINDER_WEBHOOK_VARIANT", "gas"),
		ReminderWebhookToken: getenv("REMINDER_WEBHOOK_TOKEN"),

		Timezone: env("DEFAULT_TIMEZONE", "Europe/Moscow"),
	}

	var err error
	if cfg.ReminderHorizonDays, err = strconv.Atoi(env("REMINDER_HORIZON_DAYS", "14")); err != nil || cfg.ReminderHorizonDays <= 0 {
		return nil, fmt.Errorf("parse REMINDER_HORIZON_DAYS (value: %s): must be a positive integer", getenv("REMINDER_HORIZON_DAYS"))
	}
	if cfg.ReminderDispatchDelay, err = time.ParseDuration(env("REMINDER_DISPATCH_DELAY", "150ms")); err != nil {
		return nil, fmt.Errorf("parse REMINDER_DISPATCH_DELAY: %w", err)
	}
	if cfg.InitDataMaxAge, err = time.ParseDuration(env("INIT_DATA_MAX_AGE", "24h")); err != nil {
		return nil, fmt.Errorf("parse INIT_DATA_MAX_AGE: %w", err)
	}

	if cfg.Location, err = time.LoadLocation(cfg.Timezone); err != nil {
		zap.S().Warn("failed to load default timezone, using UTC", zap.Error(err), zap.String("timezone", cfg.Timezone))
		cfg.Location = time.UTC
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.PostgresHost == "" {
			errs = append(errs, errors.New("POSTGRES_HOST is required for the postgres storage driver"))
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER (value: %s)", c.StorageDriver))
	}

	switch c.ReminderMode {
	case ReminderModeWebhook, ReminderModeCron:
	default:
		errs = append(errs, fmt.Errorf("unknown REMINDER_MODE (value: %s)", c.ReminderMode))
	}

	switch c.ReminderWebhookKind {
	case "gas", "yandex":
	default:
		errs = append(errs, fmt.Errorf("unknown REMINDER_WEBHOOK_VARIANT (value: %s)", c.ReminderWebhookKind))
	}

	return errors.Join(errs...)
}

// RequireBot fails when the bot token is missing; only commands talking to Telegram need it.
func (c *Config) RequireBot() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB)
}
