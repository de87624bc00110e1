// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the service.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"file:glaucoscan.db?_foreign_keys=on"`

	// RedisAddr selects the Redis session store; empty keeps sessions in memory.
	RedisAddr     string        `env:"REDIS_ADDR"`
	SessionSecret string        `env:"SESSION_SECRET" envDefault:"dev-secret"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	SecureCookie  bool          `env:"SECURE_COOKIE"`

	StaticDir      string `env:"STATIC_DIR" envDefault:"static"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	Model Model
	Admin Admin
	S3    S3
	AMQP  AMQP
}

// Model selects the classifier backend.
type Model struct {
	Backend string `env:"MODEL_BACKEND" envDefault:"file"`
	Path    string `env:"MODEL_PATH" envDefault:"models/glaucoma_linear.json"`
	Addr    string `env:"MODEL_ADDR"`
}

// Admin describes the administrator account ensured at startup. Empty Username disables it.
type Admin struct {
	Username string `env:"ADMIN_USERNAME"`
	Password string `env:"ADMIN_PASSWORD"`
	Email    string `env:"ADMIN_EMAIL"`
	Name     string `env:"ADMIN_NAME" envDefault:"Administrator"`
}

// S3 configures the optional upload archive. Empty Bucket disables it.
type S3 struct {
	Endpoint        string `env:"S3_ENDPOINT"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket          string `env:"S3_BUCKET"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UseSSL          bool   `env:"S3_USE_SSL"`
}

// AMQP configures the optional result event publisher. Empty URL disables it.
type AMQP struct {
	URL   string `env:"AMQP_URL"`
	Queue string `env:"AMQP_QUEUE" envDefault:"glaucoscan.results"`
}

// Load reads configuration from the environment, loading .env first when present.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	switch c.Model.Backend {
	case "file":
		if c.Model.Path == "" {
			return errors.New("MODEL_PATH is required for the file backend")
		}
	case "grpc":
		if c.Model.Addr == "" {
			return errors.New("MODEL_ADDR is required for the grpc backend")
		}
	default:
		return fmt.Errorf("unsupported MODEL_BACKEND %q", c.Model.Backend)
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET must not be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Admin.Username != "" && (c.Admin.Password == "" || c.Admin.Email == "") {
		return errors.New("ADMIN_PASSWORD and ADMIN_EMAIL are required when ADMIN_USERNAME is set")
	}
	return nil
}
