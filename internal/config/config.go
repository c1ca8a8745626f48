// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	HTTP      HTTP
	Auth      Auth
	Database  Database
	Redis     Redis
	RateLimit RateLimit
	Storage   Storage
	Vision    Vision
	Pipeline  Pipeline
}

type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080" validate:"required"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"90s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For is
	// honored. Empty means the peer address is the client address.
	TrustedProxies []string `env:"HTTP_TRUSTED_PROXIES" env-separator:"," validate:"dive,cidr|ip"`
}

type Auth struct {
	Mode         string `env:"AUTH_MODE" env-default:"jwt" validate:"oneof=jwt remote"`
	JWTSecret    string `env:"JWT_SECRET" validate:"required_if=Mode jwt"`
	JWTAudience  string `env:"JWT_AUDIENCE"`
	RemoteURL    string `env:"AUTH_REMOTE_URL" validate:"required_if=Mode remote"`
	RemoteAPIKey string `env:"AUTH_REMOTE_API_KEY"`
}

type Database struct {
	DSN             string        `env:"DATABASE_DSN" env-default:"host=postgres user=postgres password=postgres dbname=wardrobe port=5432 sslmode=disable" validate:"required"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" env-default:"5" validate:"min=0"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" env-default:"10" validate:"min=1"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" env-default:"1h"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" env-default:"true"`
}

// Redis holds the counter backend for rate limiting. An empty address keeps
// counters in process memory.
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type RateLimit struct {
	Window time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"15m" validate:"gt=0"`
	Quota  int64         `env:"RATE_LIMIT_QUOTA" env-default:"100" validate:"gt=0"`
}

type Storage struct {
	Backend   string `env:"STORAGE_BACKEND" env-default:"minio" validate:"oneof=minio s3 memory"`
	Bucket    string `env:"STORAGE_BUCKET" env-default:"wardrobe-uploads" validate:"required"`
	Endpoint  string `env:"STORAGE_ENDPOINT" env-default:"minio:9000"`
	Region    string `env:"STORAGE_REGION" env-default:"us-east-1"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" env-default:"false"`
	KeyPrefix string `env:"STORAGE_KEY_PREFIX" env-default:"transient"`
}

type Vision struct {
	Endpoint        string `env:"VISION_ENDPOINT"`
	CredentialsFile string `env:"VISION_CREDENTIALS_FILE"`
	Insecure        bool   `env:"VISION_INSECURE" env-default:"false"`
	MaxResults      int32  `env:"VISION_MAX_RESULTS" env-default:"20" validate:"gt=0"`
}

type Pipeline struct {
	MaxWidth        int           `env:"PIPELINE_MAX_WIDTH" env-default:"800" validate:"gt=0"`
	ColorMode       string        `env:"PIPELINE_COLOR_MODE" env-default:"whole_image" validate:"oneof=whole_image per_item"`
	RequestTimeout  time.Duration `env:"PIPELINE_REQUEST_TIMEOUT" env-default:"60s" validate:"gt=0"`
	StorageTimeout  time.Duration `env:"PIPELINE_STORAGE_TIMEOUT" env-default:"10s" validate:"gt=0"`
	AnalysisTimeout time.Duration `env:"PIPELINE_ANALYSIS_TIMEOUT" env-default:"20s" validate:"gt=0"`
	DatabaseTimeout time.Duration `env:"PIPELINE_DATABASE_TIMEOUT" env-default:"5s" validate:"gt=0"`
	CleanupTimeout  time.Duration `env:"PIPELINE_CLEANUP_TIMEOUT" env-default:"5s" validate:"gt=0"`
}

// Load reads an optional .env file, then CONFIG_PATH when set, then the
// process environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints across all sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
