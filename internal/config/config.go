package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every variable name, e.g. WALLETCHAT_DATA_DIR.
const EnvPrefix = "walletchat"

const (
	StorageFile   = "file"
	StorageBadger = "badger"

	DriverCoder   = "coder"
	DriverGorilla = "gorilla"
)

// Config holds all configuration for the application.
type Config struct {
	WSURL  string `envconfig:"WS_URL"`
	APIURL string `envconfig:"API_URL"`
	// Host is the hostname used by the fallback base URL heuristics.
	Host string `envconfig:"HOST" default:"localhost"`

	DataDir         string `envconfig:"DATA_DIR" default:".walletchat" validate:"required"`
	Storage         string `envconfig:"STORAGE" default:"file" validate:"oneof=file badger"`
	TransportDriver string `envconfig:"TRANSPORT_DRIVER" default:"coder" validate:"oneof=coder gorilla"`

	ConnectTimeout   time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s" validate:"gt=0"`
	ConnectRetries   int           `envconfig:"CONNECT_RETRIES" default:"2" validate:"gte=0,lte=10"`
	RetryBackoff     time.Duration `envconfig:"RETRY_BACKOFF" default:"500ms" validate:"gte=0"`
	WriteTimeout     time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s" validate:"gt=0"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	SendInterval     time.Duration `envconfig:"SEND_INTERVAL" default:"2s" validate:"gt=0"`
	HistoryRetention time.Duration `envconfig:"HISTORY_RETENTION" default:"24h" validate:"gt=0"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Event bus tracing, exported to Zipkin when enabled.
	TracingEnabled     bool   `envconfig:"TRACING_ENABLED" default:"false"`
	TracingServiceName string `envconfig:"TRACING_SERVICE_NAME" default:"walletchat"`
	TracingZipkinURL   string `envconfig:"TRACING_ZIPKIN_URL" default:"http://localhost:9411/api/v2/spans" validate:"omitempty,url"`
}

var validate = validator.New()

// New loads configuration from a .env file, if present, and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv decodes and validates configuration from the current environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Resolver returns the base URL resolver for this configuration.
func (c *Config) Resolver() *EnvResolver {
	return &EnvResolver{WSURL: c.WSURL, APIURL: c.APIURL, Host: c.Host}
}
