package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration read from the environment.
type Config struct {
	DatabaseURL    string
	ServerPort     string
	AllowedOrigins string
	LogLevel       string
	Environment    string
	ServiceName    string
	OTLPEndpoint   string

	LockTimeout        time.Duration
	AllowNegativeStock bool

	ATPHorizonDays        int
	MaxSplitShipments     int
	MaxFulfillmentOptions int
}

// IsDevelopment reports whether console-friendly logging should be used.
func (c Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("APP_ENV", "development"),
		ServiceName:    getEnv("SERVICE_NAME", "erp-inventory"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AllowNegativeStock, err = getBool("ALLOW_NEGATIVE_STOCK", false); err != nil {
		return Config{}, err
	}
	if cfg.ATPHorizonDays, err = getInt("ATP_HORIZON_DAYS", 30); err != nil {
		return Config{}, err
	}
	if cfg.MaxSplitShipments, err = getInt("MAX_SPLIT_SHIPMENTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.MaxFulfillmentOptions, err = getInt("MAX_FULFILLMENT_OPTIONS", 5); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
