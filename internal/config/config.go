package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type AppConfig struct {
	// SofarToken authenticates every API request. It is not validated;
	// a missing token simply fails authentication remotely.
	SofarToken string
	APIBaseURL string `validate:"required,url"`

	HTTPTimeout time.Duration `validate:"gte=0"`

	// Retry policy around each request. MaxRetries 0 = single attempt.
	MaxRetries      int           `validate:"gte=0,lte=10"`
	RetryInitial    time.Duration `validate:"required_with=MaxRetries,gte=0"`
	RetryMax        time.Duration `validate:"gte=0"`
	BreakerFailures int           `validate:"gte=0"`

	LogFormat string `validate:"oneof=console json"`

	// DailyAt is the UTC time of day (HH:MM) the schedule command pulls
	// the previous day.
	DailyAt string `validate:"required,datetime=15:04"`

	Port string `validate:"required,numeric"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &AppConfig{
		SofarToken: os.Getenv("SOFAR_TOKEN"),
		APIBaseURL: getenvDefault("SOFAR_API_URL", "https://api.sofarocean.com"),
		LogFormat:  getenvDefault("LOG_FORMAT", "console"),
		DailyAt:    getenvDefault("PULL_DAILY_AT", "01:00"),
		Port:       getenvDefault("PORT", "8080"),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.RetryInitial, err = getenvDuration("SOFAR_RETRY_INITIAL", "500ms"); err != nil {
		return nil, err
	}
	if cfg.RetryMax, err = getenvDuration("SOFAR_RETRY_MAX", "5s"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getenvInt("SOFAR_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.BreakerFailures, err = getenvInt("SOFAR_BREAKER_THRESHOLD", 0); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
