package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API and its workers.
type Config struct {
	DatabaseURL        string
	Port               string
	JWTSecret          string
	WebhookSecret      string
	WebhookTolerance   time.Duration
	PaymentAPIBaseURL  string
	PaymentAPIKey      string
	CheckoutReturnURL  string
	ReservationTTL     time.Duration
	SweepInterval      time.Duration
	PlatformFeePercent int
	CORSOrigins        []string
	RiverMaxWorkers    int
	LogLevel           slog.Level
}

// Load reads configuration from the environment. A .env file, when present,
// fills in variables that are not already set.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               getEnv("PORT", "8080"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		WebhookSecret:      os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		WebhookTolerance:   time.Second * time.Duration(getInt("PAYMENT_WEBHOOK_TOLERANCE_SECONDS", 300)),
		PaymentAPIBaseURL:  getEnv("PAYMENT_API_BASE_URL", ""),
		PaymentAPIKey:      os.Getenv("PAYMENT_API_KEY"),
		CheckoutReturnURL:  getEnv("CHECKOUT_RETURN_URL", "http://localhost:3000/checkout/return"),
		ReservationTTL:     time.Minute * time.Duration(getInt("RESERVATION_TTL_MINUTES", 15)),
		SweepInterval:      time.Second * time.Duration(getInt("RESERVATION_SWEEP_SECONDS", 60)),
		PlatformFeePercent: getInt("PLATFORM_FEE_PERCENT", 10),
		CORSOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		RiverMaxWorkers:    getInt("RIVER_MAX_WORKERS", 10),
		LogLevel:           parseLevel(getEnv("LOG_LEVEL", "info")),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.WebhookSecret == "" {
		missing = append(missing, "PAYMENT_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if cfg.PlatformFeePercent < 0 || cfg.PlatformFeePercent > 100 {
		return Config{}, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %d", cfg.PlatformFeePercent)
	}
	if cfg.ReservationTTL <= 0 {
		return Config{}, fmt.Errorf("RESERVATION_TTL_MINUTES must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("RESERVATION_SWEEP_SECONDS must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(raw string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func loadEnvFile() error {
	path := getEnv("CONFIG_ENV_PATH", ".env")
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("access env file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
