package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the eventhub services.
type Config struct {
	Environment    string   `env:"APP_ENV" envDefault:"development"`
	HTTPPort       int
	DatabaseURL    string
	DataStore      string   `env:"DATA_STORE" envDefault:"memory"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173,http://localhost:8080" envSeparator:","`
	SiteURL        string   `env:"SITE_URL" envDefault:"http://localhost:5173"`

	ProviderURL       string `env:"PROVIDER_URL" envDefault:"http://localhost:54321"`
	ProviderAnonKey   string
	ProviderJWTSecret string
	ProviderJWKSURL   string `env:"PROVIDER_JWKS_URL"`

	SessionInitTimeout     time.Duration `env:"SESSION_INIT_TIMEOUT" envDefault:"5s"`
	SessionIdleTTL         time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SessionRefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"30s"`
	AuthRatePerMinute      int           `env:"AUTH_RATE_PER_MINUTE" envDefault:"20"`
}

// Load reads configuration from environment variables (and an optional .env
// file) with sensible defaults for local development.
func Load() (Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/eventhub_database_url")
	if err != nil {
		return Config{}, err
	}
	anonKey, err := getEnvOrFile("PROVIDER_ANON_KEY", "/run/secrets/eventhub_provider_anon_key")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := getEnvOrFile("PROVIDER_JWT_SECRET", "/run/secrets/eventhub_provider_jwt_secret")
	if err != nil {
		return Config{}, err
	}

	cfg.DatabaseURL = databaseURL
	cfg.ProviderAnonKey = strings.TrimSpace(anonKey)
	cfg.ProviderJWTSecret = strings.TrimSpace(jwtSecret)
	cfg.DataStore = strings.ToLower(strings.TrimSpace(cfg.DataStore))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.ProviderURL = strings.TrimRight(strings.TrimSpace(cfg.ProviderURL), "/")
	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.DataStore {
	case "memory", "provider":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("unsupported DATA_STORE %q", c.DataStore)
	}

	if c.SessionInitTimeout <= 0 {
		return fmt.Errorf("SESSION_INIT_TIMEOUT must be positive")
	}
	if c.AuthRatePerMinute <= 0 {
		return fmt.Errorf("AUTH_RATE_PER_MINUTE must be positive")
	}

	if c.IsDevelopment() {
		return nil
	}

	if c.ProviderURL == "" {
		return fmt.Errorf("PROVIDER_URL is required outside development")
	}
	if c.ProviderAnonKey == "" {
		return fmt.Errorf("PROVIDER_ANON_KEY is required outside development")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must define at least one origin outside development")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS cannot contain wildcard outside development")
		}
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsDevelopment reports whether the service runs in the development environment.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// UseInMemoryStore returns true if the in-memory repositories should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// UseProviderStore returns true if profiles should be read and written through
// the hosted provider's record API instead of a local database.
func (c Config) UseProviderStore() bool {
	return c.DataStore == "provider"
}

// PasswordResetURL is the page the recovery email links back to.
func (c Config) PasswordResetURL() string {
	return c.SiteURL + "/reset-password"
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
