package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PROVIDER_JWT_SECRET", "")
	t.Setenv("SESSION_INIT_TIMEOUT", "5s")
	t.Setenv("AUTH_RATE_PER_MINUTE", "20")
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("PROVIDER_ANON_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.UseInMemoryStore() {
		t.Fatalf("expected in-memory store, got %q", cfg.DataStore)
	}
	if cfg.SessionInitTimeout != 5*time.Second {
		t.Fatalf("expected 5s init timeout, got %s", cfg.SessionInitTimeout)
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress())
	}
}

func TestLoadRequiresAnonKeyOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PROVIDER_URL", "https://project.example.co")
	t.Setenv("PROVIDER_ANON_KEY", "")
	t.Setenv("ALLOWED_ORIGINS", "https://example.com")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when anon key missing outside development")
	}
	if !strings.Contains(err.Error(), "PROVIDER_ANON_KEY is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsWildcardOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PROVIDER_URL", "https://project.example.co")
	t.Setenv("PROVIDER_ANON_KEY", "anon")
	t.Setenv("ALLOWED_ORIGINS", "https://example.com,*")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ALLOWED_ORIGINS contains wildcard")
	}
	if !strings.Contains(err.Error(), "cannot contain wildcard") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresAllowedOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PROVIDER_URL", "https://project.example.co")
	t.Setenv("PROVIDER_ANON_KEY", "anon")
	t.Setenv("ALLOWED_ORIGINS", "   ")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ALLOWED_ORIGINS is empty")
	}
	if !strings.Contains(err.Error(), "must define at least one origin") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "postgres")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestLoadRejectsUnknownDataStore(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "sqlite")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported data store")
	}
}

func TestLoadReadsSecretFromFile(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("PROVIDER_ANON_KEY", "")

	path := filepath.Join(t.TempDir(), "anon_key")
	if err := os.WriteFile(path, []byte("  file-key \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("PROVIDER_ANON_KEY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ProviderAnonKey != "file-key" {
		t.Fatalf("expected anon key from file, got %q", cfg.ProviderAnonKey)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("SITE_URL", "")
	os.Unsetenv("SITE_URL")

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SITE_URL=https://events.example.com/\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("SITE_URL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if got := cfg.PasswordResetURL(); got != "https://events.example.com/reset-password" {
		t.Fatalf("unexpected reset URL %q", got)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}
