package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the SecureGuard client
type Config struct {
	// API Configuration
	API APIConfig `envPrefix:"SECUREGUARD_"`

	// Storage Configuration
	Storage StorageConfig `envPrefix:"SECUREGUARD_"`

	// Dashboard Configuration
	Dashboard DashboardConfig `envPrefix:"SECUREGUARD_"`

	// Logging Configuration
	Logging LoggingConfig
}

// APIConfig holds backend connection settings
type APIConfig struct {
	BaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	DevMode bool   `env:"DEV_MODE" envDefault:"false"` // surfaces development OTPs
}

// StorageConfig selects where the session is persisted
type StorageConfig struct {
	Backend string `env:"STORAGE" envDefault:"keyring"` // keyring, file, sqlite, memory
	Path    string `env:"STORAGE_PATH"`                   // file or sqlite location, empty = user config dir
}

// DashboardConfig holds the local dashboard server settings
type DashboardConfig struct {
	Addr           string   `env:"DASH_ADDR" envDefault:"127.0.0.1:3000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"` // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	return Parse()
}

// Parse reads the process environment without touching .env files.
func Parse() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid SECUREGUARD_API_BASE_URL %q", c.API.BaseURL)
	}

	switch c.Storage.Backend {
	case "keyring", "file", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid SECUREGUARD_STORAGE %q, must be one of: keyring, file, sqlite, memory", c.Storage.Backend)
	}

	return nil
}
