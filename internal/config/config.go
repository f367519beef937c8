package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ServerConfig holds all environment-based configuration for
// fittrack-server.
type ServerConfig struct {
	// Address the HTTP server listens on.
	ListenAddr string `env:"FITTRACK_LISTEN_ADDR" envDefault:":4000"`

	// Path to the sqlite database file.
	DBPath string `env:"FITTRACK_DB_PATH" envDefault:"fittrack.db"`

	// Secret used to sign session tokens. Required.
	JWTSecret string `env:"FITTRACK_JWT_SECRET"`

	// How long issued tokens remain valid.
	TokenTTL time.Duration `env:"FITTRACK_TOKEN_TTL" envDefault:"720h"`

	// Optional directory watched for menu template YAML files. Empty
	// disables the watcher.
	TemplateDir string `env:"FITTRACK_TEMPLATE_DIR"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// EnableMetrics exposes prometheus metrics on /metrics.
	EnableMetrics bool `env:"FITTRACK_METRICS" envDefault:"true"`
}

// ClientConfig holds environment-based configuration for the fittrack
// CLI.
type ClientConfig struct {
	// Base URL of the fittrack server.
	ServerURL string `env:"FITTRACK_SERVER_URL" envDefault:"http://localhost:4000"`

	// Account credentials used by `fittrack login` when not given as
	// flags.
	Email    string `env:"FITTRACK_EMAIL"`
	Password string `env:"FITTRACK_PASSWORD"`

	// Directory holding the local cache database. Defaults to
	// ~/.fittrack.
	StateDir string `env:"FITTRACK_STATE_DIR"`

	// Device name this client identifies as. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

const jwtSecretMinLen = 16

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// LoadServer reads server configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func LoadServer() (*ServerConfig, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("FITTRACK_JWT_SECRET is required")
	}

	if len(c.JWTSecret) < jwtSecretMinLen {
		return fmt.Errorf("FITTRACK_JWT_SECRET too short (minimum %d characters)", jwtSecretMinLen)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("FITTRACK_TOKEN_TTL must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "fittrack"
		}

		cfg.DeviceName = hostname
	}

	if cfg.StateDir == "" {
		dir, err := DefaultStateDir()
		if err != nil {
			return nil, err
		}

		cfg.StateDir = dir
	}

	// Resolve to an absolute path so the bbolt file lands in a stable
	// location regardless of the working directory the CLI runs from.
	absDir, err := filepath.Abs(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("resolving state dir to absolute path: %w", err)
	}

	cfg.StateDir = absDir

	return cfg, nil
}

// DefaultStateDir returns the default client state directory:
// ~/.fittrack/
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".fittrack"), nil
}
