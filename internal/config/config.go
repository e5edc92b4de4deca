package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// MinJWTSecretLength is the shortest accepted JWT_SECRET.
const MinJWTSecretLength = 32

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// AuthConfig holds acting-user token configuration.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type Config struct {
	Port           string
	Environment    string
	Backend        string
	Database       DatabaseConfig
	Auth           AuthConfig
	EventQueueSize int
	MigrationsPath string
	PolicyFile     string
}

// Load reads configuration from environment variables.
// It fails fast with clear errors for missing required values.
func Load() (*Config, error) {
	var missing []string

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "staging" && env != "production" {
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", env)
	}

	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = BackendMemory
	}
	if backend != BackendMemory && backend != BackendPostgres {
		return nil, fmt.Errorf("invalid STORE_BACKEND value %q: must be memory or postgres", backend)
	}

	// Database configuration (required for the postgres backend)
	databaseURL := os.Getenv("DATABASE_URL")
	if backend == BackendPostgres && databaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if backend == BackendPostgres {
		if err := validateDatabaseURL(databaseURL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}

	if len(jwtSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("invalid JWT_SECRET: must be at least %d bytes, got %d", MinJWTSecretLength, len(jwtSecret))
	}

	tokenTTL, err := getEnvDuration("JWT_TTL", 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}

	return &Config{
		Port:        port,
		Environment: env,
		Backend:     backend,
		Database: DatabaseConfig{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
			Issuer:    os.Getenv("JWT_ISSUER"),
			TokenTTL:  tokenTTL,
		},
		EventQueueSize: getEnvInt("EVENT_QUEUE_SIZE", 256),
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		PolicyFile:     os.Getenv("POLICY_FILE"),
	}, nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// validateDatabaseURL ensures the database URL is a valid PostgreSQL connection string.
func validateDatabaseURL(dbURL string) error {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("URL must use postgres or postgresql scheme, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(val)
}
