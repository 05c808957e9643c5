package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	ChangeLog ChangeLogConfig
	JWT       JWTConfig
	Sync      SyncConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

// DatabaseConfig points at the CouchDB instance holding devices, items and
// version content.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// ChangeLogConfig points at the SQLite file holding the change log and
// conflicts.
type ChangeLogConfig struct {
	Path        string
	BusyTimeout time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type SyncConfig struct {
	DefaultPageSize    int
	MaxPageSize        int
	DetectionWindow    int
	MaxBlockSize       int
	DefaultBlockSize   int
	SignatureCacheSize int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level      string
	JSON       bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := time.ParseDuration(getEnv("JWT_EXPIRATION", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}

	busyTimeout, err := time.ParseDuration(getEnv("CHANGELOG_BUSY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHANGELOG_BUSY_TIMEOUT: %w", err)
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  env,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "filesync"),
		},
		ChangeLog: ChangeLogConfig{
			Path:        getEnv("CHANGELOG_PATH", "data/changelog.db"),
			BusyTimeout: busyTimeout,
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration: jwtExp,
		},
		Sync: SyncConfig{
			DefaultPageSize:    getEnvAsInt("SYNC_DEFAULT_PAGE_SIZE", 1000),
			MaxPageSize:        getEnvAsInt("SYNC_MAX_PAGE_SIZE", 5000),
			DetectionWindow:    getEnvAsInt("SYNC_DETECTION_WINDOW", 50),
			MaxBlockSize:       getEnvAsInt("SIGNATURE_MAX_BLOCK_SIZE", 16<<20),
			DefaultBlockSize:   getEnvAsInt("SIGNATURE_DEFAULT_BLOCK_SIZE", 64<<10),
			SignatureCacheSize: getEnvAsInt("SIGNATURE_CACHE_SIZE", 256),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			JSON:       getEnvAsBool("LOG_JSON", env != "development"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c SyncConfig) validate() error {
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.DetectionWindow <= 0 {
		return fmt.Errorf("invalid SYNC_DETECTION_WINDOW: %d", c.DetectionWindow)
	}
	if c.DefaultBlockSize <= 0 || c.MaxBlockSize < c.DefaultBlockSize {
		return fmt.Errorf("invalid block sizes: default %d, max %d", c.DefaultBlockSize, c.MaxBlockSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
