package config

import (
	"fmt"
	"os"
	"strconv"
)

// Storage backend selectors.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port      string
	AuthToken string

	StorageBackend string
	RatingsFile    string

	DBURL             string
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
	MigrateOnStart    bool

	ProfileURL         string
	ProfileAPIKey      string
	ProfileTimeoutSecs int

	RedisURL            string
	RateLimitMax        int
	RateLimitWindowSecs int

	ReadTimeoutSecs  int
	WriteTimeoutSecs int
	IdleTimeoutSecs  int
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg := Config{
		Port:      getEnv("PORT", "8080"),
		AuthToken: os.Getenv("AUTH_TOKEN"),

		StorageBackend: getEnv("STORAGE_BACKEND", BackendFile),
		RatingsFile:    getEnv("RATINGS_FILE", "user_ratings.json"),

		DBURL:             os.Getenv("DB_URL"),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		MigrateOnStart:    getEnv("DB_MIGRATE_ON_START", "true") == "true",

		ProfileURL:         os.Getenv("PROFILE_URL"),
		ProfileAPIKey:      os.Getenv("PROFILE_API_KEY"),
		ProfileTimeoutSecs: getEnvInt("PROFILE_TIMEOUT_SECS", 5),

		RedisURL:            os.Getenv("REDIS_URL"),
		RateLimitMax:        getEnvInt("RATE_LIMIT_MAX", 10),
		RateLimitWindowSecs: getEnvInt("RATE_LIMIT_WINDOW_SECS", 60),

		ReadTimeoutSecs:  getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
	}

	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN is required")
	}
	switch cfg.StorageBackend {
	case BackendFile:
		if cfg.RatingsFile == "" {
			return Config{}, fmt.Errorf("RATINGS_FILE is required for the file backend")
		}
	case BackendPostgres:
		if cfg.DBURL == "" {
			return Config{}, fmt.Errorf("DB_URL is required for the postgres backend")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be %q or %q", BackendFile, BackendPostgres)
	}
	if cfg.ProfileTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("PROFILE_TIMEOUT_SECS must be positive")
	}
	if cfg.RateLimitMax <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if cfg.RateLimitWindowSecs <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW_SECS must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
