package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string
	// StorageBackend selects "postgres" or "memory". Memory mode runs the
	// whole engine without a database, for demos and tests.
	StorageBackend string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

// EngineConfig groups the fulfillment knobs.
type EngineConfig struct {
	ReservationTTL     time.Duration
	SweepInterval      time.Duration
	DefaultLowStock    int
	AssignmentStrategy string
	ShowOutOfStock     bool
	ModerateCatalog    bool
	AgentSpeedKmh      float64
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Engine   EngineConfig
}

// NewConfig reads the environment, optionally seeded from a .env file. Only
// database credentials are required when the postgres backend is selected;
// everything else has a default.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	cfg.App.Port = getEnv("APP_PORT", "8080")
	cfg.App.StorageBackend = getEnv("STORAGE_BACKEND", "postgres")

	if cfg.App.StorageBackend == "postgres" {
		for _, req := range []struct {
			key  string
			dest *string
		}{
			{"DB_HOST", &cfg.Postgres.Host},
			{"DB_PORT", &cfg.Postgres.Port},
			{"DB_USER", &cfg.Postgres.User},
			{"DB_PASSWORD", &cfg.Postgres.Password},
			{"DB_NAME", &cfg.Postgres.DBName},
		} {
			v := os.Getenv(req.key)
			if v == "" {
				return nil, fmt.Errorf("%s is required", req.key)
			}
			*req.dest = v
		}
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MaxConns = int32(getEnvInt("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(getEnvInt("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour)
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")

	cfg.Engine.ReservationTTL = getEnvDuration("RESERVATION_TTL", 10*time.Minute)
	cfg.Engine.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Minute)
	cfg.Engine.DefaultLowStock = getEnvInt("DEFAULT_LOW_STOCK_THRESHOLD", 5)
	cfg.Engine.AssignmentStrategy = getEnv("ASSIGNMENT_STRATEGY", "load_first")
	cfg.Engine.ShowOutOfStock = getEnvBool("SHOW_OUT_OF_STOCK", false)
	cfg.Engine.ModerateCatalog = getEnvBool("MODERATE_CATALOG", true)
	cfg.Engine.AgentSpeedKmh = getEnvFloat("AGENT_SPEED_KMH", 20)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
