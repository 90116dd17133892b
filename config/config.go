package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	JWTSecret      string   `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	Redis          RedisConfig
	Game           GameConfig
	Limits         LimitsConfig
	Maintenance    MaintenanceConfig
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// GameConfig holds the rules of the counters themselves.
type GameConfig struct {
	StartingLife      int `env:"STARTING_LIFE" envDefault:"40"`
	StageDeltaCeiling int `env:"STAGE_DELTA_CEILING" envDefault:"1000"`
	UpdateFieldCap    int `env:"UPDATE_FIELD_CAP" envDefault:"10000"`
	StringCap         int `env:"STRING_CAP" envDefault:"500"`
	TxMaxRetries      int `env:"TX_MAX_RETRIES" envDefault:"5"`
}

type LimitsConfig struct {
	DebounceInterval time.Duration `env:"DEBOUNCE_INTERVAL" envDefault:"50ms"`
	DebounceTTL      time.Duration `env:"DEBOUNCE_TTL" envDefault:"24h"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	CreateTimeout    time.Duration `env:"CREATE_TIMEOUT" envDefault:"10s"`
}

type MaintenanceConfig struct {
	LobbyRetention      time.Duration `env:"LOBBY_RETENTION" envDefault:"24h"`
	CleanupInterval     time.Duration `env:"CLEANUP_INTERVAL" envDefault:"15m"`
	LobbyPurgeBatch     int           `env:"LOBBY_PURGE_BATCH" envDefault:"50"`
	RateLimitSweepBatch int           `env:"RATE_LIMIT_SWEEP_BATCH" envDefault:"100"`
}

// Load reads the configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Game.StageDeltaCeiling <= 0 {
		return fmt.Errorf("STAGE_DELTA_CEILING must be positive, got %d", c.Game.StageDeltaCeiling)
	}
	if c.Game.UpdateFieldCap <= 0 || c.Game.StringCap <= 0 {
		return fmt.Errorf("field caps must be positive")
	}
	if c.Game.TxMaxRetries < 1 {
		return fmt.Errorf("TX_MAX_RETRIES must be at least 1, got %d", c.Game.TxMaxRetries)
	}
	if c.Maintenance.LobbyPurgeBatch <= 0 || c.Maintenance.RateLimitSweepBatch <= 0 {
		return fmt.Errorf("maintenance batch sizes must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
