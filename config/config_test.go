package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 40, cfg.Game.StartingLife)
	assert.Equal(t, 1000, cfg.Game.StageDeltaCeiling)
	assert.Equal(t, 50*time.Millisecond, cfg.Limits.DebounceInterval)
	assert.Equal(t, 10*time.Second, cfg.Limits.CreateTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.LobbyRetention)
	assert.Equal(t, 50, cfg.Maintenance.LobbyPurgeBatch)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("STARTING_LIFE", "20")
	t.Setenv("LOBBY_RETENTION", "48h")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 20, cfg.Game.StartingLife)
	assert.Equal(t, 48*time.Hour, cfg.Maintenance.LobbyRetention)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"non numeric", "STARTING_LIFE", "forty"},
		{"zero ceiling", "STAGE_DELTA_CEILING", "0"},
		{"no retries", "TX_MAX_RETRIES", "0"},
		{"bad duration", "CLEANUP_INTERVAL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
