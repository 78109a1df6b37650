package config_test

import (
	"testing"

	"trophy-manager/core/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "trophy-cache.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "trophy-icons", cfg.Storage.Bucket)
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, 10, cfg.Refresh.QuickCount)
	assert.Equal(t, 4, cfg.Refresh.Workers)
	assert.Equal(t, "snapshots", cfg.Providers.SnapshotDir)
	assert.Nil(t, cfg.Providers.EnabledKeys())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("REFRESH_QUICK_COUNT", "25")
	t.Setenv("PROVIDERS_ENABLED", "steam,retro")

	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Refresh.QuickCount)
	assert.Equal(t, []string{"steam", "retro"}, cfg.Providers.EnabledKeys())
}

func TestEnabledKeys(t *testing.T) {
	tests := []struct {
		name    string
		enabled string
		want    []string
	}{
		{"Empty", "", nil},
		{"Whitespace", "   ", nil},
		{"Single", "steam", []string{"steam"}},
		{"List", "steam, retro", []string{"steam", "retro"}},
		{"TrailingComma", "steam,", []string{"steam"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.ProvidersConfig{Enabled: tt.enabled}
			assert.Equal(t, tt.want, p.EnabledKeys())
		})
	}
}
