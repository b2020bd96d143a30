package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8083", cfg.HTTPPort)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Equal(t, 5*time.Minute, cfg.ProfileCacheTTL)
	require.Equal(t, 60*time.Second, cfg.NotifyKeepalive)
	require.Equal(t, int64(20971520), cfg.UploadMaxBytes)
	require.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("NOTIFY_KEEPALIVE", "15s")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, DriverMemory, cfg.StoreDriver)
	require.Equal(t, 15*time.Second, cfg.NotifyKeepalive)
	require.True(t, cfg.DebugRoutes)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("WS_WRITE_TIMEOUT", "soon")
	_, err := Load()
	require.ErrorContains(t, err, "WS_WRITE_TIMEOUT")

	t.Setenv("WS_WRITE_TIMEOUT", "10s")
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = Load()
	require.ErrorContains(t, err, "STORE_DRIVER")
}
