package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 0, cfg.ThreadPoolSize)
	require.Equal(t, 0, cfg.PriorityLow)
	require.Equal(t, 10, cfg.PriorityHigh)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsInvertedPriorityRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriorityLow = 10
	cfg.PriorityHigh = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativePoolSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThreadPoolSize = -1
	require.Error(t, cfg.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OSWRAP_THREAD_POOL_SIZE", "7")
	t.Setenv("OSWRAP_PRIORITY_LOW", "2")
	t.Setenv("OSWRAP_PRIORITY_HIGH", "20")
	t.Setenv("OSWRAP_SHUTDOWN_TIMEOUT_MILLIS", "9000")

	cfg := DefaultConfig()
	cfg.applyEnvironmentOverrides()

	require.Equal(t, 7, cfg.ThreadPoolSize)
	require.Equal(t, 2, cfg.PriorityLow)
	require.Equal(t, 20, cfg.PriorityHigh)
	require.Equal(t, int64(9000), cfg.ShutdownTimeoutMillis)
}

func TestEnvironmentOverridesIgnoreMalformedValues(t *testing.T) {
	t.Setenv("OSWRAP_THREAD_POOL_SIZE", "not-a-number")

	cfg := DefaultConfig()
	cfg.applyEnvironmentOverrides()

	require.Equal(t, 0, cfg.ThreadPoolSize)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Equal(t, 10, cfg.PriorityHigh)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oswrap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"thread_pool_size": 4, "priority_high": 15}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.ThreadPoolSize)
	require.Equal(t, 15, cfg.PriorityHigh)
}

func TestResolvedPoolSizeFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	require.Greater(t, cfg.ResolvedPoolSize(), 0)

	cfg.ThreadPoolSize = 3
	require.Equal(t, 3, cfg.ResolvedPoolSize())
}
