package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	opt, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", opt.ServerURL)
	assert.Equal(t, 5, opt.SyncMaxAttempts)
	assert.Equal(t, 100, opt.RecentTransactions)
	assert.Equal(t, "info", opt.LogLevel)
	assert.NotEmpty(t, opt.DatabasePath)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halolaba.toml")
	content := `
server_url = "http://pos.example.com"
sync_max_attempts = 9
probe_interval_seconds = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	opt, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://pos.example.com", opt.ServerURL)
	assert.Equal(t, 9, opt.SyncMaxAttempts)
	assert.Equal(t, 3, opt.ProbeIntervalSeconds)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100, opt.RecentTransactions)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "halolaba.toml")
	require.NoError(t, os.WriteFile(path, []byte(`server_url = "http://from-file"`), 0o644))

	t.Setenv("HALOLABA_SERVER_URL", "http://from-env")
	t.Setenv("HALOLABA_RECENT_TRANSACTIONS", "25")

	opt, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", opt.ServerURL)
	assert.Equal(t, 25, opt.RecentTransactions)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("server_url = ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
