package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.True(t, cfg.Server.MDNS)
	assert.NotEmpty(t, cfg.Server.DataDir)
	assert.Equal(t, filepath.Join(cfg.Server.DataDir, "events.db"), cfg.Server.DBPath)

	assert.NotEmpty(t, cfg.Client.DBPath)
	assert.Equal(t, 10, cfg.Client.HistoryLimit)
	assert.Equal(t, 10*time.Second, cfg.Client.CallTimeout)
	assert.Equal(t, 5*time.Second, cfg.Client.DiscoveryTimeout)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  db_path: /tmp/mirror.db
  endpoint: http://192.168.1.10:8000/api
  token: abc123
  history_limit: 30
server:
  port: 9000
  data_dir: /tmp/authority
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/mirror.db", cfg.Client.DBPath)
	assert.Equal(t, "http://192.168.1.10:8000/api", cfg.Client.Endpoint)
	assert.Equal(t, "abc123", cfg.Client.Token)
	assert.Equal(t, 30, cfg.Client.HistoryLimit)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/authority", cfg.Server.DataDir)
	assert.Equal(t, filepath.Join("/tmp/authority", "events.db"), cfg.Server.DBPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TEND_ENDPOINT", "http://10.0.0.5:8000/api")
	t.Setenv("TEND_SERVER_PORT", "8080")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000/api", cfg.Client.Endpoint)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
