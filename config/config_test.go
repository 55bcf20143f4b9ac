package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"ws://127.0.0.1:8000/rpc"}, cfg.Endpoints)
	assert.Empty(t, cfg.Discovery.Etcd)
	assert.Equal(t, "surreal", cfg.Discovery.Service)
	assert.Equal(t, 30*time.Second, cfg.Call.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Conn.WriteTimeout)
	assert.Equal(t, "info", cfg.Log.Level)

	s := cfg.Settings()
	assert.Equal(t, 10*time.Second, s.HandshakeTimeout)
	assert.Equal(t, int64(32<<20), s.ReadLimit)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
endpoints:
  - ws://db1:8000/rpc
  - ws://db2:8000/rpc
auth:
  user: root
  pass: root
namespace: test
database: test
conn:
  heartbeat_interval: 0s
call:
  timeout: 2s
  retries: 3
  rate_limit: 50
log:
  level: debug
  json_format: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ws://db1:8000/rpc", "ws://db2:8000/rpc"}, cfg.Endpoints)
	assert.Equal(t, Auth{User: "root", Pass: "root"}, cfg.Auth)
	assert.Equal(t, "test", cfg.Namespace)
	assert.Zero(t, cfg.Conn.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.Call.Timeout)
	assert.Equal(t, 3, cfg.Call.Retries)
	assert.Equal(t, 50.0, cfg.Call.RateLimit)
	assert.True(t, cfg.Log.JSON)
	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Conn.WriteTimeout)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "call:\n  timeout: 2s\n")
	t.Setenv("SURREAL_RPC_CALL_TIMEOUT", "9s")
	t.Setenv("SURREAL_RPC_ENDPOINTS", "ws://a:8000/rpc, ws://b:8000/rpc")
	t.Setenv("SURREAL_RPC_DISCOVERY_ETCD", "127.0.0.1:2379")
	t.Setenv("SURREAL_RPC_AUTH_USER", "admin")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Call.Timeout)
	assert.Equal(t, []string{"ws://a:8000/rpc", "ws://b:8000/rpc"}, cfg.Endpoints)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Discovery.Etcd)
	assert.Equal(t, "admin", cfg.Auth.User)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "namespace: only\n"))
	assert.ErrorContains(t, err, "namespace and database")

	_, err = Load(writeConfig(t, "call:\n  retries: -1\n"))
	assert.ErrorContains(t, err, "retries")
}
