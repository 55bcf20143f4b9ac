package logs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"surreal-rpc/config"
)

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surreal-rpc.log")
	logger, err := New(config.Log{Level: "info", JSON: true, Output: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("call done", zap.String("id", "01J"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "call done", entry["msg"])
	assert.Equal(t, "01J", entry["id"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevels(t *testing.T) {
	logger, err := New(config.Log{Level: "debug", Output: "stdout"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = New(config.Log{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = New(config.Log{Level: "loud"})
	assert.Error(t, err)
}
