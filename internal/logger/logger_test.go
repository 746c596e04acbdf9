package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := New(Config{Level: "debug", Encoding: "json", OutputPath: path})
	require.NoError(t, err)

	log.Debug("hello", zap.String("sessionID", "abc"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"level":"DEBUG"`)
	assert.Contains(t, string(data), `"sessionID":"abc"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := New(Config{Level: "chatty", OutputPath: path})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.DebugLevel))
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
}

func TestNormalizeEncoding(t *testing.T) {
	assert.Equal(t, "json", normalizeEncoding(""))
	assert.Equal(t, "json", normalizeEncoding("xml"))
	assert.Equal(t, "console", normalizeEncoding("Console"))
	assert.Equal(t, "info", normalizeLevel("  "))
	assert.Equal(t, "warn", normalizeLevel("WARN"))
}
