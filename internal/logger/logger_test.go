package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"grid-bot-dashboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(models.LogConfig{Level: "warn", Output: "console"}, &buf)
	log.Info("hidden")
	log.Warn("shown")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.log")
	var buf bytes.Buffer
	log := New(models.LogConfig{Level: "info", Output: "file", File: path, MaxSize: 1}, &buf)
	log.Info("to file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Empty(t, buf.String())
}

func TestUnknownOutputFallsBackToConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(models.LogConfig{Level: "bogus", Output: "nowhere"}, &buf)
	log.Info("fallback")
	_ = log.Sync()
	assert.Contains(t, buf.String(), "fallback")
}

func TestGlobalFallback(t *testing.T) {
	base = nil
	assert.NotNil(t, L())
	assert.NotNil(t, S())
}
