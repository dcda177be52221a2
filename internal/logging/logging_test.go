package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reactor/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.Logging{Format: "json", Level: "info"}, &buf, false)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("job completed", "job_id", "j1", "ordinals", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "job completed", rec["msg"])
	assert.Equal(t, "j1", rec["job_id"])
	assert.Equal(t, float64(2), rec["ordinals"])
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.Logging{Format: "text", Level: "error"}, &buf, true)
	require.NoError(t, err)

	logger.Debug("queue claimed", "scope", "global")
	assert.Contains(t, buf.String(), "queue claimed")
	assert.Contains(t, buf.String(), "scope=global")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(config.Logging{Format: "xml"}, &bytes.Buffer{}, false)
	assert.Error(t, err)
	_, err = New(config.Logging{Level: "loud"}, &bytes.Buffer{}, false)
	assert.Error(t, err)
}

func TestSetup_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "reactor.log")
	closer, err := Setup(config.Logging{Format: "text", Level: "info", Output: path, FileMaxSizeMB: 1, FilesKeep: 1}, false)
	require.NoError(t, err)

	slog.Info("remote added", "remote", "office")
	require.NoError(t, closer.Close())
	assert.Same(t, prev, slog.Default())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "remote=office")
}
