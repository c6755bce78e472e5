package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/memoryball/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warn "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("processed", FieldPath, "a.jpg", FieldKind, "image")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "processed", entry["msg"])
	assert.Equal(t, "a.jpg", entry["path"])
	assert.Contains(t, entry, "ts")
	assert.NotContains(t, entry, "source", "no caller at info level")
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "console", Output: &buf})
	require.NoError(t, err)

	logger.Debug("detail")
	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	logger, err := NewFromConfig(config.Default())
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = NewFromConfig(nil)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	assert.False(t, NewNop().Enabled(context.Background(), slog.LevelError))
}
