// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duckduckgo/shared-web-tests/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("console format colorizes levels", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "swt",
			Colors:      config.ColorConfig{Debug: "cyan", Warn: "yellow"},
		}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		logger.Named("finder").Debug("resolving")
		logger.Warn("slow")
		logger.Info("plain")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, "\x1b[36mDEBUG\x1b[0m")
		assert.Contains(t, out, "\x1b[33mWARN\x1b[0m")
		assert.Contains(t, out, "\tINFO\t")
		assert.Contains(t, out, "swt.finder.")
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "swt"}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("element resolved", zap.Int("attempts", 3))
		require.NoError(t, logger.Sync())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "swt", entry["logger"])
		assert.Equal(t, "element resolved", entry["msg"])
		assert.EqualValues(t, 3, entry["attempts"])
	})

	t.Run("writes rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "swt.log")
		var buf bytes.Buffer
		logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "console", LogFile: path, MaxSize: 1}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		logger.Info("to both")
		require.NoError(t, logger.Sync())
		assert.FileExists(t, path)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := NewLogger(config.LoggerConfig{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
		assert.ErrorContains(t, err, "invalid log level")
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("first call wins", func(t *testing.T) {
		ResetForTest()
		var first, second bytes.Buffer
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, zapcore.AddSync(&first))
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, zapcore.AddSync(&second))

		GetLogger().Info("hello")
		assert.Contains(t, first.String(), `"logger":"First"`)
		assert.Empty(t, second.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer
		Initialize(config.LoggerConfig{Level: "loud", Format: "json"}, zapcore.AddSync(&buf))

		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load())
}
