package commands

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(&buf, LogFormatJSON, slog.LevelInfo, true)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "kind", "connection")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, "connection", record["kind"])

	buf.Reset()

	logger, err = NewLogger(&buf, LogFormatText, slog.LevelDebug, true)
	require.NoError(t, err)

	logger.Debug("text line", "id", "C1")
	assert.Contains(t, buf.String(), "text line")
	assert.Contains(t, buf.String(), "id=C1")
	assert.NotContains(t, buf.String(), "\x1b[")

	_, err = NewLogger(&buf, "logfmt", slog.LevelInfo, true)
	require.ErrorIs(t, err, ErrUnsupportedLogFormat)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(&buf, LogFormatJSON, slog.LevelInfo, true)
	require.NoError(t, err)

	adapter := newSlogAdapter(logger)
	adapter.Debug("dropped", nil)
	adapter.Warn("integration not active", map[string]interface{}{"status": "CONFIGURED", "id": "ORDERS|01.00.0000"})

	out := strings.TrimSpace(buf.String())
	require.NotContains(t, out, "dropped")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "ORDERS|01.00.0000", record["id"])
	assert.Less(t, strings.Index(out, `"id"`), strings.Index(out, `"status"`))
}

func TestSetupLogging(t *testing.T) {
	previous := cliLogger

	t.Cleanup(func() {
		cliLogger = previous
		viper.Reset()
	})
	viper.Reset()
	viper.Set("log-format", "json")
	viper.Set("verbose", true)

	var buf bytes.Buffer
	require.NoError(t, SetupLogging(&buf))

	cliLogger.Debug("debug enabled")
	assert.Contains(t, buf.String(), "debug enabled")

	viper.Set("log-format", "xml")
	require.ErrorIs(t, SetupLogging(&buf), ErrUnsupportedLogFormat)
}
