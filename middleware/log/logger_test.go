package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Gopher0727/BirthdayBox/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("json to stdout", func(t *testing.T) {
		logger, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		logger.Info("ready")
		assert.NoError(t, logger.Close())
	})

	t.Run("console format", func(t *testing.T) {
		logger, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"})
		require.NoError(t, err)
		logger.Debug("debugging")
		assert.NoError(t, logger.Close())
	})

	t.Run("file output is json with trace and domain fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "birthday.log")
		logger, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: path})
		require.NoError(t, err)

		ctx := WithTraceID(context.Background(), "trace-abc")
		logger.InfoContext(ctx, "purchase completed", PurchaseID(7), MessageID(3), Status("completed"))
		require.NoError(t, logger.Close())

		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry))
		assert.Equal(t, "purchase completed", entry["message"])
		assert.Equal(t, "trace-abc", entry["trace_id"])
		assert.Equal(t, float64(7), entry["purchase_id"])
		assert.Equal(t, float64(3), entry["message_id"])
		assert.Equal(t, "completed", entry["status"])
		assert.Equal(t, "birthdaybox", entry["service"])
	})

	t.Run("file output without path is rejected", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Level: "info", Output: "file"})
		assert.Error(t, err)
	})

	t.Run("unknown level is rejected", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "xml"})
		assert.Error(t, err)
	})
}

func TestLogger_WithContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := &Logger{Logger: zap.New(core)}

	t.Run("adds trace id when present", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-1")
		logger.WarnContext(ctx, "slow generation")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "trace-1", entries[0].ContextMap()["trace_id"])
	})

	t.Run("leaves entry untouched without trace id", func(t *testing.T) {
		logger.ErrorContext(context.Background(), "boom")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		_, ok := entries[0].ContextMap()["trace_id"]
		assert.False(t, ok)
	})

	t.Run("named and fields compose", func(t *testing.T) {
		logger.Named("premium").With(PurchaseID(9), Status("completed")).Info("expanded")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "premium", entries[0].LoggerName)
		assert.Equal(t, int64(9), entries[0].ContextMap()["purchase_id"])
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "debug", want: "debug"},
		{in: "INFO", want: "info"},
		{in: "", want: "info"},
		{in: "warning", want: "warn"},
		{in: "error", want: "error"},
		{in: "verbose", want: "info", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := parseLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, level.String())
		})
	}
}
