package slogx_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/aussiebroadwan/maturity/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{
		Service: "auth",
		Version: "v1",
		Env:     "test",
		Level:   "warn",
		Output:  &buf,
	})

	t.Run("level filters", func(t *testing.T) {
		buf.Reset()
		logger.Info("hidden")
		require.Zero(t, buf.Len())
	})

	t.Run("service attributes", func(t *testing.T) {
		buf.Reset()
		logger.Warn("visible")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "auth", line["service"])
		require.Equal(t, "v1", line["version"])
		require.Equal(t, "test", line["env"])
	})

	t.Run("credentials are redacted", func(t *testing.T) {
		buf.Reset()
		logger.Warn("token issued",
			"client_id", "cli_portal",
			"refresh_token", "r-123",
			"Client_Secret", "s3cret",
			"code", "abc",
		)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "cli_portal", line["client_id"])
		require.Equal(t, slogx.Redacted, line["refresh_token"])
		require.Equal(t, slogx.Redacted, line["Client_Secret"])
		require.Equal(t, slogx.Redacted, line["code"])
		require.NotContains(t, buf.String(), "s3cret")
	})

	t.Run("becomes the default", func(t *testing.T) {
		buf.Reset()
		slog.Warn("via default")
		require.Contains(t, buf.String(), "via default")
	})
}

func TestNewLevels(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slogx.New(slogx.Config{Level: tt.level, Format: "text", Output: &buf})

			require.True(t, logger.Enabled(t.Context(), tt.want))
			require.False(t, logger.Enabled(t.Context(), tt.want-1))
		})
	}
}
