package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{name: "json stdout", cfg: LogConfig{Level: "info", Format: "json", Output: "stdout"}},
		{name: "console stderr", cfg: LogConfig{Level: "debug", Format: "console", Output: "stderr"}},
		{name: "warn level", cfg: LogConfig{Level: "warn", Format: "json"}},
		{name: "bad level", cfg: LogConfig{Level: "loud", Format: "json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)

			logger.Debug("debug message", String("k", "v"))
			logger.Info("info message", Int("n", 1))
			logger.Warn("warn message", Bool("b", true))
			logger.Error("error message", Error(nil))
		})
	}
}

func TestLoggerWith(t *testing.T) {
	logger := NopLogger()
	child := logger.With(String("component", "sni"))
	require.NotNil(t, child)
	child.Info("message with context")
	assert.NoError(t, child.Sync())
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}
