package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"portfolio-ledger/internal/config"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name        string
		cfg         config.Logger
		expectError bool
		debug       bool
	}{
		{name: "Console debug", cfg: config.Logger{Level: "debug", Format: "console"}, debug: true},
		{name: "JSON info", cfg: config.Logger{Level: "info", Format: "json"}},
		{name: "Invalid level", cfg: config.Logger{Level: "verbose"}, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := NewLogger(tc.cfg)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.debug, log.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")
	log, err := NewLogger(config.Logger{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("recorded deposit")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "recorded deposit")
}
