package observability

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/dialtest-cli/internal/config"
)

func TestGetLoggerBeforeInitialize(t *testing.T) {
	// Before initialization the fallback development logger is returned
	// instead of nil, so callers never have to nil-check.
	logger := GetLogger()
	require.NotNil(t, logger)
}

func TestGetEncoder(t *testing.T) {
	assert.IsType(t, zapcore.NewConsoleEncoder(zapcore.EncoderConfig{}), getEncoder("console"))
	assert.IsType(t, zapcore.NewJSONEncoder(zapcore.EncoderConfig{}), getEncoder("json"))
	assert.IsType(t, zapcore.NewJSONEncoder(zapcore.EncoderConfig{}), getEncoder("unknown"))
}

func TestInitializeLoggerIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "dialtest-test",
		LogFile:     filepath.Join(dir, "test.log"),
		MaxSize:     1,
		MaxBackups:  1,
		MaxAge:      1,
	}

	InitializeLogger(cfg)
	first := GetLogger()
	require.NotNil(t, first)

	// A second call must not replace the logger.
	InitializeLogger(config.LoggerConfig{Level: "error", Format: "console"})
	assert.Same(t, first, GetLogger())

	first.Info("hello from the logger test")
	Sync()
}
