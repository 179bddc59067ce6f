package log

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SyncGuard/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZapLogger_NilConfig(t *testing.T) {
	_, err := NewZapLogger(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "log config is nil")
}

func TestNewZapLogger_InvalidLevel(t *testing.T) {
	_, err := NewZapLogger(&conf.Log{Level: "loud", Format: "json"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewZapLogger_ConsoleAndJSON(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		t.Run(format, func(t *testing.T) {
			logger, err := NewZapLogger(&conf.Log{Level: "debug", Format: format, Env: "production"})
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Debug("sync started")
		})
	}
}

func TestNewZapLogger_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "syncguard.log")

	logger, err := NewZapLogger(&conf.Log{Level: "info", Format: "json", OutputFile: logFile})
	require.NoError(t, err)

	logger.Info("batch completed")
	_ = logger.Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "batch completed")
	assert.Contains(t, string(content), `"service":"SyncGuard"`)
}

func TestNewZapLogger_FileIsJSONEvenForConsole(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "syncguard.log")

	logger, err := NewZapLogger(&conf.Log{Format: "console", OutputFile: logFile})
	require.NoError(t, err)

	logger.Debug("hidden at default info level")
	logger.Warn("rate limit reached")
	_ = logger.Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"rate limit reached"`)
	assert.NotContains(t, string(content), "hidden at default info level")
}

func TestCustomTimeEncoderUsesBusinessZone(t *testing.T) {
	utc := time.Date(2025, 1, 10, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, "[2025-01-10 05:30:00]", utc.In(businessZone).Format("[2006-01-02 15:04:05]"))
}

func TestRequestContext(t *testing.T) {
	assert.Equal(t, "unknown", GetRequestID(context.Background()))
	assert.Equal(t, "system", GetOperator(context.Background()))

	ctx := WithRequestContext(context.Background(), "abc", "ops")
	ctx = WithRunID(ctx, "run-9")

	reqCtx := GetRequestContext(ctx)
	assert.Equal(t, "abc", reqCtx.RequestID)
	assert.Equal(t, "ops", reqCtx.Operator)
	assert.Equal(t, "run-9", reqCtx.RunID)
	assert.GreaterOrEqual(t, GetElapsedTime(ctx), int64(0))

	id := GenerateRequestID()
	assert.Len(t, id, 10)
}
