package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecs/backend/internal/config"
)

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "ecs.log")

	log, err := NewLogger(FromConfig(config.LogConfig{
		Level:      "debug",
		File:       logFile,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}))
	require.NoError(t, err)

	log.Info("correspondence created", zap.String("reference", "ECS-20240101-ABCDEF12"))
	_ = log.Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ECS-20240101-ABCDEF12")
}

func TestNewLoggerInvalidLevelFallsBack(t *testing.T) {
	log, err := NewLogger(Config{Level: "loud"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}

func TestContextLogger(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := zap.NewExample()
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))

	assert.NotNil(t, FromContext(context.Background(), nil))
}
