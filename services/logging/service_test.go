package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewService(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		svc, err := NewService(Config{Level: Info, Format: "json", OutputPath: "stdout"})
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.NotNil(t, svc.Logger())
		assert.NotNil(t, svc.Sugar())
	})

	t.Run("console format", func(t *testing.T) {
		svc, err := NewService(Config{Level: Debug, Format: "console", OutputPath: "stdout"})
		require.NoError(t, err)
		require.NotNil(t, svc)
	})
}

func TestNilServiceIsSafe(t *testing.T) {
	var svc *Service

	assert.Nil(t, svc.Logger())
	assert.Nil(t, svc.Sugar())
	assert.NoError(t, svc.Sync())

	svc.Info("should not panic")
	svc.Warn("should not panic")
	svc.Error("should not panic")
	svc.Infow("should not panic", "key", "value")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected zapcore.Level
	}{
		{Debug, zapcore.DebugLevel},
		{Info, zapcore.InfoLevel},
		{Warn, zapcore.WarnLevel},
		{Error, zapcore.ErrorLevel},
		{LogLevel("bogus"), zapcore.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, parseLogLevel(tt.level))
	}
}
