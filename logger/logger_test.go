package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"arm_shn/config"
)

func TestNew(t *testing.T) {
	t.Run("Файл с ротацией", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "app.log")
		l, err := New(config.LoggingConfig{Level: "info", File: path, MaxSize: 1, MaxBackups: 1, MaxAge: 1}, true)
		require.NoError(t, err)

		l.Info("прибор отправлен", zap.Uint("device_id", 7))
		require.NoError(t, l.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"device_id":7`)
	})

	t.Run("Некорректный уровень", func(t *testing.T) {
		_, err := New(config.LoggingConfig{Level: "громко"}, true)
		assert.Error(t, err)
	})
}

func TestNewCapture(t *testing.T) {
	var buf bytes.Buffer
	l := NewCapture(&buf, zapcore.WarnLevel)
	l.Info("не попадет")
	l.Warn("место пустое", zap.String("address", "12-34"))

	assert.NotContains(t, buf.String(), "не попадет")
	assert.Contains(t, buf.String(), "12-34")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
