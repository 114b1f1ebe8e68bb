package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newObserved returns a logger whose entries can be inspected
func newObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{Logger: zap.New(core), config: DefaultConfig()}, logs
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"default config", DefaultConfig(), false},
		{"nil config", nil, false},
		{"console format", &Config{Level: "info", Format: "console", Output: "console"}, false},
		{
			name: "file output",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: "file",
				File:   FileConfig{Filename: filepath.Join(dir, "a.log"), MaxSize: 10, MaxAge: 7, MaxBackups: 3},
			},
		},
		{
			name: "both output",
			config: &Config{
				Level:  "warn",
				Format: "json",
				Output: "both",
				File:   FileConfig{Filename: filepath.Join(dir, "nested", "b.log"), MaxSize: 10, MaxAge: 7},
			},
		},
		{"invalid level", &Config{Level: "verbose", Format: "json", Output: "console"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
			l.Info("test message")
			_ = l.Sync()
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"upper case level", func(c *Config) { c.Level = "DEBUG" }, false},
		{"invalid level", func(c *Config) { c.Level = "invalid" }, true},
		{"invalid format", func(c *Config) { c.Format = "xml" }, true},
		{"invalid output", func(c *Config) { c.Output = "syslog" }, true},
		{"file without name", func(c *Config) { c.Output = "file"; c.File.Filename = "" }, true},
		{"file with zero size", func(c *Config) { c.Output = "both"; c.File.MaxSize = 0 }, true},
		{"negative backups", func(c *Config) { c.Output = "file"; c.File.MaxBackups = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	l.Named("store").With(zap.String("bucket", "b")).Info("put")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "store", entry.LoggerName)
	assert.Equal(t, "b", entry.ContextMap()["bucket"])
}

func TestLogger_WithContext(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	assert.Same(t, l, l.WithContext(context.Background()))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "user-1")
	l.WithContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "user-1", fields["user_id"])

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "user-1", GetUserID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestGlobalLogger(t *testing.T) {
	assert.NotNil(t, L())

	l, logs := newObserved(zapcore.DebugLevel)
	SetGlobal(l)
	t.Cleanup(func() { SetGlobal(nil) })

	Info("info message", zap.String("key", "value"))
	FromContext(WithRequestID(context.Background(), "req-9")).Warn("warn message")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "req-9", logs.All()[1].ContextMap()["request_id"])

	require.NoError(t, InitGlobal(DefaultConfig()))
	assert.NotSame(t, l, L())
}
