package config

import (
	"bytes"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateService())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"even kernel", func(c *Config) { c.KernelSize = 4 }},
		{"zero kernel", func(c *Config) { c.KernelSize = 0 }},
		{"zero threads", func(c *Config) { c.Threads = 0 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"empty output", func(c *Config) { c.OutputDir = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateService(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "assembler" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"no redis", func(c *Config) { c.Redis.Addr = "" }},
		{"no prefix", func(c *Config) { c.Redis.Prefix = "" }},
		{"coordinator without input", func(c *Config) { c.Mode = ModeCoordinator; c.InputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.ValidateService(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.Mode = ModeWorker
	cfg.InputDir = ""
	require.NoError(t, cfg.ValidateService(), "workers do not scan input")
}

func TestRegisterFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterLogFlags(fs)
	cfg.RegisterBlurFlags(fs)
	cfg.RegisterBatchFlags(fs)
	cfg.RegisterServiceFlags(fs)

	err := fs.Parse([]string{
		"-k", "7", "--threads=3", "-o", "blurred", "-c", "5",
		"--mode", "worker", "--redis", "redis:6380", "--redis.prefix", "test",
		"--log.level", "debug", "--metrics.addr", "",
	})
	require.NoError(t, err)

	require.Equal(t, 7, cfg.KernelSize)
	require.Equal(t, 3, cfg.Threads)
	require.Equal(t, "blurred", cfg.OutputDir)
	require.Equal(t, 5, cfg.Concurrency)
	require.Equal(t, ModeWorker, cfg.Mode)
	require.Equal(t, RedisConfig{Addr: "redis:6380", Prefix: "test"}, cfg.Redis)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Empty(t, cfg.MetricsAddr)
}

func TestNewLoggerFiltersLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn")
	require.NoError(t, err)

	require.NoError(t, level.Info(logger).Log("msg", "hidden"))
	require.NoError(t, level.Warn(logger).Log("msg", "shown"))

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "msg=shown")
	require.Contains(t, buf.String(), "level=warn")

	_, err = NewLogger(&buf, "verbose")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
