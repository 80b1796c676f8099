package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/pflag"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	ModeCoordinator = "coordinator"
	ModeWorker      = "worker"
	ModeCollector   = "collector"
	ModeAll         = "all"
)

// RedisConfig holds the queue connection settings.
type RedisConfig struct {
	Addr   string
	Prefix string
}

// Config holds every runtime setting of the boxblur binary.
type Config struct {
	KernelSize  int
	Threads     int
	Concurrency int
	OutputDir   string
	StatsDir    string

	InputDir    string
	Mode        string
	Workers     int
	Redis       RedisConfig
	MetricsAddr string

	LogLevel string
}

// Default returns a Config with usable values for every field.
func Default() Config {
	return Config{
		KernelSize:  15,
		Threads:     runtime.NumCPU(),
		Concurrency: 2,
		OutputDir:   "output",
		InputDir:    "input",
		Mode:        ModeAll,
		Workers:     4,
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "boxblur",
		},
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

// RegisterLogFlags binds the logging flags.
func (c *Config) RegisterLogFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.LogLevel, "log.level", c.LogLevel, "Log level: debug, info, warn or error")
}

// RegisterBlurFlags binds the flags shared by every command that blurs.
func (c *Config) RegisterBlurFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&c.KernelSize, "kernel", "k", c.KernelSize, "Box kernel size (odd, >= 1)")
	fs.IntVarP(&c.Threads, "threads", "t", c.Threads, "Worker goroutines per image, clamped to the image height")
	fs.StringVarP(&c.OutputDir, "output", "o", c.OutputDir, "Output directory")
}

// RegisterBatchFlags binds the local batch flags.
func (c *Config) RegisterBatchFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&c.Concurrency, "concurrency", "c", c.Concurrency, "Images blurred at the same time")
	fs.StringVar(&c.StatsDir, "stats-dir", c.StatsDir, "Write a timing report to this directory")
}

// RegisterServiceFlags binds the Redis service flags.
func (c *Config) RegisterServiceFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.InputDir, "input", c.InputDir, "Input directory scanned by the coordinator")
	fs.StringVar(&c.Mode, "mode", c.Mode, "Mode: coordinator, worker, collector, or all")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Concurrent jobs per worker process")
	fs.StringVar(&c.Redis.Addr, "redis", c.Redis.Addr, "Redis address")
	fs.StringVar(&c.Redis.Prefix, "redis.prefix", c.Redis.Prefix, "Prefix for Redis streams and keys")
	fs.StringVar(&c.MetricsAddr, "metrics.addr", c.MetricsAddr, "Listen address for /metrics, empty to disable")
}

// Validate checks the settings shared by all commands.
func (c *Config) Validate() error {
	if c.KernelSize < 1 || c.KernelSize%2 == 0 {
		return fmt.Errorf("%w: kernel size %d must be odd and positive", ErrInvalidConfig, c.KernelSize)
	}
	if c.Threads < 1 {
		return fmt.Errorf("%w: threads %d must be positive", ErrInvalidConfig, c.Threads)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency %d must be positive", ErrInvalidConfig, c.Concurrency)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory cannot be empty", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateService additionally checks the Redis service settings.
func (c *Config) ValidateService() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c.Mode {
	case ModeCoordinator, ModeWorker, ModeCollector, ModeAll:
	default:
		return fmt.Errorf("%w: mode %q must be coordinator, worker, collector, or all", ErrInvalidConfig, c.Mode)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be positive", ErrInvalidConfig, c.Workers)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis address cannot be empty", ErrInvalidConfig)
	}
	if c.Redis.Prefix == "" {
		return fmt.Errorf("%w: redis prefix cannot be empty", ErrInvalidConfig)
	}
	if (c.Mode == ModeCoordinator || c.Mode == ModeAll) && c.InputDir == "" {
		return fmt.Errorf("%w: input directory cannot be empty in %s mode", ErrInvalidConfig, c.Mode)
	}
	return nil
}
