// Package config loads and validates the mount-time configuration for
// netmdfs: which device to talk to, where to mount it, and how to log.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NETMDFS_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the static configuration for a single mount of the overlay
// filesystem. Cache/transfer/VFS state itself is runtime, not configuration.
type Config struct {
	// Device identifies the NetMD device to open. "mock" selects the
	// in-memory fake driver used by tests and demos.
	Device string `mapstructure:"device" validate:"required" yaml:"device"`

	// MountPoint is the host directory the overlay filesystem is mounted on.
	MountPoint string `mapstructure:"mount_point" validate:"required" yaml:"mount_point"`

	// FlushIdleInterval is the period at which the mount command flushes TFS
	// on a fixed ticker, whether or not anything changed since the last
	// flush, bounding how much an unclean shutdown could lose. Zero disables
	// periodic flushing.
	FlushIdleInterval time.Duration `mapstructure:"flush_idle_interval" yaml:"flush_idle_interval"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// Defaults returns the configuration applied before any file, env, or flag
// overrides are layered on top.
func Defaults() Config {
	return Config{
		Device:            "mock",
		MountPoint:        "./mnt",
		FlushIdleInterval: 5 * time.Second,
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Load reads configuration from the optional file at path (if non-empty),
// layers NETMDFS_*-prefixed environment variables and flags on top of the
// built-in defaults, and validates the result.
func Load(path string, flags *viper.Viper) (Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("device", d.Device)
	v.SetDefault("mount_point", d.MountPoint)
	v.SetDefault("flush_idle_interval", d.FlushIdleInterval)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetEnvPrefix("NETMDFS")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	if flags != nil {
		for key, val := range flagsToMap(flags) {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func flagsToMap(flags *viper.Viper) map[string]any {
	out := make(map[string]any)
	for _, key := range flags.AllKeys() {
		out[key] = flags.Get(key)
	}
	return out
}

var validatorInst = validator.New()

func validate(cfg Config) error {
	if err := validatorInst.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
