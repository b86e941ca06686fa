// Package config loads Conserve's configuration from an optional YAML
// file over built-in defaults, with CONSERVE_* environment variables
// overriding the keys that file sets, built on the teacher's
// viper/mapstructure/validator stack (pkg/config in the teacher, before
// distillation to this domain). No setting is read from a command-line
// flag, and the environment is not consulted when no file is found.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/conserve/internal/bytesize"
	"github.com/marmos91/conserve/pkg/codec"
	_ "github.com/marmos91/conserve/pkg/codec/snappy"
	_ "github.com/marmos91/conserve/pkg/codec/zstd"
)

// Config is Conserve's complete runtime configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Backup    BackupConfig    `mapstructure:"backup" yaml:"backup"`
	Codec     CodecConfig     `mapstructure:"codec" yaml:"codec"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls slog output, mirroring the teacher's own
// logging section (internal/logger).
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// TransportConfig selects and configures the archive's backing transport.
type TransportConfig struct {
	// Kind is "local" or "s3".
	Kind string `mapstructure:"kind" yaml:"kind" validate:"required,oneof=local s3"`

	// Local is used when Kind == "local".
	Local LocalTransportConfig `mapstructure:"local" yaml:"local"`

	// S3 is used when Kind == "s3".
	S3 S3TransportConfig `mapstructure:"s3" yaml:"s3"`

	// RetryInitialInterval/MaxInterval/MaxElapsedTime configure the
	// bounded exponential backoff wrapping every transport operation
	// (pkg/transport/retry).
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`
	RetryMaxElapsedTime  time.Duration `mapstructure:"retry_max_elapsed_time" yaml:"retry_max_elapsed_time"`
}

// LocalTransportConfig configures a filesystem-backed archive root.
type LocalTransportConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// S3TransportConfig configures an S3-backed archive root.
type S3TransportConfig struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// BackupConfig controls the backup pipeline's resource usage.
type BackupConfig struct {
	ChunkSize              bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`
	WorkerCount            int               `mapstructure:"worker_count" yaml:"worker_count" validate:"omitempty,gte=1"`
	BlockPresenceCacheSize int64             `mapstructure:"block_presence_cache_size" yaml:"block_presence_cache_size"`
	BlockCacheSize         bytesize.ByteSize `mapstructure:"block_cache_size" yaml:"block_cache_size"`
	Excludes               []string          `mapstructure:"excludes" yaml:"excludes"`
}

// CodecConfig selects the block compression codec.
type CodecConfig struct {
	// Name is "zstd" or "snappy" (pkg/codec's registered implementations).
	Name string `mapstructure:"name" yaml:"name" validate:"omitempty,oneof=zstd snappy"`
}

// Codec resolves the configured codec name to a concrete instance.
func (c CodecConfig) Codec() (codec.Codec, error) {
	name := c.Name
	if name == "" {
		name = "zstd"
	}
	cc, ok := codec.ByName(codec.Name(name))
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	return cc, nil
}

// MetricsConfig controls the optional Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Load reads configuration from configPath (or the default location if
// empty), with environment variables overriding the keys the file sets,
// fills unset fields with defaults, and validates the result. When no
// file is found the result is the defaults alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg using go-playground/validator,
// the same library the teacher's go.mod already carries.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CONSERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "conserve")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "conserve")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
