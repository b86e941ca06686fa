package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/marmos91/conserve/internal/bytesize"
	"github.com/marmos91/conserve/pkg/blockdir"
)

const (
	defaultRetryInitialInterval = 200 * time.Millisecond
	defaultRetryMaxInterval     = 5 * time.Second
	defaultRetryMaxElapsedTime  = 30 * time.Second
)

// DefaultConfig returns a Config with every field at its zero value,
// ready for ApplyDefaults.
func DefaultConfig() *Config {
	return &Config{}
}

// ApplyDefaults fills in any unspecified configuration fields with
// sensible defaults, following the teacher's "zero values get replaced,
// explicit values are preserved" convention.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTransportDefaults(&cfg.Transport)
	applyBackupDefaults(&cfg.Backup)
	applyCodecDefaults(&cfg.Codec)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTransportDefaults(cfg *TransportConfig) {
	if cfg.Kind == "" {
		cfg.Kind = "local"
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = defaultRetryInitialInterval
	}
	if cfg.RetryMaxInterval == 0 {
		cfg.RetryMaxInterval = defaultRetryMaxInterval
	}
	if cfg.RetryMaxElapsedTime == 0 {
		cfg.RetryMaxElapsedTime = defaultRetryMaxElapsedTime
	}
}

func applyBackupDefaults(cfg *BackupConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = bytesize.ByteSize(blockdir.DefaultChunkSize)
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = runtime.GOMAXPROCS(0)
	}
	if cfg.BlockPresenceCacheSize == 0 {
		cfg.BlockPresenceCacheSize = 1 << 16
	}
	if cfg.BlockCacheSize == 0 {
		cfg.BlockCacheSize = 64 << 20
	}
}

func applyCodecDefaults(cfg *CodecConfig) {
	if cfg.Name == "" {
		cfg.Name = "zstd"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}
