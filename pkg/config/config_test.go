package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/conserve/pkg/config"
)

func writeConfigFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := config.DefaultConfig()
	config.ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "local", cfg.Transport.Kind)
	assert.NotZero(t, cfg.Transport.RetryInitialInterval)
	assert.NotZero(t, cfg.Transport.RetryMaxInterval)
	assert.NotZero(t, cfg.Transport.RetryMaxElapsedTime)
	assert.NotZero(t, cfg.Backup.ChunkSize)
	assert.Greater(t, cfg.Backup.WorkerCount, 0)
	assert.Equal(t, "zstd", cfg.Codec.Name)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "debug"},
		Codec:   config.CodecConfig{Name: "snappy"},
	}
	config.ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "snappy", cfg.Codec.Name)
}

func TestLoadFromFileWithByteSizeAndDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
transport:
  kind: local
  local:
    root: /tmp/archive
  retry_initial_interval: 500ms
backup:
  chunk_size: 2Mi
  worker_count: 4
codec:
  name: snappy
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Transport.Kind)
	assert.Equal(t, "/tmp/archive", cfg.Transport.Local.Root)
	assert.Equal(t, 2<<20, int(cfg.Backup.ChunkSize))
	assert.Equal(t, 4, cfg.Backup.WorkerCount)
	assert.Equal(t, "snappy", cfg.Codec.Name)
}

func TestLoadRejectsInvalidCodec(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
transport:
  kind: local
  local:
    root: /tmp/archive
codec:
  name: bogus
`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownTransportKind(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
transport:
  kind: ftp
`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestCodecConfigResolvesRegisteredCodec(t *testing.T) {
	cc := config.CodecConfig{Name: "snappy"}
	c, err := cc.Codec()
	require.NoError(t, err)
	assert.Equal(t, "snappy", string(c.Name()))
}

func TestCodecConfigDefaultsToZstd(t *testing.T) {
	cc := config.CodecConfig{}
	c, err := cc.Codec()
	require.NoError(t, err)
	assert.Equal(t, "zstd", string(c.Name()))
}

func TestCodecConfigRejectsUnregisteredName(t *testing.T) {
	cc := config.CodecConfig{Name: "lz4"}
	_, err := cc.Codec()
	assert.Error(t, err)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := config.DefaultConfig()
	config.ApplyDefaults(cfg)
	cfg.Transport.Kind = "local"
	cfg.Transport.Local.Root = dir

	require.NoError(t, config.SaveConfig(cfg, path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, loaded.Transport.Local.Root)
}

func TestBuildTransportLocal(t *testing.T) {
	cfg := config.TransportConfig{Kind: "local", Local: config.LocalTransportConfig{Root: t.TempDir()}}
	tr, err := cfg.BuildTransport(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestBuildTransportRejectsMissingLocalRoot(t *testing.T) {
	cfg := config.TransportConfig{Kind: "local"}
	_, err := cfg.BuildTransport(context.Background())
	assert.Error(t, err)
}

func TestBuildTransportRejectsUnknownKind(t *testing.T) {
	cfg := config.TransportConfig{Kind: "nope"}
	_, err := cfg.BuildTransport(context.Background())
	assert.Error(t, err)
}
