package commands

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/marmos91/conserve/pkg/archive"
	"github.com/marmos91/conserve/pkg/blockdir"
	"github.com/marmos91/conserve/pkg/codec"
	"github.com/marmos91/conserve/pkg/config"
	"github.com/marmos91/conserve/pkg/transport"

	_ "github.com/marmos91/conserve/pkg/codec/snappy"
	_ "github.com/marmos91/conserve/pkg/codec/zstd"
)

// loadConfig resolves global configuration from the file named by the
// --config flag (or the default location) via config.Load: environment
// variables override the file's keys, and defaults fill the rest.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// resolveTransport turns an archive argument (a bare filesystem path, or
// an s3://bucket/prefix URL per spec.md §9's "selected at archive-open
// time based on URL scheme") into a configured Transport, wrapped in the
// retry policy from cfg.
func resolveTransport(ctx context.Context, cfg *config.Config, archiveArg string) (transport.Transport, error) {
	tc := cfg.Transport

	if strings.HasPrefix(archiveArg, "s3://") {
		u, err := url.Parse(archiveArg)
		if err != nil {
			return nil, fmt.Errorf("invalid s3 archive url %q: %w", archiveArg, err)
		}
		tc.Kind = "s3"
		tc.S3.Bucket = u.Host
		tc.S3.Prefix = strings.TrimPrefix(u.Path, "/")
		if v := u.Query().Get("region"); v != "" {
			tc.S3.Region = v
		}
		if v := u.Query().Get("endpoint"); v != "" {
			tc.S3.Endpoint = v
		}
		if v := u.Query().Get("force_path_style"); v != "" {
			tc.S3.ForcePathStyle, _ = strconv.ParseBool(v)
		}
	} else {
		tc.Kind = "local"
		tc.Local.Root = strings.TrimPrefix(archiveArg, "file://")
	}

	return tc.BuildTransport(ctx)
}

// openArchive resolves the archive argument to a transport, opens the
// archive header, the block store, and the configured codec, in the shape
// every non-init command needs.
func openArchive(ctx context.Context, cfg *config.Config, archiveArg string) (*archive.Archive, codec.Codec, *blockdir.Dir, error) {
	t, err := resolveTransport(ctx, cfg, archiveArg)
	if err != nil {
		return nil, nil, nil, err
	}

	c, err := cfg.Codec.Codec()
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := archive.Open(ctx, t)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open archive at %q: %w", archiveArg, err)
	}

	bdOpts := blockdir.DefaultOptions(c)
	bdOpts.PresenceCacheSize = cfg.Backup.BlockPresenceCacheSize
	bdOpts.BlockCacheBytes = int64(cfg.Backup.BlockCacheSize)
	bd, err := blockdir.New(t, bdOpts)
	if err != nil {
		return nil, nil, nil, err
	}

	return a, c, bd, nil
}
