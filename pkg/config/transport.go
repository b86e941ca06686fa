package config

import (
	"context"
	"fmt"

	"github.com/marmos91/conserve/pkg/transport"
	"github.com/marmos91/conserve/pkg/transport/local"
	"github.com/marmos91/conserve/pkg/transport/retry"
	"github.com/marmos91/conserve/pkg/transport/s3"
)

// BuildTransport constructs the concrete Transport cfg describes, wrapped
// in the retry transport, which retries errors marked retryable with
// bounded exponential backoff. The local and s3 transports mark no error
// retryable, so each operation is attempted once.
func (cfg TransportConfig) BuildTransport(ctx context.Context) (transport.Transport, error) {
	var inner transport.Transport

	switch cfg.Kind {
	case "local":
		if cfg.Local.Root == "" {
			return nil, fmt.Errorf("transport.local.root is required")
		}
		t, err := local.New(cfg.Local.Root)
		if err != nil {
			return nil, err
		}
		inner = t

	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("transport.s3.bucket is required")
		}
		t, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Prefix:         cfg.S3.Prefix,
			Endpoint:       cfg.S3.Endpoint,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		inner = t

	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}

	return retry.Wrap(inner, retry.Config{
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		MaxElapsedTime:  cfg.RetryMaxElapsedTime,
	}), nil
}
