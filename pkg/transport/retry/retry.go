// Package retry wraps a transport.Transport with bounded exponential
// backoff for transient failures, the same shape of retry the teacher
// applies around cache-full backpressure in pkg/payload/io (there
// hand-rolled; here backed by github.com/cenkalti/backoff/v4, which the
// teacher's go.mod already resolves as an indirect dependency).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
)

// Config controls the backoff policy applied to every retried call.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultConfig matches the teacher's cache-full retry window, widened to
// cover real network timeouts instead of in-memory backpressure.
func DefaultConfig() Config {
	return Config{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// Transport retries the operations of an underlying transport.Transport
// that fail with a retryable conserveerr.Error.
type Transport struct {
	inner transport.Transport
	cfg   Config
}

// Wrap returns a Transport that retries inner's retryable failures.
func Wrap(inner transport.Transport, cfg Config) *Transport {
	return &Transport{inner: inner, cfg: cfg}
}

func (t *Transport) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.InitialInterval
	b.MaxInterval = t.cfg.MaxInterval
	b.MaxElapsedTime = t.cfg.MaxElapsedTime
	return backoff.WithContext(b, ctx)
}

func retryable(err error) bool {
	return err != nil && conserveerr.IsRetryable(err)
}

func (t *Transport) ListDir(ctx context.Context, dir string) (files, subdirs []string, err error) {
	op := func() error {
		files, subdirs, err = t.inner.ListDir(ctx, dir)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if bErr := backoff.Retry(op, t.policy(ctx)); bErr != nil {
		return nil, nil, unwrapPermanent(bErr)
	}
	return files, subdirs, nil
}

func (t *Transport) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	op := func() error {
		var err error
		data, err = t.inner.Read(ctx, path)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if bErr := backoff.Retry(op, t.policy(ctx)); bErr != nil {
		return nil, unwrapPermanent(bErr)
	}
	return data, nil
}

func (t *Transport) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	var data []byte
	op := func() error {
		var err error
		data, err = t.inner.ReadRange(ctx, path, offset, length)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if bErr := backoff.Retry(op, t.policy(ctx)); bErr != nil {
		return nil, unwrapPermanent(bErr)
	}
	return data, nil
}

func (t *Transport) CreateDir(ctx context.Context, dir string) error {
	op := func() error {
		err := t.inner.CreateDir(ctx, dir)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return unwrapPermanent(backoff.Retry(op, t.policy(ctx)))
}

func (t *Transport) WriteFile(ctx context.Context, path string, data []byte, policy transport.OverwritePolicy) error {
	op := func() error {
		err := t.inner.WriteFile(ctx, path, data, policy)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return unwrapPermanent(backoff.Retry(op, t.policy(ctx)))
}

func (t *Transport) RemoveFile(ctx context.Context, path string) error {
	op := func() error {
		err := t.inner.RemoveFile(ctx, path)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return unwrapPermanent(backoff.Retry(op, t.policy(ctx)))
}

func (t *Transport) RemoveDir(ctx context.Context, dir string) error {
	op := func() error {
		err := t.inner.RemoveDir(ctx, dir)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return unwrapPermanent(backoff.Retry(op, t.policy(ctx)))
}

func (t *Transport) Metadata(ctx context.Context, path string) (transport.Metadata, error) {
	var meta transport.Metadata
	op := func() error {
		var err error
		meta, err = t.inner.Metadata(ctx, path)
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if bErr := backoff.Retry(op, t.policy(ctx)); bErr != nil {
		return transport.Metadata{}, unwrapPermanent(bErr)
	}
	return meta, nil
}

// unwrapPermanent recovers the original error from backoff.Permanent, and
// passes nil through unchanged.
func unwrapPermanent(err error) error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(*backoff.PermanentError); ok {
		return perr.Err
	}
	return err
}

var _ transport.Transport = (*Transport)(nil)
