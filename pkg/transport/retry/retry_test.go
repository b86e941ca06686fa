package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
	"github.com/marmos91/conserve/pkg/transport/retry"
)

type fakeTransport struct {
	transport.Transport
	readFn func(ctx context.Context, path string) ([]byte, error)
}

func (f *fakeTransport) Read(ctx context.Context, path string) ([]byte, error) {
	return f.readFn(ctx, path)
}

func testConfig() retry.Config {
	return retry.Config{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  200 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	fake := &fakeTransport{readFn: func(ctx context.Context, path string) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, conserveerr.New("fake.Read", path, conserveerr.KindTransportIO, errors.New("timeout")).AsRetryable()
		}
		return []byte("ok"), nil
	}}

	r := retry.Wrap(fake, testConfig())
	data, err := r.Read(context.Background(), "x")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("got %q, want %q", data, "ok")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	attempts := 0
	fake := &fakeTransport{readFn: func(ctx context.Context, path string) ([]byte, error) {
		attempts++
		return nil, conserveerr.New("fake.Read", path, conserveerr.KindNotFound, conserveerr.ErrNotFound)
	}}

	r := retry.Wrap(fake, testConfig())
	_, err := r.Read(context.Background(), "x")
	if conserveerr.KindOf(err) != conserveerr.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestRetryGivesUpAfterMaxElapsed(t *testing.T) {
	fake := &fakeTransport{readFn: func(ctx context.Context, path string) ([]byte, error) {
		return nil, conserveerr.New("fake.Read", path, conserveerr.KindTransportIO, errors.New("down")).AsRetryable()
	}}

	r := retry.Wrap(fake, testConfig())
	_, err := r.Read(context.Background(), "x")
	if conserveerr.KindOf(err) != conserveerr.KindTransportIO {
		t.Fatalf("expected KindTransportIO, got %v", err)
	}
}
