// Package s3 implements transport.Transport over an S3-compatible object
// store, adapted from the teacher's pkg/blocks/store/s3 client wiring
// (same aws-sdk-go-v2 config/client construction, same NoSuchKey mapping,
// same ListObjectsV2 paginator for directory listing).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
)

// Config holds the parameters needed to reach an archive's S3 bucket.
type Config struct {
	Bucket string
	Region string
	// Prefix is prepended to every path, rooting the archive within the
	// bucket (e.g. "archives/nightly/").
	Prefix string
	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// services such as MinIO or Localstack.
	Endpoint string
	// ForcePathStyle is required by Localstack/MinIO.
	ForcePathStyle bool
}

// Transport is an S3-backed implementation of transport.Transport.
type Transport struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds a Transport around an already-constructed S3 client.
func New(client *s3.Client, cfg Config) *Transport {
	return &Transport{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// NewFromConfig loads AWS credentials/region from the environment (or the
// given overrides) and constructs the S3 client itself.
func NewFromConfig(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, conserveerr.New("s3.NewFromConfig", cfg.Bucket, conserveerr.KindTransportIO, fmt.Errorf("load aws config: %w", err))
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(client, cfg), nil
}

func (t *Transport) key(path string) string {
	return t.prefix + strings.TrimPrefix(path, "/")
}

func (t *Transport) ListDir(ctx context.Context, dir string) ([]string, []string, error) {
	prefix := t.key(dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(t.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(t.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var files, subdirs []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, conserveerr.New("s3.ListDir", dir, conserveerr.KindTransportIO, err)
		}
		for _, obj := range page.Contents {
			files = append(files, strings.TrimPrefix(*obj.Key, prefix))
		}
		for _, p := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*p.Prefix, prefix), "/")
			subdirs = append(subdirs, name)
		}
	}
	sort.Strings(files)
	sort.Strings(subdirs)
	return files, subdirs, nil
}

func (t *Transport) Read(ctx context.Context, path string) ([]byte, error) {
	resp, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, conserveerr.New("s3.Read", path, conserveerr.KindNotFound, conserveerr.ErrNotFound)
		}
		return nil, conserveerr.New("s3.Read", path, conserveerr.KindTransportIO, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, conserveerr.New("s3.Read", path, conserveerr.KindTransportIO, err)
	}
	return data, nil
}

func (t *Transport) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	resp, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(path)),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, conserveerr.New("s3.ReadRange", path, conserveerr.KindNotFound, conserveerr.ErrNotFound)
		}
		return nil, conserveerr.New("s3.ReadRange", path, conserveerr.KindTransportIO, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, conserveerr.New("s3.ReadRange", path, conserveerr.KindTransportIO, err)
	}
	return data, nil
}

// CreateDir is a no-op: S3 has no directories, only key prefixes.
func (t *Transport) CreateDir(ctx context.Context, dir string) error {
	return nil
}

func (t *Transport) WriteFile(ctx context.Context, path string, data []byte, policy transport.OverwritePolicy) error {
	key := t.key(path)

	if policy == transport.FailIfExists {
		_, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return conserveerr.New("s3.WriteFile", path, conserveerr.KindAlreadyExists, conserveerr.ErrAlreadyExists)
		}
		if !isNotFound(err) {
			return conserveerr.New("s3.WriteFile", path, conserveerr.KindTransportIO, err)
		}
	}

	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return conserveerr.New("s3.WriteFile", path, conserveerr.KindTransportIO, err)
	}
	return nil
}

func (t *Transport) RemoveFile(ctx context.Context, path string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(path)),
	})
	if err != nil {
		return conserveerr.New("s3.RemoveFile", path, conserveerr.KindTransportIO, err)
	}
	return nil
}

func (t *Transport) RemoveDir(ctx context.Context, dir string) error {
	prefix := t.key(dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(t.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(t.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return conserveerr.New("s3.RemoveDir", dir, conserveerr.KindTransportIO, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		_, err = t.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(t.bucket),
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return conserveerr.New("s3.RemoveDir", dir, conserveerr.KindTransportIO, err)
		}
	}
	return nil
}

func (t *Transport) Metadata(ctx context.Context, path string) (transport.Metadata, error) {
	resp, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return transport.Metadata{}, conserveerr.New("s3.Metadata", path, conserveerr.KindNotFound, conserveerr.ErrNotFound)
		}
		return transport.Metadata{}, conserveerr.New("s3.Metadata", path, conserveerr.KindTransportIO, err)
	}

	var size int64
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	var mtime = resp.LastModified
	if mtime == nil {
		return transport.Metadata{Size: size}, nil
	}
	return transport.Metadata{Size: size, Mtime: *mtime}, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

var _ transport.Transport = (*Transport)(nil)
