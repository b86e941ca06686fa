// Package local implements transport.Transport over the local filesystem,
// adapted from the teacher's filesystem-backed block store
// (pkg/payload/store/fs): temp-file-then-rename for atomic writes, with
// the same not-found/already-exists mapping.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/marmos91/conserve/pkg/conserveerr"
	"github.com/marmos91/conserve/pkg/transport"
)

// Transport is a local-disk implementation of transport.Transport rooted
// at a base directory.
type Transport struct {
	root string
}

// New creates a local transport rooted at root, creating it if missing.
func New(root string) (*Transport, error) {
	if root == "" {
		return nil, conserveerr.New("local.New", "", conserveerr.KindPermissionDenied, conserveerr.ErrPermissionDenied)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, conserveerr.New("local.New", root, conserveerr.KindPermissionDenied, err)
	}
	return &Transport{root: root}, nil
}

func (t *Transport) abs(path string) string {
	return filepath.Join(t.root, filepath.FromSlash(path))
}

func (t *Transport) ListDir(ctx context.Context, dir string) (files, subdirs []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, cancelled("local.ListDir", dir)
	}
	entries, err := os.ReadDir(t.abs(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, conserveerr.New("local.ListDir", dir, conserveerr.KindNotFound, conserveerr.ErrNotFound)
		}
		return nil, nil, conserveerr.New("local.ListDir", dir, conserveerr.KindTransportIO, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e.Name())
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	sort.Strings(subdirs)
	return files, subdirs, nil
}

func (t *Transport) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled("local.Read", path)
	}
	data, err := os.ReadFile(t.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, conserveerr.New("local.Read", path, conserveerr.KindNotFound, conserveerr.ErrNotFound)
		}
		return nil, conserveerr.New("local.Read", path, conserveerr.KindTransportIO, err)
	}
	return data, nil
}

func (t *Transport) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled("local.ReadRange", path)
	}
	f, err := os.Open(t.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, conserveerr.New("local.ReadRange", path, conserveerr.KindNotFound, conserveerr.ErrNotFound)
		}
		return nil, conserveerr.New("local.ReadRange", path, conserveerr.KindTransportIO, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, conserveerr.New("local.ReadRange", path, conserveerr.KindTransportIO, err)
	}
	return buf[:n], nil
}

func (t *Transport) CreateDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return cancelled("local.CreateDir", dir)
	}
	if err := os.MkdirAll(t.abs(dir), 0o755); err != nil {
		return conserveerr.New("local.CreateDir", dir, conserveerr.KindTransportIO, err)
	}
	return nil
}

func (t *Transport) WriteFile(ctx context.Context, path string, data []byte, policy transport.OverwritePolicy) error {
	if err := ctx.Err(); err != nil {
		return cancelled("local.WriteFile", path)
	}

	abs := t.abs(path)
	if policy == transport.FailIfExists {
		if _, err := os.Lstat(abs); err == nil {
			return conserveerr.New("local.WriteFile", path, conserveerr.KindAlreadyExists, conserveerr.ErrAlreadyExists)
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return conserveerr.New("local.WriteFile", path, conserveerr.KindTransportIO, err)
	}

	f, err := os.CreateTemp(filepath.Dir(abs), filepath.Base(abs)+".*.tmp")
	if err != nil {
		return conserveerr.New("local.WriteFile", path, conserveerr.KindTransportIO, err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err != nil {
		os.Remove(tmp)
		return conserveerr.New("local.WriteFile", path, conserveerr.KindTransportIO, err)
	}

	if policy == transport.FailIfExists {
		// os.Link+remove-tmp gives us a true fail-if-exists rename: Rename
		// would silently replace an existing file on POSIX.
		if err := os.Link(tmp, abs); err != nil {
			os.Remove(tmp)
			if os.IsExist(err) {
				return conserveerr.New("local.WriteFile", path, conserveerr.KindAlreadyExists, conserveerr.ErrAlreadyExists)
			}
			return conserveerr.New("local.WriteFile", path, conserveerr.KindTransportIO, err)
		}
		os.Remove(tmp)
		return nil
	}

	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return conserveerr.New("local.WriteFile", path, conserveerr.KindTransportIO, err)
	}
	return nil
}

func (t *Transport) RemoveFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return cancelled("local.RemoveFile", path)
	}
	if err := os.Remove(t.abs(path)); err != nil && !os.IsNotExist(err) {
		return conserveerr.New("local.RemoveFile", path, conserveerr.KindTransportIO, err)
	}
	return nil
}

func (t *Transport) RemoveDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return cancelled("local.RemoveDir", dir)
	}
	if err := os.RemoveAll(t.abs(dir)); err != nil {
		return conserveerr.New("local.RemoveDir", dir, conserveerr.KindTransportIO, err)
	}
	return nil
}

func (t *Transport) Metadata(ctx context.Context, path string) (transport.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return transport.Metadata{}, cancelled("local.Metadata", path)
	}
	info, err := os.Stat(t.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return transport.Metadata{}, conserveerr.New("local.Metadata", path, conserveerr.KindNotFound, conserveerr.ErrNotFound)
		}
		return transport.Metadata{}, conserveerr.New("local.Metadata", path, conserveerr.KindTransportIO, err)
	}
	return transport.Metadata{Size: info.Size(), Mtime: info.ModTime()}, nil
}

func cancelled(op, path string) error {
	return conserveerr.New(op, path, conserveerr.KindCancelled, conserveerr.ErrCancelled)
}

var _ transport.Transport = (*Transport)(nil)
