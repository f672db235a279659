package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Local stores objects as files under a root directory.
type Local struct {
	fs afero.Fs
}

// NewLocal roots a store at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return NewLocalFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewLocalFs wraps an existing filesystem; tests pass afero.NewMemMapFs().
func NewLocalFs(fs afero.Fs) *Local {
	return &Local{fs: fs}
}

func (l *Local) Name() string { return "local" }

// Put writes through a temporary file and renames it into place, so readers
// never see a partial object.
func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.fs.MkdirAll(path.Dir(key), 0750); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}

	tmp := key + ".tmp-" + uuid.NewString()[:8]
	if err := afero.WriteFile(l.fs, tmp, data, 0640); err != nil {
		l.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := l.fs.Rename(tmp, key); err != nil {
		l.fs.Remove(tmp)
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object; a missing object is not an error.
func (l *Local) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
