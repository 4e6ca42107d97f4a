// Package storage provides filesystem access for image sources and exports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// Local reads and writes image files on the local filesystem.
type Local struct {
	maxBytes    int64
	chunkSize   int
	permissions os.FileMode
}

// NewLocal creates a Local adapter.  Reads larger than maxBytes fail; 0 means
// unlimited.  chunkSize controls read and write granularity.
func NewLocal(maxBytes int64, chunkSize int, perm os.FileMode) *Local {
	if perm == 0 {
		perm = 0o644
	}
	return &Local{maxBytes: maxBytes, chunkSize: chunkSize, permissions: perm}
}

// ReadFile returns the contents of path.
func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.read", err)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryStorage, "local.read",
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, path))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.read.open", err)
	}
	defer f.Close()

	data, err := utils.ReadAll(ctx, f, l.maxBytes, l.chunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrTooLarge) {
			return nil, apperrors.New(apperrors.CategoryInput, "local.read",
				fmt.Errorf("%s: %w (limit %d bytes)", path, err, l.maxBytes))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.read", err)
	}
	return data, nil
}

// Stat returns file information for path.
func (l *Local) Stat(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryStorage, "local.stat",
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, path))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.stat", err)
	}
	return fi, nil
}

// Siblings lists the regular files in path's directory accepted by keep,
// as absolute paths in case-insensitive name order.  path itself is included
// when keep accepts it.
func (l *Local) Siblings(ctx context.Context, path string, keep func(name string) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.siblings", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.siblings", err)
	}
	dir := filepath.Dir(abs)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.siblings.readdir", err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || (keep != nil && !keep(e.Name())) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(filepath.Base(out[i])), strings.ToLower(filepath.Base(out[j]))
		if a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out, nil
}

// WriteAtomic writes path through a temporary file in the same directory and
// renames it into place, so readers never observe a partial file.
func (l *Local) WriteAtomic(ctx context.Context, path string, write func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.write", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.write.mkdir", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, l.permissions)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.write.open", err)
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err := write(&utils.ChunkedWriter{W: f, ChunkSize: l.chunkSize}); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.write.sync", err)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.write.close", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		committed = true
		return apperrors.Wrap(apperrors.CategoryStorage, "local.write.rename", err)
	}
	committed = true
	return nil
}
