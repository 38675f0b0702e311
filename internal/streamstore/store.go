// Package streamstore persists stream field payloads out of band.
//
// A payload lives at <root>/<table>/<identity>/<field>. Missing
// intermediate directories are created on first save. Writes land in a
// temporary file that is renamed into place, so a reader never observes a
// partially written payload.
package streamstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrNotExist is returned by Open when no payload is stored at a location.
var ErrNotExist = errors.New("stream payload does not exist")

// Location addresses one stream field of one entity.
type Location struct {
	Table string
	ID    string
	Field string
}

// Path returns the slash-separated relative path of the location.
// Each segment is escaped so identities cannot climb out of their table.
func (l Location) Path() string {
	return filepath.Join(segment(l.Table), segment(l.ID), segment(l.Field))
}

func (l Location) String() string {
	return filepath.ToSlash(l.Path())
}

func segment(s string) string {
	switch s {
	case ".", "..":
		return url.PathEscape(s[:len(s)-1]) + "%2E"
	}
	return url.PathEscape(s)
}

// Store is a path-addressed blob sink. Implementations must be safe for
// concurrent use by distinct locations.
type Store interface {
	// Put copies r to loc, replacing any previous payload.
	Put(ctx context.Context, loc Location, r io.Reader) (int64, error)

	// Open reopens the payload at loc. It returns an error wrapping
	// ErrNotExist when nothing is stored there.
	Open(ctx context.Context, loc Location) (io.ReadCloser, error)

	// Remove deletes the payload at loc. Removing a missing payload is not
	// an error.
	Remove(ctx context.Context, loc Location) error

	// RemoveEntity deletes every payload of one entity.
	RemoveEntity(ctx context.Context, table, id string) error
}

// FS is a Store backed by an afero filesystem.
type FS struct {
	fs   afero.Fs
	root string
}

var _ Store = (*FS)(nil)

// New returns a Store rooted at root within fs.
func New(fs afero.Fs, root string) *FS {
	return &FS{fs: fs, root: root}
}

// NewOS returns a Store rooted at a directory of the host filesystem.
func NewOS(root string) *FS {
	return New(afero.NewOsFs(), root)
}

// NewMem returns a Store over an in-memory filesystem.
func NewMem() *FS {
	return New(afero.NewMemMapFs(), "/streams")
}

// Root returns the directory payloads are stored under.
func (s *FS) Root() string {
	return s.root
}

func (s *FS) full(loc Location) string {
	return filepath.Join(s.root, loc.Path())
}

func (s *FS) Put(ctx context.Context, loc Location, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dst := s.full(loc)
	dir := filepath.Dir(dst)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create stream directory %s: %w", dir, err)
	}

	f, err := afero.TempFile(s.fs, dir, ".next-*")
	if err != nil {
		return 0, fmt.Errorf("create stream file: %w", err)
	}
	tmp := f.Name()

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return n, fmt.Errorf("write stream %s: %w", loc, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return n, fmt.Errorf("close stream %s: %w", loc, err)
	}
	if err := s.fs.Rename(tmp, dst); err != nil {
		_ = s.fs.Remove(tmp)
		return n, fmt.Errorf("rename stream %s: %w", loc, err)
	}
	return n, nil
}

func (s *FS) Open(ctx context.Context, loc Location) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.full(loc))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open stream %s: %w", loc, ErrNotExist)
	} else if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", loc, err)
	}
	return f, nil
}

func (s *FS) Remove(ctx context.Context, loc Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.fs.Remove(s.full(loc))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stream %s: %w", loc, err)
	}
	return nil
}

func (s *FS) RemoveEntity(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.root, segment(table), segment(id))
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove streams of %s/%s: %w", table, id, err)
	}
	return nil
}
