package entity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/streamstore"
)

// ErrNoPendingStream is returned by SaveStream when the field has no
// payload waiting to be saved.
var ErrNoPendingStream = errors.New("no pending stream payload")

type stream struct {
	data  []byte
	fs    afero.Fs
	path  string
	saved bool
}

func (s *stream) pending() bool {
	return s.data != nil || s.path != ""
}

func (s *stream) clone() *stream {
	c := *s
	if s.data != nil {
		c.data = bytes.Clone(s.data)
	}
	return &c
}

func (s *stream) reader() (io.ReadCloser, error) {
	if s.data != nil {
		return io.NopCloser(bytes.NewReader(s.data)), nil
	}
	return s.fs.Open(s.path)
}

func (e *Entity) streamField(name string) (*stream, error) {
	if !e.schema.HasStream(name) {
		return nil, dberr.New(dberr.CodeSchema, "unknown stream field %q in %s", name, e.Type()).OnField(name)
	}
	s, ok := e.streams[name]
	if !ok {
		s = &stream{}
		e.streams[name] = s
	}
	return s, nil
}

// SetStreamBytes attaches an in-memory payload to a stream field.
func (e *Entity) SetStreamBytes(name string, data []byte) error {
	s, err := e.streamField(name)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	s.data = bytes.Clone(data)
	s.fs, s.path = nil, ""
	return nil
}

// SetStreamFile attaches a payload read from path on fs at save time.
func (e *Entity) SetStreamFile(fs afero.Fs, name, path string) error {
	s, err := e.streamField(name)
	if err != nil {
		return err
	}
	if fs == nil {
		return dberr.New(dberr.CodeStreamIO, "stream %s: no filesystem for %q", name, path).OnField(name)
	}
	s.data = nil
	s.fs, s.path = fs, path
	return nil
}

// StreamPending reports whether a stream field has a payload waiting to be
// saved.
func (e *Entity) StreamPending(name string) bool {
	s, ok := e.streams[name]
	return ok && s.pending()
}

// StreamSaved reports whether a stream field was saved by this entity.
func (e *Entity) StreamSaved(name string) bool {
	s, ok := e.streams[name]
	return ok && s.saved
}

// StreamLocation returns where a stream field persists.
func (e *Entity) StreamLocation(name string) streamstore.Location {
	return streamstore.Location{Table: e.table, ID: e.id.String(), Field: name}
}

// SaveStreams externalizes every pending stream field in declaration
// order and returns how many were saved. Fields without a pending payload
// are skipped.
func (e *Entity) SaveStreams(ctx context.Context) (int, error) {
	saved := 0
	for _, name := range e.schema.Streams() {
		if !e.StreamPending(name) {
			continue
		}
		if err := e.SaveStream(ctx, name); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// SaveStream externalizes one stream field and releases its pending
// payload. Without a pending payload it does nothing and returns
// ErrNoPendingStream.
func (e *Entity) SaveStream(ctx context.Context, name string) error {
	s, err := e.streamField(name)
	if err != nil {
		return err
	}
	if !s.pending() {
		return ErrNoPendingStream
	}
	if !e.IsLive() || e.store == nil {
		return dberr.New(dberr.CodeStreamIO, "save stream of detached %s", e.Type()).OnField(name)
	}

	src, err := s.reader()
	if err != nil {
		return dberr.Wrap(dberr.CodeStreamIO, err, "open stream source").InTable(e.table).OnField(name)
	}
	defer src.Close()

	loc := e.StreamLocation(name)
	n, err := e.store.Put(ctx, loc, src)
	if err != nil {
		return dberr.Wrap(dberr.CodeStreamIO, err, "save stream").InTable(e.table).OnField(name)
	}
	s.data = nil
	s.fs, s.path = nil, ""
	s.saved = true
	slog.Debug("stream saved", "table", e.table, "id", e.id.String(), "field", name, "bytes", n)
	return nil
}

// OpenStream returns the payload of a stream field. A pending payload is
// returned as is; otherwise the field is reopened from the stream store.
// When no payload exists it returns nil, nil.
func (e *Entity) OpenStream(ctx context.Context, name string) (io.ReadCloser, error) {
	s, err := e.streamField(name)
	if err != nil {
		return nil, err
	}
	if s.pending() {
		rc, err := s.reader()
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		} else if err != nil {
			return nil, dberr.Wrap(dberr.CodeStreamIO, err, "open stream source").OnField(name)
		}
		return rc, nil
	}
	if !e.IsLive() || e.store == nil {
		return nil, nil
	}
	rc, err := e.store.Open(ctx, e.StreamLocation(name))
	if errors.Is(err, streamstore.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, dberr.Wrap(dberr.CodeStreamIO, err, "open stream").InTable(e.table).OnField(name)
	}
	return rc, nil
}
