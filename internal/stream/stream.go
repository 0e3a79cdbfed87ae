// Package stream provides the positioned-read primitive that the decoder
// and search engine build on: a seekable byte source with strict-length
// read guarantees, independent of how the bytes actually get from disk
// into memory.
package stream

import (
	"fmt"
	"io"

	"github.com/haldane-io/mmdb/internal/mmdberrors"
)

// Source is a seekable byte stream with a known total length. Callers
// never share a Source across goroutines; each Reader owns exactly one.
type Source interface {
	// ReadAt returns up to length bytes starting at offset. If strict is
	// true, a short read is an error rather than a truncated result.
	ReadAt(offset, length uint, strict bool) ([]byte, error)

	// Len returns the total size of the stream in bytes, captured at
	// construction time.
	Len() uint

	// Close releases any resources (file descriptors, mappings) held by
	// the source.
	Close() error
}

// fileSource is the portable Source backend: a positioned read via
// io.ReaderAt, with no persistent seek cursor to race on.
type fileSource struct {
	r    io.ReaderAt
	c    io.Closer
	size uint
}

// NewFile wraps an *os.File (or any io.ReaderAt) as a Source. size is the
// stream's total length, captured once at open time per the reader's
// resource-discipline rules.
func NewFile(r io.ReaderAt, c io.Closer, size uint) Source {
	return &fileSource{r: r, c: c, size: size}
}

func (s *fileSource) Len() uint { return s.size }

func (s *fileSource) ReadAt(offset, length uint, strict bool) ([]byte, error) {
	if offset > s.size {
		return nil, mmdberrors.NewOffsetError()
	}
	remaining := s.size - offset
	want := length
	if want > remaining {
		want = remaining
	}
	buf := make([]byte, want)
	n, err := s.r.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", length, offset, err)
	}
	buf = buf[:n]
	if strict && uint(n) != length {
		return nil, mmdberrors.NewOffsetError()
	}
	return buf, nil
}

func (s *fileSource) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

func offsetErr() error {
	return mmdberrors.NewOffsetError()
}
