//go:build !windows

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapSource is a Source backed by a read-only memory mapping of the
// whole file. Reads are plain slice operations; no syscall per read.
type mmapSource struct {
	data []byte
	f    *os.File
}

// NewMmap maps f read-only for its full size and returns a Source over
// it. The caller retains ownership of f only insofar as Close on the
// returned Source also closes f.
func NewMmap(f *os.File, size uint) (Source, error) {
	if size == 0 {
		return &mmapSource{data: nil, f: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, os.NewSyscallError("mmap", err)
	}
	return &mmapSource{data: data, f: f}, nil
}

func (s *mmapSource) Len() uint { return uint(len(s.data)) }

func (s *mmapSource) ReadAt(offset, length uint, strict bool) ([]byte, error) {
	if offset > uint(len(s.data)) {
		return nil, offsetErr()
	}
	end := offset + length
	if end > uint(len(s.data)) {
		end = uint(len(s.data))
	}
	out := s.data[offset:end]
	if strict && uint(len(out)) != length {
		return nil, offsetErr()
	}
	return out, nil
}

func (s *mmapSource) Close() error {
	var err error
	if s.data != nil {
		err = unix.Munmap(s.data)
	}
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
