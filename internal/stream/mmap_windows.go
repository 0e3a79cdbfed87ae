//go:build windows

package stream

// Mapping logic largely borrowed from mmap-go.
//
// Copyright (c) 2011, Evan Shaw <edsrzf@gmail.com>
// All rights reserved.

// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//     * Redistributions of source code must retain the above copyright
//       notice, this list of conditions and the following disclaimer.
//     * Redistributions in binary form must reproduce the above copyright
//       notice, this list of conditions and the following disclaimer in the
//       documentation and/or other materials provided with the distribution.
//     * Neither the name of the copyright holder nor the
//       names of its contributors may be used to endorse or promote products
//       derived from this software without specific prior written permission.

// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND
// ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL <COPYRIGHT HOLDER> BE LIABLE FOR ANY
// DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
// (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES;
// LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND
// ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
// (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS
// SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

type mmapSource struct {
	data   []byte
	handle windows.Handle
	f      *os.File
}

// NewMmap maps f read-only for its full size and returns a Source over
// it.
func NewMmap(f *os.File, size uint) (Source, error) {
	if size == 0 {
		return &mmapSource{f: f}, nil
	}

	handle, err := windows.CreateFileMapping(
		windows.Handle(f.Fd()),
		nil,
		windows.PAGE_READONLY,
		0,
		uint32(size),
		nil,
	)
	if err != nil {
		return nil, os.NewSyscallError("CreateFileMapping", err)
	}

	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(handle)
		return nil, os.NewSyscallError("MapViewOfFile", err)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &mmapSource{data: data, handle: handle, f: f}, nil
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
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(s.data)))
		if uerr := windows.UnmapViewOfFile(addr); uerr != nil {
			err = os.NewSyscallError("UnmapViewOfFile", uerr)
		}
		if cerr := windows.CloseHandle(s.handle); cerr != nil && err == nil {
			err = os.NewSyscallError("CloseHandle", cerr)
		}
	}
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
