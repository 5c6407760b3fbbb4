// Copyright (C) 2024 mm-cache authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//go:build linux

package loader

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// posixShmDir is where Linux exposes POSIX shared-memory objects as
// regular files; opening a file here has the same semantics as
// shm_open(3) (this is how glibc itself implements shm_open).
const posixShmDir = "/dev/shm"

// linuxBackend implements Backend using real POSIX shared memory.
// CreateOrAdopt mmaps a named /dev/shm-backed segment, reserving space
// up front with Fallocate; exclusive-create is attempted first so two
// racing loaders never both "win" the create.
type linuxBackend struct{}

// NewBackend returns the platform Backend.
func NewBackend() Backend { return linuxBackend{} }

type linuxSegment struct {
	f   *os.File
	mem []byte
}

func (s *linuxSegment) Bytes() []byte { return s.mem }

func (s *linuxSegment) Close() error {
	err := unix.Munmap(s.mem)
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// CreateOrAdopt implements Backend.
func (linuxBackend) CreateOrAdopt(name string, size int64) (WritableSegment, error) {
	path := posixShmDir + "/" + name[1:] // strip leading '/'

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		// stale segment left behind by a prior crashed run: build the
		// replacement under a scratch name and rename it over the
		// stale one, rather than truncating the existing file in
		// place, so a process still holding the old mapping never
		// observes a segment resized out from under it.
		return adoptStale(path, name, size)
	}
	if err != nil {
		return nil, fmt.Errorf("open shm segment %s: %w", name, err)
	}

	if err := growFile(f, size); err != nil {
		f.Close()
		return nil, fmt.Errorf("resize shm segment %s: %w", name, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap shm segment %s: %w", name, err)
	}
	return &linuxSegment{f: f, mem: mem[:size]}, nil
}

// adoptStale builds segment name's replacement in a uuid-named scratch
// file under posixShmDir and renames it over path. The uuid keeps the
// scratch name collision-free against any other scratch file left by a
// concurrently starting daemon instance probing the same data_path.
func adoptStale(path, name string, size int64) (WritableSegment, error) {
	scratch := posixShmDir + "/.scratch-" + uuid.New().String()
	f, err := os.OpenFile(scratch, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create scratch segment for %s: %w", name, err)
	}
	if err := growFile(f, size); err != nil {
		f.Close()
		os.Remove(scratch)
		return nil, fmt.Errorf("resize scratch segment for %s: %w", name, err)
	}
	if err := os.Rename(scratch, path); err != nil {
		f.Close()
		os.Remove(scratch)
		return nil, fmt.Errorf("adopt stale segment %s: %w", name, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap shm segment %s: %w", name, err)
	}
	return &linuxSegment{f: f, mem: mem[:size]}, nil
}

// growFile extends f to at least size bytes, preferring Fallocate
// (which reserves real backing pages) and falling back to a plain
// truncate, which zero-fills on Linux, when the shm filesystem doesn't
// support fallocate.
func growFile(f *os.File, size int64) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() >= size {
		return nil
	}
	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		return f.Truncate(size)
	}
	return nil
}

// Unlink implements Backend.
func (linuxBackend) Unlink(name string) error {
	path := posixShmDir + "/" + name[1:]
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
