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

//go:build !linux

package loader

import (
	"fmt"
	"os"
	"path/filepath"
)

// portableBackend is the non-Linux fallback: it has no access to a
// real POSIX shared-memory namespace, so it backs each "segment" with
// a regular file under Dir and keeps the mapping entirely in a plain
// Go byte slice. Clients on such platforms cannot attach the region
// cross-process; this backend exists so the daemon still runs (e.g.
// for tests) on platforms without /dev/shm.
type portableBackend struct {
	Dir string
}

// NewBackend returns the platform Backend. Dir defaults to os.TempDir.
func NewBackend() Backend {
	return &portableBackend{Dir: os.TempDir()}
}

type portableSegment struct {
	path string
	mem  []byte
}

func (s *portableSegment) Bytes() []byte { return s.mem }

func (s *portableSegment) Close() error {
	return os.WriteFile(s.path, s.mem, 0600)
}

func (b *portableBackend) CreateOrAdopt(name string, size int64) (WritableSegment, error) {
	path := filepath.Join(b.Dir, name[1:])
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat segment file %s: %w", path, err)
		}
		if err := os.WriteFile(path, make([]byte, size), 0600); err != nil {
			return nil, fmt.Errorf("create segment file %s: %w", path, err)
		}
	}
	return &portableSegment{path: path, mem: make([]byte, size)}, nil
}

func (b *portableBackend) Unlink(name string) error {
	path := filepath.Join(b.Dir, name[1:])
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
