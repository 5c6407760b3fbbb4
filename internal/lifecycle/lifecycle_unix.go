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

//go:build !windows

package lifecycle

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Acquire opens (creating if necessary) the file at path and takes a
// non-blocking exclusive flock on it. It returns ErrAlreadyRunning if
// another process already holds the lock.
func Acquire(path string) (*Guard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lifecycle: flock: %w", err)
	}
	return &Guard{path: path, f: f}, nil
}

// Release drops the advisory lock and removes the lock file. It should
// be called only after every resident segment has been unlinked.
func (g *Guard) Release() error {
	if err := unix.Flock(int(g.f.Fd()), unix.LOCK_UN); err != nil {
		g.f.Close()
		return fmt.Errorf("lifecycle: unlock: %w", err)
	}
	if err := g.f.Close(); err != nil {
		return fmt.Errorf("lifecycle: close lock file: %w", err)
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lifecycle: remove lock file: %w", err)
	}
	return nil
}
