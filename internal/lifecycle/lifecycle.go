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

// Package lifecycle implements single-instance enforcement for the
// cache daemon: an advisory exclusive lock on a fixed lock-file path.
// The signal-driven shutdown that stops the loader and unlinks segments
// before releasing the lock lives in cmd/datacached.
package lifecycle

import (
	"errors"
	"os"
)

// ErrAlreadyRunning means another process already holds the lock file,
// i.e. a second daemon instance tried to start with the same lock
// path.
var ErrAlreadyRunning = errors.New("lifecycle: another instance is already running")

// Guard holds the advisory exclusive lock that enforces single-daemon-
// instance semantics for a lock path. Acquire and Release are
// implemented per platform: lifecycle_unix.go uses a real flock,
// lifecycle_windows.go falls back to exclusive file creation.
type Guard struct {
	path string
	f    *os.File
}
