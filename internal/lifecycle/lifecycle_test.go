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

package lifecycle

import (
	"path/filepath"
	"testing"
)

func TestAcquireSecondInstanceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mm-cache.lock")

	g1, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer g1.Release()

	if _, err := Acquire(path); err != ErrAlreadyRunning {
		t.Fatalf("second Acquire = %v; want ErrAlreadyRunning", err)
	}
}

func TestReleaseThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mm-cache.lock")

	g1, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	g2, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	if err := g2.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}
