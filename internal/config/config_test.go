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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultCacheCapacityBytes(t *testing.T) {
	c := Default()
	want := int64(20) << 30
	if got := c.CacheCapacityBytes(); got != want {
		t.Fatalf("CacheCapacityBytes() = %d; want %d", got, want)
	}
}

func TestLoadOverridesOnlyGivenKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "cache_size: 5\nlisten_addr: 0.0.0.0:7000\n"
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheSizeGiB != 5 {
		t.Fatalf("CacheSizeGiB = %d; want 5", cfg.CacheSizeGiB)
	}
	if cfg.ListenAddr != "0.0.0.0:7000" {
		t.Fatalf("ListenAddr = %q; want 0.0.0.0:7000", cfg.ListenAddr)
	}
	// untouched keys keep their defaults
	if cfg.FileExtension != "parquet" {
		t.Fatalf("FileExtension = %q; want parquet", cfg.FileExtension)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("ReadTimeout = %v; want 5s", cfg.ReadTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
