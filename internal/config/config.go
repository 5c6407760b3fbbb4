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

// Package config loads the cache daemon's single keyed configuration
// document: a YAML (or JSON) file supplying the daemon's cache size,
// data directory, listen address, and related settings, each with a
// built-in default.
package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Config is the single configuration document for the daemon.
type Config struct {
	// CacheSizeGiB is the capacity ceiling in GiB; interpreted as
	// value * 2^30 bytes. Default 20.
	CacheSizeGiB int64 `json:"cache_size"`
	// DataPath is the directory holding dataset files. Default
	// "/home/<user>/converted_parquet".
	DataPath string `json:"data_path"`
	// FileExtension is the configurable dataset file extension, e.g.
	// "parquet". Default "parquet".
	FileExtension string `json:"file_extension"`
	// ListenAddr is the loopback TCP address the request server binds
	// to. Default "127.0.0.1:6000".
	ListenAddr string `json:"listen_addr"`
	// LockPath is the fixed path for the lifecycle guard's advisory
	// lock. Default "datacache.lock".
	LockPath string `json:"lock_path"`
	// WorkerPool bounds the request server's connection-handler pool;
	// 0 selects runtime.NumCPU()*2.
	WorkerPool int `json:"worker_pool"`
	// ReadTimeout bounds how long a connection handler waits to read
	// one request line.
	ReadTimeout time.Duration `json:"read_timeout"`
	// PollInterval documents the client-side polling cadence; the
	// server does not enforce it, but exposes it so clients can
	// discover the intended cadence. Default 30s.
	PollInterval time.Duration `json:"poll_interval"`
}

// Default returns the configuration defaults.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/home/user"
	}
	return Config{
		CacheSizeGiB:  20,
		DataPath:      home + "/converted_parquet",
		FileExtension: "parquet",
		ListenAddr:    "127.0.0.1:6000",
		LockPath:      "datacache.lock",
		WorkerPool:    0,
		ReadTimeout:   5 * time.Second,
		PollInterval:  30 * time.Second,
	}
}

// CacheCapacityBytes returns the configured cache_size converted to
// bytes (value * 2^30).
func (c Config) CacheCapacityBytes() int64 {
	return c.CacheSizeGiB * (1 << 30)
}

// Load reads and parses a YAML configuration document at path, filling
// in any keys it omits with Default's values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
