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

// Command datacached is the dataset cache daemon: it serves REQUEST,
// CHECK, and COMPLETE commands over a line protocol, loading datasets
// from disk into named shared-memory segments on demand.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cnlhl/mm-cache/internal/cachelog"
	"github.com/cnlhl/mm-cache/internal/config"
	"github.com/cnlhl/mm-cache/internal/coordinator"
	"github.com/cnlhl/mm-cache/internal/lifecycle"
	"github.com/cnlhl/mm-cache/internal/loader"
	"github.com/cnlhl/mm-cache/internal/server"
)

// stdLogger adapts the standard library's *log.Logger to
// cachelog.Logger by way of its promoted Printf method.
type stdLogger struct{ *log.Logger }

func main() {
	configPath := flag.String("config", "", "path to YAML configuration document (defaults applied if empty)")
	listenAddr := flag.String("listen", "", "override the configuration document's listen_addr")
	dataPath := flag.String("data", "", "override the configuration document's data_path")
	cacheSizeGiB := flag.Int64("cache-size", 0, "override the configuration document's cache_size (GiB)")
	flag.Parse()

	logger := stdLogger{log.New(os.Stderr, "datacached: ", log.LstdFlags)}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Printf("fatal: %s", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dataPath != "" {
		cfg.DataPath = *dataPath
	}
	if *cacheSizeGiB != 0 {
		cfg.CacheSizeGiB = *cacheSizeGiB
	}

	guard, err := lifecycle.Acquire(cfg.LockPath)
	if err != nil {
		logger.Printf("fatal: %s", err)
		os.Exit(1)
	}

	src := &loader.FileSource{Root: cfg.DataPath, Ext: cfg.FileExtension}
	backend := loader.NewBackend()

	coord := coordinator.New(cfg.CacheCapacityBytes(), src, backend, logger)
	ld := loader.New(src, backend, coord, logger, loader.Config{})
	coord.SetEnqueuer(ld)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Printf("fatal: listen %s: %s", cfg.ListenAddr, err)
		os.Exit(1)
	}

	srv := server.New(ln, coord, logger, server.Config{
		ReadTimeout: cfg.ReadTimeout,
		WorkerPool:  cfg.WorkerPool,
	})

	go func() {
		logger.Printf("listening on %s, data_path=%s cache_size=%dGiB", ln.Addr(), cfg.DataPath, cfg.CacheSizeGiB)
		if err := srv.Serve(); err != nil {
			logger.Printf("server stopped: %s", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	shutdown(srv, ld, coord, guard, logger)
}

// shutdown stops accepting connections, stops the loader so no new
// segment is created mid-teardown, unlinks every resident segment
// under the coordinator lock, then releases the advisory lock.
func shutdown(srv *server.Server, ld *loader.Loader, coord *coordinator.Coordinator, guard *lifecycle.Guard, logger cachelog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Close(); err != nil {
		logger.Printf("close listener: %s", err)
	}

	done := make(chan struct{})
	go func() {
		ld.Stop()
		coord.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Printf("shutdown deadline exceeded; exiting with loader/coordinator still draining")
		return
	}

	if err := guard.Release(); err != nil {
		logger.Printf("release lock: %s", err)
	}
}
