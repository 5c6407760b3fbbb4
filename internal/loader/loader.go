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

// Package loader implements the loader worker: a single background
// goroutine that consumes load jobs, reads datasets from the external
// store, materializes them into newly created shared-memory segments,
// and publishes them back to the coordinator. A single worker is
// sufficient; parallel loads would complicate capacity accounting for
// no benefit.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cnlhl/mm-cache/internal/cachelog"
	"github.com/cnlhl/mm-cache/internal/registry"
)

// Source resolves a dataset identifier to its on-disk representation.
// The on-disk file format and its parser are out of scope for this
// package; Source is the seam a real parser plugs into.
type Source interface {
	// Stat returns the on-disk byte size of id, used as the
	// reservation proxy at admission time.
	Stat(id string) (int64, error)
	// Load reads and decodes id, returning a contiguous byte buffer
	// along with the element shape and type tag.
	Load(id string) (data []byte, shape []int, dtype string, err error)
}

// Backend creates, maps, and unlinks the OS shared-memory segments that
// back resident datasets. Platform-specific implementations live in
// shm_linux.go (real POSIX shared memory under /dev/shm) and
// shm_other.go (a portable fallback backed by a regular file).
type Backend interface {
	// CreateOrAdopt opens (with exclusive-create semantics) or adopts
	// a pre-existing, possibly stale segment named name, resizing it
	// to at least size bytes, and returns a writable mapping.
	CreateOrAdopt(name string, size int64) (WritableSegment, error)
	// Unlink removes the named segment from the OS namespace. This is
	// safe even if another process still holds it mapped; the mapping
	// remains valid until unmapped.
	Unlink(name string) error
}

// WritableSegment is a writable mapping of a freshly created or
// adopted shared-memory segment.
type WritableSegment interface {
	// Bytes returns the full writable mapping.
	Bytes() []byte
	// Close unmaps the segment and releases the writable descriptor;
	// the segment itself persists in the OS namespace.
	Close() error
}

// Publisher is implemented by the cache coordinator. The loader never
// touches the coordinator's registry or heaps directly; it only
// reports outcomes through this interface, which the coordinator
// implements by taking its single mutex for the duration of the call.
type Publisher interface {
	// Published is invoked after a dataset has been fully
	// materialized into segment, with d.Bytes the real resident
	// size (used to reconcile the admission-time reservation).
	Published(id string, d registry.Descriptor)
	// Failed is invoked when a dataset could not be loaded; the
	// coordinator removes the scheduled entry and subsequent Check
	// calls must return Unknown.
	Failed(id string, err error)
}

// Config controls the loader's job queue.
type Config struct {
	// QueueSize bounds the number of outstanding load jobs; Enqueue
	// blocks once the queue is full, which back-pressures admission.
	QueueSize int
}

// Loader owns the single background worker goroutine.
type Loader struct {
	src     Source
	backend Backend
	pub     Publisher
	log     cachelog.Logger

	jobs chan string
	stop chan struct{}
	done chan struct{}
}

// New constructs a Loader and starts its worker goroutine. Call Stop to
// drain and shut it down.
func New(src Source, backend Backend, pub Publisher, log cachelog.Logger, cfg Config) *Loader {
	if log == nil {
		log = cachelog.Discard
	}
	qsize := cfg.QueueSize
	if qsize <= 0 {
		qsize = 64
	}
	l := &Loader{
		src:     src,
		backend: backend,
		pub:     pub,
		log:     log,
		jobs:    make(chan string, qsize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Enqueue schedules id to be loaded. The worker does not check whether
// id is already resident: every job it picks up is read, materialized
// and published, even for an id that is already registered. Enqueue
// must never be called while holding the coordinator lock, since it
// can block on a full queue.
func (l *Loader) Enqueue(id string) {
	select {
	case l.jobs <- id:
	case <-l.stop:
	}
}

// Stop signals the worker to exit and waits for it to do so. Jobs still
// queued are dropped; a job already in flight is not published, and the
// worker unlinks the segment that job had already created.
func (l *Loader) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Loader) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case id := <-l.jobs:
			l.load(id)
		}
	}
}

func (l *Loader) load(id string) {
	if _, err := l.src.Stat(id); err != nil {
		l.log.Printf("loader: stat %s: %s", id, err)
		l.pub.Failed(id, fmt.Errorf("stat dataset %s: %w", id, err))
		return
	}

	data, shape, dtype, err := l.src.Load(id)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		l.log.Printf("loader: load %s: %s", id, err)
		l.pub.Failed(id, fmt.Errorf("load dataset %s: %w", id, err))
		return
	}

	name := segmentName(id)
	seg, err := l.backend.CreateOrAdopt(name, int64(len(data)))
	if err != nil {
		l.log.Printf("loader: create segment %s: %s", name, err)
		l.pub.Failed(id, fmt.Errorf("create segment for %s: %w", id, err))
		return
	}
	copy(seg.Bytes(), data)
	if err := seg.Close(); err != nil {
		l.log.Printf("loader: unmap segment %s: %s", name, err)
		l.pub.Failed(id, fmt.Errorf("finalize segment for %s: %w", id, err))
		return
	}

	select {
	case <-l.stop:
		// stopping: the segment is never published, so nothing else
		// would unlink it.
		if err := l.backend.Unlink(name); err != nil {
			l.log.Printf("loader: unlink unpublished segment %s: %s", name, err)
		}
		return
	default:
	}

	l.pub.Published(id, registry.Descriptor{
		Name:  name,
		Shape: shape,
		Dtype: dtype,
		Bytes: int64(len(data)),
	})
}

// segmentName returns the POSIX shared-memory object name for id:
// "/shm_<identifier>".
func segmentName(id string) string {
	return "/shm_" + id
}

// FileSource is the production Source: it resolves "<root>/<id>.<ext>"
// on disk and reads the whole file into memory. Decode, if non-nil, is
// the real (out-of-scope) parser that derives shape and dtype from the
// raw bytes; if nil, the raw bytes are treated as an opaque 1-D buffer
// of type "object", which is sufficient for tests and for callers that
// only care about byte-identical round-tripping.
type FileSource struct {
	Root string
	Ext  string
	Decode func(data []byte) (shape []int, dtype string, err error)
}

func (f *FileSource) path(id string) string {
	ext := f.Ext
	if ext == "" {
		ext = "parquet"
	}
	return filepath.Join(f.Root, id+"."+ext)
}

// Stat implements Source.
func (f *FileSource) Stat(id string) (int64, error) {
	fi, err := os.Stat(f.path(id))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Load implements Source.
func (f *FileSource) Load(id string) ([]byte, []int, string, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		return nil, nil, "", err
	}
	if f.Decode == nil {
		return data, []int{len(data)}, "object", nil
	}
	shape, dtype, err := f.Decode(data)
	if err != nil {
		return nil, nil, "", err
	}
	return data, shape, dtype, nil
}
