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

// Package registry maps dataset identifiers to the descriptor of their
// resident shared-memory segment, and tracks the running resident byte
// total. It carries no reference count of its own; pin accounting
// lives in the coordinator's residency priority queue.
//
// All mutation is the caller's responsibility to serialize: the
// registry is only ever touched while the coordinator holds its
// single mutex.
package registry

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dchest/siphash"
	"golang.org/x/exp/maps"
)

// Descriptor is the published record for a resident dataset: the
// handle a client needs to attach the shared region and decode it.
type Descriptor struct {
	// Name is the shared-memory segment name, usable by clients to
	// re-attach (e.g. "/shm_20240102_trades").
	Name string
	// Shape is the ordered tuple of positive integers describing the
	// element layout, e.g. [3, 100] for a 3xN column-major table.
	Shape []int
	// Dtype is the agreed element type tag, e.g. "float64", "int32",
	// "object".
	Dtype string
	// Bytes is the resident byte size of the segment.
	Bytes int64
}

// String renders the descriptor in the wire syntax
// "<segment_name>|<shape>|<dtype>", where shape is rendered as the
// literal "(d1,d2,...,dn)" form.
func (d Descriptor) String() string {
	parts := make([]string, len(d.Shape))
	for i, s := range d.Shape {
		parts[i] = strconv.Itoa(s)
	}
	shape := "(" + strings.Join(parts, ",") + ")"
	return fmt.Sprintf("%s|%s|%s", d.Name, shape, d.Dtype)
}

// Registry maps dataset identifiers to their resident descriptors and
// tracks the total resident byte count. A Registry is not safe for
// concurrent use on its own; callers serialize access (the coordinator
// does so with its single mutex).
type Registry struct {
	byID  map[string]Descriptor
	usage int64 // bytes; kept in sync with byID under the caller's lock
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[string]Descriptor)}
}

// Lookup returns the descriptor for id, if resident.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Contains reports whether id is resident.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Publish inserts d under id, adding d.Bytes to the resident total.
// Insertion happens only once the loader has fully written the
// segment. Publishing over an already-resident id replaces its
// descriptor and its bytes in the resident total.
func (r *Registry) Publish(id string, d Descriptor) {
	if old, ok := r.byID[id]; ok {
		r.usage -= old.Bytes
	}
	r.byID[id] = d
	r.usage += d.Bytes
	atomic.StoreInt64(&r.usage, r.usage)
}

// Remove deletes id from the registry, subtracting its size from the
// resident total, and returns the removed descriptor.
func (r *Registry) Remove(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	delete(r.byID, id)
	r.usage -= d.Bytes
	atomic.StoreInt64(&r.usage, r.usage)
	return d, true
}

// Usage returns the current resident byte total (sum of resident
// descriptor sizes).
func (r *Registry) Usage() int64 {
	return atomic.LoadInt64(&r.usage)
}

// Len returns the number of resident datasets.
func (r *Registry) Len() int { return len(r.byID) }

// IDs returns a snapshot of the currently resident identifiers, used by
// Coordinator.Shutdown to enumerate segments to unlink.
func (r *Registry) IDs() []string {
	return maps.Keys(r.byID)
}

// shardK0 and shardK1 are fixed keys; they only need to be stable
// for the lifetime of one daemon instance, not across restarts, since
// they merely bucket identifiers for diagnostic grouping.
var shardK0, shardK1 = uint64(0x736e656c6c657200), uint64(0x6d6d2d6361636865)

// Shard returns a stable small-integer bucket for id, used to group
// log lines when scanning large numbers of resident or orphaned
// segments without printing one line per identifier. Bucket sizes stay
// balanced regardless of identifier naming conventions.
func Shard(id string, buckets int) int {
	if buckets <= 1 {
		return 0
	}
	h := siphash.Hash(shardK0, shardK1, []byte(id))
	return int(h % uint64(buckets))
}
