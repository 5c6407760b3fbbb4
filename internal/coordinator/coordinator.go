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

// Package coordinator implements the cache coordinator: the state
// machine binding request admission, asynchronous loading,
// reference-counted pinning, and capacity-bounded eviction behind a
// single mutex. Callers never wait inside the coordinator for a load to
// finish; a request that cannot be satisfied immediately is handed off
// to the loader and the caller polls for completion. Handing off a job
// waits, with the lock released, while the loader's job queue is full.
package coordinator

import (
	"sync"

	"github.com/cnlhl/mm-cache/internal/cachelog"
	"github.com/cnlhl/mm-cache/internal/loader"
	"github.com/cnlhl/mm-cache/internal/pqueue"
	"github.com/cnlhl/mm-cache/internal/registry"
)

// Status is the outcome of a Request or Check call.
type Status int

const (
	// Ready means the dataset is resident; its Descriptor is valid.
	Ready Status = iota
	// Wait means the dataset is not yet resident; the caller should
	// poll via Check.
	Wait
	// Unknown means the dataset has no state at all: it was never
	// requested, or a prior load attempt failed and was discarded.
	Unknown
)

// Unlinker removes a named shared-memory segment from the OS
// namespace. loader.Backend satisfies this interface; it is declared
// here so the coordinator depends only on Unlink rather than on the
// whole Backend, whose segment creation it never uses.
type Unlinker interface {
	Unlink(name string) error
}

// Enqueuer schedules a dataset identifier to be loaded in the
// background. *loader.Loader satisfies this interface.
type Enqueuer interface {
	Enqueue(id string)
}

// Stater resolves the on-disk byte size of a dataset, used as the
// admission-time reservation proxy before the actual resident size is
// known. loader.Source satisfies this interface.
type Stater interface {
	Stat(id string) (int64, error)
}

// Coordinator is the single-mutex admission/eviction state machine. It
// must be constructed with New and wired to a loader.Loader via
// SetEnqueuer before serving requests; the loader in turn is
// constructed with the Coordinator as its Publisher, so the two are
// wired together by the caller (see cmd/datacached/main.go).
type Coordinator struct {
	mu sync.Mutex

	registry  *registry.Registry
	residency *pqueue.Queue[string] // min-heap on pin count
	demand    *pqueue.Queue[string] // max-heap on pending-request count

	// reserved tracks the admission-time byte reservation for each
	// identifier currently scheduled (in residency, not yet in
	// registry); reservedTotal is its running sum. Together with
	// registry.Usage() this gives current cache usage at any point.
	reserved      map[string]int64
	reservedTotal int64

	capacity int64
	stat     Stater
	enqueue  Enqueuer
	unlink   Unlinker
	log      cachelog.Logger

	Stats Stats
}

// New constructs a Coordinator with the given capacity (bytes). The
// Stater and Unlinker are typically backed by the same loader.Source
// and loader.Backend passed to loader.New; Enqueuer is set afterwards
// via SetEnqueuer once the loader.Loader exists (the two are
// constructed in a cycle: the loader needs a Publisher, which is this
// Coordinator).
func New(capacityBytes int64, stat Stater, unlink Unlinker, log cachelog.Logger) *Coordinator {
	if log == nil {
		log = cachelog.Discard
	}
	return &Coordinator{
		registry:  registry.New(),
		residency: pqueue.New[string](pqueue.Min),
		demand:    pqueue.New[string](pqueue.Max),
		reserved:  make(map[string]int64),
		capacity:  capacityBytes,
		stat:      stat,
		unlink:    unlink,
		log:       log,
	}
}

// SetEnqueuer wires the background loader once it has been
// constructed. Must be called before the first Request.
func (c *Coordinator) SetEnqueuer(e Enqueuer) {
	c.enqueue = e
}

// usage returns the current cache usage: resident bytes plus
// outstanding reservations for scheduled-but-not-yet-published
// datasets. Caller must hold c.mu.
func (c *Coordinator) usage() int64 {
	return c.registry.Usage() + c.reservedTotal
}

// Request admits id into the cache. It returns Ready with the
// descriptor if already resident, or Wait if the dataset must be
// loaded or is already in flight; the caller should poll via Check.
func (c *Coordinator) Request(id string) (Status, registry.Descriptor) {
	c.mu.Lock()
	var toEnqueue []string

	if d, ok := c.registry.Lookup(id); ok {
		c.residency.Adjust(id, 1)
		c.Stats.hit()
		c.mu.Unlock()
		return Ready, d
	}

	if c.residency.Contains(id) {
		// scheduled but not yet published: pin it like a hit, but it
		// isn't resident yet.
		c.residency.Adjust(id, 1)
		c.Stats.miss()
		c.mu.Unlock()
		return Wait, registry.Descriptor{}
	}

	c.Stats.miss()
	reserveBytes, _ := c.stat.Stat(id) // a stat-time failure surfaces through the loader's own Stat call
	// An id already sitting in the demand heap is only ever admitted by
	// reclaimAndAdmit's demand-ordered pass, never by a duplicate
	// Request taking a direct-admission shortcut here: otherwise two
	// concurrent Requests for the same under-capacity-but-not-yet-admitted
	// id could each independently schedule it.
	if !c.demand.Contains(id) && c.usage()+reserveBytes <= c.capacity {
		c.schedule(id, reserveBytes, 1)
		toEnqueue = append(toEnqueue, id)
	} else {
		c.demand.Adjust(id, 1)
		toEnqueue = c.reclaimAndAdmit()
	}

	c.mu.Unlock()
	c.flush(toEnqueue)
	return Wait, registry.Descriptor{}
}

// Check reports the current status of id without pinning it.
func (c *Coordinator) Check(id string) (Status, registry.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.registry.Lookup(id); ok {
		return Ready, d
	}
	if c.residency.Contains(id) || c.demand.Contains(id) {
		return Wait, registry.Descriptor{}
	}
	return Unknown, registry.Descriptor{}
}

// Complete releases one pin held on id.
func (c *Coordinator) Complete(id string) error {
	c.mu.Lock()
	if !c.residency.Contains(id) {
		c.mu.Unlock()
		return ErrUnknownIdentifier
	}
	w, _ := c.residency.Weight(id)
	if w == 0 {
		c.mu.Unlock()
		return ErrNotPinned
	}
	c.residency.Adjust(id, -1)
	toEnqueue := c.reclaimAndAdmit()
	c.mu.Unlock()
	c.flush(toEnqueue)
	return nil
}

// schedule moves id into the Scheduled(weight) state: it reserves
// reserveBytes against cache_usage and adds it to the residency heap.
// Caller must hold c.mu.
func (c *Coordinator) schedule(id string, reserveBytes int64, weight int64) {
	c.reserved[id] = reserveBytes
	c.reservedTotal += reserveBytes
	c.residency.InsertOrUpdate(id, weight)
}

// reclaimAndAdmit evicts unpinned residents while demand is
// outstanding, then admits from the demand heap while capacity allows.
// Caller must hold c.mu. It returns the identifiers newly scheduled
// for loading, which the caller must Enqueue after releasing the
// lock.
func (c *Coordinator) reclaimAndAdmit() []string {
	// Evict unreferenced residents while there is demand pressure.
	for !c.demand.IsEmpty() {
		id, w, ok := c.residency.Peek()
		if !ok || w != 0 {
			break
		}
		c.residency.Pop()
		d, found := c.registry.Remove(id)
		if found {
			if err := c.unlink.Unlink(d.Name); err != nil {
				c.log.Printf("coordinator: unlink %s: %s", d.Name, err)
			}
			c.Stats.evict()
		}
	}

	var toEnqueue []string
	for !c.demand.IsEmpty() && c.usage() < c.capacity {
		id, count, ok := c.demand.Pop()
		if !ok {
			break
		}
		reserveBytes, _ := c.stat.Stat(id)
		c.schedule(id, reserveBytes, count)
		toEnqueue = append(toEnqueue, id)
	}
	return toEnqueue
}

// flush enqueues jobs with the coordinator lock released, since
// Enqueue can block on a full loader queue and no coordinator
// operation may suspend while holding the lock.
func (c *Coordinator) flush(ids []string) {
	for _, id := range ids {
		c.enqueue.Enqueue(id)
	}
}

// Published implements loader.Publisher. It is invoked by the loader
// after materializing id into a segment.
func (c *Coordinator) Published(id string, d registry.Descriptor) {
	c.mu.Lock()
	if reserveBytes, ok := c.reserved[id]; ok {
		c.reservedTotal -= reserveBytes
		delete(c.reserved, id)
	}
	c.registry.Publish(id, d)
	// The residency heap entry's weight already equals the pin count
	// accumulated by Requests received while this id was scheduled;
	// nothing further to update there.
	toEnqueue := c.reclaimAndAdmit()
	c.mu.Unlock()
	c.flush(toEnqueue)
}

// Failed implements loader.Publisher. It is invoked when id could not
// be loaded: the scheduled entry is discarded and subsequent Check
// calls return Unknown.
func (c *Coordinator) Failed(id string, err error) {
	c.log.Printf("coordinator: load failed for %s: %s", id, err)
	c.mu.Lock()
	c.residency.Remove(id)
	if reserveBytes, ok := c.reserved[id]; ok {
		c.reservedTotal -= reserveBytes
		delete(c.reserved, id)
	}
	c.Stats.failure()
	toEnqueue := c.reclaimAndAdmit()
	c.mu.Unlock()
	c.flush(toEnqueue)
}

// Shutdown unlinks every resident segment and clears the registry
// under the coordinator lock, regardless of pin count. It does not
// stop the loader; the caller is responsible for that before calling
// Shutdown.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.registry.IDs()
	const shardBuckets = 16
	unlinked := make([]int, shardBuckets)
	total := 0
	for _, id := range ids {
		d, ok := c.registry.Remove(id)
		if !ok {
			continue
		}
		if err := c.unlink.Unlink(d.Name); err != nil {
			c.log.Printf("coordinator: shutdown unlink %s: %s", d.Name, err)
			continue
		}
		unlinked[registry.Shard(id, shardBuckets)]++
		total++
	}
	c.log.Printf("coordinator: shutdown unlinked %d segments across %d shards", total, shardBuckets)
	for shard, n := range unlinked {
		if n > 0 {
			c.log.Printf("coordinator: shard %d: %d segments unlinked", shard, n)
		}
	}
	for !c.residency.IsEmpty() {
		c.residency.Pop()
	}
	for !c.demand.IsEmpty() {
		c.demand.Pop()
	}
}

var _ loader.Publisher = (*Coordinator)(nil)
