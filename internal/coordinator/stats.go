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

package coordinator

import "sync/atomic"

// Stats accumulates coordinator-wide counters, accessed atomically so
// that they can be read from outside the coordinator lock (e.g. for
// telemetry).
type Stats struct {
	hits, misses, evictions, failures int64
}

func (s *Stats) hit()      { atomic.AddInt64(&s.hits, 1) }
func (s *Stats) miss()     { atomic.AddInt64(&s.misses, 1) }
func (s *Stats) evict()    { atomic.AddInt64(&s.evictions, 1) }
func (s *Stats) failure()  { atomic.AddInt64(&s.failures, 1) }

// Hits returns the number of Request calls satisfied immediately from
// an already-resident dataset.
func (s *Stats) Hits() int64 { return atomic.LoadInt64(&s.hits) }

// Misses returns the number of Request calls not served immediately
// from a resident dataset: those that scheduled or queued a load, and
// those that joined a load already in flight.
func (s *Stats) Misses() int64 { return atomic.LoadInt64(&s.misses) }

// Evictions returns the number of resident datasets reclaimed to make
// room for pending demand.
func (s *Stats) Evictions() int64 { return atomic.LoadInt64(&s.evictions) }

// Failures returns the number of datasets that failed to load.
func (s *Stats) Failures() int64 { return atomic.LoadInt64(&s.failures) }
