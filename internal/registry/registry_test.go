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

package registry

import "testing"

func TestPublishAndLookup(t *testing.T) {
	r := New()
	d := Descriptor{Name: "/shm_A", Shape: []int{3, 100}, Dtype: "float64", Bytes: 2400}
	r.Publish("A", d)

	got, ok := r.Lookup("A")
	if !ok {
		t.Fatal("Lookup(A) after Publish: not found")
	}
	if got != d {
		t.Fatalf("Lookup(A) = %+v; want %+v", got, d)
	}
	if r.Usage() != 2400 {
		t.Fatalf("Usage() = %d; want 2400", r.Usage())
	}
}

func TestPublishOverExistingReplacesUsage(t *testing.T) {
	r := New()
	r.Publish("A", Descriptor{Name: "/shm_A", Bytes: 100})
	r.Publish("A", Descriptor{Name: "/shm_A", Bytes: 50})
	if r.Usage() != 50 {
		t.Fatalf("Usage() after republish = %d; want 50", r.Usage())
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Publish("A", Descriptor{Name: "/shm_A", Bytes: 10})
	r.Publish("B", Descriptor{Name: "/shm_B", Bytes: 20})

	d, ok := r.Remove("A")
	if !ok || d.Name != "/shm_A" {
		t.Fatalf("Remove(A) = %+v, %v", d, ok)
	}
	if r.Contains("A") {
		t.Fatal("A still present after Remove")
	}
	if r.Usage() != 20 {
		t.Fatalf("Usage() after Remove(A) = %d; want 20", r.Usage())
	}
	if _, ok := r.Remove("A"); ok {
		t.Fatal("second Remove(A) should report not found")
	}
}

func TestDescriptorStringWireFormat(t *testing.T) {
	d := Descriptor{Name: "/shm_trades", Shape: []int{3, 100}, Dtype: "float64"}
	want := "/shm_trades|(3,100)|float64"
	if got := d.String(); got != want {
		t.Fatalf("String() = %q; want %q", got, want)
	}
}

func TestDescriptorStringEmptyShape(t *testing.T) {
	d := Descriptor{Name: "/shm_x", Shape: nil, Dtype: "object"}
	want := "/shm_x|()|object"
	if got := d.String(); got != want {
		t.Fatalf("String() = %q; want %q", got, want)
	}
}

func TestIDsSnapshot(t *testing.T) {
	r := New()
	r.Publish("A", Descriptor{Name: "/shm_A"})
	r.Publish("B", Descriptor{Name: "/shm_B"})
	ids := r.IDs()
	if len(ids) != 2 {
		t.Fatalf("IDs() returned %d entries; want 2", len(ids))
	}
}

func TestShardIsStableAndBounded(t *testing.T) {
	const buckets = 16
	for _, id := range []string{"A", "B", "some_long_dataset_name_2024"} {
		first := Shard(id, buckets)
		second := Shard(id, buckets)
		if first != second {
			t.Fatalf("Shard(%q) not stable: %d then %d", id, first, second)
		}
		if first < 0 || first >= buckets {
			t.Fatalf("Shard(%q) = %d out of range [0,%d)", id, first, buckets)
		}
	}
}

func TestShardSingleBucket(t *testing.T) {
	if got := Shard("anything", 1); got != 0 {
		t.Fatalf("Shard with 1 bucket = %d; want 0", got)
	}
	if got := Shard("anything", 0); got != 0 {
		t.Fatalf("Shard with 0 buckets = %d; want 0", got)
	}
}
