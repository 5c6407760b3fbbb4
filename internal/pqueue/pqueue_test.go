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

package pqueue

import (
	"fmt"
	"math/rand"
	"testing"

	"golang.org/x/exp/slices"
)

func TestQueueMinOrdering(t *testing.T) {
	q := New[string](Min)
	const n = 1000
	for i := 0; i < n; i++ {
		q.InsertOrUpdate(fmt.Sprintf("k%d", i), int64(rand.Intn(100)))
	}
	var weights []int64
	for !q.IsEmpty() {
		_, w, ok := q.Pop()
		if !ok {
			t.Fatal("Pop reported empty while IsEmpty was false")
		}
		weights = append(weights, w)
	}
	if !slices.IsSorted(weights) {
		t.Fatal("min-heap did not pop in ascending order")
	}
}

func TestQueueMaxOrdering(t *testing.T) {
	q := New[string](Max)
	const n = 1000
	for i := 0; i < n; i++ {
		q.InsertOrUpdate(fmt.Sprintf("k%d", i), int64(rand.Intn(100)))
	}
	var weights []int64
	for !q.IsEmpty() {
		_, w, ok := q.Pop()
		if !ok {
			t.Fatal("Pop reported empty while IsEmpty was false")
		}
		weights = append(weights, -w)
	}
	if !slices.IsSorted(weights) {
		t.Fatal("max-heap did not pop in descending order")
	}
}

func TestQueueFIFOTiebreak(t *testing.T) {
	q := New[string](Min)
	q.InsertOrUpdate("a", 1)
	q.InsertOrUpdate("b", 1)
	q.InsertOrUpdate("c", 1)
	for _, want := range []string{"a", "b", "c"} {
		k, _, ok := q.Pop()
		if !ok || k != want {
			t.Fatalf("Pop() = %q, %v; want %q", k, ok, want)
		}
	}
}

func TestQueueLazyDeletion(t *testing.T) {
	q := New[string](Min)
	q.InsertOrUpdate("a", 5)
	q.InsertOrUpdate("a", 1) // should supersede, not duplicate
	if q.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", q.Len())
	}
	k, w, ok := q.Peek()
	if !ok || k != "a" || w != 1 {
		t.Fatalf("Peek() = %q, %d, %v; want a, 1, true", k, w, ok)
	}
	q.Remove("a")
	if q.Contains("a") {
		t.Fatal("Contains(a) after Remove(a)")
	}
	if !q.IsEmpty() {
		t.Fatal("IsEmpty() false after removing only entry")
	}
}

func TestQueueAdjustResidency(t *testing.T) {
	q := New[string](Min)
	q.Adjust("x", 1) // absent -> created at 0, then +1
	if w, _ := q.Weight("x"); w != 1 {
		t.Fatalf("weight = %d; want 1", w)
	}
	q.Adjust("x", -1)
	if w, _ := q.Weight("x"); w != 0 {
		t.Fatalf("weight = %d; want 0", w)
	}
}

func TestQueueAdjustResidencyPanicsBelowZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic decrementing pin below 0")
		}
	}()
	q := New[string](Min)
	q.Adjust("x", -1)
}

func TestQueueAdjustDemandSaturatesAtZero(t *testing.T) {
	q := New[string](Max)
	q.Adjust("x", 1)
	q.Adjust("x", -5)
	w, ok := q.Weight("x")
	if !ok || w != 0 {
		t.Fatalf("weight = %d, %v; want 0, true", w, ok)
	}
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := New[string](Min)
	q.InsertOrUpdate("a", 1)
	k1, _, _ := q.Peek()
	k2, _, _ := q.Peek()
	if k1 != k2 || q.Len() != 1 {
		t.Fatal("Peek mutated the queue")
	}
}
