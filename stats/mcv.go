// Copyright 2024 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import "container/heap"

// MCVEntry is one value/frequency pair in a most-common-values table.
type MCVEntry struct {
	Value float64
	Freq  float64 // fraction of sampled rows equal to Value
}

// MCV is a frequency-sorted list of the heaviest values in a sample, bounded
// by (minFrequency, maxSize) thresholds (§4.4).
type MCV struct {
	Entries []MCVEntry
}

// BuildMCV scans value counts (keyed by the caller's scalar projection) and
// keeps up to maxSize entries whose frequency is at least minFrequency.
func BuildMCV(counts map[float64]int, total int, minFrequency float64, maxSize int) MCV {
	if total == 0 {
		return MCV{}
	}
	h := &mcvHeap{}
	heap.Init(h)
	for v, c := range counts {
		freq := float64(c) / float64(total)
		if freq < minFrequency {
			continue
		}
		heap.Push(h, mcvItem{value: v, count: c})
		if h.Len() > maxSize {
			heap.Pop(h)
		}
	}
	entries := make([]MCVEntry, h.Len())
	for i := len(entries) - 1; i >= 0; i-- {
		it := heap.Pop(h).(mcvItem)
		entries[i] = MCVEntry{Value: it.value, Freq: float64(it.count) / float64(total)}
	}
	return MCV{Entries: entries}
}

// Selectivity returns the MCV's estimate for v if v is a tracked value, and
// ok=false otherwise (the caller should fall back to the histogram's
// residual mass).
func (m MCV) Selectivity(v float64) (freq float64, ok bool) {
	for _, e := range m.Entries {
		if e.Value == v {
			return e.Freq, true
		}
	}
	return 0, false
}

// ResidualMass returns 1 - sum(MCV.freq), the probability mass the histogram
// must account for once the MCV's listed values are excluded.
func (m MCV) ResidualMass() float64 {
	sum := 0.0
	for _, e := range m.Entries {
		sum += e.Freq
	}
	return 1 - sum
}

// mcvItem/mcvHeap implement a min-heap on count, so the lightest tracked
// value is evicted first once the heap exceeds maxSize — the same shape as
// dolt's sqle/stats mcvHeap.
type mcvItem struct {
	value float64
	count int
}

type mcvHeap []mcvItem

func (h mcvHeap) Len() int           { return len(h) }
func (h mcvHeap) Less(i, j int) bool { return h[i].count < h[j].count }
func (h mcvHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mcvHeap) Push(x any)        { *h = append(*h, x.(mcvItem)) }
func (h *mcvHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
