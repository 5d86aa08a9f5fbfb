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

package index

import (
	"container/heap"
	"context"
	"math"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// Metric names a vector distance function (§4.3.5).
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
	MetricDotProduct
)

// VectorQuery requests the top-K nearest neighbors of Target under Metric.
type VectorQuery struct {
	Target []float32
	K      int
	Metric Metric
}

func distance(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case MetricDotProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot // smaller is "closer" for a top-k min-heap
	default: // MetricCosine, range [0,2]
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 2
		}
		cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
		if cos > 1 {
			cos = 1
		} else if cos < -1 {
			cos = -1
		}
		return 1 - cos
	}
}

func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		out[i*4] = byte(bits >> 24)
		out[i*4+1] = byte(bits >> 16)
		out[i*4+2] = byte(bits >> 8)
		out[i*4+3] = byte(bits)
	}
	return out
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4])<<24 | uint32(b[i*4+1])<<16 | uint32(b[i*4+2])<<8 | uint32(b[i*4+3])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// FlatVectorIndex stores raw vectors under `I / <index> / <id> → vector-bytes`
// (§4.1, §4.3.5) and searches by exhaustive scan with a bounded top-k heap.
type FlatVectorIndex struct {
	desc      Descriptor
	subspace  keyspace.Subspace
	reflector kv.FieldReflector
	dim       int
}

// NewFlatVectorIndex constructs a brute-force vector index over a single
// KeyPaths[0] field expected to hold a []float32 (or []float64) vector of
// the given dimension.
func NewFlatVectorIndex(desc Descriptor, subspace keyspace.Subspace, reflector kv.FieldReflector, dim int) *FlatVectorIndex {
	return &FlatVectorIndex{desc: desc, subspace: subspace, reflector: reflector, dim: dim}
}

func (f *FlatVectorIndex) vectorOf(typeName string, record any) ([]float32, bool) {
	if record == nil || len(f.desc.KeyPaths) == 0 {
		return nil, false
	}
	field, ok := f.reflector.KeyPathField(typeName, f.desc.KeyPaths[0])
	if !ok {
		return nil, false
	}
	v, ok := f.reflector.FieldValue(typeName, record, field)
	if !ok {
		return nil, false
	}
	return toFloat32Slice(v)
}

func toFloat32Slice(v any) ([]float32, bool) {
	switch x := v.(type) {
	case []float32:
		return x, true
	case []float64:
		out := make([]float32, len(x))
		for i, f := range x {
			out[i] = float32(f)
		}
		return out, true
	default:
		return nil, false
	}
}

func (f *FlatVectorIndex) entryKey(itemID keyspace.Tuple) []byte {
	return f.subspace.Pack(itemID)
}

// Update is idempotent when old == new.
func (f *FlatVectorIndex) Update(ctx context.Context, tx kv.Transaction, typeName string, itemID keyspace.Tuple, old, new any) error {
	oldV, oldOK := f.vectorOf(typeName, old)
	newV, newOK := f.vectorOf(typeName, new)

	if newOK && len(newV) != f.dim {
		return ErrVectorDimensionMismatch
	}

	if oldOK && !newOK {
		return tx.Clear(ctx, f.entryKey(itemID))
	}
	if newOK {
		return tx.SetValue(ctx, f.entryKey(itemID), encodeVector(newV))
	}
	return nil
}

type flatCandidate struct {
	entry Entry
	dist  float64
}

// Search performs an exhaustive scan, maintaining a bounded max-heap of the
// best k candidates seen so far (§4.3.5). Dimension mismatch and k<=0 are
// rejected up front.
func (f *FlatVectorIndex) Search(ctx context.Context, tx kv.Transaction, query any) (EntryIterator, error) {
	q := query.(VectorQuery)
	if q.K <= 0 {
		return nil, ErrInvalidK
	}
	if len(q.Target) != f.dim {
		return nil, ErrVectorDimensionMismatch
	}

	begin, end := f.subspace.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	// Max-heap on distance: worst candidate at the top so it can be evicted
	// when a closer one arrives.
	h := &maxDistHeap{}
	heap.Init(h)

	for it.Next(ctx) {
		row := it.KeyValue()
		id, err := f.subspace.Unpack(row.Key)
		if err != nil {
			return nil, err
		}
		vec := decodeVector(row.Value)
		if len(vec) != f.dim {
			continue
		}
		d := distance(q.Metric, q.Target, vec)
		cand := flatCandidate{entry: Entry{ItemID: id, Payload: row.Value}, dist: d}
		if h.Len() < q.K {
			heap.Push(h, cand)
		} else if d < (*h)[0].dist {
			heap.Pop(h)
			heap.Push(h, cand)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	cands := make([]flatCandidate, h.Len())
	copy(cands, *h)
	sortByDistAsc(cands)

	entries := make([]Entry, len(cands))
	for i, c := range cands {
		entries[i] = c.entry
	}
	return newSliceEntryIterator(entries), nil
}

func sortByDistAsc(c []flatCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].dist < c[j-1].dist; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// maxDistHeap is a max-heap on distance so the worst (largest-distance)
// candidate sits at the root, letting Search evict it in O(log k).
type maxDistHeap []flatCandidate

func (h maxDistHeap) Len() int            { return len(h) }
func (h maxDistHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x interface{}) { *h = append(*h, x.(flatCandidate)) }
func (h *maxDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
