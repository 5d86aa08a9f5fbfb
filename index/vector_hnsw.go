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
	"math/rand"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// HNSWConfig configures a hierarchical navigable small-world graph (§4.3.6).
type HNSWConfig struct {
	M                int // max neighbors per node above level 0
	MaxM0            int // max neighbors at level 0; defaults to 2*M
	EfConstruction   int
	EfSearch         int
	InlineNodeBudget int // ErrGraphTooLargeForInline trips above this node count
}

func (c HNSWConfig) maxM0() int {
	if c.MaxM0 > 0 {
		return c.MaxM0
	}
	return 2 * c.M
}

func (c HNSWConfig) budget() int {
	if c.InlineNodeBudget > 0 {
		return c.InlineNodeBudget
	}
	return 500
}

// HNSWIndex is the Maintainer+Searcher pair for a vector field indexed with
// a hierarchical navigable small-world graph.
type HNSWIndex struct {
	desc      Descriptor
	subspace  keyspace.Subspace
	reflector kv.FieldReflector
	dim       int
	metric    Metric
	cfg       HNSWConfig
	rng       *rand.Rand

	nodes keyspace.Subspace
	edges keyspace.Subspace
	meta  keyspace.Subspace
}

// NewHNSWIndex constructs an HNSW index. seed makes level assignment
// deterministic for a given index instance; callers that need reproducible
// graphs across restarts must persist and restore the seed themselves.
func NewHNSWIndex(desc Descriptor, subspace keyspace.Subspace, reflector kv.FieldReflector, dim int, metric Metric, cfg HNSWConfig, seed int64) *HNSWIndex {
	return &HNSWIndex{
		desc: desc, subspace: subspace, reflector: reflector, dim: dim, metric: metric, cfg: cfg,
		rng:   rand.New(rand.NewSource(seed)),
		nodes: subspace.Sub("n"),
		edges: subspace.Sub("e"),
		meta:  subspace.Sub("meta"),
	}
}

func (h *HNSWIndex) vectorOf(typeName string, record any) ([]float32, bool) {
	if record == nil || len(h.desc.KeyPaths) == 0 {
		return nil, false
	}
	field, ok := h.reflector.KeyPathField(typeName, h.desc.KeyPaths[0])
	if !ok {
		return nil, false
	}
	v, ok := h.reflector.FieldValue(typeName, record, field)
	if !ok {
		return nil, false
	}
	return toFloat32Slice(v)
}

type hnswMeta struct {
	entryID  keyspace.Tuple
	topLevel int
	numNodes int
}

func (h *HNSWIndex) readMeta(ctx context.Context, tx kv.Transaction) (hnswMeta, bool, error) {
	key := h.meta.Bytes()
	val, err := tx.GetValue(ctx, key)
	if err == kv.ErrNotFound {
		return hnswMeta{}, false, nil
	}
	if err != nil {
		return hnswMeta{}, false, err
	}
	t, err := keyspace.Root().Unpack(val)
	if err != nil {
		return hnswMeta{}, false, err
	}
	entry, _ := t[0].(keyspace.Tuple)
	top, _ := t[1].(int64)
	n, _ := t[2].(int64)
	return hnswMeta{entryID: entry, topLevel: int(top), numNodes: int(n)}, true, nil
}

func (h *HNSWIndex) writeMeta(ctx context.Context, tx kv.Transaction, m hnswMeta) error {
	val := keyspace.Root().Pack(keyspace.Tuple{m.entryID, int64(m.topLevel), int64(m.numNodes)})
	return tx.SetValue(ctx, h.meta.Bytes(), val)
}

func (h *HNSWIndex) nodeKey(id keyspace.Tuple) []byte {
	return h.nodes.Pack(keyspace.Tuple{id})
}

func encodeNodeValue(level int, vec []float32) []byte {
	out := make([]byte, 1+4*len(vec))
	out[0] = byte(level)
	copy(out[1:], encodeVector(vec))
	return out
}

func decodeNodeValue(b []byte) (level int, vec []float32) {
	return int(b[0]), decodeVector(b[1:])
}

func (h *HNSWIndex) getNode(ctx context.Context, tx kv.Transaction, id keyspace.Tuple) (level int, vec []float32, ok bool, err error) {
	val, err := tx.GetValue(ctx, h.nodeKey(id))
	if err == kv.ErrNotFound {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	l, v := decodeNodeValue(val)
	return l, v, true, nil
}

func (h *HNSWIndex) edgeKey(id keyspace.Tuple, level int, neighbor keyspace.Tuple) []byte {
	return h.edges.Pack(keyspace.Tuple{id, int64(level), neighbor})
}

func (h *HNSWIndex) neighbors(ctx context.Context, tx kv.Transaction, id keyspace.Tuple, level int) ([]keyspace.Tuple, error) {
	levelSub := h.edges.Sub(id, int64(level))
	begin, end := levelSub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []keyspace.Tuple
	for it.Next(ctx) {
		row := it.KeyValue()
		t, err := levelSub.Unpack(row.Key)
		if err != nil {
			return nil, err
		}
		neighbor, _ := t[0].(keyspace.Tuple)
		out = append(out, neighbor)
	}
	return out, it.Err()
}

func (h *HNSWIndex) setEdge(ctx context.Context, tx kv.Transaction, a keyspace.Tuple, level int, b keyspace.Tuple) error {
	return tx.SetValue(ctx, h.edgeKey(a, level, b), []byte{})
}

func (h *HNSWIndex) clearEdge(ctx context.Context, tx kv.Transaction, a keyspace.Tuple, level int, b keyspace.Tuple) error {
	return tx.Clear(ctx, h.edgeKey(a, level, b))
}

// randomLevel draws from the geometric distribution with parameter derived
// from M, per §4.3.6 invariant (i).
func (h *HNSWIndex) randomLevel() int {
	mL := 1.0 / math.Log(float64(maxInt(h.cfg.M, 2)))
	u := h.rng.Float64()
	if u <= 0 {
		u = 1e-12
	}
	return int(math.Floor(-math.Log(u) * mL))
}

type hnswCandidate struct {
	id   keyspace.Tuple
	dist float64
}

// nearHeap is a min-heap ordered by ascending distance, used as the explore
// frontier in searchLayer.
type nearHeap []hnswCandidate

func (h nearHeap) Len() int            { return len(h) }
func (h nearHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h nearHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nearHeap) Push(x interface{}) { *h = append(*h, x.(hnswCandidate)) }
func (h *nearHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// farHeap is a max-heap ordered by descending distance, used to hold the
// current best `ef` results so the worst can be evicted in O(log ef).
type farHeap []hnswCandidate

func (h farHeap) Len() int            { return len(h) }
func (h farHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h farHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *farHeap) Push(x interface{}) { *h = append(*h, x.(hnswCandidate)) }
func (h *farHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// searchLayer performs the standard HNSW greedy beam search at one layer,
// returning up to ef nodes nearest to query, sorted ascending by distance.
func (h *HNSWIndex) searchLayer(ctx context.Context, tx kv.Transaction, query []float32, entryPoints []keyspace.Tuple, ef, level int) ([]hnswCandidate, error) {
	visited := map[string]bool{}
	candidates := &nearHeap{}
	results := &farHeap{}
	heap.Init(candidates)
	heap.Init(results)

	for _, ep := range entryPoints {
		_, vec, ok, err := h.getNode(ctx, tx, ep)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		d := distance(h.metric, query, vec)
		visited[idKey(ep)] = true
		heap.Push(candidates, hnswCandidate{id: ep, dist: d})
		heap.Push(results, hnswCandidate{id: ep, dist: d})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(hnswCandidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		neigh, err := h.neighbors(ctx, tx, c.id, level)
		if err != nil {
			return nil, err
		}
		for _, n := range neigh {
			key := idKey(n)
			if visited[key] {
				continue
			}
			visited[key] = true
			_, vec, ok, err := h.getNode(ctx, tx, n)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			d := distance(h.metric, query, vec)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, hnswCandidate{id: n, dist: d})
				heap.Push(results, hnswCandidate{id: n, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]hnswCandidate, results.Len())
	copy(out, *results)
	sortCandidatesAsc(out)
	return out, nil
}

func sortCandidatesAsc(c []hnswCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].dist < c[j-1].dist; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// selectNeighborsHeuristic implements the diversity-preferring neighbor
// selection of §4.3.6 invariant (ii): a candidate is kept only if it is
// closer to the query than to every candidate already selected.
func (h *HNSWIndex) selectNeighborsHeuristic(ctx context.Context, tx kv.Transaction, candidates []hnswCandidate, m int) ([]keyspace.Tuple, error) {
	var selected []hnswCandidate
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		_, cVec, ok, err := h.getNode(ctx, tx, c.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		keep := true
		for _, s := range selected {
			_, sVec, ok, err := h.getNode(ctx, tx, s.id)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if distance(h.metric, cVec, sVec) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		}
	}
	out := make([]keyspace.Tuple, len(selected))
	for i, s := range selected {
		out[i] = s.id
	}
	return out, nil
}

func (h *HNSWIndex) pruneEdges(ctx context.Context, tx kv.Transaction, id keyspace.Tuple, level, maxM int) error {
	neigh, err := h.neighbors(ctx, tx, id, level)
	if err != nil {
		return err
	}
	if len(neigh) <= maxM {
		return nil
	}
	_, vec, ok, err := h.getNode(ctx, tx, id)
	if err != nil || !ok {
		return err
	}
	cands := make([]hnswCandidate, 0, len(neigh))
	for _, n := range neigh {
		_, nVec, ok, err := h.getNode(ctx, tx, n)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		cands = append(cands, hnswCandidate{id: n, dist: distance(h.metric, vec, nVec)})
	}
	sortCandidatesAsc(cands)
	kept, err := h.selectNeighborsHeuristic(ctx, tx, cands, maxM)
	if err != nil {
		return err
	}
	keptSet := map[string]bool{}
	for _, k := range kept {
		keptSet[idKey(k)] = true
	}
	for _, n := range neigh {
		if !keptSet[idKey(n)] {
			if err := h.clearEdge(ctx, tx, id, level, n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *HNSWIndex) deleteNode(ctx context.Context, tx kv.Transaction, id keyspace.Tuple, level int) error {
	for l := 0; l <= level; l++ {
		neigh, err := h.neighbors(ctx, tx, id, l)
		if err != nil {
			return err
		}
		for _, n := range neigh {
			if err := h.clearEdge(ctx, tx, id, l, n); err != nil {
				return err
			}
			if err := h.clearEdge(ctx, tx, n, l, id); err != nil {
				return err
			}
		}
	}
	return tx.Clear(ctx, h.nodeKey(id))
}

func (h *HNSWIndex) insertNode(ctx context.Context, tx kv.Transaction, id keyspace.Tuple, vec []float32) error {
	meta, hasMeta, err := h.readMeta(ctx, tx)
	if err != nil {
		return err
	}
	if hasMeta && meta.numNodes+1 > h.cfg.budget() {
		return ErrGraphTooLargeForInline
	}

	level := h.randomLevel()
	if err := tx.SetValue(ctx, h.nodeKey(id), encodeNodeValue(level, vec)); err != nil {
		return err
	}

	if !hasMeta {
		return h.writeMeta(ctx, tx, hnswMeta{entryID: id, topLevel: level, numNodes: 1})
	}

	entry := meta.entryID
	for l := meta.topLevel; l > level; l-- {
		res, err := h.searchLayer(ctx, tx, vec, []keyspace.Tuple{entry}, 1, l)
		if err != nil {
			return err
		}
		if len(res) > 0 {
			entry = res[0].id
		}
	}

	entryPoints := []keyspace.Tuple{entry}
	for l := minInt(level, meta.topLevel); l >= 0; l-- {
		cands, err := h.searchLayer(ctx, tx, vec, entryPoints, h.cfg.EfConstruction, l)
		if err != nil {
			return err
		}
		maxM := h.cfg.M
		if l == 0 {
			maxM = h.cfg.maxM0()
		}
		neighIDs, err := h.selectNeighborsHeuristic(ctx, tx, cands, maxM)
		if err != nil {
			return err
		}
		for _, n := range neighIDs {
			if err := h.setEdge(ctx, tx, id, l, n); err != nil {
				return err
			}
			if err := h.setEdge(ctx, tx, n, l, id); err != nil {
				return err
			}
			if err := h.pruneEdges(ctx, tx, n, l, maxM); err != nil {
				return err
			}
		}
		entryPoints = cands
		if len(entryPoints) == 0 {
			entryPoints = []keyspace.Tuple{entry}
		}
	}

	newMeta := hnswMeta{entryID: meta.entryID, topLevel: meta.topLevel, numNodes: meta.numNodes + 1}
	if level > meta.topLevel {
		newMeta.entryID = id
		newMeta.topLevel = level
	}
	return h.writeMeta(ctx, tx, newMeta)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Update deletes the old node (if present) and inserts the new vector (if
// present). When old and new resolve to the same vector it returns without
// any KV writes; a changed vector is a delete followed by a reinsert, since
// HNSW does not support in-place moves.
func (h *HNSWIndex) Update(ctx context.Context, tx kv.Transaction, typeName string, itemID keyspace.Tuple, old, new any) error {
	oldVec, oldOK := h.vectorOf(typeName, old)
	newVec, newOK := h.vectorOf(typeName, new)

	if oldOK && newOK && vecEqual(oldVec, newVec) {
		return nil
	}

	if oldOK {
		level, _, ok, err := h.getNode(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if ok {
			if err := h.deleteNode(ctx, tx, itemID, level); err != nil {
				return err
			}
			if meta, has, err := h.readMeta(ctx, tx); err == nil && has {
				meta.numNodes--
				if meta.numNodes < 0 {
					meta.numNodes = 0
				}
				_ = h.writeMeta(ctx, tx, meta)
			}
		}
	}
	if newOK {
		if len(newVec) != h.dim {
			return ErrVectorDimensionMismatch
		}
		return h.insertNode(ctx, tx, itemID, newVec)
	}
	return nil
}

func vecEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Search greedily descends from the entry point's top layer to layer 1 with
// ef=1, then runs a beam search of width max(efSearch, k) at layer 0.
func (h *HNSWIndex) Search(ctx context.Context, tx kv.Transaction, query any) (EntryIterator, error) {
	q := query.(VectorQuery)
	if q.K <= 0 {
		return nil, ErrInvalidK
	}
	if len(q.Target) != h.dim {
		return nil, ErrVectorDimensionMismatch
	}

	meta, ok, err := h.readMeta(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newSliceEntryIterator(nil), nil
	}

	entry := meta.entryID
	for l := meta.topLevel; l > 0; l-- {
		res, err := h.searchLayer(ctx, tx, q.Target, []keyspace.Tuple{entry}, 1, l)
		if err != nil {
			return nil, err
		}
		if len(res) > 0 {
			entry = res[0].id
		}
	}

	ef := h.cfg.EfSearch
	if ef < q.K {
		ef = q.K
	}
	res, err := h.searchLayer(ctx, tx, q.Target, []keyspace.Tuple{entry}, ef, 0)
	if err != nil {
		return nil, err
	}
	if len(res) > q.K {
		res = res[:q.K]
	}

	entries := make([]Entry, len(res))
	for i, c := range res {
		entries[i] = Entry{ItemID: c.id}
	}
	return newSliceEntryIterator(entries), nil
}
