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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/coredb/keyspace"
)

func TestHNSWIndexInsertAndSearchFindsNearest(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("doc", "vec")
	desc := Descriptor{Name: "idx_hnsw", KeyPaths: []string{"vec"}, Kind: KindVectorHNSW}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	cfg := HNSWConfig{M: 8, EfConstruction: 32, EfSearch: 16}
	h := NewHNSWIndex(desc, sub, reflector, 2, MetricEuclidean, cfg, 42)

	points := map[int64][]float32{
		1: {0, 0},
		2: {1, 0},
		3: {5, 5},
		4: {0.5, 0.5},
		5: {10, 10},
		6: {9, 9},
	}
	for id, v := range points {
		require.NoError(t, h.Update(ctx, tx, "doc", keyspace.Tuple{id}, nil, map[string]any{"vec": v}))
	}

	it, err := h.Search(ctx, tx, VectorQuery{Target: []float32{0, 0}, K: 2, Metric: MetricEuclidean})
	require.NoError(t, err)
	var ids []int64
	for it.Next(ctx) {
		ids = append(ids, it.Entry().ItemID[0].(int64))
	}
	require.Len(t, ids, 2)
	require.Contains(t, ids, int64(1))
}

func TestHNSWIndexDeleteRemovesNode(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("doc", "vec")
	desc := Descriptor{Name: "idx_hnsw", KeyPaths: []string{"vec"}, Kind: KindVectorHNSW}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	cfg := HNSWConfig{M: 4, EfConstruction: 16, EfSearch: 8}
	h := NewHNSWIndex(desc, sub, reflector, 2, MetricEuclidean, cfg, 7)

	id := keyspace.Tuple{int64(1)}
	rec := map[string]any{"vec": []float32{1, 1}}
	require.NoError(t, h.Update(ctx, tx, "doc", id, nil, rec))
	require.NoError(t, h.Update(ctx, tx, "doc", id, rec, nil))

	_, _, ok, err := h.getNode(ctx, tx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHNSWIndexGraphTooLargeForInline(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("doc", "vec")
	desc := Descriptor{Name: "idx_hnsw", KeyPaths: []string{"vec"}, Kind: KindVectorHNSW}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	cfg := HNSWConfig{M: 4, EfConstruction: 8, EfSearch: 8, InlineNodeBudget: 2}
	h := NewHNSWIndex(desc, sub, reflector, 2, MetricEuclidean, cfg, 1)

	require.NoError(t, h.Update(ctx, tx, "doc", keyspace.Tuple{int64(1)}, nil, map[string]any{"vec": []float32{0, 0}}))
	require.NoError(t, h.Update(ctx, tx, "doc", keyspace.Tuple{int64(2)}, nil, map[string]any{"vec": []float32{1, 1}}))
	err := h.Update(ctx, tx, "doc", keyspace.Tuple{int64(3)}, nil, map[string]any{"vec": []float32{2, 2}})
	require.ErrorIs(t, err, ErrGraphTooLargeForInline)
}
