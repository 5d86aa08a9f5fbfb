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

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/coredb/index"
	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

type mapReflector struct {
	fields map[string][]string
}

func newMapReflector(typeName string, fields ...string) *mapReflector {
	return &mapReflector{fields: map[string][]string{typeName: fields}}
}

func (r *mapReflector) FieldNames(typeName string) []string { return r.fields[typeName] }

func (r *mapReflector) FieldValue(typeName string, record any, field string) (any, bool) {
	m, ok := record.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

func (r *mapReflector) KeyPathField(typeName string, keyPath string) (string, bool) {
	for _, f := range r.fields[typeName] {
		if f == keyPath {
			return f, true
		}
	}
	return "", false
}

func beginTx(ctx context.Context) kv.Transaction {
	store := kv.NewMemStore()
	tx, _ := store.BeginTx(ctx, nil)
	return tx
}

// buildChain wires a -> b -> c -> d via "next" edges.
func buildChain(t *testing.T, ctx context.Context, tx kv.Transaction) (*index.GraphAdjacencyIndex, []keyspace.Tuple) {
	reflector := newMapReflector("edge", "src", "label", "tgt")
	desc := index.Descriptor{Name: "idx_adj", KeyPaths: []string{"src", "label", "tgt"}, Kind: index.KindGraphAdjacency}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	gi := index.NewGraphAdjacencyIndex(desc, sub, reflector)

	nodes := []keyspace.Tuple{{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}}
	for i := 0; i < len(nodes)-1; i++ {
		eid := keyspace.Tuple{int64(100 + i)}
		rec := map[string]any{"src": nodes[i], "label": "next", "tgt": nodes[i+1]}
		require.NoError(t, gi.Update(ctx, tx, "edge", eid, nil, rec))
	}
	return gi, nodes
}

func TestTraverseVisitsEachNodeOnceAtShallowestDepth(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	gi, nodes := buildChain(t, ctx, tx)
	tr := NewTraverser(gi)

	got, err := tr.Traverse(ctx, tx, nodes[0], TraverseOptions{MaxDepth: 10, Dir: index.DirOut})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 1, got[0].Depth)
	require.Equal(t, 2, got[1].Depth)
	require.Equal(t, 3, got[2].Depth)
}

func TestTraverseRespectsMaxDepth(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	gi, nodes := buildChain(t, ctx, tx)
	tr := NewTraverser(gi)

	got, err := tr.Traverse(ctx, tx, nodes[0], TraverseOptions{MaxDepth: 1, Dir: index.DirOut})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, nodes[1], got[0].ID)
}

func TestTraversePaginatedReassemblesFullTraversal(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	gi, nodes := buildChain(t, ctx, tx)
	tr := NewTraverser(gi)

	opts := TraverseOptions{MaxDepth: 10, Dir: index.DirOut}
	full, err := tr.Traverse(ctx, tx, nodes[0], opts)
	require.NoError(t, err)

	var collected []Node
	var cursor *Cursor
	for {
		page, next, done, err := tr.TraversePaginated(ctx, tx, nodes[0], opts, 1, cursor)
		require.NoError(t, err)
		collected = append(collected, page...)
		if done {
			break
		}
		cursor = next
	}
	require.Equal(t, full, collected)
}

func TestTraversePaginatedRejectsMismatchedCursor(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	gi, nodes := buildChain(t, ctx, tx)
	tr := NewTraverser(gi)

	opts := TraverseOptions{MaxDepth: 10, Dir: index.DirOut}
	_, next, _, err := tr.TraversePaginated(ctx, tx, nodes[0], opts, 1, nil)
	require.NoError(t, err)

	otherOpts := TraverseOptions{MaxDepth: 2, Dir: index.DirOut}
	_, _, _, err = tr.TraversePaginated(ctx, tx, nodes[0], otherOpts, 1, next)
	require.ErrorIs(t, err, ErrCursorMismatch)
}

func TestCursorEncodeDecodeRoundTrip(t *testing.T) {
	c := Cursor{Depth: 2, Index: 5, ParamsHash: 0xdeadbeef}
	s := EncodeCursor(c)
	got, err := DecodeCursor(s)
	require.NoError(t, err)
	require.Equal(t, c, got)
}
