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

func TestGraphAdjacencyOutAndInMirrors(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("edge", "src", "label", "tgt")
	desc := Descriptor{Name: "idx_adj", KeyPaths: []string{"src", "label", "tgt"}, Kind: KindGraphAdjacency}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	gi := NewGraphAdjacencyIndex(desc, sub, reflector)

	a := keyspace.Tuple{int64(1)}
	b := keyspace.Tuple{int64(2)}
	c := keyspace.Tuple{int64(3)}
	mk := func(src, tgt keyspace.Tuple, label string) map[string]any {
		return map[string]any{"src": src, "label": label, "tgt": tgt}
	}

	eid1 := keyspace.Tuple{int64(100)}
	eid2 := keyspace.Tuple{int64(101)}
	require.NoError(t, gi.Update(ctx, tx, "edge", eid1, nil, mk(a, b, "follows")))
	require.NoError(t, gi.Update(ctx, tx, "edge", eid2, nil, mk(a, c, "follows")))

	outIt, err := gi.Search(ctx, tx, GraphQuery{Node: a, Dir: DirOut})
	require.NoError(t, err)
	var outNeighbors []int64
	for outIt.Next(ctx) {
		outNeighbors = append(outNeighbors, outIt.Entry().ItemID[0].(int64))
	}
	require.ElementsMatch(t, []int64{2, 3}, outNeighbors)

	inIt, err := gi.Search(ctx, tx, GraphQuery{Node: b, Dir: DirIn})
	require.NoError(t, err)
	var inNeighbors []int64
	for inIt.Next(ctx) {
		inNeighbors = append(inNeighbors, inIt.Entry().ItemID[0].(int64))
	}
	require.Equal(t, []int64{1}, inNeighbors)
}

func TestGraphAdjacencyUpdateRetargetsEdge(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("edge", "src", "label", "tgt")
	desc := Descriptor{Name: "idx_adj", KeyPaths: []string{"src", "label", "tgt"}, Kind: KindGraphAdjacency}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	gi := NewGraphAdjacencyIndex(desc, sub, reflector)

	a := keyspace.Tuple{int64(1)}
	b := keyspace.Tuple{int64(2)}
	c := keyspace.Tuple{int64(3)}
	mk := func(src, tgt keyspace.Tuple, label string) map[string]any {
		return map[string]any{"src": src, "label": label, "tgt": tgt}
	}

	eid := keyspace.Tuple{int64(100)}
	require.NoError(t, gi.Update(ctx, tx, "edge", eid, nil, mk(a, b, "follows")))
	require.NoError(t, gi.Update(ctx, tx, "edge", eid, mk(a, b, "follows"), mk(a, c, "follows")))

	outIt, err := gi.Search(ctx, tx, GraphQuery{Node: a, Dir: DirOut})
	require.NoError(t, err)
	var neighbors []int64
	for outIt.Next(ctx) {
		neighbors = append(neighbors, outIt.Entry().ItemID[0].(int64))
	}
	require.Equal(t, []int64{3}, neighbors)
}
