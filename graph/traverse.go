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

// Package graph implements multi-hop traversal over a graph adjacency
// index: 1-hop neighbor lookups, depth-bounded breadth-first search, and a
// cursor-paginated variant that can resume a long traversal across separate
// transactions (§5: "multi-hop graph traversal must split work across
// transactions at well-defined checkpoints and be resumable").
package graph

import (
	"context"
	"sort"

	"github.com/dolthub/coredb/index"
	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// Node is one discovered vertex: its id, the label of the edge that reached
// it, and its depth from the traversal's start node.
type Node struct {
	ID    keyspace.Tuple
	Label string
	Depth int
}

// Traverser runs BFS over a GraphAdjacencyIndex.
type Traverser struct {
	idx *index.GraphAdjacencyIndex
}

// NewTraverser wraps idx for traversal.
func NewTraverser(idx *index.GraphAdjacencyIndex) *Traverser {
	return &Traverser{idx: idx}
}

func nodeKey(t keyspace.Tuple) string {
	return string(keyspace.Root().Pack(t))
}

// Neighbors performs a single 1-hop lookup, optionally narrowed to one edge
// label, in the given direction.
func (t *Traverser) Neighbors(ctx context.Context, tx kv.Transaction, node keyspace.Tuple, label *string, dir index.Direction) ([]Node, error) {
	it, err := t.idx.Search(ctx, tx, index.GraphQuery{Node: node, Label: label, Dir: dir})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Node
	for it.Next(ctx) {
		e := it.Entry()
		lbl, _ := e.KeyValues[0].(string)
		out = append(out, Node{ID: e.ItemID, Label: lbl, Depth: 1})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TraverseOptions configures a bounded BFS.
type TraverseOptions struct {
	MaxDepth int
	Label    *string
	Dir      index.Direction
}

// sortNodes orders a depth-level's discovered nodes lexicographically by id
// so BFS output is deterministic regardless of the KV store's internal scan
// order.
func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodeKey(nodes[i].ID) < nodeKey(nodes[j].ID)
	})
}

// Traverse runs a breadth-first search from start out to MaxDepth hops,
// visiting each node at most once (the first depth it is reached at wins).
// Nodes are returned depth-by-depth, lexicographically ordered by id within
// a depth.
func (t *Traverser) Traverse(ctx context.Context, tx kv.Transaction, start keyspace.Tuple, opts TraverseOptions) ([]Node, error) {
	visited := map[string]bool{nodeKey(start): true}
	frontier := []keyspace.Tuple{start}
	var out []Node

	for depth := 1; depth <= opts.MaxDepth && len(frontier) > 0; depth++ {
		var next []keyspace.Tuple
		var level []Node
		for _, n := range frontier {
			neighbors, err := t.Neighbors(ctx, tx, n, opts.Label, opts.Dir)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				k := nodeKey(nb.ID)
				if visited[k] {
					continue
				}
				visited[k] = true
				nb.Depth = depth
				level = append(level, nb)
				next = append(next, nb.ID)
			}
		}
		sortNodes(level)
		out = append(out, level...)
		frontier = next
	}
	return out, nil
}
