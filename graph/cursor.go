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
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// ErrCursorMismatch is returned when a cursor is replayed against a
// different start node or traversal options than the ones it was issued
// for — the host's 5-second transaction lifetime forces long traversals to
// resume in a fresh transaction, and a stale or forged cursor must not
// silently splice unrelated results together.
var ErrCursorMismatch = errors.New("graph: cursor does not match traversal parameters")

// Cursor marks a position within a paginated traversal's deterministic,
// depth-major, lexicographically-ordered output: which depth level, which
// index within that level's sorted node list, and a hash of the
// traversal's parameters it was issued for.
type Cursor struct {
	Depth      int
	Index      int
	ParamsHash uint64
}

func paramsHash(start keyspace.Tuple, opts TraverseOptions) uint64 {
	label := ""
	if opts.Label != nil {
		label = *opts.Label
	}
	s := fmt.Sprintf("%s|%d|%s|%d", nodeKey(start), opts.MaxDepth, label, opts.Dir)
	return xxhash.Sum64String(s)
}

// EncodeCursor renders c as an opaque string for a client to hold between
// pages.
func EncodeCursor(c Cursor) string {
	return fmt.Sprintf("%d:%d:%x", c.Depth, c.Index, c.ParamsHash)
}

// DecodeCursor parses a string produced by EncodeCursor.
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	var hash uint64
	if _, err := fmt.Sscanf(s, "%d:%d:%x", &c.Depth, &c.Index, &hash); err != nil {
		return Cursor{}, fmt.Errorf("graph: malformed cursor %q: %w", s, err)
	}
	c.ParamsHash = hash
	return c, nil
}

// levels computes the full depth-major traversal, grouped by depth, so a
// page can be sliced out of a stable, deterministic ordering. Recomputing
// the whole traversal per page keeps pagination state-free across
// transaction boundaries, at the cost of repeated index scans for deep
// traversals — an accepted tradeoff given the host provides no
// cross-transaction session store to cache a frontier in.
func (t *Traverser) levels(ctx context.Context, tx kv.Transaction, start keyspace.Tuple, opts TraverseOptions) ([][]Node, error) {
	visited := map[string]bool{nodeKey(start): true}
	frontier := []keyspace.Tuple{start}
	var levels [][]Node

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
		levels = append(levels, level)
		frontier = next
	}
	return levels, nil
}

// TraversePaginated returns up to pageSize nodes starting from cursor (nil
// for the first page), plus the cursor to resume from and whether the
// traversal is exhausted. Each call is independent and may run in its own
// transaction; passing a cursor issued for different (start, opts) fails
// with ErrCursorMismatch rather than silently resuming the wrong
// traversal.
func (t *Traverser) TraversePaginated(ctx context.Context, tx kv.Transaction, start keyspace.Tuple, opts TraverseOptions, pageSize int, cursor *Cursor) (page []Node, next *Cursor, done bool, err error) {
	hash := paramsHash(start, opts)
	pos := Cursor{Depth: 1, Index: 0, ParamsHash: hash}
	if cursor != nil {
		if cursor.ParamsHash != hash {
			return nil, nil, false, ErrCursorMismatch
		}
		pos = *cursor
	}

	levels, err := t.levels(ctx, tx, start, opts)
	if err != nil {
		return nil, nil, false, err
	}

	for pos.Depth-1 < len(levels) && len(page) < pageSize {
		level := levels[pos.Depth-1]
		remaining := pageSize - len(page)
		end := pos.Index + remaining
		if end > len(level) {
			end = len(level)
		}
		page = append(page, level[pos.Index:end]...)
		if end < len(level) {
			pos.Index = end
			return page, &pos, false, nil
		}
		pos.Depth++
		pos.Index = 0
	}

	if pos.Depth-1 >= len(levels) {
		return page, nil, true, nil
	}
	return page, &pos, false, nil
}
