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

	"github.com/dolthub/coredb/kv"
)

// PredicateFunc tests whether an item (fetched by the caller's own means,
// keyed by item id) satisfies a filter. A nil PredicateFunc accepts every
// candidate (§4.3.8: "an empty filter is treated as accept all").
type PredicateFunc func(itemID any) bool

// ACORNQuery is a filtered vector search: combine HNSW traversal with a
// predicate over fetched records, expanding the candidate pool to offset
// filter selectivity (§4.3.8).
type ACORNQuery struct {
	Target                  []float32
	K                       int
	Metric                  Metric
	Filter                  PredicateFunc
	ExpansionFactor         float64 // candidate pool = k * expansionFactor
	MaxPredicateEvaluations int     // 0 means unbounded
}

// ACORNSearch runs filtered vector search against an HNSW index: it expands
// the unfiltered top-k by ExpansionFactor, then prunes by Filter, preserving
// ascending distance order (§4.3.8). A filter that excludes every candidate
// yields an empty result rather than an error.
func ACORNSearch(ctx context.Context, tx kv.Transaction, h *HNSWIndex, q ACORNQuery) (EntryIterator, error) {
	if q.K <= 0 {
		return nil, ErrInvalidK
	}
	factor := q.ExpansionFactor
	if factor < 1 {
		factor = 1
	}
	poolSize := int(float64(q.K) * factor)
	if poolSize < q.K {
		poolSize = q.K
	}

	it, err := h.Search(ctx, tx, VectorQuery{Target: q.Target, K: poolSize, Metric: q.Metric})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var kept []Entry
	evaluated := 0
	for it.Next(ctx) {
		if len(kept) >= q.K {
			break
		}
		e := it.Entry()
		if q.Filter != nil {
			if q.MaxPredicateEvaluations > 0 && evaluated >= q.MaxPredicateEvaluations {
				break
			}
			evaluated++
			if !q.Filter(e.ItemID) {
				continue
			}
		}
		kept = append(kept, e)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return newSliceEntryIterator(kept), nil
}
