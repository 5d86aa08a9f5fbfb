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
	"fmt"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// Kind tags which index family a descriptor belongs to. Maintainers and
// searchers dispatch on this tag rather than through a class hierarchy.
type Kind int

const (
	KindScalar Kind = iota
	KindCovering
	KindFullText
	KindSpatial
	KindVectorFlat
	KindVectorHNSW
	KindGraphAdjacency
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindCovering:
		return "covering"
	case KindFullText:
		return "fullText"
	case KindSpatial:
		return "spatial"
	case KindVectorFlat:
		return "vectorFlat"
	case KindVectorHNSW:
		return "vectorHNSW"
	case KindGraphAdjacency:
		return "graphAdjacency"
	default:
		return "unknown"
	}
}

// Descriptor is the immutable binding of an index's name, key-path list,
// kind, and target record types (§3.1). It determines the index's subspace
// and which Maintainer/Searcher pair serves it.
type Descriptor struct {
	Name           string
	KeyPaths       []string
	StoredFields   []string // additional projected fields, covering indexes only
	Kind           Kind
	TargetTypes    []string
	Config         any             // kind-specific configuration (quantizer settings, spatial level, ...)
	NonProjectable map[string]bool // fields that can never be reconstructed from an index-only scan
}

// Subspace returns this descriptor's root subspace under the given index
// root, keyed by index name (`I / <index-name>`, §4.1).
func (d Descriptor) Subspace(root keyspace.Subspace) keyspace.Subspace {
	return root.Sub(d.Name)
}

// IsFullyCovering holds iff keyFields ∪ storedFields ⊇ (allRecordFields -
// nonProjectableFields), the invariant of §4.3.1.
func (d Descriptor) IsFullyCovering(allRecordFields []string) bool {
	covered := map[string]bool{}
	for _, f := range d.KeyPaths {
		covered[f] = true
	}
	for _, f := range d.StoredFields {
		covered[f] = true
	}
	for _, f := range allRecordFields {
		if d.NonProjectable[f] {
			continue
		}
		if !covered[f] {
			return false
		}
	}
	return true
}

// ValidateDescriptor checks IsFullyCovering for covering indexes at
// registration time, catching a misconfigured covering index before it is
// ever used by the planner.
func ValidateDescriptor(d Descriptor, allRecordFields []string) error {
	if d.Kind != KindCovering {
		return nil
	}
	if !d.IsFullyCovering(allRecordFields) {
		return fmt.Errorf("index %q declared covering but does not cover every projectable field", d.Name)
	}
	return nil
}

// Entry is one index-entry triple: the key-values tuple, the owning item's
// primary-key tuple, and optional stored values (covering indexes) or
// kind-specific payload bytes.
type Entry struct {
	KeyValues    keyspace.Tuple
	ItemID       keyspace.Tuple
	StoredValues keyspace.Tuple
	Payload      []byte
}

// Maintainer observes record mutations and produces the corresponding
// index-entry side effects (§4.3). Update must be idempotent when old == new,
// and for dynamic-partition indexes, partition binding is derived from the
// record instance, not from its type.
type Maintainer interface {
	Update(ctx context.Context, tx kv.Transaction, typeName string, itemID keyspace.Tuple, old, new any) error
}

// Searcher executes a kind-specific query and emits item-id rows.
type Searcher interface {
	Search(ctx context.Context, tx kv.Transaction, query any) (EntryIterator, error)
}

// EntryIterator is a lazy, finite, non-restartable stream of index entries.
type EntryIterator interface {
	Next(ctx context.Context) bool
	Entry() Entry
	Err() error
	Close() error
}

// sliceEntryIterator adapts a pre-computed slice to EntryIterator, used by
// searchers whose result set is already materialized in memory (e.g. a
// bounded top-k heap).
type sliceEntryIterator struct {
	rows []Entry
	idx  int
}

func newSliceEntryIterator(rows []Entry) *sliceEntryIterator {
	return &sliceEntryIterator{rows: rows, idx: -1}
}

func (it *sliceEntryIterator) Next(ctx context.Context) bool {
	if it.idx+1 >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}

func (it *sliceEntryIterator) Entry() Entry { return it.rows[it.idx] }
func (it *sliceEntryIterator) Err() error   { return nil }
func (it *sliceEntryIterator) Close() error { return nil }
