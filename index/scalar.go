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

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// ScalarQuery describes an equality prefix on the leading key fields,
// optionally followed by a bounded range on the next field (§4.3.1).
type ScalarQuery struct {
	Prefix  keyspace.Tuple
	Lo, Hi  *any // range bounds on the field immediately after Prefix
	Reverse bool
}

// ScalarIndex is the Maintainer+Searcher pair for both plain scalar indexes
// and covering indexes: the key layout (`key-fields / item-id`) is
// identical, covering indexes simply also persist StoredFields alongside.
type ScalarIndex struct {
	desc      Descriptor
	subspace  keyspace.Subspace
	reflector kv.FieldReflector
}

// NewScalarIndex constructs a scalar/covering index maintainer+searcher
// rooted at subspace (already scoped to this index's name, `I/<index-name>`).
func NewScalarIndex(desc Descriptor, subspace keyspace.Subspace, reflector kv.FieldReflector) *ScalarIndex {
	return &ScalarIndex{desc: desc, subspace: subspace, reflector: reflector}
}

func (s *ScalarIndex) keyValues(typeName string, record any) (keyspace.Tuple, bool) {
	if record == nil {
		return nil, false
	}
	t := make(keyspace.Tuple, 0, len(s.desc.KeyPaths))
	for _, kp := range s.desc.KeyPaths {
		field, ok := s.reflector.KeyPathField(typeName, kp)
		if !ok {
			return nil, false
		}
		v, _ := s.reflector.FieldValue(typeName, record, field)
		t = append(t, v)
	}
	return t, true
}

func (s *ScalarIndex) storedValues(typeName string, record any) keyspace.Tuple {
	if len(s.desc.StoredFields) == 0 || record == nil {
		return nil
	}
	t := make(keyspace.Tuple, 0, len(s.desc.StoredFields))
	for _, f := range s.desc.StoredFields {
		v, _ := s.reflector.FieldValue(typeName, record, f)
		t = append(t, v)
	}
	return t
}

func (s *ScalarIndex) entryKey(keyValues, itemID keyspace.Tuple) []byte {
	full := append(append(keyspace.Tuple{}, keyValues...), itemID...)
	return s.subspace.Pack(full)
}

// Update is idempotent when old == new: if the computed key-values tuple is
// unchanged, no KV writes occur.
func (s *ScalarIndex) Update(ctx context.Context, tx kv.Transaction, typeName string, itemID keyspace.Tuple, old, new any) error {
	oldKV, oldOK := s.keyValues(typeName, old)
	newKV, newOK := s.keyValues(typeName, new)

	if oldOK && (!newOK || !tupleEqual(oldKV, newKV)) {
		if err := tx.Clear(ctx, s.entryKey(oldKV, itemID)); err != nil {
			return err
		}
	}
	if newOK && (!oldOK || !tupleEqual(oldKV, newKV)) {
		stored := s.storedValues(typeName, new)
		var val []byte
		if len(stored) > 0 {
			val = keyspace.Root().Pack(stored)
		} else {
			val = []byte{}
		}
		if err := tx.SetValue(ctx, s.entryKey(newKV, itemID), val); err != nil {
			return err
		}
	}
	return nil
}

func tupleEqual(a, b keyspace.Tuple) bool {
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

// Search emits entries in index-key order (ascending, or descending if
// query.Reverse), scoped to the equality prefix and optional trailing range.
func (s *ScalarIndex) Search(ctx context.Context, tx kv.Transaction, query any) (EntryIterator, error) {
	q := query.(ScalarQuery)
	sub := s.subspace.Sub(toAnySlice(q.Prefix)...)

	var begin, end []byte
	if q.Lo == nil && q.Hi == nil {
		begin, end = sub.Range()
	} else {
		begin, end = sub.Range()
		if q.Lo != nil {
			begin = sub.Pack(keyspace.Tuple{*q.Lo})
		}
		if q.Hi != nil {
			// Upper-bound the range just past any item-id suffixed to Hi by
			// packing Hi as a nested tuple continuation: the shortest key
			// strictly greater than any entry with (Prefix..., Hi) as its
			// leading fields is the successor of the subspace (Prefix..., Hi).
			hiSub := sub.Sub(*q.Hi)
			_, hiEnd := hiSub.Range()
			end = hiEnd
		}
	}

	it, err := tx.GetRange(ctx, begin, end, 0, q.Reverse)
	if err != nil {
		return nil, err
	}
	return &scalarEntryIterator{desc: s.desc, subspace: s.subspace, it: it}, nil
}

// Reconstruct rebuilds a record's projected fields from an index entry
// without fetching the item: keyValues ⊎ storedValues ⊎
// id. Only valid when s.desc.IsFullyCovering holds for the fields the
// caller actually needs.
func (s *ScalarIndex) Reconstruct(entry Entry) map[string]any {
	out := make(map[string]any, len(s.desc.KeyPaths)+len(s.desc.StoredFields)+1)
	for i, kp := range s.desc.KeyPaths {
		if i < len(entry.KeyValues) {
			out[kp] = entry.KeyValues[i]
		}
	}
	for i, f := range s.desc.StoredFields {
		if i < len(entry.StoredValues) {
			out[f] = entry.StoredValues[i]
		}
	}
	out["__id"] = entry.ItemID
	return out
}

func toAnySlice(t keyspace.Tuple) []any {
	out := make([]any, len(t))
	for i, v := range t {
		out[i] = v
	}
	return out
}

type scalarEntryIterator struct {
	desc     Descriptor
	subspace keyspace.Subspace
	it       kv.RangeIterator
	cur      Entry
	err      error
}

func (it *scalarEntryIterator) Next(ctx context.Context) bool {
	if !it.it.Next(ctx) {
		it.err = it.it.Err()
		return false
	}
	row := it.it.KeyValue()
	full, err := it.subspace.Unpack(row.Key)
	if err != nil {
		it.err = err
		return false
	}
	nKey := len(it.desc.KeyPaths)
	keyValues := full[:nKey]
	itemID := full[nKey:]

	var stored keyspace.Tuple
	if len(row.Value) > 0 {
		stored, _ = keyspace.Root().Unpack(row.Value)
	}
	it.cur = Entry{KeyValues: keyValues, ItemID: itemID, StoredValues: stored}
	return true
}

func (it *scalarEntryIterator) Entry() Entry { return it.cur }
func (it *scalarEntryIterator) Err() error   { return it.err }
func (it *scalarEntryIterator) Close() error { return it.it.Close() }
