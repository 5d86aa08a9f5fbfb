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
	"sort"
	"strings"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// MatchMode selects how a FullTextQuery's terms are combined.
type MatchMode int

const (
	MatchAll MatchMode = iota // set intersection
	MatchAny                  // set union
)

// FullTextQuery carries the terms to search for, case-folded by the caller
// or by Search itself (§4.3.3).
type FullTextQuery struct {
	Terms []string
	Mode  MatchMode
	Limit int
}

// FullTextIndex maintains `terms / <term> / <id> → ∅` entries (§4.1) over a
// tokenized field.
type FullTextIndex struct {
	desc      Descriptor
	subspace  keyspace.Subspace
	reflector kv.FieldReflector
	tokenize  func(string) []string
}

// NewFullTextIndex constructs a full-text index maintainer+searcher.
// tokenize defaults to lower-cased whitespace splitting when nil.
func NewFullTextIndex(desc Descriptor, subspace keyspace.Subspace, reflector kv.FieldReflector, tokenize func(string) []string) *FullTextIndex {
	if tokenize == nil {
		tokenize = defaultTokenize
	}
	return &FullTextIndex{desc: desc, subspace: subspace, reflector: reflector, tokenize: tokenize}
}

func defaultTokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	seen := map[string]bool{}
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func (f *FullTextIndex) termsOf(typeName string, record any) map[string]bool {
	out := map[string]bool{}
	if record == nil || len(f.desc.KeyPaths) == 0 {
		return out
	}
	field, ok := f.reflector.KeyPathField(typeName, f.desc.KeyPaths[0])
	if !ok {
		return out
	}
	v, ok := f.reflector.FieldValue(typeName, record, field)
	if !ok {
		return out
	}
	s, ok := v.(string)
	if !ok {
		return out
	}
	for _, t := range f.tokenize(s) {
		out[t] = true
	}
	return out
}

func (f *FullTextIndex) entryKey(term string, itemID keyspace.Tuple) []byte {
	t := append(keyspace.Tuple{term}, toAnySlice(itemID)...)
	return f.subspace.Pack(t)
}

// Update diffs the old and new token sets, clearing removed terms and
// setting added ones; unchanged terms are left untouched (idempotent when
// old == new).
func (f *FullTextIndex) Update(ctx context.Context, tx kv.Transaction, typeName string, itemID keyspace.Tuple, old, new any) error {
	oldTerms := f.termsOf(typeName, old)
	newTerms := f.termsOf(typeName, new)

	for t := range oldTerms {
		if !newTerms[t] {
			if err := tx.Clear(ctx, f.entryKey(t, itemID)); err != nil {
				return err
			}
		}
	}
	for t := range newTerms {
		if !oldTerms[t] {
			if err := tx.SetValue(ctx, f.entryKey(t, itemID), []byte{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Search implements MatchAll (intersection) and MatchAny (union) over the
// per-term postings lists. Results are materialized because set combination
// requires observing full postings lists per term.
func (f *FullTextIndex) Search(ctx context.Context, tx kv.Transaction, query any) (EntryIterator, error) {
	q := query.(FullTextQuery)
	if len(q.Terms) == 0 {
		return newSliceEntryIterator(nil), nil
	}

	postings := make([]map[string]keyspace.Tuple, 0, len(q.Terms))
	for _, term := range q.Terms {
		term = strings.ToLower(term)
		termSub := f.subspace.Sub(term)
		begin, end := termSub.Range()
		it, err := tx.GetRange(ctx, begin, end, 0, false)
		if err != nil {
			return nil, err
		}
		set := map[string]keyspace.Tuple{}
		for it.Next(ctx) {
			row := it.KeyValue()
			full, err := f.subspace.Unpack(row.Key)
			if err != nil {
				_ = it.Close()
				return nil, err
			}
			id := full[1:]
			set[idKey(id)] = id
		}
		if err := it.Err(); err != nil {
			_ = it.Close()
			return nil, err
		}
		_ = it.Close()
		postings = append(postings, set)
	}

	var combined map[string]keyspace.Tuple
	switch q.Mode {
	case MatchAll:
		combined = postings[0]
		for _, set := range postings[1:] {
			next := map[string]keyspace.Tuple{}
			for k, v := range combined {
				if _, ok := set[k]; ok {
					next[k] = v
				}
			}
			combined = next
		}
	default: // MatchAny
		combined = map[string]keyspace.Tuple{}
		for _, set := range postings {
			for k, v := range set {
				combined[k] = v
			}
		}
	}

	ids := make([]keyspace.Tuple, 0, len(combined))
	for _, v := range combined {
		ids = append(ids, v)
	}
	sortTuples(ids)
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}

	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{ItemID: id}
	}
	return newSliceEntryIterator(entries), nil
}

func idKey(t keyspace.Tuple) string {
	return string(keyspace.Root().Pack(t))
}

func sortTuples(ts []keyspace.Tuple) {
	sort.Slice(ts, func(i, j int) bool {
		return idKey(ts[i]) < idKey(ts[j])
	})
}
