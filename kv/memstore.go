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

package kv

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used by this module's own tests to stand in
// for the host KV store described in §6.1. It is not part of the production
// surface: real deployments inject a store backed by the actual transactional
// KV engine.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: map[string][]byte{}}
}

// BeginTx starts a snapshot-isolated transaction over a copy of the current
// key space. Writes are buffered and applied atomically on Commit.
func (m *MemStore) BeginTx(ctx context.Context, snapshot []byte) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		base[k] = v
	}
	return &memTx{store: m, base: base, writes: map[string][]byte{}, cleared: map[string]bool{}}, nil
}

type memTx struct {
	store      *MemStore
	base       map[string][]byte
	writes     map[string][]byte
	clearedRgs [][2][]byte
	cleared    map[string]bool
	done       bool
}

func (t *memTx) view(key string) ([]byte, bool) {
	if t.cleared[key] {
		return nil, false
	}
	for _, rg := range t.clearedRgs {
		if inRange([]byte(key), rg[0], rg[1]) {
			return nil, false
		}
	}
	if v, ok := t.writes[key]; ok {
		return v, true
	}
	v, ok := t.base[key]
	return v, ok
}

func (t *memTx) GetValue(ctx context.Context, key []byte) ([]byte, error) {
	if v, ok := t.view(string(key)); ok {
		return v, nil
	}
	return nil, ErrNotFound
}

func (t *memTx) SetValue(ctx context.Context, key, value []byte) error {
	k := string(key)
	delete(t.cleared, k)
	cp := append([]byte(nil), value...)
	t.writes[k] = cp
	return nil
}

func (t *memTx) Clear(ctx context.Context, key []byte) error {
	k := string(key)
	delete(t.writes, k)
	t.cleared[k] = true
	return nil
}

func (t *memTx) ClearRange(ctx context.Context, begin, end []byte) error {
	t.clearedRgs = append(t.clearedRgs, [2][]byte{begin, end})
	for k := range t.writes {
		if inRange([]byte(k), begin, end) {
			delete(t.writes, k)
		}
	}
	return nil
}

func inRange(key, begin, end []byte) bool {
	if bytes.Compare(key, begin) < 0 {
		return false
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}

func (t *memTx) GetRange(ctx context.Context, begin, end []byte, limit int, reverse bool) (RangeIterator, error) {
	merged := map[string][]byte{}
	for k, v := range t.base {
		if inRange([]byte(k), begin, end) {
			merged[k] = v
		}
	}
	for k, v := range t.writes {
		if inRange([]byte(k), begin, end) {
			merged[k] = v
		}
	}
	for k := range t.cleared {
		delete(merged, k)
	}
	for _, rg := range t.clearedRgs {
		for k := range merged {
			if inRange([]byte(k), rg[0], rg[1]) {
				delete(merged, k)
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	rows := make([]KeyValue, len(keys))
	for i, k := range keys {
		rows[i] = KeyValue{Key: []byte(k), Value: merged[k]}
	}
	return &sliceIterator{rows: rows, idx: -1}, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for k := range t.cleared {
		delete(t.store.data, k)
	}
	for _, rg := range t.clearedRgs {
		for k := range t.store.data {
			if inRange([]byte(k), rg[0], rg[1]) {
				delete(t.store.data, k)
			}
		}
	}
	for k, v := range t.writes {
		t.store.data[k] = v
	}
	t.done = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

type sliceIterator struct {
	rows []KeyValue
	idx  int
	err  error
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if it.idx+1 >= len(it.rows) {
		return false
	}
	it.idx++
	return true
}

func (it *sliceIterator) KeyValue() KeyValue { return it.rows[it.idx] }
func (it *sliceIterator) Err() error         { return it.err }
func (it *sliceIterator) Close() error       { return nil }
