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

// Package kv defines the external collaborator interfaces the query
// execution core requires of its host: a transactional ordered key-value
// store (§6.1), a record codec (§6.2), and field reflection over user record
// types (§6.3). The core never implements these; it only consumes them.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetValue when the key has no value, and is the
// sentinel reads of missing records/indexes should propagate as the "not
// found" error kind (§7).
var ErrNotFound = errors.New("kv: key not found")

// KeyValue is a single row from a range scan.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Transaction is a single serializable unit of work against the host store.
// It must be obtained bounded by the host's transaction lifetime (assumed
// 5s); long operations split across transactions at well-defined
// checkpoints rather than holding one open indefinitely.
type Transaction interface {
	// GetValue returns the value at key as of this transaction's snapshot, or
	// ErrNotFound if absent.
	GetValue(ctx context.Context, key []byte) ([]byte, error)

	// GetRange streams key-value pairs in [begin, end) in lexicographic
	// order (or reverse order, if reverse is true), honoring limit (0 means
	// unbounded) and the demand-driven iteration contract of §5: the next
	// chunk is fetched only when the returned iterator is advanced.
	GetRange(ctx context.Context, begin, end []byte, limit int, reverse bool) (RangeIterator, error)

	// SetValue writes bytes at key, replacing any existing value.
	SetValue(ctx context.Context, key, value []byte) error

	// Clear removes any value at key. Idempotent.
	Clear(ctx context.Context, key []byte) error

	// ClearRange removes every key in [begin, end). Idempotent.
	ClearRange(ctx context.Context, begin, end []byte) error

	// Commit finalizes the transaction. A commit-conflict error is
	// retryable by the caller at the same granularity.
	Commit(ctx context.Context) error

	// Rollback discards the transaction's writes.
	Rollback(ctx context.Context) error
}

// RangeIterator is a lazy, finite, non-restartable stream of key-value pairs.
// Cancellation of the supplied context drops the stream and releases its
// resources; the producer issues its next underlying range chunk only when
// Next is called again (backpressure, §5).
type RangeIterator interface {
	// Next advances to the next pair, returning false at end of stream or on
	// error (check Err in that case).
	Next(ctx context.Context) bool
	KeyValue() KeyValue
	Err() error
	Close() error
}

// Store opens transactions against the host's ordered key-value store.
type Store interface {
	// BeginTx starts a new serializable transaction. snapshot, if non-nil,
	// pins reads to a prior snapshot version for repeatable queries.
	BeginTx(ctx context.Context, snapshot []byte) (Transaction, error)
}
