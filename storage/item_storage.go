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

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// DefaultInlineThreshold is the largest encoded record size, in bytes, that
// is stored inline in the envelope rather than chained as blob chunks.
const DefaultInlineThreshold = 4096

// DefaultChunkSize is the size of each blob chunk written under the blobs
// subspace.
const DefaultChunkSize = 8192

// IndexMaintainer observes a record mutation and produces the corresponding
// index-entry side effects within the caller's transaction (§4.2, §4.3).
// Implementations must be idempotent when old == new.
type IndexMaintainer interface {
	Update(ctx context.Context, tx kv.Transaction, typeName string, oldRecord, newRecord any) error
}

// ItemStorage reads and writes record envelopes under an items subspace and
// drives index maintenance on every insert/update/delete.
type ItemStorage struct {
	items           keyspace.Subspace
	blobs           keyspace.Subspace
	codec           kv.RecordCodec
	inlineThreshold int
	chunkSize       int
	maintainers     map[string][]IndexMaintainer
}

// NewItemStorage constructs an ItemStorage rooted at items/blobs subspaces.
func NewItemStorage(items, blobs keyspace.Subspace, codec kv.RecordCodec) *ItemStorage {
	return &ItemStorage{
		items:           items,
		blobs:           blobs,
		codec:           codec,
		inlineThreshold: DefaultInlineThreshold,
		chunkSize:       DefaultChunkSize,
		maintainers:     map[string][]IndexMaintainer{},
	}
}

// RegisterMaintainer attaches an IndexMaintainer to every write of records of
// typeName. Maintainers are invoked in registration order, within the same
// transaction as the record write (§4.2: "all maintainer side effects must
// execute within the caller's transaction").
func (s *ItemStorage) RegisterMaintainer(typeName string, m IndexMaintainer) {
	s.maintainers[typeName] = append(s.maintainers[typeName], m)
}

func (s *ItemStorage) key(typeName string, id keyspace.Tuple) []byte {
	return s.items.Sub(typeName).Pack(id)
}

// Get fetches and decodes the record at id, or ErrNoEnvelope if absent.
func (s *ItemStorage) Get(ctx context.Context, tx kv.Transaction, typeName string, id keyspace.Tuple) (any, error) {
	raw, err := tx.GetValue(ctx, s.key(typeName, id))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, ErrNoEnvelope
		}
		return nil, err
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	data, err := s.reassemble(ctx, tx, env)
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(typeName, data)
}

func (s *ItemStorage) reassemble(ctx context.Context, tx kv.Transaction, env Envelope) ([]byte, error) {
	if !env.IsBlob {
		return env.Inline, nil
	}
	out := make([]byte, 0, env.Length)
	chunkSub := s.blobs.Sub(env.BlobID.String())
	for i := 0; i < env.Chunks; i++ {
		chunk, err := tx.GetValue(ctx, chunkSub.Pack(keyspace.Tuple{int64(i)}))
		if err != nil {
			return nil, fmt.Errorf("storage: fetching blob chunk %d of %s: %w", i, env.BlobID, err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// Put inserts or replaces the record at id, then invokes every registered
// IndexMaintainer for typeName with (old, new).
func (s *ItemStorage) Put(ctx context.Context, tx kv.Transaction, typeName string, id keyspace.Tuple, record any) error {
	old, err := s.Get(ctx, tx, typeName, id)
	if err != nil && err != ErrNoEnvelope {
		return err
	}
	if err == ErrNoEnvelope {
		old = nil
	}

	data, err := s.codec.Encode(typeName, record)
	if err != nil {
		return fmt.Errorf("storage: encoding record: %w", err)
	}

	env, err := s.writeEnvelope(ctx, tx, typeName, data)
	if err != nil {
		return err
	}
	if err := tx.SetValue(ctx, s.key(typeName, id), EncodeEnvelope(env)); err != nil {
		return err
	}
	return s.maintain(ctx, tx, typeName, old, record)
}

func (s *ItemStorage) writeEnvelope(ctx context.Context, tx kv.Transaction, typeName string, data []byte) (Envelope, error) {
	if len(data) <= s.inlineThreshold {
		return Envelope{Version: EnvelopeV1, Inline: data}, nil
	}
	blobID := uuid.New()
	chunkSub := s.blobs.Sub(blobID.String())
	n := 0
	for off := 0; off < len(data); off += s.chunkSize {
		end := off + s.chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := tx.SetValue(ctx, chunkSub.Pack(keyspace.Tuple{int64(n)}), data[off:end]); err != nil {
			return Envelope{}, err
		}
		n++
	}
	return Envelope{Version: EnvelopeV1, IsBlob: true, BlobID: blobID, Chunks: n, Length: len(data)}, nil
}

// Delete removes the record at id (and any blob chunks it chained to), then
// invokes every registered IndexMaintainer with (old, nil).
func (s *ItemStorage) Delete(ctx context.Context, tx kv.Transaction, typeName string, id keyspace.Tuple) error {
	old, err := s.Get(ctx, tx, typeName, id)
	if err == ErrNoEnvelope {
		return nil
	}
	if err != nil {
		return err
	}
	raw, err := tx.GetValue(ctx, s.key(typeName, id))
	if err != nil {
		return err
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	if env.IsBlob {
		begin, end := s.blobs.Sub(env.BlobID.String()).Range()
		if err := tx.ClearRange(ctx, begin, end); err != nil {
			return err
		}
	}
	if err := tx.Clear(ctx, s.key(typeName, id)); err != nil {
		return err
	}
	return s.maintain(ctx, tx, typeName, old, nil)
}

func (s *ItemStorage) maintain(ctx context.Context, tx kv.Transaction, typeName string, old, new any) error {
	for _, m := range s.maintainers[typeName] {
		if err := m.Update(ctx, tx, typeName, old, new); err != nil {
			return fmt.Errorf("storage: index maintenance for %s: %w", typeName, err)
		}
	}
	return nil
}
