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

package keyspace

import (
	"bytes"
	"fmt"
)

// Subspace is an ordered-bytes prefix plus the tuple-packing protocol of this
// package. All persistent structures in the system are fixed Subspace
// layouts; nothing addresses the host KV store with raw bytes directly.
type Subspace struct {
	prefix []byte
}

// Root returns the empty subspace, the ancestor of every other subspace.
func Root() Subspace {
	return Subspace{}
}

// New returns a subspace with the given raw byte prefix, typically a single
// short tag byte or string naming a top-level layout (e.g. "R" for items).
func New(prefix []byte) Subspace {
	cp := make([]byte, len(prefix))
	copy(cp, prefix)
	return Subspace{prefix: cp}
}

// Bytes returns the subspace's raw prefix.
func (s Subspace) Bytes() []byte {
	cp := make([]byte, len(s.prefix))
	copy(cp, s.prefix)
	return cp
}

// Sub derives a child subspace by appending the packed encoding of t to this
// subspace's prefix. Every key packed by the child is bracketed by the
// parent's Range.
func (s Subspace) Sub(t ...any) Subspace {
	packed := packTuple(append([]byte(nil), s.prefix...), Tuple(t))
	return Subspace{prefix: packed}
}

// Pack encodes t and prepends this subspace's prefix, producing a key.
func (s Subspace) Pack(t Tuple) []byte {
	return packTuple(append([]byte(nil), s.prefix...), t)
}

// Unpack strips this subspace's prefix from key and decodes the remainder as
// a Tuple. It fails with ErrInvalidEncoding if key does not begin with the
// subspace's prefix or the remainder is not a valid tuple encoding.
func (s Subspace) Unpack(key []byte) (Tuple, error) {
	if !bytes.HasPrefix(key, s.prefix) {
		return nil, fmt.Errorf("%w: key does not belong to subspace", ErrInvalidEncoding)
	}
	return unpackTuple(key[len(s.prefix):])
}

// Range returns the half-open byte range [begin, end) covering every key
// this subspace (or any of its descendants) could ever pack.
func (s Subspace) Range() (begin, end []byte) {
	begin = append([]byte(nil), s.prefix...)
	end = strinc(s.prefix)
	return begin, end
}

// Contains reports whether key falls within this subspace's Range.
func (s Subspace) Contains(key []byte) bool {
	begin, end := s.Range()
	return bytes.Compare(key, begin) >= 0 && (end == nil || bytes.Compare(key, end) < 0)
}

// strinc returns the smallest byte string that is strictly greater than
// every string with prefix b, by incrementing the last byte that isn't
// already 0xFF and truncating after it. A prefix of all 0xFF bytes (or empty)
// has no finite successor; strinc returns nil to mean "no upper bound".
func strinc(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
