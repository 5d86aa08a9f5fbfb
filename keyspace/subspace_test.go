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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubspaceContainment(t *testing.T) {
	a := New([]byte("R"))
	b := a.Sub("users", int64(7))

	begin, end := a.Range()
	key := b.Pack(Tuple{"more"})
	require.True(t, bytes.Compare(key, begin) >= 0)
	if end != nil {
		require.True(t, bytes.Compare(key, end) < 0)
	}
	require.True(t, a.Contains(key))
}

func TestSubspacePackUnpack(t *testing.T) {
	s := New([]byte("I")).Sub("idx_age")
	key := s.Pack(Tuple{int64(30), "u2"})

	got, err := s.Unpack(key)
	require.NoError(t, err)
	require.Equal(t, Tuple{int64(30), "u2"}, got)
}

func TestUnpackForeignPrefixFails(t *testing.T) {
	a := New([]byte("A"))
	bKey := New([]byte("B")).Pack(Tuple{int64(1)})
	_, err := a.Unpack(bKey)
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestSiblingSubspacesDoNotOverlap(t *testing.T) {
	root := New([]byte("I"))
	idx1 := root.Sub("idx_age")
	idx2 := root.Sub("idx_name")

	k1 := idx1.Pack(Tuple{int64(1)})
	require.False(t, idx2.Contains(k1))
}
