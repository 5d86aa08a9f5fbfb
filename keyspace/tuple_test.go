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
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTupleRoundTrip(t *testing.T) {
	cases := []Tuple{
		{},
		{nil},
		{int64(42), int64(-42), int64(0)},
		{"hello", []byte{0x00, 0x01, 0xFF}, "with\x00null"},
		{true, false},
		{3.14, -3.14, 0.0},
		{Tuple{int64(1), "nested"}, int64(2)},
	}
	for _, c := range cases {
		b := packTuple(nil, c)
		got, err := unpackTuple(b)
		require.NoError(t, err)
		require.Equal(t, len(c), len(got))
		for i := range c {
			require.Equal(t, c[i], got[i])
		}
	}
}

func TestIntOrderPreserving(t *testing.T) {
	vals := []int64{-100, -10, -1, 0, 1, 10, 100, 1 << 40, -(1 << 40)}
	shuffled := append([]int64(nil), vals...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	encoded := make([][]byte, len(shuffled))
	for i, v := range shuffled {
		encoded[i] = packTuple(nil, Tuple{v})
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i] < shuffled[j] })
	for i, want := range shuffled {
		got, err := unpackTuple(encoded[i])
		require.NoError(t, err)
		require.Equal(t, want, got[0])
	}
}

func TestFloatOrderPreserving(t *testing.T) {
	vals := []float64{-100.5, -1.0, -0.001, 0.0, 0.001, 1.0, 100.5}
	encoded := make([][]byte, len(vals))
	for i, v := range vals {
		encoded[i] = packTuple(nil, Tuple{v})
	}
	for i := 1; i < len(encoded); i++ {
		require.True(t, bytes.Compare(encoded[i-1], encoded[i]) < 0, "expected %v < %v in encoded form", vals[i-1], vals[i])
	}
}

func TestUnpackInvalidEncoding(t *testing.T) {
	_, err := unpackTuple([]byte{0xEE})
	require.ErrorIs(t, err, ErrInvalidEncoding)
}
