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
	"testing"

	"github.com/stretchr/testify/require"
)

func bitmapWithBits(n int, bits ...int) *Bitmap {
	b := NewBitmap(n)
	for _, i := range bits {
		b.Set(i)
	}
	return b
}

func TestBitmapDoubleNotIsIdentity(t *testing.T) {
	b := bitmapWithBits(130, 0, 1, 63, 64, 65, 129)
	got := b.Not().Not()
	require.Equal(t, b.PopCount(), got.PopCount())
	for i := 0; i < 130; i++ {
		require.Equal(t, b.Get(i), got.Get(i), "bit %d", i)
	}
}

func TestBitmapXorSelfIsZero(t *testing.T) {
	b := bitmapWithBits(200, 2, 5, 100, 199)
	z := b.Xor(b)
	require.Equal(t, 0, z.PopCount())
}

func TestBitmapOutOfRangeNoOp(t *testing.T) {
	b := NewBitmap(10)
	b.Set(-1)
	b.Set(10)
	b.Set(1000)
	require.Equal(t, 0, b.PopCount())
	require.False(t, b.Get(-1))
	require.False(t, b.Get(1000))
}

func TestBitmapAndOr(t *testing.T) {
	a := bitmapWithBits(64, 0, 1, 2)
	b := bitmapWithBits(64, 1, 2, 3)

	and := a.And(b)
	require.True(t, and.Get(1))
	require.True(t, and.Get(2))
	require.False(t, and.Get(0))
	require.False(t, and.Get(3))

	or := a.Or(b)
	for _, i := range []int{0, 1, 2, 3} {
		require.True(t, or.Get(i))
	}
	require.Equal(t, 4, or.PopCount())
}

func TestBitmapPopCountExactAfterMutation(t *testing.T) {
	b := NewBitmap(128)
	require.Equal(t, 0, b.PopCount())
	b.Set(5)
	b.Set(70)
	require.Equal(t, 2, b.PopCount())
	b.Clear(5)
	require.Equal(t, 1, b.PopCount())
}

func TestBitmapEncodeDecodeRoundTrip(t *testing.T) {
	b := bitmapWithBits(300, 0, 1, 2, 63, 64, 127, 128, 200, 299)
	for _, c := range []BitmapCompression{CompressionNone, CompressionRunLength, CompressionWordAligned, CompressionRoaring} {
		enc := Encode(b, c)
		dec := Decode(enc, 300, c)
		require.Equal(t, b.PopCount(), dec.PopCount(), "compression %v", c)
		for i := 0; i < 300; i++ {
			require.Equal(t, b.Get(i), dec.Get(i), "compression %v bit %d", c, i)
		}
	}
}

func TestBitmapEncodeDecodeEmpty(t *testing.T) {
	b := NewBitmap(64)
	for _, c := range []BitmapCompression{CompressionNone, CompressionRunLength, CompressionWordAligned, CompressionRoaring} {
		enc := Encode(b, c)
		dec := Decode(enc, 64, c)
		require.Equal(t, 0, dec.PopCount(), "compression %v", c)
	}
}
