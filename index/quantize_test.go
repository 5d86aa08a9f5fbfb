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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func TestProductQuantizerTrainEncodeDistance(t *testing.T) {
	vectors := randomVectors(64, 8, 1)
	pq := NewProductQuantizer(8, 4, 4)
	require.NoError(t, pq.Train(vectors))

	target := vectors[0]
	state := pq.PrepareQuery(target)
	code := pq.Encode(target)
	d := pq.DistanceWithPrepared(state, code)
	require.GreaterOrEqual(t, d, float32(0))
}

func TestProductQuantizerSerializeRoundTrip(t *testing.T) {
	vectors := randomVectors(32, 8, 2)
	pq := NewProductQuantizer(8, 4, 4)
	require.NoError(t, pq.Train(vectors))
	blob := pq.Serialize()

	pq2 := NewProductQuantizer(8, 4, 4)
	require.NoError(t, pq2.Deserialize(blob))

	code1 := pq.Encode(vectors[0])
	code2 := pq2.Encode(vectors[0])
	require.Equal(t, code1, code2)
}

func TestProductQuantizerRejectsMismatchedParams(t *testing.T) {
	vectors := randomVectors(32, 8, 3)
	pq := NewProductQuantizer(8, 4, 4)
	require.NoError(t, pq.Train(vectors))
	blob := pq.Serialize()

	pq2 := NewProductQuantizer(8, 2, 4)
	require.ErrorIs(t, pq2.Deserialize(blob), ErrQuantizerParamsMismatch)
}

func TestScalarQuantizer8BitRoundTripApprox(t *testing.T) {
	vectors := randomVectors(32, 4, 4)
	sq := NewScalarQuantizer(4, 8)
	require.NoError(t, sq.Train(vectors))

	target := vectors[0]
	code := sq.Encode(target)
	state := sq.PrepareQuery(target)
	d := sq.DistanceWithPrepared(state, code)
	require.Less(t, d, float32(0.5))
}

func TestScalarQuantizerSerializeRejectsMismatch(t *testing.T) {
	vectors := randomVectors(16, 4, 5)
	sq := NewScalarQuantizer(4, 8)
	require.NoError(t, sq.Train(vectors))
	blob := sq.Serialize()

	sq2 := NewScalarQuantizer(3, 8)
	require.ErrorIs(t, sq2.Deserialize(blob), ErrQuantizerParamsMismatch)
}

func TestBinaryQuantizerHammingDistance(t *testing.T) {
	vectors := randomVectors(32, 16, 6)
	bq := NewBinaryQuantizer(16)
	require.NoError(t, bq.Train(vectors))

	target := vectors[0]
	state := bq.PrepareQuery(target)
	code := bq.Encode(target)
	require.Equal(t, float32(0), bq.DistanceWithPrepared(state, code))

	other := vectors[1]
	otherCode := bq.Encode(other)
	require.Greater(t, bq.DistanceWithPrepared(state, otherCode), float32(0))
}

func TestBinaryQuantizerSerializeRoundTrip(t *testing.T) {
	vectors := randomVectors(16, 8, 7)
	bq := NewBinaryQuantizer(8)
	require.NoError(t, bq.Train(vectors))
	blob := bq.Serialize()

	bq2 := NewBinaryQuantizer(8)
	require.NoError(t, bq2.Deserialize(blob))
	require.Equal(t, bq.Threshold, bq2.Threshold)
}
