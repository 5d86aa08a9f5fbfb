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

package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReservoirSizeCaps(t *testing.T) {
	r := NewReservoir(10, rand.New(rand.NewSource(42)))
	for i := 0; i < 10000; i++ {
		r.Add(i)
	}
	require.Equal(t, 10, r.SampleSize())
	require.EqualValues(t, 10000, r.Len())
}

func TestReservoirUniformityAcrossManyTrials(t *testing.T) {
	const n, k, trials = 20, 5, 4000
	counts := make([]int, n)
	for trial := 0; trial < trials; trial++ {
		r := NewReservoir(k, rand.New(rand.NewSource(int64(trial))))
		for i := 0; i < n; i++ {
			r.Add(i)
		}
		for _, v := range r.Samples() {
			counts[v.(int)]++
		}
	}
	want := float64(trials*k) / float64(n)
	for i, c := range counts {
		diff := float64(c) - want
		if diff < 0 {
			diff = -diff
		}
		require.Less(t, diff/want, 0.25, "element %d selected %d times, want ~%v", i, c, want)
	}
}

func TestReservoirSmallerThanCapacity(t *testing.T) {
	r := NewReservoir(100, nil)
	for i := 0; i < 5; i++ {
		r.Add(i)
	}
	require.Equal(t, 5, r.SampleSize())
}
