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

// Package stats implements the streaming sketches behind selectivity
// estimation: reservoir sampling (Algorithm L), HyperLogLog++ cardinality,
// equi-depth histograms, most-common-value tables, and a Provider that
// composes them into the planner's selectivity interface.
package stats

import (
	"math"
	"math/rand"
)

// yieldBatch is the suggested batch size (§5) after which CPU-heavy sketch
// work should yield voluntarily; exposed so callers processing very large
// streams can checkpoint at the same cadence this package uses internally.
const yieldBatch = 1024

// Reservoir implements Algorithm L: uniform reservoir sampling in
// O(k log(N/k)) via geometric skips once the reservoir fills, producing a
// uniform sample even for adversarially ordered streams.
type Reservoir struct {
	k       int
	rng     *rand.Rand
	samples []any
	seen    int64
	w       float64
	nextIdx int64
}

// NewReservoir returns a Reservoir of capacity k. rng may be nil, in which
// case a new source with the fixed seed 1 is used; tests inject a seeded
// *rand.Rand for determinism.
func NewReservoir(k int, rng *rand.Rand) *Reservoir {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Reservoir{k: k, rng: rng}
}

// Add offers one stream element to the reservoir.
func (r *Reservoir) Add(v any) {
	r.seen++
	if len(r.samples) < r.k {
		r.samples = append(r.samples, v)
		if len(r.samples) == r.k {
			r.w = math.Exp(math.Log(r.rng.Float64()) / float64(r.k))
			r.nextIdx = r.seen + r.skip() + 1
		}
		return
	}
	if r.seen < r.nextIdx {
		return
	}
	r.samples[r.rng.Intn(r.k)] = v
	r.w *= math.Exp(math.Log(r.rng.Float64()) / float64(r.k))
	r.nextIdx = r.seen + r.skip() + 1
}

func (r *Reservoir) skip() int64 {
	u := r.rng.Float64()
	denom := math.Log(1 - r.w)
	if denom == 0 {
		return 0
	}
	s := math.Floor(math.Log(u) / denom)
	if s < 0 {
		return 0
	}
	return int64(s)
}

// Samples returns the current reservoir contents. Callers must not retain the
// returned slice across subsequent Add calls.
func (r *Reservoir) Samples() []any {
	return append([]any(nil), r.samples...)
}

// Len returns the number of stream elements seen so far.
func (r *Reservoir) Len() int64 { return r.seen }

// SampleSize returns the current reservoir occupancy (<= k until the stream
// reaches k elements).
func (r *Reservoir) SampleSize() int { return len(r.samples) }
