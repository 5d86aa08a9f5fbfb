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

package planner

import (
	"sync"

	"github.com/dolthub/coredb/stats"
)

// ExecutionStats is the runtime feedback one executed plan reports back:
// what the optimizer estimated for its root operator versus what actually
// happened, plus which indexes it touched.
type ExecutionStats struct {
	EstimatedRows int64
	ActualRows    int64
	UsedIndexes   []string
}

// driftSample is one fingerprint's recorded estimate/actual ratio.
type driftSample struct {
	ratio float64
}

// DriftDetector watches the estimate/actual row-count ratio of executed
// plans per query fingerprint. Once a fingerprint accumulates enough
// samples (MinSamples) whose average ratio strays past DriftThreshold, its
// cached plan is invalidated and the OnRefresh hook, if set, is called with
// the query's type name so the caller can resample statistics (the Stats
// provider itself is not touched) — the planner's statistics are only as
// good as their last sample,
// and a workload that outgrows them should trigger a resample rather than
// keep compounding a stale plan choice (§4.5: "runtime feedback drives
// cache invalidation and statistics refresh").
type DriftDetector struct {
	mu             sync.Mutex
	samples        map[string][]driftSample
	MinSamples     int
	DriftThreshold float64
	Cache          *PlanCache
	Stats          *stats.Provider
	OnRefresh      func(typeName string)
}

// NewDriftDetector returns a detector wired to cache and provider, using
// the given minimum sample count and drift threshold (e.g. 5 samples, 2.0x).
func NewDriftDetector(cache *PlanCache, provider *stats.Provider, minSamples int, threshold float64) *DriftDetector {
	return &DriftDetector{
		samples:        map[string][]driftSample{},
		MinSamples:     minSamples,
		DriftThreshold: threshold,
		Cache:          cache,
		Stats:          provider,
	}
}

// Record registers one execution's feedback for fingerprint. It returns
// true if this sample pushed the fingerprint's cached plan past the drift
// threshold, in which case the cache entry has already been invalidated.
func (d *DriftDetector) Record(fingerprint, typeName string, stats ExecutionStats) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ratio := 1.0
	if stats.EstimatedRows > 0 {
		ratio = float64(stats.ActualRows) / float64(stats.EstimatedRows)
		if ratio < 1 {
			ratio = 1 / ratio
		}
	} else if stats.ActualRows > 0 {
		ratio = d.DriftThreshold + 1 // an estimate of zero with nonzero actual rows is always drift
	}

	d.samples[fingerprint] = append(d.samples[fingerprint], driftSample{ratio: ratio})
	history := d.samples[fingerprint]
	if len(history) < d.MinSamples {
		return false
	}

	avg := 0.0
	for _, s := range history[len(history)-d.MinSamples:] {
		avg += s.ratio
	}
	avg /= float64(d.MinSamples)

	if avg <= d.DriftThreshold {
		return false
	}

	if d.Cache != nil {
		d.Cache.Invalidate(fingerprint)
	}
	if d.OnRefresh != nil {
		d.OnRefresh(typeName)
	}
	delete(d.samples, fingerprint)
	return true
}
