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
	"sync"
	"time"
)

// DefaultEqualitySelectivity and DefaultRangeSelectivity are the fallback
// estimates used when a field has no statistics yet (§4.4).
const (
	DefaultEqualitySelectivity = 0.01
	DefaultRangeSelectivity    = 0.3
)

// TableStats is the per-table summary: row count, sample size, and the
// instant the sample was taken.
type TableStats struct {
	RowCount   int64
	SampleSize int
	SampledAt  time.Time
}

// FieldStats composes the sketches for one field: an HLL++-backed distinct
// count, a null count, an equi-depth histogram, and an MCV table.
type FieldStats struct {
	Distinct  uint64
	Histogram Histogram
	MCV       MCV
}

// IndexStats tracks entry count and average entries per key for one index.
type IndexStats struct {
	EntryCount       int64
	AvgEntriesPerKey float64
}

// Provider is the statistics engine's read surface for the planner: per-
// table row counts, per-field selectivity, and per-index entry counts.
// Concurrent reads are safe; writers (SetTableStats, SetFieldStats,
// SetIndexStats) take one provider-wide exclusive lock, so there is at most
// one writer at a time (§5: "statistics allow concurrent read, single writer
// per type").
type Provider struct {
	mu     sync.RWMutex
	tables map[string]TableStats
	fields map[fieldKey]FieldStats
	idxs   map[string]IndexStats
}

type fieldKey struct {
	typeName, field string
}

// NewProvider returns an empty statistics provider.
func NewProvider() *Provider {
	return &Provider{
		tables: map[string]TableStats{},
		fields: map[fieldKey]FieldStats{},
		idxs:   map[string]IndexStats{},
	}
}

// SetTableStats records row-count/sample-size statistics for typeName.
func (p *Provider) SetTableStats(typeName string, s TableStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tables[typeName] = s
}

// SetFieldStats records field-level sketches for typeName.field.
func (p *Provider) SetFieldStats(typeName, field string, s FieldStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[fieldKey{typeName, field}] = s
}

// SetIndexStats records entry-count statistics for the named index.
func (p *Provider) SetIndexStats(indexName string, s IndexStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idxs[indexName] = s
}

// RowCount returns the estimated row count for typeName, or 0 if unknown.
func (p *Provider) RowCount(typeName string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tables[typeName].RowCount
}

// DistinctValues returns the HLL++ distinct-value estimate for a field, or 0
// if unknown.
func (p *Provider) DistinctValues(typeName, field string) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fields[fieldKey{typeName, field}].Distinct
}

// EqualitySelectivity estimates P(field = v), consulting the MCV table
// first and falling back to the histogram's residual mass, then to the
// conservative default if no statistics exist at all.
func (p *Provider) EqualitySelectivity(typeName, field string, v float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fs, ok := p.fields[fieldKey{typeName, field}]
	if !ok {
		return DefaultEqualitySelectivity
	}
	if freq, ok := fs.MCV.Selectivity(v); ok {
		return freq
	}
	residual := fs.MCV.ResidualMass()
	return residual * fs.Histogram.EqualitySelectivity(v)
}

// RangeSelectivity estimates P(lo <= field <= hi) from the field's
// histogram, or the conservative default if no statistics exist.
func (p *Provider) RangeSelectivity(typeName, field string, lo, hi float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fs, ok := p.fields[fieldKey{typeName, field}]
	if !ok {
		return DefaultRangeSelectivity
	}
	return fs.Histogram.RangeSelectivity(lo, hi)
}

// NullSelectivity estimates P(field isNil).
func (p *Provider) NullSelectivity(typeName, field string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fs, ok := p.fields[fieldKey{typeName, field}]
	if !ok {
		return DefaultEqualitySelectivity
	}
	return fs.Histogram.NullSelectivity()
}

// IndexEntries returns entry-count statistics for indexName.
func (p *Provider) IndexEntries(indexName string) IndexStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idxs[indexName]
}
