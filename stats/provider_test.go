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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviderFallsBackToDefaultsWhenUnknown(t *testing.T) {
	p := NewProvider()
	require.Equal(t, DefaultEqualitySelectivity, p.EqualitySelectivity("user", "age", 30))
	require.Equal(t, DefaultRangeSelectivity, p.RangeSelectivity("user", "age", 0, 100))
	require.EqualValues(t, 0, p.RowCount("user"))
}

func TestProviderServesRegisteredStats(t *testing.T) {
	p := NewProvider()
	p.SetTableStats("user", TableStats{RowCount: 1000})
	vals := []float64{20, 25, 30, 30, 30, 35}
	h := BuildHistogram(vals, 3, 0)
	p.SetFieldStats("user", "age", FieldStats{Distinct: 4, Histogram: h})
	p.SetIndexStats("idx_age", IndexStats{EntryCount: 1000, AvgEntriesPerKey: 1})

	require.EqualValues(t, 1000, p.RowCount("user"))
	require.EqualValues(t, 4, p.DistinctValues("user", "age"))
	require.Greater(t, p.EqualitySelectivity("user", "age", 30), 0.0)
	require.EqualValues(t, 1000, p.IndexEntries("idx_age").EntryCount)
}
