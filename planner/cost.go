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

import "math"

// CostWeights are the per-operation weights of the cost model's weighted
// sum, mirroring PostgreSQL's classic planner defaults (§4.5): a sequential
// page read costs 1 unit, a random page read costs 4, and touching one tuple
// in memory costs 0.01.
type CostWeights struct {
	SeqPageCost    float64
	RandomPageCost float64
	CPUTupleCost   float64
}

// DefaultCostWeights returns the PostgreSQL-derived defaults.
func DefaultCostWeights() CostWeights {
	return CostWeights{SeqPageCost: 1.0, RandomPageCost: 4.0, CPUTupleCost: 0.01}
}

// rowsPerPage approximates how many tuples a sequential page holds, so a
// seq scan's I/O cost amortizes across pages rather than being charged per
// row the way a random-access index probe is.
const rowsPerPage = 100.0

func (w CostWeights) recordFetchWeight() float64     { return w.RandomPageCost }
func (w CostWeights) postFilterWeight() float64      { return w.CPUTupleCost }
func (w CostWeights) sortWeight() float64            { return w.CPUTupleCost }
func (w CostWeights) rangeInitiationWeight() float64 { return w.SeqPageCost }

// seqScanCost estimates reading every row of a table of size rows: the
// sequential pages it spans, plus per-tuple CPU cost.
func (w CostWeights) seqScanCost(rows float64) float64 {
	pages := math.Ceil(rows / rowsPerPage)
	if pages < 1 {
		pages = 1
	}
	return pages*w.SeqPageCost + rows*w.CPUTupleCost
}

// indexScanCost estimates a range scan returning indexEntries index entries,
// each requiring one random-access base-table fetch, plus a fixed
// per-range-scan initiation cost for positioning the index cursor. Walking
// the matched index entries themselves is cheap and sequential relative to
// the random heap fetch each one triggers.
func (w CostWeights) indexScanCost(indexEntries, recordFetches float64) float64 {
	return indexEntries*w.CPUTupleCost + recordFetches*w.recordFetchWeight() + w.rangeInitiationWeight()
}

// indexOnlyScanCost is an index scan that never touches the base records, so
// it pays only the cheap sequential index-entry cost.
func (w CostWeights) indexOnlyScanCost(indexEntries float64) float64 {
	return indexEntries*w.CPUTupleCost + w.rangeInitiationWeight()
}

// filterCost estimates evaluating a predicate over rows input rows.
func (w CostWeights) filterCost(rows float64) float64 {
	return rows * w.postFilterWeight()
}

// projectionCost estimates copying out a field subset for rows input rows:
// cheap, per-tuple CPU work, no I/O.
func (w CostWeights) projectionCost(rows float64) float64 {
	return rows * w.CPUTupleCost
}

// distinctCost estimates a hash-based duplicate-elimination pass over rows
// input rows: one hash-set insert per tuple, the same per-tuple unit a hash
// join's build side uses.
func (w CostWeights) distinctCost(rows float64) float64 {
	return rows * w.CPUTupleCost
}

// sortCost estimates an n log n in-memory sort.
func (w CostWeights) sortCost(rows float64) float64 {
	if rows <= 1 {
		return w.sortWeight()
	}
	return rows * math.Log2(rows) * w.sortWeight()
}

// hashJoinCost estimates building a hash table over the smaller side and
// probing with the larger.
func (w CostWeights) hashJoinCost(leftRows, rightRows float64) float64 {
	return (leftRows + rightRows) * w.CPUTupleCost
}

// mergeJoinCost assumes both sides already arrive sorted; cost is linear in
// their combined size.
func (w CostWeights) mergeJoinCost(leftRows, rightRows float64) float64 {
	return (leftRows + rightRows) * w.CPUTupleCost * 0.5
}

// nestedLoopJoinCost is quadratic: every left row scans every right row.
func (w CostWeights) nestedLoopJoinCost(leftRows, rightRows float64) float64 {
	return leftRows * rightRows * w.CPUTupleCost
}
