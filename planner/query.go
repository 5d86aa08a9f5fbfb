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

// Join describes one join input of a Query: the other side's type name and
// the equality predicate binding the two sides together.
type Join struct {
	TypeName  string
	Predicate Predicate
}

// Query is the planner's input: a single-table read augmented with zero or
// more joins, an optional filter, sort, limit/offset, and projection. It is
// deliberately simple relative to a full relational algebra — the memo,
// rules, and cost model are the parts this package exists to exercise.
type Query struct {
	TypeName   string
	Joins      []Join
	Filter     *Predicate
	Sort       []SortField
	Limit      int
	Offset     int
	HasLimit   bool
	Projection []string
	// Distinct requests duplicate elimination over Projection (or, if
	// Projection is empty, over every field of the row) — the
	// DistinctAggregate physical operator.
	Distinct bool
}

// buildInitialMemo memoizes q's canonical logical plan (Scan, then Joins,
// then Filter, then Sort, then Limit, then Project) and returns the root
// group id. Transformation rules subsequently explore equivalent rewrites
// from this starting point.
func buildInitialMemo(m *Memo, q Query) GroupId {
	root := m.Memoize(&LogicalExpr{Kind: RelScan, TypeName: q.TypeName})
	for _, j := range q.Joins {
		rhs := m.Memoize(&LogicalExpr{Kind: RelScan, TypeName: j.TypeName})
		pred := j.Predicate
		root = m.Memoize(&LogicalExpr{
			Kind:      RelJoin,
			Children:  []GroupId{root, rhs},
			Predicate: &pred,
			JoinType:  "inner",
		})
	}
	if q.Filter != nil {
		root = m.Memoize(&LogicalExpr{Kind: RelFilter, Children: []GroupId{root}, Predicate: q.Filter})
	}
	if len(q.Sort) > 0 {
		root = m.Memoize(&LogicalExpr{Kind: RelSort, Children: []GroupId{root}, SortFields: q.Sort})
	}
	if q.HasLimit {
		root = m.Memoize(&LogicalExpr{Kind: RelLimit, Children: []GroupId{root}, Limit: q.Limit, Offset: q.Offset, HasLimit: true})
	}
	if len(q.Projection) > 0 {
		root = m.Memoize(&LogicalExpr{Kind: RelProject, Children: []GroupId{root}, Fields: q.Projection})
	}
	if q.Distinct {
		root = m.Memoize(&LogicalExpr{Kind: RelDistinctAgg, Children: []GroupId{root}, TypeName: q.TypeName, Fields: q.Projection})
	}
	return root
}
