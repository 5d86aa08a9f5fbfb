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
	"github.com/dolthub/coredb/index"
	"github.com/dolthub/coredb/stats"
)

// TransformRule rewrites one LogicalExpr already owned by a group into zero
// or more equivalent LogicalExprs, added back into the same group.
type TransformRule interface {
	Name() string
	Apply(m *Memo, gid GroupId, expr *LogicalExpr) []*LogicalExpr
}

// ImplRule produces physical implementations of a LogicalExpr, each with an
// estimated cost, consulting the statistics provider and the available
// index descriptors for the expression's target type.
type ImplRule interface {
	Name() string
	Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr
}

// PlanContext carries the inputs an implementation rule needs beyond the
// memo itself: statistics, the cost model, and the index catalog for the
// types the query touches.
type PlanContext struct {
	Stats   *stats.Provider
	Weights CostWeights
	Indexes map[string][]index.Descriptor // typeName -> its indexes
}

// NewPlanContext returns an empty PlanContext ready for index registration
// via RegisterIndex.
func NewPlanContext(s *stats.Provider, weights CostWeights) *PlanContext {
	return &PlanContext{Stats: s, Weights: weights, Indexes: map[string][]index.Descriptor{}}
}

// RegisterIndex validates desc against allRecordFields before adding it to
// typeName's index catalog. A covering descriptor that does not actually
// satisfy index.IsFullyCovering is rejected here, at registration time,
// rather than silently reaching IndexOnlyScanImplRule later and producing a
// plan that drops an uncovered field from reconstructed results (§4.3.1).
func (pc *PlanContext) RegisterIndex(typeName string, desc index.Descriptor, allRecordFields []string) error {
	if err := index.ValidateDescriptor(desc, allRecordFields); err != nil {
		return err
	}
	pc.Indexes[typeName] = append(pc.Indexes[typeName], desc)
	return nil
}

func fieldsAllowed(schema map[string]bool, fields []string) bool {
	if len(schema) == 0 {
		return true // unconstrained producer (e.g. a base scan)
	}
	for _, f := range fields {
		if !schema[f] {
			return false
		}
	}
	return true
}

// ---- Transformation rules ----

// FilterPushDownRule pushes a Filter below a Join when the predicate only
// references fields produced by one side, and merges a Filter directly over
// another Filter into a single conjunction.
type FilterPushDownRule struct{}

func (FilterPushDownRule) Name() string { return "FilterPushDown" }

func (FilterPushDownRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr) []*LogicalExpr {
	if expr.Kind != RelFilter || expr.Predicate == nil || len(expr.Children) != 1 {
		return nil
	}
	childGid := expr.Children[0]
	child := m.Group(childGid)
	var out []*LogicalExpr

	for _, childExpr := range child.Logical {
		switch childExpr.Kind {
		case RelFilter:
			// Merge adjacent filters into a single conjunction.
			merged := &LogicalExpr{
				Kind:      RelFilter,
				Children:  childExpr.Children,
				Predicate: combineAnd(expr.Predicate, childExpr.Predicate),
			}
			out = append(out, merged)
		case RelJoin:
			left, right := m.Group(childExpr.Children[0]), m.Group(childExpr.Children[1])
			fields := expr.Predicate.Fields()
			if fieldsAllowed(left.Schema, fields) && len(left.Schema) > 0 {
				pushedLeft := m.Memoize(&LogicalExpr{Kind: RelFilter, Children: []GroupId{childExpr.Children[0]}, Predicate: expr.Predicate})
				out = append(out, &LogicalExpr{
					Kind:      RelJoin,
					Children:  []GroupId{pushedLeft, childExpr.Children[1]},
					Predicate: childExpr.Predicate,
					JoinType:  childExpr.JoinType,
				})
			} else if fieldsAllowed(right.Schema, fields) && len(right.Schema) > 0 {
				pushedRight := m.Memoize(&LogicalExpr{Kind: RelFilter, Children: []GroupId{childExpr.Children[1]}, Predicate: expr.Predicate})
				out = append(out, &LogicalExpr{
					Kind:      RelJoin,
					Children:  []GroupId{childExpr.Children[0], pushedRight},
					Predicate: childExpr.Predicate,
					JoinType:  childExpr.JoinType,
				})
			}
		}
	}
	return out
}

func combineAnd(a, b *Predicate) *Predicate {
	return &Predicate{Op: PredAnd, Children: []Predicate{*a, *b}}
}

// FilterToIndexScanRule rewrites Filter(Scan(t)) into an IndexScan candidate
// when the predicate's bound fields form a prefix of some index's key paths
// on t, leaving the original Filter(Scan) alternative in place for the
// implementation rules to cost against a sequential scan.
type FilterToIndexScanRule struct {
	Indexes map[string][]index.Descriptor
}

func (FilterToIndexScanRule) Name() string { return "FilterToIndexScan" }

func (r FilterToIndexScanRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr) []*LogicalExpr {
	if expr.Kind != RelFilter || expr.Predicate == nil || len(expr.Children) != 1 {
		return nil
	}
	child := m.Group(expr.Children[0])
	var out []*LogicalExpr
	bounds := extractBounds(*expr.Predicate)
	if len(bounds) == 0 {
		return nil
	}
	for _, childExpr := range child.Logical {
		if childExpr.Kind != RelScan {
			continue
		}
		for _, idx := range r.Indexes[childExpr.TypeName] {
			if idx.Kind != index.KindScalar && idx.Kind != index.KindCovering {
				continue
			}
			matched := map[string]bound{}
			for _, kp := range idx.KeyPaths {
				b, ok := bounds[kp]
				if !ok {
					break
				}
				matched[kp] = b
			}
			if len(matched) == 0 {
				continue
			}
			out = append(out, &LogicalExpr{
				Kind:      RelIndexScan,
				TypeName:  childExpr.TypeName,
				IndexName: idx.Name,
				Bounds:    matched,
			})
		}
	}
	return out
}

// JoinCommutativityRule rewrites Join(L,R) into Join(R,L).
type JoinCommutativityRule struct{}

func (JoinCommutativityRule) Name() string { return "JoinCommutativity" }

func (JoinCommutativityRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr) []*LogicalExpr {
	if expr.Kind != RelJoin || expr.JoinType != "inner" {
		return nil
	}
	return []*LogicalExpr{{
		Kind:      RelJoin,
		Children:  []GroupId{expr.Children[1], expr.Children[0]},
		Predicate: expr.Predicate,
		JoinType:  expr.JoinType,
	}}
}

// JoinAssociativityRule rewrites Join(Join(A,B),C) into Join(A,Join(B,C)).
// Only applies to inner joins, where reassociation never changes the result.
type JoinAssociativityRule struct{}

func (JoinAssociativityRule) Name() string { return "JoinAssociativity" }

func (JoinAssociativityRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr) []*LogicalExpr {
	if expr.Kind != RelJoin || expr.JoinType != "inner" {
		return nil
	}
	left := m.Group(expr.Children[0])
	var out []*LogicalExpr
	for _, le := range left.Logical {
		if le.Kind != RelJoin || le.JoinType != "inner" {
			continue
		}
		a, b, c := le.Children[0], le.Children[1], expr.Children[1]
		bc := m.Memoize(&LogicalExpr{Kind: RelJoin, Children: []GroupId{b, c}, Predicate: expr.Predicate, JoinType: "inner"})
		out = append(out, &LogicalExpr{
			Kind:      RelJoin,
			Children:  []GroupId{a, bc},
			Predicate: le.Predicate,
			JoinType:  "inner",
		})
	}
	return out
}

// ProjectionPruningRule collapses a Project directly over another Project
// into a single Project over the grandchild. It does not move a Project
// below a Filter.
type ProjectionPruningRule struct{}

func (ProjectionPruningRule) Name() string { return "ProjectionPruning" }

func (ProjectionPruningRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr) []*LogicalExpr {
	if expr.Kind != RelProject || len(expr.Children) != 1 {
		return nil
	}
	child := m.Group(expr.Children[0])
	var out []*LogicalExpr
	for _, childExpr := range child.Logical {
		if childExpr.Kind == RelProject {
			out = append(out, &LogicalExpr{Kind: RelProject, Children: childExpr.Children, Fields: expr.Fields})
		}
	}
	return out
}

// ---- Implementation rules ----

// SeqScanImplRule implements a RelScan as a full sequential scan.
type SeqScanImplRule struct{}

func (SeqScanImplRule) Name() string { return "SeqScanImpl" }

func (SeqScanImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelScan {
		return nil
	}
	rows := float64(ctx.Stats.RowCount(expr.TypeName))
	return []*PhysicalExpr{{
		Kind:     PhysSeqScan,
		TypeName: expr.TypeName,
		Cost:     ctx.Weights.seqScanCost(rows),
		Props:    PhysicalProperties{EstRows: rows},
	}}
}

func boundSelectivity(ctx *PlanContext, typeName string, bounds map[string]bound) float64 {
	sel := 1.0
	for field, b := range bounds {
		if b.hasEq {
			if f, ok := asFloat(b.eq); ok {
				sel *= ctx.Stats.EqualitySelectivity(typeName, field, f)
				continue
			}
			sel *= stats.DefaultEqualitySelectivity
			continue
		}
		lo, hi := negInf, posInf
		if b.hasLo {
			if f, ok := asFloat(b.lo); ok {
				lo = f
			}
		}
		if b.hasHi {
			if f, ok := asFloat(b.hi); ok {
				hi = f
			}
		}
		sel *= ctx.Stats.RangeSelectivity(typeName, field, lo, hi)
	}
	return sel
}

const negInf = -1e18
const posInf = 1e18

// IndexScanImplRule implements a RelIndexScan by reading matching index
// entries and then fetching the underlying records.
type IndexScanImplRule struct{}

func (IndexScanImplRule) Name() string { return "IndexScanImpl" }

func (IndexScanImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelIndexScan {
		return nil
	}
	rows := float64(ctx.Stats.RowCount(expr.TypeName))
	sel := boundSelectivity(ctx, expr.TypeName, expr.Bounds)
	entries := rows * sel
	if entries < 1 && rows > 0 {
		entries = 1
	}
	return []*PhysicalExpr{{
		Kind:      PhysIndexScan,
		TypeName:  expr.TypeName,
		IndexName: expr.IndexName,
		Bounds:    expr.Bounds,
		Cost:      ctx.Weights.indexScanCost(entries, entries),
		Props:     PhysicalProperties{EstRows: entries},
	}}
}

// IndexOnlyScanImplRule implements a RelIndexScan without a base-record
// fetch, when the index descriptor is fully covering.
type IndexOnlyScanImplRule struct{}

func (IndexOnlyScanImplRule) Name() string { return "IndexOnlyScanImpl" }

func (r IndexOnlyScanImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelIndexScan {
		return nil
	}
	var desc *index.Descriptor
	for _, d := range ctx.Indexes[expr.TypeName] {
		if d.Name == expr.IndexName {
			dd := d
			desc = &dd
			break
		}
	}
	if desc == nil || desc.Kind != index.KindCovering {
		return nil
	}
	rows := float64(ctx.Stats.RowCount(expr.TypeName))
	sel := boundSelectivity(ctx, expr.TypeName, expr.Bounds)
	entries := rows * sel
	if entries < 1 && rows > 0 {
		entries = 1
	}
	return []*PhysicalExpr{{
		Kind:      PhysIndexOnlyScan,
		TypeName:  expr.TypeName,
		IndexName: expr.IndexName,
		Bounds:    expr.Bounds,
		Cost:      ctx.Weights.indexOnlyScanCost(entries),
		Props:     PhysicalProperties{EstRows: entries},
	}}
}

// FilterImplRule implements a RelFilter as a post-filter over its child's
// cheapest plan.
type FilterImplRule struct{}

func (FilterImplRule) Name() string { return "FilterImpl" }

func (FilterImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelFilter {
		return nil
	}
	return []*PhysicalExpr{{
		Kind:      PhysFilter,
		Children:  expr.Children,
		Predicate: expr.Predicate,
	}}
}

// SortImplRule implements a RelSort as an in-memory sort of its child.
type SortImplRule struct{}

func (SortImplRule) Name() string { return "SortImpl" }

func (SortImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelSort {
		return nil
	}
	return []*PhysicalExpr{{
		Kind:       PhysSort,
		Children:   expr.Children,
		SortFields: expr.SortFields,
		Props:      PhysicalProperties{SortOrder: expr.SortFields},
	}}
}

// LimitImplRule implements a RelLimit as a pass-through row cap.
type LimitImplRule struct{}

func (LimitImplRule) Name() string { return "LimitImpl" }

func (LimitImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelLimit {
		return nil
	}
	return []*PhysicalExpr{{
		Kind:     PhysLimit,
		Children: expr.Children,
		Limit:    expr.Limit,
		Offset:   expr.Offset,
	}}
}

// HashJoinImplRule, MergeJoinImplRule, NestedLoopJoinImplRule implement a
// RelJoin with their respective algorithms. MergeJoin additionally requires
// both children be sorted on the join key, which the search loop enforces by
// requesting that sort order from the child groups.
type HashJoinImplRule struct{}

func (HashJoinImplRule) Name() string { return "HashJoinImpl" }

func (HashJoinImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelJoin {
		return nil
	}
	return []*PhysicalExpr{{Kind: PhysHashJoin, Children: expr.Children, Predicate: expr.Predicate, JoinAlgo: "hash"}}
}

type MergeJoinImplRule struct{}

func (MergeJoinImplRule) Name() string { return "MergeJoinImpl" }

func (MergeJoinImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelJoin || expr.Predicate == nil || expr.Predicate.Op != PredEq {
		return nil
	}
	return []*PhysicalExpr{{Kind: PhysMergeJoin, Children: expr.Children, Predicate: expr.Predicate, JoinAlgo: "merge",
		Props: PhysicalProperties{SortOrder: []SortField{{Field: expr.Predicate.Field}}}}}
}

type NestedLoopJoinImplRule struct{}

func (NestedLoopJoinImplRule) Name() string { return "NestedLoopJoinImpl" }

func (NestedLoopJoinImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelJoin {
		return nil
	}
	return []*PhysicalExpr{{Kind: PhysNestedLoopJoin, Children: expr.Children, Predicate: expr.Predicate, JoinAlgo: "nestedLoop"}}
}

// ProjectionImplRule implements a RelProject as an in-memory field
// projection over its child's cheapest plan.
type ProjectionImplRule struct{}

func (ProjectionImplRule) Name() string { return "ProjectionImpl" }

func (ProjectionImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelProject {
		return nil
	}
	return []*PhysicalExpr{{
		Kind:     PhysProjection,
		Children: expr.Children,
		Fields:   expr.Fields,
	}}
}

// DistinctAggregateImplRule implements a RelDistinctAgg as an in-memory
// hash-based duplicate-elimination pass over its child's cheapest plan.
type DistinctAggregateImplRule struct{}

func (DistinctAggregateImplRule) Name() string { return "DistinctAggregateImpl" }

func (DistinctAggregateImplRule) Apply(m *Memo, gid GroupId, expr *LogicalExpr, ctx *PlanContext) []*PhysicalExpr {
	if expr.Kind != RelDistinctAgg {
		return nil
	}
	return []*PhysicalExpr{{
		Kind:     PhysDistinctAggregate,
		Children: expr.Children,
		TypeName: expr.TypeName,
		Fields:   expr.Fields,
	}}
}

// DefaultTransformRules returns the transformation rule set applied during
// exploration, grounded on go-mysql-server's sql/memo rewrite set.
func DefaultTransformRules(indexes map[string][]index.Descriptor) []TransformRule {
	return []TransformRule{
		FilterPushDownRule{},
		FilterToIndexScanRule{Indexes: indexes},
		JoinCommutativityRule{},
		JoinAssociativityRule{},
		ProjectionPruningRule{},
	}
}

// DefaultImplRules returns the implementation rule set applied during
// costing.
func DefaultImplRules() []ImplRule {
	return []ImplRule{
		SeqScanImplRule{},
		IndexScanImplRule{},
		IndexOnlyScanImplRule{},
		FilterImplRule{},
		HashJoinImplRule{},
		MergeJoinImplRule{},
		NestedLoopJoinImplRule{},
		SortImplRule{},
		LimitImplRule{},
		ProjectionImplRule{},
		DistinctAggregateImplRule{},
	}
}
