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
	"context"
	"errors"
	"math"
	"time"
)

// ErrPlanningTimeout is returned by Optimize when PlanningTimeout elapses
// before the search converges. The best plan found so far, if any, is
// returned alongside the error so callers can still execute a (possibly
// suboptimal) plan rather than fail the query outright.
var ErrPlanningTimeout = errors.New("planner: planning timeout exceeded")

// explore saturates every group in the memo with equivalent logical
// alternatives by repeatedly applying the transformation rule set to a
// fixed point (no rule produces a new alternative on a full pass). The
// number of groups only grows monotonically, so this always terminates.
func explore(m *Memo, rules []TransformRule) {
	for {
		changed := false
		for gid := GroupId(0); int(gid) < len(m.groups); gid++ {
			g := m.groups[gid]
			baseline := append([]*LogicalExpr{}, g.Logical...)
			for _, expr := range baseline {
				for _, rule := range rules {
					for _, alt := range rule.Apply(m, gid, expr) {
						before := len(g.Logical)
						m.AddAlternative(gid, alt)
						if len(g.Logical) > before {
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			return
		}
	}
}

// childReqs derives the required properties each child of a physical
// candidate must deliver, given the candidate's own operator kind. It is
// used both while costing (to recursively optimize children) and while
// extracting the final plan tree (to re-look-up each child's winner), so it
// must be a pure function of the physical expression alone.
func childReqs(p *PhysicalExpr, parentReq RequiredProperties) []RequiredProperties {
	switch p.Kind {
	case PhysFilter, PhysLimit, PhysProjection:
		out := make([]RequiredProperties, len(p.Children))
		for i := range out {
			out[i] = parentReq
		}
		return out
	case PhysSort, PhysDistinctAggregate:
		return []RequiredProperties{{}}
	case PhysMergeJoin:
		req := RequiredProperties{SortOrder: []SortField{{Field: p.Predicate.Field}}}
		return []RequiredProperties{req, req}
	case PhysHashJoin, PhysNestedLoopJoin:
		return []RequiredProperties{{}, {}}
	default:
		return nil
	}
}

type optimizer struct {
	memo     *Memo
	ctx      *PlanContext
	rules    []ImplRule
	deadline time.Time
}

// optimizeGroup finds the cheapest physical implementation of gid that
// satisfies req, exploring no candidate whose own operator cost already
// exceeds upperBound (branch-and-bound pruning). Results are memoized per
// required-properties key so repeated lookups (e.g. from plan extraction)
// are O(1).
func (o *optimizer) optimizeGroup(gid GroupId, req RequiredProperties, upperBound float64) (*PhysicalExpr, float64, error) {
	g := o.memo.Group(gid)
	if w, ok := g.Winners[req.Key()]; ok {
		return w.Physical, w.Cost, nil
	}
	if !o.deadline.IsZero() && time.Now().After(o.deadline) {
		return nil, 0, ErrPlanningTimeout
	}

	var candidates []*PhysicalExpr
	for _, expr := range g.Logical {
		for _, rule := range o.rules {
			candidates = append(candidates, rule.Apply(o.memo, gid, expr, o.ctx)...)
		}
	}

	var best *PhysicalExpr
	bestCost := math.Inf(1)
	var timedOut error

	for _, cand := range candidates {
		if len(cand.Children) == 0 {
			if !cand.Props.satisfies(req) {
				continue
			}
			if cand.Cost < bestCost && cand.Cost < upperBound {
				bestCost = cand.Cost
				best = cand
			}
			continue
		}

		reqs := childReqs(cand, req)
		total := 0.0
		feasible := true
		var resolvedChildren []*PhysicalExpr
		var leftRows, rightRows float64
		for i, childGid := range cand.Children {
			childBest, childCost, err := o.optimizeGroup(childGid, reqs[i], bestCost-total)
			if errors.Is(err, ErrPlanningTimeout) {
				timedOut = err
				feasible = false
				break
			}
			if err != nil {
				return nil, 0, err
			}
			if childBest == nil {
				feasible = false
				break
			}
			resolvedChildren = append(resolvedChildren, childBest)
			total += childCost
			if i == 0 {
				leftRows = childBest.Props.EstRows
			} else if i == 1 {
				rightRows = childBest.Props.EstRows
			}
		}
		if !feasible {
			continue
		}

		own, rows := ownCostAndRows(o.ctx, cand, resolvedChildren, leftRows, rightRows)
		cand.Cost = total + own
		cand.Props.EstRows = rows
		if cand.Kind == PhysSort {
			cand.Props.SortOrder = cand.SortFields
		}
		if !cand.Props.satisfies(req) {
			continue
		}
		if cand.Cost < bestCost {
			bestCost = cand.Cost
			best = cand
		}
	}

	if best == nil {
		if timedOut != nil {
			return nil, 0, timedOut
		}
		return nil, 0, nil
	}
	g.Winners[req.Key()] = &Winner{Physical: best, Cost: bestCost}
	return best, bestCost, nil
}

// ownCostAndRows computes a physical candidate's own incremental cost (not
// counting its children's) and its output row estimate, given its already-
// resolved children.
func ownCostAndRows(ctx *PlanContext, cand *PhysicalExpr, children []*PhysicalExpr, leftRows, rightRows float64) (cost, rows float64) {
	w := ctx.Weights
	switch cand.Kind {
	case PhysFilter:
		childRows := children[0].Props.EstRows
		sel := filterSelectivity(ctx, cand.Predicate)
		return w.filterCost(childRows), childRows * sel
	case PhysSort:
		childRows := children[0].Props.EstRows
		return w.sortCost(childRows), childRows
	case PhysLimit:
		childRows := children[0].Props.EstRows
		capped := childRows
		if float64(cand.Limit) < capped {
			capped = float64(cand.Limit)
		}
		return 0, capped
	case PhysHashJoin:
		return w.hashJoinCost(leftRows, rightRows), math.Min(leftRows, rightRows)
	case PhysMergeJoin:
		return w.mergeJoinCost(leftRows, rightRows), math.Min(leftRows, rightRows)
	case PhysNestedLoopJoin:
		return w.nestedLoopJoinCost(leftRows, rightRows), math.Min(leftRows, rightRows)
	case PhysProjection:
		childRows := children[0].Props.EstRows
		return w.projectionCost(childRows), childRows
	case PhysDistinctAggregate:
		childRows := children[0].Props.EstRows
		return w.distinctCost(childRows), distinctRowEstimate(ctx, cand, childRows)
	default:
		return 0, 0
	}
}

// distinctRowEstimate approximates a DistinctAggregate's output cardinality
// from the HyperLogLog++ distinct-value estimate of its widest grouping
// field, capped at the input row count. Without a multi-column distinct-count
// statistic, the single-field estimate is a lower bound on the true number of
// distinct tuples, so the cap on childRows keeps it a safe (non-negative,
// non-inflating) approximation rather than an exact one.
func distinctRowEstimate(ctx *PlanContext, cand *PhysicalExpr, childRows float64) float64 {
	if cand.TypeName == "" || len(cand.Fields) == 0 {
		return childRows
	}
	var best float64
	for _, f := range cand.Fields {
		if d := float64(ctx.Stats.DistinctValues(cand.TypeName, f)); d > best {
			best = d
		}
	}
	if best <= 0 || best > childRows {
		return childRows
	}
	return best
}

// filterSelectivity estimates the fraction of rows a filter predicate
// passes, using the statistics provider when the predicate's fields can be
// resolved against a known type and falling back to the conservative range
// default otherwise (no type context is reachable once a filter sits above
// a join).
func filterSelectivity(ctx *PlanContext, pred *Predicate) float64 {
	if pred == nil {
		return 1.0
	}
	for typeName := range ctx.Indexes {
		bounds := extractBounds(*pred)
		if len(bounds) > 0 {
			return boundSelectivity(ctx, typeName, bounds)
		}
	}
	return 0.3
}

// Optimize runs the full Cascades search over q: builds the initial memo,
// explores transformation rules to a fixed point, then costs every
// alternative bottom-up with branch-and-bound pruning. If timeout elapses
// mid-search, the best plan found so far is returned alongside
// ErrPlanningTimeout.
func Optimize(pctx context.Context, q Query, plan *PlanContext, timeout time.Duration) (*PreparedPlan, error) {
	m := NewMemo()
	root := buildInitialMemo(m, q)
	explore(m, DefaultTransformRules(plan.Indexes))

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	opt := &optimizer{memo: m, ctx: plan, rules: DefaultImplRules(), deadline: deadline}

	best, cost, err := opt.optimizeGroup(root, RequiredProperties{}, math.Inf(1))
	if best == nil {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("planner: no feasible physical plan found")
	}
	node := extractPlan(m, root, RequiredProperties{})
	pp := &PreparedPlan{Root: node, TotalCost: cost, Fingerprint: Fingerprint(q)}
	if errors.Is(err, ErrPlanningTimeout) {
		return pp, ErrPlanningTimeout
	}
	return pp, nil
}

// extractPlan walks the memo's recorded winners starting at gid/req and
// builds a standalone PlanNode tree that no longer references the memo, so
// it can be cached and executed after the memo itself is discarded.
func extractPlan(m *Memo, gid GroupId, req RequiredProperties) *PlanNode {
	w, ok := m.Group(gid).Winners[req.Key()]
	if !ok {
		return nil
	}
	p := w.Physical
	node := &PlanNode{
		Op:         p.Kind.String(),
		Cost:       p.Cost,
		EstRows:    p.Props.EstRows,
		TypeName:   p.TypeName,
		IndexName:  p.IndexName,
		Predicate:  p.Predicate,
		SortFields: p.SortFields,
		Limit:      p.Limit,
		Offset:     p.Offset,
		JoinAlgo:   p.JoinAlgo,
		Fields:     p.Fields,
	}
	if len(p.Children) > 0 {
		reqs := childReqs(p, req)
		for i, c := range p.Children {
			node.Children = append(node.Children, extractPlan(m, c, reqs[i]))
		}
	}
	return node
}
