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
	"fmt"
	"strings"
)

// PlanNode is one operator of a finished, memo-independent plan tree. It is
// what survives after Optimize extracts the winning physical expression from
// each group — safe to cache, replay, and execute without the memo that
// produced it.
type PlanNode struct {
	Op       string
	Children []*PlanNode
	Cost     float64
	EstRows  float64

	TypeName   string
	IndexName  string
	Predicate  *Predicate
	SortFields []SortField
	Limit      int
	Offset     int
	JoinAlgo   string
	Fields     []string // Projection / DistinctAggregate
}

// ReferencedIndexes lists every index name this plan (and its children)
// reads through, used by PlanValidator to detect a cached plan that now
// names a dropped index.
func (n *PlanNode) ReferencedIndexes() []string {
	var out []string
	var walk func(*PlanNode)
	walk = func(p *PlanNode) {
		if p == nil {
			return
		}
		if p.IndexName != "" {
			out = append(out, p.IndexName)
		}
		for _, c := range p.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// PreparedPlan is the outcome of Optimize: a plan tree, its total estimated
// cost, and the fingerprint of the query shape it was built for.
type PreparedPlan struct {
	Root        *PlanNode
	TotalCost   float64
	Fingerprint string
}

// Explain renders a human-readable, indented tree of the plan with each
// operator's estimated row count and cost, in the EXPLAIN-output style
// query engines conventionally use for debugging plan choices.
func (pp *PreparedPlan) Explain() string {
	var b strings.Builder
	explainNode(&b, pp.Root, 0)
	return b.String()
}

func explainNode(b *strings.Builder, n *PlanNode, depth int) {
	if n == nil {
		return
	}
	fmt.Fprintf(b, "%s%s", strings.Repeat("  ", depth), n.Op)
	if n.TypeName != "" {
		fmt.Fprintf(b, " %s", n.TypeName)
	}
	if n.IndexName != "" {
		fmt.Fprintf(b, " using %s", n.IndexName)
	}
	if n.JoinAlgo != "" {
		fmt.Fprintf(b, " (%s)", n.JoinAlgo)
	}
	if len(n.Fields) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(n.Fields, ","))
	}
	fmt.Fprintf(b, "  cost=%.2f rows=%.0f\n", n.Cost, n.EstRows)
	for _, c := range n.Children {
		explainNode(b, c, depth+1)
	}
}

// Fingerprint renders the structural shape of q — table names, join shape,
// predicate shape (values erased), sort fields, and limit/offset presence —
// so that queries differing only in literal values share one cache entry
// and one plan.
func Fingerprint(q Query) string {
	var b strings.Builder
	b.WriteString("T:" + q.TypeName)
	for _, j := range q.Joins {
		b.WriteString("|J:" + j.TypeName + ":" + j.Predicate.Shape())
	}
	if q.Filter != nil {
		b.WriteString("|F:" + q.Filter.Shape())
	}
	if len(q.Sort) > 0 {
		b.WriteString("|S:")
		for _, sf := range q.Sort {
			b.WriteString(fmt.Sprintf("%s:%v,", sf.Field, sf.Desc))
		}
	}
	if q.HasLimit {
		b.WriteString(fmt.Sprintf("|L:%v", q.Offset == 0))
	}
	if len(q.Projection) > 0 {
		b.WriteString("|P:" + strings.Join(q.Projection, ","))
	}
	if q.Distinct {
		b.WriteString("|D")
	}
	return b.String()
}
