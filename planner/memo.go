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
	"sort"

	"github.com/cespare/xxhash/v2"
)

// GroupId identifies a memo equivalence group. Every logical expression
// memoized with the same structural shape lands in the same group (§4.5:
// "the memo de-duplicates structurally identical subplans via hash-consing").
type GroupId uint32

// RelKind tags the shape of a LogicalExpr, mirroring the closed set of
// relational operators this planner recognizes.
type RelKind int

const (
	RelScan RelKind = iota
	RelIndexScan
	RelFilter
	RelJoin
	RelProject
	RelSort
	RelLimit
	RelDistinctAgg
)

func (k RelKind) String() string {
	switch k {
	case RelScan:
		return "Scan"
	case RelIndexScan:
		return "IndexScan"
	case RelFilter:
		return "Filter"
	case RelJoin:
		return "Join"
	case RelProject:
		return "Project"
	case RelSort:
		return "Sort"
	case RelLimit:
		return "Limit"
	case RelDistinctAgg:
		return "DistinctAggregate"
	default:
		return "?"
	}
}

// SortField names one column of a required or delivered sort order.
type SortField struct {
	Field string
	Desc  bool
}

// LogicalExpr is one candidate rewrite of a memo group: a relational operator
// over child groups. Multiple LogicalExprs can coexist in the same group,
// one per equivalent rewrite discovered by the transformation rules.
type LogicalExpr struct {
	Kind     RelKind
	Children []GroupId

	// RelScan / RelIndexScan
	TypeName  string
	IndexName string
	Bounds    map[string]bound

	// RelFilter / RelJoin (join predicate)
	Predicate *Predicate

	// RelJoin
	JoinType string // "inner" is the only supported type (§4.5 non-goal: no outer joins)

	// RelProject / RelDistinctAgg (the latter reuses Fields as its grouping
	// columns; TypeName carries the originating record type through for the
	// cost model's distinct-count estimate)
	Fields []string

	// RelSort
	SortFields []SortField

	// RelLimit
	Limit, Offset int
	HasLimit      bool
}

// shapeKey renders the hash-consing key for this expression: its kind,
// children's group ids, and kind-specific payload shape (values erased where
// the value doesn't affect plan structure).
func (e *LogicalExpr) shapeKey() string {
	s := fmt.Sprintf("%s[", e.Kind)
	for i, c := range e.Children {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", c)
	}
	s += "]"
	switch e.Kind {
	case RelScan:
		s += e.TypeName
	case RelIndexScan:
		s += e.TypeName + "/" + e.IndexName
		keys := make([]string, 0, len(e.Bounds))
		for k := range e.Bounds {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s += "|" + k
		}
	case RelFilter, RelJoin:
		if e.Predicate != nil {
			s += e.Predicate.Shape()
		}
		s += e.JoinType
	case RelProject, RelDistinctAgg:
		for _, f := range e.Fields {
			s += "|" + f
		}
	case RelSort:
		for _, sf := range e.SortFields {
			s += fmt.Sprintf("|%s:%v", sf.Field, sf.Desc)
		}
	case RelLimit:
		s += fmt.Sprintf("%d,%d,%v", e.Limit, e.Offset, e.HasLimit)
	}
	return s
}

// PhysKind tags the physical operator an implementation rule produced.
type PhysKind int

const (
	PhysSeqScan PhysKind = iota
	PhysIndexScan
	PhysIndexOnlyScan
	PhysFilter
	PhysHashJoin
	PhysMergeJoin
	PhysNestedLoopJoin
	PhysSort
	PhysLimit
	PhysProjection
	PhysDistinctAggregate
)

func (k PhysKind) String() string {
	switch k {
	case PhysSeqScan:
		return "SeqScan"
	case PhysIndexScan:
		return "IndexScan"
	case PhysIndexOnlyScan:
		return "IndexOnlyScan"
	case PhysFilter:
		return "Filter"
	case PhysHashJoin:
		return "HashJoin"
	case PhysMergeJoin:
		return "MergeJoin"
	case PhysNestedLoopJoin:
		return "NestedLoopJoin"
	case PhysSort:
		return "Sort"
	case PhysLimit:
		return "Limit"
	case PhysProjection:
		return "Projection"
	case PhysDistinctAggregate:
		return "DistinctAggregate"
	default:
		return "?"
	}
}

// PhysicalProperties are the properties a physical operator delivers upward:
// the row order it's known to produce, and its estimated output cardinality.
type PhysicalProperties struct {
	SortOrder []SortField
	EstRows   float64
}

// satisfies reports whether p's delivered sort order satisfies req: req must
// be a prefix of p.SortOrder (or req is empty).
func (p PhysicalProperties) satisfies(req RequiredProperties) bool {
	if len(req.SortOrder) == 0 {
		return true
	}
	if len(p.SortOrder) < len(req.SortOrder) {
		return false
	}
	for i, sf := range req.SortOrder {
		if p.SortOrder[i] != sf {
			return false
		}
	}
	return true
}

// RequiredProperties are the properties demanded of a group by its parent,
// e.g. "deliver rows sorted by (a, b)".
type RequiredProperties struct {
	SortOrder []SortField
}

// Key renders a cache key for winner lookups keyed by required properties.
func (r RequiredProperties) Key() string {
	s := ""
	for _, sf := range r.SortOrder {
		s += fmt.Sprintf("%s:%v,", sf.Field, sf.Desc)
	}
	return s
}

// PhysicalExpr is one implementation of a LogicalExpr: a physical operator
// with an estimated cost and the properties it delivers.
type PhysicalExpr struct {
	Kind     PhysKind
	Children []GroupId
	Cost     float64
	Props    PhysicalProperties

	TypeName      string
	IndexName     string
	Bounds        map[string]bound
	Predicate     *Predicate
	JoinAlgo      string
	SortFields    []SortField
	Limit, Offset int
	Fields        []string // PhysProjection / PhysDistinctAggregate
}

// Winner records the cheapest physical expression found so far for a group
// under a given set of required properties.
type Winner struct {
	Physical *PhysicalExpr
	Cost     float64
}

// Group is a memo equivalence class: every LogicalExpr in it produces the
// same rows (up to order), and every PhysicalExpr in it is a candidate
// implementation of one of those logical alternatives.
type Group struct {
	ID       GroupId
	Logical  []*LogicalExpr
	Physical []*PhysicalExpr
	Winners  map[string]*Winner
	RowCount float64
	Schema   map[string]bool // fields this group's rows expose, used by pushdown rules
	explored bool
}

func newGroup(id GroupId) *Group {
	return &Group{ID: id, Winners: map[string]*Winner{}}
}

// Memo holds every equivalence group discovered while planning one query,
// hash-consed so that structurally identical subplans share a group (§4.5).
type Memo struct {
	groups    []*Group
	hashIndex map[uint64][]GroupId
}

// NewMemo returns an empty memo.
func NewMemo() *Memo {
	return &Memo{hashIndex: map[uint64][]GroupId{}}
}

// Group returns the group for id.
func (m *Memo) Group(id GroupId) *Group { return m.groups[id] }

// Memoize inserts expr into the memo, returning the id of the group it
// belongs to. If an equal expression (by shape key) already exists in some
// group, expr is appended as an additional alternative to that group instead
// of creating a new one.
func (m *Memo) Memoize(expr *LogicalExpr) GroupId {
	h := xxhash.Sum64String(expr.shapeKey())
	for _, gid := range m.hashIndex[h] {
		g := m.groups[gid]
		for _, existing := range g.Logical {
			if existing.shapeKey() == expr.shapeKey() {
				return gid
			}
		}
	}
	// No identical expr found under this hash bucket (a hash collision with
	// a different shape lands here too), so mint a new group for it.
	id := GroupId(len(m.groups))
	g := newGroup(id)
	g.Logical = append(g.Logical, expr)
	g.Schema = inferSchema(m, expr)
	m.groups = append(m.groups, g)
	m.hashIndex[h] = append(m.hashIndex[h], id)
	return id
}

// AddAlternative appends expr as a new logical alternative within an
// existing group (used by transformation rules that rewrite an expr already
// owned by gid into an equivalent form).
func (m *Memo) AddAlternative(gid GroupId, expr *LogicalExpr) {
	g := m.groups[gid]
	key := expr.shapeKey()
	for _, existing := range g.Logical {
		if existing.shapeKey() == key {
			return
		}
	}
	g.Logical = append(g.Logical, expr)
	h := xxhash.Sum64String(key)
	m.hashIndex[h] = append(m.hashIndex[h], gid)
}

// AddPhysical appends a physical implementation to gid.
func (m *Memo) AddPhysical(gid GroupId, expr *PhysicalExpr) {
	m.groups[gid].Physical = append(m.groups[gid].Physical, expr)
}

// inferSchema computes the set of field names a newly memoized logical
// expression's rows expose, consulting child groups already in the memo.
func inferSchema(m *Memo, expr *LogicalExpr) map[string]bool {
	out := map[string]bool{}
	switch expr.Kind {
	case RelScan, RelIndexScan:
		// Scan schema is open-ended (all fields of the record type); callers
		// that need field-level pushdown checks against a scan treat an
		// empty schema as "anything passes."
		return out
	case RelProject:
		for _, f := range expr.Fields {
			out[f] = true
		}
		return out
	default:
		for _, c := range expr.Children {
			for f := range m.groups[c].Schema {
				out[f] = true
			}
		}
		return out
	}
}
