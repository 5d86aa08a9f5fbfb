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

// Package planner implements the Cascades-style cost-based query optimizer:
// a memo of equivalence groups, transformation and implementation rules, a
// weighted-sum cost model fed by the statistics engine, a branch-and-bound
// search strategy, and a fingerprinted plan cache with runtime-feedback-driven
// invalidation.
package planner

import "fmt"

// PredOp tags the shape of a Predicate node.
type PredOp int

const (
	PredEq PredOp = iota
	PredLt
	PredLte
	PredGt
	PredGte
	PredAnd
	PredOr
	PredNot
	PredTrue
	PredFalse
	PredNe
	PredIn
	PredIsNil
	PredIsNotNil
	PredPrefix
	PredContains
)

func (op PredOp) String() string {
	switch op {
	case PredEq:
		return "="
	case PredLt:
		return "<"
	case PredLte:
		return "<="
	case PredGt:
		return ">"
	case PredGte:
		return ">="
	case PredAnd:
		return "AND"
	case PredOr:
		return "OR"
	case PredNot:
		return "NOT"
	case PredTrue:
		return "TRUE"
	case PredFalse:
		return "FALSE"
	case PredNe:
		return "!="
	case PredIn:
		return "IN"
	case PredIsNil:
		return "ISNULL"
	case PredIsNotNil:
		return "ISNOTNULL"
	case PredPrefix:
		return "PREFIX"
	case PredContains:
		return "CONTAINS"
	default:
		return "?"
	}
}

// Predicate is a small boolean-expression tree over record fields. Leaves
// compare a field against a literal value (or, for IsNil/IsNotNil/True/
// False, nothing at all); AND/OR/NOT compose children. The planner only
// needs the shape and the field names it touches, never the underlying
// storage representation.
type Predicate struct {
	Op       PredOp
	Field    string
	Value    any
	Children []Predicate
}

// Eq, Lt, Lte, Gt, Gte, Ne build leaf comparison predicates.
func Eq(field string, v any) Predicate  { return Predicate{Op: PredEq, Field: field, Value: v} }
func Lt(field string, v any) Predicate  { return Predicate{Op: PredLt, Field: field, Value: v} }
func Lte(field string, v any) Predicate { return Predicate{Op: PredLte, Field: field, Value: v} }
func Gt(field string, v any) Predicate  { return Predicate{Op: PredGt, Field: field, Value: v} }
func Gte(field string, v any) Predicate { return Predicate{Op: PredGte, Field: field, Value: v} }
func Ne(field string, v any) Predicate  { return Predicate{Op: PredNe, Field: field, Value: v} }

// In builds a set-membership predicate: field must equal one of values.
func In(field string, values ...any) Predicate {
	return Predicate{Op: PredIn, Field: field, Value: values}
}

// IsNil, IsNotNil build nullness-check predicates.
func IsNil(field string) Predicate    { return Predicate{Op: PredIsNil, Field: field} }
func IsNotNil(field string) Predicate { return Predicate{Op: PredIsNotNil, Field: field} }

// Prefix builds a string-prefix predicate (field starts with v), the shape
// a full-text/scalar index's prefix scan serves (§4.3.1, §4.3.3).
func Prefix(field, v string) Predicate { return Predicate{Op: PredPrefix, Field: field, Value: v} }

// Contains builds a substring/membership predicate (field contains v), the
// shape a full-text index's posting-list lookup serves (§4.3.3).
func Contains(field, v string) Predicate { return Predicate{Op: PredContains, Field: field, Value: v} }

// Not negates a single child predicate.
func Not(child Predicate) Predicate { return Predicate{Op: PredNot, Children: []Predicate{child}} }

// True, False are the constant predicates.
func True() Predicate  { return Predicate{Op: PredTrue} }
func False() Predicate { return Predicate{Op: PredFalse} }

// And, Or build conjunctions/disjunctions.
func And(children ...Predicate) Predicate { return Predicate{Op: PredAnd, Children: children} }
func Or(children ...Predicate) Predicate  { return Predicate{Op: PredOr, Children: children} }

// isLeaf reports whether p is a terminal node rather than a boolean
// composition of children. Every comparison, membership, nullness-check,
// and constant op is a leaf; only AND/OR/NOT recurse into Children.
func (p Predicate) isLeaf() bool {
	switch p.Op {
	case PredAnd, PredOr, PredNot:
		return false
	default:
		return true
	}
}

// isBoundable reports whether p is one of the equality/range comparisons
// FilterToIndexScan can turn into an index bound (§4.5): not every leaf op
// narrows a scan range, so this is stricter than isLeaf.
func (p Predicate) isBoundable() bool {
	switch p.Op {
	case PredEq, PredLt, PredLte, PredGt, PredGte:
		return true
	default:
		return false
	}
}

// Fields returns the distinct field names this predicate touches. True and
// False reference no field, so they contribute nothing.
func (p Predicate) Fields() []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Predicate)
	walk = func(n Predicate) {
		if n.isLeaf() {
			if n.Field != "" && !seen[n.Field] {
				seen[n.Field] = true
				out = append(out, n.Field)
			}
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(p)
	return out
}

// SubsetOf reports whether every field this predicate touches is in allowed.
func (p Predicate) SubsetOf(allowed map[string]bool) bool {
	for _, f := range p.Fields() {
		if !allowed[f] {
			return false
		}
	}
	return true
}

// Shape renders a value-erased structural fingerprint: operators and field
// names survive, literal values do not. Two predicates with the same shape
// produce identically structured plans.
func (p Predicate) Shape() string {
	if p.Op == PredTrue || p.Op == PredFalse {
		return p.Op.String()
	}
	if p.isLeaf() {
		return fmt.Sprintf("%s(%s)", p.Op, p.Field)
	}
	s := fmt.Sprintf("%s(", p.Op)
	for i, c := range p.Children {
		if i > 0 {
			s += ","
		}
		s += c.Shape()
	}
	return s + ")"
}

// bounds describes the literal-valued range a leaf equality/comparison
// predicate imposes on a single field, used when matching predicates against
// an index's key paths.
type bound struct {
	eq             any
	hasEq          bool
	lo, hi         any
	hasLo, hasHi   bool
	loIncl, hiIncl bool
}

// extractBounds walks a conjunction of leaf predicates and returns, per
// field, the tightest known bound. Only top-level ANDs (and bare leaves) are
// considered; predicates under an OR are not index-bound candidates.
func extractBounds(p Predicate) map[string]bound {
	out := map[string]bound{}
	var leaves []Predicate
	if p.Op == PredAnd {
		leaves = p.Children
	} else if p.isBoundable() {
		leaves = []Predicate{p}
	} else {
		return out
	}
	for _, leaf := range leaves {
		if !leaf.isBoundable() {
			continue
		}
		b := out[leaf.Field]
		switch leaf.Op {
		case PredEq:
			b.eq, b.hasEq = leaf.Value, true
		case PredLt:
			b.hi, b.hasHi, b.hiIncl = leaf.Value, true, false
		case PredLte:
			b.hi, b.hasHi, b.hiIncl = leaf.Value, true, true
		case PredGt:
			b.lo, b.hasLo, b.loIncl = leaf.Value, true, false
		case PredGte:
			b.lo, b.hasLo, b.loIncl = leaf.Value, true, true
		}
		out[leaf.Field] = b
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
