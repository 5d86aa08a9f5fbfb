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

package reasoning

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	"github.com/dolthub/coredb/kv"
)

// ConsistencyChecker implements the mechanically-checkable subset of the
// consistency-check rule group (§4.6): eq-diff1 (differentFrom vs sameAs),
// prp-irp (irreflexive), prp-asyp (asymmetric), prp-fp (functional), prp-ifp
// (inverse functional), cax-dw (disjoint classes). The remaining named rules
// (prp-pdw, cls-nothing1, cls-com, cls-maxc1/2, cls-maxqc1/2) reason over
// OWL class expressions — property disjointness axioms, qualified
// cardinality restrictions, class complement/negation — that this package's
// Axiom/ClassDefinition model does not represent; see DESIGN.md.
type ConsistencyChecker struct {
	store *OntologyStore
	skip  bool
}

// NewConsistencyChecker wraps store.
func NewConsistencyChecker(store *OntologyStore) *ConsistencyChecker {
	return &ConsistencyChecker{store: store}
}

// Check runs every applicable rule against a candidate triple before it is
// written, returning a *ConsistencyViolation (wrapped with a stack) on the
// first violation found. A checker constructed with skip=true (via
// Config.SkipConsistencyChecks) always passes.
func (c *ConsistencyChecker) Check(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) error {
	if c.skip {
		return nil
	}
	if err := c.checkDifferentFromVsSameAs(ctx, tx, ontologyIRI, t); err != nil {
		return err
	}
	if err := c.checkDisjointClasses(ctx, tx, ontologyIRI, t); err != nil {
		return err
	}

	def, ok, err := c.store.Property(ctx, tx, ontologyIRI, t.Predicate)
	if err != nil || !ok {
		return err
	}

	if def.HasCharacteristic(CharIrreflexive) && t.Subject == t.Object {
		return wrapViolation("prp-irp", t, "irreflexive property related to itself")
	}

	if def.HasCharacteristic(CharAsymmetric) {
		_, found, err := c.store.GetTriple(ctx, tx, ontologyIRI, Triple{Subject: t.Object, Predicate: t.Predicate, Object: t.Subject})
		if err != nil {
			return err
		}
		if found {
			return wrapViolation("prp-asyp", t, "asymmetric property holds in both directions")
		}
	}

	if def.HasCharacteristic(CharFunctional) {
		if violates, err := c.hasDistinctObjectForSubject(ctx, tx, ontologyIRI, t); err != nil {
			return err
		} else if violates {
			return wrapViolation("prp-fp", t, "functional property has more than one value for this subject")
		}
	}

	if def.HasCharacteristic(CharInverseFunctional) {
		if violates, err := c.hasDistinctSubjectForObject(ctx, tx, ontologyIRI, t); err != nil {
			return err
		} else if violates {
			return wrapViolation("prp-ifp", t, "inverse functional property has more than one subject for this object")
		}
	}

	return nil
}

func (c *ConsistencyChecker) checkDifferentFromVsSameAs(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) error {
	if t.Predicate != PredDifferentFrom {
		return nil
	}
	uf := NewUnionFind(c.store)
	rx, err := uf.Find(ctx, tx, ontologyIRI, t.Subject)
	if err != nil {
		return err
	}
	ry, err := uf.Find(ctx, tx, ontologyIRI, t.Object)
	if err != nil {
		return err
	}
	if rx == ry {
		return wrapViolation("eq-diff1", t, "individuals declared differentFrom are already sameAs")
	}
	return nil
}

// checkDisjointClasses implements cax-dw: if t asserts (s, rdf:type, C) and
// some DisjointWith(C, D) axiom exists, s must not already be typed D (or
// any of D's subclasses — the hierarchy closure already gives us that for
// free via SuperClasses on the existing triple's object).
func (c *ConsistencyChecker) checkDisjointClasses(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) error {
	if t.Predicate != PredRDFType {
		return nil
	}
	disjoint, err := c.disjointClassesOf(ctx, tx, ontologyIRI, t.Object)
	if err != nil {
		return err
	}
	for _, d := range disjoint {
		_, found, err := c.store.GetTriple(ctx, tx, ontologyIRI, Triple{Subject: t.Subject, Predicate: PredRDFType, Object: d})
		if err != nil {
			return err
		}
		if found {
			return wrapViolation("cax-dw", t, "individual already typed with a class declared disjoint from "+t.Object)
		}
	}
	return nil
}

// disjointClassesOf scans the axioms subspace for DisjointWith axioms
// mentioning class, in either position. Axiom counts are schema-sized (not
// per-triple), so a linear scan per check is acceptable.
func (c *ConsistencyChecker) disjointClassesOf(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, class IRI) ([]IRI, error) {
	sub := c.store.ontSub(ontologyIRI).Sub(tagAxioms)
	begin, end := sub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []IRI
	for it.Next(ctx) {
		ax, derr := decodeJSON[Axiom](it.KeyValue().Value)
		if derr != nil {
			continue
		}
		if ax.Kind != AxiomDisjointWith {
			continue
		}
		switch class {
		case ax.Left:
			out = append(out, ax.Right)
		case ax.Right:
			out = append(out, ax.Left)
		}
	}
	return out, it.Err()
}

// hasDistinctObjectForSubject reports whether some other triple already
// asserts (t.Subject, t.Predicate, otherObject) with otherObject != t.Object,
// which a functional property forbids.
func (c *ConsistencyChecker) hasDistinctObjectForSubject(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) (bool, error) {
	// The triple subspace is keyed (subject, predicate, object), so a prefix
	// range scan over (t.Subject, t.Predicate) suffices without a dedicated
	// secondary index.
	sub := c.store.ontSub(ontologyIRI).Sub(tagTriples, t.Subject, t.Predicate)
	begin, end := sub.Range()
	it, rerr := tx.GetRange(ctx, begin, end, 0, false)
	if rerr != nil {
		return false, rerr
	}
	defer it.Close()
	for it.Next(ctx) {
		rest, uerr := sub.Unpack(it.KeyValue().Key)
		if uerr != nil {
			return false, uerr
		}
		if len(rest) != 1 {
			continue
		}
		obj, _ := rest[0].(string)
		if obj != t.Object {
			return true, nil
		}
	}
	return false, it.Err()
}

// hasDistinctSubjectForObject is the inverse-functional mirror: it must scan
// by object, which the (subject, predicate, object) key order does not
// support directly, so it walks every stored triple for the predicate. This
// is acceptable for a consistency check (invoked only on properties
// explicitly declared InverseFunctional, expected to be rare and small) but
// would need an object-first mirror index to scale, noted in DESIGN.md.
func (c *ConsistencyChecker) hasDistinctSubjectForObject(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) (bool, error) {
	sub := c.store.ontSub(ontologyIRI).Sub(tagTriples)
	begin, end := sub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return false, err
	}
	defer it.Close()
	for it.Next(ctx) {
		rest, uerr := sub.Unpack(it.KeyValue().Key)
		if uerr != nil {
			return false, uerr
		}
		if len(rest) != 3 {
			continue
		}
		subj, _ := rest[0].(string)
		pred, _ := rest[1].(string)
		obj, _ := rest[2].(string)
		if pred == t.Predicate && obj == t.Object && subj != t.Subject {
			return true, nil
		}
	}
	return false, it.Err()
}

func wrapViolation(rule string, t Triple, msg string) error {
	return pkgerrors.WithStack(&ConsistencyViolation{Rule: rule, Triple: t, Message: msg})
}
