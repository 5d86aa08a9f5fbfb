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

	"go.uber.org/zap"

	"github.com/dolthub/coredb/kv"
)

// OWL2RLMaterializer dispatches the materialize-at-write portion of the OWL
// 2 RL rule catalog (§4.6): cax-sco/cax-eqc1/2 (class hierarchy propagation),
// prp-spo1/prp-eqp1/2 (property hierarchy propagation), prp-inv1 (inverse,
// from a property whose own definition names InverseOf; a triple of the
// named inverse property yields no reverse triple unless that property also
// declares InverseOf), prp-symp (symmetric). Query-time-rewrite rules (prp-trp,
// prp-spo2) and union-find rules (eq-*) live in reasoner.go and unionfind.go
// respectively; consistency-check rules live in consistency.go.
type OWL2RLMaterializer struct {
	store      *OntologyStore
	uf         *UnionFind
	consistent *ConsistencyChecker
	log        *zap.Logger
}

// NewOWL2RLMaterializer wires a materializer over store.
func NewOWL2RLMaterializer(store *OntologyStore, uf *UnionFind, log *zap.Logger) *OWL2RLMaterializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &OWL2RLMaterializer{store: store, uf: uf, consistent: NewConsistencyChecker(store), log: log.Named("materializer")}
}

// AssertTriple records t as a base (asserted) fact and forward-chains every
// materialize-at-write rule it triggers. Consistency violations abort
// without writing t (§7: constraint violations abort the enclosing
// transaction).
func (m *OWL2RLMaterializer) AssertTriple(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) ([]Triple, error) {
	if err := m.consistent.Check(ctx, tx, ontologyIRI, t); err != nil {
		return nil, err
	}
	if err := m.store.PutTriple(ctx, tx, ontologyIRI, t, nil); err != nil {
		return nil, err
	}
	if t.Predicate == PredSameAs {
		if _, err := m.uf.Union(ctx, tx, ontologyIRI, t.Subject, t.Object); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var inferred []Triple
	switch t.Predicate {
	case PredRDFType:
		out, err := m.materializeClassHierarchy(ctx, tx, ontologyIRI, t)
		if err != nil {
			return nil, err
		}
		inferred = append(inferred, out...)
	default:
		out, err := m.materializePropertyRules(ctx, tx, ontologyIRI, t)
		if err != nil {
			return nil, err
		}
		inferred = append(inferred, out...)
	}

	for _, derived := range inferred {
		m.log.Debug("materialized triple",
			zap.String("subject", derived.Subject),
			zap.String("predicate", derived.Predicate),
			zap.String("object", derived.Object))
	}
	return inferred, nil
}

// materializeClassHierarchy applies cax-sco (and, transparently, cax-eqc1/2
// via the folded-in equivalence edges the hierarchy closure already
// contains): for t = (s, rdf:type, C), every transitive superclass of C also
// holds of s.
func (m *OWL2RLMaterializer) materializeClassHierarchy(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) ([]Triple, error) {
	supers, err := m.store.SuperClasses(ctx, tx, ontologyIRI, t.Object)
	if err != nil {
		return nil, err
	}
	var out []Triple
	for i, super := range supers {
		if i%1024 == 0 && ctx.Err() != nil {
			return out, ctx.Err()
		}
		if super == t.Object {
			continue
		}
		derived := Triple{Subject: t.Subject, Predicate: PredRDFType, Object: super}
		prov := &Provenance{Rule: "cax-sco", Antecedents: []Triple{t}}
		if err := m.store.PutTriple(ctx, tx, ontologyIRI, derived, prov); err != nil {
			return nil, err
		}
		out = append(out, derived)
	}
	return out, nil
}

// materializePropertyRules applies prp-spo1 (super-property propagation,
// also covering prp-eqp1/2 via the folded property hierarchy), prp-inv1
// (inverse, only for a predicate that declares InverseOf), and prp-symp
// (symmetric) to a generic property triple.
func (m *OWL2RLMaterializer) materializePropertyRules(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) ([]Triple, error) {
	var out []Triple

	supers, err := m.store.SuperProperties(ctx, tx, ontologyIRI, t.Predicate)
	if err != nil {
		return nil, err
	}
	for _, super := range supers {
		if super == t.Predicate {
			continue
		}
		derived := Triple{Subject: t.Subject, Predicate: super, Object: t.Object}
		prov := &Provenance{Rule: "prp-spo1", Antecedents: []Triple{t}}
		if err := m.store.PutTriple(ctx, tx, ontologyIRI, derived, prov); err != nil {
			return nil, err
		}
		out = append(out, derived)
	}

	def, ok, err := m.store.Property(ctx, tx, ontologyIRI, t.Predicate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return out, nil
	}

	if inv, has, err := m.store.Inverse(ctx, tx, ontologyIRI, t.Predicate); err != nil {
		return nil, err
	} else if has {
		derived := Triple{Subject: t.Object, Predicate: inv, Object: t.Subject}
		prov := &Provenance{Rule: "prp-inv1", Antecedents: []Triple{t}}
		if err := m.store.PutTriple(ctx, tx, ontologyIRI, derived, prov); err != nil {
			return nil, err
		}
		out = append(out, derived)
	}

	if def.HasCharacteristic(CharSymmetric) {
		derived := Triple{Subject: t.Object, Predicate: t.Predicate, Object: t.Subject}
		prov := &Provenance{Rule: "prp-symp", Antecedents: []Triple{t}}
		if err := m.store.PutTriple(ctx, tx, ontologyIRI, derived, prov); err != nil {
			return nil, err
		}
		out = append(out, derived)
	}

	return out, nil
}
