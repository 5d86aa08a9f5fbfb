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

// DRed implements delete-and-rederive maintenance (§4.6): on base-triple
// deletion, every directly-dependent inferred triple is tentatively marked
// deleted, then an alternative-derivation attempt is made before committing
// to the deletion; survivors are rederived under fresh provenance,
// non-survivors are finalized as deleted and the process recurses into
// their own dependents.
type DRed struct {
	store *OntologyStore
	m     *OWL2RLMaterializer
	log   *zap.Logger
}

// NewDRed wires DRed maintenance over store, reusing m's rule dispatch to
// attempt rederivation.
func NewDRed(store *OntologyStore, m *OWL2RLMaterializer, log *zap.Logger) *DRed {
	if log == nil {
		log = zap.NewNop()
	}
	return &DRed{store: store, m: m, log: log.Named("dred")}
}

// RetractTriple removes t (a base or inferred triple) and, for every triple
// transitively dependent on it, either rederives it via an alternative
// derivation path or deletes it too.
func (d *DRed) RetractTriple(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) error {
	rec, found, err := d.store.GetTriple(ctx, tx, ontologyIRI, t)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	visited := map[Triple]bool{}
	return d.deleteAndRederive(ctx, tx, ontologyIRI, t, rec.Provenance, visited)
}

func (d *DRed) deleteAndRederive(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple, prov *Provenance, visited map[Triple]bool) error {
	if visited[t] {
		return ErrDependencyCycle
	}
	visited[t] = true

	dependents, err := d.store.Dependents(ctx, tx, ontologyIRI, t)
	if err != nil {
		return err
	}
	if err := d.store.DeleteTriple(ctx, tx, ontologyIRI, t, prov); err != nil {
		return err
	}
	d.log.Debug("deleted triple",
		zap.String("subject", t.Subject), zap.String("predicate", t.Predicate), zap.String("object", t.Object))

	for _, dep := range dependents {
		depRec, found, err := d.store.GetTriple(ctx, tx, ontologyIRI, dep)
		if err != nil {
			return err
		}
		if !found {
			continue // already handled via another path in this same retraction
		}

		alt, err := d.rederive(ctx, tx, ontologyIRI, dep, depRec.Provenance, t)
		if err != nil {
			return err
		}
		if alt != nil {
			if err := d.store.PutTriple(ctx, tx, ontologyIRI, dep, alt); err != nil {
				return err
			}
			d.log.Debug("rederived triple", zap.String("rule", alt.Rule),
				zap.String("subject", dep.Subject), zap.String("predicate", dep.Predicate), zap.String("object", dep.Object))
			continue
		}

		if err := d.deleteAndRederive(ctx, tx, ontologyIRI, dep, depRec.Provenance, visited); err != nil {
			return err
		}
	}
	return nil
}

// rederive re-runs the single rule that produced dep's current provenance
// against the state of the store minus the just-removed antecedent
// (removed), checking whether some OTHER still-present antecedent would
// independently justify dep. It returns the fresh provenance if so, or nil if
// dep has no remaining justification.
func (d *DRed) rederive(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, dep Triple, oldProv *Provenance, removed Triple) (*Provenance, error) {
	if oldProv == nil {
		return nil, nil // base triples are never rederived, only deleted
	}
	switch oldProv.Rule {
	case "cax-sco":
		// dep = (s, rdf:type, super). Any remaining (s, rdf:type, C) where
		// super is still a transitive superclass of C re-justifies dep.
		sub := d.store.ontSub(ontologyIRI).Sub(tagTriples, dep.Subject, PredRDFType)
		begin, end := sub.Range()
		it, err := tx.GetRange(ctx, begin, end, 0, false)
		if err != nil {
			return nil, err
		}
		defer it.Close()
		for it.Next(ctx) {
			rest, uerr := sub.Unpack(it.KeyValue().Key)
			if uerr != nil {
				return nil, uerr
			}
			if len(rest) != 1 {
				continue
			}
			c, _ := rest[0].(string)
			antecedent := Triple{Subject: dep.Subject, Predicate: PredRDFType, Object: c}
			if antecedent == removed {
				continue
			}
			supers, err := d.store.SuperClasses(ctx, tx, ontologyIRI, c)
			if err != nil {
				return nil, err
			}
			for _, s := range supers {
				if s == dep.Object {
					return &Provenance{Rule: "cax-sco", Antecedents: []Triple{antecedent}}, nil
				}
			}
		}
		return nil, it.Err()

	case "prp-spo1", "prp-inv1", "prp-symp":
		// These rules have exactly one antecedent triple; if that exact
		// antecedent still exists (it might, if dep has two distinct
		// provenances we haven't merged — this package keeps only the latest
		// provenance per triple, a documented simplification), dep survives.
		for _, ant := range oldProv.Antecedents {
			if ant == removed {
				continue
			}
			if _, found, err := d.store.GetTriple(ctx, tx, ontologyIRI, ant); err != nil {
				return nil, err
			} else if found {
				return oldProv, nil
			}
		}
		return nil, nil

	default:
		return nil, nil
	}
}
