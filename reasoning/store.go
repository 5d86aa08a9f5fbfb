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
	"encoding/json"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// Subspace tags under O/<ontologyIRI>/, exactly as laid out in §6.5, plus
// two additions (10, 11) this package needs to support DRed and union-find
// over instance data that §6.5 does not itself provision a home for: the
// asserted/inferred triple store and its dependency index. Tag 5 (property
// hierarchy) is declared but never written: materializeHierarchy stores the
// property hierarchy closure under tag 4 together with the class hierarchy,
// and SuperProperties reads it from there, so a class and a property sharing
// an IRI share one closure entry.
const (
	tagMetadata          = int64(0)
	tagClasses           = int64(1)
	tagProperties        = int64(2)
	tagAxioms            = int64(3)
	tagClassHierarchy    = int64(4)
	tagPropertyHierarchy = int64(5)
	tagInverse           = int64(6)
	tagTransitive        = int64(7)
	tagChains            = int64(8)
	tagSameAs            = int64(9)
	tagTriples           = int64(10) // extension: asserted + inferred facts
	tagDependents        = int64(11) // extension: DRed dependency graph

	hierSuper = int64(0)
	hierSub   = int64(1)

	sameAsParent  = int64(0)
	sameAsRank    = int64(1)
	sameAsMembers = int64(2)
)

// StoredClassDefinition is the on-disk record at subspace 1.
type StoredClassDefinition = ClassDefinition

// StoredPropertyDefinition is the on-disk record at subspace 2.
type StoredPropertyDefinition struct {
	IRI             IRI
	Domain, Range   IRI
	Characteristics []PropertyCharacteristic
	InverseOf       IRI
}

// EncodedAxiom is the on-disk record at subspace 3.
type EncodedAxiom = Axiom

// TripleRecord is the on-disk record at subspace 10: a fact plus, for
// inferred triples, the provenance that derived it. Asserted (base) triples
// carry a nil Provenance.
type TripleRecord struct {
	Triple     Triple
	Provenance *Provenance
}

// Provenance names the rule and antecedent triples that derived an inferred
// triple (§4.6: "each inferred triple carries provenance (rule,
// antecedents)").
type Provenance struct {
	Rule        string
	Antecedents []Triple
}

// OntologyStore persists ontologies under the root "O" subspace per §6.5.
type OntologyStore struct {
	root keyspace.Subspace
}

// NewOntologyStore roots a store at the standard "O" top-level tag.
func NewOntologyStore() *OntologyStore {
	return &OntologyStore{root: keyspace.New([]byte("O"))}
}

func (s *OntologyStore) ontSub(iri IRI) keyspace.Subspace {
	return s.root.Sub(iri)
}

func encodeJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("reasoning: unencodable value: " + err.Error())
	}
	return b
}

func decodeJSON[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// Load writes ont's classes, properties, and axioms into the store, then
// materializes the transitive closure of the class and property hierarchies
// (scm-sco, scm-spo) so GetSuperClasses/GetSuperProperties never need to walk
// axioms at query time.
func (s *OntologyStore) Load(ctx context.Context, tx kv.Transaction, ont Ontology) error {
	sub := s.ontSub(ont.IRI)

	meta := OntologyMetadata{IRI: ont.IRI, ClassCount: len(ont.Classes), PropertyCount: len(ont.Properties), AxiomCount: len(ont.Axioms)}
	if err := tx.SetValue(ctx, sub.Pack(keyspace.Tuple{tagMetadata}), encodeJSON(meta)); err != nil {
		return pkgerrors.Wrap(err, "reasoning: write metadata")
	}

	for _, c := range ont.Classes {
		key := sub.Pack(keyspace.Tuple{tagClasses, c.IRI})
		if err := tx.SetValue(ctx, key, encodeJSON(c)); err != nil {
			return pkgerrors.Wrap(err, "reasoning: write class")
		}
	}
	for _, p := range ont.Properties {
		stored := StoredPropertyDefinition{IRI: p.IRI, Domain: p.Domain, Range: p.Range, InverseOf: p.InverseOf}
		for c := range p.Characteristics {
			if p.Characteristics[c] {
				stored.Characteristics = append(stored.Characteristics, c)
			}
		}
		key := sub.Pack(keyspace.Tuple{tagProperties, p.IRI})
		if err := tx.SetValue(ctx, key, encodeJSON(stored)); err != nil {
			return pkgerrors.Wrap(err, "reasoning: write property")
		}
		if p.InverseOf != "" {
			invKey := sub.Pack(keyspace.Tuple{tagInverse, p.IRI})
			if err := tx.SetValue(ctx, invKey, []byte(p.InverseOf)); err != nil {
				return pkgerrors.Wrap(err, "reasoning: write inverse")
			}
		}
		if p.Characteristics[CharTransitive] {
			transKey := sub.Pack(keyspace.Tuple{tagTransitive, p.IRI})
			if err := tx.SetValue(ctx, transKey, []byte{}); err != nil {
				return pkgerrors.Wrap(err, "reasoning: write transitive flag")
			}
		}
	}

	directClassSuper := map[IRI][]IRI{}
	directPropSuper := map[IRI][]IRI{}

	for _, ax := range ont.Axioms {
		key := sub.Pack(keyspace.Tuple{tagAxioms, ax.ID})
		if err := tx.SetValue(ctx, key, encodeJSON(ax)); err != nil {
			return pkgerrors.Wrap(err, "reasoning: write axiom")
		}
		switch ax.Kind {
		case AxiomSubClassOf:
			directClassSuper[ax.Left] = append(directClassSuper[ax.Left], ax.Right)
		case AxiomEquivalentClass:
			// scm-eqc1/2: an equivalence is folded into mutual subsumption so
			// the ordinary hierarchy closure (cax-sco) also covers it.
			directClassSuper[ax.Left] = append(directClassSuper[ax.Left], ax.Right)
			directClassSuper[ax.Right] = append(directClassSuper[ax.Right], ax.Left)
		case AxiomSubPropertyOf:
			directPropSuper[ax.Left] = append(directPropSuper[ax.Left], ax.Right)
		case AxiomEquivalentProperty:
			directPropSuper[ax.Left] = append(directPropSuper[ax.Left], ax.Right)
			directPropSuper[ax.Right] = append(directPropSuper[ax.Right], ax.Left)
		case AxiomPropertyChain:
			chainID := ax.ID
			chainKey := sub.Pack(keyspace.Tuple{tagChains, ax.TargetProp, chainID})
			if err := tx.SetValue(ctx, chainKey, encodeJSON(ax.Chain)); err != nil {
				return pkgerrors.Wrap(err, "reasoning: write chain")
			}
		}
	}

	if err := materializeHierarchy(ctx, tx, sub, directClassSuper); err != nil {
		return err
	}
	return materializeHierarchy(ctx, tx, sub, directPropSuper)
}

// materializeHierarchy computes the transitive closure of a direct
// super-relation and writes every (sub, super) pair — direct and inferred —
// into both the super-indexed and sub-indexed mirrors of the hierarchy
// subspace, the same bidirectional-mirror technique the graph adjacency
// index uses for edges.
func materializeHierarchy(ctx context.Context, tx kv.Transaction, sub keyspace.Subspace, direct map[IRI][]IRI) error {
	closure := map[IRI]map[IRI]bool{}
	var nodes []IRI
	for n := range direct {
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		visited := map[IRI]bool{}
		var walk func(IRI)
		walk = func(cur IRI) {
			for _, next := range direct[cur] {
				if next == n || visited[next] {
					continue
				}
				visited[next] = true
				walk(next)
			}
		}
		walk(n)
		closure[n] = visited
	}
	i := 0
	for sub2, supers := range closure {
		for super := range supers {
			i++
			if i%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			superKey := sub.Pack(keyspace.Tuple{tagClassHierarchy, hierSuper, sub2, super})
			subKey := sub.Pack(keyspace.Tuple{tagClassHierarchy, hierSub, super, sub2})
			if err := tx.SetValue(ctx, superKey, []byte{}); err != nil {
				return err
			}
			if err := tx.SetValue(ctx, subKey, []byte{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// SuperClasses returns every class transitively above c in the materialized
// hierarchy (excluding c itself), so a lookup never re-walks
// axioms.
func (s *OntologyStore) SuperClasses(ctx context.Context, tx kv.Transaction, ontologyIRI, c IRI) ([]IRI, error) {
	return s.hierarchyScan(ctx, tx, ontologyIRI, hierSuper, c)
}

// SuperProperties returns every property transitively above p.
func (s *OntologyStore) SuperProperties(ctx context.Context, tx kv.Transaction, ontologyIRI, p IRI) ([]IRI, error) {
	return s.hierarchyScan(ctx, tx, ontologyIRI, hierSuper, p)
}

func (s *OntologyStore) hierarchyScan(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, dir int64, node IRI) ([]IRI, error) {
	sub := s.ontSub(ontologyIRI)
	scanSub := sub.Sub(tagClassHierarchy, dir, node)
	begin, end := scanSub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []IRI
	for it.Next(ctx) {
		t, err := scanSub.Unpack(it.KeyValue().Key)
		if err != nil {
			return nil, err
		}
		if len(t) != 1 {
			continue
		}
		other, _ := t[0].(string)
		out = append(out, other)
	}
	return out, it.Err()
}

// Inverse returns the declared inverse of p, if any.
func (s *OntologyStore) Inverse(ctx context.Context, tx kv.Transaction, ontologyIRI, p IRI) (IRI, bool, error) {
	key := s.ontSub(ontologyIRI).Pack(keyspace.Tuple{tagInverse, p})
	v, err := tx.GetValue(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// IsTransitive reports whether p was declared owl:TransitiveProperty.
func (s *OntologyStore) IsTransitive(ctx context.Context, tx kv.Transaction, ontologyIRI, p IRI) (bool, error) {
	key := s.ontSub(ontologyIRI).Pack(keyspace.Tuple{tagTransitive, p})
	_, err := tx.GetValue(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Property reads back a property's stored characteristics.
func (s *OntologyStore) Property(ctx context.Context, tx kv.Transaction, ontologyIRI, p IRI) (StoredPropertyDefinition, bool, error) {
	key := s.ontSub(ontologyIRI).Pack(keyspace.Tuple{tagProperties, p})
	v, err := tx.GetValue(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return StoredPropertyDefinition{}, false, nil
	}
	if err != nil {
		return StoredPropertyDefinition{}, false, err
	}
	def, err := decodeJSON[StoredPropertyDefinition](v)
	return def, err == nil, err
}

// HasCharacteristic reports whether p was loaded with characteristic c.
func (def StoredPropertyDefinition) HasCharacteristic(c PropertyCharacteristic) bool {
	for _, have := range def.Characteristics {
		if have == c {
			return true
		}
	}
	return false
}

// Get reconstructs the ontology metadata header, returning ErrOntologyNotFound
// if iri was never Loaded (or was Deleted).
func (s *OntologyStore) Get(ctx context.Context, tx kv.Transaction, iri IRI) (OntologyMetadata, error) {
	key := s.ontSub(iri).Pack(keyspace.Tuple{tagMetadata})
	v, err := tx.GetValue(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return OntologyMetadata{}, ErrOntologyNotFound
	}
	if err != nil {
		return OntologyMetadata{}, err
	}
	return decodeJSON[OntologyMetadata](v)
}

// Delete clears every subspace under O/<iri>, forgetting the ontology
// entirely.
func (s *OntologyStore) Delete(ctx context.Context, tx kv.Transaction, iri IRI) error {
	begin, end := s.ontSub(iri).Range()
	return tx.ClearRange(ctx, begin, end)
}

// PutTriple writes a fact record (asserted if prov is nil, inferred
// otherwise) and, for inferred triples, registers a dependents-index entry
// for each antecedent so DRed can find it later.
func (s *OntologyStore) PutTriple(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple, prov *Provenance) error {
	sub := s.ontSub(ontologyIRI)
	key := sub.Pack(keyspace.Tuple{tagTriples, t.Subject, t.Predicate, t.Object})
	rec := TripleRecord{Triple: t, Provenance: prov}
	if err := tx.SetValue(ctx, key, encodeJSON(rec)); err != nil {
		return err
	}
	if prov == nil {
		return nil
	}
	for _, ant := range prov.Antecedents {
		depKey := sub.Pack(keyspace.Tuple{tagDependents, ant.Subject, ant.Predicate, ant.Object, t.Subject, t.Predicate, t.Object})
		if err := tx.SetValue(ctx, depKey, []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// GetTriple returns the stored record for t, if present.
func (s *OntologyStore) GetTriple(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) (TripleRecord, bool, error) {
	key := s.ontSub(ontologyIRI).Pack(keyspace.Tuple{tagTriples, t.Subject, t.Predicate, t.Object})
	v, err := tx.GetValue(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return TripleRecord{}, false, nil
	}
	if err != nil {
		return TripleRecord{}, false, err
	}
	rec, err := decodeJSON[TripleRecord](v)
	return rec, err == nil, err
}

// DeleteTriple removes t's fact record and, for each of prov's antecedents,
// the dependents-index entry that lists t under that antecedent. Entries
// that list other triples under t as their antecedent are left in place;
// callers walk those (via Dependents) themselves.
func (s *OntologyStore) DeleteTriple(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple, prov *Provenance) error {
	sub := s.ontSub(ontologyIRI)
	key := sub.Pack(keyspace.Tuple{tagTriples, t.Subject, t.Predicate, t.Object})
	if err := tx.Clear(ctx, key); err != nil {
		return err
	}
	if prov == nil {
		return nil
	}
	for _, ant := range prov.Antecedents {
		depKey := sub.Pack(keyspace.Tuple{tagDependents, ant.Subject, ant.Predicate, ant.Object, t.Subject, t.Predicate, t.Object})
		if err := tx.Clear(ctx, depKey); err != nil {
			return err
		}
	}
	return nil
}

// Dependents returns every triple whose provenance names t as an antecedent.
func (s *OntologyStore) Dependents(ctx context.Context, tx kv.Transaction, ontologyIRI IRI, t Triple) ([]Triple, error) {
	sub := s.ontSub(ontologyIRI)
	scanSub := sub.Sub(tagDependents, t.Subject, t.Predicate, t.Object)
	begin, end := scanSub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Triple
	for it.Next(ctx) {
		rest, err := scanSub.Unpack(it.KeyValue().Key)
		if err != nil {
			return nil, err
		}
		if len(rest) != 3 {
			continue
		}
		s1, _ := rest[0].(string)
		p1, _ := rest[1].(string)
		o1, _ := rest[2].(string)
		out = append(out, Triple{Subject: s1, Predicate: p1, Object: o1})
	}
	return out, it.Err()
}
