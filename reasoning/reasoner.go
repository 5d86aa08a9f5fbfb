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

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// Config tunes a Reasoner. A zero Config is the conservative default:
// consistency checks on, transitive-property closures capped at a depth
// that bounds a single query-time walk.
type Config struct {
	// SkipConsistencyChecks disables the materialize-at-write consistency
	// rule group, trading correctness guarantees for write throughput.
	SkipConsistencyChecks bool
	// MaxTransitiveDepth bounds prp-trp's query-time closure walk; 0 means
	// the package default (64).
	MaxTransitiveDepth int
}

const defaultMaxTransitiveDepth = 64

// Catalog owns OntologyStore CRUD: .load/.delete/.get of §6.4's
// query-facing API. Reasoner (below) is the per-ontology facade returned by
// .reasoner(iri, config).
type Catalog struct {
	store *OntologyStore
}

// NewCatalog returns a Catalog backed by a fresh OntologyStore.
func NewCatalog() *Catalog {
	return &Catalog{store: NewOntologyStore()}
}

// Load stores ont and materializes its TBox/RBox closures (§6.4
// ontology.load).
func (c *Catalog) Load(ctx context.Context, tx kv.Transaction, ont Ontology) error {
	return c.store.Load(ctx, tx, ont)
}

// Delete forgets ont entirely (§6.4 ontology.delete).
func (c *Catalog) Delete(ctx context.Context, tx kv.Transaction, iri IRI) error {
	return c.store.Delete(ctx, tx, iri)
}

// Get returns ont's metadata header (§6.4 ontology.get).
func (c *Catalog) Get(ctx context.Context, tx kv.Transaction, iri IRI) (OntologyMetadata, error) {
	return c.store.Get(ctx, tx, iri)
}

// Reasoner returns a reasoning facade bound to iri (§6.4 ontology.reasoner).
func (c *Catalog) Reasoner(iri IRI, cfg Config, log *zap.Logger) *Reasoner {
	if cfg.MaxTransitiveDepth <= 0 {
		cfg.MaxTransitiveDepth = defaultMaxTransitiveDepth
	}
	if log == nil {
		log = zap.NewNop()
	}
	uf := NewUnionFind(c.store)
	m := NewOWL2RLMaterializer(c.store, uf, log)
	if cfg.SkipConsistencyChecks {
		m.consistent = noopConsistencyChecker(c.store)
	}
	dred := NewDRed(c.store, m, log)
	return &Reasoner{
		ontologyIRI:  iri,
		cfg:          cfg,
		store:        c.store,
		uf:           uf,
		materializer: m,
		dred:         dred,
		log:          log.Named("reasoner"),
	}
}

// noopConsistencyChecker returns a ConsistencyChecker whose Check always
// passes, used when a caller opts out via Config.SkipConsistencyChecks.
func noopConsistencyChecker(store *OntologyStore) *ConsistencyChecker {
	return &ConsistencyChecker{store: store, skip: true}
}

// Reasoner is the per-ontology facade combining materialization, DRed, and
// sameAs/hierarchy queries over one loaded ontology.
type Reasoner struct {
	ontologyIRI  IRI
	cfg          Config
	store        *OntologyStore
	uf           *UnionFind
	materializer *OWL2RLMaterializer
	dred         *DRed
	log          *zap.Logger
}

// AssertTriple forward-chains t through the materialize-at-write rule group,
// returning every newly-inferred triple.
func (r *Reasoner) AssertTriple(ctx context.Context, tx kv.Transaction, t Triple) ([]Triple, error) {
	return r.materializer.AssertTriple(ctx, tx, r.ontologyIRI, t)
}

// RetractTriple runs DRed maintenance for t's removal.
func (r *Reasoner) RetractTriple(ctx context.Context, tx kv.Transaction, t Triple) error {
	return r.dred.RetractTriple(ctx, tx, r.ontologyIRI, t)
}

// GetSuperClasses returns the materialized transitive superclasses of c:
// getSuperClasses(C) = transitiveClosure(directSuperClasses(C)).
func (r *Reasoner) GetSuperClasses(ctx context.Context, tx kv.Transaction, c IRI) ([]IRI, error) {
	return r.store.SuperClasses(ctx, tx, r.ontologyIRI, c)
}

// GetSuperProperties returns the materialized transitive super-properties of p.
func (r *Reasoner) GetSuperProperties(ctx context.Context, tx kv.Transaction, p IRI) ([]IRI, error) {
	return r.store.SuperProperties(ctx, tx, r.ontologyIRI, p)
}

// SameAs resolves individual to its owl:sameAs representative (eq-rep-s/p/o's
// query-time application: callers normalize an individual's identity through
// Resolve before comparing or looking up facts, rather than the store
// eagerly rewriting every triple that mentions it).
func (r *Reasoner) SameAs(ctx context.Context, tx kv.Transaction, individual IRI) (IRI, error) {
	return r.uf.Find(ctx, tx, r.ontologyIRI, individual)
}

// SameAsMembers lists every individual known equal to representative.
func (r *Reasoner) SameAsMembers(ctx context.Context, tx kv.Transaction, representative IRI) ([]IRI, error) {
	rep, err := r.uf.Find(ctx, tx, r.ontologyIRI, representative)
	if err != nil {
		return nil, err
	}
	return r.uf.Members(ctx, tx, r.ontologyIRI, rep)
}

// Resolve rewrites t's subject and object to their owl:sameAs
// representatives (eq-rep-s/o). Predicate identity (eq-rep-p) is resolved
// the same way if the predicate has itself been asserted sameAs another
// property IRI, which this package treats identically to individual
// identity since IRIs are opaque strings either way.
func (r *Reasoner) Resolve(ctx context.Context, tx kv.Transaction, t Triple) (Triple, error) {
	s, err := r.uf.Find(ctx, tx, r.ontologyIRI, t.Subject)
	if err != nil {
		return Triple{}, err
	}
	p, err := r.uf.Find(ctx, tx, r.ontologyIRI, t.Predicate)
	if err != nil {
		return Triple{}, err
	}
	o, err := r.uf.Find(ctx, tx, r.ontologyIRI, t.Object)
	if err != nil {
		return Triple{}, err
	}
	return Triple{Subject: s, Predicate: p, Object: o}, nil
}

// TransitiveClosure implements prp-trp as a query-time rewrite rather than
// eager materialization (§4.6: transitive and chain rules are evaluated at
// query time, not written on every insert, since a transitive property's
// closure can be quadratic in the number of asserted edges). It walks
// asserted and inferred p-edges from start up to cfg.MaxTransitiveDepth hops,
// visiting each node once.
func (r *Reasoner) TransitiveClosure(ctx context.Context, tx kv.Transaction, start, p IRI) ([]IRI, error) {
	isTrans, err := r.store.IsTransitive(ctx, tx, r.ontologyIRI, p)
	if err != nil {
		return nil, err
	}
	if !isTrans {
		return r.directObjects(ctx, tx, start, p)
	}

	visited := map[IRI]bool{start: true}
	frontier := []IRI{start}
	var out []IRI
	for depth := 0; depth < r.cfg.MaxTransitiveDepth && len(frontier) > 0; depth++ {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		var next []IRI
		for _, n := range frontier {
			objs, err := r.directObjects(ctx, tx, n, p)
			if err != nil {
				return nil, err
			}
			for _, o := range objs {
				if visited[o] {
					continue
				}
				visited[o] = true
				out = append(out, o)
				next = append(next, o)
			}
		}
		frontier = next
	}
	return out, nil
}

func (r *Reasoner) directObjects(ctx context.Context, tx kv.Transaction, subject, predicate IRI) ([]IRI, error) {
	sub := r.store.ontSub(r.ontologyIRI).Sub(tagTriples, subject, predicate)
	begin, end := sub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []IRI
	for it.Next(ctx) {
		rest, uerr := sub.Unpack(it.KeyValue().Key)
		if uerr != nil {
			return nil, uerr
		}
		if len(rest) != 1 {
			continue
		}
		o, _ := rest[0].(string)
		out = append(out, o)
	}
	return out, it.Err()
}

// PropertyChainClosure implements prp-spo2 as a query-time rewrite: given a
// chain axiom's property sequence [p1,...,pn] stored under targetProp,
// follows p1 from start, then p2 from each result, etc., returning every
// node reachable via the full chain.
func (r *Reasoner) PropertyChainClosure(ctx context.Context, tx kv.Transaction, start, targetProp, chainID string) ([]IRI, error) {
	key := r.store.ontSub(r.ontologyIRI).Pack(keyspace.Tuple{tagChains, targetProp, chainID})
	v, err := tx.GetValue(ctx, key)
	if err != nil {
		return nil, err
	}
	chain, err := decodeJSON[[]IRI](v)
	if err != nil {
		return nil, err
	}

	frontier := []IRI{start}
	for _, p := range chain {
		var next []IRI
		seen := map[IRI]bool{}
		for _, n := range frontier {
			objs, err := r.directObjects(ctx, tx, n, p)
			if err != nil {
				return nil, err
			}
			for _, o := range objs {
				if !seen[o] {
					seen[o] = true
					next = append(next, o)
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return frontier, nil
}
