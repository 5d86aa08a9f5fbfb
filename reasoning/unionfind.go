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
	"encoding/binary"
	"errors"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// UnionFind implements owl:sameAs identity (eq-ref, eq-sym, eq-trans) as a
// path-compressed, union-by-rank disjoint-set structure persisted under the
// ontology's sameAs subspace (§4.6, §6.5 subspace 9). Reflexivity and
// symmetry fall out of find()/union()'s structure; transitivity falls out of
// union merging two sets into one. find and union are each O(α(n))
// amortized; maintaining the denormalized representative→members index (used
// by Members, and by eq-rep-s/p/o query-time identity resolution) costs
// O(size of the smaller set) per union, the standard price of keeping an
// enumerable members index alongside a pure union-find.
type UnionFind struct {
	store *OntologyStore
}

// NewUnionFind wraps store's sameAs subspace for ontologyIRI.
func NewUnionFind(store *OntologyStore) *UnionFind {
	return &UnionFind{store: store}
}

func (u *UnionFind) parentKey(ontologyIRI IRI, x IRI) []byte {
	return u.store.ontSub(ontologyIRI).Pack(keyspace.Tuple{tagSameAs, sameAsParent, x})
}

func (u *UnionFind) rankKey(ontologyIRI IRI, x IRI) []byte {
	return u.store.ontSub(ontologyIRI).Pack(keyspace.Tuple{tagSameAs, sameAsRank, x})
}

func (u *UnionFind) memberKey(ontologyIRI IRI, rep, member IRI) []byte {
	return u.store.ontSub(ontologyIRI).Pack(keyspace.Tuple{tagSameAs, sameAsMembers, rep, member})
}

func (u *UnionFind) getParent(ctx context.Context, tx kv.Transaction, ontologyIRI, x IRI) (IRI, error) {
	v, err := tx.GetValue(ctx, u.parentKey(ontologyIRI, x))
	if errors.Is(err, kv.ErrNotFound) {
		return x, nil // an individual not yet unioned is its own representative
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (u *UnionFind) setParent(ctx context.Context, tx kv.Transaction, ontologyIRI, x, parent IRI) error {
	return tx.SetValue(ctx, u.parentKey(ontologyIRI, x), []byte(parent))
}

func (u *UnionFind) getRank(ctx context.Context, tx kv.Transaction, ontologyIRI, x IRI) (uint32, error) {
	v, err := tx.GetValue(ctx, u.rankKey(ontologyIRI, x))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v), nil
}

func (u *UnionFind) setRank(ctx context.Context, tx kv.Transaction, ontologyIRI, x IRI, rank uint32) error {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, rank)
	return tx.SetValue(ctx, u.rankKey(ontologyIRI, x), b)
}

// Find returns x's set representative, compressing the path it walked so
// later lookups are O(1) until the next union changes the tree shape.
func (u *UnionFind) Find(ctx context.Context, tx kv.Transaction, ontologyIRI, x IRI) (IRI, error) {
	var path []IRI
	cur := x
	for {
		parent, err := u.getParent(ctx, tx, ontologyIRI, cur)
		if err != nil {
			return "", err
		}
		if parent == cur {
			break
		}
		path = append(path, cur)
		cur = parent
	}
	root := cur
	for _, node := range path {
		if node == root {
			continue
		}
		if err := u.setParent(ctx, tx, ontologyIRI, node, root); err != nil {
			return "", err
		}
	}
	return root, nil
}

// Union merges x's and y's sets by rank, reindexing the smaller set's member
// list under the surviving representative. Reports the new representative.
func (u *UnionFind) Union(ctx context.Context, tx kv.Transaction, ontologyIRI, x, y IRI) (IRI, error) {
	rx, err := u.Find(ctx, tx, ontologyIRI, x)
	if err != nil {
		return "", err
	}
	ry, err := u.Find(ctx, tx, ontologyIRI, y)
	if err != nil {
		return "", err
	}
	if rx == ry {
		return rx, nil
	}

	rankX, err := u.getRank(ctx, tx, ontologyIRI, rx)
	if err != nil {
		return "", err
	}
	rankY, err := u.getRank(ctx, tx, ontologyIRI, ry)
	if err != nil {
		return "", err
	}

	winner, loser := rx, ry
	if rankX < rankY {
		winner, loser = ry, rx
	}

	if err := u.setParent(ctx, tx, ontologyIRI, loser, winner); err != nil {
		return "", err
	}
	if rankX == rankY {
		newRank, err := u.getRank(ctx, tx, ontologyIRI, winner)
		if err != nil {
			return "", err
		}
		if err := u.setRank(ctx, tx, ontologyIRI, winner, newRank+1); err != nil {
			return "", err
		}
	}

	if err := u.reindexMembers(ctx, tx, ontologyIRI, loser, winner); err != nil {
		return "", err
	}
	// x and y themselves must appear as members even on a fresh union (the
	// first time either was ever mentioned).
	if err := tx.SetValue(ctx, u.memberKey(ontologyIRI, winner, x), []byte{}); err != nil {
		return "", err
	}
	if err := tx.SetValue(ctx, u.memberKey(ontologyIRI, winner, y), []byte{}); err != nil {
		return "", err
	}
	return winner, nil
}

// reindexMembers moves every member recorded under loser's representative
// entry to winner's, plus loser itself.
func (u *UnionFind) reindexMembers(ctx context.Context, tx kv.Transaction, ontologyIRI, loser, winner IRI) error {
	members, err := u.Members(ctx, tx, ontologyIRI, loser)
	if err != nil {
		return err
	}
	members = append(members, loser)
	for _, m := range members {
		if err := tx.Clear(ctx, u.memberKey(ontologyIRI, loser, m)); err != nil {
			return err
		}
		if err := tx.SetValue(ctx, u.memberKey(ontologyIRI, winner, m), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// Members returns every individual known to be owl:sameAs representative,
// including representative itself if it has been unioned with anything.
func (u *UnionFind) Members(ctx context.Context, tx kv.Transaction, ontologyIRI, representative IRI) ([]IRI, error) {
	scanSub := u.store.ontSub(ontologyIRI).Sub(tagSameAs, sameAsMembers, representative)
	begin, end := scanSub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []IRI
	for it.Next(ctx) {
		rest, err := scanSub.Unpack(it.KeyValue().Key)
		if err != nil {
			return nil, err
		}
		if len(rest) != 1 {
			continue
		}
		m, _ := rest[0].(string)
		out = append(out, m)
	}
	return out, it.Err()
}
