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

package index

import (
	"context"

	"github.com/dolthub/coredb/keyspace"
	"github.com/dolthub/coredb/kv"
)

// Direction selects which mirror of a graph adjacency index to scan (§4.1,
// §4.3.9).
type Direction int

const (
	DirOut Direction = iota
	DirIn
)

// GraphQuery requests the edges adjacent to Node in Dir, optionally
// restricted to a single Label.
type GraphQuery struct {
	Node  keyspace.Tuple
	Label *string
	Dir   Direction
}

// GraphAdjacencyIndex maintains the outgoing (`o/<src>/<label>/<tgt>`) and
// incoming (`i/<tgt>/<label>/<src>`) mirrors of an edge-shaped record type,
// per desc.KeyPaths = [srcPath, labelPath, tgtPath] (§4.1, §4.3.9).
type GraphAdjacencyIndex struct {
	desc      Descriptor
	subspace  keyspace.Subspace
	reflector kv.FieldReflector
	out       keyspace.Subspace
	in        keyspace.Subspace
}

// NewGraphAdjacencyIndex constructs a graph adjacency maintainer+searcher.
func NewGraphAdjacencyIndex(desc Descriptor, subspace keyspace.Subspace, reflector kv.FieldReflector) *GraphAdjacencyIndex {
	return &GraphAdjacencyIndex{
		desc: desc, subspace: subspace, reflector: reflector,
		out: subspace.Sub("o"),
		in:  subspace.Sub("i"),
	}
}

type edgeTriple struct {
	src, tgt keyspace.Tuple
	label    string
	ok       bool
}

func (g *GraphAdjacencyIndex) edgeOf(typeName string, record any) edgeTriple {
	if record == nil || len(g.desc.KeyPaths) < 3 {
		return edgeTriple{}
	}
	srcField, ok := g.reflector.KeyPathField(typeName, g.desc.KeyPaths[0])
	if !ok {
		return edgeTriple{}
	}
	labelField, ok := g.reflector.KeyPathField(typeName, g.desc.KeyPaths[1])
	if !ok {
		return edgeTriple{}
	}
	tgtField, ok := g.reflector.KeyPathField(typeName, g.desc.KeyPaths[2])
	if !ok {
		return edgeTriple{}
	}
	srcV, ok := g.reflector.FieldValue(typeName, record, srcField)
	if !ok {
		return edgeTriple{}
	}
	labelV, ok := g.reflector.FieldValue(typeName, record, labelField)
	if !ok {
		return edgeTriple{}
	}
	tgtV, ok := g.reflector.FieldValue(typeName, record, tgtField)
	if !ok {
		return edgeTriple{}
	}
	label, _ := labelV.(string)
	srcT, srcOK := asTuple(srcV)
	tgtT, tgtOK := asTuple(tgtV)
	if !srcOK || !tgtOK {
		return edgeTriple{}
	}
	return edgeTriple{src: srcT, tgt: tgtT, label: label, ok: true}
}

func asTuple(v any) (keyspace.Tuple, bool) {
	switch x := v.(type) {
	case keyspace.Tuple:
		return x, true
	default:
		return keyspace.Tuple{v}, true
	}
}

func (g *GraphAdjacencyIndex) outKey(e edgeTriple) []byte {
	return g.out.Pack(keyspace.Tuple{e.src, e.label, e.tgt})
}

func (g *GraphAdjacencyIndex) inKey(e edgeTriple) []byte {
	return g.in.Pack(keyspace.Tuple{e.tgt, e.label, e.src})
}

func edgeEqual(a, b edgeTriple) bool {
	return a.ok == b.ok && a.label == b.label && tupleEqual(a.src, b.src) && tupleEqual(a.tgt, b.tgt)
}

// Update maintains both mirrors atomically; idempotent when old == new.
func (g *GraphAdjacencyIndex) Update(ctx context.Context, tx kv.Transaction, typeName string, itemID keyspace.Tuple, old, new any) error {
	oldE := g.edgeOf(typeName, old)
	newE := g.edgeOf(typeName, new)

	if oldE.ok && (!newE.ok || !edgeEqual(oldE, newE)) {
		if err := tx.Clear(ctx, g.outKey(oldE)); err != nil {
			return err
		}
		if err := tx.Clear(ctx, g.inKey(oldE)); err != nil {
			return err
		}
	}
	if newE.ok && (!oldE.ok || !edgeEqual(oldE, newE)) {
		if err := tx.SetValue(ctx, g.outKey(newE), []byte{}); err != nil {
			return err
		}
		if err := tx.SetValue(ctx, g.inKey(newE), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// Search performs a single range scan of the requested mirror, optionally
// narrowed to one label, emitting the neighbor node in Entry.ItemID and the
// edge label in Entry.KeyValues[0] (§4.3.9: "1-hop neighbors (single range
// scan)").
func (g *GraphAdjacencyIndex) Search(ctx context.Context, tx kv.Transaction, query any) (EntryIterator, error) {
	q := query.(GraphQuery)
	mirror := g.out
	if q.Dir == DirIn {
		mirror = g.in
	}

	var nodeSub keyspace.Subspace
	if q.Label != nil {
		nodeSub = mirror.Sub(q.Node, *q.Label)
	} else {
		nodeSub = mirror.Sub(q.Node)
	}
	begin, end := nodeSub.Range()
	it, err := tx.GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var entries []Entry
	for it.Next(ctx) {
		row := it.KeyValue()
		full, err := nodeSub.Unpack(row.Key)
		if err != nil {
			return nil, err
		}
		var label string
		var neighbor keyspace.Tuple
		if q.Label != nil {
			neighbor, _ = full[0].(keyspace.Tuple)
			label = *q.Label
		} else {
			label, _ = full[0].(string)
			neighbor, _ = full[1].(keyspace.Tuple)
		}
		entries = append(entries, Entry{ItemID: neighbor, KeyValues: keyspace.Tuple{label}})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return newSliceEntryIterator(entries), nil
}
