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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/coredb/keyspace"
)

func TestScalarIndexPutSearchAndUpdate(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("user", "age")
	desc := Descriptor{Name: "idx_age", KeyPaths: []string{"age"}, Kind: KindScalar}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	si := NewScalarIndex(desc, sub, reflector)

	id1 := keyspace.Tuple{int64(1)}
	id2 := keyspace.Tuple{int64(2)}
	require.NoError(t, si.Update(ctx, tx, "user", id1, nil, map[string]any{"age": int64(30)}))
	require.NoError(t, si.Update(ctx, tx, "user", id2, nil, map[string]any{"age": int64(25)}))

	it, err := si.Search(ctx, tx, ScalarQuery{})
	require.NoError(t, err)
	var rows []Entry
	for it.Next(ctx) {
		rows = append(rows, it.Entry())
	}
	require.NoError(t, it.Err())
	require.Len(t, rows, 2)
	// ascending key order: age 25 before age 30
	require.EqualValues(t, int64(25), rows[0].KeyValues[0])
	require.EqualValues(t, int64(30), rows[1].KeyValues[0])

	// Update age 30 -> 40; old entry should disappear.
	require.NoError(t, si.Update(ctx, tx, "user", id1,
		map[string]any{"age": int64(30)}, map[string]any{"age": int64(40)}))

	it2, err := si.Search(ctx, tx, ScalarQuery{})
	require.NoError(t, err)
	var ages []int64
	for it2.Next(ctx) {
		ages = append(ages, it2.Entry().KeyValues[0].(int64))
	}
	require.Equal(t, []int64{25, 40}, ages)
}

func TestScalarIndexCoveringReconstruct(t *testing.T) {
	reflector := newMapReflector("user", "age", "name")
	desc := Descriptor{Name: "idx_cov", KeyPaths: []string{"age"}, StoredFields: []string{"name"}, Kind: KindCovering}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	si := NewScalarIndex(desc, sub, reflector)

	ctx := context.Background()
	tx := beginTx(ctx)
	id := keyspace.Tuple{int64(7)}
	require.NoError(t, si.Update(ctx, tx, "user", id, nil, map[string]any{"age": int64(30), "name": "ada"}))

	it, err := si.Search(ctx, tx, ScalarQuery{})
	require.NoError(t, err)
	require.True(t, it.Next(ctx))
	entry := it.Entry()
	rec := si.Reconstruct(entry)
	require.Equal(t, int64(30), rec["age"])
	require.Equal(t, "ada", rec["name"])
	require.Equal(t, id, rec["__id"])
}

func TestScalarIndexUpdateIdempotentWhenUnchanged(t *testing.T) {
	reflector := newMapReflector("user", "age")
	desc := Descriptor{Name: "idx_age", KeyPaths: []string{"age"}, Kind: KindScalar}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	si := NewScalarIndex(desc, sub, reflector)

	ctx := context.Background()
	tx := beginTx(ctx)
	id := keyspace.Tuple{int64(1)}
	rec := map[string]any{"age": int64(30)}
	require.NoError(t, si.Update(ctx, tx, "user", id, nil, rec))
	require.NoError(t, si.Update(ctx, tx, "user", id, rec, rec))

	it, err := si.Search(ctx, tx, ScalarQuery{})
	require.NoError(t, err)
	count := 0
	for it.Next(ctx) {
		count++
	}
	require.Equal(t, 1, count)
}
