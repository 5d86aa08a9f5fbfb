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

func TestFullTextMatchAllAndAny(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("doc", "body")
	desc := Descriptor{Name: "idx_body", KeyPaths: []string{"body"}, Kind: KindFullText}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	fi := NewFullTextIndex(desc, sub, reflector, nil)

	docs := []struct {
		id   int64
		body string
	}{
		{1, "the quick brown fox"},
		{2, "the lazy dog"},
		{3, "quick dog runs"},
	}
	for _, d := range docs {
		id := keyspace.Tuple{d.id}
		require.NoError(t, fi.Update(ctx, tx, "doc", id, nil, map[string]any{"body": d.body}))
	}

	allIt, err := fi.Search(ctx, tx, FullTextQuery{Terms: []string{"quick", "dog"}, Mode: MatchAll})
	require.NoError(t, err)
	var allIDs []int64
	for allIt.Next(ctx) {
		allIDs = append(allIDs, allIt.Entry().ItemID[0].(int64))
	}
	require.Equal(t, []int64{3}, allIDs)

	anyIt, err := fi.Search(ctx, tx, FullTextQuery{Terms: []string{"quick", "dog"}, Mode: MatchAny})
	require.NoError(t, err)
	var anyIDs []int64
	for anyIt.Next(ctx) {
		anyIDs = append(anyIDs, anyIt.Entry().ItemID[0].(int64))
	}
	require.ElementsMatch(t, []int64{1, 2, 3}, anyIDs)
}

func TestFullTextCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("doc", "body")
	desc := Descriptor{Name: "idx_body", KeyPaths: []string{"body"}, Kind: KindFullText}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	fi := NewFullTextIndex(desc, sub, reflector, nil)

	id := keyspace.Tuple{int64(1)}
	require.NoError(t, fi.Update(ctx, tx, "doc", id, nil, map[string]any{"body": "Hello World"}))

	it, err := fi.Search(ctx, tx, FullTextQuery{Terms: []string{"HELLO"}, Mode: MatchAll})
	require.NoError(t, err)
	require.True(t, it.Next(ctx))
}

func TestFullTextUpdateRemovesStaleTerms(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("doc", "body")
	desc := Descriptor{Name: "idx_body", KeyPaths: []string{"body"}, Kind: KindFullText}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	fi := NewFullTextIndex(desc, sub, reflector, nil)

	id := keyspace.Tuple{int64(1)}
	require.NoError(t, fi.Update(ctx, tx, "doc", id, nil, map[string]any{"body": "alpha beta"}))
	require.NoError(t, fi.Update(ctx, tx, "doc", id, map[string]any{"body": "alpha beta"}, map[string]any{"body": "gamma"}))

	it, err := fi.Search(ctx, tx, FullTextQuery{Terms: []string{"alpha"}, Mode: MatchAll})
	require.NoError(t, err)
	require.False(t, it.Next(ctx))

	it2, err := fi.Search(ctx, tx, FullTextQuery{Terms: []string{"gamma"}, Mode: MatchAll})
	require.NoError(t, err)
	require.True(t, it2.Next(ctx))
}
