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

func TestSpatialIndexBoundingBoxSearch(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("poi", "lat", "lon")
	desc := Descriptor{Name: "idx_geo", KeyPaths: []string{"lat", "lon"}, Kind: KindSpatial}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	cfg := SpatialConfig{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180, Level: 8}
	si := NewSpatialIndex(desc, sub, reflector, cfg)

	points := []struct {
		id       int64
		lat, lon float64
	}{
		{1, 40.0, -74.0},  // NYC-ish, inside box
		{2, 40.1, -74.1},  // inside box
		{3, -33.9, 151.2}, // Sydney, outside box
	}
	for _, p := range points {
		id := keyspace.Tuple{p.id}
		require.NoError(t, si.Update(ctx, tx, "poi", id, nil, map[string]any{"lat": p.lat, "lon": p.lon}))
	}

	box := BoundingBox{MinLat: 39, MaxLat: 41, MinLon: -75, MaxLon: -73}
	it, err := si.Search(ctx, tx, box)
	require.NoError(t, err)
	var ids []int64
	for it.Next(ctx) {
		ids = append(ids, it.Entry().ItemID[0].(int64))
	}
	require.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestSpatialIndexUpdateMovesCell(t *testing.T) {
	ctx := context.Background()
	tx := beginTx(ctx)
	reflector := newMapReflector("poi", "lat", "lon")
	desc := Descriptor{Name: "idx_geo", KeyPaths: []string{"lat", "lon"}, Kind: KindSpatial}
	sub := desc.Subspace(keyspace.New([]byte("I")))
	cfg := SpatialConfig{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180, Level: 8}
	si := NewSpatialIndex(desc, sub, reflector, cfg)

	id := keyspace.Tuple{int64(1)}
	require.NoError(t, si.Update(ctx, tx, "poi", id, nil, map[string]any{"lat": 40.0, "lon": -74.0}))
	require.NoError(t, si.Update(ctx, tx, "poi", id,
		map[string]any{"lat": 40.0, "lon": -74.0},
		map[string]any{"lat": -33.9, "lon": 151.2}))

	box := BoundingBox{MinLat: 39, MaxLat: 41, MinLon: -75, MaxLon: -73}
	it, err := si.Search(ctx, tx, box)
	require.NoError(t, err)
	require.False(t, it.Next(ctx))
}
