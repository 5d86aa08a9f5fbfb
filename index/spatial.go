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

// SpatialConfig configures the normalization range and Morton level for a
// spatial index (§4.3.4).
type SpatialConfig struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	Level          uint8 // bits per axis, <= 26 so the interleaved code fits uint64
}

// Point is a (lat, lon) pair.
type Point struct {
	Lat, Lon float64
}

// BoundingBox is an inclusive (lat, lon) range query (§4.3.4).
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// SpatialIndex maps points to a Morton (Z-order) cell code at a configured
// level and indexes by that code.
type SpatialIndex struct {
	desc      Descriptor
	subspace  keyspace.Subspace
	reflector kv.FieldReflector
	cfg       SpatialConfig
}

// NewSpatialIndex constructs a Morton-encoded spatial index. desc.KeyPaths
// must name exactly two fields, latitude then longitude.
func NewSpatialIndex(desc Descriptor, subspace keyspace.Subspace, reflector kv.FieldReflector, cfg SpatialConfig) *SpatialIndex {
	return &SpatialIndex{desc: desc, subspace: subspace, reflector: reflector, cfg: cfg}
}

func (s *SpatialIndex) normalize(p Point) (x, y uint32) {
	bits := uint32(s.cfg.Level)
	if bits == 0 || bits > 26 {
		bits = 26
	}
	scale := float64(uint64(1) << bits)

	nx := (p.Lon - s.cfg.MinLon) / (s.cfg.MaxLon - s.cfg.MinLon)
	ny := (p.Lat - s.cfg.MinLat) / (s.cfg.MaxLat - s.cfg.MinLat)
	nx = clamp01(nx)
	ny = clamp01(ny)

	x = uint32(nx * (scale - 1))
	y = uint32(ny * (scale - 1))
	return x, y
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// mortonEncode interleaves the bits of x and y, x occupying the even bit
// positions, producing the Z-order cell code.
func mortonEncode(x, y uint32) uint64 {
	return spread(x) | (spread(y) << 1)
}

func spread(v uint32) uint64 {
	x := uint64(v)
	x = (x | (x << 16)) & 0x0000FFFF0000FFFF
	x = (x | (x << 8)) & 0x00FF00FF00FF00FF
	x = (x | (x << 4)) & 0x0F0F0F0F0F0F0F0F
	x = (x | (x << 2)) & 0x3333333333333333
	x = (x | (x << 1)) & 0x5555555555555555
	return x
}

// CellCode returns this index's Morton cell code for p.
func (s *SpatialIndex) CellCode(p Point) uint64 {
	x, y := s.normalize(p)
	return mortonEncode(x, y)
}

func (s *SpatialIndex) pointOf(typeName string, record any) (Point, bool) {
	if record == nil || len(s.desc.KeyPaths) < 2 {
		return Point{}, false
	}
	latField, ok := s.reflector.KeyPathField(typeName, s.desc.KeyPaths[0])
	if !ok {
		return Point{}, false
	}
	lonField, ok := s.reflector.KeyPathField(typeName, s.desc.KeyPaths[1])
	if !ok {
		return Point{}, false
	}
	latV, ok := s.reflector.FieldValue(typeName, record, latField)
	if !ok {
		return Point{}, false
	}
	lonV, ok := s.reflector.FieldValue(typeName, record, lonField)
	if !ok {
		return Point{}, false
	}
	lat, ok1 := toFloat64(latV)
	lon, ok2 := toFloat64(lonV)
	if !ok1 || !ok2 {
		return Point{}, false
	}
	return Point{Lat: lat, Lon: lon}, true
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func (s *SpatialIndex) entryKey(cell uint64, itemID keyspace.Tuple) []byte {
	t := append(keyspace.Tuple{int64(cell)}, toAnySlice(itemID)...)
	return s.subspace.Pack(t)
}

// Update is idempotent when old == new: unchanged cell codes produce no
// writes.
func (s *SpatialIndex) Update(ctx context.Context, tx kv.Transaction, typeName string, itemID keyspace.Tuple, old, new any) error {
	oldP, oldOK := s.pointOf(typeName, old)
	newP, newOK := s.pointOf(typeName, new)

	var oldCell, newCell uint64
	if oldOK {
		oldCell = s.CellCode(oldP)
	}
	if newOK {
		newCell = s.CellCode(newP)
	}

	if oldOK && (!newOK || oldCell != newCell) {
		if err := tx.Clear(ctx, s.entryKey(oldCell, itemID)); err != nil {
			return err
		}
	}
	if newOK && (!oldOK || oldCell != newCell) {
		if err := tx.SetValue(ctx, s.entryKey(newCell, itemID), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// coveringCells enumerates every cell code within box at this index's level
// by scanning the normalized grid. This is a straightforward, correct
// covering (not a minimal quad-tree decomposition): acceptable at the
// configured levels (<=26 bits/axis) since query boxes are expected to span
// a small fraction of the grid.
func (s *SpatialIndex) coveringCells(box BoundingBox) []uint64 {
	minX, minY := s.normalize(Point{Lat: box.MinLat, Lon: box.MinLon})
	maxX, maxY := s.normalize(Point{Lat: box.MaxLat, Lon: box.MaxLon})
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	var cells []uint64
	for x := int64(minX); x <= int64(maxX); x++ {
		for y := int64(minY); y <= int64(maxY); y++ {
			cells = append(cells, mortonEncode(uint32(x), uint32(y)))
		}
	}
	return cells
}

// Search scans every covering cell for box and deduplicates item ids across
// cells (§4.3.4).
func (s *SpatialIndex) Search(ctx context.Context, tx kv.Transaction, query any) (EntryIterator, error) {
	box := query.(BoundingBox)
	cells := s.coveringCells(box)

	seen := map[string]keyspace.Tuple{}
	for _, cell := range cells {
		cellSub := s.subspace.Sub(int64(cell))
		begin, end := cellSub.Range()
		it, err := tx.GetRange(ctx, begin, end, 0, false)
		if err != nil {
			return nil, err
		}
		for it.Next(ctx) {
			row := it.KeyValue()
			full, uerr := s.subspace.Unpack(row.Key)
			if uerr != nil {
				_ = it.Close()
				return nil, uerr
			}
			id := full[1:]
			seen[idKey(id)] = id
		}
		if err := it.Err(); err != nil {
			_ = it.Close()
			return nil, err
		}
		_ = it.Close()
	}

	ids := make([]keyspace.Tuple, 0, len(seen))
	for _, v := range seen {
		ids = append(ids, v)
	}
	sortTuples(ids)

	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{ItemID: id}
	}
	return newSliceEntryIterator(entries), nil
}
