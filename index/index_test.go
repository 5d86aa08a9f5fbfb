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

	"github.com/dolthub/coredb/kv"
)

// mapReflector is a FieldReflector over map[string]any records, used only by
// this package's tests to stand in for a generated or reflection-based
// binding (§6.3).
type mapReflector struct {
	fields map[string][]string // typeName -> field names
}

func newMapReflector(typeName string, fields ...string) *mapReflector {
	return &mapReflector{fields: map[string][]string{typeName: fields}}
}

func (r *mapReflector) FieldNames(typeName string) []string {
	return r.fields[typeName]
}

func (r *mapReflector) FieldValue(typeName string, record any, field string) (any, bool) {
	m, ok := record.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

func (r *mapReflector) KeyPathField(typeName string, keyPath string) (string, bool) {
	for _, f := range r.fields[typeName] {
		if f == keyPath {
			return f, true
		}
	}
	return "", false
}

func beginTx(ctx context.Context) kv.Transaction {
	store := kv.NewMemStore()
	tx, _ := store.BeginTx(ctx, nil)
	return tx
}
