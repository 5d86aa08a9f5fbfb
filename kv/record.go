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

package kv

// RecordCodec encodes/decodes a user record type to/from the length-prefixed,
// field-tagged wire format assumed by the envelope format (§6.2). The core
// treats the record itself as an opaque `any` value produced by Decode and
// consumed by Encode/FieldValue.
type RecordCodec interface {
	// Encode serializes record (of the named type) to bytes.
	Encode(typeName string, record any) ([]byte, error)
	// Decode deserializes bytes into a record of the named type.
	Decode(typeName string, data []byte) (any, error)
}

// FieldReflector is the sole abstraction the core has over a record's
// language-level representation (§6.3); it must not leak any
// language-specific reflection API to callers.
type FieldReflector interface {
	// FieldNames lists every named field a record of typeName declares, in
	// declaration order.
	FieldNames(typeName string) []string
	// FieldValue extracts the value of the named field from record. It
	// returns (nil, false) if the field is absent or nil-valued.
	FieldValue(typeName string, record any, field string) (any, bool)
	// KeyPathField maps a dotted key-path token (as used in an
	// IndexDescriptor's key-path list) to the underlying field name.
	KeyPathField(typeName, keyPath string) (field string, ok bool)
}
