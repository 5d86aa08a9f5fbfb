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

// Package keyspace implements the hierarchical subspace/tuple-packing layer
// that composes fixed byte prefixes with heterogeneous tuples into
// order-preserving keys. Every other component addresses the host KV store
// exclusively through a Subspace.
package keyspace

import "errors"

// ErrInvalidEncoding is returned by Subspace.Unpack when the given bytes were
// not produced by the same subspace's packing protocol.
var ErrInvalidEncoding = errors.New("keyspace: invalid encoding")

// ErrTruncated is returned when a tuple's byte encoding ends mid-element.
var ErrTruncated = errors.New("keyspace: truncated tuple")
