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

// Package index implements the index family (§4.3): scalar/covering,
// bitmap, full-text, spatial (Morton), vector (flat, HNSW, with optional
// quantization), ACORN filtered vector search, and graph adjacency. Every
// kind is a tagged variant dispatching to its own Maintainer/Searcher pair,
// per the "deep inheritance" design note in spec §9: a small tagged union
// rather than a polymorphic class hierarchy.
package index

import "errors"

// ErrVectorDimensionMismatch is returned when a query or insert vector's
// dimensionality disagrees with the index's configured dimension.
var ErrVectorDimensionMismatch = errors.New("index: vector dimension mismatch")

// ErrInvalidK is returned for a non-positive top-k request.
var ErrInvalidK = errors.New("index: k must be positive")

// ErrGraphTooLargeForInline is returned when a single HNSW mutation would
// exceed the host transaction's operation budget; callers must fall back to
// a batched online indexer.
var ErrGraphTooLargeForInline = errors.New("index: graph mutation too large for an inline transaction")

// ErrQuantizerParamsMismatch is returned when a quantizer's serialized
// parameters (dimension, sub-count, bit width) disagree with the codebook
// being deserialized against.
var ErrQuantizerParamsMismatch = errors.New("index: quantizer parameters mismatch")

// ErrNotCovering is returned when an index-only scan is attempted against an
// index that is not fully covering for the requested projection.
var ErrNotCovering = errors.New("index: index is not fully covering for projection")
