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

// Package storage implements record persistence under the items subspace
// (§4.2): an envelope that inlines small values or chains large ones into
// fixed-size blob chunks, and the index-maintenance hook that record writes
// drive.
package storage

import "errors"

// ErrUnsupportedEnvelope is returned when a reader encounters an envelope
// version it does not recognize. The format is self-describing; a reader
// must fail rather than guess at an unknown layout.
var ErrUnsupportedEnvelope = errors.New("storage: unsupported envelope version")

// ErrNoEnvelope is returned when reading a primary key that has no live
// envelope.
var ErrNoEnvelope = errors.New("storage: no envelope for key")
