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

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// EnvelopeV1 is the only envelope format version this package writes. The
// version byte lets a future format evolve without guessing at old bytes.
const EnvelopeV1 byte = 1

const (
	discInline byte = 0
	discBlob   byte = 1
)

// Envelope is the persisted form of a record under the items subspace: either
// inline bytes, or a header pointing at chained blob chunks.
type Envelope struct {
	Version byte
	Inline  []byte // valid iff !IsBlob
	IsBlob  bool
	BlobID  uuid.UUID // valid iff IsBlob
	Chunks  int       // number of chunks, valid iff IsBlob
	Length  int       // total decoded byte length, valid iff IsBlob
}

// EncodeEnvelope serializes e to its on-disk representation.
func EncodeEnvelope(e Envelope) []byte {
	if !e.IsBlob {
		out := make([]byte, 2+len(e.Inline))
		out[0] = EnvelopeV1
		out[1] = discInline
		copy(out[2:], e.Inline)
		return out
	}
	out := make([]byte, 2+16+4+8)
	out[0] = EnvelopeV1
	out[1] = discBlob
	copy(out[2:18], e.BlobID[:])
	binary.BigEndian.PutUint32(out[18:22], uint32(e.Chunks))
	binary.BigEndian.PutUint64(out[22:30], uint64(e.Length))
	return out
}

// DecodeEnvelope parses an on-disk envelope, failing with
// ErrUnsupportedEnvelope for any version/discriminant this package does not
// recognize rather than guessing at the layout.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < 2 {
		return Envelope{}, fmt.Errorf("%w: truncated header", ErrUnsupportedEnvelope)
	}
	version := b[0]
	if version != EnvelopeV1 {
		return Envelope{}, fmt.Errorf("%w: version %d", ErrUnsupportedEnvelope, version)
	}
	switch b[1] {
	case discInline:
		return Envelope{Version: version, Inline: append([]byte(nil), b[2:]...)}, nil
	case discBlob:
		if len(b) < 30 {
			return Envelope{}, fmt.Errorf("%w: truncated blob header", ErrUnsupportedEnvelope)
		}
		var id uuid.UUID
		copy(id[:], b[2:18])
		chunks := int(binary.BigEndian.Uint32(b[18:22]))
		length := int(binary.BigEndian.Uint64(b[22:30]))
		return Envelope{Version: version, IsBlob: true, BlobID: id, Chunks: chunks, Length: length}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: discriminant %d", ErrUnsupportedEnvelope, b[1])
	}
}
