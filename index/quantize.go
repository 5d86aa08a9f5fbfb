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
	"encoding/binary"
	"math"
	"math/bits"
)

// Quantizer compresses vectors to a smaller code and supports asymmetric
// distance computation against the uncompressed query vector (§4.3.7).
type Quantizer interface {
	Train(vectors [][]float32) error
	Encode(v []float32) []byte
	Serialize() []byte
	Deserialize(data []byte) error
	PrepareQuery(v []float32) any
	DistanceWithPrepared(state any, code []byte) float32
}

// --- Product Quantization ---

// ProductQuantizer splits a vector into M sub-vectors, each quantized
// independently against a trained codebook of 2^NBits centroids.
type ProductQuantizer struct {
	Dim      int
	M        int
	NBits    int
	codebook [][][]float32 // [subIdx][centroidIdx][subDim]
}

func NewProductQuantizer(dim, m, nbits int) *ProductQuantizer {
	return &ProductQuantizer{Dim: dim, M: m, NBits: nbits}
}

func (q *ProductQuantizer) subDim() int { return q.Dim / q.M }
func (q *ProductQuantizer) k() int      { return 1 << uint(q.NBits) }

// Train runs a small fixed number of k-means iterations per subspace using
// the first k = 2^NBits training vectors as seeds (cycling through them when
// fewer are given; duplicates are not skipped), a deterministic and
// dependency-free stand-in for a full k-means library.
func (q *ProductQuantizer) Train(vectors [][]float32) error {
	sd := q.subDim()
	k := q.k()
	q.codebook = make([][][]float32, q.M)

	for m := 0; m < q.M; m++ {
		centroids := make([][]float32, k)
		for c := 0; c < k; c++ {
			centroids[c] = make([]float32, sd)
			src := vectors[c%len(vectors)]
			copy(centroids[c], src[m*sd:m*sd+sd])
		}
		for iter := 0; iter < 10; iter++ {
			sums := make([][]float64, k)
			counts := make([]int, k)
			for c := range sums {
				sums[c] = make([]float64, sd)
			}
			for _, v := range vectors {
				sub := v[m*sd : m*sd+sd]
				best, bestDist := 0, math.MaxFloat64
				for c, cen := range centroids {
					d := sqDist(sub, cen)
					if d < bestDist {
						bestDist, best = d, c
					}
				}
				counts[best]++
				for i, x := range sub {
					sums[best][i] += float64(x)
				}
			}
			for c := range centroids {
				if counts[c] == 0 {
					continue
				}
				for i := range centroids[c] {
					centroids[c][i] = float32(sums[c][i] / float64(counts[c]))
				}
			}
		}
		q.codebook[m] = centroids
	}
	return nil
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

// Encode maps each sub-vector to its nearest centroid index, one byte per
// subspace (requires NBits <= 8).
func (q *ProductQuantizer) Encode(v []float32) []byte {
	sd := q.subDim()
	code := make([]byte, q.M)
	for m := 0; m < q.M; m++ {
		sub := v[m*sd : m*sd+sd]
		best, bestDist := 0, math.MaxFloat64
		for c, cen := range q.codebook[m] {
			d := sqDist(sub, cen)
			if d < bestDist {
				bestDist, best = d, c
			}
		}
		code[m] = byte(best)
	}
	return code
}

// Serialize encodes Dim, M, NBits, and the trained codebook.
func (q *ProductQuantizer) Serialize() []byte {
	var out []byte
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(q.Dim))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(q.M))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(q.NBits))
	out = append(out, hdr[:]...)
	for _, sub := range q.codebook {
		for _, cen := range sub {
			for _, f := range cen {
				var b [4]byte
				binary.BigEndian.PutUint32(b[:], math.Float32bits(f))
				out = append(out, b[:]...)
			}
		}
	}
	return out
}

// Deserialize fails with ErrQuantizerParamsMismatch when the stored Dim, M,
// or NBits disagree with this quantizer's configuration.
func (q *ProductQuantizer) Deserialize(data []byte) error {
	if len(data) < 12 {
		return ErrQuantizerParamsMismatch
	}
	dim := int(binary.BigEndian.Uint32(data[0:4]))
	m := int(binary.BigEndian.Uint32(data[4:8]))
	nbits := int(binary.BigEndian.Uint32(data[8:12]))
	if dim != q.Dim || m != q.M || nbits != q.NBits {
		return ErrQuantizerParamsMismatch
	}
	sd := q.subDim()
	k := q.k()
	off := 12
	q.codebook = make([][][]float32, q.M)
	for mi := 0; mi < q.M; mi++ {
		centroids := make([][]float32, k)
		for c := 0; c < k; c++ {
			cen := make([]float32, sd)
			for d := 0; d < sd; d++ {
				if off+4 > len(data) {
					return ErrQuantizerParamsMismatch
				}
				cen[d] = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
				off += 4
			}
			centroids[c] = cen
		}
		q.codebook[mi] = centroids
	}
	return nil
}

// pqQueryState is the precomputed per-subspace distance table (ADC, §4.3.7).
type pqQueryState struct {
	tables [][]float64 // [subIdx][centroidIdx]
}

func (q *ProductQuantizer) PrepareQuery(v []float32) any {
	sd := q.subDim()
	tables := make([][]float64, q.M)
	for m := 0; m < q.M; m++ {
		sub := v[m*sd : m*sd+sd]
		t := make([]float64, len(q.codebook[m]))
		for c, cen := range q.codebook[m] {
			t[c] = sqDist(sub, cen)
		}
		tables[m] = t
	}
	return pqQueryState{tables: tables}
}

func (q *ProductQuantizer) DistanceWithPrepared(state any, code []byte) float32 {
	st := state.(pqQueryState)
	var sum float64
	for m, c := range code {
		sum += st.tables[m][int(c)]
	}
	return float32(math.Sqrt(sum))
}

// --- Scalar Quantization ---

// ScalarQuantizer learns a per-dimension (min, max) at training time and
// encodes each dimension to Bits bits (8 or 4).
type ScalarQuantizer struct {
	Dim  int
	Bits int
	Min  []float32
	Max  []float32
}

func NewScalarQuantizer(dim, bitsPerDim int) *ScalarQuantizer {
	return &ScalarQuantizer{Dim: dim, Bits: bitsPerDim}
}

func (q *ScalarQuantizer) Train(vectors [][]float32) error {
	q.Min = make([]float32, q.Dim)
	q.Max = make([]float32, q.Dim)
	for i := 0; i < q.Dim; i++ {
		q.Min[i] = vectors[0][i]
		q.Max[i] = vectors[0][i]
	}
	for _, v := range vectors {
		for i, x := range v {
			if x < q.Min[i] {
				q.Min[i] = x
			}
			if x > q.Max[i] {
				q.Max[i] = x
			}
		}
	}
	return nil
}

func (q *ScalarQuantizer) levels() float64 { return float64(int(1)<<uint(q.Bits)) - 1 }

func (q *ScalarQuantizer) quantizeDim(i int, x float32) uint32 {
	span := q.Max[i] - q.Min[i]
	if span == 0 {
		return 0
	}
	n := (x - q.Min[i]) / span
	n = float32(clamp01(float64(n)))
	return uint32(float64(n) * q.levels())
}

func (q *ScalarQuantizer) dequantizeDim(i int, code uint32) float32 {
	frac := float64(code) / q.levels()
	return q.Min[i] + float32(frac)*(q.Max[i]-q.Min[i])
}

// Encode packs Dim codes of Bits bits each into a byte slice, 4-bit codes
// packed two per byte.
func (q *ScalarQuantizer) Encode(v []float32) []byte {
	if q.Bits == 8 {
		out := make([]byte, q.Dim)
		for i, x := range v {
			out[i] = byte(q.quantizeDim(i, x))
		}
		return out
	}
	out := make([]byte, (q.Dim+1)/2)
	for i, x := range v {
		c := byte(q.quantizeDim(i, x)) & 0x0F
		if i%2 == 0 {
			out[i/2] = c << 4
		} else {
			out[i/2] |= c
		}
	}
	return out
}

func (q *ScalarQuantizer) decode(code []byte) []float32 {
	out := make([]float32, q.Dim)
	if q.Bits == 8 {
		for i := 0; i < q.Dim; i++ {
			out[i] = q.dequantizeDim(i, uint32(code[i]))
		}
		return out
	}
	for i := 0; i < q.Dim; i++ {
		b := code[i/2]
		var c byte
		if i%2 == 0 {
			c = b >> 4
		} else {
			c = b & 0x0F
		}
		out[i] = q.dequantizeDim(i, uint32(c))
	}
	return out
}

func (q *ScalarQuantizer) Serialize() []byte {
	var out []byte
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(q.Dim))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(q.Bits))
	out = append(out, hdr[:]...)
	for i := 0; i < q.Dim; i++ {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(q.Min[i]))
		out = append(out, b[:]...)
		binary.BigEndian.PutUint32(b[:], math.Float32bits(q.Max[i]))
		out = append(out, b[:]...)
	}
	return out
}

func (q *ScalarQuantizer) Deserialize(data []byte) error {
	if len(data) < 8 {
		return ErrQuantizerParamsMismatch
	}
	dim := int(binary.BigEndian.Uint32(data[0:4]))
	bitsPerDim := int(binary.BigEndian.Uint32(data[4:8]))
	if dim != q.Dim || bitsPerDim != q.Bits {
		return ErrQuantizerParamsMismatch
	}
	q.Min = make([]float32, q.Dim)
	q.Max = make([]float32, q.Dim)
	off := 8
	for i := 0; i < q.Dim; i++ {
		if off+8 > len(data) {
			return ErrQuantizerParamsMismatch
		}
		q.Min[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
		q.Max[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off+4 : off+8]))
		off += 8
	}
	return nil
}

func (q *ScalarQuantizer) PrepareQuery(v []float32) any { return v }

func (q *ScalarQuantizer) DistanceWithPrepared(state any, code []byte) float32 {
	target := state.([]float32)
	approx := q.decode(code)
	return float32(math.Sqrt(sqDist(target, approx)))
}

// --- Binary Quantization ---

// BinaryQuantizer encodes each dimension as a sign bit (or learned
// threshold), packed into Hamming-distance-comparable bytes. An optional
// rescoring pass re-ranks the top-(k*r) candidates under the original
// metric (performed by the caller, not this type).
type BinaryQuantizer struct {
	Dim       int
	Threshold []float32
}

func NewBinaryQuantizer(dim int) *BinaryQuantizer {
	return &BinaryQuantizer{Dim: dim, Threshold: make([]float32, dim)}
}

// Train learns a per-dimension threshold as the mean, so the sign bit
// reflects "above/below average" rather than a fixed zero cut.
func (q *BinaryQuantizer) Train(vectors [][]float32) error {
	sums := make([]float64, q.Dim)
	for _, v := range vectors {
		for i, x := range v {
			sums[i] += float64(x)
		}
	}
	for i := range q.Threshold {
		q.Threshold[i] = float32(sums[i] / float64(len(vectors)))
	}
	return nil
}

func (q *BinaryQuantizer) Encode(v []float32) []byte {
	out := make([]byte, (q.Dim+7)/8)
	for i, x := range v {
		if x >= q.Threshold[i] {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func (q *BinaryQuantizer) Serialize() []byte {
	var out []byte
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(q.Dim))
	out = append(out, hdr[:]...)
	for _, t := range q.Threshold {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(t))
		out = append(out, b[:]...)
	}
	return out
}

func (q *BinaryQuantizer) Deserialize(data []byte) error {
	if len(data) < 4 {
		return ErrQuantizerParamsMismatch
	}
	dim := int(binary.BigEndian.Uint32(data[0:4]))
	if dim != q.Dim {
		return ErrQuantizerParamsMismatch
	}
	if len(data) < 4+4*dim {
		return ErrQuantizerParamsMismatch
	}
	q.Threshold = make([]float32, dim)
	off := 4
	for i := 0; i < dim; i++ {
		q.Threshold[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
		off += 4
	}
	return nil
}

func (q *BinaryQuantizer) PrepareQuery(v []float32) any { return q.Encode(v) }

// DistanceWithPrepared returns the Hamming distance between the prepared
// query code and the candidate code.
func (q *BinaryQuantizer) DistanceWithPrepared(state any, code []byte) float32 {
	queryCode := state.([]byte)
	dist := 0
	for i := range queryCode {
		if i < len(code) {
			dist += bits.OnesCount8(queryCode[i] ^ code[i])
		}
	}
	return float32(dist)
}
