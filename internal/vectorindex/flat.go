// Package vectorindex provides an exact inner-product vector index. Callers
// store L2-normalized vectors so that inner product equals cosine similarity.
package vectorindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	magic         = "DQFI"
	formatVersion = uint32(1)
	headerSize    = 16
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")
	// ErrInvalidData is returned when serialized index bytes cannot be decoded.
	ErrInvalidData = errors.New("vectorindex: invalid data")
)

// Hit is a search result: the position of the stored vector and its score.
type Hit struct {
	Position int
	Score    float32
}

// FlatIndex scans every stored vector on each query.
type FlatIndex struct {
	dim  int
	vecs [][]float32
}

// NewFlatIndex returns an empty index of the given dimension. A zero
// dimension is fixed by the first Add.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Build returns an index holding vectors in order.
func Build(vectors [][]float32) (*FlatIndex, error) {
	idx := &FlatIndex{}
	if err := idx.Add(vectors); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add appends vectors. Positions continue from the current length.
func (f *FlatIndex) Add(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := f.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dims, index has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	f.dim = dim
	for _, v := range vectors {
		f.vecs = append(f.vecs, append([]float32(nil), v...))
	}
	return nil
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int { return len(f.vecs) }

// Dimension returns the vector dimension, zero for an empty untyped index.
func (f *FlatIndex) Dimension() int { return f.dim }

// Vector returns the stored vector at position i.
func (f *FlatIndex) Vector(i int) []float32 { return f.vecs[i] }

// Search returns at most k hits ordered by descending inner product. Equal
// scores keep ascending position order.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(f.vecs) == 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	hits := make([]Hit, len(f.vecs))
	for i, v := range f.vecs {
		hits[i] = Hit{Position: i, Score: Dot(query, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// MarshalBinary encodes magic, version, dim(uint32), n(uint32) and then n*dim
// little-endian float32 values.
func (f *FlatIndex) MarshalBinary() ([]byte, error) {
	out := make([]byte, headerSize, headerSize+4*f.dim*len(f.vecs))
	copy(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], formatVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(f.dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(f.vecs)))
	buf := make([]byte, 4)
	for _, v := range f.vecs {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			out = append(out, buf...)
		}
	}
	return out, nil
}

// UnmarshalBinary replaces the index contents with the decoded data. On error
// the index is left unchanged.
func (f *FlatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize || string(data[0:4]) != magic {
		return fmt.Errorf("%w: bad header", ErrInvalidData)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidData, v)
	}
	dim := uint64(binary.LittleEndian.Uint32(data[8:12]))
	count := uint64(binary.LittleEndian.Uint32(data[12:16]))
	if dim == 0 && count > 0 {
		return fmt.Errorf("%w: %d vectors with zero dimension", ErrInvalidData, count)
	}
	// Divide rather than multiply: dim*count can exceed 64 bits.
	body := uint64(len(data) - headerSize)
	if (dim == 0 && body != 0) || (dim > 0 && (body%(4*dim) != 0 || body/(4*dim) != count)) {
		return fmt.Errorf("%w: expected %d vectors of %d dims, got %d bytes", ErrInvalidData, count, dim, body)
	}
	n := int(count)
	vecs := make([][]float32, n)
	off := headerSize
	for i := range vecs {
		v := make([]float32, int(dim))
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vecs[i] = v
	}
	f.dim = int(dim)
	f.vecs = vecs
	return nil
}
