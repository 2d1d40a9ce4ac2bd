// Package embedding holds the coarse visual-similarity signal used to rank
// candidates before geometric verification, and the cache that keeps it.
package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"math"
)

// Model turns an image into a normalized embedding vector. Errors meaning
// the model cannot run at all wrap types.ErrCollaboratorUnavailable; any
// other error is specific to the image.
type Model interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Cosine returns the similarity of two normalized vectors, which is their
// dot product. Vectors of different length compare as 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Encode packs a vector as little-endian float32.
func Encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
