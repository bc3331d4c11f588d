// Package encoding converts embeddings to and from the FeatureVector blob.
//
// The blob is the raw float32 array in native byte order with no header, so
// the dimension has to be known by the reader.
package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Float32Size is the number of bytes used per vector component.
const Float32Size = 4

// ErrInvalidBlob is returned when a blob cannot hold a vector of the expected dimension
var ErrInvalidBlob = errors.New("invalid vector blob")

// BlobSize returns the exact byte length of an encoded vector with dim components.
func BlobSize(dim int) int {
	return dim * Float32Size
}

// EncodeVector encodes a float32 vector to bytes.
// The output is byte-compatible with a C float[] written to disk on the same machine.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*Float32Size)
	for i, v := range vector {
		binary.NativeEndian.PutUint32(buf[i*Float32Size:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector decodes a blob into a vector of exactly dim components.
func DecodeVector(data []byte, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidBlob, dim)
	}
	if len(data) != BlobSize(dim) {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidBlob, BlobSize(dim), len(data))
	}

	vector := make([]float32, dim)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.NativeEndian.Uint32(data[i*Float32Size:]))
	}
	return vector, nil
}
