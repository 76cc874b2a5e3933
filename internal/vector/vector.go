// Package vector holds small embedding-vector helpers shared by the store
// and the validation pipeline.
package vector

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
)

// Cosine returns the cosine similarity of two vectors. Mismatched lengths or
// zero-magnitude vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Encode serializes a vector as a JSON array for storage in drivers without
// a native vector type.
func Encode(v []float64) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode")
	}
	return data, nil
}

// Decode parses a JSON array back into a vector.
func Decode(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrap(err, "vector: decode")
	}
	return v, nil
}
