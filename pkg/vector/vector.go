// Package vector provides nearest-neighbor search over per-resolution
// embeddings. Two implementations are available: SQLiteIndex keeps
// embeddings in the content database via the sqlite-vec extension, and
// MemoryIndex keeps per-resolution HNSW graphs in memory.
//
// A missing backend is not an error: callers hold a nil Index and treat
// an empty dense result list as "no dense signal".
package vector

import (
	"encoding/binary"
	"math"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

// Hit is one nearest-neighbor result.
type Hit struct {
	ID         string
	Resolution store.Resolution

	// Similarity is cosine similarity, higher is closer.
	Similarity float64
}

// SearchOptions configures a KNN query.
type SearchOptions struct {
	// Resolution restricts the search to one level; nil searches all.
	Resolution *store.Resolution

	// Limit is the maximum number of hits.
	Limit int

	// MinScore drops hits below this similarity.
	MinScore float64

	// AllowIDs, when non-nil, restricts hits to these node ids.
	AllowIDs map[string]bool
}

// Index stores one embedding per (node, resolution) pair and answers
// cosine KNN queries. Store has upsert semantics: re-embedding writes a
// new vector under the same key, never mutates in place.
type Index interface {
	Store(id string, res store.Resolution, vec []float32) error
	HasEmbedding(id string, res store.Resolution) (bool, error)
	Search(query []float32, opts SearchOptions) ([]Hit, error)
	Count(res store.Resolution) (int, error)
}

// encodeVector serializes a float32 vector to the little-endian blob
// layout sqlite-vec expects.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
