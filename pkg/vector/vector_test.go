package vector

import (
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

func seedIndex(t *testing.T, x Index) {
	t.Helper()

	require.NoError(t, x.Store("chunk-a", store.ResolutionChunk, []float32{1, 0, 0, 0}))
	require.NoError(t, x.Store("chunk-b", store.ResolutionChunk, []float32{0.9, 0.1, 0, 0}))
	require.NoError(t, x.Store("chunk-c", store.ResolutionChunk, []float32{0, 1, 0, 0}))
	require.NoError(t, x.Store("sect-a", store.ResolutionSection, []float32{1, 0, 0, 0}))
}

func TestMemoryIndexSearchOrder(t *testing.T) {
	x := NewMemoryIndex()
	seedIndex(t, x)

	chunk := store.ResolutionChunk
	hits, err := x.Search([]float32{1, 0, 0, 0}, SearchOptions{
		Resolution: &chunk,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "chunk-a", hits[0].ID)
	assert.Equal(t, "chunk-b", hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestMemoryIndexAllResolutions(t *testing.T) {
	x := NewMemoryIndex()
	seedIndex(t, x)

	hits, err := x.Search([]float32{1, 0, 0, 0}, SearchOptions{Limit: 10})
	require.NoError(t, err)

	ids := map[string]store.Resolution{}
	for _, h := range hits {
		ids[h.ID] = h.Resolution
	}
	assert.Equal(t, store.ResolutionChunk, ids["chunk-a"])
	assert.Equal(t, store.ResolutionSection, ids["sect-a"])
}

func TestMemoryIndexAllowIDs(t *testing.T) {
	x := NewMemoryIndex()
	seedIndex(t, x)

	chunk := store.ResolutionChunk
	hits, err := x.Search([]float32{1, 0, 0, 0}, SearchOptions{
		Resolution: &chunk,
		Limit:      10,
		AllowIDs:   map[string]bool{"chunk-b": true, "chunk-c": true},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "chunk-b", hits[0].ID)
	assert.Equal(t, "chunk-c", hits[1].ID)
}

func TestMemoryIndexMinScore(t *testing.T) {
	x := NewMemoryIndex()
	seedIndex(t, x)

	chunk := store.ResolutionChunk
	hits, err := x.Search([]float32{1, 0, 0, 0}, SearchOptions{
		Resolution: &chunk,
		Limit:      10,
		MinScore:   0.5,
	})
	require.NoError(t, err)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.5)
		assert.NotEqual(t, "chunk-c", h.ID)
	}
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	x := NewMemoryIndex()
	seedIndex(t, x)

	// Re-embed chunk-c to point at the query direction.
	require.NoError(t, x.Store("chunk-c", store.ResolutionChunk, []float32{1, 0, 0, 0}))

	n, err := x.Count(store.ResolutionChunk)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	chunk := store.ResolutionChunk
	hits, err := x.Search([]float32{1, 0, 0, 0}, SearchOptions{
		Resolution: &chunk,
		Limit:      3,
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// chunk-a and chunk-c both match exactly; ids break the tie.
	assert.Equal(t, "chunk-a", hits[0].ID)
	assert.Equal(t, "chunk-c", hits[1].ID)
	assert.InDelta(t, 1.0, hits[1].Similarity, 1e-6)
}

func TestMemoryIndexDimensionMismatch(t *testing.T) {
	x := NewMemoryIndex()
	require.NoError(t, x.Store("a", store.ResolutionChunk, []float32{1, 0}))

	err := x.Store("b", store.ResolutionChunk, []float32{1, 0, 0})
	assert.Error(t, err)

	chunk := store.ResolutionChunk
	_, err = x.Search([]float32{1, 0, 0}, SearchOptions{Resolution: &chunk, Limit: 1})
	assert.Error(t, err)
}

func TestMemoryIndexHasEmbedding(t *testing.T) {
	x := NewMemoryIndex()
	seedIndex(t, x)

	ok, err := x.HasEmbedding("chunk-a", store.ResolutionChunk)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = x.HasEmbedding("chunk-a", store.ResolutionSection)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryIndexSaveLoadRoundTrip(t *testing.T) {
	fs, err := mem.NewFS()
	require.NoError(t, err)

	x, err := NewPersistentMemoryIndex(fs, "index.bin")
	require.NoError(t, err)
	seedIndex(t, x)
	require.NoError(t, x.Save())

	x2, err := NewPersistentMemoryIndex(fs, "index.bin")
	require.NoError(t, err)

	n, err := x2.Count(store.ResolutionChunk)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	chunk := store.ResolutionChunk
	hits, err := x2.Search([]float32{1, 0, 0, 0}, SearchOptions{
		Resolution: &chunk,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-a", hits[0].ID)
}

func TestMemoryIndexEmptyQuery(t *testing.T) {
	x := NewMemoryIndex()
	seedIndex(t, x)

	hits, err := x.Search(nil, SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
