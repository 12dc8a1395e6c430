package vector

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"

	"github.com/fogfish/hnsw"
	hvector "github.com/fogfish/hnsw/vector"
	"github.com/hack-pad/hackpadfs"
	kvector "github.com/kshard/vector"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

// keyRef maps an HNSW key back to the node it embeds.
type keyRef struct {
	id  string
	res store.Resolution
}

// MemoryIndex keeps one HNSW graph per resolution. HNSW cannot delete,
// so an upsert inserts a fresh key and the old one is filtered out of
// results; stale counts are tracked to size the over-fetch.
//
// Searches with an AllowIDs restriction are answered by exact scan over
// the candidate set instead of the graph, which is both correct and
// fast when the allow set is small (the staged-retrieval case).
type MemoryIndex struct {
	mu    sync.RWMutex
	fs    hackpadfs.FS
	path  string
	next  uint32
	keys  map[uint32]keyRef
	cur   map[store.Resolution]map[string]uint32
	vecs  map[store.Resolution]map[string][]float32
	stale map[store.Resolution]int
	idx   map[store.Resolution]*hnsw.HNSW[hvector.VF32]
}

// NewMemoryIndex creates an empty in-memory index with no persistence.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		keys:  make(map[uint32]keyRef),
		cur:   make(map[store.Resolution]map[string]uint32),
		vecs:  make(map[store.Resolution]map[string][]float32),
		stale: make(map[store.Resolution]int),
		idx:   make(map[store.Resolution]*hnsw.HNSW[hvector.VF32]),
	}
}

// NewPersistentMemoryIndex creates a MemoryIndex backed by a snapshot
// file on fs. If a valid snapshot exists at path it is loaded, otherwise
// the index starts empty.
func NewPersistentMemoryIndex(fs hackpadfs.FS, path string) (*MemoryIndex, error) {
	x := NewMemoryIndex()
	x.fs = fs
	x.path = path

	if err := x.Load(); err != nil {
		// No snapshot yet; start fresh.
		return x, nil
	}
	return x, nil
}

// Store upserts the embedding for (id, res).
func (x *MemoryIndex) Store(id string, res store.Resolution, vec []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.storeLocked(id, res, vec)
}

func (x *MemoryIndex) storeLocked(id string, res store.Resolution, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("store embedding %s: empty vector", id)
	}

	graph := x.idx[res]
	if graph == nil {
		graph = hnsw.New[hvector.VF32](hvector.SurfaceVF32(kvector.Cosine()))
		x.idx[res] = graph
		x.cur[res] = make(map[string]uint32)
		x.vecs[res] = make(map[string][]float32)
	}

	if graph.Size() > 0 {
		dim := len(graph.Head().Vec)
		if len(vec) != dim {
			return fmt.Errorf("store embedding %s: dimension mismatch: expected %d, got %d", id, dim, len(vec))
		}
	}

	if _, exists := x.vecs[res][id]; exists {
		x.stale[res]++
	}

	x.next++
	key := x.next
	graph.Insert(hvector.VF32{Key: key, Vec: vec})
	x.keys[key] = keyRef{id: id, res: res}
	x.cur[res][id] = key
	x.vecs[res][id] = append([]float32(nil), vec...)
	return nil
}

// HasEmbedding reports whether (id, res) has a stored vector.
func (x *MemoryIndex) HasEmbedding(id string, res store.Resolution) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.vecs[res][id]
	return ok, nil
}

// Count returns the number of distinct embedded nodes at res.
func (x *MemoryIndex) Count(res store.Resolution) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vecs[res]), nil
}

// Search returns the closest embeddings to query by cosine similarity.
func (x *MemoryIndex) Search(query []float32, opts SearchOptions) ([]Hit, error) {
	if len(query) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	resolutions := store.Resolutions()
	if opts.Resolution != nil {
		resolutions = []store.Resolution{*opts.Resolution}
	}

	var hits []Hit
	for _, res := range resolutions {
		if opts.AllowIDs != nil {
			hits = append(hits, x.scanLocked(query, res, opts)...)
		} else {
			resHits, err := x.knnLocked(query, res, limit)
			if err != nil {
				return nil, err
			}
			hits = append(hits, resHits...)
		}
	}

	filtered := hits[:0]
	for _, h := range hits {
		if h.Similarity >= opts.MinScore {
			filtered = append(filtered, h)
		}
	}
	hits = filtered

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// scanLocked is an exact scan over the allow set at one resolution.
func (x *MemoryIndex) scanLocked(query []float32, res store.Resolution, opts SearchOptions) []Hit {
	var hits []Hit
	for id, vec := range x.vecs[res] {
		if !opts.AllowIDs[id] {
			continue
		}
		if len(vec) != len(query) {
			continue
		}
		hits = append(hits, Hit{
			ID:         id,
			Resolution: res,
			Similarity: cosineSimilarity(query, vec),
		})
	}
	return hits
}

// knnLocked queries one resolution's HNSW graph, over-fetching to cover
// keys invalidated by upserts.
func (x *MemoryIndex) knnLocked(query []float32, res store.Resolution, limit int) ([]Hit, error) {
	graph := x.idx[res]
	if graph == nil || graph.Size() == 0 {
		return nil, nil
	}

	dim := len(graph.Head().Vec)
	if len(query) != dim {
		return nil, fmt.Errorf("vector search: dimension mismatch: expected %d, got %d", dim, len(query))
	}

	k := limit + x.stale[res]
	ef := k * 2
	if ef < 100 {
		ef = 100
	}

	results := graph.Search(hvector.VF32{Vec: query}, k, ef)

	var hits []Hit
	for _, r := range results {
		ref, ok := x.keys[r.Key]
		if !ok || x.cur[res][ref.id] != r.Key {
			// Superseded by a later upsert.
			continue
		}
		hits = append(hits, Hit{
			ID:         ref.id,
			Resolution: res,
			Similarity: cosineSimilarity(query, x.vecs[res][ref.id]),
		})
	}
	return hits, nil
}

// memorySnapshot is the gob-serialized form of a MemoryIndex. Only the
// raw vectors are persisted; graphs are rebuilt on load, which keeps the
// snapshot format independent of HNSW internals.
type memorySnapshot struct {
	Vecs map[int]map[string][]float32
}

// Save writes a snapshot of the index to its backing file.
func (x *MemoryIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.fs == nil {
		return fmt.Errorf("save index: no backing filesystem")
	}

	snap := memorySnapshot{Vecs: make(map[int]map[string][]float32)}
	for res, byID := range x.vecs {
		m := make(map[string][]float32, len(byID))
		for id, vec := range byID {
			m[id] = vec
		}
		snap.Vecs[int(res)] = m
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode index snapshot: %w", err)
	}
	if err := hackpadfs.WriteFullFile(x.fs, x.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write index snapshot: %w", err)
	}
	return nil
}

// Load replaces the index contents with the snapshot on disk. Vectors
// are re-inserted in sorted id order so rebuilt graphs are reproducible.
func (x *MemoryIndex) Load() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.fs == nil {
		return fmt.Errorf("load index: no backing filesystem")
	}

	content, err := hackpadfs.ReadFile(x.fs, x.path)
	if err != nil {
		return err
	}

	var snap memorySnapshot
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&snap); err != nil {
		return fmt.Errorf("decode index snapshot: %w", err)
	}

	x.next = 0
	x.keys = make(map[uint32]keyRef)
	x.cur = make(map[store.Resolution]map[string]uint32)
	x.vecs = make(map[store.Resolution]map[string][]float32)
	x.stale = make(map[store.Resolution]int)
	x.idx = make(map[store.Resolution]*hnsw.HNSW[hvector.VF32])

	for resInt, byID := range snap.Vecs {
		res := store.Resolution(resInt)
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if err := x.storeLocked(id, res, byID[id]); err != nil {
				return err
			}
		}
	}
	return nil
}
