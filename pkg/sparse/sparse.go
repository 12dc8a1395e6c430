// Package sparse provides inverted-index lexical search with BM25
// ranking. Scores returned from Search are min-max normalized over the
// result batch, so 1.0 always marks the best lexical match of that
// query, which keeps them mixable with bounded dense similarities.
package sparse

import (
	"math"
	"sort"
	"sync"
)

const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// Result is one ranked lexical match.
type Result struct {
	ID string

	// Score is min-max normalized to [0,1] within the batch.
	Score float64

	// Raw is the unnormalized BM25 score.
	Raw float64
}

// Config holds the BM25 shape parameters.
type Config struct {
	K1 float64
	B  float64
}

// Index is an in-memory inverted index over node text.
type Index struct {
	mu       sync.RWMutex
	k1       float64
	b        float64
	postings map[string]map[string]int // term -> node id -> tf
	docLens  map[string]int
	totalLen int
}

// New creates an empty index with standard BM25 parameters.
func New() *Index {
	return NewWithConfig(Config{K1: defaultK1, B: defaultB})
}

// NewWithConfig creates an empty index with explicit parameters.
func NewWithConfig(cfg Config) *Index {
	if cfg.K1 <= 0 {
		cfg.K1 = defaultK1
	}
	if cfg.B <= 0 {
		cfg.B = defaultB
	}
	return &Index{
		k1:       cfg.K1,
		b:        cfg.B,
		postings: make(map[string]map[string]int),
		docLens:  make(map[string]int),
	}
}

// Add indexes text under id, replacing any previous text for that id.
func (x *Index) Add(id, text string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(id)

	terms := tokenize(text)
	if len(terms) == 0 {
		return
	}

	for _, term := range terms {
		if x.postings[term] == nil {
			x.postings[term] = make(map[string]int)
		}
		x.postings[term][id]++
	}
	x.docLens[id] = len(terms)
	x.totalLen += len(terms)
}

// Remove drops id from the index. Removing an unknown id is a no-op.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(id)
}

func (x *Index) removeLocked(id string) {
	n, ok := x.docLens[id]
	if !ok {
		return
	}
	for term, docs := range x.postings {
		if _, hit := docs[id]; hit {
			delete(docs, id)
			if len(docs) == 0 {
				delete(x.postings, term)
			}
		}
	}
	delete(x.docLens, id)
	x.totalLen -= n
}

// Count returns the number of indexed documents.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docLens)
}

// Search ranks documents matching any sanitized query term. An empty or
// entirely-stripped query returns no results, never an error.
func (x *Index) Search(query string, limit int) []Result {
	terms := SanitizeQuery(query)
	if len(terms) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	totalDocs := len(x.docLens)
	if totalDocs == 0 {
		return nil
	}
	avgLen := float64(x.totalLen) / float64(totalDocs)

	scores := make(map[string]float64)
	for _, term := range terms {
		docs, ok := x.postings[term]
		if !ok {
			continue
		}
		idf := idf(float64(totalDocs), len(docs))
		for id, tf := range docs {
			ntf := normalizedTF(tf, x.docLens[id], avgLen, x.b)
			scores[id] += idf * saturate(ntf, x.k1)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	results := make([]Result, 0, len(scores))
	for id, s := range scores {
		results = append(results, Result{ID: id, Raw: s})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Raw != results[j].Raw {
			return results[i].Raw > results[j].Raw
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	normalizeBatch(results)
	return results
}

// normalizeBatch rescales raw scores to [0,1] over the returned batch.
// A flat batch (all scores equal) maps everything to 1.0.
func normalizeBatch(results []Result) {
	if len(results) == 0 {
		return
	}
	min, max := results[0].Raw, results[0].Raw
	for _, r := range results[1:] {
		if r.Raw < min {
			min = r.Raw
		}
		if r.Raw > max {
			max = r.Raw
		}
	}
	span := max - min
	for i := range results {
		if span == 0 {
			results[i].Score = 1.0
		} else {
			results[i].Score = (results[i].Raw - min) / span
		}
	}
}

// idf computes inverse document frequency:
// ln(1 + (N - df + 0.5) / (df + 0.5)).
func idf(totalDocs float64, docFreq int) float64 {
	if docFreq == 0 {
		return 0
	}
	df := float64(docFreq)
	ratio := (totalDocs - df + 0.5) / (df + 0.5)
	if ratio < 0 {
		ratio = 0
	}
	return math.Log(1.0 + ratio)
}

// normalizedTF applies standard BM25 length normalization.
func normalizedTF(tf, docLen int, avgLen, b float64) float64 {
	if avgLen <= 0 || tf == 0 {
		return 0
	}
	denom := 1.0 - b + b*(float64(docLen)/avgLen)
	if denom <= 0 {
		return 0
	}
	return float64(tf) / denom
}

// saturate applies BM25 term-frequency saturation:
// ((k1 + 1) * score) / (k1 + score).
func saturate(score, k1 float64) float64 {
	if score <= 0 {
		return 0
	}
	return ((k1 + 1.0) * score) / (k1 + score)
}
