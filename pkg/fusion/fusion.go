// Package fusion merges independently-ranked result lists into one
// ordering with Reciprocal Rank Fusion. Each list contributes
// weight/(k+rank) per candidate; candidates missing from a list simply
// contribute nothing from it. Output order is fully deterministic: ties
// on fused score break by first-seen list, then by candidate id.
package fusion

import "sort"

// DefaultK damps the advantage of rank 1 over rank 2; 60 is the value
// from the original RRF paper and works well untouched.
const DefaultK = 60.0

const (
	DefaultDenseWeight  = 0.7
	DefaultSparseWeight = 0.3
)

// Ranked is one entry of an input list, ordered best-first by the
// producing source. Score is the source-native score and is carried
// through for diagnostics; ranking position is what RRF consumes.
type Ranked struct {
	ID    string
	Score float64
}

// FusedResult is the per-query merge record for the dense+sparse case.
// A nil score with rank 0 means the candidate was absent from that list.
type FusedResult struct {
	ID          string
	DenseScore  *float64
	DenseRank   int
	SparseScore *float64
	SparseRank  int
	Score       float64
}

// Config tunes two-way fusion.
type Config struct {
	K            float64
	DenseWeight  float64
	SparseWeight float64
}

// DefaultConfig returns the standard dense-favoring mix.
func DefaultConfig() Config {
	return Config{K: DefaultK, DenseWeight: DefaultDenseWeight, SparseWeight: DefaultSparseWeight}
}

func (c Config) withDefaults() Config {
	if c.K <= 0 {
		c.K = DefaultK
	}
	if c.DenseWeight == 0 && c.SparseWeight == 0 {
		c.DenseWeight = DefaultDenseWeight
		c.SparseWeight = DefaultSparseWeight
	}
	return c
}

// Fuse merges a dense and a sparse ranked list.
func Fuse(dense, sparse []Ranked, cfg Config) []FusedResult {
	cfg = cfg.withDefaults()

	byID := make(map[string]*FusedResult)
	order := make([]string, 0, len(dense)+len(sparse))
	firstList := make(map[string]int)

	ensure := func(id string, list int) *FusedResult {
		r, ok := byID[id]
		if !ok {
			r = &FusedResult{ID: id}
			byID[id] = r
			order = append(order, id)
			firstList[id] = list
		}
		return r
	}

	for i, d := range dense {
		rank := i + 1
		r := ensure(d.ID, 0)
		score := d.Score
		r.DenseScore = &score
		r.DenseRank = rank
		r.Score += cfg.DenseWeight / (cfg.K + float64(rank))
	}
	for i, s := range sparse {
		rank := i + 1
		r := ensure(s.ID, 1)
		score := s.Score
		r.SparseScore = &score
		r.SparseRank = rank
		r.Score += cfg.SparseWeight / (cfg.K + float64(rank))
	}

	results := make([]FusedResult, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	sortFused(results, firstList)
	return results
}

// Fused is one entry of a multi-way merge.
type Fused struct {
	ID    string
	Score float64
}

// MultiWayRRF generalizes Fuse to N ranked lists with independent
// weights. A nil weights slice means equal weight 1 per list; a short
// weights slice treats missing entries as 1.
func MultiWayRRF(lists [][]Ranked, weights []float64, k float64) []Fused {
	if k <= 0 {
		k = DefaultK
	}

	scores := make(map[string]float64)
	var order []string
	firstList := make(map[string]int)

	for li, list := range lists {
		w := 1.0
		if li < len(weights) {
			w = weights[li]
		}
		for i, entry := range list {
			if _, seen := scores[entry.ID]; !seen {
				order = append(order, entry.ID)
				firstList[entry.ID] = li
			}
			scores[entry.ID] += w / (k + float64(i+1))
		}
	}

	results := make([]Fused, 0, len(order))
	for _, id := range order {
		results = append(results, Fused{ID: id, Score: scores[id]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if firstList[a.ID] != firstList[b.ID] {
			return firstList[a.ID] < firstList[b.ID]
		}
		return a.ID < b.ID
	})
	return results
}

func sortFused(results []FusedResult, firstList map[string]int) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if firstList[a.ID] != firstList[b.ID] {
			return firstList[a.ID] < firstList[b.ID]
		}
		return a.ID < b.ID
	})
}
