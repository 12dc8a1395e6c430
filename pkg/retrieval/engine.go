package retrieval

import (
	"context"
	"fmt"

	"github.com/temnoon/humanizer-gm-sub013/internal/logger"
	"github.com/temnoon/humanizer-gm-sub013/internal/store"
	"github.com/temnoon/humanizer-gm-sub013/pkg/fusion"
	"github.com/temnoon/humanizer-gm-sub013/pkg/sparse"
	"github.com/temnoon/humanizer-gm-sub013/pkg/vector"
)

// Options configures one Engine.Search call.
type Options struct {
	// Limit is the target number of accepted results. Default 10.
	Limit int

	// PoolLimit is how many candidates each source contributes before
	// fusion and gating. Default 50.
	PoolLimit int

	// Staged routes the query through the coarse-to-fine retriever
	// instead of flat dense+sparse fusion.
	Staged bool
	StagedOptions

	// Fusion parameters for the flat path.
	DenseWeight  float64
	SparseWeight float64
	RRFK         float64

	// MinDenseScore drops dense hits below this similarity before
	// fusion.
	MinDenseScore float64

	// Gate parameters.
	MinQuality        float64
	MinWordCount      int
	ExcludedStubTypes []string
	FilterTag         string
	ExpandContext     bool
	ExpandThreshold   int
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.PoolLimit <= 0 {
		o.PoolLimit = 50
	}
	return o
}

// Result is one accepted search hit.
type Result struct {
	GatedResult
	Highlights []Highlight
}

// Stats describes one completed search.
type Stats struct {
	GateStats
	Stage Stage
}

// Engine is the query front door: it owns candidate generation, rank
// fusion, quality gating, and highlighting. Both index backends are
// optional; a nil vector index or sparse index degrades to the other
// source rather than erroring.
type Engine struct {
	store   store.Storer
	vectors vector.Index
	lexical *sparse.Index
	staged  *StagedRetriever
	gate    *QualityGate
}

// NewEngine wires an engine over a store and its indexes. vectors and
// lexical may each be nil.
func NewEngine(s store.Storer, vectors vector.Index, lexical *sparse.Index) *Engine {
	return &Engine{
		store:   s,
		vectors: vectors,
		lexical: lexical,
		staged:  NewStagedRetriever(s, vectors),
		gate:    NewQualityGate(s),
	}
}

// Search runs the full pipeline. The embedding is computed by the
// caller; the engine never performs network I/O. An empty accepted list
// with populated stats is a valid outcome, not an error.
func (e *Engine) Search(ctx context.Context, text string, embedding []float32, opts Options) ([]Result, *Stats, error) {
	opts = opts.withDefaults()

	candidates, stage, err := e.candidates(ctx, text, embedding, opts)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("search: %d candidates from %s", len(candidates), stage)

	accepted, gateStats, err := e.gate.Apply(ctx, candidates, GateConfig{
		TargetCount:       opts.Limit,
		MinQuality:        opts.MinQuality,
		MinWordCount:      opts.MinWordCount,
		ExcludedStubTypes: opts.ExcludedStubTypes,
		RequireTag:        opts.FilterTag,
		ExpandContext:     opts.ExpandContext,
		ExpandThreshold:   opts.ExpandThreshold,
	})
	if err != nil {
		return nil, nil, err
	}

	hl := newHighlighter(text)
	results := make([]Result, len(accepted))
	for i, a := range accepted {
		results[i] = Result{GatedResult: a, Highlights: hl.find(a.Node.Text)}
	}

	return results, &Stats{GateStats: *gateStats, Stage: stage}, nil
}

// QuickSearch is the unfiltered comparison path: same candidate
// generation, no quality gate. Candidates referencing missing nodes are
// omitted.
func (e *Engine) QuickSearch(ctx context.Context, text string, embedding []float32, limit int) ([]*store.ContentNode, error) {
	if limit <= 0 {
		limit = 10
	}

	candidates, _, err := e.candidates(ctx, text, embedding, Options{Limit: limit, PoolLimit: limit}.withDefaults())
	if err != nil {
		return nil, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return e.store.GetNodes(ids)
}

// candidates produces the ordered candidate list via the staged or flat
// hybrid path.
func (e *Engine) candidates(ctx context.Context, text string, embedding []float32, opts Options) ([]Candidate, Stage, error) {
	if opts.Staged {
		so := opts.StagedOptions
		if so.MinScore == 0 {
			so.MinScore = opts.MinDenseScore
		}
		staged, err := e.staged.StagedSearch(ctx, embedding, so)
		if err != nil {
			return nil, "", err
		}
		return staged.Candidates, staged.Stage, nil
	}
	c, err := e.flatHybrid(ctx, text, embedding, opts)
	if err != nil {
		return nil, "", err
	}
	return c, StageFlatHybrid, nil
}

// flatHybrid fuses a dense and a sparse ranked list with RRF. Either
// source may be absent; a single-source query degrades to that source's
// ranking.
func (e *Engine) flatHybrid(ctx context.Context, text string, embedding []float32, opts Options) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var dense []fusion.Ranked
	if e.vectors != nil && len(embedding) > 0 {
		hits, err := e.vectors.Search(embedding, vector.SearchOptions{
			Limit:    opts.PoolLimit,
			MinScore: opts.MinDenseScore,
		})
		if err != nil {
			return nil, fmt.Errorf("dense search: %w", err)
		}
		for _, h := range hits {
			dense = append(dense, fusion.Ranked{ID: h.ID, Score: h.Similarity})
		}
	}

	var sparseRanked []fusion.Ranked
	if e.lexical != nil && text != "" {
		for _, r := range e.lexical.Search(text, opts.PoolLimit) {
			sparseRanked = append(sparseRanked, fusion.Ranked{ID: r.ID, Score: r.Score})
		}
	}

	fused := fusion.Fuse(dense, sparseRanked, fusion.Config{
		K:            opts.RRFK,
		DenseWeight:  opts.DenseWeight,
		SparseWeight: opts.SparseWeight,
	})

	candidates := make([]Candidate, 0, len(fused))
	for _, f := range fused {
		candidates = append(candidates, Candidate{ID: f.ID, Similarity: f.Score})
	}
	if len(candidates) > opts.PoolLimit {
		candidates = candidates[:opts.PoolLimit]
	}
	return candidates, nil
}
