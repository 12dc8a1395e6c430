// Package retrieval assembles the query pipeline: staged or flat hybrid
// candidate generation, rank fusion, quality gating, and query-term
// highlighting.
package retrieval

import (
	"context"
	"fmt"

	"github.com/temnoon/humanizer-gm-sub013/internal/logger"
	"github.com/temnoon/humanizer-gm-sub013/internal/store"
	"github.com/temnoon/humanizer-gm-sub013/pkg/vector"
)

// Stage names the pipeline state that produced a candidate list.
type Stage string

const (
	// StageFine is the normal staged outcome: chunk-level hits
	// restricted to sections judged relevant by the coarse pass.
	StageFine Stage = "fine"

	// StageFlatFallback means the coarse pass found nothing and the
	// search ran unrestricted across all resolutions.
	StageFlatFallback Stage = "flat-fallback"

	// StageCoarseFinal means the fine pass found nothing and the coarse
	// results were returned as-is. Callers expecting leaf fragments may
	// receive sections or documents in this state.
	StageCoarseFinal Stage = "coarse-as-final"

	// StageFlatHybrid marks the non-staged dense+sparse fused path.
	StageFlatHybrid Stage = "flat-hybrid"
)

// Candidate is one retrieval hit heading into the quality gate.
type Candidate struct {
	ID         string
	Similarity float64
}

// StagedOptions configures a coarse-to-fine search.
type StagedOptions struct {
	Coarse      store.Resolution // default SECTION
	Fine        store.Resolution // default CHUNK
	CoarseLimit int              // default 5
	FineLimit   int              // default 10
	MinScore    float64
}

func (o StagedOptions) withDefaults() StagedOptions {
	if o.Coarse == o.Fine {
		o.Coarse = store.ResolutionSection
		o.Fine = store.ResolutionChunk
	}
	if o.CoarseLimit <= 0 {
		o.CoarseLimit = 5
	}
	if o.FineLimit <= 0 {
		o.FineLimit = 10
	}
	return o
}

// StagedResult carries the final candidates plus the stage that
// produced them, for diagnostics and tests.
type StagedResult struct {
	Candidates []Candidate
	Stage      Stage
}

// StagedRetriever runs two-pass coarse-to-fine vector search. Chunk
// embeddings are numerous and noisy in isolation; restricting the fine
// pass to sections the coarse pass already judged relevant improves
// precision without reranking every chunk in the corpus.
type StagedRetriever struct {
	store   store.Storer
	vectors vector.Index
}

// NewStagedRetriever wires a retriever over a store and vector index.
// A nil index is allowed and degrades every search to empty.
func NewStagedRetriever(s store.Storer, v vector.Index) *StagedRetriever {
	return &StagedRetriever{store: s, vectors: v}
}

// StagedSearch runs the coarse pass at opts.Coarse, then the fine pass
// at opts.Fine restricted to the coarse hits and their children. Empty
// coarse results fall back to a flat search across all resolutions;
// empty fine results return the coarse hits themselves.
func (r *StagedRetriever) StagedSearch(ctx context.Context, embedding []float32, opts StagedOptions) (*StagedResult, error) {
	opts = opts.withDefaults()

	if r.vectors == nil || len(embedding) == 0 {
		logger.Warn("staged search without a vector index or embedding, returning no candidates")
		return &StagedResult{Stage: StageFlatFallback}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	coarse, err := r.vectors.Search(embedding, vector.SearchOptions{
		Resolution: &opts.Coarse,
		Limit:      opts.CoarseLimit,
		MinScore:   opts.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("coarse search: %w", err)
	}

	if len(coarse) == 0 {
		logger.Debug("staged: no coarse hits at %s, falling back to flat search", opts.Coarse)
		flat, err := r.vectors.Search(embedding, vector.SearchOptions{
			Limit:    opts.FineLimit,
			MinScore: opts.MinScore,
		})
		if err != nil {
			return nil, fmt.Errorf("flat fallback search: %w", err)
		}
		return &StagedResult{Candidates: toCandidates(flat), Stage: StageFlatFallback}, nil
	}

	allow, err := r.allowSet(ctx, coarse)
	if err != nil {
		return nil, err
	}

	fine, err := r.vectors.Search(embedding, vector.SearchOptions{
		Resolution: &opts.Fine,
		Limit:      opts.FineLimit,
		MinScore:   opts.MinScore,
		AllowIDs:   allow,
	})
	if err != nil {
		return nil, fmt.Errorf("fine search: %w", err)
	}

	if len(fine) == 0 {
		logger.Debug("staged: no fine hits under %d coarse sections, returning coarse results", len(coarse))
		return &StagedResult{Candidates: toCandidates(coarse), Stage: StageCoarseFinal}, nil
	}
	return &StagedResult{Candidates: toCandidates(fine), Stage: StageFine}, nil
}

// allowSet collects "parent or self" ids: each coarse hit plus its
// child links' targets.
func (r *StagedRetriever) allowSet(ctx context.Context, coarse []vector.Hit) (map[string]bool, error) {
	allow := make(map[string]bool, len(coarse))
	for _, h := range coarse {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		allow[h.ID] = true

		links, err := r.store.LinksFrom(h.ID, store.LinkChild)
		if err != nil {
			return nil, fmt.Errorf("expand coarse hit %s: %w", h.ID, err)
		}
		for _, l := range links {
			allow[l.TargetID] = true
		}
	}
	return allow, nil
}

func toCandidates(hits []vector.Hit) []Candidate {
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{ID: h.ID, Similarity: h.Similarity}
	}
	return out
}
