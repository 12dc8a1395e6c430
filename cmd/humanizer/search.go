package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temnoon/humanizer-gm-sub013/pkg/retrieval"
)

var (
	searchLimit        int
	searchPool         int
	searchStaged       bool
	searchQuick        bool
	searchEmbedding    string
	searchDenseWeight  float64
	searchSparseWeight float64
	searchRRFK         float64
	searchMinDense     float64
	searchMinQuality   float64
	searchMinWords     int
	searchExcludeStubs []string
	searchTag          string
	searchExpand       bool
	searchExpandBelow  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over the content graph",
	Long: `Search runs dense + lexical hybrid retrieval with quality gating.
Embeddings are computed outside this tool; pass a precomputed query
embedding with --embedding to enable the dense and staged paths.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]

		embedding, err := parseEmbedding(searchEmbedding)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		vectors, lexical, err := openIndexes(s)
		if err != nil {
			return err
		}
		engine := retrieval.NewEngine(s, vectors, lexical)

		if searchQuick {
			nodes, err := engine.QuickSearch(cmd.Context(), query, embedding, searchLimit)
			if err != nil {
				return err
			}
			for i, n := range nodes {
				fmt.Printf("%2d. %s  %s\n", i+1, n.ID, nodeLabel(n.Title, n.URI))
			}
			return nil
		}

		results, stats, err := engine.Search(cmd.Context(), query, embedding, retrieval.Options{
			Limit:             searchLimit,
			PoolLimit:         searchPool,
			Staged:            searchStaged,
			DenseWeight:       searchDenseWeight,
			SparseWeight:      searchSparseWeight,
			RRFK:              searchRRFK,
			MinDenseScore:     searchMinDense,
			MinQuality:        searchMinQuality,
			MinWordCount:      searchMinWords,
			ExcludedStubTypes: searchExcludeStubs,
			FilterTag:         searchTag,
			ExpandContext:     searchExpand,
			ExpandThreshold:   searchExpandBelow,
		})
		if err != nil {
			return err
		}

		for i, r := range results {
			fmt.Printf("%2d. [%.4f] %s  %s (%d words, %d highlights)\n",
				i+1, r.Similarity, r.Node.ID, nodeLabel(r.Node.Title, r.Node.URI),
				r.Node.WordCount, len(r.Highlights))
			if r.ExpandedContext != "" {
				fmt.Printf("    context: %s\n", firstLine(r.ExpandedContext))
			}
		}

		fmt.Printf("\nstage=%s searched=%d accepted=%d rejected=%d expanded=%d in %s\n",
			stats.Stage, stats.Searched, stats.Accepted, stats.Rejected, stats.Expanded, stats.Duration)
		for reason, n := range stats.RejectionReasons {
			fmt.Printf("  rejected %d: %s\n", n, reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "target result count")
	searchCmd.Flags().IntVar(&searchPool, "pool", 50, "candidate pool size per source")
	searchCmd.Flags().BoolVar(&searchStaged, "staged", false, "use coarse-to-fine staged retrieval")
	searchCmd.Flags().BoolVar(&searchQuick, "quick", false, "unfiltered comparison search (no quality gate)")
	searchCmd.Flags().StringVar(&searchEmbedding, "embedding", "", "comma-separated query embedding")
	searchCmd.Flags().Float64Var(&searchDenseWeight, "dense-weight", 0.7, "dense source weight in rank fusion")
	searchCmd.Flags().Float64Var(&searchSparseWeight, "sparse-weight", 0.3, "sparse source weight in rank fusion")
	searchCmd.Flags().Float64Var(&searchRRFK, "rrf-k", 60, "RRF damping constant")
	searchCmd.Flags().Float64Var(&searchMinDense, "min-dense", 0, "minimum dense similarity")
	searchCmd.Flags().Float64Var(&searchMinQuality, "min-quality", 0, "minimum overall quality score")
	searchCmd.Flags().IntVar(&searchMinWords, "min-words", 0, "minimum word count")
	searchCmd.Flags().StringSliceVar(&searchExcludeStubs, "exclude-stub", nil, "stub classifications to reject")
	searchCmd.Flags().StringVar(&searchTag, "tag", "", "require this tag on results")
	searchCmd.Flags().BoolVar(&searchExpand, "expand", false, "expand short fragments with parent context")
	searchCmd.Flags().IntVar(&searchExpandBelow, "expand-below", 50, "word count below which context expands")
}

func parseEmbedding(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse embedding component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

func nodeLabel(title, uri string) string {
	if title != "" {
		return title
	}
	return uri
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
