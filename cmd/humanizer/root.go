package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/temnoon/humanizer-gm-sub013/internal/logger"
	"github.com/temnoon/humanizer-gm-sub013/internal/store"
	"github.com/temnoon/humanizer-gm-sub013/pkg/sparse"
	"github.com/temnoon/humanizer-gm-sub013/pkg/vector"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "humanizer",
	Short: "Multi-resolution hybrid retrieval over a local content graph",
	Long: `humanizer ingests documents into a SQLite-backed content graph,
splits them into document/section/chunk nodes, and serves hybrid
(dense + lexical) search with staged coarse-to-fine retrieval and
quality gating.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(verbose)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "humanizer.db", "path to the content database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func openStore() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStoreWithDSN(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return s, nil
}

// openIndexes builds the vector index over the store's database and
// rebuilds the in-memory lexical index from stored node text.
func openIndexes(s *store.SQLiteStore) (*vector.SQLiteIndex, *sparse.Index, error) {
	vectors, err := vector.NewSQLiteIndex(s.DB())
	if err != nil {
		return nil, nil, err
	}

	lexical := sparse.New()
	err = s.ForEachNode(func(n *store.ContentNode) error {
		lexical.Add(n.ID, n.Text)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild lexical index: %w", err)
	}
	return vectors, lexical, nil
}
