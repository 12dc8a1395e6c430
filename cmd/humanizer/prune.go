package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete embeddings whose nodes no longer exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.DeleteEmbeddingsWithoutNodes()
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d orphaned embeddings\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
