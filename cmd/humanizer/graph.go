package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temnoon/humanizer-gm-sub013/pkg/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the link graph",
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats [node-id]",
	Short: "Link statistics for a node, or global counts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if len(args) == 0 {
			nodes, err := s.CountNodes()
			if err != nil {
				return err
			}
			links, err := s.CountLinks()
			if err != nil {
				return err
			}
			fmt.Printf("%d nodes, %d links\n", nodes, links)
			return nil
		}

		stats, err := graph.New(s).GetLinkStats(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d outgoing, %d incoming\n", args[0], stats.Outgoing, stats.Incoming)
		for lt, n := range stats.ByType {
			fmt.Printf("  %-16s %d\n", lt, n)
		}
		if len(stats.TopNeighbors) > 0 {
			fmt.Println("top neighbors:")
			for _, nb := range stats.TopNeighbors {
				fmt.Printf("  %-40s %d\n", nb.ID, nb.Count)
			}
		}
		return nil
	},
}

var graphOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List nodes with no links",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		orphans, err := graph.New(s).FindOrphans(limit)
		if err != nil {
			return err
		}
		for _, n := range orphans {
			fmt.Printf("%s  %s\n", n.ID, nodeLabel(n.Title, n.URI))
		}
		fmt.Printf("%d orphans\n", len(orphans))
		return nil
	},
}

var graphTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the most connected nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		top, err := graph.New(s).MostConnected(limit)
		if err != nil {
			return err
		}
		for _, nc := range top {
			fmt.Printf("%-40s %d\n", nc.ID, nc.Count)
		}
		return nil
	},
}

var graphPathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Find the shortest link path between two nodes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		maxDepth, _ := cmd.Flags().GetInt("max-depth")
		path, err := graph.New(s).FindPath(cmd.Context(), args[0], args[1], nil, maxDepth)
		if err != nil {
			return err
		}
		if path == nil {
			fmt.Printf("no path within %d hops\n", maxDepth)
			return nil
		}
		for i, id := range path.NodeIDs {
			if i > 0 {
				fmt.Printf("  -[%s]->\n", path.Links[i-1].Type)
			}
			fmt.Println(id)
		}
		fmt.Printf("%d hops\n", path.Hops())
		return nil
	},
}

var graphClustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Find densely linked clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		minSize, _ := cmd.Flags().GetInt("min-size")
		limit, _ := cmd.Flags().GetInt("limit")
		clusters, err := graph.New(s).FindClusters(cmd.Context(), minSize, limit)
		if err != nil {
			return err
		}
		for _, c := range clusters {
			fmt.Printf("seed %s: %d nodes, coherence %.3f\n", c.SeedID, len(c.NodeIDs), c.Coherence)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphStatsCmd, graphOrphansCmd, graphTopCmd, graphPathCmd, graphClustersCmd)

	graphOrphansCmd.Flags().Int("limit", 20, "maximum orphans to list")
	graphTopCmd.Flags().Int("limit", 10, "maximum nodes to list")
	graphPathCmd.Flags().Int("max-depth", 6, "maximum path length in hops")
	graphClustersCmd.Flags().Int("min-size", 3, "minimum cluster size")
	graphClustersCmd.Flags().Int("limit", 10, "maximum clusters")
}
