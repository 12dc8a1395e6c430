package graph

import (
	"context"
	"sort"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

// Cluster is a group of densely linked nodes.
type Cluster struct {
	SeedID  string
	NodeIDs []string

	// Coherence is internal links over possible directed pairs:
	// internal / (n * (n-1)).
	Coherence float64
}

// FindClusters seeds from the most densely linked nodes (highest local
// out-degree), expands each seed with a depth-2 traversal, and scores
// cluster coherence. Nodes already assigned to a denser cluster are
// excluded from later ones. Output is sorted by coherence descending.
func (g *LinkGraph) FindClusters(ctx context.Context, minSize, maxClusters int) ([]*Cluster, error) {
	degrees, err := g.outDegrees()
	if err != nil {
		return nil, err
	}

	type seed struct {
		id     string
		degree int
	}
	seeds := make([]seed, 0, len(degrees))
	for id, d := range degrees {
		if d > 0 {
			seeds = append(seeds, seed{id: id, degree: d})
		}
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].degree != seeds[j].degree {
			return seeds[i].degree > seeds[j].degree
		}
		return seeds[i].id < seeds[j].id
	})

	assigned := make(map[string]bool)
	var clusters []*Cluster

	for _, s := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(clusters) >= maxClusters {
			break
		}
		if assigned[s.id] {
			continue
		}

		walk, err := g.Traverse(ctx, s.id, TraverseOptions{Direction: DirectionBoth, MaxDepth: 2})
		if err != nil {
			return nil, err
		}

		var members []string
		for _, node := range walk.Nodes {
			if !assigned[node.ID] {
				members = append(members, node.ID)
			}
		}
		if len(members) < minSize {
			continue
		}

		coherence, err := g.coherence(members)
		if err != nil {
			return nil, err
		}

		for _, id := range members {
			assigned[id] = true
		}
		sort.Strings(members)
		clusters = append(clusters, &Cluster{SeedID: s.id, NodeIDs: members, Coherence: coherence})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Coherence != clusters[j].Coherence {
			return clusters[i].Coherence > clusters[j].Coherence
		}
		return clusters[i].SeedID < clusters[j].SeedID
	})
	return clusters, nil
}

func (g *LinkGraph) outDegrees() (map[string]int, error) {
	degrees := make(map[string]int)
	err := g.store.ForEachNode(func(n *store.ContentNode) error {
		links, err := g.store.LinksFrom(n.ID)
		if err != nil {
			return err
		}
		degrees[n.ID] = len(links)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return degrees, nil
}

func (g *LinkGraph) coherence(members []string) (float64, error) {
	n := len(members)
	if n < 2 {
		return 0, nil
	}

	inCluster := make(map[string]bool, n)
	for _, id := range members {
		inCluster[id] = true
	}

	internal := 0
	for _, id := range members {
		links, err := g.store.LinksFrom(id)
		if err != nil {
			return 0, err
		}
		for _, l := range links {
			if inCluster[l.TargetID] {
				internal++
			}
		}
	}
	return float64(internal) / float64(n*(n-1)), nil
}

// NeighborCount pairs a neighbor id with its combined edge count.
type NeighborCount struct {
	ID    string
	Count int
}

// LinkStats summarizes a node's connectivity.
type LinkStats struct {
	Outgoing     int
	Incoming     int
	ByType       map[store.LinkType]int
	TopNeighbors []NeighborCount // at most 10, by combined edge count
}

// GetLinkStats computes connectivity statistics for one node.
func (g *LinkGraph) GetLinkStats(id string) (*LinkStats, error) {
	out, err := g.store.LinksFrom(id)
	if err != nil {
		return nil, err
	}
	in, err := g.store.LinksTo(id)
	if err != nil {
		return nil, err
	}

	stats := &LinkStats{
		Outgoing: len(out),
		Incoming: len(in),
		ByType:   make(map[store.LinkType]int),
	}

	neighborCounts := make(map[string]int)
	for _, l := range out {
		stats.ByType[l.Type]++
		neighborCounts[l.TargetID]++
	}
	for _, l := range in {
		stats.ByType[l.Type]++
		neighborCounts[l.SourceID]++
	}

	neighbors := make([]NeighborCount, 0, len(neighborCounts))
	for nid, c := range neighborCounts {
		neighbors = append(neighbors, NeighborCount{ID: nid, Count: c})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Count != neighbors[j].Count {
			return neighbors[i].Count > neighbors[j].Count
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if len(neighbors) > 10 {
		neighbors = neighbors[:10]
	}
	stats.TopNeighbors = neighbors

	return stats, nil
}

// FindOrphans returns nodes with no links in either direction, up to
// limit (0 means no cap).
func (g *LinkGraph) FindOrphans(limit int) ([]*store.ContentNode, error) {
	var orphans []*store.ContentNode
	err := g.store.ForEachNode(func(n *store.ContentNode) error {
		if limit > 0 && len(orphans) >= limit {
			return nil
		}
		out, err := g.store.LinksFrom(n.ID)
		if err != nil {
			return err
		}
		if len(out) > 0 {
			return nil
		}
		in, err := g.store.LinksTo(n.ID)
		if err != nil {
			return err
		}
		if len(in) == 0 {
			orphans = append(orphans, n)
		}
		return nil
	})
	return orphans, err
}

// MostConnected returns the nodes with the highest combined degree.
func (g *LinkGraph) MostConnected(limit int) ([]NeighborCount, error) {
	var all []NeighborCount
	err := g.store.ForEachNode(func(n *store.ContentNode) error {
		out, err := g.store.LinksFrom(n.ID)
		if err != nil {
			return err
		}
		in, err := g.store.LinksTo(n.ID)
		if err != nil {
			return err
		}
		if len(out)+len(in) > 0 {
			all = append(all, NeighborCount{ID: n.ID, Count: len(out) + len(in)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].ID < all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetDerivatives returns nodes derived from the given node.
func (g *LinkGraph) GetDerivatives(id string) ([]*store.ContentNode, error) {
	links, err := g.store.LinksTo(id, store.LinkDerivedFrom)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.SourceID)
	}
	return g.store.GetNodes(ids)
}

// GetLineage returns the version chain containing the node, oldest
// first, by walking version-of links in both directions.
func (g *LinkGraph) GetLineage(id string) ([]*store.ContentNode, error) {
	node, err := g.store.GetNode(id)
	if err != nil || node == nil {
		return nil, err
	}

	// A malformed version-of cycle must terminate the walk, not hang it.
	visited := map[string]bool{id: true}

	// Ancestors: follow version-of forward (newer points at older).
	var ancestors []string
	for cur := id; ; {
		links, err := g.store.LinksFrom(cur, store.LinkVersionOf)
		if err != nil {
			return nil, err
		}
		if len(links) == 0 || visited[links[0].TargetID] {
			break
		}
		cur = links[0].TargetID
		visited[cur] = true
		ancestors = append(ancestors, cur)
	}

	// Descendants: follow version-of backward.
	var descendants []string
	for cur := id; ; {
		links, err := g.store.LinksTo(cur, store.LinkVersionOf)
		if err != nil {
			return nil, err
		}
		if len(links) == 0 || visited[links[0].SourceID] {
			break
		}
		cur = links[0].SourceID
		visited[cur] = true
		descendants = append(descendants, cur)
	}

	// Oldest -> newest.
	ids := make([]string, 0, len(ancestors)+1+len(descendants))
	for i := len(ancestors) - 1; i >= 0; i-- {
		ids = append(ids, ancestors[i])
	}
	ids = append(ids, id)
	ids = append(ids, descendants...)

	return g.store.GetNodes(ids)
}

// GetRelated returns nodes connected by reference-type links in either
// direction.
func (g *LinkGraph) GetRelated(id string) ([]*store.ContentNode, error) {
	types := []store.LinkType{store.LinkReferences, store.LinkRespondsTo, store.LinkRelatedTo}

	out, err := g.store.LinksFrom(id, types...)
	if err != nil {
		return nil, err
	}
	in, err := g.store.LinksTo(id, types...)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, l := range out {
		if !seen[l.TargetID] {
			seen[l.TargetID] = true
			ids = append(ids, l.TargetID)
		}
	}
	for _, l := range in {
		if !seen[l.SourceID] {
			seen[l.SourceID] = true
			ids = append(ids, l.SourceID)
		}
	}
	return g.store.GetNodes(ids)
}
