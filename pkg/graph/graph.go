// Package graph provides higher-order queries over the content graph:
// traversal, path search, clustering, and connectivity statistics. It is
// built purely from the store's link primitives and holds no state of
// its own.
package graph

import (
	"context"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

// Direction selects which edges a traversal follows.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
	DirectionBoth
)

// LinkGraph answers graph queries against a content store.
type LinkGraph struct {
	store store.Storer
}

// New creates a LinkGraph over the given store.
func New(s store.Storer) *LinkGraph {
	return &LinkGraph{store: s}
}

// TraverseOptions configures a breadth-first walk.
type TraverseOptions struct {
	Types     []store.LinkType
	Direction Direction
	MaxDepth  int
}

// TraverseResult holds the outcome of a traversal.
type TraverseResult struct {
	// Nodes visited, in BFS order starting with the start node.
	Nodes []*store.ContentNode

	// Links traversed to reach the visited nodes.
	Links []*store.ContentLink

	// TotalVisits counts every visit attempt, including revisits that
	// were skipped. Useful for diagnosing dense neighborhoods.
	TotalVisits int
}

// edge pairs a neighbor id with the link that reaches it.
type edge struct {
	otherID string
	link    *store.ContentLink
}

// neighbors enumerates edges from id in the requested direction, in the
// store's link-id order so walks are deterministic.
func (g *LinkGraph) neighbors(id string, types []store.LinkType, dir Direction) ([]edge, error) {
	var edges []edge

	if dir == DirectionOutgoing || dir == DirectionBoth {
		links, err := g.store.LinksFrom(id, types...)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			edges = append(edges, edge{otherID: l.TargetID, link: l})
		}
	}
	if dir == DirectionIncoming || dir == DirectionBoth {
		links, err := g.store.LinksTo(id, types...)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			edges = append(edges, edge{otherID: l.SourceID, link: l})
		}
	}
	return edges, nil
}

// Traverse walks the graph breadth-first from start, visiting each node
// at most once and never expanding past MaxDepth.
func (g *LinkGraph) Traverse(ctx context.Context, start string, opts TraverseOptions) (*TraverseResult, error) {
	result := &TraverseResult{}

	startNode, err := g.store.GetNode(start)
	if err != nil {
		return nil, err
	}
	if startNode == nil {
		return result, nil
	}

	visited := map[string]bool{start: true}
	result.Nodes = append(result.Nodes, startNode)
	result.TotalVisits = 1

	type frontierItem struct {
		id    string
		depth int
	}
	frontier := []frontierItem{{id: start, depth: 0}}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := frontier[0]
		frontier = frontier[1:]
		if item.depth >= opts.MaxDepth {
			continue
		}

		edges, err := g.neighbors(item.id, opts.Types, opts.Direction)
		if err != nil {
			return nil, err
		}

		for _, e := range edges {
			result.TotalVisits++
			if visited[e.otherID] {
				continue
			}
			visited[e.otherID] = true

			node, err := g.store.GetNode(e.otherID)
			if err != nil {
				return nil, err
			}
			if node == nil {
				// Dangling reference; skip silently on read.
				continue
			}

			result.Nodes = append(result.Nodes, node)
			result.Links = append(result.Links, e.link)
			frontier = append(frontier, frontierItem{id: e.otherID, depth: item.depth + 1})
		}
	}

	return result, nil
}
