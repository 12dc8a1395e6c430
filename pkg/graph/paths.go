package graph

import (
	"context"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
)

// Path is a hop sequence between two nodes.
type Path struct {
	NodeIDs []string
	Links   []*store.ContentLink
}

// Hops returns the path length in edges.
func (p *Path) Hops() int {
	return len(p.Links)
}

// hop records how BFS first reached a node.
type hop struct {
	prev string
	link *store.ContentLink
}

// FindPath returns the breadth-first shortest path between two nodes,
// undirected over the union of outgoing and incoming edges, or nil if
// unreachable within maxDepth. Ties go to the first path found in link
// enumeration order.
func (g *LinkGraph) FindPath(ctx context.Context, from, to string, types []store.LinkType, maxDepth int) (*Path, error) {
	if from == to {
		return &Path{NodeIDs: []string{from}}, nil
	}

	cameFrom := map[string]hop{from: {}}

	type frontierItem struct {
		id    string
		depth int
	}
	frontier := []frontierItem{{id: from, depth: 0}}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := frontier[0]
		frontier = frontier[1:]
		if item.depth >= maxDepth {
			continue
		}

		edges, err := g.neighbors(item.id, types, DirectionBoth)
		if err != nil {
			return nil, err
		}

		for _, e := range edges {
			if _, seen := cameFrom[e.otherID]; seen {
				continue
			}
			cameFrom[e.otherID] = hop{prev: item.id, link: e.link}

			if e.otherID == to {
				return reconstructPath(cameFrom, from, to), nil
			}
			frontier = append(frontier, frontierItem{id: e.otherID, depth: item.depth + 1})
		}
	}

	return nil, nil
}

func reconstructPath(cameFrom map[string]hop, from, to string) *Path {
	var ids []string
	var links []*store.ContentLink

	for cur := to; ; {
		ids = append([]string{cur}, ids...)
		if cur == from {
			break
		}
		h := cameFrom[cur]
		links = append([]*store.ContentLink{h.link}, links...)
		cur = h.prev
	}
	return &Path{NodeIDs: ids, Links: links}
}

// FindAllPaths enumerates simple paths between two nodes depth-first,
// capped by maxPaths and maxDepth. Discovery order follows the store's
// link-id ordering, so output is deterministic for a fixed graph state.
func (g *LinkGraph) FindAllPaths(ctx context.Context, from, to string, maxPaths, maxDepth int) ([]*Path, error) {
	var paths []*Path
	onPath := map[string]bool{from: true}

	var walk func(cur string, ids []string, links []*store.ContentLink) error
	walk = func(cur string, ids []string, links []*store.ContentLink) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(paths) >= maxPaths {
			return nil
		}
		if cur == to {
			paths = append(paths, &Path{
				NodeIDs: append([]string(nil), ids...),
				Links:   append([]*store.ContentLink(nil), links...),
			})
			return nil
		}
		if len(links) >= maxDepth {
			return nil
		}

		edges, err := g.neighbors(cur, nil, DirectionBoth)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if onPath[e.otherID] {
				continue
			}
			onPath[e.otherID] = true
			err := walk(e.otherID, append(ids, e.otherID), append(links, e.link))
			delete(onPath, e.otherID)
			if err != nil {
				return err
			}
			if len(paths) >= maxPaths {
				return nil
			}
		}
		return nil
	}

	if err := walk(from, []string{from}, nil); err != nil {
		return nil, err
	}
	return paths, nil
}
