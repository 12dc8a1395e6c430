package store

import (
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Storer for testing.
type MemStore struct {
	mu      sync.RWMutex
	nodes   map[string]*ContentNode
	links   map[string]*ContentLink
	quality map[string]*ContentQuality
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:   make(map[string]*ContentNode),
		links:   make(map[string]*ContentLink),
		quality: make(map[string]*ContentQuality),
	}
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}

// =============================================================================
// Nodes
// =============================================================================

// PutNode inserts an immutable node.
func (s *MemStore) PutNode(node *ContentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; exists {
		return fmt.Errorf("insert node %s: node already exists", node.ID)
	}
	applyNodeDefaults(node)
	cp := *node
	s.nodes[node.ID] = &cp
	return nil
}

// PutVersion appends a new version; see SQLiteStore.PutVersion.
func (s *MemStore) PutVersion(node *ContentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node.PrevVersionID == "" {
		return fmt.Errorf("version node %s has no prev version id", node.ID)
	}
	prev, ok := s.nodes[node.PrevVersionID]
	if !ok {
		return &ReferentialError{Op: "version", MissingID: node.PrevVersionID}
	}
	if _, exists := s.nodes[node.ID]; exists {
		return fmt.Errorf("insert node %s: node already exists", node.ID)
	}

	if node.Version == 0 {
		node.Version = prev.Version + 1
	}
	node.RootID = prev.RootID
	applyNodeDefaults(node)
	cp := *node
	s.nodes[node.ID] = &cp

	link := &ContentLink{
		ID:        node.ID + ":version-of:" + prev.ID,
		SourceID:  node.ID,
		TargetID:  prev.ID,
		Type:      LinkVersionOf,
		Strength:  1.0,
		CreatedAt: node.ImportedAt,
		CreatedBy: node.Operator,
	}
	s.links[link.ID] = link
	return nil
}

// GetNode retrieves a node by ID, or (nil, nil).
func (s *MemStore) GetNode(id string) (*ContentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	cp := *node
	return &cp, nil
}

// GetNodes retrieves many nodes; missing ids are omitted.
func (s *MemStore) GetNodes(ids []string) ([]*ContentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*ContentNode
	for _, id := range ids {
		if node, ok := s.nodes[id]; ok {
			cp := *node
			nodes = append(nodes, &cp)
		}
	}
	return nodes, nil
}

// FindByHash returns all nodes with the given content hash.
func (s *MemStore) FindByHash(contentHash string) ([]*ContentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*ContentNode
	for _, node := range s.nodes {
		if node.ContentHash == contentHash {
			cp := *node
			nodes = append(nodes, &cp)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// ListNodeVersions returns all versions sharing a root id, newest first.
func (s *MemStore) ListNodeVersions(rootID string) ([]*ContentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*ContentNode
	for _, node := range s.nodes {
		if node.RootID == rootID {
			cp := *node
			nodes = append(nodes, &cp)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Version > nodes[j].Version })
	return nodes, nil
}

// ForEachNode streams every node through fn in id order.
func (s *MemStore) ForEachNode(fn func(*ContentNode) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	nodes := make([]*ContentNode, 0, len(ids))
	for _, id := range ids {
		cp := *s.nodes[id]
		nodes = append(nodes, &cp)
	}
	s.mu.RUnlock()

	for _, node := range nodes {
		if err := fn(node); err != nil {
			return err
		}
	}
	return nil
}

// CountNodes returns the total number of nodes.
func (s *MemStore) CountNodes() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), nil
}

// =============================================================================
// Links
// =============================================================================

// PutLink inserts a directed link. Both endpoints must exist.
func (s *MemStore) PutLink(link *ContentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLinkLocked(link)
}

func (s *MemStore) putLinkLocked(link *ContentLink) error {
	for _, id := range []string{link.SourceID, link.TargetID} {
		if _, ok := s.nodes[id]; !ok {
			return &ReferentialError{Op: "link", MissingID: id}
		}
	}
	if link.Strength == 0 {
		link.Strength = 1.0
	}
	cp := *link
	s.links[link.ID] = &cp
	return nil
}

// PutBidirectionalLink inserts both directions or neither.
func (s *MemStore) PutBidirectionalLink(forward, reverse *ContentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putLinkLocked(forward); err != nil {
		return err
	}
	if err := s.putLinkLocked(reverse); err != nil {
		delete(s.links, forward.ID)
		return err
	}
	return nil
}

// LinksFrom returns outgoing links ordered by link id.
func (s *MemStore) LinksFrom(id string, types ...LinkType) ([]*ContentLink, error) {
	return s.filterLinks(func(l *ContentLink) bool { return l.SourceID == id }, types)
}

// LinksTo returns incoming links ordered by link id.
func (s *MemStore) LinksTo(id string, types ...LinkType) ([]*ContentLink, error) {
	return s.filterLinks(func(l *ContentLink) bool { return l.TargetID == id }, types)
}

func (s *MemStore) filterLinks(match func(*ContentLink) bool, types []LinkType) ([]*ContentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeSet := make(map[LinkType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var links []*ContentLink
	for _, link := range s.links {
		if !match(link) {
			continue
		}
		if len(typeSet) > 0 && !typeSet[link.Type] {
			continue
		}
		cp := *link
		links = append(links, &cp)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })
	return links, nil
}

// CountLinks returns the total number of links.
func (s *MemStore) CountLinks() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links), nil
}

// =============================================================================
// Quality side-table
// =============================================================================

// PutQuality upserts a quality record.
func (s *MemStore) PutQuality(q *ContentQuality) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *q
	s.quality[q.NodeID] = &cp
	return nil
}

// GetQuality retrieves the quality record for a node, or (nil, nil).
func (s *MemStore) GetQuality(nodeID string) (*ContentQuality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quality[nodeID]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

// Compile-time interface check
var _ Storer = (*MemStore)(nil)
