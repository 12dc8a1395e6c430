package store

import "fmt"

// ReferentialError reports a write that referenced a node id not present
// in the store. Reads never produce it; missing ids read as nil.
type ReferentialError struct {
	Op        string // "link", "version", ...
	MissingID string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("%s references missing node %q", e.Op, e.MissingID)
}

// Storer defines the interface for content-graph persistence.
// SQLiteStore is the production implementation; MemStore backs tests.
//
// Write contract: nodes are immutable and append-only; links referencing
// ids absent from the store are rejected with a *ReferentialError.
// Read contract: missing ids return (nil, nil) or are omitted, never an
// error.
type Storer interface {
	// Nodes
	PutNode(node *ContentNode) error
	PutVersion(node *ContentNode) error
	GetNode(id string) (*ContentNode, error)
	GetNodes(ids []string) ([]*ContentNode, error)
	FindByHash(contentHash string) ([]*ContentNode, error)
	ListNodeVersions(rootID string) ([]*ContentNode, error)
	ForEachNode(fn func(*ContentNode) error) error
	CountNodes() (int, error)

	// Links
	PutLink(link *ContentLink) error
	PutBidirectionalLink(forward, reverse *ContentLink) error
	LinksFrom(id string, types ...LinkType) ([]*ContentLink, error)
	LinksTo(id string, types ...LinkType) ([]*ContentLink, error)
	CountLinks() (int, error)

	// Quality side-table
	PutQuality(q *ContentQuality) error
	GetQuality(nodeID string) (*ContentQuality, error)

	// Lifecycle
	Close() error
}
