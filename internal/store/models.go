// Package store provides SQLite-backed persistence for the content graph.
// This is the foundation layer the retrieval engine queries: immutable
// content nodes, typed links between them, and the quality side-table.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Resolution identifies which level of a node's hierarchy an embedding
// represents. Chunks roll up to sections roll up to documents.
type Resolution int

const (
	ResolutionDocument Resolution = iota
	ResolutionSection
	ResolutionChunk
)

// String returns the canonical lowercase name.
func (r Resolution) String() string {
	switch r {
	case ResolutionDocument:
		return "document"
	case ResolutionSection:
		return "section"
	case ResolutionChunk:
		return "chunk"
	default:
		return fmt.Sprintf("resolution(%d)", int(r))
	}
}

// ParseResolution maps a name back to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document":
		return ResolutionDocument, nil
	case "section":
		return ResolutionSection, nil
	case "chunk":
		return ResolutionChunk, nil
	default:
		return 0, fmt.Errorf("unknown resolution %q", s)
	}
}

// Resolutions lists all levels in coarse-to-fine order.
func Resolutions() []Resolution {
	return []Resolution{ResolutionDocument, ResolutionSection, ResolutionChunk}
}

// Format tags the content representation of a node.
type Format string

const (
	FormatPlain     Format = "plain"
	FormatMarkdown  Format = "markdown"
	FormatHTML      Format = "html"
	FormatCode      Format = "code"
	FormatBinaryRef Format = "binary-ref"
)

// LinkType is a closed enumeration of edge semantics.
type LinkType string

const (
	// Structural
	LinkParent LinkType = "parent"
	LinkChild  LinkType = "child"

	// Derivation
	LinkDerivedFrom  LinkType = "derived-from"
	LinkDerivationOf LinkType = "derivation-of"
	LinkVersionOf    LinkType = "version-of"

	// Reference
	LinkReferences LinkType = "references"
	LinkRespondsTo LinkType = "responds-to"
	LinkRelatedTo  LinkType = "related-to"

	// Curation
	LinkHarvestedInto LinkType = "harvested-into"
	LinkPlacedIn      LinkType = "placed-in"
)

// Inverse returns the reverse type for semantic pairs that must be
// created together so the graph is traversable in both directions.
// ok is false for types with no defined inverse.
func (t LinkType) Inverse() (inv LinkType, ok bool) {
	switch t {
	case LinkParent:
		return LinkChild, true
	case LinkChild:
		return LinkParent, true
	case LinkDerivedFrom:
		return LinkDerivationOf, true
	case LinkDerivationOf:
		return LinkDerivedFrom, true
	case LinkHarvestedInto:
		return LinkPlacedIn, true
	case LinkPlacedIn:
		return LinkHarvestedInto, true
	case LinkRelatedTo:
		// Symmetric
		return LinkRelatedTo, true
	default:
		return "", false
	}
}

// MetaSchemaVersion is written into every metadata bag so future fields
// stay additive rather than ambiguous.
const MetaSchemaVersion = 1

// ContentNode is one version of one piece of content. Nodes are
// immutable once created; edits create a new version node with the same
// RootID and a PrevVersionID pointing at the superseded version.
type ContentNode struct {
	// Identity
	ID          string `json:"id"`
	ContentHash string `json:"contentHash"` // hex SHA-256 of Text
	URI         string `json:"uri"`         // scheme://source/path

	// Content
	Text     string `json:"text"`
	Format   Format `json:"format"`
	Rendered string `json:"rendered,omitempty"`

	// Metadata
	Title      string         `json:"title,omitempty"`
	Author     string         `json:"author,omitempty"`
	CreatedAt  int64          `json:"createdAt"`
	ImportedAt int64          `json:"importedAt"`
	WordCount  int            `json:"wordCount"`
	Language   string         `json:"language,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`

	// Source provenance
	SourceType string `json:"sourceType,omitempty"`
	AdapterID  string `json:"adapterId,omitempty"`
	SourceID   string `json:"sourceId,omitempty"`
	BatchID    string `json:"batchId,omitempty"`

	// Hierarchy: structural container (section for a chunk, document
	// for a section). Empty for top-level documents.
	ParentID string `json:"parentId,omitempty"`

	// Versioning
	Version       int    `json:"version"`
	PrevVersionID string `json:"prevVersionId,omitempty"`
	RootID        string `json:"rootId"`
	Operation     string `json:"operation,omitempty"`
	Operator      string `json:"operator,omitempty"`
}

// ContentLink is a directed, typed edge between two node ids.
type ContentLink struct {
	ID       string   `json:"id"`
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
	Type     LinkType `json:"type"`
	Strength float64  `json:"strength"` // 0-1

	// Optional character-offset anchors into node text.
	SourceAnchor *[2]int `json:"sourceAnchor,omitempty"`
	TargetAnchor *[2]int `json:"targetAnchor,omitempty"`

	CreatedAt int64          `json:"createdAt"`
	CreatedBy string         `json:"createdBy,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ContentQuality is the per-node side record written by the external
// scorer after ingestion. The retrieval core reads it, never writes it.
type ContentQuality struct {
	NodeID        string  `json:"nodeId"`
	Authenticity  float64 `json:"authenticity"`
	Necessity     float64 `json:"necessity"`
	Inflection    float64 `json:"inflection"`
	Voice         float64 `json:"voice"`
	Overall       float64 `json:"overall"`
	StubType      string  `json:"stubType,omitempty"`
	NecessityType string  `json:"necessityType,omitempty"`
}

// HashText returns the hex SHA-256 of text, the node de-duplication key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CountWords counts whitespace-delimited words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// EffectiveWordCount returns the stored word count, falling back to a
// recount when the importer never set one.
func (n *ContentNode) EffectiveWordCount() int {
	if n.WordCount > 0 {
		return n.WordCount
	}
	return CountWords(n.Text)
}

// HasTag reports whether the node carries the given free-form tag.
func (n *ContentNode) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
