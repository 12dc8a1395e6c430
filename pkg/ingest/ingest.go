// Package ingest splits raw text into the document/section/chunk
// hierarchy, writing content nodes plus the structural parent/child
// links the staged retriever depends on.
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/temnoon/humanizer-gm-sub013/internal/logger"
	"github.com/temnoon/humanizer-gm-sub013/internal/store"
	"github.com/temnoon/humanizer-gm-sub013/pkg/sparse"
)

// DefaultSectionWords is the target section size in words.
const DefaultSectionWords = 500

// DefaultChunkWords is the target chunk size in words.
const DefaultChunkWords = 120

// DefaultOverlapWords is the number of words repeated between adjacent
// chunks.
const DefaultOverlapWords = 20

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Document is one unit of incoming content. The adapter (this package's
// caller) owns the URI; ids and hashes are assigned here.
type Document struct {
	URI        string
	Title      string
	Text       string
	SourceType string
	BatchID    string
	Tags       []string
}

// Result reports what one ingestion produced.
type Result struct {
	Document   *store.ContentNode
	SectionIDs []string
	ChunkIDs   []string

	// Skipped is true when a node with the same content hash and URI
	// already existed and nothing was written.
	Skipped bool
}

// Ingestor writes split documents into a store and, optionally, a
// lexical index.
type Ingestor struct {
	store        store.Storer
	lexical      *sparse.Index
	sectionWords int
	chunkWords   int
	overlapWords int
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithSectionWords sets the target section size in words.
func WithSectionWords(n int) Option {
	return func(g *Ingestor) {
		if n > 0 {
			g.sectionWords = n
		}
	}
}

// WithChunkWords sets the target chunk size in words.
func WithChunkWords(n int) Option {
	return func(g *Ingestor) {
		if n > 0 {
			g.chunkWords = n
		}
	}
}

// WithOverlapWords sets the chunk overlap in words.
func WithOverlapWords(n int) Option {
	return func(g *Ingestor) {
		if n >= 0 {
			g.overlapWords = n
		}
	}
}

// New creates an Ingestor. lexical may be nil to skip lexical indexing.
func New(s store.Storer, lexical *sparse.Index, opts ...Option) *Ingestor {
	g := &Ingestor{
		store:        s,
		lexical:      lexical,
		sectionWords: DefaultSectionWords,
		chunkWords:   DefaultChunkWords,
		overlapWords: DefaultOverlapWords,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.overlapWords >= g.chunkWords {
		g.overlapWords = g.chunkWords / 4
	}
	return g
}

// Ingest splits doc and writes the document node, its sections, its
// chunks, and the parent/child links between them. Re-ingesting
// identical content at the same URI is a no-op.
func (g *Ingestor) Ingest(ctx context.Context, doc Document) (*Result, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("ingest %s: empty document", doc.URI)
	}

	hash := store.HashText(doc.Text)
	existing, err := g.store.FindByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", doc.URI, err)
	}
	for _, n := range existing {
		if n.URI == doc.URI {
			logger.Debug("ingest: %s unchanged, skipping", doc.URI)
			return &Result{Document: n, Skipped: true}, nil
		}
	}

	docNode := g.newNode(doc, doc.Text, "document", "")
	docNode.Title = doc.Title
	if err := g.putNode(docNode); err != nil {
		return nil, err
	}
	result := &Result{Document: docNode}

	for si, sectionText := range splitSections(doc.Text, g.sectionWords) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sectionNode := g.newNode(doc, sectionText, "section", docNode.ID)
		sectionNode.Title = fmt.Sprintf("%s §%d", doc.Title, si+1)
		if err := g.putNode(sectionNode); err != nil {
			return nil, err
		}
		if err := g.linkParentChild(docNode.ID, sectionNode.ID); err != nil {
			return nil, err
		}
		result.SectionIDs = append(result.SectionIDs, sectionNode.ID)

		for _, chunkText := range splitChunks(sectionText, g.chunkWords, g.overlapWords) {
			chunkNode := g.newNode(doc, chunkText, "chunk", sectionNode.ID)
			if err := g.putNode(chunkNode); err != nil {
				return nil, err
			}
			if err := g.linkParentChild(sectionNode.ID, chunkNode.ID); err != nil {
				return nil, err
			}
			result.ChunkIDs = append(result.ChunkIDs, chunkNode.ID)
		}
	}

	logger.Info("ingested %s: %d sections, %d chunks", doc.URI, len(result.SectionIDs), len(result.ChunkIDs))
	return result, nil
}

func (g *Ingestor) newNode(doc Document, text, level, parentID string) *store.ContentNode {
	return &store.ContentNode{
		ID:         uuid.New().String(),
		URI:        doc.URI,
		Text:       text,
		Tags:       doc.Tags,
		Meta:       map[string]any{"level": level},
		SourceType: doc.SourceType,
		AdapterID:  "ingest",
		BatchID:    doc.BatchID,
		ParentID:   parentID,
	}
}

func (g *Ingestor) putNode(n *store.ContentNode) error {
	if err := g.store.PutNode(n); err != nil {
		return fmt.Errorf("ingest: put node %s: %w", n.ID, err)
	}
	if g.lexical != nil {
		g.lexical.Add(n.ID, n.Text)
	}
	return nil
}

func (g *Ingestor) linkParentChild(parentID, childID string) error {
	err := g.store.PutBidirectionalLink(
		&store.ContentLink{
			ID:       parentID + ":child:" + childID,
			SourceID: parentID,
			TargetID: childID,
			Type:     store.LinkChild,
		},
		&store.ContentLink{
			ID:       childID + ":parent:" + parentID,
			SourceID: childID,
			TargetID: parentID,
			Type:     store.LinkParent,
		},
	)
	if err != nil {
		return fmt.Errorf("ingest: link %s -> %s: %w", parentID, childID, err)
	}
	return nil
}

// splitSections groups paragraphs greedily until targetWords is
// reached. A single paragraph longer than the target becomes its own
// section rather than being cut mid-paragraph.
func splitSections(text string, targetWords int) []string {
	paragraphs := paragraphSplit.Split(text, -1)

	var sections []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n\n"))
			current = nil
			currentWords = 0
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		words := store.CountWords(p)
		if currentWords > 0 && currentWords+words > targetWords {
			flush()
		}
		current = append(current, p)
		currentWords += words
	}
	flush()

	return sections
}

// splitChunks windows text into chunkWords-sized word runs with
// overlapWords repeated between neighbors.
func splitChunks(text string, chunkWords, overlapWords int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= chunkWords {
		return []string{text}
	}

	step := chunkWords - overlapWords
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
